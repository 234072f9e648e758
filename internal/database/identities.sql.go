package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const identityColumns = `id, username, email, password_hash, role, display_name, claimed_id, created_at`

func scanIdentity(row interface{ Scan(...any) error }) (Identity, error) {
	var i Identity
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Email,
		&i.PasswordHash,
		&i.Role,
		&i.DisplayName,
		&i.ClaimedID,
		&i.CreatedAt,
	)
	return i, err
}

const getIdentity = `-- name: GetIdentity :one
SELECT ` + identityColumns + `
FROM identities
WHERE id = $1
`

func (q *Queries) GetIdentity(ctx context.Context, id int64) (Identity, error) {
	return scanIdentity(q.db.QueryRow(ctx, getIdentity, id))
}

const getIdentityByUsername = `-- name: GetIdentityByUsername :one
SELECT ` + identityColumns + `
FROM identities
WHERE username = $1
`

func (q *Queries) GetIdentityByUsername(ctx context.Context, username string) (Identity, error) {
	return scanIdentity(q.db.QueryRow(ctx, getIdentityByUsername, username))
}

const getStudentByClaimedID = `-- name: GetStudentByClaimedID :one
SELECT ` + identityColumns + `
FROM identities
WHERE claimed_id = $1 AND role = 'student'
ORDER BY id
LIMIT 1
`

func (q *Queries) GetStudentByClaimedID(ctx context.Context, claimedID pgtype.Int8) (Identity, error) {
	return scanIdentity(q.db.QueryRow(ctx, getStudentByClaimedID, claimedID))
}

const maxIdentityID = `-- name: MaxIdentityID :one
SELECT COALESCE(MAX(id), 0)::BIGINT FROM identities
`

func (q *Queries) MaxIdentityID(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, maxIdentityID)
	var maxID int64
	err := row.Scan(&maxID)
	return maxID, err
}

const insertIdentity = `-- name: InsertIdentity :one
INSERT INTO identities (id, username, email, password_hash, role, display_name, claimed_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + identityColumns + `
`

type InsertIdentityParams struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	DisplayName  string
	ClaimedID    pgtype.Int8
}

func (q *Queries) InsertIdentity(ctx context.Context, arg InsertIdentityParams) (Identity, error) {
	row := q.db.QueryRow(ctx, insertIdentity,
		arg.ID,
		arg.Username,
		arg.Email,
		arg.PasswordHash,
		arg.Role,
		arg.DisplayName,
		arg.ClaimedID,
	)
	return scanIdentity(row)
}

const countIdentities = `-- name: CountIdentities :one
SELECT COUNT(*) FROM identities
`

func (q *Queries) CountIdentities(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, countIdentities)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countIdentitiesByRole = `-- name: CountIdentitiesByRole :one
SELECT COUNT(*) FROM identities WHERE role = $1
`

func (q *Queries) CountIdentitiesByRole(ctx context.Context, role string) (int64, error) {
	row := q.db.QueryRow(ctx, countIdentitiesByRole, role)
	var count int64
	err := row.Scan(&count)
	return count, err
}
