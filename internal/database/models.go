package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Identity struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	DisplayName  string
	ClaimedID    pgtype.Int8
	CreatedAt    pgtype.Timestamptz
}

type Score struct {
	ID        int64
	StudentID int64
	Subject   string
	Mark      int32
	UpdatedAt pgtype.Timestamptz
}
