package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/portal/internal/core"
	"github.com/JonMunkholm/portal/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions tunes the pgx connection pool.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Postgres is a core.Store backed by a pgx connection pool.
type Postgres struct {
	pgQueries
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pgQueries: pgQueries{q: database.New(pool)},
		pool:      pool,
	}
}

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string, opts PoolOptions) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgres(pool), nil
}

// WithTx runs fn inside a transaction. fn's error is returned unchanged.
func (p *Postgres) WithTx(ctx context.Context, fn func(q core.Queries) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(pgQueries{q: p.q.WithTx(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// pgQueries adapts database.Queries to core.Queries.
type pgQueries struct {
	q *database.Queries
}

// pgErr maps driver errors onto core sentinels.
func pgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == "23505" && pe.ConstraintName == "identities_username_key" {
		return fmt.Errorf("%w: %s", core.ErrUsernameTaken, pe.Error())
	}
	return err
}

func (pq pgQueries) GetIdentity(ctx context.Context, id int64) (core.Identity, error) {
	row, err := pq.q.GetIdentity(ctx, id)
	if err != nil {
		return core.Identity{}, pgErr(err)
	}
	return identityFromRow(row), nil
}

func (pq pgQueries) GetIdentityByUsername(ctx context.Context, username string) (core.Identity, error) {
	row, err := pq.q.GetIdentityByUsername(ctx, username)
	if err != nil {
		return core.Identity{}, pgErr(err)
	}
	return identityFromRow(row), nil
}

func (pq pgQueries) GetStudentByClaimedID(ctx context.Context, claimedID int64) (core.Identity, error) {
	row, err := pq.q.GetStudentByClaimedID(ctx, toPgInt8(&claimedID))
	if err != nil {
		return core.Identity{}, pgErr(err)
	}
	return identityFromRow(row), nil
}

func (pq pgQueries) MaxIdentityID(ctx context.Context) (int64, error) {
	n, err := pq.q.MaxIdentityID(ctx)
	return n, pgErr(err)
}

func (pq pgQueries) CreateIdentity(ctx context.Context, identity core.Identity) (core.Identity, error) {
	row, err := pq.q.InsertIdentity(ctx, database.InsertIdentityParams{
		ID:           identity.ID,
		Username:     identity.Username,
		Email:        identity.Email,
		PasswordHash: identity.PasswordHash,
		Role:         string(identity.Role),
		DisplayName:  identity.DisplayName,
		ClaimedID:    toPgInt8(identity.ClaimedID),
	})
	if err != nil {
		return core.Identity{}, pgErr(err)
	}
	return identityFromRow(row), nil
}

func (pq pgQueries) GetScore(ctx context.Context, studentID int64, subject string) (core.ScoreRecord, error) {
	row, err := pq.q.GetScore(ctx, database.GetScoreParams{StudentID: studentID, Subject: subject})
	if err != nil {
		return core.ScoreRecord{}, pgErr(err)
	}
	return scoreFromRow(row), nil
}

func (pq pgQueries) CreateScore(ctx context.Context, score core.ScoreRecord) (core.ScoreRecord, error) {
	row, err := pq.q.InsertScore(ctx, database.InsertScoreParams{
		StudentID: score.StudentID,
		Subject:   score.Subject,
		Mark:      int32(score.Mark),
	})
	if err != nil {
		return core.ScoreRecord{}, pgErr(err)
	}
	return scoreFromRow(row), nil
}

func (pq pgQueries) UpdateScoreMark(ctx context.Context, id int64, mark int) error {
	return pgErr(pq.q.UpdateScoreMark(ctx, database.UpdateScoreMarkParams{ID: id, Mark: int32(mark)}))
}

func (pq pgQueries) ListScoresByStudent(ctx context.Context, studentID int64) ([]core.ScoreRecord, error) {
	rows, err := pq.q.ListScoresByStudent(ctx, studentID)
	if err != nil {
		return nil, pgErr(err)
	}
	out := make([]core.ScoreRecord, len(rows))
	for i, r := range rows {
		out[i] = scoreFromRow(r)
	}
	return out, nil
}

func (pq pgQueries) CountIdentities(ctx context.Context) (int64, error) {
	n, err := pq.q.CountIdentities(ctx)
	return n, pgErr(err)
}

func (pq pgQueries) CountIdentitiesByRole(ctx context.Context, role core.Role) (int64, error) {
	n, err := pq.q.CountIdentitiesByRole(ctx, string(role))
	return n, pgErr(err)
}

func (pq pgQueries) CountScores(ctx context.Context) (int64, error) {
	n, err := pq.q.CountScores(ctx)
	return n, pgErr(err)
}
