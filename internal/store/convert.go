package store

// convert.go maps between the core domain types and the pgx row types of
// internal/database. NULL columns become nil pointers; a nil pointer is
// written back as NULL.

import (
	"time"

	"github.com/JonMunkholm/portal/internal/core"
	"github.com/JonMunkholm/portal/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

// toPgInt8 converts an optional int64 to pgtype.Int8.
func toPgInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

// fromPgInt8 converts pgtype.Int8 to an optional int64.
func fromPgInt8(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// fromPgTime returns the zero time for NULL timestamps.
func fromPgTime(v pgtype.Timestamptz) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return v.Time
}

func identityFromRow(row database.Identity) core.Identity {
	return core.Identity{
		ID:           row.ID,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         core.Role(row.Role),
		DisplayName:  row.DisplayName,
		ClaimedID:    fromPgInt8(row.ClaimedID),
		CreatedAt:    fromPgTime(row.CreatedAt),
	}
}

func scoreFromRow(row database.Score) core.ScoreRecord {
	return core.ScoreRecord{
		ID:        row.ID,
		StudentID: row.StudentID,
		Subject:   row.Subject,
		Mark:      int(row.Mark),
		UpdatedAt: fromPgTime(row.UpdatedAt),
	}
}
