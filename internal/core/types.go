package core

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Role identifies what an identity may do in the portal.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStudent
}

// ParseRole converts a stored role string to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Identity is a principal of the portal. Admins and students share one id space.
type Identity struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	DisplayName  string
	ClaimedID    *int64 // Student id the creating batch asked for; nil for provisioned accounts
	CreatedAt    time.Time
}

// IsAdmin reports whether the identity has the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// IsStudent reports whether the identity has the student role.
func (i Identity) IsStudent() bool { return i.Role == RoleStudent }

// Name returns the display name, falling back to the username.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}

// ScoreRecord is one student's mark in one subject.
type ScoreRecord struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	Subject   string    `json:"subject"`
	Mark      int       `json:"marks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MinMark and MaxMark bound a valid mark (inclusive).
const (
	MinMark = 0
	MaxMark = 100
)

// MaxClaimedID is the largest student id a batch row may claim.
const MaxClaimedID = math.MaxInt32

// BatchRow is one parsed data row of an uploaded batch.
type BatchRow struct {
	Line        int    `validate:"gt=1"`
	StudentID   int64  `validate:"gt=0,lte=2147483647"`
	StudentName string `validate:"required"`
	Subject     string `validate:"required,max=100"`
	Mark        int    `validate:"gte=0,lte=100"`
}

// RowError describes a data row that was skipped.
type RowError struct {
	Line   int      `json:"line"`
	Reason string   `json:"reason"`
	Data   []string `json:"data"`
}

// Remap records a claimed student id that was taken by a non-student identity.
type Remap struct {
	Claimed  int64 `json:"claimed"`
	Assigned int64 `json:"assigned"`
}

// CreatedStudent is a student identity created by a batch.
type CreatedStudent struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

// Summary contains the outcome of reconciling one batch.
type Summary struct {
	BatchID         string           `json:"batch_id"`
	FileName        string           `json:"file_name,omitempty"`
	Processed       int              `json:"processed"`
	Errors          int              `json:"errors"`
	CreatedStudents []CreatedStudent `json:"created_students"`
	CreatedScores   []string         `json:"created_scores"`
	UpdatedScores   int              `json:"updated_scores"`
	Remaps          []Remap          `json:"remaps"`
	RowErrors       []RowError       `json:"-"`
	DryRun          bool             `json:"dry_run"`
	Duration        time.Duration    `json:"duration_ns"`
}

// TotalRows returns the number of data rows that were examined.
func (s *Summary) TotalRows() int {
	return s.Processed + s.Errors
}

// Message returns the single user-facing message for the batch.
func (s *Summary) Message() string {
	var b strings.Builder
	if s.DryRun {
		fmt.Fprintf(&b, "Dry run: %d records would be processed.", s.Processed)
	} else {
		fmt.Fprintf(&b, "Successfully processed %d records!", s.Processed)
	}
	if n := len(s.CreatedStudents); n > 0 {
		fmt.Fprintf(&b, " Created %d new student accounts.", n)
	}
	if len(s.Remaps) > 0 {
		parts := make([]string, len(s.Remaps))
		for i, r := range s.Remaps {
			parts[i] = fmt.Sprintf("%d -> %d", r.Claimed, r.Assigned)
		}
		fmt.Fprintf(&b, " Student IDs already taken were reassigned: %s.", strings.Join(parts, ", "))
	}
	if s.Errors > 0 {
		fmt.Fprintf(&b, " %d errors occurred.", s.Errors)
	}
	return b.String()
}

// Stats holds store-wide counts for the admin dashboard.
type Stats struct {
	TotalIdentities int64 `json:"total_users"`
	TotalStudents   int64 `json:"total_students"`
	TotalScores     int64 `json:"total_results"`
}

// StudentReport is a student's results with their mean mark.
type StudentReport struct {
	Student Identity      `json:"-"`
	Results []ScoreRecord `json:"results"`
	Average *float64      `json:"average"` // nil when the student has no results
}

// Queries is the set of store operations the portal needs.
// Implementations must see their own writes inside a transaction.
type Queries interface {
	GetIdentity(ctx context.Context, id int64) (Identity, error)
	GetIdentityByUsername(ctx context.Context, username string) (Identity, error)
	GetStudentByClaimedID(ctx context.Context, claimedID int64) (Identity, error)
	MaxIdentityID(ctx context.Context) (int64, error)
	CreateIdentity(ctx context.Context, identity Identity) (Identity, error)

	GetScore(ctx context.Context, studentID int64, subject string) (ScoreRecord, error)
	CreateScore(ctx context.Context, score ScoreRecord) (ScoreRecord, error)
	UpdateScoreMark(ctx context.Context, id int64, mark int) error
	ListScoresByStudent(ctx context.Context, studentID int64) ([]ScoreRecord, error)

	CountIdentities(ctx context.Context) (int64, error)
	CountIdentitiesByRole(ctx context.Context, role Role) (int64, error)
	CountScores(ctx context.Context) (int64, error)
}

// Store is the persistence layer. WithTx commits when fn returns nil and
// rolls back otherwise.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
	Close() error
}

// PasswordHasher turns a plaintext credential into a storable hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
}
