package core

// reconcile.go applies a parsed batch to the identity and score stores.
//
// Every row is independent: a row that fails to parse or validate is tallied
// and skipped, never aborting its siblings. A storage error aborts the whole
// batch; the caller owns the transaction and rolls it back.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// ctxCheckInterval is how many rows are processed between context checks.
const ctxCheckInterval = 100

// CredentialPolicy controls how login details are derived for students
// created by a batch.
type CredentialPolicy struct {
	UsernamePrefix string // student<id>
	EmailDomain    string // student<id>@<domain>

	// PredictablePasswords sets the initial password to the username. When
	// false a random password is generated and never shown.
	PredictablePasswords bool
}

// DefaultCredentialPolicy matches the portal's historical account layout.
func DefaultCredentialPolicy() CredentialPolicy {
	return CredentialPolicy{
		UsernamePrefix:       "student",
		EmailDomain:          "school.edu",
		PredictablePasswords: true,
	}
}

func (p CredentialPolicy) username(id int64) string {
	return p.UsernamePrefix + strconv.FormatInt(id, 10)
}

func (p CredentialPolicy) email(id int64) string {
	return p.username(id) + "@" + p.EmailDomain
}

func (p CredentialPolicy) password(id int64) string {
	if p.PredictablePasswords {
		return p.username(id)
	}
	return uuid.NewString()
}

// Reconciler creates or updates students and their scores from a batch.
type Reconciler struct {
	hasher PasswordHasher
	policy CredentialPolicy
}

// NewReconciler creates a Reconciler that hashes derived credentials with hasher.
func NewReconciler(hasher PasswordHasher, policy CredentialPolicy) *Reconciler {
	if policy.UsernamePrefix == "" {
		policy.UsernamePrefix = "student"
	}
	if policy.EmailDomain == "" {
		policy.EmailDomain = "school.edu"
	}
	return &Reconciler{hasher: hasher, policy: policy}
}

// Reconcile applies every row of batch through q and returns the summary.
// Row problems are recorded in the summary. A returned error means the
// batch must be rolled back.
func (r *Reconciler) Reconcile(ctx context.Context, q Queries, batch *Batch, logger *slog.Logger) (*Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}

	run := &reconcileRun{
		Reconciler: r,
		q:          q,
		summary:    &Summary{},
		remapped:   make(map[int64]bool),
	}

	for i, rec := range batch.records {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := batch.parseRow(rec)
		if err != nil {
			run.skip(logger, rec, err)
			continue
		}

		student, err := run.resolveStudent(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("line %d: resolve student %d: %w", row.Line, row.StudentID, err)
		}

		if err := run.upsertScore(ctx, student, row); err != nil {
			return nil, fmt.Errorf("line %d: upsert score: %w", row.Line, err)
		}

		run.summary.Processed++
	}

	return run.summary, nil
}

// reconcileRun carries the state of one Reconcile call.
type reconcileRun struct {
	*Reconciler
	q        Queries
	summary  *Summary
	remapped map[int64]bool
}

func (run *reconcileRun) skip(logger *slog.Logger, rec batchRecord, reason error) {
	run.summary.Errors++
	run.summary.RowErrors = append(run.summary.RowErrors, RowError{
		Line:   rec.line,
		Reason: reason.Error(),
		Data:   rec.fields,
	})
	logger.Warn("row skipped",
		"line", rec.line,
		"reason", reason.Error(),
		"data", rec.fields,
	)
}

// resolveStudent returns the student identity that owns row.
func (run *reconcileRun) resolveStudent(ctx context.Context, row BatchRow) (Identity, error) {
	existing, err := run.q.GetIdentity(ctx, row.StudentID)
	switch {
	case errors.Is(err, ErrNotFound):
		return run.createStudent(ctx, row.StudentID, row)
	case err != nil:
		return Identity{}, err
	case existing.IsStudent():
		return existing, nil
	}

	// The claimed id belongs to a non-student. Reuse a student that an
	// earlier batch already moved off this id.
	moved, err := run.q.GetStudentByClaimedID(ctx, row.StudentID)
	if err == nil {
		run.addRemap(row.StudentID, moved.ID)
		return moved, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Identity{}, err
	}

	nextID, err := nextIdentityID(ctx, run.q)
	if err != nil {
		return Identity{}, err
	}

	created, err := run.createStudent(ctx, nextID, row)
	if err != nil {
		return Identity{}, err
	}
	run.addRemap(row.StudentID, created.ID)
	return created, nil
}

// nextIdentityID returns max(id)+1 over the whole identity store.
func nextIdentityID(ctx context.Context, q Queries) (int64, error) {
	maxID, err := q.MaxIdentityID(ctx)
	if err != nil {
		return 0, err
	}
	if maxID == math.MaxInt64 {
		return 0, ErrIDSpaceExhausted
	}
	return maxID + 1, nil
}

func (run *reconcileRun) createStudent(ctx context.Context, id int64, row BatchRow) (Identity, error) {
	hash, err := run.hasher.Hash(run.policy.password(id))
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	claimed := row.StudentID
	identity := Identity{
		ID:           id,
		Username:     run.policy.username(id),
		Email:        run.policy.email(id),
		PasswordHash: hash,
		Role:         RoleStudent,
		DisplayName:  row.StudentName,
		ClaimedID:    &claimed,
	}

	created, err := run.q.CreateIdentity(ctx, identity)
	if err != nil {
		return Identity{}, err
	}

	run.summary.CreatedStudents = append(run.summary.CreatedStudents, CreatedStudent{
		ID:          created.ID,
		DisplayName: created.DisplayName,
	})
	return created, nil
}

func (run *reconcileRun) addRemap(claimed, assigned int64) {
	if run.remapped[claimed] {
		return
	}
	run.remapped[claimed] = true
	run.summary.Remaps = append(run.summary.Remaps, Remap{Claimed: claimed, Assigned: assigned})
}

// upsertScore overwrites the mark for (student, subject) or creates it.
func (run *reconcileRun) upsertScore(ctx context.Context, student Identity, row BatchRow) error {
	existing, err := run.q.GetScore(ctx, student.ID, row.Subject)
	switch {
	case err == nil:
		if err := run.q.UpdateScoreMark(ctx, existing.ID, row.Mark); err != nil {
			return err
		}
		run.summary.UpdatedScores++
		return nil
	case !errors.Is(err, ErrNotFound):
		return err
	}

	if _, err := run.q.CreateScore(ctx, ScoreRecord{
		StudentID: student.ID,
		Subject:   row.Subject,
		Mark:      row.Mark,
	}); err != nil {
		return err
	}

	run.summary.CreatedScores = append(run.summary.CreatedScores, student.Name()+" - "+row.Subject)
	return nil
}
