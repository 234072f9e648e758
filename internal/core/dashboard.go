package core

import (
	"context"
	"fmt"
	"sort"
)

// Stats returns store-wide counts for the admin dashboard.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var (
		st  Stats
		err error
	)

	if st.TotalIdentities, err = s.store.CountIdentities(ctx); err != nil {
		return Stats{}, fmt.Errorf("count identities: %w", err)
	}
	if st.TotalStudents, err = s.store.CountIdentitiesByRole(ctx, RoleStudent); err != nil {
		return Stats{}, fmt.Errorf("count students: %w", err)
	}
	if st.TotalScores, err = s.store.CountScores(ctx); err != nil {
		return Stats{}, fmt.Errorf("count scores: %w", err)
	}

	return st, nil
}

// StudentReport returns a student's results ordered by subject with their
// mean mark. Average is nil when the student has no results.
func (s *Service) StudentReport(ctx context.Context, studentID int64) (*StudentReport, error) {
	student, err := s.store.GetIdentity(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student %d: %w", studentID, err)
	}
	if !student.IsStudent() {
		return nil, fmt.Errorf("identity %d is not a student: %w", studentID, ErrNotFound)
	}

	results, err := s.store.ListScoresByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Subject < results[j].Subject
	})

	return &StudentReport{
		Student: student,
		Results: results,
		Average: Mean(results),
	}, nil
}

// Mean returns the arithmetic mean of the marks, or nil for no records.
func Mean(records []ScoreRecord) *float64 {
	if len(records) == 0 {
		return nil
	}

	var total int
	for _, r := range records {
		total += r.Mark
	}
	avg := float64(total) / float64(len(records))
	return &avg
}
