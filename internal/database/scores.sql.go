package database

import (
	"context"
)

func scanScore(row interface{ Scan(...any) error }) (Score, error) {
	var s Score
	err := row.Scan(
		&s.ID,
		&s.StudentID,
		&s.Subject,
		&s.Mark,
		&s.UpdatedAt,
	)
	return s, err
}

const getScore = `-- name: GetScore :one
SELECT id, student_id, subject, mark, updated_at
FROM scores
WHERE student_id = $1 AND subject = $2
`

type GetScoreParams struct {
	StudentID int64
	Subject   string
}

func (q *Queries) GetScore(ctx context.Context, arg GetScoreParams) (Score, error) {
	return scanScore(q.db.QueryRow(ctx, getScore, arg.StudentID, arg.Subject))
}

const insertScore = `-- name: InsertScore :one
INSERT INTO scores (student_id, subject, mark)
VALUES ($1, $2, $3)
RETURNING id, student_id, subject, mark, updated_at
`

type InsertScoreParams struct {
	StudentID int64
	Subject   string
	Mark      int32
}

func (q *Queries) InsertScore(ctx context.Context, arg InsertScoreParams) (Score, error) {
	return scanScore(q.db.QueryRow(ctx, insertScore, arg.StudentID, arg.Subject, arg.Mark))
}

const updateScoreMark = `-- name: UpdateScoreMark :exec
UPDATE scores SET mark = $2, updated_at = now() WHERE id = $1
`

type UpdateScoreMarkParams struct {
	ID   int64
	Mark int32
}

func (q *Queries) UpdateScoreMark(ctx context.Context, arg UpdateScoreMarkParams) error {
	_, err := q.db.Exec(ctx, updateScoreMark, arg.ID, arg.Mark)
	return err
}

const listScoresByStudent = `-- name: ListScoresByStudent :many
SELECT id, student_id, subject, mark, updated_at
FROM scores
WHERE student_id = $1
ORDER BY subject
`

func (q *Queries) ListScoresByStudent(ctx context.Context, studentID int64) ([]Score, error) {
	rows, err := q.db.Query(ctx, listScoresByStudent, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Score
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countScores = `-- name: CountScores :one
SELECT COUNT(*) FROM scores
`

func (q *Queries) CountScores(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, countScores)
	var count int64
	err := row.Scan(&count)
	return count, err
}
