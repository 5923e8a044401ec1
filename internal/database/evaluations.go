package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx that the store functions need. Both pgx.Tx
// and *pgxpool.Pool satisfy it, so the same queries run standalone or
// inside the evaluation unit of work.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EvaluationRecord is one employee's evaluation row. There is at most one
// per employee; feedback holds the latest submitted transcript.
type EvaluationRecord struct {
	ID         uuid.UUID `json:"id"`
	EmployeeID int64     `json:"employee_id"`
	Feedback   string    `json:"feedback"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReportRecord is one generated report in the append-only history.
// RecordingKey locates the archived source audio, nil when the archive was
// not in use.
type ReportRecord struct {
	ID           uuid.UUID       `json:"id"`
	EvaluationID uuid.UUID       `json:"evaluation_id"`
	Report       json.RawMessage `json:"report"`
	RecordingKey *string         `json:"recording_key,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// UpsertEvaluation inserts or updates the evaluation row for an employee,
// replacing any prior transcript. Returns the row and whether it was newly
// created. Concurrent submissions for the same employee resolve to
// last-committed-write-wins on the unique employee_id key.
func UpsertEvaluation(ctx context.Context, q Querier, employeeID int64, transcript string, actorID int64) (*EvaluationRecord, bool, error) {
	var rec EvaluationRecord
	var created bool
	err := q.QueryRow(ctx, `
		INSERT INTO evaluation.employee_evaluation (employee_id, feedback, created_by, updated_by)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (employee_id) DO UPDATE
		SET feedback = EXCLUDED.feedback,
		    updated_by = EXCLUDED.updated_by,
		    updated_at = now()
		RETURNING id, employee_id, feedback, created_at, updated_at, (xmax = 0)
	`, employeeID, transcript, actorID).Scan(
		&rec.ID, &rec.EmployeeID, &rec.Feedback, &rec.CreatedAt, &rec.UpdatedAt, &created,
	)
	if err != nil {
		return nil, false, fmt.Errorf("upsert evaluation: %w", err)
	}
	return &rec, created, nil
}

// InsertReport appends a report to an evaluation's history. Reports are
// never updated after creation.
func InsertReport(ctx context.Context, q Querier, evaluationID uuid.UUID, body json.RawMessage, recordingKey *string, actorID int64) (*ReportRecord, error) {
	var rec ReportRecord
	err := q.QueryRow(ctx, `
		INSERT INTO evaluation.employee_evaluation_reports (employee_evaluation_id, report, recording_key, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, employee_evaluation_id, report, recording_key, created_at
	`, evaluationID, body, recordingKey, actorID).Scan(
		&rec.ID, &rec.EvaluationID, &rec.Report, &rec.RecordingKey, &rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return &rec, nil
}

// GetReport returns one report row by id, or pgx.ErrNoRows.
func GetReport(ctx context.Context, q Querier, reportID uuid.UUID) (*ReportRecord, error) {
	var rec ReportRecord
	err := q.QueryRow(ctx, `
		SELECT id, employee_evaluation_id, report, recording_key, created_at
		FROM evaluation.employee_evaluation_reports
		WHERE id = $1
	`, reportID).Scan(&rec.ID, &rec.EvaluationID, &rec.Report, &rec.RecordingKey, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListReports returns the report history for an evaluation, newest first.
func ListReports(ctx context.Context, q Querier, evaluationID uuid.UUID) ([]ReportRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT id, employee_evaluation_id, report, recording_key, created_at
		FROM evaluation.employee_evaluation_reports
		WHERE employee_evaluation_id = $1
		ORDER BY created_at DESC
	`, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		var rec ReportRecord
		if err := rows.Scan(&rec.ID, &rec.EvaluationID, &rec.Report, &rec.RecordingKey, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
