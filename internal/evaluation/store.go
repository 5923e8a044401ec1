package evaluation

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pelagos-labs/speakgrade/internal/database"
)

// PgStore adapts *database.DB to the orchestrator's Store interface.
type PgStore struct {
	db *database.DB
}

func NewPgStore(db *database.DB) *PgStore {
	return &PgStore{db: db}
}

// RunInTx implements Store on a pgx transaction.
func (s *PgStore) RunInTx(ctx context.Context, fn func(tx TxStore) error) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(pgTxStore{tx: tx})
	})
}

// pgTxStore exposes the store operations bound to one transaction.
type pgTxStore struct {
	tx pgx.Tx
}

func (s pgTxStore) UpsertEvaluation(ctx context.Context, employeeID int64, transcript string, actorID int64) (*database.EvaluationRecord, bool, error) {
	return database.UpsertEvaluation(ctx, s.tx, employeeID, transcript, actorID)
}

func (s pgTxStore) InsertReport(ctx context.Context, evaluationID uuid.UUID, body json.RawMessage, recordingKey *string, actorID int64) (*database.ReportRecord, error) {
	return database.InsertReport(ctx, s.tx, evaluationID, body, recordingKey, actorID)
}

// ListReports returns an evaluation's report history newest-first, outside
// any transaction.
func (s *PgStore) ListReports(ctx context.Context, evaluationID uuid.UUID) ([]database.ReportRecord, error) {
	return database.ListReports(ctx, s.db.Pool, evaluationID)
}

// GetReport returns one report row by id.
func (s *PgStore) GetReport(ctx context.Context, reportID uuid.UUID) (*database.ReportRecord, error) {
	return database.GetReport(ctx, s.db.Pool, reportID)
}
