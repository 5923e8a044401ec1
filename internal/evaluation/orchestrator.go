// Package evaluation sequences the end-to-end evaluation request:
// transcription, evaluation upsert, report generation, and report append,
// with all storage writes inside a single transaction.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pelagos-labs/speakgrade/internal/database"
	"github.com/pelagos-labs/speakgrade/internal/metrics"
	"github.com/pelagos-labs/speakgrade/internal/report"
	"github.com/pelagos-labs/speakgrade/internal/transcribe"
)

// ErrTranscription marks an upstream speech-to-text failure. It always
// occurs before any storage write.
var ErrTranscription = errors.New("transcription failed")

// Generator is the report-generation capability the orchestrator needs.
// *report.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, transcript string) (*report.EvaluationReport, report.Tier, error)
}

// TxStore is the storage surface available inside the evaluation unit of
// work. All writes through it commit or roll back together.
type TxStore interface {
	UpsertEvaluation(ctx context.Context, employeeID int64, transcript string, actorID int64) (*database.EvaluationRecord, bool, error)
	InsertReport(ctx context.Context, evaluationID uuid.UUID, body json.RawMessage, recordingKey *string, actorID int64) (*database.ReportRecord, error)
}

// Store runs a function inside a transaction. A returned error rolls back
// every write made through the TxStore.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx TxStore) error) error
}

// Archiver retains a copy of the uploaded recording after the evaluation
// commits. *archive.Archiver satisfies it; a nil Archiver disables
// retention.
type Archiver interface {
	Key(employeeID int64, filename string) string
	Enqueue(key, contentType string, data []byte)
}

// Result is the committed outcome of one evaluation request.
type Result struct {
	EvaluationID uuid.UUID
	ReportID     uuid.UUID
	Transcript   string
	Report       *report.EvaluationReport
	WasCreated   bool
	Tier         report.Tier
}

// Orchestrator wires the transcriber, generator, and store into the
// all-or-nothing request flow.
type Orchestrator struct {
	stt   transcribe.Provider
	gen   Generator
	store Store
	arch  Archiver // optional
	log   zerolog.Logger
}

func NewOrchestrator(stt transcribe.Provider, gen Generator, store Store, arch Archiver, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{stt: stt, gen: gen, store: store, arch: arch, log: log}
}

// Evaluate runs the full flow for one validated upload. Nothing is written
// before transcription succeeds; the evaluation upsert is provisional until
// the report is generated and appended, so a generation failure leaves no
// visible state from this request.
func (o *Orchestrator) Evaluate(ctx context.Context, principal int64, treq transcribe.Request) (*Result, error) {
	tr, err := o.stt.Transcribe(ctx, treq)
	if err != nil {
		metrics.TranscriptionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	metrics.TranscriptionsTotal.WithLabelValues("ok").Inc()
	o.log.Info().Int64("employee_id", principal).Int("transcript_chars", len(tr.Text)).Msg("transcription completed")

	var res Result
	res.Transcript = tr.Text

	// The archive key is fixed before the transaction so the report row can
	// reference it; the upload itself happens only after commit.
	var recordingKey *string
	if o.arch != nil {
		k := o.arch.Key(principal, treq.Filename)
		recordingKey = &k
	}

	err = o.store.RunInTx(ctx, func(tx TxStore) error {
		rec, created, err := tx.UpsertEvaluation(ctx, principal, tr.Text, principal)
		if err != nil {
			return err
		}
		res.EvaluationID = rec.ID
		res.WasCreated = created

		rpt, tier, err := o.gen.Generate(ctx, tr.Text)
		if err != nil {
			return err
		}
		res.Report = rpt
		res.Tier = tier

		body, err := json.Marshal(rpt)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}

		rr, err := tx.InsertReport(ctx, rec.ID, body, recordingKey, principal)
		if err != nil {
			return err
		}
		res.ReportID = rr.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if o.arch != nil && recordingKey != nil {
		ct := treq.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		o.arch.Enqueue(*recordingKey, ct, treq.Audio)
	}

	if res.WasCreated {
		metrics.EvaluationsUpsertedTotal.WithLabelValues("created").Inc()
	} else {
		metrics.EvaluationsUpsertedTotal.WithLabelValues("updated").Inc()
	}

	o.log.Info().
		Int64("employee_id", principal).
		Stringer("evaluation_id", res.EvaluationID).
		Stringer("report_id", res.ReportID).
		Str("tier", string(res.Tier)).
		Bool("created", res.WasCreated).
		Msg("evaluation committed")

	return &res, nil
}
