package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pelagos-labs/speakgrade/internal/metrics"
)

// Tier identifies which rung of the generation ladder produced a report.
type Tier string

const (
	TierStructured Tier = "structured"
	TierFreeText   Tier = "freetext"
	TierRepaired   Tier = "repaired"
)

var (
	// ErrEmptyTranscript is returned for empty or whitespace-only input,
	// before any model call is made.
	ErrEmptyTranscript = errors.New("transcript is empty, cannot generate report")

	// ErrGeneration is the terminal failure after all three tiers are
	// exhausted.
	ErrGeneration = errors.New("could not produce a valid evaluation report")

	// ErrStructuredUnsupported is returned by a ModelClient whose backend
	// cannot do schema-constrained output. The ladder falls through to the
	// free-text tier.
	ErrStructuredUnsupported = errors.New("structured output not supported")
)

// ModelClient is the narrow capability the generator needs from a
// generative text backend.
type ModelClient interface {
	// Generate sends a system and user prompt and returns raw text.
	Generate(ctx context.Context, system, user string) (string, error)

	// GenerateStructured asks for output constrained to the report schema.
	// A non-nil report is already validated. May return
	// ErrStructuredUnsupported.
	GenerateStructured(ctx context.Context, system, user string) (*EvaluationReport, error)
}

// Generator turns a transcript into a validated EvaluationReport.
//
// It runs a three-tier ladder, short-circuiting on the first success:
//  1. structured: schema-constrained model output, no parse step needed
//  2. freetext: raw text response, fence-stripped, parsed, validated
//  3. repaired: one corrective call carrying the previous invalid text
//
// At most three model calls per invocation; no state is carried between
// invocations.
type Generator struct {
	model ModelClient
	log   zerolog.Logger
}

// NewGenerator creates a report generator on a model client.
func NewGenerator(model ModelClient, log zerolog.Logger) *Generator {
	return &Generator{model: model, log: log}
}

// Generate produces exactly one validated report for the transcript, or
// fails with ErrGeneration once the ladder is exhausted.
func (g *Generator) Generate(ctx context.Context, transcript string) (*EvaluationReport, Tier, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, "", ErrEmptyTranscript
	}

	g.log.Info().Int("transcript_chars", len(transcript)).Msg("generating evaluation report")

	user := UserPrompt(transcript)

	// Tier 1: structured output. Any failure falls through, never retried.
	rpt, err := g.model.GenerateStructured(ctx, systemPrompt, user)
	if err == nil {
		g.log.Info().Msg("report generated via structured output")
		metrics.ReportsGeneratedTotal.WithLabelValues(string(TierStructured)).Inc()
		return rpt, TierStructured, nil
	}
	g.log.Warn().Err(err).Msg("structured output failed, falling back to free-text parsing")

	// Tier 2: free-text response, parse and validate ourselves.
	raw, err := g.model.Generate(ctx, systemPrompt, user)
	if err != nil {
		metrics.ReportFailuresTotal.WithLabelValues(string(TierFreeText)).Inc()
		return nil, "", fmt.Errorf("%w: model call failed: %v", ErrGeneration, err)
	}

	rpt, parseErr := Decode([]byte(StripFence(raw)))
	if parseErr == nil {
		g.log.Info().Msg("report generated via free-text parsing")
		metrics.ReportsGeneratedTotal.WithLabelValues(string(TierFreeText)).Inc()
		return rpt, TierFreeText, nil
	}
	g.log.Warn().Err(parseErr).Msg("free-text response invalid, retrying with repair prompt")

	// Tier 3: exactly one repair call carrying the raw text forward.
	fixed, err := g.model.Generate(ctx, repairSystemPrompt, RepairPrompt(raw))
	if err != nil {
		metrics.ReportFailuresTotal.WithLabelValues(string(TierRepaired)).Inc()
		return nil, "", fmt.Errorf("%w: repair call failed: %v", ErrGeneration, err)
	}

	rpt, parseErr = Decode([]byte(StripFence(fixed)))
	if parseErr != nil {
		g.log.Error().Err(parseErr).Msg("repair attempt produced invalid report, giving up")
		metrics.ReportFailuresTotal.WithLabelValues(string(TierRepaired)).Inc()
		return nil, "", fmt.Errorf("%w: %v", ErrGeneration, parseErr)
	}

	g.log.Info().Msg("report generated via repair attempt")
	metrics.ReportsGeneratedTotal.WithLabelValues(string(TierRepaired)).Inc()
	return rpt, TierRepaired, nil
}
