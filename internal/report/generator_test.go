package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

// scriptedModel replays canned responses and records call order.
type scriptedModel struct {
	structuredReport *EvaluationReport
	structuredErr    error

	// texts are returned by successive Generate calls, in order.
	texts    []string
	textErrs []error

	calls []string // "structured" or "generate"
}

func (m *scriptedModel) GenerateStructured(ctx context.Context, system, user string) (*EvaluationReport, error) {
	m.calls = append(m.calls, "structured")
	if m.structuredErr != nil {
		return nil, m.structuredErr
	}
	return m.structuredReport, nil
}

func (m *scriptedModel) Generate(ctx context.Context, system, user string) (string, error) {
	m.calls = append(m.calls, "generate")
	i := 0
	for _, c := range m.calls[:len(m.calls)-1] {
		if c == "generate" {
			i++
		}
	}
	if i < len(m.textErrs) && m.textErrs[i] != nil {
		return "", m.textErrs[i]
	}
	if i < len(m.texts) {
		return m.texts[i], nil
	}
	return "", errors.New("unexpected Generate call")
}

func newTestGenerator(m *scriptedModel) *Generator {
	return NewGenerator(m, zerolog.Nop())
}

func validReportJSON(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(validReport())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

// ── ladder ───────────────────────────────────────────────────────────

func TestGenerate_EmptyTranscript(t *testing.T) {
	m := &scriptedModel{}
	_, _, err := newTestGenerator(m).Generate(context.Background(), "   \n\t")
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
	if len(m.calls) != 0 {
		t.Errorf("model called %d times for empty transcript, want 0", len(m.calls))
	}
}

func TestGenerate_StructuredSucceeds(t *testing.T) {
	m := &scriptedModel{structuredReport: validReport()}
	rpt, tier, err := newTestGenerator(m).Generate(context.Background(), "hello team")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if tier != TierStructured {
		t.Errorf("tier = %q, want %q", tier, TierStructured)
	}
	if rpt.OverallScore != 65 {
		t.Errorf("OverallScore = %d, want 65", rpt.OverallScore)
	}
	if got, want := len(m.calls), 1; got != want {
		t.Errorf("model calls = %d, want %d", got, want)
	}
}

func TestGenerate_FallsBackToFreeText(t *testing.T) {
	m := &scriptedModel{
		structuredErr: ErrStructuredUnsupported,
		texts:         []string{"```json\n" + validReportJSON(t) + "\n```"},
	}
	_, tier, err := newTestGenerator(m).Generate(context.Background(), "hello team")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if tier != TierFreeText {
		t.Errorf("tier = %q, want %q", tier, TierFreeText)
	}
	if got, want := len(m.calls), 2; got != want {
		t.Errorf("model calls = %d, want %d", got, want)
	}
}

func TestGenerate_RepairSucceeds(t *testing.T) {
	m := &scriptedModel{
		structuredErr: errors.New("api overloaded"),
		texts: []string{
			"Sure! Here is the evaluation: the speaker did well.",
			validReportJSON(t),
		},
	}
	_, tier, err := newTestGenerator(m).Generate(context.Background(), "hello team")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if tier != TierRepaired {
		t.Errorf("tier = %q, want %q", tier, TierRepaired)
	}
	if got, want := len(m.calls), 3; got != want {
		t.Errorf("model calls = %d, want %d", got, want)
	}
}

func TestGenerate_AllTiersFail(t *testing.T) {
	m := &scriptedModel{
		structuredErr: errors.New("api overloaded"),
		texts:         []string{"not json", "still not json"},
	}
	_, _, err := newTestGenerator(m).Generate(context.Background(), "hello team")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
	// The ladder makes exactly three calls and never loops.
	if got, want := len(m.calls), 3; got != want {
		t.Errorf("model calls = %d, want %d", got, want)
	}
}

func TestGenerate_FreeTextCallError(t *testing.T) {
	m := &scriptedModel{
		structuredErr: errors.New("api overloaded"),
		textErrs:      []error{errors.New("connection reset")},
	}
	_, _, err := newTestGenerator(m).Generate(context.Background(), "hello team")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
	// A failed model call is terminal, no repair attempt follows.
	if got, want := len(m.calls), 2; got != want {
		t.Errorf("model calls = %d, want %d", got, want)
	}
}

func TestGenerate_StructuredNeverRetried(t *testing.T) {
	m := &scriptedModel{
		structuredErr: errors.New("schema rejected"),
		texts:         []string{validReportJSON(t)},
	}
	_, _, err := newTestGenerator(m).Generate(context.Background(), "hello team")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	structured := 0
	for _, c := range m.calls {
		if c == "structured" {
			structured++
		}
	}
	if structured != 1 {
		t.Errorf("structured attempts = %d, want 1", structured)
	}
}
