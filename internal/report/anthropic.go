package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const reportToolName = "record_evaluation"

// reportToolSchema is the JSON schema handed to the model in structured
// mode. The request itself encodes the shape, so a well-behaved backend
// cannot omit required fields or wrong-type a value.
var reportToolSchema = map[string]any{
	"overall_score": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
	"overall_band":  map[string]any{"type": "string", "enum": []string{"Poor", "Average", "Good", "Excellent"}},
	"summary":       map[string]any{"type": "string"},
	"criteria": map[string]any{
		"type": "object",
		"properties": func() map[string]any {
			dim := map[string]any{
				"type": "object",
				"properties": map[string]any{
					"score": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
					"band":  map[string]any{"type": "string"},
					"notes": map[string]any{"type": "string"},
				},
				"required": []string{"score", "band", "notes"},
			}
			props := make(map[string]any, len(CriteriaKeys))
			for _, k := range CriteriaKeys {
				props[k] = dim
			}
			return props
		}(),
		"required": CriteriaKeys,
	},
	"strengths":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1, "maxItems": 10},
	"improvement_areas": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1, "maxItems": 10},
	"action_plan": map[string]any{
		"type": "array", "minItems": 1, "maxItems": 7,
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"focus":           map[string]any{"type": "string"},
				"what_to_improve": map[string]any{"type": "string"},
				"why_it_matters":  map[string]any{"type": "string"},
				"how_to_improve":  map[string]any{"type": "string"},
			},
			"required": []string{"focus", "what_to_improve", "why_it_matters", "how_to_improve"},
		},
	},
}

// AnthropicClient calls the Anthropic Messages API.
// Implements the ModelClient interface.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
}

// NewAnthropicClient creates a client for the given model. timeout bounds
// each individual model call.
func NewAnthropicClient(apiKey, model string, maxTokens int64, timeout time.Duration) *AnthropicClient {
	return &AnthropicClient{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: 0.3,
		timeout:     timeout,
	}
}

// Generate sends a plain text request and returns the concatenated text
// blocks of the response.
func (c *AnthropicClient) Generate(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic response contained no text")
	}
	return sb.String(), nil
}

// GenerateStructured forces a tool call whose input schema is the report
// contract, then strict-decodes the tool input. A returned report has
// already passed validation.
func (c *AnthropicClient) GenerateStructured(ctx context.Context, system, user string) (*EvaluationReport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Tools: []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        reportToolName,
				Description: anthropic.String("Record the completed communication evaluation report."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: reportToolSchema,
					Required:   requiredReportFields(),
				},
			},
		}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: reportToolName},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic structured request: %w", err)
	}

	for _, block := range msg.Content {
		tu, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok || tu.Name != reportToolName {
			continue
		}
		input, err := json.Marshal(tu.Input)
		if err != nil {
			return nil, fmt.Errorf("marshal tool input: %w", err)
		}
		return Decode(input)
	}
	return nil, fmt.Errorf("anthropic response contained no %s tool call", reportToolName)
}

func requiredReportFields() []string {
	return []string{
		"overall_score", "overall_band", "summary",
		"criteria", "strengths", "improvement_areas", "action_plan",
	}
}
