package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Band is the categorical label derived from a numeric score.
type Band string

const (
	BandPoor      Band = "Poor"
	BandAverage   Band = "Average"
	BandGood      Band = "Good"
	BandExcellent Band = "Excellent"
)

// BandForScore maps a 0-100 score onto its band.
// Thresholds: <40 Poor, 40-59 Average, 60-79 Good, 80-100 Excellent.
func BandForScore(score int) Band {
	switch {
	case score < 40:
		return BandPoor
	case score < 60:
		return BandAverage
	case score < 80:
		return BandGood
	default:
		return BandExcellent
	}
}

// validBand reports whether s is one of the four band labels.
func validBand(s string) bool {
	switch Band(s) {
	case BandPoor, BandAverage, BandGood, BandExcellent:
		return true
	}
	return false
}

// CriteriaKeys is the fixed, exhaustive set of evaluation dimensions.
// Every report must score all of them and nothing else.
var CriteriaKeys = []string{
	"clarity_understandability",
	"tone_style",
	"engagement_interactivity",
	"structure_organization",
	"content_accuracy_validity",
	"persuasion_influence",
	"language_quality",
	"speech_patterns",
}

// CriterionScore is the score, band, and commentary for one dimension.
type CriterionScore struct {
	Score int    `json:"score"`
	Band  string `json:"band"`
	Notes string `json:"notes"`
}

// ActionItem is one entry in the improvement action plan.
type ActionItem struct {
	Focus         string `json:"focus"`
	WhatToImprove string `json:"what_to_improve"`
	WhyItMatters  string `json:"why_it_matters"`
	HowToImprove  string `json:"how_to_improve"`
}

// EvaluationReport is the validated output of the generation ladder and the
// document persisted under an evaluation.
type EvaluationReport struct {
	OverallScore     int                       `json:"overall_score"`
	OverallBand      string                    `json:"overall_band"`
	Summary          string                    `json:"summary"`
	Criteria         map[string]CriterionScore `json:"criteria"`
	Strengths        []string                  `json:"strengths"`
	ImprovementAreas []string                  `json:"improvement_areas"`
	ActionPlan       []ActionItem              `json:"action_plan"`
}

// Validate checks the report against the contract: scores in range, bands
// from the fixed label set, the criteria map exhaustive over CriteriaKeys,
// list lengths within bounds, and every string non-blank after trimming.
// Band-score agreement is not checked; the model is instructed to keep them
// consistent and the stored document reflects what it produced.
func (r *EvaluationReport) Validate() error {
	if r.OverallScore < 0 || r.OverallScore > 100 {
		return fmt.Errorf("overall_score %d out of range [0,100]", r.OverallScore)
	}
	if !validBand(r.OverallBand) {
		return fmt.Errorf("overall_band %q is not a valid band", r.OverallBand)
	}
	if strings.TrimSpace(r.Summary) == "" {
		return fmt.Errorf("summary is blank")
	}

	if len(r.Criteria) != len(CriteriaKeys) {
		return fmt.Errorf("criteria has %d dimensions, want %d", len(r.Criteria), len(CriteriaKeys))
	}
	for _, key := range CriteriaKeys {
		c, ok := r.Criteria[key]
		if !ok {
			return fmt.Errorf("criteria missing dimension %q", key)
		}
		if c.Score < 0 || c.Score > 100 {
			return fmt.Errorf("criteria[%s].score %d out of range [0,100]", key, c.Score)
		}
		if !validBand(c.Band) {
			return fmt.Errorf("criteria[%s].band %q is not a valid band", key, c.Band)
		}
		if strings.TrimSpace(c.Notes) == "" {
			return fmt.Errorf("criteria[%s].notes is blank", key)
		}
	}

	if err := checkStringList("strengths", r.Strengths, 1, 10); err != nil {
		return err
	}
	if err := checkStringList("improvement_areas", r.ImprovementAreas, 1, 10); err != nil {
		return err
	}

	if len(r.ActionPlan) < 1 || len(r.ActionPlan) > 7 {
		return fmt.Errorf("action_plan has %d items, want 1-7", len(r.ActionPlan))
	}
	for i, item := range r.ActionPlan {
		for name, v := range map[string]string{
			"focus":           item.Focus,
			"what_to_improve": item.WhatToImprove,
			"why_it_matters":  item.WhyItMatters,
			"how_to_improve":  item.HowToImprove,
		} {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("action_plan[%d].%s is blank", i, name)
			}
		}
	}

	return nil
}

func checkStringList(name string, items []string, min, max int) error {
	if len(items) < min || len(items) > max {
		return fmt.Errorf("%s has %d items, want %d-%d", name, len(items), min, max)
	}
	for i, s := range items {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s[%d] is blank", name, i)
		}
	}
	return nil
}

// Decode parses raw JSON into a validated EvaluationReport. Missing or
// unknown fields fail the decode: a single violated rule rejects the whole
// document.
func Decode(data []byte) (*EvaluationReport, error) {
	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	for _, key := range requiredReportFields() {
		if _, ok := present[key]; !ok {
			return nil, fmt.Errorf("report missing field %q", key)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var r EvaluationReport
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("validate report: %w", err)
	}
	return &r, nil
}

// StripFence removes one leading/trailing triple-backtick code fence, with
// or without a language tag. Models frequently wrap JSON output this way
// even when told not to.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
