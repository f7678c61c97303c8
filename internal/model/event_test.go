package model_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mindlog-lab/mindlog/internal/model"
)

func validEvent() *model.InteractionEvent {
	return &model.InteractionEvent{
		SessionID:      "session-1",
		Timestamp:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		InputText:      "[anonymized:0123456789abcdef]",
		SentimentScore: 0.4,
		Severity:       model.SeverityMild,
		Variant:        model.VariantA,
		ResponseTimeMs: 3,
		SessionDepth:   1,
		ReferralSource: "direct",
	}
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		score float64
		want  model.Severity
	}{
		{1, model.SeverityMild},
		{0, model.SeverityMild},
		{-0.3, model.SeverityMild},
		{-0.30001, model.SeverityModerate},
		{-0.6, model.SeverityModerate},
		{-0.60001, model.SeveritySevere},
		{-1, model.SeveritySevere},
	}

	for _, tt := range tests {
		if got := model.SeverityFor(tt.score); got != tt.want {
			t.Errorf("SeverityFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestSeverityFor_Monotone(t *testing.T) {
	prev := model.SeverityFor(1)
	for s := 1.0; s >= -1; s -= 0.001 {
		cur := model.SeverityFor(s)
		if cur.Rank() < prev.Rank() {
			t.Fatalf("severity decreased from %s to %s at score %v", prev, cur, s)
		}
		prev = cur
	}
}

func TestVariantLabel(t *testing.T) {
	if model.VariantA.Label() != "clinical" || model.VariantB.Label() != "empathetic" {
		t.Errorf("unexpected labels %q, %q", model.VariantA.Label(), model.VariantB.Label())
	}
	if model.VariantNone.Valid() || model.Variant("C").Valid() {
		t.Error("expected only A and B to be valid")
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	excluded := validEvent()
	excluded.Variant = model.VariantNone
	excluded.ExclusionReason = model.ExclusionCrisis
	if err := excluded.Validate(); err != nil {
		t.Fatalf("unexpected error for excluded event: %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *model.InteractionEvent)
		problem string
	}{
		{"missing session", func(e *model.InteractionEvent) { e.SessionID = " " }, "session_id"},
		{"missing timestamp", func(e *model.InteractionEvent) { e.Timestamp = time.Time{} }, "timestamp"},
		{"score out of range", func(e *model.InteractionEvent) { e.SentimentScore = 1.5 }, "outside [-1, 1]"},
		{"bucket mismatch", func(e *model.InteractionEvent) { e.Severity = model.SeveritySevere }, "does not match"},
		{"unknown bucket", func(e *model.InteractionEvent) { e.Severity = "extreme" }, "unknown severity_bucket"},
		{"unknown variant", func(e *model.InteractionEvent) { e.Variant = "C" }, "unknown assigned_variant"},
		{"excluded with variant", func(e *model.InteractionEvent) { e.ExclusionReason = model.ExclusionCrisis }, "must not carry a variant"},
		{"eligible without variant", func(e *model.InteractionEvent) { e.Variant = model.VariantNone }, "must carry a variant"},
		{"negative response time", func(e *model.InteractionEvent) { e.ResponseTimeMs = -1 }, "response_time_ms"},
		{"negative decision time", func(e *model.InteractionEvent) { d := int64(-5); e.TimeToDecisionMs = &d }, "time_to_decision_ms"},
		{"zero depth", func(e *model.InteractionEvent) { e.SessionDepth = 0 }, "session_depth"},
		{"excluded conversion", func(e *model.InteractionEvent) {
			e.Variant = model.VariantNone
			e.ExclusionReason = model.ExclusionCrisis
			e.Converted = true
		}, "cannot convert"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEvent()
			tt.mutate(e)

			err := e.Validate()
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if !strings.Contains(verr.Error(), tt.problem) {
				t.Errorf("expected problem containing %q, got %q", tt.problem, verr.Error())
			}
		})
	}
}

func TestIsDecision(t *testing.T) {
	e := validEvent()
	if e.IsDecision() {
		t.Error("turn reported as decision")
	}
	d := int64(1200)
	e.TimeToDecisionMs = &d
	if !e.IsDecision() {
		t.Error("decision not reported")
	}
}
