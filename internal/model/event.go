// Package model holds the records shared by the classifier, the experiment
// engine, the event store and the inference module.
package model

import (
	"fmt"
	"strings"
	"time"
)

type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Severities lists the buckets from mildest to most severe.
var Severities = []Severity{SeverityMild, SeverityModerate, SeveritySevere}

// Rank orders buckets by distress: mild=0, moderate=1, severe=2, unknown=-1.
func (s Severity) Rank() int {
	switch s {
	case SeverityMild:
		return 0
	case SeverityModerate:
		return 1
	case SeveritySevere:
		return 2
	default:
		return -1
	}
}

func (s Severity) Valid() bool { return s.Rank() >= 0 }

// Severity thresholds on the compound sentiment score. Each bucket includes
// its upper edge.
const (
	ModerateBelow = -0.3
	SevereBelow   = -0.6
)

// SeverityFor maps a sentiment score to its bucket. Lower scores never map
// to a milder bucket.
func SeverityFor(score float64) Severity {
	switch {
	case score < SevereBelow:
		return SeveritySevere
	case score < ModerateBelow:
		return SeverityModerate
	default:
		return SeverityMild
	}
}

// Variant is an experiment arm. The zero value means no variant was assigned.
type Variant string

const (
	VariantNone Variant = ""
	VariantA    Variant = "A" // clinical
	VariantB    Variant = "B" // empathetic
)

// Variants lists the arms, control first.
var Variants = []Variant{VariantA, VariantB}

func (v Variant) Valid() bool { return v == VariantA || v == VariantB }

// Label returns the human-readable arm name.
func (v Variant) Label() string {
	switch v {
	case VariantA:
		return "clinical"
	case VariantB:
		return "empathetic"
	default:
		return "none"
	}
}

// ExclusionReason explains why a session is outside the experiment.
// It is an open set; the zero value means the session is eligible.
type ExclusionReason string

const (
	ExclusionNone   ExclusionReason = ""
	ExclusionCrisis ExclusionReason = "crisis_protocol"
)

// InteractionEvent is one appended record: a classified user turn or the
// session's conversion decision. Records are never updated in place.
type InteractionEvent struct {
	ID               int64           `json:"id"`
	SessionID        string          `json:"session_id"`
	Timestamp        time.Time       `json:"timestamp"`
	InputText        string          `json:"input_text"`
	SentimentScore   float64         `json:"sentiment_score"`
	Severity         Severity        `json:"severity_bucket"`
	Variant          Variant         `json:"assigned_variant,omitempty"`
	ResponseTimeMs   int64           `json:"response_time_ms"`
	TimeToDecisionMs *int64          `json:"time_to_decision_ms,omitempty"`
	SessionDepth     int             `json:"session_depth"`
	Converted        bool            `json:"converted"`
	ExclusionReason  ExclusionReason `json:"exclusion_reason,omitempty"`
	ReferralSource   string          `json:"referral_source"`
}

// Excluded reports whether the event is outside the experiment.
func (e *InteractionEvent) Excluded() bool { return e.ExclusionReason != ExclusionNone }

// IsDecision reports whether the event records a conversion decision rather
// than a turn.
func (e *InteractionEvent) IsDecision() bool { return e.TimeToDecisionMs != nil }

// ValidationError lists every broken field of an event.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid interaction event: " + strings.Join(e.Problems, "; ")
}

// Validate checks the record-level invariants. Stores call it before
// appending.
func (e *InteractionEvent) Validate() error {
	var problems []string

	if strings.TrimSpace(e.SessionID) == "" {
		problems = append(problems, "session_id is required")
	}
	if e.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}
	if e.SentimentScore < -1 || e.SentimentScore > 1 {
		problems = append(problems, fmt.Sprintf("sentiment_score %v outside [-1, 1]", e.SentimentScore))
	}
	if !e.Severity.Valid() {
		problems = append(problems, fmt.Sprintf("unknown severity_bucket %q", e.Severity))
	} else if e.Severity != SeverityFor(e.SentimentScore) {
		problems = append(problems, fmt.Sprintf("severity_bucket %q does not match sentiment_score %v", e.Severity, e.SentimentScore))
	}
	if e.Variant != VariantNone && !e.Variant.Valid() {
		problems = append(problems, fmt.Sprintf("unknown assigned_variant %q", e.Variant))
	}
	// A variant is present iff the session is not excluded.
	if e.Excluded() && e.Variant != VariantNone {
		problems = append(problems, "excluded events must not carry a variant")
	}
	if !e.Excluded() && e.Variant == VariantNone {
		problems = append(problems, "eligible events must carry a variant")
	}
	if e.ResponseTimeMs < 0 {
		problems = append(problems, "response_time_ms must be non-negative")
	}
	if e.TimeToDecisionMs != nil && *e.TimeToDecisionMs < 0 {
		problems = append(problems, "time_to_decision_ms must be non-negative")
	}
	if e.SessionDepth < 1 {
		problems = append(problems, "session_depth must be positive")
	}
	if e.Converted && e.Excluded() {
		problems = append(problems, "excluded sessions cannot convert")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
