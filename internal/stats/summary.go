package stats

import (
	"cmp"
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/mindlog-lab/mindlog/internal/model"
	"github.com/mindlog-lab/mindlog/internal/store"
)

const (
	// Confidence is the level used for every interval in a summary.
	Confidence = 0.95
	// Alpha is the significance level for the one-tailed test.
	Alpha = 0.05
)

type Recommendation string

const (
	SignificantPositive              Recommendation = "significant_positive"
	SignificantInconclusiveDirection Recommendation = "significant_inconclusive_direction"
	NotSignificantContinue           Recommendation = "not_significant_continue"
)

type Status string

const (
	StatusOK               Status = "ok"
	StatusInsufficientData Status = "insufficient_data"
)

// VariantSummary holds the per-arm statistics.
type VariantSummary struct {
	Variant                model.Variant `json:"variant"`
	Label                  string        `json:"label"`
	Status                 Status        `json:"status"`
	Sessions               int           `json:"sessions"`
	Conversions            int           `json:"conversions"`
	Rate                   Value         `json:"rate"`
	CI                     Interval      `json:"ci"`
	MeanSentiment          Value         `json:"mean_sentiment"`
	MedianTimeToDecisionMs Value         `json:"median_time_to_decision_ms"`
}

// Funnel counts sessions from first contact to conversion.
type Funnel struct {
	TotalEvents      int `json:"total_events"`
	TotalSessions    int `json:"total_sessions"`
	CrisisExcluded   int `json:"crisis_excluded"`
	EligibleSessions int `json:"eligible_sessions"`
	Decisions        int `json:"decisions"`
	Conversions      int `json:"conversions"`
}

// Segment is one variant x severity cell.
type Segment struct {
	Variant     model.Variant  `json:"variant"`
	Severity    model.Severity `json:"severity_bucket"`
	Sessions    int            `json:"sessions"`
	Conversions int            `json:"conversions"`
	Rate        Value          `json:"rate"`
	CI          Interval       `json:"ci"`
}

// SourceBreakdown is the conversion rate for one referral source.
type SourceBreakdown struct {
	Source      string `json:"referral_source"`
	Sessions    int    `json:"sessions"`
	Conversions int    `json:"conversions"`
	Rate        Value  `json:"rate"`
}

// Summary is the experiment report. It is derived on demand and never
// stored.
type Summary struct {
	Confidence     float64           `json:"confidence"`
	Control        VariantSummary    `json:"control"`
	Treatment      VariantSummary    `json:"treatment"`
	Lift           Value             `json:"relative_lift"`
	LiftCI         Interval          `json:"relative_lift_ci"`
	ZStatistic     Value             `json:"z_statistic"`
	PValue         Value             `json:"p_value"`
	Recommendation Recommendation    `json:"recommendation"`
	Funnel         Funnel            `json:"funnel"`
	Segments       []Segment         `json:"segments"`
	Sources        []SourceBreakdown `json:"sources"`
}

// Variant returns the summary for v.
func (s *Summary) Variant(v model.Variant) VariantSummary {
	if v == model.VariantB {
		return s.Treatment
	}
	return s.Control
}

// compareEvents orders events by timestamp and ID, then by every field the
// session fold reads, so events that tie on time and ID still sort the same
// way whatever order they arrive in.
func compareEvents(a, b *model.InteractionEvent) int {
	return cmp.Or(
		a.Timestamp.Compare(b.Timestamp),
		cmp.Compare(a.ID, b.ID),
		strings.Compare(a.SessionID, b.SessionID),
		strings.Compare(a.ReferralSource, b.ReferralSource),
		strings.Compare(string(a.Variant), string(b.Variant)),
		strings.Compare(string(a.Severity), string(b.Severity)),
		cmp.Compare(a.SentimentScore, b.SentimentScore),
		compareTTD(a.TimeToDecisionMs, b.TimeToDecisionMs),
	)
}

func compareTTD(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*a, *b)
}

type sessionFold struct {
	variant   model.Variant
	severity  model.Severity
	sentiment float64
	excluded  bool
	converted bool
	ttd       *int64
	source    string
}

func (f *sessionFold) eligible() bool {
	return !f.excluded && f.variant.Valid()
}

// Summarize folds events into sessions and computes the report. A session
// counts once: it is excluded if any of its events was excluded, takes the
// variant and severity of its first assigned turn, and converted if any of
// its events converted. The result depends only on the set of events, not
// their order; events that tie on every folded field are interchangeable.
func Summarize(events []*model.InteractionEvent) *Summary {
	ordered := make([]*model.InteractionEvent, len(events))
	copy(ordered, events)
	slices.SortFunc(ordered, compareEvents)

	sessions := make(map[string]*sessionFold)
	for _, e := range ordered {
		s, ok := sessions[e.SessionID]
		if !ok {
			s = &sessionFold{}
			sessions[e.SessionID] = s
		}
		if e.Excluded() {
			s.excluded = true
		}
		if s.variant == model.VariantNone && e.Variant.Valid() {
			s.variant = e.Variant
			s.severity = e.Severity
			s.sentiment = e.SentimentScore
		}
		if e.Converted {
			s.converted = true
		}
		if e.TimeToDecisionMs != nil && s.ttd == nil {
			v := *e.TimeToDecisionMs
			s.ttd = &v
		}
		if s.source == "" {
			s.source = e.ReferralSource
		}
	}

	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	funnel := Funnel{TotalEvents: len(events), TotalSessions: len(sessions)}
	arms := map[model.Variant]*armAccumulator{
		model.VariantA: {},
		model.VariantB: {},
	}
	cells := make(map[model.Variant]map[model.Severity]*count)
	for _, v := range model.Variants {
		cells[v] = make(map[model.Severity]*count)
		for _, sev := range model.Severities {
			cells[v][sev] = &count{}
		}
	}
	sources := make(map[string]*count)

	for _, id := range ids {
		s := sessions[id]
		if s.excluded {
			funnel.CrisisExcluded++
			continue
		}
		if !s.eligible() {
			continue
		}

		funnel.EligibleSessions++
		if s.ttd != nil {
			funnel.Decisions++
		}
		if s.converted {
			funnel.Conversions++
		}

		arms[s.variant].add(s)
		if cell, ok := cells[s.variant][s.severity]; ok {
			cell.add(s.converted)
		}

		source := s.source
		if source == "" {
			source = "unknown"
		}
		if sources[source] == nil {
			sources[source] = &count{}
		}
		sources[source].add(s.converted)
	}

	control := arms[model.VariantA].summary(model.VariantA)
	treatment := arms[model.VariantB].summary(model.VariantB)

	summary := &Summary{
		Confidence: Confidence,
		Control:    control,
		Treatment:  treatment,
		Lift:       RelativeLift(control.Conversions, control.Sessions, treatment.Conversions, treatment.Sessions),
		LiftCI:     LiftInterval(control.Conversions, control.Sessions, treatment.Conversions, treatment.Sessions, Confidence),
		Funnel:     funnel,
	}

	if test, err := ZTestGreater(control.Conversions, control.Sessions, treatment.Conversions, treatment.Sessions); err == nil {
		summary.ZStatistic = Defined(test.Z)
		summary.PValue = Defined(test.PValue)
	}
	summary.Recommendation = Recommend(summary.PValue, summary.LiftCI)

	for _, v := range model.Variants {
		for _, sev := range model.Severities {
			c := cells[v][sev]
			summary.Segments = append(summary.Segments, Segment{
				Variant:     v,
				Severity:    sev,
				Sessions:    c.n,
				Conversions: c.k,
				Rate:        c.rate(),
				CI:          Wilson(c.k, c.n, Confidence),
			})
		}
	}

	for name, c := range sources {
		summary.Sources = append(summary.Sources, SourceBreakdown{
			Source:      name,
			Sessions:    c.n,
			Conversions: c.k,
			Rate:        c.rate(),
		})
	}
	sort.Slice(summary.Sources, func(i, j int) bool {
		a, b := summary.Sources[i], summary.Sources[j]
		if a.Sessions != b.Sessions {
			return a.Sessions > b.Sessions
		}
		return a.Source < b.Source
	})

	return summary
}

// Recommend applies the decision rules in order: significant with a lift
// interval above zero, significant without, and everything else (including
// an undefined p-value).
func Recommend(pValue Value, liftCI Interval) Recommendation {
	p, ok := pValue.Get()
	if !ok || p >= Alpha {
		return NotSignificantContinue
	}
	if liftCI.ExcludesZero() {
		return SignificantPositive
	}
	return SignificantInconclusiveDirection
}

// FromStore summarizes a snapshot of the events matching f.
func FromStore(ctx context.Context, es store.EventStore, f store.Filter) (*Summary, error) {
	events, err := es.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	return Summarize(events), nil
}

type count struct {
	n, k int
}

func (c *count) add(converted bool) {
	c.n++
	if converted {
		c.k++
	}
}

func (c *count) rate() Value {
	if c.n == 0 {
		return Undefined
	}
	return Defined(float64(c.k) / float64(c.n))
}

type armAccumulator struct {
	count
	sentimentSum float64
	ttds         []int64
}

func (a *armAccumulator) add(s *sessionFold) {
	a.count.add(s.converted)
	a.sentimentSum += s.sentiment
	if s.ttd != nil {
		a.ttds = append(a.ttds, *s.ttd)
	}
}

func (a *armAccumulator) summary(v model.Variant) VariantSummary {
	vs := VariantSummary{
		Variant:     v,
		Label:       v.Label(),
		Sessions:    a.n,
		Conversions: a.k,
		Status:      StatusOK,
	}
	if a.n == 0 {
		vs.Status = StatusInsufficientData
		return vs
	}

	vs.Rate = a.rate()
	vs.CI = Wilson(a.k, a.n, Confidence)
	vs.MeanSentiment = Defined(a.sentimentSum / float64(a.n))
	vs.MedianTimeToDecisionMs = median(a.ttds)

	return vs
}

func median(values []int64) Value {
	if len(values) == 0 {
		return Undefined
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return Defined(float64(sorted[mid]))
	}
	return Defined(float64(sorted[mid-1]+sorted[mid]) / 2)
}
