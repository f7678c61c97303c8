// Package triage runs one chat turn end to end: classify the text, keep the
// session in its experiment arm, pick the response and append the event.
package triage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindlog-lab/mindlog/internal/classify"
	"github.com/mindlog-lab/mindlog/internal/config"
	"github.com/mindlog-lab/mindlog/internal/experiment"
	"github.com/mindlog-lab/mindlog/internal/metrics"
	"github.com/mindlog-lab/mindlog/internal/model"
	"github.com/mindlog-lab/mindlog/internal/publish"
	"github.com/mindlog-lab/mindlog/internal/stats"
	"github.com/mindlog-lab/mindlog/internal/store"
)

var (
	ErrMissingSession  = errors.New("session id is required")
	ErrUnknownSession  = errors.New("unknown session")
	ErrExcludedSession = errors.New("session is excluded from the experiment")
	ErrAlreadyDecided  = errors.New("session already has a decision")
)

// lockStripes bounds the number of session mutexes.
const lockStripes = 64

// anonymizedPrefixRunes is how much of the input feeds the stored digest.
const anonymizedPrefixRunes = 100

// Turn is one user message.
type Turn struct {
	SessionID      string
	Text           string
	ReferralSource string
}

// TurnResult is what the caller shows the user.
type TurnResult struct {
	Event    *model.InteractionEvent `json:"event"`
	Response string                  `json:"response"`
	IsCrisis bool                    `json:"is_crisis"`
	// CrisisResources is set only when the crisis protocol is active.
	CrisisResources string `json:"crisis_resources,omitempty"`
	// Degraded is set when the text could not be scored and a neutral
	// classification was used.
	Degraded bool `json:"degraded,omitempty"`
}

// Decision records whether the user took up the offer. A nil
// TimeToDecisionMs is measured from when the last response was shown.
type Decision struct {
	SessionID        string
	Converted        bool
	TimeToDecisionMs *int64
}

// Options configures a Service. Zero fields take defaults.
type Options struct {
	Rules         *config.Rules
	Source        experiment.Source
	Publisher     publish.Publisher
	Logger        *zap.Logger
	Clock         func() time.Time
	StoreRawInput bool
}

// Service is safe for concurrent use. Turns of one session are serialised;
// distinct sessions proceed in parallel.
type Service struct {
	store      store.EventStore
	rules      *config.Rules
	classifier *classify.Classifier
	responses  *experiment.ResponseTable
	src        experiment.Source
	publisher  publish.Publisher
	logger     *zap.Logger
	now        func() time.Time
	storeRaw   bool

	locks [lockStripes]sync.Mutex
}

// New validates the rules and builds a service over st.
func New(st store.EventStore, opts Options) (*Service, error) {
	rules := opts.Rules
	if rules == nil {
		rules = config.DefaultRules()
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	responses, err := rules.ResponseTable()
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:      st,
		rules:      rules,
		classifier: rules.Classifier(),
		responses:  responses,
		src:        opts.Source,
		publisher:  opts.Publisher,
		logger:     opts.Logger,
		now:        opts.Clock,
		storeRaw:   opts.StoreRawInput,
	}
	if s.src == nil {
		s.src = experiment.NewLockedSource(experiment.NewSource(uint64(time.Now().UnixNano())))
	}
	if s.publisher == nil {
		s.publisher = publish.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s, nil
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Classifier exposes the configured classifier.
func (s *Service) Classifier() *classify.Classifier { return s.classifier }

// HandleTurn classifies one message, keeps the session in its arm (or in
// the crisis protocol once triggered), appends the event and returns the
// response to show.
func (s *Service) HandleTurn(ctx context.Context, t Turn) (*TurnResult, error) {
	sessionID := strings.TrimSpace(t.SessionID)
	if sessionID == "" {
		return nil, ErrMissingSession
	}

	log := s.logger.With(zap.String("session_id", sessionID))

	unlock := s.lock(sessionID)
	defer unlock()

	// Read under the lock so timestamps follow session depth.
	start := s.now()

	history, err := s.store.Query(ctx, store.Filter{SessionID: sessionID})
	if err != nil {
		log.Error("failed to load session", zap.Error(err))
		return nil, fmt.Errorf("load session: %w", err)
	}
	prior := foldSession(history)

	result, cerr := s.classifier.Classify(t.Text)
	degraded := cerr != nil
	if degraded {
		metrics.RecordInputError()
		log.Warn("input could not be classified, using neutral result", zap.Error(cerr))
	}

	var assignment experiment.Assignment
	switch {
	case prior.excluded:
		// Once in the crisis protocol, always in it.
		assignment = experiment.Assignment{ExclusionReason: prior.exclusion}
	case prior.variant.Valid():
		assignment = experiment.Assignment{Variant: prior.variant}
		if result.IsCrisis {
			assignment = experiment.Assignment{ExclusionReason: model.ExclusionCrisis}
		}
	default:
		assignment = experiment.Assign(result, s.src)
	}

	var response string
	if assignment.Excluded() {
		response = s.rules.CrisisMessage
	} else {
		response, err = s.responses.Select(assignment.Variant, result.Severity)
		if err != nil {
			return nil, err
		}
	}

	referral := prior.referral
	if referral == "" {
		referral = s.rules.NormalizeReferral(t.ReferralSource)
	}

	event := &model.InteractionEvent{
		SessionID:       sessionID,
		Timestamp:       start,
		InputText:       s.storedText(t.Text),
		SentimentScore:  result.SentimentScore,
		Severity:        result.Severity,
		Variant:         assignment.Variant,
		SessionDepth:    prior.turns + 1,
		ExclusionReason: assignment.ExclusionReason,
		ReferralSource:  referral,
	}
	event.ResponseTimeMs = max(0, s.now().Sub(start).Milliseconds())

	if err := s.store.Append(ctx, event); err != nil {
		log.Error("failed to append event", zap.Error(err))
		return nil, fmt.Errorf("append event: %w", err)
	}

	metrics.RecordTurn(string(event.Severity))
	switch {
	case event.Excluded() && !prior.excluded:
		metrics.RecordCrisisExclusion()
		log.Warn("crisis protocol activated",
			zap.Float64("sentiment_score", result.SentimentScore),
			zap.Bool("score_trigger", result.SentimentScore < s.classifier.Threshold()),
			zap.Int("session_depth", event.SessionDepth),
		)
	case !event.Excluded() && !prior.variant.Valid():
		metrics.RecordAssignment(string(event.Variant))
		log.Info("session assigned", zap.String("variant", string(event.Variant)))
	}

	s.publish(ctx, event, log)

	res := &TurnResult{
		Event:    event,
		Response: response,
		IsCrisis: event.Excluded(),
		Degraded: degraded,
	}
	if res.IsCrisis {
		res.CrisisResources = s.rules.CrisisMessage
	}
	return res, nil
}

// RecordDecision appends the session's single conversion decision. It copies
// the classification of the last turn so the decision lands in the same
// segment.
func (s *Service) RecordDecision(ctx context.Context, d Decision) (*model.InteractionEvent, error) {
	sessionID := strings.TrimSpace(d.SessionID)
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	if d.TimeToDecisionMs != nil && *d.TimeToDecisionMs < 0 {
		return nil, fmt.Errorf("time to decision must be non-negative, got %d", *d.TimeToDecisionMs)
	}

	log := s.logger.With(zap.String("session_id", sessionID))

	unlock := s.lock(sessionID)
	defer unlock()

	history, err := s.store.Query(ctx, store.Filter{SessionID: sessionID})
	if err != nil {
		log.Error("failed to load session", zap.Error(err))
		return nil, fmt.Errorf("load session: %w", err)
	}
	prior := foldSession(history)

	switch {
	case prior.last == nil:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	case prior.excluded:
		return nil, fmt.Errorf("%w: %s", ErrExcludedSession, sessionID)
	case prior.decided:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDecided, sessionID)
	}

	now := s.now()
	ttd := d.TimeToDecisionMs
	if ttd == nil {
		shown := prior.last.Timestamp.Add(time.Duration(prior.last.ResponseTimeMs) * time.Millisecond)
		ms := max(0, now.Sub(shown).Milliseconds())
		ttd = &ms
	} else {
		ms := *ttd
		ttd = &ms
	}

	last := prior.last
	event := &model.InteractionEvent{
		SessionID:        sessionID,
		Timestamp:        now,
		InputText:        last.InputText,
		SentimentScore:   last.SentimentScore,
		Severity:         last.Severity,
		Variant:          last.Variant,
		TimeToDecisionMs: ttd,
		SessionDepth:     last.SessionDepth,
		Converted:        d.Converted,
		ReferralSource:   last.ReferralSource,
	}
	if err := s.store.Append(ctx, event); err != nil {
		log.Error("failed to append decision", zap.Error(err))
		return nil, fmt.Errorf("append decision: %w", err)
	}

	metrics.RecordDecision(string(event.Variant), event.Converted)
	log.Info("decision recorded",
		zap.String("variant", string(event.Variant)),
		zap.Bool("converted", event.Converted),
		zap.Int64("time_to_decision_ms", *ttd),
	)

	s.publish(ctx, event, log)
	return event, nil
}

// Summary computes the experiment report over a snapshot of the store.
func (s *Service) Summary(ctx context.Context, f store.Filter) (*stats.Summary, error) {
	summary, err := stats.FromStore(ctx, s.store, f)
	if err != nil {
		s.logger.Error("failed to read events for summary", zap.Error(err))
		return nil, fmt.Errorf("summary: %w", err)
	}
	return summary, nil
}

// Anonymize replaces text with a digest of its first 100 characters.
func Anonymize(text string) string {
	runes := []rune(text)
	if len(runes) > anonymizedPrefixRunes {
		runes = runes[:anonymizedPrefixRunes]
	}
	sum := sha256.Sum256([]byte(string(runes)))
	return "[anonymized:" + hex.EncodeToString(sum[:])[:16] + "]"
}

func (s *Service) storedText(text string) string {
	if s.storeRaw {
		return text
	}
	return Anonymize(text)
}

func (s *Service) publish(ctx context.Context, e *model.InteractionEvent, log *zap.Logger) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		log.Warn("failed to publish event", zap.Int64("event_id", e.ID), zap.Error(err))
	}
}

func (s *Service) lock(sessionID string) func() {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	mu := &s.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// sessionState is what the service needs to know about earlier events.
type sessionState struct {
	turns     int
	variant   model.Variant
	excluded  bool
	exclusion model.ExclusionReason
	decided   bool
	referral  string
	last      *model.InteractionEvent
}

// foldSession expects events in store order (timestamp, then ID).
func foldSession(events []*model.InteractionEvent) sessionState {
	var st sessionState
	for _, e := range events {
		if e.IsDecision() {
			st.decided = true
			continue
		}
		st.turns++
		st.last = e
		if st.referral == "" {
			st.referral = e.ReferralSource
		}
		if e.Excluded() && !st.excluded {
			st.excluded = true
			st.exclusion = e.ExclusionReason
		}
		if st.variant == model.VariantNone && e.Variant.Valid() {
			st.variant = e.Variant
		}
	}
	return st
}
