package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mindlog-lab/mindlog/internal/classify"
	"github.com/mindlog-lab/mindlog/internal/model"
	"github.com/mindlog-lab/mindlog/internal/store"
	"github.com/mindlog-lab/mindlog/internal/triage"
)

// MaxTextLength is the longest accepted message, in characters.
const MaxTextLength = 5000

// maxBodyBytes caps request bodies well above MaxTextLength in UTF-8.
const maxBodyBytes = 64 * 1024

var validate = validator.New(validator.WithRequiredStructEnabled())

type HealthResponse struct {
	Status        string `json:"status"`
	EventsCount   int    `json:"events_count"`
	DBSizeBytes   int64  `json:"db_size_bytes,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}

	response := HealthResponse{
		Status:        "ok",
		EventsCount:   count,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if sz, ok := s.store.(*store.SQLiteStore); ok {
		if size, err := sz.SizeBytes(ctx); err == nil {
			response.DBSizeBytes = size
		}
	}

	writeJSON(w, http.StatusOK, response)
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, SessionResponse{SessionID: triage.NewSessionID()})
}

// TurnRequest is one user message. A missing session_id starts a new
// session.
type TurnRequest struct {
	SessionID      string `json:"session_id" validate:"omitempty,max=128"`
	Text           string `json:"text" validate:"required,max=5000"`
	ReferralSource string `json:"referral_source" validate:"omitempty,max=64"`
}

type TurnResponse struct {
	SessionID       string         `json:"session_id"`
	EventID         int64          `json:"event_id"`
	Response        string         `json:"response"`
	IsCrisis        bool           `json:"is_crisis"`
	CrisisResources string         `json:"crisis_resources,omitempty"`
	Variant         model.Variant  `json:"assigned_variant,omitempty"`
	Severity        model.Severity `json:"severity_bucket"`
	SentimentScore  float64        `json:"sentiment_score"`
	SessionDepth    int            `json:"session_depth"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text must not be blank")
		return
	}
	if req.SessionID == "" {
		req.SessionID = triage.NewSessionID()
	}

	res, err := s.svc.HandleTurn(r.Context(), triage.Turn{
		SessionID:      req.SessionID,
		Text:           req.Text,
		ReferralSource: req.ReferralSource,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TurnResponse{
		SessionID:       res.Event.SessionID,
		EventID:         res.Event.ID,
		Response:        res.Response,
		IsCrisis:        res.IsCrisis,
		CrisisResources: res.CrisisResources,
		Variant:         res.Event.Variant,
		Severity:        res.Event.Severity,
		SentimentScore:  res.Event.SentimentScore,
		SessionDepth:    res.Event.SessionDepth,
	})
}

type DecisionRequest struct {
	Converted        *bool  `json:"converted" validate:"required"`
	TimeToDecisionMs *int64 `json:"time_to_decision_ms" validate:"omitempty,min=0"`
}

type DecisionResponse struct {
	SessionID        string        `json:"session_id"`
	EventID          int64         `json:"event_id"`
	Variant          model.Variant `json:"assigned_variant"`
	Converted        bool          `json:"converted"`
	TimeToDecisionMs int64         `json:"time_to_decision_ms"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req DecisionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	event, err := s.svc.RecordDecision(r.Context(), triage.Decision{
		SessionID:        sessionID,
		Converted:        *req.Converted,
		TimeToDecisionMs: req.TimeToDecisionMs,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, DecisionResponse{
		SessionID:        event.SessionID,
		EventID:          event.ID,
		Variant:          event.Variant,
		Converted:        event.Converted,
		TimeToDecisionMs: *event.TimeToDecisionMs,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.svc.Summary(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// parseFilter reads the optional since/until query params (RFC 3339).
func parseFilter(r *http.Request) (store.Filter, error) {
	var f store.Filter
	q := r.URL.Query()

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be an RFC 3339 timestamp")
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("until must be an RFC 3339 timestamp")
		}
		f.Until = t
	}
	return f, nil
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			problems := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				problems = append(problems, fieldProblem(fe))
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": problems,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func fieldProblem(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " exceeds " + fe.Param() + " characters"
	case "min":
		return field + " must be at least " + fe.Param()
	default:
		return field + " is invalid"
	}
}

// writeServiceError maps service errors to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var inputErr *classify.InputError
	var validationErr *model.ValidationError

	switch {
	case errors.Is(err, triage.ErrMissingSession):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, triage.ErrUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, triage.ErrExcludedSession), errors.Is(err, triage.ErrAlreadyDecided):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &inputErr), errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "event store unavailable")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
