package store

import (
	"context"
	"errors"
	"time"

	"github.com/mindlog-lab/mindlog/internal/model"
)

// ErrUnavailable wraps every backend failure. Callers propagate it; the
// store never retries.
var ErrUnavailable = errors.New("event store unavailable")

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	SessionID    string
	Variant      model.Variant
	Since        time.Time // inclusive
	Until        time.Time // exclusive
	EligibleOnly bool
	Limit        int
}

// Match reports whether e passes the filter, ignoring Limit.
func (f Filter) Match(e *model.InteractionEvent) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Variant != model.VariantNone && e.Variant != f.Variant {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	if f.EligibleOnly && e.Excluded() {
		return false
	}
	return true
}

// EventStore is the append-only interaction log. Query results are ordered
// by timestamp, then ID.
type EventStore interface {
	Append(ctx context.Context, e *model.InteractionEvent) error
	Query(ctx context.Context, f Filter) ([]*model.InteractionEvent, error)
	Count(ctx context.Context) (int, error)
}

// Store is an EventStore that owns resources.
type Store interface {
	EventStore
	Close() error
}

// Open returns a MemoryStore for ":memory:" and a SQLiteStore otherwise.
func Open(dbPath string) (Store, error) {
	if dbPath == MemoryPath {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(dbPath)
}
