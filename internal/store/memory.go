package store

import (
	"context"
	"sort"
	"sync"

	"github.com/mindlog-lab/mindlog/internal/model"
)

// MemoryPath selects the in-process store in Open.
const MemoryPath = ":memory:"

// MemoryStore keeps events in process. Reads return copies, so callers see
// a point-in-time snapshot while appends continue.
type MemoryStore struct {
	mu     sync.RWMutex
	events []model.InteractionEvent
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(ctx context.Context, e *model.InteractionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.nextID
	s.nextID++
	stored := *e
	stored.Timestamp = e.Timestamp.UTC()
	if e.TimeToDecisionMs != nil {
		v := *e.TimeToDecisionMs
		stored.TimeToDecisionMs = &v
	}
	s.events = append(s.events, stored)

	return nil
}

func (s *MemoryStore) Query(ctx context.Context, f Filter) ([]*model.InteractionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []*model.InteractionEvent
	for i := range s.events {
		if !f.Match(&s.events[i]) {
			continue
		}
		e := s.events[i]
		if e.TimeToDecisionMs != nil {
			v := *e.TimeToDecisionMs
			e.TimeToDecisionMs = &v
		}
		out = append(out, &e)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}

	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
