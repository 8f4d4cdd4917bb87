package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hookfreight/hookfreight/internal/idgen"
	"github.com/hookfreight/hookfreight/internal/models"
)

// memEventStore is an in-memory Store, useful as a reference implementation
// and for tests that don't need a real Postgres instance.
type memEventStore struct {
	mu     sync.RWMutex
	events []*models.Event
}

var _ Store = (*memEventStore)(nil)

func NewMemStore() Store {
	return &memEventStore{}
}

func (s *memEventStore) Append(ctx context.Context, event *models.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = idgen.Event()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	copied := copyEvent(event)
	s.events = append(s.events, copied)
	return copied.ID, nil
}

func (s *memEventStore) Get(ctx context.Context, eventID string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.ID == eventID {
			return copyEvent(e), nil
		}
	}
	return nil, models.ErrEventNotFound
}

func (s *memEventStore) ListByEndpoint(ctx context.Context, endpointID string, limit, offset int) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = ClampLimit(limit)
	offset = ClampOffset(offset)

	var filtered []*models.Event
	for _, e := range s.events {
		if e.EndpointID == endpointID {
			filtered = append(filtered, e)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if !filtered[i].ReceivedAt.Equal(filtered[j].ReceivedAt) {
			return filtered[i].ReceivedAt.After(filtered[j].ReceivedAt)
		}
		return filtered[i].ID > filtered[j].ID
	})

	if offset >= len(filtered) {
		return Page{Items: nil, HasNext: false}, nil
	}

	end := offset + limit + 1
	if end > len(filtered) {
		end = len(filtered)
	}
	window := filtered[offset:end]

	hasNext := len(window) > limit
	if hasNext {
		window = window[:limit]
	}

	items := make([]*models.Event, len(window))
	for i, e := range window {
		items[i] = copyEvent(e)
	}
	return Page{Items: items, HasNext: hasNext}, nil
}

func copyEvent(e *models.Event) *models.Event {
	cp := *e
	if e.Query != nil {
		cp.Query = make(map[string][]string, len(e.Query))
		for k, v := range e.Query {
			cp.Query[k] = append([]string(nil), v...)
		}
	}
	if e.Headers != nil {
		cp.Headers = make(map[string][]string, len(e.Headers))
		for k, v := range e.Headers {
			cp.Headers[k] = append([]string(nil), v...)
		}
	}
	cp.Body = append([]byte(nil), e.Body...)
	return &cp
}
