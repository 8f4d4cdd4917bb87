package deliverystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hookfreight/hookfreight/internal/idgen"
	"github.com/hookfreight/hookfreight/internal/models"
)

type memDeliveryStore struct {
	mu         sync.RWMutex
	deliveries []*models.Delivery
}

var _ Store = (*memDeliveryStore)(nil)

func NewMemStore() Store {
	return &memDeliveryStore{}
}

func (s *memDeliveryStore) Append(ctx context.Context, d *models.Delivery) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.deliveries {
		if existing.EventID == d.EventID && samePointerString(existing.ParentDeliveryID, d.ParentDeliveryID) {
			return "", models.ErrDuplicateDelivery
		}
	}

	if d.ID == "" {
		d.ID = idgen.Delivery()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	copied := copyDelivery(d)
	s.deliveries = append(s.deliveries, copied)
	return copied.ID, nil
}

func samePointerString(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func (s *memDeliveryStore) Get(ctx context.Context, deliveryID string) (*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.deliveries {
		if d.ID == deliveryID {
			return copyDelivery(d), nil
		}
	}
	return nil, models.ErrDeliveryNotFound
}

func (s *memDeliveryStore) GetByEvent(ctx context.Context, eventID string, limit, offset int) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = ClampLimit(limit)
	offset = ClampOffset(offset)

	var filtered []*models.Delivery
	for _, d := range s.deliveries {
		if d.EventID == eventID {
			filtered = append(filtered, d)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	if offset >= len(filtered) {
		return Page{}, nil
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

	items := make([]*models.Delivery, len(window))
	for i, d := range window {
		items[i] = copyDelivery(d)
	}
	return Page{Items: items, HasNext: hasNext}, nil
}

func copyDelivery(d *models.Delivery) *models.Delivery {
	cp := *d
	if d.ParentDeliveryID != nil {
		v := *d.ParentDeliveryID
		cp.ParentDeliveryID = &v
	}
	if d.ResponseStatus != nil {
		v := *d.ResponseStatus
		cp.ResponseStatus = &v
	}
	if d.ResponseHeaders != nil {
		cp.ResponseHeaders = make(map[string]string, len(d.ResponseHeaders))
		for k, v := range d.ResponseHeaders {
			cp.ResponseHeaders[k] = v
		}
	}
	cp.ResponseBody = append([]byte(nil), d.ResponseBody...)
	return &cp
}
