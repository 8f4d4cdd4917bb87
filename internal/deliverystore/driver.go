// Package deliverystore is the append-only Delivery ledger (SPEC_FULL.md
// §4.5), structured the same way as internal/eventstore: a Store interface
// with Postgres and in-memory implementations.
package deliverystore

import (
	"context"

	"github.com/hookfreight/hookfreight/internal/models"
)

type Store interface {
	// Append writes a new attempt. Returns models.ErrDuplicateDelivery if
	// (EventID, ParentDeliveryID) already has a record.
	Append(ctx context.Context, delivery *models.Delivery) (string, error)
	Get(ctx context.Context, deliveryID string) (*models.Delivery, error)
	GetByEvent(ctx context.Context, eventID string, limit, offset int) (Page, error)
}

type Page struct {
	Items   []*models.Delivery
	HasNext bool
}

// ClampLimit enforces the [1, 1000] delivery-listing limit (default 20)
// from SPEC_FULL.md §4.5.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func ClampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
