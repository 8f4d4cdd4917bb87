// Package eventstore is the append-only Event Store (SPEC_FULL.md §4.2),
// structured as a driver interface plus two implementations — Postgres for
// production, an in-memory one for tests — mirroring the teacher's
// logstore/driver + memlogstore + pglogstore split.
package eventstore

import (
	"context"

	"github.com/hookfreight/hookfreight/internal/models"
)

type Store interface {
	Append(ctx context.Context, event *models.Event) (string, error)
	Get(ctx context.Context, eventID string) (*models.Event, error)
	ListByEndpoint(ctx context.Context, endpointID string, limit, offset int) (Page, error)
}

type Page struct {
	Items   []*models.Event
	HasNext bool
}

// ClampLimit enforces the [1, 50] event-listing limit from SPEC_FULL.md §4.2.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 50 {
		return 50
	}
	return limit
}

func ClampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
