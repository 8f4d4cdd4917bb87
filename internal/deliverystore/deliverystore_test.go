package deliverystore_test

import (
	"context"
	"testing"

	"github.com/hookfreight/hookfreight/internal/deliverystore"
	"github.com/hookfreight/hookfreight/internal/models"
	"github.com/stretchr/testify/require"
)

func TestAppendEnforcesEventParentUniqueness(t *testing.T) {
	ctx := context.Background()
	store := deliverystore.NewMemStore()

	d1 := &models.Delivery{ID: "dlv_1", EventID: "evt_1", Status: models.DeliveryStatusDelivered}
	_, err := store.Append(ctx, d1)
	require.NoError(t, err)

	dup := &models.Delivery{ID: "dlv_2", EventID: "evt_1", Status: models.DeliveryStatusFailed}
	_, err = store.Append(ctx, dup)
	require.ErrorIs(t, err, models.ErrDuplicateDelivery)
}

func TestAppendAllowsDistinctParentChain(t *testing.T) {
	ctx := context.Background()
	store := deliverystore.NewMemStore()

	root := &models.Delivery{ID: "dlv_1", EventID: "evt_1", Status: models.DeliveryStatusFailed}
	_, err := store.Append(ctx, root)
	require.NoError(t, err)

	parent := "dlv_1"
	child := &models.Delivery{ID: "dlv_2", EventID: "evt_1", ParentDeliveryID: &parent, Status: models.DeliveryStatusDelivered}
	_, err = store.Append(ctx, child)
	require.NoError(t, err)

	page, err := store.GetByEvent(ctx, "evt_1", 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
}

func TestGetByEventClampsDefaultLimit(t *testing.T) {
	require.Equal(t, 20, deliverystore.ClampLimit(0))
	require.Equal(t, 1000, deliverystore.ClampLimit(5000))
	require.Equal(t, 1, deliverystore.ClampLimit(1))
}

func TestGetMissingDeliveryReturnsNotFound(t *testing.T) {
	store := deliverystore.NewMemStore()
	_, err := store.Get(context.Background(), "dlv_missing")
	require.ErrorIs(t, err, models.ErrDeliveryNotFound)
}
