package worker_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hookfreight/hookfreight/internal/backoff"
	"github.com/hookfreight/hookfreight/internal/deliveryjob"
	"github.com/hookfreight/hookfreight/internal/deliverystore"
	"github.com/hookfreight/hookfreight/internal/eventstore"
	"github.com/hookfreight/hookfreight/internal/forwarder"
	"github.com/hookfreight/hookfreight/internal/idempotence"
	"github.com/hookfreight/hookfreight/internal/models"
	"github.com/hookfreight/hookfreight/internal/scheduler"
	"github.com/hookfreight/hookfreight/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// failingDeliveryStore always fails Append, used to exercise the
// DeliveryError tier returned when persisting a delivery attempt's outcome
// fails.
type failingDeliveryStore struct {
	deliverystore.Store
}

func (f *failingDeliveryStore) Append(ctx context.Context, delivery *models.Delivery) (string, error) {
	return "", errors.New("write failed")
}

type fakeResolver struct {
	endpoints map[string]*models.Endpoint
}

func (f *fakeResolver) GetEndpoint(ctx context.Context, endpointID string) (*models.Endpoint, error) {
	ep, ok := f.endpoints[endpointID]
	if !ok {
		return nil, models.ErrEndpointNotFound
	}
	return ep, nil
}

func newHarness(t *testing.T, endpoints map[string]*models.Endpoint) (*worker.DeliveryWorkerPool, eventstore.Store, deliverystore.Store, *scheduler.Scheduler) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bo := &backoff.ExponentialBackoff{Interval: time.Millisecond, Base: 2}
	sched := scheduler.New(client, bo)

	events := eventstore.NewMemStore()
	deliveries := deliverystore.NewMemStore()
	idem := idempotence.New(client, idempotence.WithKeyPrefix("test-idem:"))

	pool := worker.NewDeliveryWorkerPool(
		&fakeResolver{endpoints: endpoints},
		events, deliveries, sched, forwarder.New(), idem,
		zap.NewNop(), 1, 3, "https://hooks.example.com",
	)
	return pool, events, deliveries, sched
}

func TestDeliveryWorkerPoolDeliversSuccessfully(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	endpoint := &models.Endpoint{ID: "end_1", ForwardingEnabled: true, ForwardURL: srv.URL, HTTPTimeoutMs: 1000}
	pool, events, deliveries, sched := newHarness(t, map[string]*models.Endpoint{"end_1": endpoint})

	ctx := context.Background()
	eventID, err := events.Append(ctx, &models.Event{EndpointID: "end_1", Method: "POST", Body: []byte("hi")})
	require.NoError(t, err)
	require.NoError(t, sched.Enqueue(ctx, eventID, "end_1"))

	job, err := sched.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, processOne(t, pool, ctx, *job))

	page, err := deliveries.GetByEvent(ctx, eventID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, models.DeliveryStatusDelivered, page.Items[0].Status)
}

func TestDeliveryWorkerPoolRecordsTerminalFailureWhenForwardingDisabled(t *testing.T) {
	endpoint := &models.Endpoint{ID: "end_1", ForwardingEnabled: false}
	pool, events, deliveries, sched := newHarness(t, map[string]*models.Endpoint{"end_1": endpoint})

	ctx := context.Background()
	eventID, err := events.Append(ctx, &models.Event{EndpointID: "end_1", Method: "POST"})
	require.NoError(t, err)
	require.NoError(t, sched.Enqueue(ctx, eventID, "end_1"))

	job, err := sched.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, processOne(t, pool, ctx, *job))

	page, err := deliveries.GetByEvent(ctx, eventID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, models.DeliveryStatusFailed, page.Items[0].Status)
	require.Equal(t, "forwarding not enabled or URL not configured", page.Items[0].ErrorMessage)

	counts, err := sched.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts.Failed)
}

func TestDeliveryWorkerPoolBlocksSelfForward(t *testing.T) {
	endpoint := &models.Endpoint{
		ID: "end_1", ForwardingEnabled: true,
		ForwardURL: "https://hooks.example.com/abcdef0123456789abcdef01",
	}
	pool, events, deliveries, sched := newHarness(t, map[string]*models.Endpoint{"end_1": endpoint})

	ctx := context.Background()
	eventID, err := events.Append(ctx, &models.Event{EndpointID: "end_1", Method: "POST"})
	require.NoError(t, err)
	require.NoError(t, sched.Enqueue(ctx, eventID, "end_1"))

	job, err := sched.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, processOne(t, pool, ctx, *job))

	page, err := deliveries.GetByEvent(ctx, eventID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, "forward URL points to a HookFreight webhook URL", page.Items[0].ErrorMessage)
}

func TestDeliveryWorkerPoolWrapsPersistFailureAsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	endpoint := &models.Endpoint{ID: "end_1", ForwardingEnabled: true, ForwardURL: srv.URL, HTTPTimeoutMs: 1000}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bo := &backoff.ExponentialBackoff{Interval: time.Millisecond, Base: 2}
	sched := scheduler.New(client, bo)
	events := eventstore.NewMemStore()
	idem := idempotence.New(client, idempotence.WithKeyPrefix("test-idem:"))

	pool := worker.NewDeliveryWorkerPool(
		&fakeResolver{endpoints: map[string]*models.Endpoint{"end_1": endpoint}},
		events, &failingDeliveryStore{}, sched, forwarder.New(), idem,
		zap.NewNop(), 1, 3, "https://hooks.example.com",
	)

	ctx := context.Background()
	eventID, err := events.Append(ctx, &models.Event{EndpointID: "end_1", Method: "POST", Body: []byte("hi")})
	require.NoError(t, err)
	require.NoError(t, sched.Enqueue(ctx, eventID, "end_1"))

	job, err := sched.Next(ctx)
	require.NoError(t, err)

	procErr := processOne(t, pool, ctx, *job)
	require.Error(t, procErr)
	var delErr *deliveryjob.DeliveryError
	require.ErrorAs(t, procErr, &delErr)
}

// TestDeliveryWorkerPoolRetriesThroughFullChain drives repeated 500s through
// real Scheduler.Next/Reschedule dequeues (not just one processJob call), the
// way the Run loop actually would. It guards against keying the idempotence
// guard on job.ID alone: since Reschedule reuses the same job id across a
// retry chain, that would mark the chain "done" after the first reschedule
// and silently swallow every later dequeue of it.
func TestDeliveryWorkerPoolRetriesThroughFullChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	endpoint := &models.Endpoint{ID: "end_1", ForwardingEnabled: true, ForwardURL: srv.URL, HTTPTimeoutMs: 1000}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bo := &backoff.ExponentialBackoff{Interval: time.Millisecond, Base: 2}
	sched := scheduler.New(client, bo)
	events := eventstore.NewMemStore()
	deliveries := deliverystore.NewMemStore()
	idem := idempotence.New(client, idempotence.WithKeyPrefix("test-idem:"))

	const maxRetries = 3
	pool := worker.NewDeliveryWorkerPool(
		&fakeResolver{endpoints: map[string]*models.Endpoint{"end_1": endpoint}},
		events, deliveries, sched, forwarder.New(), idem,
		zap.NewNop(), 1, maxRetries, "https://hooks.example.com",
	)

	ctx := context.Background()
	eventID, err := events.Append(ctx, &models.Event{EndpointID: "end_1", Method: "POST", Body: []byte("hi")})
	require.NoError(t, err)
	require.NoError(t, sched.Enqueue(ctx, eventID, "end_1"))

	for attempt := 0; attempt < maxRetries; attempt++ {
		var job *scheduler.Job
		require.Eventually(t, func() bool {
			j, err := sched.Next(ctx)
			if err != nil {
				return false
			}
			job = j
			return true
		}, time.Second, time.Millisecond)

		require.Equal(t, attempt, job.Attempt)
		require.NoError(t, processOne(t, pool, ctx, *job))
	}

	page, err := deliveries.GetByEvent(ctx, eventID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, maxRetries)
	for _, d := range page.Items {
		require.Equal(t, models.DeliveryStatusFailed, d.Status)
	}

	_, err = sched.Next(ctx)
	require.ErrorIs(t, err, scheduler.ErrNoJobDue)

	counts, err := sched.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts.Failed)
	require.Equal(t, int64(0), counts.Completed)
	require.Equal(t, int64(0), counts.Active)
}

// processOne exercises DeliveryWorkerPool's per-job algorithm directly
// without spinning up the full Run loop, keeping these tests deterministic.
func processOne(t *testing.T, pool *worker.DeliveryWorkerPool, ctx context.Context, job scheduler.Job) error {
	t.Helper()
	return pool.ProcessJobForTest(ctx, job)
}
