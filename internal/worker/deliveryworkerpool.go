package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hookfreight/hookfreight/internal/deliveryjob"
	"github.com/hookfreight/hookfreight/internal/deliverystore"
	"github.com/hookfreight/hookfreight/internal/eventstore"
	"github.com/hookfreight/hookfreight/internal/forwarder"
	"github.com/hookfreight/hookfreight/internal/idempotence"
	"github.com/hookfreight/hookfreight/internal/models"
	"github.com/hookfreight/hookfreight/internal/registry"
	"github.com/hookfreight/hookfreight/internal/scheduler"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DeliveryWorkerPool is the Delivery Worker Pool of SPEC_FULL.md §4.4: a
// fixed-size goroutine pool (Concurrency), each goroutine polling
// Scheduler.Next for due jobs and sleeping idleBackoff when none is due.
// It implements the Worker interface so a WorkerSupervisor can run it
// alongside the HTTP server.
type DeliveryWorkerPool struct {
	Concurrency int
	MaxRetries  int
	BaseURL     string

	Registry    registry.Resolver
	Events      eventstore.Store
	Deliveries  deliverystore.Store
	Scheduler   *scheduler.Scheduler
	Forwarder   *forwarder.Forwarder
	Idempotence *idempotence.Idempotence
	Logger      *zap.Logger

	// idleBackoff is how long a worker sleeps after finding no due job,
	// to avoid a hot polling loop against Redis.
	idleBackoff time.Duration
	tracer      trace.Tracer
}

func NewDeliveryWorkerPool(
	reg registry.Resolver,
	events eventstore.Store,
	deliveries deliverystore.Store,
	sched *scheduler.Scheduler,
	fwd *forwarder.Forwarder,
	idem *idempotence.Idempotence,
	logger *zap.Logger,
	concurrency, maxRetries int,
	baseURL string,
) *DeliveryWorkerPool {
	if concurrency <= 0 {
		concurrency = deliveryjob.DefaultConcurrency
	}
	if maxRetries <= 0 {
		maxRetries = deliveryjob.DefaultMaxRetries
	}
	return &DeliveryWorkerPool{
		Concurrency: concurrency,
		MaxRetries:  maxRetries,
		BaseURL:     baseURL,
		Registry:    reg,
		Events:      events,
		Deliveries:  deliveries,
		Scheduler:   sched,
		Forwarder:   fwd,
		Idempotence: idem,
		Logger:      logger,
		idleBackoff: 250 * time.Millisecond,
		tracer:      otel.GetTracerProvider().Tracer("github.com/hookfreight/hookfreight/internal/worker"),
	}
}

func (p *DeliveryWorkerPool) Name() string { return "delivery-worker-pool" }

// Run starts Concurrency goroutines, each looping on Scheduler.Next until
// ctx is canceled.
func (p *DeliveryWorkerPool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (p *DeliveryWorkerPool) loop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.Scheduler.Next(ctx)
		if err != nil {
			if errors.Is(err, scheduler.ErrNoJobDue) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.idleBackoff):
				}
				continue
			}
			p.Logger.Error("scheduler next failed", zap.Int("worker", id), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.idleBackoff):
			}
			continue
		}

		if procErr := p.processJob(ctx, *job); procErr != nil {
			p.Logger.Error("process job failed", zap.String("job_id", job.ID), zap.Error(procErr))
		}
	}
}

// ProcessJobForTest exposes processJob to package worker_test, which needs
// to drive the per-job algorithm deterministically without the Run loop's
// polling and goroutines.
func (p *DeliveryWorkerPool) ProcessJobForTest(ctx context.Context, job scheduler.Job) error {
	return p.processJob(ctx, job)
}

// processJob implements the per-job algorithm of SPEC_FULL.md §4.4.
func (p *DeliveryWorkerPool) processJob(ctx context.Context, job scheduler.Job) error {
	// Idempotency on redelivery: a job that's already been fully processed
	// under this exact id AND attempt (e.g. handed out again by the
	// scheduler under the same attempt) must not be double-processed. The key must
	// include job.Attempt: Reschedule reuses job.ID across a retry chain, so
	// keying on job.ID alone would mark the whole chain "done" after its
	// first (successfully rescheduled) attempt and silently swallow every
	// subsequent retry.
	key := "job-" + job.ID + ":" + strconv.Itoa(job.Attempt)
	return p.Idempotence.Exec(ctx, key, func() error {
		return p.deliver(ctx, job)
	})
}

func (p *DeliveryWorkerPool) deliver(ctx context.Context, job scheduler.Job) error {
	ctx, span := p.tracer.Start(ctx, "DeliveryWorkerPool.Deliver", trace.WithAttributes(
		attribute.String("hookfreight.job_id", job.ID),
		attribute.String("hookfreight.event_id", job.EventID),
		attribute.Int("hookfreight.attempt", job.Attempt),
	))
	defer span.End()
	deliverErr := p.doDeliver(ctx, job)
	if deliverErr != nil {
		span.RecordError(deliverErr)
		span.SetStatus(codes.Error, deliverErr.Error())
	}
	return deliverErr
}

func (p *DeliveryWorkerPool) doDeliver(ctx context.Context, job scheduler.Job) error {
	event, endpoint, err := p.loadEventAndEndpoint(ctx, job.EventID, job.EndpointID)
	if err != nil {
		return p.abortBeforeDelivery(ctx, job, err)
	}

	if !endpoint.ForwardingEnabled || endpoint.ForwardURL == "" {
		return p.abortBeforeDelivery(ctx, job, errors.New("forwarding not enabled or URL not configured"))
	}

	selfForward, err := deliveryjob.IsSelfForward(endpoint.ForwardURL, p.BaseURL)
	if err != nil {
		return p.abortBeforeDelivery(ctx, job, fmt.Errorf("invalid forward_url: %w", err))
	}
	if selfForward {
		return p.abortBeforeDelivery(ctx, job, errors.New("forward URL points to a HookFreight webhook URL"))
	}

	now := time.Now()
	headers := deliveryjob.BuildOutboundHeaders(*event, *endpoint, now)

	timeoutMs := endpoint.HTTPTimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = models.DefaultHTTPTimeoutMs
	}

	result := p.Forwarder.Deliver(ctx, event.Method, endpoint.ForwardURL, headers, event.Body, time.Duration(timeoutMs)*time.Millisecond)

	delivery := &models.Delivery{
		EventID:          job.EventID,
		ParentDeliveryID: job.ParentDeliveryID,
		Status:           result.Status,
		DestinationURL:   endpoint.ForwardURL,
		ResponseStatus:   result.ResponseStatus,
		ResponseHeaders:  result.ResponseHeaders,
		ResponseBody:     result.ResponseBody,
		DurationMs:       result.DurationMs,
		ErrorMessage:     result.ErrorMessage,
	}
	deliveryID, err := p.Deliveries.Append(ctx, delivery)
	if err != nil {
		return deliveryjob.NewDeliveryError(fmt.Errorf("persisting delivery: %w", err))
	}

	// job.Attempt is 0-indexed (0 == the 1st send already made), so the
	// 1-indexed attempt number just completed is job.Attempt+1. A further
	// retry is only scheduled while that count is still below MaxRetries.
	if result.Retryable && job.Attempt+1 < p.MaxRetries {
		if err := p.Scheduler.Reschedule(ctx, job, deliveryID); err != nil {
			return deliveryjob.NewPostDeliveryError(fmt.Errorf("rescheduling retry: %w", err))
		}
		return nil
	}

	if result.Status == models.DeliveryStatusDelivered {
		if err := p.Scheduler.Complete(ctx, job.ID); err != nil {
			return deliveryjob.NewPostDeliveryError(err)
		}
		return nil
	}

	// Non-retryable failure, or a retryable one whose chain is now
	// exhausted: retained under the scheduler's failed-job bookkeeping
	// rather than its completed one.
	if err := p.Scheduler.Fail(ctx, job.ID); err != nil {
		return deliveryjob.NewPostDeliveryError(err)
	}
	return nil
}

// abortBeforeDelivery handles a failure discovered before any HTTP attempt
// was made (missing event/endpoint, forwarding disabled, self-forward guard
// tripped). cause is tagged as a PreDeliveryError for logging so it reads
// distinctly from a failed attempt or a bookkeeping failure afterward; the
// terminal Delivery record itself still stores the plain cause message.
func (p *DeliveryWorkerPool) abortBeforeDelivery(ctx context.Context, job scheduler.Job, cause error) error {
	p.Logger.Warn("delivery aborted before attempt",
		zap.String("job_id", job.ID),
		zap.Error(deliveryjob.NewPreDeliveryError(cause)),
	)
	return p.recordTerminalFailure(ctx, job, cause.Error())
}

func (p *DeliveryWorkerPool) loadEventAndEndpoint(ctx context.Context, eventID, endpointID string) (*models.Event, *models.Endpoint, error) {
	var event *models.Event
	var endpoint *models.Endpoint

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := p.Events.Get(gctx, eventID)
		if err != nil {
			return fmt.Errorf("event %s not found: %w", eventID, err)
		}
		event = e
		return nil
	})
	g.Go(func() error {
		ep, err := p.Registry.GetEndpoint(gctx, endpointID)
		if err != nil {
			return fmt.Errorf("endpoint %s not found: %w", endpointID, err)
		}
		endpoint = ep
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return event, endpoint, nil
}

// recordTerminalFailure writes a non-retryable failed Delivery and marks the
// job failed (not completed), used when the referent is gone or forwarding
// is misconfigured.
func (p *DeliveryWorkerPool) recordTerminalFailure(ctx context.Context, job scheduler.Job, message string) error {
	delivery := &models.Delivery{
		EventID:          job.EventID,
		ParentDeliveryID: job.ParentDeliveryID,
		Status:           models.DeliveryStatusFailed,
		ErrorMessage:     message,
	}
	if _, err := p.Deliveries.Append(ctx, delivery); err != nil {
		if !errors.Is(err, models.ErrDuplicateDelivery) {
			return deliveryjob.NewPostDeliveryError(fmt.Errorf("persisting terminal failure: %w", err))
		}
	}
	if err := p.Scheduler.Fail(ctx, job.ID); err != nil {
		return deliveryjob.NewPostDeliveryError(err)
	}
	return nil
}
