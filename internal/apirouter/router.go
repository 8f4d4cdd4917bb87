// Package apirouter is the minimal read/replay API of SPEC_FULL.md §6: a
// thin gin router exposing the Event Store, Delivery Store, and Scheduler's
// manual retry operation, grounded in the teacher's apirouter.go
// route-table + middleware-chain pattern and trimmed of everything
// tenancy/destination/portal-specific that doesn't apply to this core.
package apirouter

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/hookfreight/hookfreight/internal/deliverystore"
	"github.com/hookfreight/hookfreight/internal/eventstore"
	"github.com/hookfreight/hookfreight/internal/worker"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// SchedulerRetry is the narrow scheduler surface the retry endpoint needs.
type SchedulerRetry interface {
	EnqueueRetry(ctx context.Context, deliveryID, eventID, endpointID string) error
}

type RouterDeps struct {
	Events     eventstore.Store
	Deliveries deliverystore.Store
	Scheduler  SchedulerRetry
	Logger     *zap.Logger
}

func (d RouterDeps) validate() error {
	if d.Events == nil {
		return errRequired("Events")
	}
	if d.Deliveries == nil {
		return errRequired("Deliveries")
	}
	if d.Scheduler == nil {
		return errRequired("Scheduler")
	}
	if d.Logger == nil {
		return errRequired("Logger")
	}
	return nil
}

func errRequired(field string) error {
	return &missingDepError{field: field}
}

type missingDepError struct{ field string }

func (e *missingDepError) Error() string { return "apirouter: " + e.field + " is required" }

type Router struct {
	deps   RouterDeps
	health *worker.HealthTracker
	engine *gin.Engine
}

// New builds the gin.Engine serving the route table of SPEC_FULL.md §6.
// health lets /healthz report the delivery worker pool's status alongside
// the HTTP server's own liveness.
func New(deps RouterDeps, health *worker.HealthTracker, ginMode string) (*Router, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	gin.SetMode(ginMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("hookfreight"))
	engine.Use(ErrorHandlerMiddleware())

	rt := &Router{deps: deps, health: health, engine: engine}
	rt.registerRoutes()
	return rt, nil
}

func (rt *Router) registerRoutes() {
	rt.engine.GET("/healthz", rt.healthz)

	v1 := rt.engine.Group("/api/v1")
	v1.GET("/endpoints/:endpointID/events", rt.listEventsByEndpoint)
	v1.GET("/events/:eventID", rt.getEvent)
	v1.GET("/events/:eventID/deliveries", rt.listDeliveriesByEvent)
	v1.GET("/deliveries/:deliveryID", rt.getDelivery)
	v1.POST("/deliveries/:deliveryID/retry", rt.retryDelivery)
}

func (rt *Router) Handler() *gin.Engine { return rt.engine }
