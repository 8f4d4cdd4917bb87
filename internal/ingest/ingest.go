// Package ingest implements the capture-and-enqueue contract of
// SPEC_FULL.md §4.1: accept any method/content-type at /{hook_token},
// capture the raw body before any parsing, persist an Event, and
// fire-and-forget an enqueue into the Delivery Scheduler.
package ingest

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hookfreight/hookfreight/internal/eventstore"
	"github.com/hookfreight/hookfreight/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// EndpointLookup is the narrow registry read the ingest path needs.
type EndpointLookup interface {
	GetEndpointByHookToken(ctx context.Context, hookToken string) (*models.Endpoint, error)
}

// Scheduler is the narrow scheduler write the ingest path needs.
type Scheduler interface {
	Enqueue(ctx context.Context, eventID, endpointID string) error
}

// Handler implements the ingest endpoint.
type Handler struct {
	Endpoints    EndpointLookup
	Events       eventstore.Store
	Scheduler    Scheduler
	MaxBodyBytes int64
	Logger       *zap.Logger
	tracer       trace.Tracer
}

func NewHandler(endpoints EndpointLookup, events eventstore.Store, sched Scheduler, maxBodyBytes int64, logger *zap.Logger) *Handler {
	return &Handler{
		Endpoints:    endpoints,
		Events:       events,
		Scheduler:    sched,
		MaxBodyBytes: maxBodyBytes,
		Logger:       logger,
		tracer:       otel.GetTracerProvider().Tracer("github.com/hookfreight/hookfreight/internal/ingest"),
	}
}

// Capture is the gin.HandlerFunc registered at ANY /:hookToken.
func (h *Handler) Capture(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "ingest.Capture")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	method := strings.ToUpper(c.Request.Method)
	if !models.AllowedIngestMethods[method] {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"message": "method_not_allowed", "data": nil})
		return
	}

	hookToken := c.Param("hookToken")
	span.SetAttributes(attribute.String("hookfreight.hook_token", hookToken))
	endpoint, err := h.Endpoints.GetEndpointByHookToken(c.Request.Context(), hookToken)
	if err != nil {
		span.SetStatus(codes.Error, "endpoint not found")
		c.JSON(http.StatusNotFound, gin.H{"message": "endpoint_not_found", "data": nil})
		return
	}

	limitedBody := http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBodyBytes)
	body, err := io.ReadAll(limitedBody)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "payload_too_large", "data": nil})
		return
	}

	originalURL := reconstructURL(c.Request)
	sourceURL := deriveSourceURL(c.Request)

	event := &models.Event{
		EndpointID:  endpoint.ID,
		Method:      method,
		OriginalURL: originalURL,
		SourceURL:   sourceURL,
		Path:        c.Request.URL.Path,
		Query:       map[string][]string(c.Request.URL.Query()),
		Headers:     map[string][]string(c.Request.Header),
		Body:        body,
		SourceIP:    clientIP(c.Request),
		UserAgent:   c.Request.UserAgent(),
		SizeBytes:   len(body),
	}

	eventID, err := h.Events.Append(c.Request.Context(), event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist captured event")
		h.Logger.Error("failed to persist captured event", zap.Error(err), zap.String("endpoint_id", endpoint.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "an error occured, please try again later.", "data": nil})
		return
	}
	span.SetAttributes(attribute.String("hookfreight.event_id", eventID))

	if err := h.Scheduler.Enqueue(c.Request.Context(), eventID, endpoint.ID); err != nil {
		span.RecordError(err)
		// Fire-and-forget: the event is durably stored regardless, so a
		// scheduling failure does not block the 200 response.
		h.Logger.Error("failed to enqueue delivery job", zap.Error(err), zap.String("event_id", eventID))
	}

	c.JSON(http.StatusOK, gin.H{"message": "event_created", "data": nil})
}

// reconstructURL prefers X-Forwarded-Proto/X-Forwarded-Host (first
// comma-separated token, trimmed) over the connection's own scheme/host.
func reconstructURL(r *http.Request) string {
	scheme := firstForwardedToken(r.Header.Get("X-Forwarded-Proto"))
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}

	host := firstForwardedToken(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}

	u := url.URL{Scheme: scheme, Host: host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	return u.String()
}

func firstForwardedToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Split(header, ",")
	return strings.TrimSpace(parts[0])
}

func deriveSourceURL(r *http.Request) string {
	for _, header := range []string{"Origin", "Referer", "X-Webhook-Source"} {
		if v := r.Header.Get(header); v != "" {
			return v
		}
	}
	return ""
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
