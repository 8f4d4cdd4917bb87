package apirouter

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/hookfreight/hookfreight/internal/deliverystore"
	"github.com/hookfreight/hookfreight/internal/models"
)

// pageParams is bound via gin's default validator engine
// (go-playground/validator/v10), rejecting a negative limit or offset before
// either ever reaches a store's ClampLimit.
type pageParams struct {
	Limit  int `form:"limit" binding:"omitempty,min=0"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// parsePageParams binds and validates limit/offset query params, writing the
// spec's validation_error envelope and returning ok=false on failure.
func parsePageParams(c *gin.Context) (limit, offset int, ok bool) {
	var params pageParams
	if err := c.ShouldBindQuery(&params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			c.Error(NewErrValidation(fe.Field(), fe.Tag(), "must be a non-negative integer"))
			return 0, 0, false
		}
		c.Error(NewErrValidation("limit", "invalid", "limit and offset must be non-negative integers"))
		return 0, 0, false
	}
	return params.Limit, params.Offset, true
}

// listEventsByEndpoint handles GET /api/v1/endpoints/:endpointID/events.
func (rt *Router) listEventsByEndpoint(c *gin.Context) {
	endpointID := c.Param("endpointID")
	limit, offset, ok := parsePageParams(c)
	if !ok {
		return
	}

	page, err := rt.deps.Events.ListByEndpoint(c.Request.Context(), endpointID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "ok",
		"data": gin.H{
			"items":    eventSummaries(page.Items),
			"has_next": page.HasNext,
		},
	})
}

func eventSummaries(events []*models.Event) []gin.H {
	out := make([]gin.H, 0, len(events))
	for _, e := range events {
		out = append(out, gin.H{
			"id":           e.ID,
			"endpoint_id":  e.EndpointID,
			"received_at":  e.ReceivedAt,
			"method":       e.Method,
			"original_url": e.OriginalURL,
			"source_url":   e.SourceURL,
			"path":         e.Path,
			"size_bytes":   e.SizeBytes,
		})
	}
	return out
}

// getEvent handles GET /api/v1/events/:eventID.
func (rt *Router) getEvent(c *gin.Context) {
	eventID := c.Param("eventID")
	event, err := rt.deps.Events.Get(c.Request.Context(), eventID)
	if err != nil {
		c.Error(asNotFound(err, "event"))
		return
	}

	body, decodeErr := deliverystore.ProjectEventBody(event.Body, firstHeaderValue(event.Headers, "Content-Type"), firstHeaderValue(event.Headers, "Content-Encoding"))
	if decodeErr != nil {
		body = base64.StdEncoding.EncodeToString(event.Body)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "ok",
		"data": gin.H{
			"id":           event.ID,
			"endpoint_id":  event.EndpointID,
			"received_at":  event.ReceivedAt,
			"method":       event.Method,
			"original_url": event.OriginalURL,
			"source_url":   event.SourceURL,
			"path":         event.Path,
			"query":        event.Query,
			"headers":      event.Headers,
			"body":         body,
			"source_ip":    event.SourceIP,
			"user_agent":   event.UserAgent,
			"size_bytes":   event.SizeBytes,
		},
	})
}

func firstHeaderValue(headers map[string][]string, key string) string {
	for k, v := range headers {
		if equalFoldASCII(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// listDeliveriesByEvent handles GET /api/v1/events/:eventID/deliveries.
func (rt *Router) listDeliveriesByEvent(c *gin.Context) {
	eventID := c.Param("eventID")
	limit, offset, ok := parsePageParams(c)
	if !ok {
		return
	}

	page, err := rt.deps.Deliveries.GetByEvent(c.Request.Context(), eventID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	items := make([]gin.H, 0, len(page.Items))
	for _, d := range page.Items {
		items = append(items, deliverySummary(d))
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "ok",
		"data": gin.H{
			"items":    items,
			"has_next": page.HasNext,
		},
	})
}

func deliverySummary(d *models.Delivery) gin.H {
	return gin.H{
		"id":                 d.ID,
		"event_id":           d.EventID,
		"parent_delivery_id": d.ParentDeliveryID,
		"status":             d.Status,
		"destination_url":    d.DestinationURL,
		"response_status":    d.ResponseStatus,
		"duration_ms":        d.DurationMs,
		"error_message":      d.ErrorMessage,
		"created_at":         d.CreatedAt,
	}
}

// getDelivery handles GET /api/v1/deliveries/:deliveryID.
func (rt *Router) getDelivery(c *gin.Context) {
	deliveryID := c.Param("deliveryID")
	delivery, err := rt.deps.Deliveries.Get(c.Request.Context(), deliveryID)
	if err != nil {
		c.Error(asNotFound(err, "delivery"))
		return
	}

	summary := deliverySummary(delivery)
	summary["response_headers"] = delivery.ResponseHeaders
	summary["response_body"] = deliverystore.ProjectResponseBody(delivery.ResponseBody)

	c.JSON(http.StatusOK, gin.H{"message": "ok", "data": summary})
}

// retryDelivery handles POST /api/v1/deliveries/:deliveryID/retry.
func (rt *Router) retryDelivery(c *gin.Context) {
	deliveryID := c.Param("deliveryID")

	delivery, err := rt.deps.Deliveries.Get(c.Request.Context(), deliveryID)
	if err != nil {
		c.Error(asNotFound(err, "delivery"))
		return
	}
	event, err := rt.deps.Events.Get(c.Request.Context(), delivery.EventID)
	if err != nil {
		c.Error(asNotFound(err, "event"))
		return
	}

	if err := rt.deps.Scheduler.EnqueueRetry(c.Request.Context(), delivery.ID, event.ID, event.EndpointID); err != nil {
		c.Error(NewErrInternalServer(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "retry_scheduled", "data": nil})
}

func asNotFound(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrEventNotFound) || errors.Is(err, models.ErrEndpointNotFound) ||
		errors.Is(err, models.ErrDeliveryNotFound) || errors.Is(err, models.ErrAppNotFound) {
		return NewErrNotFound(resource)
	}
	return NewErrInternalServer(err)
}

// healthz handles GET /healthz.
func (rt *Router) healthz(c *gin.Context) {
	status := rt.health.GetStatus()
	c.JSON(http.StatusOK, status)
}
