// Package models holds the entity types shared across every store and
// handler: App, Endpoint, Event, and Delivery. None of these types carry
// store-specific tags beyond what's needed for JSON projection; SQL mapping
// lives next to the pgx queries that build these values.
package models

import "time"

// Authentication is injected as the last header write before an outbound
// forward, overriding any header copied from the captured event.
type Authentication struct {
	HeaderName  string `json:"header_name"`
	HeaderValue string `json:"header_value"`
}

// App is a logical grouping of endpoints (e.g. per environment). Its CRUD
// surface lives outside this core; it is persisted here only so the
// ingest path and worker can resolve a hook_token end to end in a
// single-binary deployment.
type App struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Endpoint is one inbound webhook URL plus its forwarding configuration.
// HookToken is immutable once assigned and globally unique.
type Endpoint struct {
	ID                string          `json:"id"`
	AppID             string          `json:"app_id"`
	HookToken         string          `json:"hook_token"`
	ForwardURL        string          `json:"forward_url"`
	ForwardingEnabled bool            `json:"forwarding_enabled"`
	Authentication    *Authentication `json:"authentication,omitempty"`
	HTTPTimeoutMs     int             `json:"http_timeout_ms"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
}

const (
	DefaultHTTPTimeoutMs = 10_000
	MaxHTTPTimeoutMs     = 120_000
)

// Event is one captured inbound HTTP request, stored verbatim. Body is the
// exact byte sequence read off the wire; it is never re-serialized.
type Event struct {
	ID          string              `json:"id"`
	EndpointID  string              `json:"endpoint_id"`
	ReceivedAt  time.Time           `json:"received_at"`
	Method      string              `json:"method"`
	OriginalURL string              `json:"original_url"`
	SourceURL   string              `json:"source_url,omitempty"`
	Path        string              `json:"path"`
	Query       map[string][]string `json:"query"`
	Headers     map[string][]string `json:"headers"`
	Body        []byte              `json:"-"`
	SourceIP    string              `json:"source_ip"`
	UserAgent   string              `json:"user_agent"`
	SizeBytes   int                 `json:"size_bytes"`
}

// DeliveryStatus enumerates the outcome of one forwarding attempt.
type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusTimeout   DeliveryStatus = "timeout"
)

// Delivery is one forwarding attempt and its outcome. Deliveries are
// append-only; (EventID, ParentDeliveryID) is unique.
type Delivery struct {
	ID               string            `json:"id"`
	EventID          string            `json:"event_id"`
	ParentDeliveryID *string           `json:"parent_delivery_id,omitempty"`
	Status           DeliveryStatus    `json:"status"`
	DestinationURL   string            `json:"destination_url"`
	ResponseStatus   *int              `json:"response_status,omitempty"`
	ResponseHeaders  map[string]string `json:"response_headers,omitempty"`
	ResponseBody     []byte            `json:"-"`
	DurationMs       int64             `json:"duration_ms"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// ALLOWED_METHODS intentionally includes GET; preserved from the source
// despite being an unusual choice for webhook ingest (see SPEC_FULL.md §9b).
var AllowedIngestMethods = map[string]bool{
	"GET":   true,
	"POST":  true,
	"PUT":   true,
	"PATCH": true,
}

// ForwardHeaderAllowList is copied verbatim (case-insensitively) from the
// captured event onto the outbound forward request; everything else is
// dropped.
var ForwardHeaderAllowList = []string{
	"content-type",
	"content-encoding",
	"accept",
	"user-agent",
}

const (
	ForwardedHeaderName   = "X-Hookfreight-Forwarded"
	ForwardedTimestampHdr = "X-Hookfreight-Timestamp"
)
