// Package forwarder executes the outbound HTTP request for one delivery
// attempt and classifies its result into the outcome table of SPEC_FULL.md
// §4.4, grounded on destwebhook/httphelper.go's ExecuteHTTPRequest /
// ClassifyNetworkError / ParseHTTPResponse.
package forwarder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hookfreight/hookfreight/internal/models"
)

// Result carries everything the worker needs to build a Delivery record.
type Result struct {
	Status          models.DeliveryStatus
	Retryable       bool
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    []byte
	DurationMs      int64
	ErrorMessage    string
}

// Forwarder executes outbound HTTP requests on behalf of the delivery
// worker pool. A single shared client is reused across attempts; per-attempt
// timeout is applied via context, not per-request client construction.
type Forwarder struct {
	client *http.Client
}

func New() *Forwarder {
	return &Forwarder{client: &http.Client{}}
}

// Deliver sends method/body to url with the given headers, bounded by
// timeout, and classifies the outcome per the table in SPEC_FULL.md §4.4.
func (f *Forwarder) Deliver(ctx context.Context, method, url string, headers map[string]string, body []byte, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return Result{
			Status:       models.DeliveryStatusFailed,
			Retryable:    false,
			ErrorMessage: fmt.Sprintf("building forward request: %s", err),
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{
				Status:       models.DeliveryStatusTimeout,
				Retryable:    true,
				DurationMs:   durationMs,
				ErrorMessage: "request aborted by timeout",
			}
		}
		return Result{
			Status:       models.DeliveryStatusFailed,
			Retryable:    true,
			DurationMs:   durationMs,
			ErrorMessage: classifyNetworkError(err),
		}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	respHeaders := firstValueHeaders(resp.Header)
	code := resp.StatusCode

	switch {
	case code >= 200 && code < 300:
		return Result{
			Status:          models.DeliveryStatusDelivered,
			Retryable:       false,
			ResponseStatus:  &code,
			ResponseHeaders: respHeaders,
			ResponseBody:    respBody,
			DurationMs:      durationMs,
		}
	case code >= 400 && code < 500:
		return Result{
			Status:          models.DeliveryStatusFailed,
			Retryable:       false,
			ResponseStatus:  &code,
			ResponseHeaders: respHeaders,
			ResponseBody:    respBody,
			DurationMs:      durationMs,
			ErrorMessage:    fmt.Sprintf("destination responded %d", code),
		}
	default: // code >= 500, or a 3xx the client returned without following
		return Result{
			Status:          models.DeliveryStatusFailed,
			Retryable:       true,
			ResponseStatus:  &code,
			ResponseHeaders: respHeaders,
			ResponseBody:    respBody,
			DurationMs:      durationMs,
			ErrorMessage:    fmt.Sprintf("destination responded %d", code),
		}
	}
}

func firstValueHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// classifyNetworkError mirrors destwebhook/httphelper.go's
// ClassifyNetworkError, generalized into a human-readable error_message
// rather than a short code, since this core has no destination-provider
// concept to key an error code against.
func classifyNetworkError(err error) string {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "no such host"):
		return "dns lookup failed: " + errStr
	case strings.Contains(errStr, "connection refused"):
		return "connection refused: " + errStr
	case strings.Contains(errStr, "connection reset"):
		return "connection reset: " + errStr
	case strings.Contains(errStr, "network is unreachable"):
		return "network unreachable: " + errStr
	case strings.Contains(errStr, "tls:") || strings.Contains(errStr, "x509:"):
		return "tls error: " + errStr
	case strings.Contains(errStr, "too many redirects") || strings.Contains(errStr, "stopped after"):
		return "too many redirects: " + errStr
	default:
		return "transport error: " + errStr
	}
}
