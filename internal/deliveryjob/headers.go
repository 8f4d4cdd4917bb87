package deliveryjob

import (
	"time"

	"github.com/hookfreight/hookfreight/internal/models"
)

// BuildOutboundHeaders implements SPEC_FULL.md §4.4 step 4: copy only the
// allow-listed headers from the captured event (collapsing multi-values to
// their first), stamp the two forwarding markers, then apply the
// endpoint's static authentication header last so it always wins.
func BuildOutboundHeaders(event models.Event, endpoint models.Endpoint, now time.Time) map[string]string {
	headers := make(map[string]string, len(models.ForwardHeaderAllowList)+3)

	lowerEventHeaders := make(map[string][]string, len(event.Headers))
	for k, v := range event.Headers {
		lowerEventHeaders[normalizeHeaderName(k)] = v
	}

	for _, allowed := range models.ForwardHeaderAllowList {
		if values, ok := lowerEventHeaders[normalizeHeaderName(allowed)]; ok && len(values) > 0 {
			headers[allowed] = values[0]
		}
	}

	headers[models.ForwardedHeaderName] = "true"
	headers[models.ForwardedTimestampHdr] = now.UTC().Format(time.RFC3339)

	if endpoint.Authentication != nil {
		headers[endpoint.Authentication.HeaderName] = endpoint.Authentication.HeaderValue
	}

	return headers
}

func normalizeHeaderName(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
