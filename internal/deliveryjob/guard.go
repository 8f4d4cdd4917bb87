// Package deliveryjob holds the pure per-job decision logic the delivery
// worker pool applies to every attempt (SPEC_FULL.md §4.4): the self-forward
// guard and outbound header construction. Kept free of I/O so it can be
// tested without a Redis, Postgres, or HTTP fixture.
package deliveryjob

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var hookTokenPathPattern = regexp.MustCompile(`^/[A-Fa-f0-9]{24}$`)

var defaultPortByScheme = map[string]string{
	"http":  "80",
	"https": "443",
}

// IsSelfForward reports whether forwardURL points back at this deployment's
// own ingest endpoint: same host:port as baseURL (default port inferred
// from scheme when absent) and a path shaped like /{hook_token}. Forwarding
// to such a URL would create a trivial infinite loop.
func IsSelfForward(forwardURL, baseURL string) (bool, error) {
	fu, err := url.Parse(forwardURL)
	if err != nil {
		return false, fmt.Errorf("parsing forward_url: %w", err)
	}
	bu, err := url.Parse(baseURL)
	if err != nil {
		return false, fmt.Errorf("parsing base url: %w", err)
	}

	if !hookTokenPathPattern.MatchString(fu.Path) {
		return false, nil
	}

	return hostPort(fu) == hostPort(bu), nil
}

func hostPort(u *url.URL) string {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = defaultPortByScheme[strings.ToLower(u.Scheme)]
	}
	return net.JoinHostPort(host, port)
}
