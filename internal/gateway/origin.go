// ABOUTME: Origin allowlist applied to WebSocket handshakes before authentication
// ABOUTME: Derives the host patterns coder/websocket needs for cross-origin upgrades

package gateway

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

var errOriginNotAllowed = errors.New("origin not allowed")

// originPolicy decides which browser origins may open a session. Requests
// without an Origin header come from native clients and are always allowed.
type originPolicy struct {
	allowed  []string
	allowAll bool
	patterns []string
}

// newOriginPolicy builds a policy from the configured allowlist. An empty
// list or a "*" entry allows every origin.
func newOriginPolicy(allowed []string) *originPolicy {
	p := &originPolicy{}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			p.allowAll = true
		}
		p.allowed = append(p.allowed, a)
	}
	if len(p.allowed) == 0 {
		p.allowAll = true
	}

	for _, a := range p.allowed {
		if h := originHost(a); h != "" && h != "*" && !slices.Contains(p.patterns, h) {
			p.patterns = append(p.patterns, h)
		}
	}
	slices.Sort(p.patterns)
	return p
}

// check returns errOriginNotAllowed when r carries an Origin outside the allowlist.
func (p *originPolicy) check(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || p.allowAll {
		return nil
	}
	host := originHost(origin)
	for _, a := range p.allowed {
		// Full origin match, then host-only match ignoring scheme and port.
		if origin == a || (host != "" && host == originHost(a)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", errOriginNotAllowed, origin)
}

// originHost extracts the lower-cased host from a URL or host[:port] string.
func originHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}
