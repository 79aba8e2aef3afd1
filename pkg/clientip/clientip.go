// Package clientip derives the originating client IP from request headers
// under a configurable proxy-trust policy.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Unknown is returned when no trustworthy client IP can be derived.
const Unknown = "unknown"

// Policy controls which proxy-supplied headers are believed.
type Policy struct {
	// TrustProxyHeaders enables X-Forwarded-For handling.
	TrustProxyHeaders bool

	// TrustSingleXFF accepts a single-value X-Forwarded-For header. A
	// single value can be set by the client itself, so this is off unless
	// the deployment guarantees a proxy always appends.
	TrustSingleXFF bool

	// SharedSecretHeader, when set together with SharedSecret, gates all
	// proxy-supplied headers: they are believed only when the request
	// carries the secret.
	SharedSecretHeader string
	SharedSecret       string
}

// Resolve returns the originating client IP for a request, or Unknown.
//
// CF-Connecting-IP is preferred regardless of proxy trust since it is
// enforced by the upstream edge. X-Forwarded-For is consulted only under
// the policy; the last entry in the list is the originator.
func Resolve(h http.Header, remoteAddr string, p Policy) string {
	if p.SharedSecretHeader != "" {
		if p.SharedSecret == "" || h.Get(p.SharedSecretHeader) != p.SharedSecret {
			return Unknown
		}
	}

	if cf := strings.TrimSpace(h.Get("CF-Connecting-IP")); cf != "" {
		if validIP(cf) {
			return cf
		}
		return Unknown
	}

	if p.TrustProxyHeaders {
		if xff := h.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 1 || p.TrustSingleXFF {
				candidate := strings.TrimSpace(parts[len(parts)-1])
				if validIP(candidate) {
					return candidate
				}
				return Unknown
			}
		}
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && validIP(host) {
		return host
	}
	if validIP(remoteAddr) {
		return remoteAddr
	}
	return Unknown
}

func validIP(s string) bool {
	return net.ParseIP(s) != nil
}
