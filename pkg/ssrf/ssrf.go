// Package ssrf classifies user-supplied URLs before any outbound request.
//
// The filter blocks destinations that resolve into private, loopback,
// link-local, or unspecified address space, in both IPv4 and IPv6 forms
// (including ::ffff: IPv4-mapped addresses), and rejects plain HTTP unless
// explicitly allowed by configuration. Failure reasons are stable strings.
package ssrf

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Stable failure reasons.
var (
	ErrInvalidURL     = errors.New("invalid url")
	ErrSchemeNotHTTP  = errors.New("scheme must be http or https")
	ErrHTTPNotAllowed = errors.New("http urls are not allowed")
	ErrUserinfo       = errors.New("urls with userinfo are not allowed")
	ErrNoHost         = errors.New("url has no host")
	ErrResolveFailed  = errors.New("host did not resolve")
	ErrPrivateAddress = errors.New("destination address is private or local")
)

// Resolver resolves a hostname to IP addresses. It matches the relevant
// subset of net.Resolver so tests can inject fixed answers.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Options controls filter behavior.
type Options struct {
	// AllowHTTP permits http:// URLs to public hosts. Private destinations
	// are blocked regardless.
	AllowHTTP bool

	// Resolver overrides DNS resolution; nil uses net.DefaultResolver.
	Resolver Resolver
}

// Dest is the classified destination of an allowed URL.
type Dest struct {
	URL    *url.URL
	Host   string
	Addrs  []netip.Addr
	Scheme string
}

// Check parses and classifies rawURL. It returns the destination when the
// URL may be contacted, or one of the stable errors when it must not.
func Check(ctx context.Context, rawURL string, opts Options) (*Dest, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ErrInvalidURL
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrSchemeNotHTTP
	}
	if u.User != nil {
		return nil, ErrUserinfo
	}
	host := u.Hostname()
	if host == "" {
		return nil, ErrNoHost
	}

	if scheme == "http" && !opts.AllowHTTP {
		return nil, ErrHTTPNotAllowed
	}

	addrs, err := resolve(ctx, host, opts.Resolver)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrResolveFailed, host)
	}

	if isLoopbackAlias(host) {
		return nil, ErrPrivateAddress
	}
	for _, a := range addrs {
		if IsPrivate(a) {
			return nil, ErrPrivateAddress
		}
	}

	return &Dest{URL: u, Host: host, Addrs: addrs, Scheme: scheme}, nil
}

// resolve returns the candidate addresses for host. Literal IPs (including
// bracketed IPv6, already stripped by url.Hostname) skip DNS.
func resolve(ctx context.Context, host string, r Resolver) ([]netip.Addr, error) {
	if a, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{a}, nil
	}
	if r == nil {
		r = net.DefaultResolver
	}
	ipAddrs, err := r.LookupIPAddr(ctx, host)
	if err != nil || len(ipAddrs) == 0 {
		return nil, ErrResolveFailed
	}
	out := make([]netip.Addr, 0, len(ipAddrs))
	for _, ia := range ipAddrs {
		a, ok := netip.AddrFromSlice(ia.IP)
		if !ok {
			continue
		}
		out = append(out, a.Unmap())
	}
	if len(out) == 0 {
		return nil, ErrResolveFailed
	}
	return out, nil
}

// isLoopbackAlias catches hostnames that are loopback by convention even
// when a resolver would say otherwise.
func isLoopbackAlias(host string) bool {
	h := strings.ToLower(strings.TrimSuffix(host, "."))
	return h == "localhost" || strings.HasSuffix(h, ".localhost")
}

// IsPrivate reports whether the address falls in any blocked range:
// loopback, RFC 1918, link-local, CGNAT-adjacent unspecified forms, IPv6
// ULA (fc00::/7), IPv6 link-local (fe80::/10), the unspecified address, and
// IPv4-mapped IPv6 forms of any of these.
func IsPrivate(a netip.Addr) bool {
	a = a.Unmap()
	if !a.IsValid() {
		return true
	}
	if a.IsLoopback() || a.IsUnspecified() || a.IsLinkLocalUnicast() || a.IsLinkLocalMulticast() {
		return true
	}
	if a.IsPrivate() {
		// Covers 10/8, 172.16/12, 192.168/16 and fc00::/7.
		return true
	}
	return false
}
