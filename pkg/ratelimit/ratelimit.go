// Package ratelimit provides a per-key token bucket for hot request paths.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Config tunes the limiter.
type Config struct {
	// RatePerMinute is the sustained refill rate per bucket.
	RatePerMinute float64 `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
	// Burst is the bucket capacity.
	Burst float64 `mapstructure:"burst" yaml:"burst"`
	// Disabled turns every Allow into a pass. Used in test mode.
	Disabled bool `mapstructure:"disabled" yaml:"disabled,omitempty"`
}

// ApplyDefaults fills in missing tunables.
func (c *Config) ApplyDefaults() {
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = 10
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
}

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a token-bucket rate limiter keyed by (subject, action). The
// subject is typically a capability key hash, so limits follow the
// credential rather than the client address.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	cfg.ApplyDefaults()
	return &Limiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token from the (subject, action) bucket. When the
// bucket is empty it returns false and the number of whole seconds until a
// token will be available.
func (l *Limiter) Allow(subject, action string) (bool, int) {
	if l.cfg.Disabled {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := subject + "\x00" + action
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.cfg.Burst, last: now}
		l.buckets[key] = b
	}

	refill := now.Sub(b.last).Minutes() * l.cfg.RatePerMinute
	b.tokens = math.Min(l.cfg.Burst, b.tokens+refill)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	need := 1 - b.tokens
	retryAfter := int(math.Ceil(need / l.cfg.RatePerMinute * 60))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}

// Clear drops all buckets. Exposed for tests.
func (l *Limiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*bucket)
}
