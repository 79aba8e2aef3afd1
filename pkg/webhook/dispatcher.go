// Package webhook delivers workspace events to subscriber URLs. Delivery is
// at-least-once within a bounded retry budget; failures are logged and never
// surface to the request that raised the event.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capmd/capmd/internal/logger"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/ssrf"
	"github.com/capmd/capmd/pkg/store"
)

// Event types emitted by the service.
const (
	EventFileCreated   = "file.created"
	EventFileUpdated   = "file.updated"
	EventFileDeleted   = "file.deleted"
	EventFileRecovered = "file.recovered"
	EventFileMoved     = "file.moved"
	EventFolderCreated = "folder.created"
	EventFolderDeleted = "folder.deleted"
	EventAppendCreated = "append.created"
)

const (
	maxAttempts    = 5
	requestTimeout = 10 * time.Second

	headerSignature = "X-Capmd-Signature"
	headerEvent     = "X-Capmd-Event"
)

// Event is a workspace occurrence to fan out to subscribers.
type Event struct {
	Type        string
	WorkspaceID string
	Path        string
	Data        map[string]any
}

// envelope is the JSON body POSTed to subscribers.
type envelope struct {
	ID          string         `json:"id"`
	Event       string         `json:"event"`
	WorkspaceID string         `json:"workspaceId"`
	Path        string         `json:"path,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Dispatcher fans events out to matching subscriptions and drives retries.
type Dispatcher struct {
	store  *store.Store
	queue  *Queue
	client *http.Client
	ssrf   ssrf.Options
	now    func() time.Time

	// backoff maps a zero-based attempt number to the wait before the next
	// try. Swapped out in tests.
	backoff func(attempt int) time.Duration

	// check validates a destination URL before each attempt. Swapped out in
	// tests, which deliver to loopback servers the filter would block.
	check func(ctx context.Context, rawURL string) error

	mu       sync.Mutex
	inflight sync.WaitGroup
	stopped  bool
	stop     chan struct{}
}

// NewDispatcher creates a Dispatcher. The queue must stay open for the
// dispatcher's lifetime.
func NewDispatcher(s *store.Store, q *Queue, opts ssrf.Options) *Dispatcher {
	return &Dispatcher{
		store:   s,
		queue:   q,
		client:  &http.Client{Timeout: requestTimeout},
		ssrf:    opts,
		now:     time.Now,
		backoff: jitteredBackoff,
		check: func(ctx context.Context, rawURL string) error {
			_, err := ssrf.Check(ctx, rawURL, opts)
			return err
		},
		stop: make(chan struct{}),
	}
}

// jitteredBackoff returns 1s, 2s, 4s, 8s, 16s with up to 25% jitter.
func jitteredBackoff(attempt int) time.Duration {
	base := time.Second << attempt
	if base > 16*time.Second {
		base = 16 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base / 4)))
	return base + jitter
}

// Start resumes deliveries that were pending when the process last exited.
func (d *Dispatcher) Start() error {
	pending, err := d.queue.Pending()
	if err != nil {
		return fmt.Errorf("failed to load pending webhook deliveries: %w", err)
	}
	for _, p := range pending {
		d.spawn(p)
	}
	if len(pending) > 0 {
		logger.Info("resumed pending webhook deliveries", logger.Count(len(pending)))
	}
	return nil
}

// Shutdown stops accepting events and waits for in-flight deliveries to park
// themselves back in the queue.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.stop)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emit enqueues ev for every matching subscription and begins delivery in
// the background. Errors are logged; callers treat Emit as fire-and-forget.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	subs, err := d.store.ListWebhookSubscriptions(ctx, ev.WorkspaceID)
	if err != nil {
		logger.Warn("webhook subscription lookup failed",
			logger.Err(err), logger.Workspace(ev.WorkspaceID))
		return
	}

	now := d.now().UTC()
	for _, sub := range subs {
		if !sub.Matches(ev.Type) || !matchesFolder(sub, ev.Path) {
			continue
		}

		body, err := json.Marshal(envelope{
			ID:          uuid.New().String(),
			Event:       ev.Type,
			WorkspaceID: ev.WorkspaceID,
			Path:        ev.Path,
			Data:        ev.Data,
			CreatedAt:   now,
		})
		if err != nil {
			logger.Error("webhook envelope encode failed", logger.Err(err))
			continue
		}

		del := &delivery{
			ID:          uuid.New().String(),
			WorkspaceID: ev.WorkspaceID,
			URL:         sub.URL,
			Secret:      sub.Secret,
			Event:       ev.Type,
			Body:        body,
			NextAttempt: now,
		}
		if err := d.queue.Put(del); err != nil {
			logger.Warn("webhook delivery persist failed", logger.Err(err))
			continue
		}
		d.spawn(del)
	}
}

// matchesFolder applies the subscription's folder filter. An unset filter
// matches everything, including events with no path.
func matchesFolder(sub *models.WebhookSubscription, path string) bool {
	if sub.FolderPath == "" {
		return true
	}
	if path == "" {
		return false
	}
	prefix := strings.TrimSuffix(sub.FolderPath, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func (d *Dispatcher) spawn(del *delivery) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.inflight.Done()
		d.deliver(del)
	}()
}

// deliver runs the retry loop for one delivery. The delivery leaves the
// queue when it succeeds, fails permanently, or runs out of attempts; a
// shutdown mid-loop leaves it queued for the next Start.
func (d *Dispatcher) deliver(del *delivery) {
	for del.Attempt < maxAttempts {
		if wait := time.Until(del.NextAttempt); wait > 0 {
			select {
			case <-time.After(wait):
			case <-d.stop:
				return
			}
		}

		err, retryable := d.attempt(del)
		if err == nil {
			if derr := d.queue.Delete(del.ID); derr != nil {
				logger.Warn("webhook delivery dequeue failed", logger.Err(derr))
			}
			logger.Debug("webhook delivered",
				logger.Event(del.Event),
				logger.Attempt(del.Attempt+1))
			return
		}

		if !retryable {
			logger.Warn("webhook delivery rejected",
				logger.Err(err),
				logger.Event(del.Event),
				logger.Workspace(del.WorkspaceID))
			_ = d.queue.Delete(del.ID)
			return
		}

		del.Attempt++
		del.NextAttempt = d.now().Add(d.backoff(del.Attempt - 1))
		if perr := d.queue.Put(del); perr != nil {
			logger.Warn("webhook delivery persist failed", logger.Err(perr))
		}
		logger.Debug("webhook delivery failed, will retry",
			logger.Err(err),
			logger.Event(del.Event),
			logger.Attempt(del.Attempt),
			logger.MaxRetries(maxAttempts))
	}

	logger.Warn("webhook delivery abandoned",
		logger.Event(del.Event),
		logger.Workspace(del.WorkspaceID),
		logger.MaxRetries(maxAttempts))
	_ = d.queue.Delete(del.ID)
}

// attempt performs one POST. The second return reports whether the failure
// is worth another try: transport errors and 5xx are, SSRF rejections and
// other status codes are not.
func (d *Dispatcher) attempt(del *delivery) (error, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := d.check(ctx, del.URL); err != nil {
		return fmt.Errorf("url rejected: %w", err), false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, del.URL, bytes.NewReader(del.Body))
	if err != nil {
		return err, false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, del.Event)
	req.Header.Set(headerSignature, Sign(del.Secret, del.Body))

	resp, err := d.client.Do(req)
	if err != nil {
		return err, true
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil, false
	}
	return fmt.Errorf("delivery returned status %d", resp.StatusCode), resp.StatusCode >= 500
}

// Sign computes the detached signature header value for body: the hex
// HMAC-SHA-256 under secret, prefixed with the algorithm tag.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header is a valid signature for body.
// Subscribers use the same logic server-side; kept here so the e2e tests
// and any Go consumers share one implementation.
func VerifySignature(secret string, body []byte, header string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}
