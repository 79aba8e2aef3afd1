// Package audit buffers audit trail writes so request handlers never block
// on the trail. Entries are batched in memory and flushed on a short timer;
// losing a batch on hard crash is acceptable, slowing a request is not.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/capmd/capmd/internal/logger"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/store"
)

const (
	flushInterval = 100 * time.Millisecond
	batchSize     = 50
	busyRetries   = 3
)

// Config tunes the queue.
type Config struct {
	// Sync commits every entry immediately instead of batching. Used in
	// tests where assertions follow the write.
	Sync bool
	// DropForeignKeyViolations silently discards entries whose workspace
	// row disappeared between enqueue and flush. Test fixtures tear
	// workspaces down underneath in-flight entries.
	DropForeignKeyViolations bool
}

// Queue is a best-effort batched writer for the audit trail.
type Queue struct {
	store *store.Store
	cfg   Config

	mu      sync.Mutex
	pending []*models.AuditEntry

	startOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewQueue creates a Queue. Call Start to begin background flushing.
func NewQueue(s *store.Store, cfg Config) *Queue {
	return &Queue{
		store: s,
		cfg:   cfg,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the background flusher. Safe to call once; in sync mode it
// is a no-op.
func (q *Queue) Start() {
	if q.cfg.Sync {
		close(q.done)
		return
	}
	q.startOnce.Do(func() {
		go q.run()
	})
}

// Shutdown stops the flusher and drains whatever is still buffered.
func (q *Queue) Shutdown(ctx context.Context) error {
	if !q.cfg.Sync {
		close(q.stop)
		select {
		case <-q.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return q.flush(ctx)
}

// Record enqueues an entry. In sync mode it commits immediately and failures
// surface only in the log; handlers never see audit errors.
func (q *Queue) Record(ctx context.Context, e *models.AuditEntry) {
	if q.cfg.Sync {
		q.write(ctx, []*models.AuditEntry{e})
		return
	}

	q.mu.Lock()
	q.pending = append(q.pending, e)
	full := len(q.pending) >= batchSize
	q.mu.Unlock()

	if full {
		// Flush on the caller's goroutine rather than waiting for the
		// ticker so the buffer cannot grow unbounded under load.
		_ = q.flush(context.WithoutCancel(ctx))
	}
}

// RecordSync commits an entry immediately, bypassing the buffer. Used for
// entries that must be durable before the response is sent, e.g. key
// rotation.
func (q *Queue) RecordSync(ctx context.Context, e *models.AuditEntry) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		err = q.store.InsertAuditEntry(ctx, e)
		if err == nil || !store.IsBusy(err) {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	if err != nil && q.cfg.DropForeignKeyViolations && store.IsForeignKeyViolation(err) {
		return nil
	}
	return err
}

// ForceFlush drains the buffer now. Exposed for tests.
func (q *Queue) ForceFlush(ctx context.Context) error {
	return q.flush(ctx)
}

// Clear discards buffered entries without writing them. Exposed for tests.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.pending = nil
	q.mu.Unlock()
}

// Len reports how many entries are buffered. Exposed for tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) run() {
	defer close(q.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = q.flush(context.Background())
		case <-q.stop:
			return
		}
	}
}

func (q *Queue) flush(ctx context.Context) error {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return q.write(ctx, batch)
}

func (q *Queue) write(ctx context.Context, batch []*models.AuditEntry) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		err = q.store.InsertAuditEntries(ctx, batch)
		if err == nil || !store.IsBusy(err) {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	if err == nil {
		return nil
	}
	if q.cfg.DropForeignKeyViolations && store.IsForeignKeyViolation(err) {
		logger.Debug("audit batch dropped on foreign key violation",
			logger.Count(len(batch)))
		return nil
	}
	logger.Warn("audit batch write failed",
		logger.Err(err),
		logger.Count(len(batch)))
	return err
}
