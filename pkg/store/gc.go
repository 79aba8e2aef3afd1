package store

import (
	"context"
	"time"

	"github.com/capmd/capmd/pkg/models"
)

// SweepResult reports what a garbage-collection pass removed.
type SweepResult struct {
	FilesPurged       int
	IdempotencyPurged int64
}

// Sweep hard-deletes soft-deleted files whose recovery window has lapsed
// and purges idempotency records past their retention. Deletions are
// bounded per pass so a sweep never monopolizes the writer.
func (s *Store) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult

	expired, err := s.ListExpiredDeletedFiles(ctx, now.Add(-models.RecoveryWindow), 200)
	if err != nil {
		return res, err
	}
	for _, f := range expired {
		if err := s.HardDeleteFile(ctx, f.ID); err != nil {
			return res, err
		}
		res.FilesPurged++
	}

	purged, err := s.PurgeIdempotencyRecords(ctx, now.Add(-models.IdempotencyTTL))
	if err != nil {
		return res, err
	}
	res.IdempotencyPurged = purged
	return res, nil
}
