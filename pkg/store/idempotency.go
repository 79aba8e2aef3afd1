package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/capmd/capmd/pkg/models"
)

// GetIdempotencyRecord fetches a stored response by token.
func (s *Store) GetIdempotencyRecord(ctx context.Context, token string) (*models.IdempotencyRecord, error) {
	return getByField[models.IdempotencyRecord](s.db, ctx, "token", token, models.ErrInvalidRequest)
}

// InsertIdempotencyIfAbsent stores a response envelope for the token. When
// a concurrent insert already won, the stored winner is returned and the
// insert is a no-op; exactly one record per token survives.
func (s *Store) InsertIdempotencyIfAbsent(ctx context.Context, rec *models.IdempotencyRecord) (*models.IdempotencyRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).Create(rec).Error
	if err == nil {
		return rec, nil
	}
	if !isUniqueConstraintError(err) {
		return nil, err
	}
	return s.GetIdempotencyRecord(ctx, rec.Token)
}

// PurgeIdempotencyRecords removes records older than the cutoff.
func (s *Store) PurgeIdempotencyRecords(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.IdempotencyRecord{})
	return result.RowsAffected, result.Error
}
