package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/capmd/capmd/pkg/models"
)

// InsertAppend assigns the next dense public id for the file and inserts
// the entry. The public id counter and the insert run in one transaction so
// ids stay dense under concurrency; a collision on the (file_id, public_id)
// unique index retries with the next number.
func (s *Store) InsertAppend(ctx context.Context, a *models.Append) error {
	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		lastErr = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var n int64
			if err := tx.Model(&models.Append{}).Where("file_id = ?", a.FileID).Count(&n).Error; err != nil {
				return err
			}
			a.Seq = 0
			a.PublicID = fmt.Sprintf("a%d", n+1)
			a.CreatedAt = time.Now().UTC()
			if err := tx.Create(a).Error; err != nil {
				return err
			}
			return s.indexAppend(tx, a)
		})
		if lastErr == nil {
			return nil
		}
		if !isUniqueConstraintError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// GetAppendByPublicID fetches one entry by its public id within a file.
func (s *Store) GetAppendByPublicID(ctx context.Context, fileID, publicID string) (*models.Append, error) {
	var a models.Append
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND public_id = ?", fileID, publicID).
		First(&a).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrAppendNotFound)
	}
	return &a, nil
}

// FindClaimByPublicID locates a claim entry by public id anywhere in the
// workspace. Used by the owner claim operators, which address claims
// without a file path.
func (s *Store) FindClaimByPublicID(ctx context.Context, workspaceID, publicID string) (*models.Append, error) {
	var a models.Append
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND public_id = ? AND type = ?", workspaceID, publicID, models.AppendClaim).
		Order("seq DESC").
		First(&a).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrAppendNotFound)
	}
	return &a, nil
}

// ListAppends returns a file's entries in insertion order. since=0 means
// from the beginning; otherwise only entries with seq > since are returned.
// limit<=0 means no limit; limit>0 returns the most recent limit entries,
// still in insertion order.
func (s *Store) ListAppends(ctx context.Context, fileID string, since uint64, limit int) ([]*models.Append, error) {
	q := s.db.WithContext(ctx).Where("file_id = ?", fileID)
	if since > 0 {
		q = q.Where("seq > ?", since)
	}

	var appends []*models.Append
	if limit > 0 {
		// Fetch the tail in reverse, then restore insertion order.
		if err := q.Order("seq DESC").Limit(limit).Find(&appends).Error; err != nil {
			return nil, err
		}
		for i, j := 0, len(appends)-1; i < j; i, j = i+1, j-1 {
			appends[i], appends[j] = appends[j], appends[i]
		}
		return appends, nil
	}
	if err := q.Order("seq ASC").Find(&appends).Error; err != nil {
		return nil, err
	}
	return appends, nil
}

// CountAppends returns the number of entries in a file's log.
func (s *Store) CountAppends(ctx context.Context, fileID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Append{}).Where("file_id = ?", fileID).Count(&n).Error
	return n, err
}

// ListAppendsByWorkspace returns entries across a workspace, optionally
// restricted to a folder prefix (matched against the owning file's path),
// in insertion order. The projector consumes this.
func (s *Store) ListAppendsByWorkspace(ctx context.Context, workspaceID, folderPrefix string) ([]*models.Append, error) {
	q := s.db.WithContext(ctx).
		Table("appends").
		Joins("JOIN files ON files.id = appends.file_id").
		Where("appends.workspace_id = ? AND files.deleted_at IS NULL", workspaceID)
	if folderPrefix != "" && folderPrefix != "/" {
		q = q.Where(`files.path LIKE ? ESCAPE '\'`, likePrefix(folderPrefix))
	}
	var appends []*models.Append
	if err := q.Order("appends.seq ASC").Select("appends.*").Find(&appends).Error; err != nil {
		return nil, err
	}
	return appends, nil
}

// UpdateClaimExpiry denormalizes a renewed lease onto the claim row. The
// projector still derives state from the log; this keeps the claims view a
// single-row read.
func (s *Store) UpdateClaimExpiry(ctx context.Context, seq uint64, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Append{}).
		Where("seq = ? AND type = ?", seq, models.AppendClaim).
		Update("expires_at", expiresAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrAppendNotFound
	}
	return nil
}

// indexAppend adds the entry's preview to the SQLite FTS index.
func (s *Store) indexAppend(tx *gorm.DB, a *models.Append) error {
	if s.config.Type != DatabaseTypeSQLite || a.Preview == "" {
		return nil
	}
	return tx.Exec(
		`INSERT INTO appends_fts(append_seq, file_id, workspace_id, content) VALUES (?, ?, ?, ?)`,
		a.Seq, a.FileID, a.WorkspaceID, a.Preview,
	).Error
}
