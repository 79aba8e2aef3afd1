package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/capmd/capmd/pkg/models"
)

// FindFileByPath retrieves the non-deleted file at (workspaceID, path).
func (s *Store) FindFileByPath(ctx context.Context, workspaceID, path string) (*models.File, error) {
	var f models.File
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND path = ? AND deleted_at IS NULL", workspaceID, path).
		First(&f).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFileNotFound)
	}
	return &f, nil
}

// FindDeletedFileByPath retrieves the most recently soft-deleted file at
// (workspaceID, path), for recovery.
func (s *Store) FindDeletedFileByPath(ctx context.Context, workspaceID, path string) (*models.File, error) {
	var f models.File
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND path = ? AND deleted_at IS NOT NULL", workspaceID, path).
		Order("deleted_at DESC").
		First(&f).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFileNotFound)
	}
	return &f, nil
}

// GetFile retrieves a file by record id, deleted or not.
func (s *Store) GetFile(ctx context.Context, id string) (*models.File, error) {
	return getByField[models.File](s.db, ctx, "id", id, models.ErrFileNotFound)
}

// CreateFile inserts a new file row and indexes its content. A collision on
// the (workspace_id, path, non-deleted) uniqueness constraint returns
// ErrFileExists; the upsert engine recovers by re-reading the winner.
func (s *Store) CreateFile(ctx context.Context, f *models.File) (string, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := createWithID(tx, ctx, f, func(f *models.File, id string) { f.ID = id }, f.ID, models.ErrFileExists)
		if err != nil {
			return err
		}
		f.ID = id
		return s.indexFile(tx, f)
	})
	if err != nil {
		return "", err
	}
	return f.ID, nil
}

// UpdateFileContent replaces a file's content, hash, and size, bumps
// updated_at, and refreshes the full-text index.
func (s *Store) UpdateFileContent(ctx context.Context, f *models.File, content, contentHash string, size int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Model(&models.File{}).
			Where("id = ?", f.ID).
			Updates(map[string]any{
				"content":      content,
				"content_hash": contentHash,
				"size_bytes":   size,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
		f.Content = content
		f.ContentHash = contentHash
		f.SizeBytes = size
		f.UpdatedAt = now
		return s.indexFile(tx, f)
	})
}

// UpdateFileSettings replaces the settings object.
func (s *Store) UpdateFileSettings(ctx context.Context, id string, settings models.JSONMap) error {
	result := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("id = ?", id).
		Update("settings", settings)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrFileNotFound
	}
	return nil
}

// UpdateFilePath changes the file's path (move or rename). Unique
// violations map to ErrDestinationExists.
func (s *Store) UpdateFilePath(ctx context.Context, id, newPath string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f models.File
		if err := tx.Where("id = ?", id).First(&f).Error; err != nil {
			return convertNotFoundError(err, models.ErrFileNotFound)
		}
		if err := tx.Model(&f).Updates(map[string]any{
			"path":       newPath,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrDestinationExists
			}
			return err
		}
		f.Path = newPath
		return s.indexFile(tx, &f)
	})
	return err
}

// SoftDeleteFile marks the file deleted and removes it from the index.
func (s *Store) SoftDeleteFile(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.File{}).
			Where("id = ? AND deleted_at IS NULL", id).
			Update("deleted_at", at)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrFileNotFound
		}
		return s.deindexFile(tx, id)
	})
}

// HardDeleteFile removes the row, its appends, and its index entries.
func (s *Store) HardDeleteFile(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", id).Delete(&models.Append{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.File{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrFileNotFound
		}
		if err := s.deindexFile(tx, id); err != nil {
			return err
		}
		return s.deindexAppends(tx, id)
	})
}

// RecoverFile clears deleted_at on a soft-deleted file and reindexes it.
// A non-deleted file at the same path wins: recovery then fails with
// ErrDestinationExists.
func (s *Store) RecoverFile(ctx context.Context, id string) (*models.File, error) {
	var out models.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f models.File
		if err := tx.Where("id = ?", id).First(&f).Error; err != nil {
			return convertNotFoundError(err, models.ErrFileNotFound)
		}
		if f.DeletedAt == nil {
			out = f
			return nil
		}
		var occupied int64
		if err := tx.Model(&models.File{}).
			Where("workspace_id = ? AND path = ? AND deleted_at IS NULL", f.WorkspaceID, f.Path).
			Count(&occupied).Error; err != nil {
			return err
		}
		if occupied > 0 {
			return models.ErrDestinationExists
		}
		if err := tx.Model(&f).Update("deleted_at", nil).Error; err != nil {
			return err
		}
		f.DeletedAt = nil
		out = f
		return s.indexFile(tx, &f)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFilesByPrefix lists non-deleted files under a folder prefix. The
// prefix must be normalized with a trailing slash ("/" lists everything).
// When recursive is false, only direct children are returned.
func (s *Store) ListFilesByPrefix(ctx context.Context, workspaceID, folderPrefix string, recursive bool) ([]*models.File, error) {
	if folderPrefix == "" {
		folderPrefix = "/"
	}
	q := s.db.WithContext(ctx).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID)
	if folderPrefix != "" && folderPrefix != "/" {
		q = q.Where(`path LIKE ? ESCAPE '\'`, likePrefix(folderPrefix))
	}
	var files []*models.File
	if err := q.Order("path ASC").Find(&files).Error; err != nil {
		return nil, err
	}
	if recursive {
		return files, nil
	}
	direct := files[:0]
	for _, f := range files {
		rest := f.Path[len(folderPrefix):]
		if !containsSlash(rest) {
			direct = append(direct, f)
		}
	}
	return direct, nil
}

// CountFilesByPrefix counts non-deleted files under a folder prefix.
func (s *Store) CountFilesByPrefix(ctx context.Context, workspaceID, folderPrefix string) (int64, error) {
	q := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID)
	if folderPrefix != "" && folderPrefix != "/" {
		q = q.Where(`path LIKE ? ESCAPE '\'`, likePrefix(folderPrefix))
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// CountStaleAppends counts appends on the file whose recorded content hash
// no longer matches the file's current hash.
func (s *Store) CountStaleAppends(ctx context.Context, fileID, currentHash string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.Append{}).
		Where("file_id = ? AND content_hash <> '' AND content_hash <> ?", fileID, currentHash).
		Count(&n).Error
	return n, err
}

// ListExpiredDeletedFiles returns soft-deleted files whose recovery window
// ended before the cutoff. Used by the GC sweep.
func (s *Store) ListExpiredDeletedFiles(ctx context.Context, cutoff time.Time, limit int) ([]*models.File, error) {
	var files []*models.File
	err := s.db.WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Limit(limit).
		Find(&files).Error
	return files, err
}

// indexFile refreshes the file's row in the SQLite FTS index. No-op on
// other backends (Postgres search uses to_tsvector at query time).
func (s *Store) indexFile(tx *gorm.DB, f *models.File) error {
	if s.config.Type != DatabaseTypeSQLite {
		return nil
	}
	if err := tx.Exec(`DELETE FROM files_fts WHERE file_id = ?`, f.ID).Error; err != nil {
		return err
	}
	return tx.Exec(
		`INSERT INTO files_fts(file_id, workspace_id, path, content) VALUES (?, ?, ?, ?)`,
		f.ID, f.WorkspaceID, f.Path, f.Content,
	).Error
}

// deindexFile removes the file from the FTS index.
func (s *Store) deindexFile(tx *gorm.DB, fileID string) error {
	if s.config.Type != DatabaseTypeSQLite {
		return nil
	}
	return tx.Exec(`DELETE FROM files_fts WHERE file_id = ?`, fileID).Error
}

// deindexAppends removes all of a file's append previews from the index.
func (s *Store) deindexAppends(tx *gorm.DB, fileID string) error {
	if s.config.Type != DatabaseTypeSQLite {
		return nil
	}
	return tx.Exec(`DELETE FROM appends_fts WHERE file_id = ?`, fileID).Error
}

// likePrefix escapes LIKE wildcards in a path prefix.
func likePrefix(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+8)
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, c)
	}
	return string(escaped) + "%"
}

func containsSlash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return true
		}
	}
	return false
}
