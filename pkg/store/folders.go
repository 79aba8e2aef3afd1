package store

import (
	"context"

	"github.com/capmd/capmd/pkg/models"
)

// CreateFolder inserts an explicit folder record. The path must be in
// canonical form without a trailing slash.
func (s *Store) CreateFolder(ctx context.Context, f *models.Folder) (string, error) {
	return createWithID(s.db, ctx, f, func(f *models.Folder, id string) { f.ID = id }, f.ID, models.ErrFolderExists)
}

// FindFolderByPath retrieves an explicit folder record by canonical path.
func (s *Store) FindFolderByPath(ctx context.Context, workspaceID, path string) (*models.Folder, error) {
	var f models.Folder
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND path = ? AND deleted_at IS NULL", workspaceID, path).
		First(&f).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFolderNotFound)
	}
	return &f, nil
}

// ListFolders lists explicit folder records under a prefix.
func (s *Store) ListFolders(ctx context.Context, workspaceID, folderPrefix string) ([]*models.Folder, error) {
	q := s.db.WithContext(ctx).
		Where("workspace_id = ? AND deleted_at IS NULL", workspaceID)
	if folderPrefix != "" && folderPrefix != "/" {
		q = q.Where(`path LIKE ? ESCAPE '\'`, likePrefix(folderPrefix))
	}
	var folders []*models.Folder
	if err := q.Order("path ASC").Find(&folders).Error; err != nil {
		return nil, err
	}
	return folders, nil
}

// DeleteFolder removes an explicit folder record by id.
func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	return deleteByField[models.Folder](s.db, ctx, "id", id, models.ErrFolderNotFound)
}

// UpdateFolderSettings replaces the settings object on an explicit folder.
func (s *Store) UpdateFolderSettings(ctx context.Context, id string, settings models.JSONMap) error {
	result := s.db.WithContext(ctx).
		Model(&models.Folder{}).
		Where("id = ?", id).
		Update("settings", settings)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrFolderNotFound
	}
	return nil
}
