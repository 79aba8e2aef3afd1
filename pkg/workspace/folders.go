package workspace

import (
	"context"
	"errors"

	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
)

// CreateFolder records an explicit folder at folderPath. Folders also exist
// virtually through their files; an explicit record lets a folder hold
// settings or exist empty.
func (s *Service) CreateFolder(ctx context.Context, workspaceID, folderPath string, settings models.JSONMap) (*models.Folder, error) {
	p, err := pathutil.Normalize(folderPath)
	if err != nil {
		return nil, err
	}
	if p == "/" {
		return nil, models.ErrInvalidPath
	}
	f := &models.Folder{
		WorkspaceID: workspaceID,
		Path:        p,
		Settings:    settings,
	}
	if _, err := s.store.CreateFolder(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// DeleteFolder removes an explicit folder record. A folder that still
// contains live files cannot be deleted.
func (s *Service) DeleteFolder(ctx context.Context, workspaceID, folderPath string) error {
	p, err := pathutil.Normalize(folderPath)
	if err != nil {
		return err
	}
	n, err := s.store.CountFilesByPrefix(ctx, workspaceID, p+"/")
	if err != nil {
		return err
	}
	if n > 0 {
		return models.ErrFolderNotEmpty
	}
	f, err := s.store.FindFolderByPath(ctx, workspaceID, p)
	if err != nil {
		return err
	}
	return s.store.DeleteFolder(ctx, f.ID)
}

// FolderExists reports whether folderPath exists, explicitly or virtually.
func (s *Service) FolderExists(ctx context.Context, workspaceID, folderPath string) (bool, error) {
	p, err := pathutil.Normalize(folderPath)
	if err != nil {
		return false, err
	}
	if p == "/" {
		return true, nil
	}
	if _, err := s.store.FindFolderByPath(ctx, workspaceID, p); err == nil {
		return true, nil
	} else if !errors.Is(err, models.ErrFolderNotFound) {
		return false, err
	}
	n, err := s.store.CountFilesByPrefix(ctx, workspaceID, p+"/")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateFolderSettings replaces the settings on an explicit folder record.
func (s *Service) UpdateFolderSettings(ctx context.Context, workspaceID, folderPath string, settings models.JSONMap) (*models.Folder, error) {
	p, err := pathutil.Normalize(folderPath)
	if err != nil {
		return nil, err
	}
	f, err := s.store.FindFolderByPath(ctx, workspaceID, p)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateFolderSettings(ctx, f.ID, settings); err != nil {
		return nil, err
	}
	f.Settings = settings
	return f, nil
}
