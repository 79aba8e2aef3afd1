package store

import (
	"context"
	"time"

	"github.com/capmd/capmd/pkg/models"
)

// CreateCapabilityKey inserts a new capability key record.
func (s *Store) CreateCapabilityKey(ctx context.Context, k *models.CapabilityKey) (string, error) {
	k.CreatedAt = time.Now().UTC()
	return createWithID(s.db, ctx, k, func(k *models.CapabilityKey, id string) { k.ID = id }, k.ID, models.ErrKeyNotFound)
}

// FindCapabilityKeyByHash looks a key up by its SHA-256 hash. This is the
// only lookup path; plaintext is never persisted.
func (s *Store) FindCapabilityKeyByHash(ctx context.Context, hash string) (*models.CapabilityKey, error) {
	return getByField[models.CapabilityKey](s.db, ctx, "hash", hash, models.ErrKeyNotFound)
}

// ListCapabilityKeysByScope enumerates non-revoked keys of a workspace
// bound to an exact scope path, for bulk revocation during rotation.
func (s *Store) ListCapabilityKeysByScope(ctx context.Context, workspaceID string, scopeType models.ScopeType, scopePath string) ([]*models.CapabilityKey, error) {
	var ks []*models.CapabilityKey
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND scope_type = ? AND scope_path = ? AND revoked_at IS NULL",
			workspaceID, scopeType, scopePath).
		Find(&ks).Error
	return ks, err
}

// RevokeCapabilityKeysByScope revokes every non-revoked key bound to the
// exact scope path. Returns the number of keys revoked.
func (s *Store) RevokeCapabilityKeysByScope(ctx context.Context, workspaceID string, scopeType models.ScopeType, scopePath string, at time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.CapabilityKey{}).
		Where("workspace_id = ? AND scope_type = ? AND scope_path = ? AND revoked_at IS NULL",
			workspaceID, scopeType, scopePath).
		Update("revoked_at", at)
	return result.RowsAffected, result.Error
}

// RevokeCapabilityKey revokes a single key by id.
func (s *Store) RevokeCapabilityKey(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.CapabilityKey{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrKeyNotFound
	}
	return nil
}

// UpdateCapabilityKeyScopePath repoints folder/file-scoped keys after a
// move or rename so capability URLs keep working.
func (s *Store) UpdateCapabilityKeyScopePath(ctx context.Context, workspaceID string, scopeType models.ScopeType, oldPath, newPath string) error {
	return s.db.WithContext(ctx).
		Model(&models.CapabilityKey{}).
		Where("workspace_id = ? AND scope_type = ? AND scope_path = ? AND revoked_at IS NULL",
			workspaceID, scopeType, oldPath).
		Update("scope_path", newPath).Error
}

// CreateAPIKey inserts a new API key record.
func (s *Store) CreateAPIKey(ctx context.Context, k *models.APIKey) (string, error) {
	k.CreatedAt = time.Now().UTC()
	return createWithID(s.db, ctx, k, func(k *models.APIKey, id string) { k.ID = id }, k.ID, models.ErrKeyNotFound)
}

// FindAPIKeyByHash looks an API key up by its SHA-256 hash.
func (s *Store) FindAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	return getByField[models.APIKey](s.db, ctx, "hash", hash, models.ErrKeyNotFound)
}
