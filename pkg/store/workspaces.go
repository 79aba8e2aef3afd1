package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/capmd/capmd/pkg/models"
)

// CreateWorkspace inserts a new workspace.
func (s *Store) CreateWorkspace(ctx context.Context, ws *models.Workspace) (string, error) {
	ws.CreatedAt = time.Now().UTC()
	return createWithID(s.db, ctx, ws, func(w *models.Workspace, id string) { w.ID = id }, ws.ID, models.ErrWorkspaceNotFound)
}

// GetWorkspace retrieves a workspace by id.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	return getByField[models.Workspace](s.db, ctx, "id", id, models.ErrWorkspaceNotFound)
}

// AddWorkspaceStorage atomically adjusts the storage counter by delta bytes,
// clamping at zero. The clamp runs inside the UPDATE expression so a
// concurrent decrement can never drive the counter negative.
func (s *Store) AddWorkspaceStorage(ctx context.Context, id string, delta int64) error {
	expr := "MAX(0, storage_used_bytes + ?)"
	if s.config.Type == DatabaseTypePostgres {
		expr = "GREATEST(0, storage_used_bytes + ?)"
	}
	result := s.db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("id = ?", id).
		Update("storage_used_bytes", gorm.Expr(expr, delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrWorkspaceNotFound
	}
	return nil
}

// ClaimWorkspace binds the workspace to an owner account. Claiming an
// already-claimed workspace by a different owner fails closed.
func (s *Store) ClaimWorkspace(ctx context.Context, workspaceID, ownerID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ws models.Workspace
		if err := tx.Where("id = ?", workspaceID).First(&ws).Error; err != nil {
			return convertNotFoundError(err, models.ErrWorkspaceNotFound)
		}
		if ws.Claimed() && *ws.OwnerID != ownerID {
			return models.ErrInvalidRequest
		}
		now := time.Now().UTC()
		return tx.Model(&ws).Updates(map[string]any{
			"owner_id":   ownerID,
			"claimed_at": now,
		}).Error
	})
}

// CreateOwner inserts a new owner account.
func (s *Store) CreateOwner(ctx context.Context, o *models.Owner) (string, error) {
	o.CreatedAt = time.Now().UTC()
	return createWithID(s.db, ctx, o, func(o *models.Owner, id string) { o.ID = id }, o.ID, models.ErrDuplicateOwner)
}

// GetOwnerByEmail retrieves an owner account by email.
func (s *Store) GetOwnerByEmail(ctx context.Context, email string) (*models.Owner, error) {
	return getByField[models.Owner](s.db, ctx, "email", email, models.ErrOwnerNotFound)
}

// GetOwner retrieves an owner account by id.
func (s *Store) GetOwner(ctx context.Context, id string) (*models.Owner, error) {
	return getByField[models.Owner](s.db, ctx, "id", id, models.ErrOwnerNotFound)
}

// UpdateOwnerLastLogin records a successful login.
func (s *Store) UpdateOwnerLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Owner{}).
		Where("id = ?", id).
		Update("last_login", at).Error
}
