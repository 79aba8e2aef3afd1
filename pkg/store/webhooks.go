package store

import (
	"context"

	"github.com/capmd/capmd/pkg/models"
)

// CreateWebhookSubscription inserts a new subscription.
func (s *Store) CreateWebhookSubscription(ctx context.Context, sub *models.WebhookSubscription) (string, error) {
	return createWithID(s.db, ctx, sub, func(sub *models.WebhookSubscription, id string) { sub.ID = id }, sub.ID, models.ErrWebhookNotFound)
}

// GetWebhookSubscription retrieves a subscription by id.
func (s *Store) GetWebhookSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	return getByField[models.WebhookSubscription](s.db, ctx, "id", id, models.ErrWebhookNotFound)
}

// ListWebhookSubscriptions lists a workspace's subscriptions.
func (s *Store) ListWebhookSubscriptions(ctx context.Context, workspaceID string) ([]*models.WebhookSubscription, error) {
	var subs []*models.WebhookSubscription
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").
		Find(&subs).Error
	return subs, err
}

// DeleteWebhookSubscription removes a subscription by id within a
// workspace.
func (s *Store) DeleteWebhookSubscription(ctx context.Context, workspaceID, id string) error {
	result := s.db.WithContext(ctx).
		Where("workspace_id = ? AND id = ?", workspaceID, id).
		Delete(&models.WebhookSubscription{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrWebhookNotFound
	}
	return nil
}
