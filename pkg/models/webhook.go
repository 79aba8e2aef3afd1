package models

import (
	"strings"
	"time"
)

// WebhookSubscription is a workspace-scoped outbound event target.
//
// Events is a comma-separated filter of event types ("*" matches all);
// FolderPath, when set, restricts delivery to events under that folder.
type WebhookSubscription struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID string    `gorm:"size:36;not null;index" json:"workspace_id"`
	URL         string    `gorm:"size:2048;not null" json:"url"`
	Events      string    `gorm:"size:512;not null" json:"events"`
	Secret      string    `gorm:"size:255;not null" json:"-"`
	FolderPath  string    `gorm:"size:1024" json:"folder_path,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for WebhookSubscription.
func (WebhookSubscription) TableName() string {
	return "webhook_subscriptions"
}

// Matches reports whether the subscription wants the given event type.
func (s *WebhookSubscription) Matches(event string) bool {
	for _, e := range strings.Split(s.Events, ",") {
		e = strings.TrimSpace(e)
		if e == "*" || e == event {
			return true
		}
	}
	return false
}
