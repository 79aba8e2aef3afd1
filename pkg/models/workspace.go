package models

import "time"

// Workspace is the root ownership unit. A workspace owns its files, folders,
// capability keys, idempotency records, webhooks, and audit trail.
//
// StorageUsedBytes is maintained atomically by the store on every content
// mutation and never goes negative.
type Workspace struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	Name             string     `gorm:"size:255" json:"name"`
	StorageUsedBytes int64      `gorm:"not null;default:0" json:"storage_used_bytes"`
	OwnerID          *string    `gorm:"size:36;index" json:"owner_id,omitempty"`
	ClaimedAt        *time.Time `json:"claimed_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt        *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName returns the table name for Workspace.
func (Workspace) TableName() string {
	return "workspaces"
}

// Claimed reports whether the workspace has been bound to an owner account.
func (w *Workspace) Claimed() bool {
	return w.OwnerID != nil && *w.OwnerID != ""
}

// Owner is a human account that can claim workspaces and drive the
// orchestration claim operators through an authenticated session.
type Owner struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Email        string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	DisplayName  string     `gorm:"size:255" json:"display_name,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// TableName returns the table name for Owner.
func (Owner) TableName() string {
	return "owners"
}
