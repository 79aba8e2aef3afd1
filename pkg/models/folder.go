package models

import "time"

// Folder is an explicit folder record. Folders also exist virtually, implied
// by any file whose path starts with the folder prefix; an explicit record is
// only created to hold settings or to exist empty.
//
// Path is stored in canonical form without a trailing slash.
type Folder struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID string     `gorm:"size:36;not null;index;uniqueIndex:idx_folders_ws_path" json:"workspace_id"`
	Path        string     `gorm:"size:1024;not null;uniqueIndex:idx_folders_ws_path" json:"path"`
	Settings    JSONMap    `json:"settings,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName returns the table name for Folder.
func (Folder) TableName() string {
	return "folders"
}
