package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a free-form settings object persisted as a JSON text column.
// It works on both SQLite and PostgreSQL backends.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported JSONMap source type %T", value)
	}
}

// File is a Markdown document at an absolute forward-slash path.
//
// (workspace_id, path) is unique among non-deleted files; the partial unique
// index below is the invariant concurrent upserts race against. Soft-deleted
// files keep their row for the recovery window and are then hard-deleted.
type File struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID string     `gorm:"size:36;not null;index;uniqueIndex:idx_files_ws_path,where:deleted_at IS NULL" json:"workspace_id"`
	Path        string     `gorm:"size:1024;not null;uniqueIndex:idx_files_ws_path,where:deleted_at IS NULL" json:"path"`
	Content     string     `json:"content"`
	SizeBytes   int64      `gorm:"not null;default:0" json:"size_bytes"`
	ContentHash string     `gorm:"size:64;not null" json:"content_hash"`
	Settings    JSONMap    `json:"settings,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName returns the table name for File.
func (File) TableName() string {
	return "files"
}

// Deleted reports whether the file is soft-deleted.
func (f *File) Deleted() bool {
	return f.DeletedAt != nil
}

// Recoverable reports whether a soft-deleted file is still inside the
// recovery window at the given instant.
func (f *File) Recoverable(now time.Time) bool {
	return f.DeletedAt != nil && now.Sub(*f.DeletedAt) <= RecoveryWindow
}

// RecoveryDeadline returns the instant after which the file can no longer
// be recovered. Only meaningful when the file is soft-deleted.
func (f *File) RecoveryDeadline() time.Time {
	if f.DeletedAt == nil {
		return time.Time{}
	}
	return f.DeletedAt.Add(RecoveryWindow)
}

// ETag returns the strong, content-derived entity tag for the file.
func (f *File) ETag() string {
	return `"` + f.ContentHash + `"`
}
