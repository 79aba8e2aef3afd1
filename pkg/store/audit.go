package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/capmd/capmd/pkg/models"
)

// InsertAuditEntries writes a batch of audit entries in one statement.
func (s *Store) InsertAuditEntries(ctx context.Context, entries []*models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
	}
	return s.db.WithContext(ctx).Create(entries).Error
}

// InsertAuditEntry writes a single entry synchronously.
func (s *Store) InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(e).Error
}

// ListAuditEntries returns a workspace's audit trail, newest first.
func (s *Store) ListAuditEntries(ctx context.Context, workspaceID string, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []*models.AuditEntry
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// IsForeignKeyViolation reports whether err is a foreign-key constraint
// failure, e.g. the workspace was deleted between enqueue and flush.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "violates foreign key constraint")
}

// IsBusy reports whether err is a transient lock/busy condition worth a
// short retry.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "deadlock detected")
}
