// Package models defines the persistent entities of the capmd workspace
// service and the domain errors the store and handlers exchange.
package models

import "time"

// RecoveryWindow is how long a soft-deleted file stays recoverable.
const RecoveryWindow = 7 * 24 * time.Hour

// IdempotencyTTL is how long a stored idempotency response is retained
// before garbage collection. 24 hours covers common client retry horizons.
const IdempotencyTTL = 24 * time.Hour

// DefaultMaxWorkspaceStorage is the per-workspace storage quota in bytes
// unless overridden by configuration (100 MiB).
const DefaultMaxWorkspaceStorage = int64(100 << 20)

// DefaultMaxFileSize caps the content size of a single file (5 MiB).
const DefaultMaxFileSize = int64(5 << 20)

// AllModels returns every entity for GORM AutoMigrate, in dependency order.
func AllModels() []any {
	return []any{
		&Workspace{},
		&Owner{},
		&File{},
		&Folder{},
		&Append{},
		&CapabilityKey{},
		&APIKey{},
		&IdempotencyRecord{},
		&AuditEntry{},
		&WebhookSubscription{},
	}
}
