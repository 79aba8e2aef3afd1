package models

import "time"

// AuditAction is the closed set of action tags recorded in the audit trail.
type AuditAction string

const (
	AuditFileCreated      AuditAction = "file.created"
	AuditFileUpdated      AuditAction = "file.updated"
	AuditFileDeleted      AuditAction = "file.deleted"
	AuditFileRecovered    AuditAction = "file.recovered"
	AuditFileMoved        AuditAction = "file.moved"
	AuditFileRenamed      AuditAction = "file.renamed"
	AuditKeysRotated      AuditAction = "keys.rotated"
	AuditFolderCreated    AuditAction = "folder.created"
	AuditFolderDeleted    AuditAction = "folder.deleted"
	AuditAppendCreated    AuditAction = "append.created"
	AuditClaimRenewed     AuditAction = "claim.renewed"
	AuditClaimCompleted   AuditAction = "claim.completed"
	AuditClaimCancelled   AuditAction = "claim.cancelled"
	AuditClaimBlocked     AuditAction = "claim.blocked"
	AuditWorkspaceCreated AuditAction = "workspace.created"
	AuditWorkspaceClaimed AuditAction = "workspace.claimed"
	AuditWebhookCreated   AuditAction = "webhook.created"
	AuditWebhookDeleted   AuditAction = "webhook.deleted"
)

// AuditEntry is one row of the best-effort audit trail.
type AuditEntry struct {
	ID           string      `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID  string      `gorm:"size:36;not null;index" json:"workspace_id"`
	Action       AuditAction `gorm:"size:64;not null;index" json:"action"`
	ResourceType string      `gorm:"size:32" json:"resource_type,omitempty"`
	ResourceID   string      `gorm:"size:36" json:"resource_id,omitempty"`
	ResourcePath string      `gorm:"size:1024" json:"resource_path,omitempty"`
	Actor        string      `gorm:"size:255" json:"actor,omitempty"`
	ActorType    string      `gorm:"size:32" json:"actor_type,omitempty"`
	Metadata     JSONMap     `json:"metadata,omitempty"`
	IP           string      `gorm:"size:64" json:"ip,omitempty"`
	UserAgent    string      `gorm:"size:255" json:"user_agent,omitempty"`
	CreatedAt    time.Time   `gorm:"autoCreateTime;index" json:"created_at"`

	Workspace *Workspace `gorm:"foreignKey:WorkspaceID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for AuditEntry.
func (AuditEntry) TableName() string {
	return "audit_entries"
}
