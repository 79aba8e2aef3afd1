package models

import "time"

// Permission is the capability permission tier. Tiers are totally ordered:
// read < append < write.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionAppend Permission = "append"
	PermissionWrite  Permission = "write"
)

// IsValid checks if the permission is a known tier.
func (p Permission) IsValid() bool {
	return p == PermissionRead || p == PermissionAppend || p == PermissionWrite
}

// rank maps tiers onto the total order.
func (p Permission) rank() int {
	switch p {
	case PermissionRead:
		return 1
	case PermissionAppend:
		return 2
	case PermissionWrite:
		return 3
	}
	return 0
}

// Covers reports whether a key with permission p satisfies a requirement of
// required under the read < append < write order.
func (p Permission) Covers(required Permission) bool {
	return p.rank() >= required.rank()
}

// URLPrefix returns the capability URL token prefix for the tier.
func (p Permission) URLPrefix() string {
	switch p {
	case PermissionRead:
		return "r_"
	case PermissionAppend:
		return "a_"
	case PermissionWrite:
		return "w_"
	}
	return ""
}

// ScopeType describes which paths a capability key may touch.
type ScopeType string

const (
	ScopeWorkspace ScopeType = "workspace"
	ScopeFolder    ScopeType = "folder"
	ScopeFile      ScopeType = "file"
)

// IsValid checks if the scope type is known.
func (s ScopeType) IsValid() bool {
	return s == ScopeWorkspace || s == ScopeFolder || s == ScopeFile
}

// CapabilityKey is the persisted form of a capability URL token.
//
// Only the SHA-256 hash of the plaintext is stored; lookup is by hash, and
// the 4-character prefix exists purely for human identification in listings.
// ScopePath is a weak reference: it may name a path that does not exist yet
// or has been deleted, in which case resolution fails closed.
type CapabilityKey struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID string     `gorm:"size:36;not null;index" json:"workspace_id"`
	Prefix      string     `gorm:"size:8;not null" json:"prefix"`
	Hash        string     `gorm:"size:64;not null;uniqueIndex" json:"-"`
	Permission  Permission `gorm:"size:16;not null" json:"permission"`
	ScopeType   ScopeType  `gorm:"size:16;not null" json:"scope_type"`
	ScopePath   string     `gorm:"size:1024;index" json:"scope_path,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// TableName returns the table name for CapabilityKey.
func (CapabilityKey) TableName() string {
	return "capability_keys"
}

// Revoked reports whether the key has been revoked.
func (k *CapabilityKey) Revoked() bool {
	return k.RevokedAt != nil
}

// Expired reports whether the key is past its expiry at the given instant.
func (k *CapabilityKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// APIKey is a workspace admin key carried in an Authorization: Bearer
// header on the /api/v1 surface. Scopes is a comma-separated set drawn
// from {read, append, write, export, search, *}.
type APIKey struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID string     `gorm:"size:36;not null;index" json:"workspace_id"`
	Prefix      string     `gorm:"size:12;not null" json:"prefix"`
	Hash        string     `gorm:"size:64;not null;uniqueIndex" json:"-"`
	Scopes      string     `gorm:"size:128;not null" json:"scopes"`
	Live        bool       `gorm:"not null;default:false" json:"live"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// TableName returns the table name for APIKey.
func (APIKey) TableName() string {
	return "api_keys"
}

// HasScope reports whether the key grants the named scope. The wildcard "*"
// grants everything.
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range splitScopes(k.Scopes) {
		if s == "*" || s == scope {
			return true
		}
	}
	return false
}

func splitScopes(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
