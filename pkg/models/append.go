package models

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AppendType is the closed set of append entry types.
type AppendType string

const (
	AppendTask     AppendType = "task"
	AppendClaim    AppendType = "claim"
	AppendResponse AppendType = "response"
	AppendComment  AppendType = "comment"
	AppendBlocked  AppendType = "blocked"
	AppendAnswer   AppendType = "answer"
	AppendRenew    AppendType = "renew"
	AppendCancel   AppendType = "cancel"
	AppendVote     AppendType = "vote"
)

// IsValid checks if the type is a known AppendType.
func (t AppendType) IsValid() bool {
	switch t {
	case AppendTask, AppendClaim, AppendResponse, AppendComment,
		AppendBlocked, AppendAnswer, AppendRenew, AppendCancel, AppendVote:
		return true
	}
	return false
}

// Priority is the closed set of task priorities.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid checks if the priority is a known Priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Labels is a set of strings persisted as a comma-separated column.
type Labels []string

// Value implements driver.Valuer.
func (l Labels) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	return strings.Join(l, ","), nil
}

// Scan implements sql.Scanner.
func (l *Labels) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var s string
	switch v := value.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("unsupported Labels source type %T", value)
	}
	if s == "" {
		*l = nil
		return nil
	}
	*l = strings.Split(s, ",")
	return nil
}

// publicAppendID matches the dense per-file public id form a1, a2, ...
var publicAppendID = regexp.MustCompile(`^a\d+$`)

// ValidAppendID reports whether s has the public append id shape.
func ValidAppendID(s string) bool {
	return publicAppendID.MatchString(s)
}

// Append is one entry in a file's ordered append log.
//
// Seq is the internal monotonic rowid used as the ordering cursor; PublicID
// is the dense per-file id (a1, a2, ...) clients reference. Ref, when set,
// names the PublicID of another append in the same file.
type Append struct {
	Seq         uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	FileID      string     `gorm:"size:36;not null;index;uniqueIndex:idx_appends_file_pub" json:"-"`
	WorkspaceID string     `gorm:"size:36;not null;index" json:"-"`
	PublicID    string     `gorm:"size:16;not null;uniqueIndex:idx_appends_file_pub" json:"id"`
	Author      string     `gorm:"size:128;not null" json:"author"`
	Type        AppendType `gorm:"size:16;not null;index" json:"type"`
	Status      string     `gorm:"size:32" json:"status,omitempty"`
	Priority    Priority   `gorm:"size:16" json:"priority,omitempty"`
	Labels      Labels     `json:"labels,omitempty"`
	Ref         string     `gorm:"size:16;index" json:"ref,omitempty"`
	Preview     string     `gorm:"size:512" json:"content,omitempty"`
	ContentHash string     `gorm:"size:64" json:"content_hash,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName returns the table name for Append.
func (Append) TableName() string {
	return "appends"
}

// ClaimStatusActive is the status recorded on claim entries at insertion.
const ClaimStatusActive = "active"

// ActiveClaim reports whether the entry is a claim whose lease is still
// running at the given instant.
func (a *Append) ActiveClaim(now time.Time) bool {
	return a.Type == AppendClaim &&
		a.Status == ClaimStatusActive &&
		a.ExpiresAt != nil && a.ExpiresAt.After(now)
}
