package models

import "time"

// IdempotencyRecord stores a response envelope keyed by a client-supplied
// token. A given token replays exactly the same response until expiry;
// concurrent inserts are de-duplicated by the unique token index, and the
// losers replay the winner's record.
type IdempotencyRecord struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID string    `gorm:"size:36;not null;index" json:"workspace_id"`
	KeyID       string    `gorm:"size:36;not null" json:"key_id"`
	Token       string    `gorm:"size:255;not null;uniqueIndex" json:"token"`
	Status      int       `gorm:"not null" json:"status"`
	Body        string    `gorm:"not null" json:"body"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName returns the table name for IdempotencyRecord.
func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}
