package models

import (
	"time"

	"brokerbridge/internal/uuid"

	"gorm.io/gorm"
)

// SyncScope distinguishes connection-level from account-level log records.
type SyncScope string

const (
	SyncScopeConnection SyncScope = "connection"
	SyncScopeAccount    SyncScope = "account"
)

// SyncStatus is the state of one sync attempt.
type SyncStatus string

const (
	SyncPending SyncStatus = "PENDING"
	SyncRunning SyncStatus = "RUNNING"
	SyncSuccess SyncStatus = "SUCCESS"
	SyncError   SyncStatus = "ERROR"
)

// SyncLog is one record in the append-only sync audit trail. Every attempt,
// connection-level and account-level, writes exactly one row; rows are
// updated only to move their own status forward (RUNNING → SUCCESS/ERROR),
// never rewritten after finishing. This is the system's answer to "why did
// my sync fail."
type SyncLog struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectionID string     `gorm:"type:uuid;not null;index" json:"connection_id"`
	AccountID    *string    `gorm:"type:uuid;index" json:"account_id,omitempty"`
	Scope        SyncScope  `gorm:"not null" json:"scope"`
	Status       SyncStatus `gorm:"not null" json:"status"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Message      string     `json:"message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (s *SyncLog) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New()
	}
	return nil
}
