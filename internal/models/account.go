package models

import "time"

// BrokerAccount is one sub-account under a broker connection. ExternalID is
// the broker-native identifier, or a synthetic one for import sources.
// Accounts are upserted by (connection, external id) each time the adapter's
// account list is resolved, so repeated listing never duplicates rows.
type BrokerAccount struct {
	Base
	ConnectionID string     `gorm:"type:uuid;not null;uniqueIndex:uq_broker_accounts_connection_external" json:"connection_id"`
	ExternalID   string     `gorm:"not null;uniqueIndex:uq_broker_accounts_connection_external" json:"external_id"`
	Nickname     string     `json:"nickname,omitempty"`
	MaskedNumber string     `json:"masked_number,omitempty"`
	AccountType  string     `json:"account_type,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	// Relationships
	Connection BrokerConnection `gorm:"foreignKey:ConnectionID" json:"-"`
}
