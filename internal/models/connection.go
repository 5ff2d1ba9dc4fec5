package models

import "time"

// BrokerProvider identifies which adapter services a connection.
type BrokerProvider string

const (
	ProviderCSVImport BrokerProvider = "csv_import"
	ProviderEtrade    BrokerProvider = "etrade"
)

// ConnectionStatus is the lifecycle state of a broker connection.
type ConnectionStatus string

const (
	ConnectionActive       ConnectionStatus = "ACTIVE"
	ConnectionError        ConnectionStatus = "ERROR"
	ConnectionExpired      ConnectionStatus = "EXPIRED"
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
)

// BrokerConnection is one authenticated link to a broker or import source.
// Credentials is an opaque encrypted blob; plaintext credentials are never
// persisted. Status is ACTIVE if and only if the most recent full sync
// attempt succeeded.
type BrokerConnection struct {
	Base
	OrgID    string         `gorm:"type:uuid;not null;index" json:"org_id"`
	UserID   string         `gorm:"type:uuid;not null" json:"user_id"`
	Provider BrokerProvider `gorm:"not null" json:"provider"`
	// SourceTag is a human-readable label for display ("Fidelity export"),
	// distinct from the provider driving the adapter.
	SourceTag    string           `json:"source_tag,omitempty"`
	Status       ConnectionStatus `gorm:"not null;default:'ACTIVE'" json:"status"`
	Credentials  []byte           `json:"-"`
	LastSyncedAt *time.Time       `json:"last_synced_at,omitempty"`

	// Relationships
	Accounts []BrokerAccount `gorm:"foreignKey:ConnectionID" json:"accounts,omitempty"`
}
