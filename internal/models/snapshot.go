package models

import (
	"time"

	"brokerbridge/internal/uuid"

	"gorm.io/gorm"
)

// BasisMethod is the cost-basis attribution convention for a lot.
type BasisMethod string

const (
	BasisMethodUnknown BasisMethod = "UNKNOWN"
	BasisMethodFIFO    BasisMethod = "FIFO"
)

// PositionSnapshot is an immutable point-in-time capture of one account's
// full position set. Snapshots are append-only time-series data: no Base
// embed, no soft deletes. The aggregate totals are accumulated while lots
// are inserted and written once at the end of the account's persistence
// step, inside the same transaction as the lot inserts.
type PositionSnapshot struct {
	ID               string    `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID        string    `gorm:"type:uuid;not null;index:idx_position_snapshots_account_asof" json:"account_id"`
	AsOf             time.Time `gorm:"not null;index:idx_position_snapshots_account_asof" json:"as_of"`
	CashTotal        int64     `gorm:"type:bigint;not null;default:0" json:"cash_total"`
	MarketValueTotal int64     `gorm:"type:bigint;not null;default:0" json:"market_value_total"`
	CostBasisTotal   int64     `gorm:"type:bigint;not null;default:0" json:"cost_basis_total"`
	Currency         string    `gorm:"not null;default:'USD'" json:"currency"`
	CreatedAt        time.Time `json:"created_at"`

	// Relationships
	Lots []PositionLot `gorm:"foreignKey:SnapshotID" json:"lots,omitempty"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (s *PositionSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New()
	}
	return nil
}

// PositionLot is one instrument holding within a snapshot. Quantity is
// signed (negative = short); cost basis and market value are never negative
// by construction, the sign lives in the quantity. Money fields are cents.
type PositionLot struct {
	ID           string  `gorm:"type:uuid;primaryKey" json:"id"`
	SnapshotID   string  `gorm:"type:uuid;not null;index" json:"snapshot_id"`
	InstrumentID string  `gorm:"type:uuid;not null;index" json:"instrument_id"`
	Quantity     float64 `gorm:"not null" json:"quantity"`
	AveragePrice *int64  `gorm:"type:bigint" json:"average_price,omitempty"`
	CostBasis    int64   `gorm:"type:bigint;not null;default:0" json:"cost_basis"`
	LastPrice    *int64  `gorm:"type:bigint" json:"last_price,omitempty"`
	MarketValue  int64   `gorm:"type:bigint;not null;default:0" json:"market_value"`
	UnrealizedPL int64   `gorm:"type:bigint;not null;default:0" json:"unrealized_pl"`
	// UnrealizedPLPct is clamped to [-9999, 9999] at mapping time to respect
	// the bounded-precision column; the underlying P&L value is not clamped.
	UnrealizedPLPct *float64    `json:"unrealized_pl_pct,omitempty"`
	BasisMethod     BasisMethod `gorm:"not null;default:'UNKNOWN'" json:"basis_method"`
	// Metadata is a JSON-encoded bag of original broker fields for the row
	// (account nickname hint included).
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Relationships
	Instrument Instrument `gorm:"foreignKey:InstrumentID" json:"instrument,omitempty"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (l *PositionLot) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New()
	}
	return nil
}
