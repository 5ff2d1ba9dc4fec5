package models

import "time"

// AssetClass classifies a tradable instrument.
type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassETF    AssetClass = "etf"
	AssetClassOption AssetClass = "option"
	AssetClassBond   AssetClass = "bond"
	AssetClassCrypto AssetClass = "crypto"
	AssetClassFund   AssetClass = "fund"
)

// OptionRight is the side of an option contract.
type OptionRight string

const (
	OptionRightCall OptionRight = "CALL"
	OptionRightPut  OptionRight = "PUT"
)

// Instrument is the canonical identity of a tradable security. The
// (symbol, exchange) pair is a stable identity key: the same symbol on
// different exchanges is a different instrument. Instruments are created
// lazily on first sighting during sync and are shared across organizations,
// so the core never deletes them.
type Instrument struct {
	Base
	Symbol     string     `gorm:"not null;uniqueIndex:uq_instruments_symbol_exchange" json:"symbol"`
	Exchange   string     `gorm:"uniqueIndex:uq_instruments_symbol_exchange" json:"exchange,omitempty"`
	Name       string     `json:"name,omitempty"`
	AssetClass AssetClass `gorm:"not null;default:'equity'" json:"asset_class"`
	Currency   string     `gorm:"not null;default:'USD'" json:"currency"`
	CUSIP      string     `json:"cusip,omitempty"`
	ISIN       string     `json:"isin,omitempty"`

	// Relationships
	Option *OptionDetail `gorm:"foreignKey:InstrumentID" json:"option,omitempty"`
}

// OptionDetail carries the contract terms of an option instrument.
// UnderlyingID is a weak, lookup-only reference: the option does not own
// its underlying instrument.
type OptionDetail struct {
	Base
	InstrumentID     string      `gorm:"type:uuid;not null;uniqueIndex" json:"instrument_id"`
	UnderlyingSymbol string      `gorm:"not null" json:"underlying_symbol"`
	UnderlyingID     *string     `gorm:"type:uuid" json:"underlying_id,omitempty"`
	Right            OptionRight `gorm:"not null" json:"right"`
	Strike           int64       `gorm:"type:bigint;not null" json:"strike"` // cents, > 0
	Expiration       time.Time   `gorm:"not null" json:"expiration"`
	Multiplier       int         `gorm:"not null;default:100" json:"multiplier"`
}
