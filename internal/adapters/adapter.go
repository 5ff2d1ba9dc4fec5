// Package adapters defines the uniform capability contract every broker
// integration implements (connect, list sub-accounts, fetch raw positions,
// fetch cash) and the provider registry the sync orchestrator dispatches
// through.
package adapters

import (
	"context"

	"github.com/shopspring/decimal"

	"brokerbridge/internal/models"
	"brokerbridge/internal/tabular"
)

// ConnectInput carries everything an adapter needs to establish a session.
// CSV imports populate the file fields; OAuth brokers populate the token
// fields. The whole struct is what a connection persists (encrypted) as its
// credential blob.
type ConnectInput struct {
	// CSV import sources
	FileName string                `json:"file_name,omitempty"`
	Content  string                `json:"content,omitempty"`
	Nickname string                `json:"nickname,omitempty"`
	Columns  map[tabular.Field]int `json:"columns,omitempty"`

	// OAuth broker sources
	ConsumerKey    string `json:"consumer_key,omitempty"`
	ConsumerSecret string `json:"consumer_secret,omitempty"`
	AccessToken    string `json:"access_token,omitempty"`
	AccessSecret   string `json:"access_secret,omitempty"`
}

// Session is the immutable parsed state an adapter returns from Connect and
// that callers thread explicitly into every later call. Adapters hold no
// hidden per-connection state, so one adapter value is safe to use from
// concurrent sync attempts on different connections.
type Session interface {
	Provider() models.BrokerProvider
}

// AccountInfo describes one sub-account reported by a broker.
type AccountInfo struct {
	ExternalID   string `json:"external_id"`
	Nickname     string `json:"nickname,omitempty"`
	MaskedNumber string `json:"masked_number,omitempty"`
	AccountType  string `json:"account_type,omitempty"`
}

// RawPosition is one position row as the source reported it, before
// normalization. Optional figures are nil when the source did not supply
// them; the mapper derives what it can from what is present.
type RawPosition struct {
	Row             int              `json:"row,omitempty"` // 1-based source row, 0 for API sources
	Symbol          string           `json:"symbol"`
	Quantity        decimal.Decimal  `json:"quantity"`
	AveragePrice    *decimal.Decimal `json:"average_price,omitempty"`
	CostBasis       *decimal.Decimal `json:"cost_basis,omitempty"`
	LastPrice       *decimal.Decimal `json:"last_price,omitempty"`
	MarketValue     *decimal.Decimal `json:"market_value,omitempty"`
	UnrealizedPL    *decimal.Decimal `json:"unrealized_pl,omitempty"`
	AccountNickname string           `json:"account_nickname,omitempty"`
	AssetClassHint  string           `json:"asset_class_hint,omitempty"`
	CurrencyHint    string           `json:"currency_hint,omitempty"`
	Name            string           `json:"name,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// RowError is a per-row extraction failure, keyed by the original 1-based
// data-row number so a user can fix their source file.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// RawPositionPayload is the result of one account's position fetch. Row
// failures are collected, not thrown: a payload may carry both successfully
// parsed positions and a partial-error report.
type RawPositionPayload struct {
	Positions []RawPosition     `json:"positions"`
	Cash      decimal.Decimal   `json:"cash"`
	RowErrors []RowError        `json:"row_errors,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CashEntry is one component of an account's cash breakdown.
type CashEntry struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// CashBalance is an account's cash position.
type CashBalance struct {
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	Breakdown []CashEntry     `json:"breakdown,omitempty"`
}

// SourceAdapter is the capability contract between broker integrations and
// the sync orchestrator. All failures are *errors.AppError values carrying
// the adapter taxonomy codes (AUTH_FAILED, PARSE_ERROR, INVALID_ACCOUNT,
// UNKNOWN).
type SourceAdapter interface {
	Provider() models.BrokerProvider
	Connect(ctx context.Context, input ConnectInput) (Session, error)
	ListAccounts(ctx context.Context, session Session) ([]AccountInfo, error)
	FetchPositions(ctx context.Context, session Session, accountExternalID string) (*RawPositionPayload, error)
	FetchCash(ctx context.Context, session Session, accountExternalID string) (*CashBalance, error)
	// TestConnection is a cheap liveness check: no fetch, no mutation.
	TestConnection(ctx context.Context, session Session) bool
}
