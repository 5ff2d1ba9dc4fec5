package services

import (
	"context"
	"time"

	"brokerbridge/internal/adapters"
	"brokerbridge/internal/models"
	"brokerbridge/internal/pagination"
	"brokerbridge/internal/tabular"
)

// CSVPreview is the dry-run result of parsing an import without persisting
// anything: what table was found and which columns were recognized.
type CSVPreview struct {
	Headers     []string              `json:"headers"`
	Columns     map[tabular.Field]int `json:"columns"`
	RowCount    int                   `json:"row_count"`
	SampleRows  [][]string            `json:"sample_rows"`
	AccountName string                `json:"account_name,omitempty"`
}

// ConnectionServicer defines the contract for broker connection lifecycle logic.
type ConnectionServicer interface {
	PreviewCSV(content string) (*CSVPreview, error)
	CreateCSVConnection(ctx context.Context, orgID, userID, sourceTag string, input adapters.ConnectInput) (*models.BrokerConnection, error)
	GetConnection(orgID, connectionID string) (*models.BrokerConnection, error)
	ListConnections(orgID string, page pagination.PageRequest) (*pagination.PageResponse[models.BrokerConnection], error)
	DeleteConnection(orgID, connectionID string) error
	GetSyncLogs(orgID, connectionID string, page pagination.PageRequest) (*pagination.PageResponse[models.SyncLog], error)
}

// SyncOptions tune one sync attempt.
type SyncOptions struct {
	// ForceRefreshAccounts re-lists accounts from the adapter even when the
	// connection already has some.
	ForceRefreshAccounts bool
}

// AccountSyncResult is the outcome of one account's sync within a run.
type AccountSyncResult struct {
	AccountID  string              `json:"account_id"`
	ExternalID string              `json:"external_id"`
	Status     models.SyncStatus   `json:"status"`
	Message    string              `json:"message,omitempty"`
	SnapshotID string              `json:"snapshot_id,omitempty"`
	LotCount   int                 `json:"lot_count"`
	Warnings   []string            `json:"warnings,omitempty"`
	RowErrors  []adapters.RowError `json:"row_errors,omitempty"`
}

// SyncResult is the outcome of one connection sync run.
type SyncResult struct {
	ConnectionID string                  `json:"connection_id"`
	Status       models.SyncStatus       `json:"status"`
	Connection   models.ConnectionStatus `json:"connection_status"`
	Accounts     []AccountSyncResult     `json:"accounts"`
}

// SyncServicer defines the contract for the sync orchestrator.
type SyncServicer interface {
	SyncConnection(ctx context.Context, orgID, connectionID string, opts SyncOptions) (*SyncResult, error)
}

// AggregationFilter narrows which accounts and lots participate in an
// aggregation pass. Filters apply during grouping, never as a post-filter
// on already-aggregated totals.
type AggregationFilter struct {
	Provider       *models.BrokerProvider
	AccountID      *string
	AssetClass     *models.AssetClass
	OptionsOnly    bool
	SymbolContains string
	AsOf           *time.Time
}

// AccountBreakdown is one account's contribution to an aggregated position.
type AccountBreakdown struct {
	AccountID    string                `json:"account_id"`
	Nickname     string                `json:"nickname,omitempty"`
	Provider     models.BrokerProvider `json:"provider"`
	Quantity     float64               `json:"quantity"`
	AveragePrice *int64                `json:"average_price,omitempty"`
	MarketValue  int64                 `json:"market_value"`
}

// AggregatedPosition is one instrument's cross-account rollup. Money in cents.
type AggregatedPosition struct {
	Instrument           models.Instrument  `json:"instrument"`
	TotalQuantity        float64            `json:"total_quantity"`
	TotalCostBasis       int64              `json:"total_cost_basis"`
	TotalMarketValue     int64              `json:"total_market_value"`
	TotalUnrealizedPL    int64              `json:"total_unrealized_pl"`
	WeightedAveragePrice int64              `json:"weighted_average_price"`
	Accounts             []AccountBreakdown `json:"accounts"`
}

// PortfolioSummary is the org-wide rollup across all aggregated positions.
type PortfolioSummary struct {
	TotalMarketValue  int64                            `json:"total_market_value"`
	TotalCostBasis    int64                            `json:"total_cost_basis"`
	TotalUnrealizedPL int64                            `json:"total_unrealized_pl"`
	TotalCash         int64                            `json:"total_cash"`
	PositionCount     int                              `json:"position_count"`
	ByAssetClass      map[models.AssetClass]int64      `json:"by_asset_class"`
	ByProvider        map[models.BrokerProvider]int64  `json:"by_provider"`
}

// AggregationServicer defines the contract for the cross-account read path.
type AggregationServicer interface {
	Aggregate(orgID string, filter AggregationFilter) ([]AggregatedPosition, error)
	Summary(orgID string, filter AggregationFilter) (*PortfolioSummary, error)
}
