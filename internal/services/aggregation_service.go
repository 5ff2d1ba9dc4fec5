package services

import (
	"sort"
	"strings"

	"gorm.io/gorm"

	apperrors "brokerbridge/internal/errors"
	"brokerbridge/internal/models"
)

// aggregationService is the cross-account read path. It depends only on
// persisted snapshots, never on sync state.
type aggregationService struct {
	db *gorm.DB
}

// NewAggregationService creates a new AggregationServicer.
func NewAggregationService(db *gorm.DB) AggregationServicer {
	return &aggregationService{db: db}
}

// accountRef pairs an account with its connection's provider for breakdown
// entries and provider filtering.
type accountRef struct {
	Account  models.BrokerAccount
	Provider models.BrokerProvider
}

// Aggregate rolls the latest snapshot per selected account up by instrument
// identity. Lot-level filters (asset class, options-only, symbol substring)
// apply during the grouping pass so excluded lots never touch the totals.
func (s *aggregationService) Aggregate(orgID string, filter AggregationFilter) ([]AggregatedPosition, error) {
	accounts, err := s.selectAccounts(orgID, filter)
	if err != nil {
		return nil, err
	}

	groups := map[string]*AggregatedPosition{}
	for _, ref := range accounts {
		snapshot, err := s.latestSnapshot(ref.Account.ID, filter)
		if err != nil {
			return nil, err
		}
		if snapshot == nil {
			continue
		}

		var lots []models.PositionLot
		err = s.db.Preload("Instrument").Preload("Instrument.Option").
			Where("snapshot_id = ?", snapshot.ID).
			Find(&lots).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		for _, lot := range lots {
			if !lotMatches(&lot, filter) {
				continue
			}

			group, ok := groups[lot.InstrumentID]
			if !ok {
				group = &AggregatedPosition{Instrument: lot.Instrument}
				groups[lot.InstrumentID] = group
			}
			group.TotalQuantity += lot.Quantity
			group.TotalCostBasis += lot.CostBasis
			group.TotalMarketValue += lot.MarketValue
			group.TotalUnrealizedPL += lot.UnrealizedPL
			group.Accounts = append(group.Accounts, AccountBreakdown{
				AccountID:    ref.Account.ID,
				Nickname:     ref.Account.Nickname,
				Provider:     ref.Provider,
				Quantity:     lot.Quantity,
				AveragePrice: lot.AveragePrice,
				MarketValue:  lot.MarketValue,
			})
		}
	}

	positions := make([]AggregatedPosition, 0, len(groups))
	for _, group := range groups {
		group.WeightedAveragePrice = weightedAveragePrice(group.TotalCostBasis, group.TotalQuantity)
		positions = append(positions, *group)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Instrument.Symbol < positions[j].Instrument.Symbol
	})
	return positions, nil
}

// Summary rolls the aggregated positions up once more into org-wide totals
// plus asset-class and provider breakdowns. Cash comes from the same
// latest-snapshot-per-account selection the positions use.
func (s *aggregationService) Summary(orgID string, filter AggregationFilter) (*PortfolioSummary, error) {
	positions, err := s.Aggregate(orgID, filter)
	if err != nil {
		return nil, err
	}

	summary := &PortfolioSummary{
		PositionCount: len(positions),
		ByAssetClass:  map[models.AssetClass]int64{},
		ByProvider:    map[models.BrokerProvider]int64{},
	}
	for _, pos := range positions {
		summary.TotalMarketValue += pos.TotalMarketValue
		summary.TotalCostBasis += pos.TotalCostBasis
		summary.TotalUnrealizedPL += pos.TotalUnrealizedPL
		summary.ByAssetClass[pos.Instrument.AssetClass] += pos.TotalMarketValue
		for _, breakdown := range pos.Accounts {
			summary.ByProvider[breakdown.Provider] += breakdown.MarketValue
		}
	}

	accounts, err := s.selectAccounts(orgID, filter)
	if err != nil {
		return nil, err
	}
	for _, ref := range accounts {
		snapshot, err := s.latestSnapshot(ref.Account.ID, filter)
		if err != nil {
			return nil, err
		}
		if snapshot != nil {
			summary.TotalCash += snapshot.CashTotal
		}
	}
	return summary, nil
}

// selectAccounts resolves which accounts participate: all the org's
// accounts, narrowed by provider or a single account id.
func (s *aggregationService) selectAccounts(orgID string, filter AggregationFilter) ([]accountRef, error) {
	query := s.db.Model(&models.BrokerAccount{}).
		Select("broker_accounts.*, broker_connections.provider AS provider").
		Joins("JOIN broker_connections ON broker_connections.id = broker_accounts.connection_id").
		Where("broker_connections.org_id = ?", orgID).
		Where("broker_connections.deleted_at IS NULL")
	if filter.Provider != nil {
		query = query.Where("broker_connections.provider = ?", *filter.Provider)
	}
	if filter.AccountID != nil {
		query = query.Where("broker_accounts.id = ?", *filter.AccountID)
	}

	type joinedRow struct {
		models.BrokerAccount
		Provider models.BrokerProvider
	}
	var rows []joinedRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	refs := make([]accountRef, len(rows))
	for i, row := range rows {
		refs[i] = accountRef{Account: row.BrokerAccount, Provider: row.Provider}
	}
	return refs, nil
}

// latestSnapshot returns the account's most recent snapshot at or before
// the filter's as-of time, or nil when the account has none.
func (s *aggregationService) latestSnapshot(accountID string, filter AggregationFilter) (*models.PositionSnapshot, error) {
	query := s.db.Where("account_id = ?", accountID)
	if filter.AsOf != nil {
		query = query.Where("as_of <= ?", *filter.AsOf)
	}

	var snapshot models.PositionSnapshot
	err := query.Order("as_of DESC").First(&snapshot).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &snapshot, nil
}

// lotMatches applies the lot-level filters during grouping.
func lotMatches(lot *models.PositionLot, filter AggregationFilter) bool {
	if filter.OptionsOnly && lot.Instrument.AssetClass != models.AssetClassOption {
		return false
	}
	if filter.AssetClass != nil && lot.Instrument.AssetClass != *filter.AssetClass {
		return false
	}
	if filter.SymbolContains != "" &&
		!strings.Contains(lot.Instrument.Symbol, strings.ToUpper(filter.SymbolContains)) {
		return false
	}
	return true
}

// weightedAveragePrice is total cost basis over the magnitude of the signed
// quantity sum. Zero net quantity yields zero: a fully hedged aggregate has
// no meaningful per-unit price.
func weightedAveragePrice(totalCostBasis int64, totalQuantity float64) int64 {
	if totalQuantity == 0 {
		return 0
	}
	qty := totalQuantity
	if qty < 0 {
		qty = -qty
	}
	return int64(float64(totalCostBasis) / qty)
}
