package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"brokerbridge/internal/models"
	"brokerbridge/internal/uuid"

	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewOrgID returns a fresh organization id for scoping fixtures.
func NewOrgID() string {
	return uuid.New()
}

// CreateTestConnection creates an active CSV-import connection for the org.
func CreateTestConnection(t *testing.T, db *gorm.DB, orgID string) *models.BrokerConnection {
	t.Helper()
	return CreateTestConnectionWithProvider(t, db, orgID, models.ProviderCSVImport)
}

// CreateTestConnectionWithProvider creates an active connection for the
// given provider with an opaque placeholder credential blob.
func CreateTestConnectionWithProvider(t *testing.T, db *gorm.DB, orgID string, provider models.BrokerProvider) *models.BrokerConnection {
	t.Helper()

	conn := &models.BrokerConnection{
		OrgID:       orgID,
		UserID:      uuid.New(),
		Provider:    provider,
		SourceTag:   fmt.Sprintf("source-%d", nextID()),
		Status:      models.ConnectionActive,
		Credentials: []byte("{}"),
	}
	if err := db.Create(conn).Error; err != nil {
		t.Fatalf("failed to create test connection: %v", err)
	}
	return conn
}

// CreateTestAccount creates a broker account under the given connection.
func CreateTestAccount(t *testing.T, db *gorm.DB, connectionID string) *models.BrokerAccount {
	t.Helper()

	account := &models.BrokerAccount{
		ConnectionID: connectionID,
		ExternalID:   fmt.Sprintf("acct-%d", nextID()),
		Nickname:     fmt.Sprintf("Account %d", nextID()),
		AccountType:  "brokerage",
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestInstrument creates an equity instrument with a unique symbol.
func CreateTestInstrument(t *testing.T, db *gorm.DB) *models.Instrument {
	t.Helper()
	return CreateTestInstrumentWithSymbol(t, db, fmt.Sprintf("TST%d", nextID()))
}

// CreateTestInstrumentWithSymbol creates an equity instrument with the given symbol.
func CreateTestInstrumentWithSymbol(t *testing.T, db *gorm.DB, symbol string) *models.Instrument {
	t.Helper()

	instrument := &models.Instrument{
		Symbol:     symbol,
		Name:       symbol + " Test Co",
		AssetClass: models.AssetClassEquity,
		Currency:   "USD",
	}
	if err := db.Create(instrument).Error; err != nil {
		t.Fatalf("failed to create test instrument: %v", err)
	}
	return instrument
}

// CreateTestSnapshot creates a position snapshot for the account at the
// given time with the given totals (cents).
func CreateTestSnapshot(t *testing.T, db *gorm.DB, accountID string, asOf time.Time, marketValue, costBasis int64) *models.PositionSnapshot {
	t.Helper()

	snapshot := &models.PositionSnapshot{
		AccountID:        accountID,
		AsOf:             asOf,
		MarketValueTotal: marketValue,
		CostBasisTotal:   costBasis,
		Currency:         "USD",
	}
	if err := db.Create(snapshot).Error; err != nil {
		t.Fatalf("failed to create test snapshot: %v", err)
	}
	return snapshot
}

// CreateTestLot creates a lot in the snapshot for the instrument. Money in cents.
func CreateTestLot(t *testing.T, db *gorm.DB, snapshotID, instrumentID string, quantity float64, costBasis, marketValue int64) *models.PositionLot {
	t.Helper()

	lot := &models.PositionLot{
		SnapshotID:   snapshotID,
		InstrumentID: instrumentID,
		Quantity:     quantity,
		CostBasis:    costBasis,
		MarketValue:  marketValue,
		UnrealizedPL: marketValue - costBasis,
		BasisMethod:  models.BasisMethodUnknown,
	}
	if quantity < 0 {
		lot.UnrealizedPL = costBasis - marketValue
	}
	if err := db.Create(lot).Error; err != nil {
		t.Fatalf("failed to create test lot: %v", err)
	}
	return lot
}
