package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"brokerbridge/internal/adapters"
	apperrors "brokerbridge/internal/errors"
	"brokerbridge/internal/models"
	"brokerbridge/internal/testutil"
)

// flakyProvider is a test-only provider whose adapter reports two accounts
// and fails position fetches for one of them.
const flakyProvider = models.BrokerProvider("test_flaky")

type flakyAdapter struct{}

type flakySession struct{}

func (flakySession) Provider() models.BrokerProvider { return flakyProvider }

func (flakyAdapter) Provider() models.BrokerProvider { return flakyProvider }

func (flakyAdapter) Connect(ctx context.Context, input adapters.ConnectInput) (adapters.Session, error) {
	return flakySession{}, nil
}

func (flakyAdapter) ListAccounts(ctx context.Context, session adapters.Session) ([]adapters.AccountInfo, error) {
	return []adapters.AccountInfo{
		{ExternalID: "good-account", Nickname: "Good"},
		{ExternalID: "bad-account", Nickname: "Bad"},
	}, nil
}

func (flakyAdapter) FetchPositions(ctx context.Context, session adapters.Session, accountExternalID string) (*adapters.RawPositionPayload, error) {
	if accountExternalID == "bad-account" {
		return nil, apperrors.WithMessage(apperrors.ErrAdapterUnknown, "broker hiccup")
	}
	qty := decimal.NewFromInt(10)
	return &adapters.RawPositionPayload{
		Positions: []adapters.RawPosition{{
			Symbol:      "AAPL",
			Quantity:    qty,
			CostBasis:   decimalPtr("1500.00"),
			MarketValue: decimalPtr("1950.00"),
		}},
	}, nil
}

func (flakyAdapter) FetchCash(ctx context.Context, session adapters.Session, accountExternalID string) (*adapters.CashBalance, error) {
	return &adapters.CashBalance{Total: decimal.Zero, Currency: "USD"}, nil
}

func (flakyAdapter) TestConnection(ctx context.Context, session adapters.Session) bool { return true }

func decimalPtr(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func init() {
	adapters.Register(flakyProvider, func() adapters.SourceAdapter { return flakyAdapter{} })
}

// createSyncedCSVConnection persists a real CSV connection through the
// connection service so its credential blob is a valid encrypted import.
func createSyncedCSVConnection(t *testing.T, svc ConnectionServicer, orgID string) *models.BrokerConnection {
	t.Helper()
	conn, err := svc.CreateCSVConnection(context.Background(), orgID, testutil.NewOrgID(), "Fidelity export", adapters.ConnectInput{
		FileName: "positions.csv",
		Content:  connTestExport,
	})
	testutil.AssertNoError(t, err)
	return conn
}

func TestSyncConnectionCSV(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	vault := newTestVault(t)
	connSvc := NewConnectionService(db, vault)
	syncSvc := NewSyncService(db, vault, 1)
	orgID := testutil.NewOrgID()
	conn := createSyncedCSVConnection(t, connSvc, orgID)

	result, err := syncSvc.SyncConnection(context.Background(), orgID, conn.ID, SyncOptions{})
	testutil.AssertNoError(t, err)

	if result.Status != models.SyncSuccess {
		t.Fatalf("expected SUCCESS, got %s", result.Status)
	}
	if len(result.Accounts) != 1 {
		t.Fatalf("expected 1 account result, got %d", len(result.Accounts))
	}
	if result.Accounts[0].LotCount != 2 {
		t.Errorf("expected 2 lots, got %d", result.Accounts[0].LotCount)
	}

	var refreshed models.BrokerConnection
	testutil.AssertNoError(t, db.First(&refreshed, "id = ?", conn.ID).Error)
	if refreshed.Status != models.ConnectionActive {
		t.Errorf("expected ACTIVE after success, got %s", refreshed.Status)
	}
	if refreshed.LastSyncedAt == nil {
		t.Error("expected last_synced_at to be stamped on success")
	}

	var snapshot models.PositionSnapshot
	testutil.AssertNoError(t, db.First(&snapshot, "id = ?", result.Accounts[0].SnapshotID).Error)
	// 100 x $195 + 50 x $410 in cents.
	if snapshot.MarketValueTotal != 1950000+2050000 {
		t.Errorf("expected accumulated market value total, got %d", snapshot.MarketValueTotal)
	}
	if snapshot.CostBasisTotal != 3000000 {
		t.Errorf("expected accumulated cost basis total, got %d", snapshot.CostBasisTotal)
	}

	var lotCount int64
	db.Model(&models.PositionLot{}).Where("snapshot_id = ?", snapshot.ID).Count(&lotCount)
	if lotCount != 2 {
		t.Errorf("expected 2 persisted lots, got %d", lotCount)
	}

	var logs []models.SyncLog
	testutil.AssertNoError(t, db.Where("connection_id = ?", conn.ID).Find(&logs).Error)
	// One connection-level record plus one per account.
	if len(logs) != 2 {
		t.Fatalf("expected 2 sync log records, got %d", len(logs))
	}
	for _, log := range logs {
		if log.Status != models.SyncSuccess {
			t.Errorf("expected SUCCESS log, got %s (%s)", log.Status, log.Scope)
		}
		if log.FinishedAt == nil {
			t.Errorf("expected %s log to be finished", log.Scope)
		}
	}
}

func TestSyncConnectionIdempotentAccounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	vault := newTestVault(t)
	connSvc := NewConnectionService(db, vault)
	syncSvc := NewSyncService(db, vault, 1)
	orgID := testutil.NewOrgID()
	conn := createSyncedCSVConnection(t, connSvc, orgID)

	_, err := syncSvc.SyncConnection(context.Background(), orgID, conn.ID, SyncOptions{})
	testutil.AssertNoError(t, err)
	_, err = syncSvc.SyncConnection(context.Background(), orgID, conn.ID, SyncOptions{ForceRefreshAccounts: true})
	testutil.AssertNoError(t, err)

	var accounts int64
	db.Model(&models.BrokerAccount{}).Where("connection_id = ?", conn.ID).Count(&accounts)
	if accounts != 1 {
		t.Errorf("re-listing must upsert, not duplicate: got %d accounts", accounts)
	}

	var snapshots int64
	db.Model(&models.PositionSnapshot{}).Count(&snapshots)
	if snapshots != 2 {
		t.Errorf("each successful sync appends a snapshot: got %d", snapshots)
	}

	// Both syncs saw the same two symbols; instruments are upserted by
	// (symbol, exchange), never duplicated.
	var instruments int64
	db.Model(&models.Instrument{}).Count(&instruments)
	if instruments != 2 {
		t.Errorf("expected 2 instruments across both syncs, got %d", instruments)
	}
}

func TestSyncConnectionAccountFailureIsolated(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	vault := newTestVault(t)
	syncSvc := NewSyncService(db, vault, 1)
	orgID := testutil.NewOrgID()

	blob, err := vault.Encrypt(mustJSON(adapters.ConnectInput{}))
	testutil.AssertNoError(t, err)
	conn := &models.BrokerConnection{
		OrgID:       orgID,
		UserID:      testutil.NewOrgID(),
		Provider:    flakyProvider,
		Status:      models.ConnectionActive,
		Credentials: blob,
	}
	testutil.AssertNoError(t, db.Create(conn).Error)

	result, err := syncSvc.SyncConnection(context.Background(), orgID, conn.ID, SyncOptions{})
	testutil.AssertNoError(t, err)

	if result.Status != models.SyncSuccess {
		t.Fatalf("one failing account must not fail the run, got %s", result.Status)
	}
	if len(result.Accounts) != 2 {
		t.Fatalf("expected 2 account results, got %d", len(result.Accounts))
	}

	byExternal := map[string]AccountSyncResult{}
	for _, r := range result.Accounts {
		byExternal[r.ExternalID] = r
	}
	if byExternal["good-account"].Status != models.SyncSuccess {
		t.Errorf("good account should succeed, got %s", byExternal["good-account"].Status)
	}
	if byExternal["bad-account"].Status != models.SyncError {
		t.Errorf("bad account should fail, got %s", byExternal["bad-account"].Status)
	}

	var refreshed models.BrokerConnection
	testutil.AssertNoError(t, db.First(&refreshed, "id = ?", conn.ID).Error)
	if refreshed.Status != models.ConnectionActive {
		t.Errorf("partial success keeps the connection ACTIVE, got %s", refreshed.Status)
	}

	// Only the good account got a snapshot.
	var snapshots int64
	db.Model(&models.PositionSnapshot{}).Count(&snapshots)
	if snapshots != 1 {
		t.Errorf("expected 1 snapshot, got %d", snapshots)
	}
}

func TestSyncConnectionBadCredentials(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	vault := newTestVault(t)
	syncSvc := NewSyncService(db, vault, 1)
	orgID := testutil.NewOrgID()

	conn := &models.BrokerConnection{
		OrgID:       orgID,
		UserID:      testutil.NewOrgID(),
		Provider:    models.ProviderCSVImport,
		Status:      models.ConnectionActive,
		Credentials: []byte("not an encrypted blob"),
	}
	testutil.AssertNoError(t, db.Create(conn).Error)

	_, err := syncSvc.SyncConnection(context.Background(), orgID, conn.ID, SyncOptions{})
	testutil.AssertAppError(t, err, "AUTH_FAILED")

	var refreshed models.BrokerConnection
	testutil.AssertNoError(t, db.First(&refreshed, "id = ?", conn.ID).Error)
	if refreshed.Status != models.ConnectionError {
		t.Errorf("expected ERROR after auth failure, got %s", refreshed.Status)
	}
	if refreshed.LastSyncedAt != nil {
		t.Error("last_synced_at must not move on failure")
	}
}

func TestSyncConnectionNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	syncSvc := NewSyncService(db, newTestVault(t), 1)

	_, err := syncSvc.SyncConnection(context.Background(), testutil.NewOrgID(), testutil.NewOrgID(), SyncOptions{})
	testutil.AssertAppError(t, err, "CONNECTION_NOT_FOUND")
}

func TestSyncConnectionParallelWorkers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	vault := newTestVault(t)
	syncSvc := NewSyncService(db, vault, 4)
	orgID := testutil.NewOrgID()

	blob, err := vault.Encrypt(mustJSON(adapters.ConnectInput{}))
	testutil.AssertNoError(t, err)
	conn := &models.BrokerConnection{
		OrgID:       orgID,
		UserID:      testutil.NewOrgID(),
		Provider:    flakyProvider,
		Status:      models.ConnectionActive,
		Credentials: blob,
	}
	testutil.AssertNoError(t, db.Create(conn).Error)

	result, err := syncSvc.SyncConnection(context.Background(), orgID, conn.ID, SyncOptions{})
	testutil.AssertNoError(t, err)
	if len(result.Accounts) != 2 {
		t.Fatalf("expected 2 account results, got %d", len(result.Accounts))
	}
	if result.Status != models.SyncSuccess {
		t.Errorf("parallel run should preserve isolation, got %s", result.Status)
	}
}

func mustJSON(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
