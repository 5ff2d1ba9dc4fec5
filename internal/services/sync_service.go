package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"brokerbridge/internal/adapters"
	"brokerbridge/internal/credentials"
	apperrors "brokerbridge/internal/errors"
	"brokerbridge/internal/logger"
	"brokerbridge/internal/mapper"
	"brokerbridge/internal/models"
	"brokerbridge/internal/symbols"
)

// syncService drives connection syncs: resolve accounts, fetch, map,
// validate, persist, one snapshot per account, failures isolated per
// account.
type syncService struct {
	db    *gorm.DB
	vault *credentials.Vault
	// workers bounds how many accounts sync concurrently. 1 means
	// sequential, which also guarantees log ordering.
	workers int
}

// NewSyncService creates a new SyncServicer.
func NewSyncService(db *gorm.DB, vault *credentials.Vault, workers int) SyncServicer {
	if workers < 1 {
		workers = 1
	}
	return &syncService{db: db, vault: vault, workers: workers}
}

// SyncConnection runs one full sync attempt for the connection. The
// connection ends ACTIVE when the run as a whole succeeded; a single
// account's failure does not fail the run unless every account failed.
func (s *syncService) SyncConnection(ctx context.Context, orgID, connectionID string, opts SyncOptions) (*SyncResult, error) {
	var conn models.BrokerConnection
	err := s.db.Where("id = ? AND org_id = ?", connectionID, orgID).First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrConnectionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	connLog, err := s.startLog(conn.ID, nil, models.SyncScopeConnection)
	if err != nil {
		return nil, err
	}

	session, err := s.openSession(ctx, &conn)
	if err != nil {
		s.finishLog(connLog, models.SyncError, err.Error())
		s.setConnectionStatus(&conn, models.ConnectionError, nil)
		return nil, err
	}

	accounts, err := s.resolveAccounts(ctx, &conn, session, opts.ForceRefreshAccounts)
	if err != nil {
		s.finishLog(connLog, models.SyncError, err.Error())
		s.setConnectionStatus(&conn, models.ConnectionError, nil)
		return nil, err
	}

	results := s.syncAccounts(ctx, &conn, session, accounts)

	succeeded := 0
	for _, r := range results {
		if r.Status == models.SyncSuccess {
			succeeded++
		}
	}

	result := &SyncResult{ConnectionID: conn.ID, Accounts: results}
	now := time.Now()
	if len(accounts) == 0 || succeeded > 0 {
		result.Status = models.SyncSuccess
		result.Connection = models.ConnectionActive
		s.finishLog(connLog, models.SyncSuccess,
			fmt.Sprintf("%d/%d accounts synced", succeeded, len(accounts)))
		s.setConnectionStatus(&conn, models.ConnectionActive, &now)
	} else {
		result.Status = models.SyncError
		result.Connection = models.ConnectionError
		s.finishLog(connLog, models.SyncError, "every account failed to sync")
		s.setConnectionStatus(&conn, models.ConnectionError, nil)
	}

	logger.Get().Infow("connection sync finished",
		"connection_id", conn.ID,
		"status", result.Status,
		"accounts", len(accounts),
		"succeeded", succeeded)
	return result, nil
}

// openSession decrypts the credential blob and re-establishes the adapter
// session. The blob is read once per sync and never mutated mid-run.
func (s *syncService) openSession(ctx context.Context, conn *models.BrokerConnection) (adapters.Session, error) {
	adapter, err := adapters.ForProvider(conn.Provider)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.vault.Decrypt(conn.Credentials)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrAuthFailed, "Stored credentials could not be decrypted")
	}
	var input adapters.ConnectInput
	if err := json.Unmarshal(plaintext, &input); err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrAuthFailed, "Stored credentials are malformed")
	}

	return adapter.Connect(ctx, input)
}

// resolveAccounts loads the connection's accounts, re-listing from the
// adapter when none exist yet or a refresh was requested. Upsert is by
// (connection, external id), never duplicating.
func (s *syncService) resolveAccounts(ctx context.Context, conn *models.BrokerConnection, session adapters.Session, forceRefresh bool) ([]models.BrokerAccount, error) {
	var accounts []models.BrokerAccount
	if err := s.db.Where("connection_id = ?", conn.ID).Find(&accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(accounts) > 0 && !forceRefresh {
		return accounts, nil
	}

	adapter, err := adapters.ForProvider(conn.Provider)
	if err != nil {
		return nil, err
	}
	listed, err := adapter.ListAccounts(ctx, session)
	if err != nil {
		return nil, err
	}

	accounts = accounts[:0]
	for _, info := range listed {
		var account models.BrokerAccount
		err := s.db.Where(models.BrokerAccount{ConnectionID: conn.ID, ExternalID: info.ExternalID}).
			Assign(models.BrokerAccount{
				Nickname:     info.Nickname,
				MaskedNumber: info.MaskedNumber,
				AccountType:  info.AccountType,
			}).
			FirstOrCreate(&account).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// syncAccounts runs the per-account pipeline, sequentially or with a
// bounded worker pool. Accounts write disjoint snapshot rows, so the only
// shared-write path is the instrument upsert, which is safe by unique
// constraint.
func (s *syncService) syncAccounts(ctx context.Context, conn *models.BrokerConnection, session adapters.Session, accounts []models.BrokerAccount) []AccountSyncResult {
	results := make([]AccountSyncResult, len(accounts))

	if s.workers == 1 {
		for i := range accounts {
			results[i] = s.syncAccount(ctx, conn, session, &accounts[i])
		}
		return results
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range accounts {
		g.Go(func() error {
			results[i] = s.syncAccount(ctx, conn, session, &accounts[i])
			return nil
		})
	}
	// Account failures are reported in results, never as group errors.
	_ = g.Wait()
	return results
}

// syncAccount is one account's fetch → map → validate → persist pipeline.
// Persistence is a single transaction so cancellation between accounts
// never leaves this one half-synced.
func (s *syncService) syncAccount(ctx context.Context, conn *models.BrokerConnection, session adapters.Session, account *models.BrokerAccount) AccountSyncResult {
	result := AccountSyncResult{
		AccountID:  account.ID,
		ExternalID: account.ExternalID,
	}

	acctLog, err := s.startLog(conn.ID, &account.ID, models.SyncScopeAccount)
	if err != nil {
		result.Status = models.SyncError
		result.Message = err.Error()
		return result
	}
	fail := func(err error) AccountSyncResult {
		result.Status = models.SyncError
		result.Message = err.Error()
		s.finishLog(acctLog, models.SyncError, err.Error())
		logger.Get().Warnw("account sync failed",
			"connection_id", conn.ID,
			"account_id", account.ID,
			"error", err)
		return result
	}

	adapter, err := adapters.ForProvider(conn.Provider)
	if err != nil {
		return fail(err)
	}

	payload, err := adapter.FetchPositions(ctx, session, account.ExternalID)
	if err != nil {
		return fail(err)
	}
	cash, err := adapter.FetchCash(ctx, session, account.ExternalID)
	if err != nil {
		return fail(err)
	}
	payload.Cash = cash.Total

	now := time.Now()
	snap := mapper.ToSnapshot(payload, account.ID, conn.SourceTag, now)
	warnings, err := mapper.ValidateSnapshot(snap, now)
	if err != nil {
		return fail(err)
	}
	result.Warnings = append(snap.Warnings, warnings...)
	result.RowErrors = snap.RowErrors

	snapshotID, lotCount, err := s.persistSnapshot(snap, cash.Currency)
	if err != nil {
		return fail(err)
	}
	result.SnapshotID = snapshotID
	result.LotCount = lotCount
	result.Status = models.SyncSuccess

	msg := fmt.Sprintf("%d lots captured", lotCount)
	if n := len(result.Warnings) + len(result.RowErrors); n > 0 {
		msg += fmt.Sprintf(", %d warnings", n)
	}
	result.Message = msg
	s.finishLog(acctLog, models.SyncSuccess, msg)

	if err := s.db.Model(account).Update("last_synced_at", now).Error; err != nil {
		logger.Get().Errorw("failed to stamp account sync time",
			"account_id", account.ID, "error", err)
	}
	return result
}

// persistSnapshot writes one snapshot and its lots in a single transaction,
// accumulating the aggregate totals in memory and writing them once on the
// snapshot row. Instruments are upserted by (symbol, exchange).
func (s *syncService) persistSnapshot(snap *mapper.NormalizedSnapshot, currency string) (string, int, error) {
	if currency == "" {
		currency = snap.Currency
	}

	snapshot := &models.PositionSnapshot{
		AccountID: snap.AccountID,
		AsOf:      snap.AsOf,
		CashTotal: snap.CashTotal,
		Currency:  currency,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if txErr := tx.Create(snapshot).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}

		var marketTotal, basisTotal int64
		for _, lot := range snap.Lots {
			instrument, txErr := upsertInstrument(tx, lot.Instrument)
			if txErr != nil {
				return txErr
			}

			metadata := ""
			if len(lot.Metadata) > 0 {
				if raw, mErr := json.Marshal(lot.Metadata); mErr == nil {
					metadata = string(raw)
				}
			}

			row := &models.PositionLot{
				SnapshotID:      snapshot.ID,
				InstrumentID:    instrument.ID,
				Quantity:        lot.Quantity,
				AveragePrice:    lot.AveragePrice,
				CostBasis:       lot.CostBasis,
				LastPrice:       lot.LastPrice,
				MarketValue:     lot.MarketValue,
				UnrealizedPL:    lot.UnrealizedPL,
				UnrealizedPLPct: lot.UnrealizedPLPct,
				BasisMethod:     lot.BasisMethod,
				Metadata:        metadata,
			}
			if txErr := tx.Create(row).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}

			marketTotal += lot.MarketValue
			basisTotal += lot.CostBasis
		}

		return tx.Model(snapshot).Updates(map[string]interface{}{
			"market_value_total": marketTotal,
			"cost_basis_total":   basisTotal,
		}).Error
	})
	if err != nil {
		return "", 0, err
	}
	return snapshot.ID, len(snap.Lots), nil
}

func (s *syncService) startLog(connectionID string, accountID *string, scope models.SyncScope) (*models.SyncLog, error) {
	log := &models.SyncLog{
		ConnectionID: connectionID,
		AccountID:    accountID,
		Scope:        scope,
		Status:       models.SyncRunning,
		StartedAt:    time.Now(),
	}
	if err := s.db.Create(log).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return log, nil
}

func (s *syncService) finishLog(log *models.SyncLog, status models.SyncStatus, message string) {
	now := time.Now()
	log.Status = status
	log.FinishedAt = &now
	log.Message = message
	if err := s.db.Model(log).Updates(map[string]interface{}{
		"status":      status,
		"finished_at": now,
		"message":     message,
	}).Error; err != nil {
		logger.Get().Errorw("failed to finish sync log", "log_id", log.ID, "error", err)
	}
}

func (s *syncService) setConnectionStatus(conn *models.BrokerConnection, status models.ConnectionStatus, syncedAt *time.Time) {
	updates := map[string]interface{}{"status": status}
	if syncedAt != nil {
		updates["last_synced_at"] = *syncedAt
	}
	if err := s.db.Model(conn).Updates(updates).Error; err != nil {
		logger.Get().Errorw("failed to update connection status",
			"connection_id", conn.ID, "error", err)
	}
}

// upsertInstrument finds or creates the instrument for (symbol, exchange),
// creating option detail only on first sighting. Identity fields of an
// existing instrument are never mutated. A unique-constraint violation from
// a concurrent upsert resolves by re-reading the winner's row.
func upsertInstrument(tx *gorm.DB, parsed symbols.Parsed) (*models.Instrument, error) {
	var instrument models.Instrument
	err := tx.Where("symbol = ? AND exchange = ?", parsed.Symbol, parsed.Exchange).
		First(&instrument).Error
	if err == nil {
		return &instrument, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	instrument = models.Instrument{
		Symbol:     parsed.Symbol,
		Exchange:   parsed.Exchange,
		Name:       parsed.Name,
		AssetClass: parsed.AssetClass,
		Currency:   parsed.Currency,
		CUSIP:      parsed.CUSIP,
		ISIN:       parsed.ISIN,
	}
	if err := tx.Create(&instrument).Error; err != nil {
		if isUniqueViolation(err) {
			var winner models.Instrument
			if rErr := tx.Where("symbol = ? AND exchange = ?", parsed.Symbol, parsed.Exchange).
				First(&winner).Error; rErr == nil {
				return &winner, nil
			}
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if parsed.Option != nil {
		detail := &models.OptionDetail{
			InstrumentID:     instrument.ID,
			UnderlyingSymbol: parsed.Option.Underlying,
			Right:            parsed.Option.Right,
			Strike:           toStrikeCents(parsed.Option.Strike),
			Expiration:       parsed.Option.Expiration,
			Multiplier:       parsed.Option.Multiplier,
		}
		if err := tx.Create(detail).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		instrument.Option = detail
	}
	return &instrument, nil
}

// toStrikeCents converts a decimal strike to cents for storage.
func toStrikeCents(strike decimal.Decimal) int64 {
	return strike.Shift(2).Round(0).IntPart()
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
