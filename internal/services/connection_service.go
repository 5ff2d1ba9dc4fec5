package services

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"brokerbridge/internal/adapters"
	"brokerbridge/internal/credentials"
	apperrors "brokerbridge/internal/errors"
	"brokerbridge/internal/logger"
	"brokerbridge/internal/models"
	"brokerbridge/internal/pagination"
	"brokerbridge/internal/tabular"
)

// sampleRowLimit caps how many data rows a preview echoes back.
const sampleRowLimit = 5

// connectionService handles broker connection lifecycle logic.
type connectionService struct {
	db    *gorm.DB
	vault *credentials.Vault
}

// NewConnectionService creates a new ConnectionServicer.
func NewConnectionService(db *gorm.DB, vault *credentials.Vault) ConnectionServicer {
	return &connectionService{db: db, vault: vault}
}

// PreviewCSV parses import content without persisting anything, returning
// the detected table shape and column mapping for the caller to confirm.
func (s *connectionService) PreviewCSV(content string) (*CSVPreview, error) {
	table, err := tabular.Extract(content)
	if err != nil {
		return nil, err
	}

	preview := &CSVPreview{
		Headers:  table.Headers,
		RowCount: len(table.Rows),
	}
	if mapping := tabular.InferColumns(table.Headers); mapping != nil {
		preview.Columns = mapping.Fields()
	}
	for i, row := range table.Rows {
		if i == sampleRowLimit {
			break
		}
		preview.SampleRows = append(preview.SampleRows, row)
	}
	if table.Summary != nil {
		preview.AccountName = table.Summary.AccountName
	}
	return preview, nil
}

// CreateCSVConnection validates the import through the adapter, encrypts the
// connect input as the connection's credential blob, and persists the
// connection together with its synthetic account.
func (s *connectionService) CreateCSVConnection(ctx context.Context, orgID, userID, sourceTag string, input adapters.ConnectInput) (*models.BrokerConnection, error) {
	adapter, err := adapters.ForProvider(models.ProviderCSVImport)
	if err != nil {
		return nil, err
	}

	session, err := adapter.Connect(ctx, input)
	if err != nil {
		return nil, err
	}
	accounts, err := adapter.ListAccounts(ctx, session)
	if err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(input)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	blob, err := s.vault.Encrypt(plaintext)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	conn := &models.BrokerConnection{
		OrgID:       orgID,
		UserID:      userID,
		Provider:    models.ProviderCSVImport,
		SourceTag:   sourceTag,
		Status:      models.ConnectionActive,
		Credentials: blob,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if txErr := tx.Create(conn).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		for _, info := range accounts {
			account := &models.BrokerAccount{
				ConnectionID: conn.ID,
				ExternalID:   info.ExternalID,
				Nickname:     info.Nickname,
				MaskedNumber: info.MaskedNumber,
				AccountType:  info.AccountType,
			}
			if txErr := tx.Create(account).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}
			conn.Accounts = append(conn.Accounts, *account)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("broker connection created",
		"connection_id", conn.ID,
		"org_id", orgID,
		"provider", conn.Provider,
		"accounts", len(conn.Accounts))
	return conn, nil
}

// GetConnection fetches one connection scoped to the org, accounts included.
func (s *connectionService) GetConnection(orgID, connectionID string) (*models.BrokerConnection, error) {
	var conn models.BrokerConnection
	err := s.db.Preload("Accounts").
		Where("id = ? AND org_id = ?", connectionID, orgID).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrConnectionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &conn, nil
}

// ListConnections returns the org's connections, newest first.
func (s *connectionService) ListConnections(orgID string, page pagination.PageRequest) (*pagination.PageResponse[models.BrokerConnection], error) {
	page.Defaults()

	query := s.db.Model(&models.BrokerConnection{}).Where("org_id = ?", orgID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var conns []models.BrokerConnection
	err := query.Preload("Accounts").
		Order("created_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&conns).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(conns, page.Page, page.PageSize, total)
	return &resp, nil
}

// DeleteConnection removes a connection and everything derived from it, in
// dependency order inside one transaction: lots, snapshots, sync logs,
// accounts, then the connection itself.
func (s *connectionService) DeleteConnection(orgID, connectionID string) error {
	conn, err := s.GetConnection(orgID, connectionID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		accountIDs := tx.Model(&models.BrokerAccount{}).
			Select("id").
			Where("connection_id = ?", conn.ID)
		snapshotIDs := tx.Model(&models.PositionSnapshot{}).
			Select("id").
			Where("account_id IN (?)", accountIDs)

		if txErr := tx.Where("snapshot_id IN (?)", snapshotIDs).
			Delete(&models.PositionLot{}).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		if txErr := tx.Where("account_id IN (?)", accountIDs).
			Delete(&models.PositionSnapshot{}).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		if txErr := tx.Where("connection_id = ?", conn.ID).
			Delete(&models.SyncLog{}).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		if txErr := tx.Where("connection_id = ?", conn.ID).
			Delete(&models.BrokerAccount{}).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		if txErr := tx.Delete(&models.BrokerConnection{}, "id = ?", conn.ID).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		return nil
	})
}

// GetSyncLogs returns the connection's append-only sync audit trail, newest
// first.
func (s *connectionService) GetSyncLogs(orgID, connectionID string, page pagination.PageRequest) (*pagination.PageResponse[models.SyncLog], error) {
	if _, err := s.GetConnection(orgID, connectionID); err != nil {
		return nil, err
	}
	page.Defaults()

	query := s.db.Model(&models.SyncLog{}).Where("connection_id = ?", connectionID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var logs []models.SyncLog
	err := query.Order("started_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&logs).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(logs, page.Page, page.PageSize, total)
	return &resp, nil
}
