package adapters

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "brokerbridge/internal/errors"
	"brokerbridge/internal/models"
	"brokerbridge/internal/tabular"
)

// CSVAdapter services CSV-export import connections. It is stateless: all
// parsed state lives in the immutable session value Connect returns.
type CSVAdapter struct{}

// csvSession is the parsed import: the extracted table, the resolved column
// mapping, and the display nickname. Built once per Connect, read-only after.
type csvSession struct {
	fileName string
	nickname string
	table    *tabular.Table
	mapping  *tabular.ColumnMapping
}

// Provider implements Session.
func (s *csvSession) Provider() models.BrokerProvider { return models.ProviderCSVImport }

// Provider implements SourceAdapter.
func (a *CSVAdapter) Provider() models.BrokerProvider { return models.ProviderCSVImport }

// Connect validates the import and builds the parsed session: content must
// be non-empty, at least one data row must exist, and a column mapping must
// be inferable or explicitly supplied.
func (a *CSVAdapter) Connect(ctx context.Context, input ConnectInput) (Session, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrAuthFailed, "Import content is required")
	}

	table, err := tabular.Extract(input.Content)
	if err != nil {
		return nil, err
	}

	if len(table.Rows) == 0 {
		return nil, apperrors.WithDetail(apperrors.ErrParseError,
			"No data rows found under the position table header",
			map[string]interface{}{
				"headers":    table.Headers,
				"suggestion": "Check that the export contains positions below the header row",
			})
	}

	var mapping *tabular.ColumnMapping
	if len(input.Columns) > 0 {
		mapping = tabular.NewColumnMapping(input.Columns)
	} else {
		mapping = tabular.InferColumns(table.Headers)
	}
	if mapping == nil {
		return nil, apperrors.WithDetail(apperrors.ErrParseError,
			"Could not identify symbol and quantity columns",
			map[string]interface{}{
				"headers":    table.Headers,
				"suggestion": "Rename the columns holding the ticker and share count to \"Symbol\" and \"Quantity\", or supply an explicit column mapping",
			})
	}

	return &csvSession{
		fileName: input.FileName,
		nickname: strings.TrimSpace(input.Nickname),
		table:    table,
		mapping:  mapping,
	}, nil
}

// ListAccounts returns exactly one synthetic account per imported file,
// named from the explicit nickname or the filename with its extension
// stripped.
func (a *CSVAdapter) ListAccounts(ctx context.Context, session Session) ([]AccountInfo, error) {
	s, err := a.session(session)
	if err != nil {
		return nil, err
	}

	name := s.nickname
	if name == "" && s.fileName != "" {
		name = strings.TrimSuffix(filepath.Base(s.fileName), filepath.Ext(s.fileName))
	}
	if name == "" && s.table.Summary != nil {
		name = s.table.Summary.AccountName
	}
	if name == "" {
		name = "Imported positions"
	}

	return []AccountInfo{{
		ExternalID:  name,
		Nickname:    name,
		AccountType: "brokerage",
	}}, nil
}

// FetchPositions applies the column mapping row by row, collecting per-row
// errors without aborting: an import with 40 good rows and 3 malformed rows
// yields the 40 and reports the 3. Only when every row fails is the fetch
// itself a failure.
func (a *CSVAdapter) FetchPositions(ctx context.Context, session Session, accountExternalID string) (*RawPositionPayload, error) {
	s, err := a.session(session)
	if err != nil {
		return nil, err
	}

	payload := &RawPositionPayload{
		Cash:     decimal.Zero,
		Metadata: map[string]string{"file_name": s.fileName},
	}

	for i, row := range s.table.Rows {
		rowNum := s.table.RowNumbers[i]
		if msg := s.mapping.ValidateRow(row); msg != "" {
			payload.RowErrors = append(payload.RowErrors, RowError{Row: rowNum, Message: msg})
			continue
		}

		pos := RawPosition{
			Row:             rowNum,
			Symbol:          s.mapping.Get(row, tabular.FieldSymbol),
			AccountNickname: s.mapping.Get(row, tabular.FieldAccountNickname),
			AssetClassHint:  s.mapping.Get(row, tabular.FieldAssetClass),
			CurrencyHint:    s.mapping.Get(row, tabular.FieldCurrency),
			Name:            s.mapping.Get(row, tabular.FieldName),
			Metadata:        rowMetadata(s.table.Headers, row),
		}

		// ValidateRow already proved quantity numeric.
		pos.Quantity, _ = tabular.ParseNumber(s.mapping.Get(row, tabular.FieldQuantity))
		pos.AveragePrice = optionalNumber(s.mapping, row, tabular.FieldAveragePrice)
		pos.CostBasis = optionalNumber(s.mapping, row, tabular.FieldCostBasis)
		pos.LastPrice = optionalNumber(s.mapping, row, tabular.FieldLastPrice)
		pos.MarketValue = optionalNumber(s.mapping, row, tabular.FieldMarketValue)
		pos.UnrealizedPL = optionalNumber(s.mapping, row, tabular.FieldUnrealizedPL)

		payload.Positions = append(payload.Positions, pos)
	}

	if len(payload.Positions) == 0 && len(payload.RowErrors) > 0 {
		return nil, apperrors.WithDetail(apperrors.ErrParseError,
			fmt.Sprintf("All %d rows failed to parse", len(payload.RowErrors)),
			map[string]interface{}{"row_errors": payload.RowErrors})
	}

	return payload, nil
}

// FetchCash reports zero cash: CSV position exports typically omit it.
func (a *CSVAdapter) FetchCash(ctx context.Context, session Session, accountExternalID string) (*CashBalance, error) {
	if _, err := a.session(session); err != nil {
		return nil, err
	}
	return &CashBalance{Total: decimal.Zero, Currency: "USD"}, nil
}

// TestConnection for a CSV source is "was parsing already successful".
func (a *CSVAdapter) TestConnection(ctx context.Context, session Session) bool {
	s, err := a.session(session)
	return err == nil && len(s.table.Rows) > 0
}

func (a *CSVAdapter) session(session Session) (*csvSession, error) {
	s, ok := session.(*csvSession)
	if !ok || s == nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidAccount, "Session is not a CSV import session")
	}
	return s, nil
}

func optionalNumber(m *tabular.ColumnMapping, row []string, field tabular.Field) *decimal.Decimal {
	cell := m.Get(row, field)
	if cell == "" {
		return nil
	}
	d, err := tabular.ParseNumber(cell)
	if err != nil {
		return nil
	}
	return &d
}

func rowMetadata(headers, row []string) map[string]string {
	meta := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(row) && row[i] != "" {
			meta[h] = row[i]
		}
	}
	return meta
}
