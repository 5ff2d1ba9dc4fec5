package mapper

import (
	"fmt"
	"time"

	apperrors "brokerbridge/internal/errors"
	"brokerbridge/internal/models"
)

// consistencyTolerance is the allowed mismatch, in cents, between a lot's
// reported unrealized P&L and the figure its own cost basis and market
// value imply.
const consistencyTolerance = 1

// ValidateSnapshot checks a mapped snapshot before persistence. Most
// findings are warnings; negative prices and option lots without contract
// detail reject the whole snapshot. An empty snapshot is valid, an empty
// account is not an error condition.
func ValidateSnapshot(snap *NormalizedSnapshot, now time.Time) ([]string, error) {
	var warnings []string
	var problems []string

	// Expirations carry no time of day, so compare dates, not instants. An
	// option is expired once its expiration date is strictly in the past;
	// one expiring today still trades.
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if len(snap.Lots) == 0 {
		warnings = append(warnings, "snapshot has no lots")
	}

	for _, lot := range snap.Lots {
		label := lot.Instrument.Symbol
		if label == "" {
			label = fmt.Sprintf("row %d", lot.Row)
		}

		if lot.Quantity == 0 {
			warnings = append(warnings, fmt.Sprintf("%s: zero quantity", label))
		}
		if lot.AveragePrice != nil && *lot.AveragePrice < 0 {
			problems = append(problems, fmt.Sprintf("%s: negative average price", label))
		}
		if lot.LastPrice != nil && *lot.LastPrice < 0 {
			problems = append(problems, fmt.Sprintf("%s: negative last price", label))
		}

		if lot.Instrument.AssetClass == models.AssetClassOption {
			switch {
			case lot.Instrument.Option == nil:
				problems = append(problems, fmt.Sprintf("%s: option lot without contract detail", label))
			case !lot.Instrument.Option.Strike.IsPositive():
				problems = append(problems, fmt.Sprintf("%s: option strike must be positive", label))
			case lot.Instrument.Option.Expiration.Before(today):
				warnings = append(warnings, fmt.Sprintf("%s: option expired %s",
					label, lot.Instrument.Option.Expiration.Format("2006-01-02")))
			}
		}

		expected := lot.MarketValue - lot.CostBasis
		if lot.Quantity < 0 {
			expected = lot.CostBasis - lot.MarketValue
		}
		if diff := lot.UnrealizedPL - expected; diff > consistencyTolerance || diff < -consistencyTolerance {
			warnings = append(warnings, fmt.Sprintf(
				"%s: unrealized P&L %d disagrees with cost basis and market value (expected %d)",
				label, lot.UnrealizedPL, expected))
		}
	}

	if len(problems) > 0 {
		return warnings, apperrors.WithDetail(apperrors.ErrSnapshotInvalid,
			fmt.Sprintf("Snapshot rejected: %d invalid lots", len(problems)),
			map[string]interface{}{"problems": problems})
	}
	return warnings, nil
}
