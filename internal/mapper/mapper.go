// Package mapper turns one adapter's raw position payload into the
// canonical normalized snapshot the sync orchestrator persists. All money
// arithmetic happens in decimal and is converted to cents at the edge.
package mapper

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"brokerbridge/internal/adapters"
	"brokerbridge/internal/models"
	"brokerbridge/internal/symbols"
)

// NormalizedLot is one mapped holding, money in cents, ready to persist
// once its instrument has been resolved to a database row.
type NormalizedLot struct {
	Instrument      symbols.Parsed
	Quantity        float64
	AveragePrice    *int64
	CostBasis       int64
	LastPrice       *int64
	MarketValue     int64
	UnrealizedPL    int64
	UnrealizedPLPct *float64
	BasisMethod     models.BasisMethod
	Metadata        map[string]string
	Row             int
}

// NormalizedSnapshot is the transient, adapter-agnostic contract between
// mapping and persistence. It is never stored directly.
type NormalizedSnapshot struct {
	AccountID string
	AsOf      time.Time
	CashTotal int64
	Currency  string
	Lots      []NormalizedLot
	RowErrors []adapters.RowError
	Warnings  []string
}

const plPctBound = 9999.0

// ToSnapshot maps a raw payload into a normalized snapshot. Missing figures
// are derived from what is present: cost basis from quantity and average
// price, market value from quantity and last price, both through the
// contract multiplier for options. A source-supplied unrealized P&L is used
// verbatim since it already encodes the source's sign convention for
// shorts; only when absent is it derived sign-aware.
func ToSnapshot(payload *adapters.RawPositionPayload, accountID string, sourceTag string, asOf time.Time) *NormalizedSnapshot {
	snap := &NormalizedSnapshot{
		AccountID: accountID,
		AsOf:      asOf,
		CashTotal: toCents(payload.Cash),
		Currency:  "USD",
		RowErrors: payload.RowErrors,
	}

	verbatimPL := 0
	for _, raw := range payload.Positions {
		parsed, warnings := symbols.Parse(raw.Symbol, sourceTag, symbols.Hints{
			AssetClass: raw.AssetClassHint,
			Currency:   raw.CurrencyHint,
			Name:       raw.Name,
		})
		for _, w := range warnings {
			snap.Warnings = append(snap.Warnings, fmt.Sprintf("row %d: %s", raw.Row, w))
		}

		multiplier := decimal.NewFromInt(1)
		if parsed.Option != nil {
			multiplier = decimal.NewFromInt(int64(parsed.Option.Multiplier))
		}
		absQty := raw.Quantity.Abs()

		costBasis := decimal.Zero
		switch {
		case raw.CostBasis != nil:
			costBasis = raw.CostBasis.Abs()
		case raw.AveragePrice != nil:
			costBasis = absQty.Mul(*raw.AveragePrice).Mul(multiplier)
		}

		marketValue := decimal.Zero
		switch {
		case raw.MarketValue != nil:
			marketValue = raw.MarketValue.Abs()
		case raw.LastPrice != nil:
			marketValue = absQty.Mul(*raw.LastPrice).Mul(multiplier)
		}

		var unrealizedPL decimal.Decimal
		if raw.UnrealizedPL != nil {
			unrealizedPL = *raw.UnrealizedPL
			verbatimPL++
		} else if raw.Quantity.IsNegative() {
			unrealizedPL = costBasis.Sub(marketValue)
		} else {
			unrealizedPL = marketValue.Sub(costBasis)
		}

		lot := NormalizedLot{
			Instrument:   parsed,
			Quantity:     decimalToFloat(raw.Quantity),
			AveragePrice: optionalCents(raw.AveragePrice),
			CostBasis:    toCents(costBasis),
			LastPrice:    optionalCents(raw.LastPrice),
			MarketValue:  toCents(marketValue),
			UnrealizedPL: toCents(unrealizedPL),
			BasisMethod:  models.BasisMethodUnknown,
			Metadata:     raw.Metadata,
			Row:          raw.Row,
		}
		if !costBasis.IsZero() {
			pct := clampPct(decimalToFloat(unrealizedPL.Div(costBasis).Mul(decimal.NewFromInt(100))))
			lot.UnrealizedPLPct = &pct
		}

		snap.Lots = append(snap.Lots, lot)
	}

	if verbatimPL > 0 {
		snap.Warnings = append(snap.Warnings,
			fmt.Sprintf("%d lots carry source-reported unrealized P&L, used verbatim", verbatimPL))
	}

	return snap
}

// clampPct bounds the percent to what the persisted column can hold. Only
// the percentage is clamped, never the underlying P&L value.
func clampPct(pct float64) float64 {
	if pct > plPctBound {
		return plPctBound
	}
	if pct < -plPctBound {
		return -plPctBound
	}
	return pct
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func optionalCents(d *decimal.Decimal) *int64 {
	if d == nil {
		return nil
	}
	c := toCents(*d)
	return &c
}

func decimalToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
