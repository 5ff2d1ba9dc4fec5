package symbols

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"brokerbridge/internal/models"
)

func TestParse(t *testing.T) {
	t.Run("plain_equity", func(t *testing.T) {
		p, warnings := Parse("aapl", "fidelity", Hints{Name: "Apple Inc"})
		if len(warnings) != 0 {
			t.Errorf("unexpected warnings: %v", warnings)
		}
		if p.Symbol != "AAPL" {
			t.Errorf("expected AAPL, got %s", p.Symbol)
		}
		if p.AssetClass != models.AssetClassEquity {
			t.Errorf("expected equity, got %s", p.AssetClass)
		}
		if p.Exchange != "" {
			t.Errorf("exchange should not be guessed, got %s", p.Exchange)
		}
		if p.Currency != "USD" {
			t.Errorf("expected USD default, got %s", p.Currency)
		}
	})

	t.Run("exchange_suffix_stripped", func(t *testing.T) {
		p, _ := Parse("IBM.NYSE", "", Hints{})
		if p.Symbol != "IBM" {
			t.Errorf("expected IBM, got %s", p.Symbol)
		}
		if p.Exchange != "NYSE" {
			t.Errorf("expected NYSE from suffix, got %q", p.Exchange)
		}
	})

	t.Run("metadata_exchange_wins_over_suffix", func(t *testing.T) {
		p, _ := Parse("IBM.NYSE", "", Hints{Exchange: "nasdaq"})
		if p.Exchange != "NASDAQ" {
			t.Errorf("expected hint exchange NASDAQ, got %q", p.Exchange)
		}
	})

	t.Run("dot_ticker_not_treated_as_exchange", func(t *testing.T) {
		p, _ := Parse("BF.B", "", Hints{})
		if p.Symbol != "BF.B" {
			t.Errorf("expected BF.B preserved, got %s", p.Symbol)
		}
	})

	t.Run("footnote_decoration_stripped", func(t *testing.T) {
		p, _ := Parse("MSFT**", "", Hints{})
		if p.Symbol != "MSFT" {
			t.Errorf("expected MSFT, got %s", p.Symbol)
		}
	})

	t.Run("known_etf", func(t *testing.T) {
		p, _ := Parse("SPY", "", Hints{})
		if p.AssetClass != models.AssetClassETF {
			t.Errorf("expected etf, got %s", p.AssetClass)
		}
	})

	t.Run("crypto_pattern", func(t *testing.T) {
		for _, sym := range []string{"BTC", "ETH-USD", "SOLUSD"} {
			p, _ := Parse(sym, "", Hints{})
			if p.AssetClass != models.AssetClassCrypto {
				t.Errorf("%s: expected crypto, got %s", sym, p.AssetClass)
			}
		}
	})

	t.Run("hint_beats_pattern", func(t *testing.T) {
		// SPY is on the ETF list, but an explicit hint wins.
		p, _ := Parse("SPY", "", Hints{AssetClass: "mutual fund"})
		if p.AssetClass != models.AssetClassFund {
			t.Errorf("expected fund from hint, got %s", p.AssetClass)
		}
	})

	t.Run("occ_option", func(t *testing.T) {
		p, warnings := Parse("AAPL  251114P00585000", "", Hints{})
		if len(warnings) != 0 {
			t.Errorf("unexpected warnings: %v", warnings)
		}
		if p.AssetClass != models.AssetClassOption {
			t.Fatalf("expected option, got %s", p.AssetClass)
		}
		if p.Option == nil {
			t.Fatal("expected option terms")
		}
		if p.Option.Underlying != "AAPL" {
			t.Errorf("expected underlying AAPL, got %s", p.Option.Underlying)
		}
		if p.Option.Right != models.OptionRightPut {
			t.Errorf("expected PUT, got %s", p.Option.Right)
		}
		if !p.Option.Strike.Equal(decimal.NewFromInt(585)) {
			t.Errorf("expected strike 585, got %s", p.Option.Strike)
		}
		if p.Option.Multiplier != 100 {
			t.Errorf("expected multiplier 100, got %d", p.Option.Multiplier)
		}
	})

	t.Run("readable_option", func(t *testing.T) {
		p, _ := Parse("AAPL Nov 14 '25 $585 Put", "", Hints{})
		if p.AssetClass != models.AssetClassOption {
			t.Fatalf("expected option, got %s", p.AssetClass)
		}
		if p.Option == nil {
			t.Fatal("expected option terms")
		}
		want := time.Date(2025, 11, 14, 0, 0, 0, 0, time.UTC)
		if !p.Option.Expiration.Equal(want) {
			t.Errorf("expected expiration %v, got %v", want, p.Option.Expiration)
		}
		if p.Option.Right != models.OptionRightPut {
			t.Errorf("expected PUT, got %s", p.Option.Right)
		}
		if !p.Option.Strike.Equal(decimal.NewFromInt(585)) {
			t.Errorf("expected strike 585, got %s", p.Option.Strike)
		}
	})

	t.Run("readable_option_fractional_strike", func(t *testing.T) {
		p, _ := Parse("F Jan 19 '24 $12.50 Call", "", Hints{})
		if p.Option == nil {
			t.Fatal("expected option terms")
		}
		if !p.Option.Strike.Equal(decimal.RequireFromString("12.5")) {
			t.Errorf("expected strike 12.5, got %s", p.Option.Strike)
		}
	})

	t.Run("option_hint_without_parsable_terms", func(t *testing.T) {
		p, warnings := Parse("MYSTERYOPT", "", Hints{AssetClass: "option"})
		if p.AssetClass != models.AssetClassOption {
			t.Fatalf("expected option from hint, got %s", p.AssetClass)
		}
		if p.Option != nil {
			t.Error("expected no option terms for unparsable symbol")
		}
		if len(warnings) != 1 {
			t.Fatalf("expected exactly one warning, got %v", warnings)
		}
	})
}
