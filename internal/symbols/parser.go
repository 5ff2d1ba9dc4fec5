// Package symbols parses raw broker ticker and option strings into a
// canonical instrument descriptor: symbol, exchange, asset class, and, for
// options, underlying/strike/expiration/right.
package symbols

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"brokerbridge/internal/models"
)

// Hints carries per-row metadata the source supplied alongside the raw
// symbol. Explicit hints always win over pattern-based classification.
type Hints struct {
	AssetClass string
	Exchange   string
	Name       string
	Currency   string
	CUSIP      string
	ISIN       string
}

// OptionTerms is the parsed contract detail for an option symbol.
type OptionTerms struct {
	Underlying string
	Right      models.OptionRight
	Strike     decimal.Decimal
	Expiration time.Time
	Multiplier int
}

// Parsed is the canonical instrument descriptor produced by Parse.
type Parsed struct {
	Symbol     string
	Exchange   string
	Name       string
	AssetClass models.AssetClass
	Currency   string
	CUSIP      string
	ISIN       string
	Option     *OptionTerms
}

// knownExchangeSuffixes are trailing ".EXCHANGE" decorations some exports
// append to tickers. Stripped during normalization; the suffix becomes the
// exchange when no metadata hint supplies one.
var knownExchangeSuffixes = map[string]bool{
	"NYSE": true, "NASDAQ": true, "AMEX": true, "ARCA": true,
	"BATS": true, "OTC": true, "TSX": true, "LSE": true,
}

// knownETFs is the ticker list consulted when no hint or option pattern
// classifies the symbol. Extending it is a data change.
var knownETFs = map[string]bool{
	"SPY": true, "QQQ": true, "IWM": true, "DIA": true, "VTI": true,
	"VOO": true, "VEA": true, "VWO": true, "EEM": true, "EFA": true,
	"GLD": true, "SLV": true, "TLT": true, "HYG": true, "LQD": true,
	"XLF": true, "XLK": true, "XLE": true, "XLV": true, "XLI": true,
	"ARKK": true, "SCHD": true, "JEPI": true, "VIG": true, "AGG": true,
}

var (
	// cryptoPattern matches crypto tickers like BTC, ETH-USD, SOLUSD.
	cryptoPattern = regexp.MustCompile(`^(BTC|ETH|SOL|ADA|DOGE|XRP|LTC|DOT|AVAX|LINK|MATIC|SHIB)(-?USDT?)?$`)

	// readableOptionPattern matches the human-readable broker option format,
	// e.g. "AAPL Nov 14 '25 $585 Put" (already uppercased at match time).
	readableOptionPattern = regexp.MustCompile(`^([A-Z][A-Z0-9.\-]*)\s+(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)\s+(\d{1,2})\s+'(\d{2})\s+\$(\d+(?:\.\d+)?)\s+(CALL|PUT)$`)

	// brokerDecoration strips footnote markers some exports glue onto tickers.
	brokerDecoration = regexp.MustCompile(`[*#]+$`)
)

var monthNumbers = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// Parse turns a raw symbol string plus source metadata into a canonical
// instrument descriptor. It never fails: unparseable option terms on an
// option-classified symbol yield a descriptor without option detail plus a
// warning for the caller to surface.
func Parse(raw, sourceTag string, hints Hints) (Parsed, []string) {
	var warnings []string

	symbol, suffixExchange := normalize(raw)

	p := Parsed{
		Symbol:   symbol,
		Name:     strings.TrimSpace(hints.Name),
		Currency: strings.ToUpper(strings.TrimSpace(hints.Currency)),
		CUSIP:    strings.TrimSpace(hints.CUSIP),
		ISIN:     strings.TrimSpace(hints.ISIN),
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}

	// Exchange: metadata hint wins, then a trailing .EXCHANGE suffix.
	// Never guessed from symbol lists.
	if hints.Exchange != "" {
		p.Exchange = strings.ToUpper(strings.TrimSpace(hints.Exchange))
	} else {
		p.Exchange = suffixExchange
	}

	terms := parseOptionTerms(symbol)

	p.AssetClass = classify(symbol, hints.AssetClass, terms != nil)

	if p.AssetClass == models.AssetClassOption {
		if terms == nil {
			warnings = append(warnings, fmt.Sprintf(
				"symbol %q is classified as an option but matches no known option encoding; stored without option detail", symbol))
		} else {
			p.Option = terms
		}
	}

	return p, warnings
}

// normalize uppercases and trims a raw symbol, strips broker decorations,
// and splits off a known trailing exchange suffix.
func normalize(raw string) (symbol, exchange string) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = brokerDecoration.ReplaceAllString(s, "")

	if idx := strings.LastIndex(s, "."); idx > 0 {
		if suffix := s[idx+1:]; knownExchangeSuffixes[suffix] {
			return strings.TrimSpace(s[:idx]), suffix
		}
	}
	return s, ""
}

// parseOptionTerms tries the two supported option encodings in order: the
// OCC fixed-width format first, then the human-readable broker format.
func parseOptionTerms(symbol string) *OptionTerms {
	if f, ok := ParseOCC(symbol); ok {
		return &OptionTerms{
			Underlying: f.Underlying,
			Right:      f.Right,
			Strike:     f.Strike,
			Expiration: f.Expiration,
			Multiplier: 100,
		}
	}

	m := readableOptionPattern.FindStringSubmatch(symbol)
	if m == nil {
		return nil
	}

	day := mustAtoi(m[3])
	year := 2000 + mustAtoi(m[4])
	exp := time.Date(year, monthNumbers[m[2]], day, 0, 0, 0, 0, time.UTC)

	strike, err := decimal.NewFromString(m[5])
	if err != nil || !strike.IsPositive() {
		return nil
	}

	right := models.OptionRightCall
	if m[6] == "PUT" {
		right = models.OptionRightPut
	}

	return &OptionTerms{
		Underlying: m[1],
		Right:      right,
		Strike:     strike,
		Expiration: exp,
		Multiplier: 100,
	}
}

// classify resolves the asset class by priority: explicit metadata hint,
// option pattern match, known ETF ticker, crypto ticker pattern, EQUITY.
func classify(symbol, hint string, isOption bool) models.AssetClass {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "equity", "stock", "share", "common stock":
		return models.AssetClassEquity
	case "etf", "exchange traded fund":
		return models.AssetClassETF
	case "option", "options", "call", "put":
		return models.AssetClassOption
	case "bond", "fixed income":
		return models.AssetClassBond
	case "crypto", "cryptocurrency":
		return models.AssetClassCrypto
	case "fund", "mutual fund":
		return models.AssetClassFund
	}

	if isOption {
		return models.AssetClassOption
	}
	if knownETFs[symbol] {
		return models.AssetClassETF
	}
	if cryptoPattern.MatchString(symbol) {
		return models.AssetClassCrypto
	}
	return models.AssetClassEquity
}

func mustAtoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
