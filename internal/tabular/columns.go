package tabular

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Field is a canonical column role in a position table.
type Field string

const (
	FieldSymbol          Field = "symbol"
	FieldQuantity        Field = "quantity"
	FieldAveragePrice    Field = "averagePrice"
	FieldCostBasis       Field = "costBasis"
	FieldLastPrice       Field = "lastPrice"
	FieldMarketValue     Field = "marketValue"
	FieldUnrealizedPL    Field = "unrealizedPL"
	FieldAccountNickname Field = "accountNickname"
	FieldAssetClass      Field = "assetClass"
	FieldCurrency        Field = "currency"
	FieldName            Field = "name"
)

// fieldPatterns is the priority-ordered inference table: for each canonical
// field, an ordered list of header patterns, first match wins. Different
// brokers label the same concept differently ("Total Gain $" vs "Total
// Gain/Loss Dollar"), so teaching the inference a new broker's synonym is a
// data change here, never a code-path change at call sites.
var fieldPatterns = []struct {
	field    Field
	patterns []*regexp.Regexp
}{
	{FieldSymbol, compilePatterns(
		`^symbol$`,
		`^ticker( symbol)?$`,
		`^security (id|symbol)$`,
		`\bsymbol\b`,
		`\bticker\b`,
	)},
	{FieldQuantity, compilePatterns(
		`^quantity$`,
		`^qty\.?$`,
		`^(share )?quantity\b`,
		`^shares?$`,
		`\bquantity\b`,
		`\bshares\b`,
	)},
	{FieldAveragePrice, compilePatterns(
		`^average (cost basis|price|cost)$`,
		`^avg\.? (cost|price)`,
		`^price paid\b`,
		`^purchase price\b`,
		`\baverage cost\b`,
	)},
	{FieldCostBasis, compilePatterns(
		`^cost basis( total)?( \$)?$`,
		`^total cost( basis)?$`,
		`^cost$`,
	)},
	{FieldLastPrice, compilePatterns(
		`^last price\b`,
		`^last\b`,
		`^(current|market) price\b`,
		`^price$`,
		`\blast price\b`,
	)},
	{FieldMarketValue, compilePatterns(
		`^market value\b`,
		`^current value\b`,
		`^mkt val`,
		`^value \$?$`,
		`^value$`,
		`\bmarket value\b`,
	)},
	{FieldUnrealizedPL, compilePatterns(
		`^total gain \$$`,
		`^total gain(/| ?)loss (dollar|\$)`,
		`^unrealized (gain(/| ?)loss|p&l|pl)\b`,
		`^gain(/| ?)loss \$`,
		`^total gain$`,
	)},
	{FieldAccountNickname, compilePatterns(
		`^account( name| nickname)?$`,
		`^account number$`,
		`\baccount n(ame|ickname)\b`,
	)},
	{FieldAssetClass, compilePatterns(
		`^(asset )?(class|type)$`,
		`^security type$`,
		`\basset class\b`,
	)},
	{FieldCurrency, compilePatterns(
		`^currency$`,
		`\bcurrency\b`,
	)},
	{FieldName, compilePatterns(
		`^(security )?description$`,
		`^(security |company )?name$`,
	)},
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// ColumnMapping records which header index plays each canonical role.
type ColumnMapping struct {
	columns map[Field]int
}

// NewColumnMapping builds a mapping from explicit field→index assignments,
// for callers that supply a mapping instead of inferring one.
func NewColumnMapping(columns map[Field]int) *ColumnMapping {
	copied := make(map[Field]int, len(columns))
	for f, i := range columns {
		copied[f] = i
	}
	return &ColumnMapping{columns: copied}
}

// InferColumns maps headers to canonical fields using the pattern table.
// Symbol and quantity are mandatory; it returns nil when either cannot be
// inferred, and the caller must surface that as a hard failure rather than
// silently defaulting. All other fields are optional; their absence only
// narrows what downstream calculations can do.
func InferColumns(headers []string) *ColumnMapping {
	columns := make(map[Field]int)
	for _, fp := range fieldPatterns {
	patternLoop:
		for _, p := range fp.patterns {
			for i, h := range headers {
				if p.MatchString(strings.TrimSpace(h)) {
					columns[fp.field] = i
					break patternLoop
				}
			}
		}
	}

	if _, ok := columns[FieldSymbol]; !ok {
		return nil
	}
	if _, ok := columns[FieldQuantity]; !ok {
		return nil
	}
	return &ColumnMapping{columns: columns}
}

// Has reports whether a field was mapped.
func (m *ColumnMapping) Has(field Field) bool {
	_, ok := m.columns[field]
	return ok
}

// Index returns the mapped header index for a field.
func (m *ColumnMapping) Index(field Field) (int, bool) {
	i, ok := m.columns[field]
	return i, ok
}

// Get returns the cell for a field in the given row, or "" when the field
// is unmapped or the row is too short.
func (m *ColumnMapping) Get(row []string, field Field) string {
	i, ok := m.columns[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Fields returns the mapped fields and their header indexes.
func (m *ColumnMapping) Fields() map[Field]int {
	out := make(map[Field]int, len(m.columns))
	for f, i := range m.columns {
		out[f] = i
	}
	return out
}

// numericFields are the optional fields validated as numbers when present.
var numericFields = []Field{
	FieldAveragePrice, FieldCostBasis, FieldLastPrice,
	FieldMarketValue, FieldUnrealizedPL,
}

// ValidateRow checks one data row against the mapping: symbol must be
// non-empty, quantity must parse as a number, and any mapped numeric field
// with a non-blank cell must parse too. Returns a human-readable message,
// or "" when the row is valid.
func (m *ColumnMapping) ValidateRow(row []string) string {
	if m.Get(row, FieldSymbol) == "" {
		return "missing symbol"
	}

	qty := m.Get(row, FieldQuantity)
	if qty == "" {
		return "missing quantity"
	}
	if _, err := ParseNumber(qty); err != nil {
		return fmt.Sprintf("quantity %q is not a number", qty)
	}

	for _, f := range numericFields {
		cell := m.Get(row, f)
		if cell == "" {
			continue
		}
		if _, err := ParseNumber(cell); err != nil {
			return fmt.Sprintf("%s %q is not a number", f, cell)
		}
	}
	return ""
}

var numberCleaner = strings.NewReplacer("$", "", ",", "", "%", "", " ", "")

// ParseNumber parses a broker-formatted numeric cell: thousands separators,
// currency symbols, percent signs, and accounting-style parentheses for
// negatives are all tolerated.
func ParseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = numberCleaner.Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
