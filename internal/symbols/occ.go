package symbols

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"brokerbridge/internal/models"
)

// occLength is the fixed width of an OCC option symbol: a 6-character
// space-padded underlying, a YYMMDD expiration, a C/P right flag, and an
// 8-digit strike with 3 implied decimals.
const occLength = 21

// OCCFields holds the four components encoded in an OCC option symbol.
type OCCFields struct {
	Underlying string
	Expiration time.Time
	Right      models.OptionRight
	Strike     decimal.Decimal
}

// ParseOCC decodes a fixed-width OCC option symbol. It returns false when
// the input does not conform to the encoding; malformed OCC candidates are
// not an error at this layer, the caller decides what a non-match means.
func ParseOCC(s string) (OCCFields, bool) {
	if len(s) != occLength {
		return OCCFields{}, false
	}

	underlying := strings.TrimRight(s[:6], " ")
	if underlying == "" || strings.ContainsAny(underlying, " ") {
		return OCCFields{}, false
	}

	exp, err := time.Parse("060102", s[6:12])
	if err != nil {
		return OCCFields{}, false
	}

	var right models.OptionRight
	switch s[12] {
	case 'C':
		right = models.OptionRightCall
	case 'P':
		right = models.OptionRightPut
	default:
		return OCCFields{}, false
	}

	// The strike field is 8 digits only. ParseInt alone would also accept a
	// leading sign, letting a non-positive strike through.
	raw := s[13:]
	for _, r := range raw {
		if r < '0' || r > '9' {
			return OCCFields{}, false
		}
	}
	milli, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || milli <= 0 {
		return OCCFields{}, false
	}

	return OCCFields{
		Underlying: underlying,
		Expiration: exp.UTC(),
		Right:      right,
		Strike:     decimal.New(milli, -3),
	}, true
}

// BuildOCC is the exact inverse of ParseOCC: for any valid field set,
// ParseOCC(BuildOCC(f)) round-trips within strike rounding to 3 decimals.
func BuildOCC(f OCCFields) string {
	flag := "C"
	if f.Right == models.OptionRightPut {
		flag = "P"
	}
	milli := f.Strike.Shift(3).Round(0).IntPart()
	return fmt.Sprintf("%-6s%s%s%08d", f.Underlying, f.Expiration.Format("060102"), flag, milli)
}
