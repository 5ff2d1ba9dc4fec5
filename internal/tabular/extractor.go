// Package tabular extracts the true position table out of raw delimited
// broker exports, which routinely wrap the table in summary and metadata
// noise, and infers which column plays which canonical role.
package tabular

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "brokerbridge/internal/errors"
)

// AccountSummary is the optional sidecar block some exports place before
// the position table (net value, total gain). Its absence is not an error.
type AccountSummary struct {
	AccountName     string           `json:"account_name,omitempty"`
	NetAccountValue *decimal.Decimal `json:"net_account_value,omitempty"`
	TotalGain       *decimal.Decimal `json:"total_gain,omitempty"`
	TotalGainPct    *decimal.Decimal `json:"total_gain_pct,omitempty"`
}

// Table is the extracted position table. RowNumbers holds each kept row's
// 1-based ordinal among the data rows that followed the header, so row-level
// errors reported downstream line up with what the user sees in their file
// even when malformed rows were dropped in between.
type Table struct {
	Headers    []string
	Rows       [][]string
	RowNumbers []int
	Summary    *AccountSummary
}

var (
	metadataPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)account summary`),
		regexp.MustCompile(`(?i)view summary`),
		regexp.MustCompile(`(?i)filters applied`),
		regexp.MustCompile(`(?i)(generated|downloaded|exported)\s+(at|on)`),
		regexp.MustCompile(`(?i)^"?sort\s+(by|order)`),
	}
	commaOnlyPattern = regexp.MustCompile(`^[,\s]*$`)

	symbolTokenPattern   = regexp.MustCompile(`(?i)symbol|ticker|security`)
	quantityTokenPattern = regexp.MustCompile(`(?i)quantity|qty|shares`)
	valueTokenPattern    = regexp.MustCompile(`(?i)value|price|cost`)

	footerPattern = regexp.MustCompile(`(?i)^"?\s*(grand )?total\b|^"?\s*margin debit|generated at`)

	accountSummaryMarker = regexp.MustCompile(`(?i)account summary`)
)

// Extract parses raw delimited text into the position table, isolating it
// from metadata noise before and after, and pulling out the optional
// Account Summary sidecar.
func Extract(raw string) (*Table, error) {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrParseError, "Import content is empty")
	}

	table := &Table{}

	// An "Account Summary" sidecar is its own header plus a single data row
	// immediately after the marker line. Consume it before searching for the
	// position table header.
	start := 0
	for i, line := range lines {
		if accountSummaryMarker.MatchString(line) {
			if i+2 < len(lines) {
				table.Summary = parseAccountSummary(splitCSVLine(lines[i+1]), splitCSVLine(lines[i+2]))
				start = i + 3
			} else {
				start = len(lines)
			}
			break
		}
		if !isMetadataLine(line) {
			break
		}
	}

	headerIdx := -1
	fallbackIdx := -1
	for i := start; i < len(lines); i++ {
		line := lines[i]
		if isMetadataLine(line) {
			continue
		}
		if fallbackIdx < 0 {
			fallbackIdx = i
		}
		if isCandidateHeader(line) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		headerIdx = fallbackIdx
	}
	if headerIdx < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrParseError, "No position table found in import")
	}

	table.Headers = splitCSVLine(lines[headerIdx])

	rowNum := 0
	for i := headerIdx + 1; i < len(lines); i++ {
		line := lines[i]
		if footerPattern.MatchString(line) {
			break
		}
		if commaOnlyPattern.MatchString(line) {
			continue
		}
		rowNum++
		cells := splitCSVLine(line)
		// Rows narrower than half the header width are malformed fragments,
		// not positions.
		if len(cells)*2 < len(table.Headers) {
			continue
		}
		table.Rows = append(table.Rows, cells)
		table.RowNumbers = append(table.RowNumbers, rowNum)
	}

	return table, nil
}

// splitLines splits on CRLF/LF, trims, and drops blank lines.
func splitLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func isMetadataLine(line string) bool {
	if commaOnlyPattern.MatchString(line) {
		return true
	}
	for _, p := range metadataPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// isCandidateHeader reports whether a line looks like the position table's
// header: it must name a symbol-ish column and at least one quantity or
// value/price/cost column.
func isCandidateHeader(line string) bool {
	if !symbolTokenPattern.MatchString(line) {
		return false
	}
	return quantityTokenPattern.MatchString(line) || valueTokenPattern.MatchString(line)
}

// splitCSVLine splits one comma-delimited line, honoring double-quoted
// fields with embedded commas and "" escapes for literal quotes.
func splitCSVLine(line string) []string {
	var (
		fields  []string
		current strings.Builder
		quoted  bool
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if quoted && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i++
			} else {
				quoted = !quoted
			}
		case c == ',' && !quoted:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}

var (
	summaryNamePattern    = regexp.MustCompile(`(?i)account\s*(name|nickname)?$`)
	summaryNetPattern     = regexp.MustCompile(`(?i)net\s*(account)?\s*value`)
	summaryGainPctPattern = regexp.MustCompile(`(?i)total\s*gain.*(%|percent)`)
	summaryGainPattern    = regexp.MustCompile(`(?i)total\s*gain`)
)

// parseAccountSummary fuzzy-matches the sidecar's own header against its
// single data row. Unrecognized columns are ignored.
func parseAccountSummary(headers, row []string) *AccountSummary {
	summary := &AccountSummary{}
	for i, h := range headers {
		if i >= len(row) || strings.TrimSpace(row[i]) == "" {
			continue
		}
		cell := row[i]
		switch {
		case summaryNamePattern.MatchString(h):
			summary.AccountName = cell
		case summaryNetPattern.MatchString(h):
			if v, err := ParseNumber(cell); err == nil {
				summary.NetAccountValue = &v
			}
		case summaryGainPctPattern.MatchString(h):
			if v, err := ParseNumber(cell); err == nil {
				summary.TotalGainPct = &v
			}
		case summaryGainPattern.MatchString(h):
			if v, err := ParseNumber(cell); err == nil {
				summary.TotalGain = &v
			}
		}
	}
	return summary
}
