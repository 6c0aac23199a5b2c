package core

// convert.go cleans raw CSV cells before validation.
//
// Uploaded catalogs come out of spreadsheets, so cells carry the usual noise:
//   - Excel formula prefixes (="value")
//   - Stray surrounding quotes
//   - Currency symbols and thousands separators in prices
//   - Accounting negatives written as (12.50)

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates that a string is a plain decimal number after cleanup.
// Matches integers, decimals, and scientific notation; rejects NaN and Inf.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var errNotNumeric = errors.New("not a number")

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// NormalizeHeader returns the lookup key for a header cell.
// Keys are lowercased for case-insensitive matching.
func NormalizeHeader(h string) string {
	return strings.ToLower(CleanCell(h))
}

// ParsePrice parses a price cell. Currency symbols, thousands separators and
// accounting-style negatives are accepted.
func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, errNotNumeric
	}
	return strconv.ParseFloat(s, 64)
}

// ParseCount parses a stock count cell as a base-10 integer. Values outside
// the int64 range saturate rather than fail, so the caller's bound checks
// still report them as too large or negative.
func ParseCount(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	return n, nil
}
