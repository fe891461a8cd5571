// Package utils provides number, currency-string and date helpers shared by
// the providers and the report renderer.
package utils

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// GroupDigits inserts separators into a string of digits. Western grouping
// uses groups of 3; Indian grouping uses the last 3 digits, then groups of 2.
func GroupDigits(digits, sep string, indian bool) string {
	if len(digits) <= 3 {
		return digits
	}

	result := digits[len(digits)-3:]
	remaining := digits[:len(digits)-3]

	size := 3
	if indian {
		size = 2
	}
	for len(remaining) > 0 {
		if len(remaining) > size {
			result = remaining[len(remaining)-size:] + sep + result
			remaining = remaining[:len(remaining)-size]
		} else {
			result = remaining + sep + result
			remaining = ""
		}
	}
	return result
}

// FormatCompact formats a number with a K/M/B/T suffix.
// e.g., 2850000000000 → "2.85T", 1500 → "1.5K"
func FormatCompact(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = math.Abs(amount)
	}

	switch {
	case amount >= 1e12:
		return sign + TrimDecimals(amount/1e12) + "T"
	case amount >= 1e9:
		return sign + TrimDecimals(amount/1e9) + "B"
	case amount >= 1e6:
		return sign + TrimDecimals(amount/1e6) + "M"
	case amount >= 1e3:
		return sign + TrimDecimals(amount/1e3) + "K"
	default:
		return sign + TrimDecimals(amount)
	}
}

// FormatPct formats a percentage value with sign and suffix.
// e.g., 2.45 → "+2.45%", -1.23 → "-1.23%"
func FormatPct(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// TrimDecimals formats a number with up to 2 decimal places,
// removing trailing zeros.
func TrimDecimals(n float64) string {
	s := fmt.Sprintf("%.2f", n)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

var (
	nonNumeric    = regexp.MustCompile(`[^0-9.\-]`)
	numericPrefix = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)`)
)

// ParseNumber strips everything except digits, '.' and '-' from s and parses
// the longest numeric prefix of what is left. "$1,234.50" → 1234.5.
func ParseNumber(s string) (float64, bool) {
	cleaned := nonNumeric.ReplaceAllString(s, "")
	m := numericPrefix.FindString(cleaned)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseFloatOrZero parses a provider numeric string, returning 0 for
// placeholders such as "None", "-" or "".
func ParseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "-" || strings.EqualFold(s, "n/a") {
		return 0
	}
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
