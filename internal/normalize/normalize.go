// Package normalize provides pure, deterministic canonicalization of money,
// duration, and company-name text so values from different document sections
// can be compared.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Unit assumptions for duration conversion.
const (
	DaysPerMonth = 30
	DaysPerYear  = 365
)

var (
	moneyRe    = regexp.MustCompile(`-?\d+(?:,\d{3})*(?:\.\d+)?`)
	durationRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(天|日|个月|月|年|days?|d|months?|years?|yrs?|y)`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// Money converts a money string to integer minor currency units (cents/fen).
// Handles currency symbols (¥ ￥ $ 元), thousands separators, and the 万
// (ten-thousand) unit suffix. Idempotent over its own string form.
//
//	Money("1000元") == Money("￥1,000.00") == 100000
func Money(text string) (int64, error) {
	s := width.Narrow.String(strings.TrimSpace(text))
	if s == "" {
		return 0, fmt.Errorf("normalize money: empty input")
	}

	multiplier := 1.0
	if strings.Contains(s, "亿") {
		multiplier = 1e8
	} else if strings.Contains(s, "万") {
		multiplier = 1e4
	}

	m := moneyRe.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("normalize money: no numeric part in %q", text)
	}
	m = strings.ReplaceAll(m, ",", "")

	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, fmt.Errorf("normalize money: parse %q: %w", m, err)
	}

	return int64(math.Round(v * multiplier * 100)), nil
}

// Duration converts a duration string to integer days. Months are counted as
// 30 days and years as 365 days. A bare number is taken as days.
func Duration(text string) (int, error) {
	s := width.Narrow.String(strings.ToLower(strings.TrimSpace(text)))
	if s == "" {
		return 0, fmt.Errorf("normalize duration: empty input")
	}

	if m := durationRe.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("normalize duration: parse %q: %w", m[1], err)
		}
		switch m[2] {
		case "个月", "月", "month", "months":
			return int(math.Round(v * DaysPerMonth)), nil
		case "年", "year", "years", "yr", "yrs", "y":
			return int(math.Round(v * DaysPerYear)), nil
		default:
			return int(math.Round(v)), nil
		}
	}

	// No unit: accept a bare number as a day count.
	if m := moneyRe.FindString(s); m != "" {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err != nil {
			return 0, fmt.Errorf("normalize duration: parse %q: %w", m, err)
		}
		return int(math.Round(v)), nil
	}

	return 0, fmt.Errorf("normalize duration: no numeric part in %q", text)
}

// CompanyName canonicalizes a company name: full-width runes become
// half-width, whitespace is removed, parenthesis variants are unified, and
// the result is lower-cased.
func CompanyName(text string) string {
	s := width.Narrow.String(text)
	s = spaceRe.ReplaceAllString(s, "")
	s = strings.NewReplacer("（", "(", "）", ")").Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return s
}
