package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var nonNumericRe = regexp.MustCompile(`[^0-9.\-]`)

// CoerceKPI turns a noisy numeric cell into a value rounded to 2 places.
// Thousands separators and every character other than digits, '.' and '-'
// are stripped before parsing; anything left that does not parse yields 0.
// Accounting negatives such as "(123.45)" lose their sign.
// Halves round away from zero, so 0.125 becomes 0.13 and 2.675 becomes
// 2.68, where binary float rounding would give 0.12 and 2.67.
func CoerceKPI(raw string) float64 {
	v, _ := coerceKPI(raw)
	return v
}

func coerceKPI(raw string) (float64, bool) {
	s := strings.ReplaceAll(raw, ",", "")
	s = nonNumericRe.ReplaceAllString(s, "")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Round(2).Float64()
	return f, true
}

// parseYear accepts integral year cells such as "2024" or "2024.0".
func parseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
