// Package report filters stored KPI records and aggregates them into the
// yearly, monthly, quarterly, sector and vessel views.
package report

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/kpi-cli/internal/model"
)

// All matches every sector or vessel.
const All = "All"

// Filter selects records. The zero value matches everything.
type Filter struct {
	FromYear  int      `json:"from_year,omitempty"`
	ToYear    int      `json:"to_year,omitempty"`
	FromMonth string   `json:"from_month,omitempty"`
	ToMonth   string   `json:"to_month,omitempty"`
	Quarters  []string `json:"quarters,omitempty"` // e.g. ["Q1", "Q3"]
	Sector    string   `json:"sector,omitempty"`
	Vessel    string   `json:"vessel,omitempty"`
}

// Normalize canonicalizes month and quarter names and checks the ranges.
func (f Filter) Normalize() (Filter, error) {
	if f.FromYear != 0 && f.ToYear != 0 && f.FromYear > f.ToYear {
		return f, eris.Errorf("report: from_year %d is after to_year %d", f.FromYear, f.ToYear)
	}

	var err error
	if f.FromMonth, err = canonicalMonthOrEmpty("from_month", f.FromMonth); err != nil {
		return f, err
	}
	if f.ToMonth, err = canonicalMonthOrEmpty("to_month", f.ToMonth); err != nil {
		return f, err
	}
	if f.FromMonth != "" && f.ToMonth != "" && model.MonthIndex(f.FromMonth) > model.MonthIndex(f.ToMonth) {
		return f, eris.Errorf("report: from_month %s is after to_month %s", f.FromMonth, f.ToMonth)
	}

	quarters := make([]string, 0, len(f.Quarters))
	for _, q := range f.Quarters {
		q = strings.ToUpper(strings.TrimSpace(q))
		if !slices.Contains(Quarters, q) {
			return f, eris.Errorf("report: unknown quarter %q", q)
		}
		quarters = append(quarters, q)
	}
	f.Quarters = quarters
	if len(f.Quarters) == 0 {
		f.Quarters = nil
	}

	f.Sector = strings.TrimSpace(f.Sector)
	f.Vessel = strings.TrimSpace(f.Vessel)
	return f, nil
}

func canonicalMonthOrEmpty(field, s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	m, ok := model.CanonicalMonth(s)
	if !ok {
		return "", eris.Errorf("report: %s: unknown month %q", field, s)
	}
	return m, nil
}

// Match reports whether r passes the filter. Records missing a field the
// filter constrains do not match.
func (f Filter) Match(r model.Record) bool {
	if f.FromYear != 0 || f.ToYear != 0 {
		if r.Year == nil {
			return false
		}
		if f.FromYear != 0 && *r.Year < f.FromYear {
			return false
		}
		if f.ToYear != 0 && *r.Year > f.ToYear {
			return false
		}
	}

	if f.FromMonth != "" || f.ToMonth != "" || len(f.Quarters) > 0 {
		if r.Month == nil {
			return false
		}
		idx := model.MonthIndex(*r.Month)
		if f.FromMonth != "" && idx < model.MonthIndex(f.FromMonth) {
			return false
		}
		if f.ToMonth != "" && idx > model.MonthIndex(f.ToMonth) {
			return false
		}
		if len(f.Quarters) > 0 && !slices.Contains(f.Quarters, QuarterOf(*r.Month)) {
			return false
		}
	}

	if !matchesName(f.Sector, r.Sector) || !matchesName(f.Vessel, r.Vessel) {
		return false
	}
	return true
}

func matchesName(want string, got *string) bool {
	if want == "" || want == All {
		return true
	}
	return got != nil && *got == want
}

// Apply returns the records that match f, in their original order.
func Apply(records []model.Record, f Filter) []model.Record {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// FilterFromValues reads a filter from query parameters: from_year,
// to_year, from_month, to_month, quarter (repeatable or comma separated),
// sector and vessel.
func FilterFromValues(v url.Values) (Filter, error) {
	var f Filter
	var err error
	if f.FromYear, err = intParam(v, "from_year"); err != nil {
		return f, err
	}
	if f.ToYear, err = intParam(v, "to_year"); err != nil {
		return f, err
	}
	f.FromMonth = v.Get("from_month")
	f.ToMonth = v.Get("to_month")
	for _, q := range v["quarter"] {
		for _, part := range strings.Split(q, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.Quarters = append(f.Quarters, part)
			}
		}
	}
	f.Sector = v.Get("sector")
	f.Vessel = v.Get("vessel")
	return f.Normalize()
}

func intParam(v url.Values, key string) (int, error) {
	s := strings.TrimSpace(v.Get(key))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, eris.Errorf("report: %s must be an integer, got %q", key, s)
	}
	return n, nil
}
