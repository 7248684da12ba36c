// Package model defines the canonical KPI record and the upload log entry.
package model

import "strings"

// Canonical column names of the KPI schema.
const (
	ColSector      = "sector"
	ColVessel      = "vessel"
	ColVesselCode  = "vessel_code"
	ColYear        = "year"
	ColMonth       = "month"
	ColTotalIncome = "Total_Income"
	ColDOE         = "DOE"
	ColIOE         = "IOE"
	ColPBT         = "PBT"
	ColGOP         = "GOP"
)

// KPIColumns lists the numeric KPI columns in report order.
var KPIColumns = []string{ColTotalIncome, ColDOE, ColIOE, ColPBT, ColGOP}

// RequiredColumns must hold a value in every stored record.
var RequiredColumns = []string{ColYear, ColSector, ColVessel}

// Months lists the calendar months in calendar order.
var Months = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// MonthIndex returns the 1-based calendar position of a month name, or 0 if
// name is not one of Months.
func MonthIndex(name string) int {
	for i, m := range Months {
		if m == name {
			return i + 1
		}
	}
	return 0
}

// CanonicalMonth maps a month name in any letter case to its canonical form.
func CanonicalMonth(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, m := range Months {
		if strings.EqualFold(m, s) {
			return m, true
		}
	}
	return "", false
}

// IsKPIColumn reports whether name is one of KPIColumns.
func IsKPIColumn(name string) bool {
	for _, c := range KPIColumns {
		if c == name {
			return true
		}
	}
	return false
}

// Record is one normalized KPI row. Nil pointers mean the value is absent.
type Record struct {
	Sector      *string           `json:"sector"`
	Vessel      *string           `json:"vessel"`
	Year        *int              `json:"year"`
	Month       *string           `json:"month"`
	TotalIncome float64           `json:"Total_Income"`
	DOE         float64           `json:"DOE"`
	IOE         float64           `json:"IOE"`
	PBT         float64           `json:"PBT"`
	GOP         float64           `json:"GOP"`
	Extra       map[string]string `json:"extra,omitempty"` // passthrough columns, e.g. vessel_code
}

// KPI returns the value of the named KPI column.
func (r *Record) KPI(name string) float64 {
	switch name {
	case ColTotalIncome:
		return r.TotalIncome
	case ColDOE:
		return r.DOE
	case ColIOE:
		return r.IOE
	case ColPBT:
		return r.PBT
	case ColGOP:
		return r.GOP
	}
	return 0
}

// SetKPI assigns the named KPI column. Unknown names are ignored.
func (r *Record) SetKPI(name string, v float64) {
	switch name {
	case ColTotalIncome:
		r.TotalIncome = v
	case ColDOE:
		r.DOE = v
	case ColIOE:
		r.IOE = v
	case ColPBT:
		r.PBT = v
	case ColGOP:
		r.GOP = v
	}
}

// StringOrEmpty dereferences s, returning "" for nil.
func StringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
