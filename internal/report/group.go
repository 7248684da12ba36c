package report

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/sells-group/kpi-cli/internal/model"
)

// Dimension is a grouping key.
type Dimension string

const (
	DimYear    Dimension = "year"
	DimMonth   Dimension = "month"
	DimQuarter Dimension = "quarter"
	DimSector  Dimension = "sector"
	DimVessel  Dimension = "vessel"
)

// Quarters lists calendar quarter labels in order.
var Quarters = []string{"Q1", "Q2", "Q3", "Q4"}

// QuarterOf maps a canonical month name to its calendar quarter, or "" for
// an unknown month.
func QuarterOf(month string) string {
	idx := model.MonthIndex(month)
	if idx < 1 {
		return ""
	}
	return Quarters[(idx-1)/3]
}

// presets are the dashboard views by name.
var presets = map[string][]Dimension{
	"yearly":    {DimYear, DimSector, DimVessel},
	"monthly":   {DimYear, DimMonth, DimSector, DimVessel},
	"quarterly": {DimYear, DimQuarter, DimSector, DimVessel},
	"sector":    {DimYear, DimSector, DimMonth},
	"vessel":    {DimYear, DimVessel, DimMonth},
}

// Preset returns the dimensions of a named report.
func Preset(kind string) ([]Dimension, bool) {
	dims, ok := presets[strings.ToLower(kind)]
	return slices.Clone(dims), ok
}

// Kinds returns the preset names, sorted.
func Kinds() []string {
	out := make([]string, 0, len(presets))
	for k := range presets {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Row is one group with its summed KPIs.
type Row struct {
	Keys        []string `json:"keys"` // one value per grouping dimension, "" when absent
	Records     int      `json:"records"`
	TotalIncome float64  `json:"Total_Income"`
	DOE         float64  `json:"DOE"`
	IOE         float64  `json:"IOE"`
	PBT         float64  `json:"PBT"`
	GOP         float64  `json:"GOP"`
}

// KPI returns the summed value of a KPI column.
func (r Row) KPI(name string) float64 {
	switch name {
	case model.ColTotalIncome:
		return r.TotalIncome
	case model.ColDOE:
		return r.DOE
	case model.ColIOE:
		return r.IOE
	case model.ColPBT:
		return r.PBT
	case model.ColGOP:
		return r.GOP
	}
	return 0
}

// Table is a grouped report.
type Table struct {
	Dimensions []Dimension `json:"dimensions"`
	Rows       []Row       `json:"rows"`
}

// Group sums KPIs per distinct combination of dims. Rows are sorted by the
// keys in dimension order: years numerically, months and quarters in
// calendar order, names lexically.
func Group(records []model.Record, dims ...Dimension) []Row {
	index := make(map[string]int)
	var rows []Row

	for _, r := range records {
		keys := make([]string, len(dims))
		for i, d := range dims {
			keys[i] = dimValue(r, d)
		}
		id := strings.Join(keys, "\x00")

		i, ok := index[id]
		if !ok {
			i = len(rows)
			index[id] = i
			rows = append(rows, Row{Keys: keys})
		}
		row := &rows[i]
		row.Records++
		row.TotalIncome += r.TotalIncome
		row.DOE += r.DOE
		row.IOE += r.IOE
		row.PBT += r.PBT
		row.GOP += r.GOP
	}

	slices.SortStableFunc(rows, func(a, b Row) int {
		for i, d := range dims {
			if c := compareKey(d, a.Keys[i], b.Keys[i]); c != 0 {
				return c
			}
		}
		return 0
	})
	return rows
}

// Build filters records and groups them by the named preset.
func Build(records []model.Record, kind string, f Filter) (*Table, bool) {
	dims, ok := Preset(kind)
	if !ok {
		return nil, false
	}
	return &Table{Dimensions: dims, Rows: Group(Apply(records, f), dims...)}, true
}

func dimValue(r model.Record, d Dimension) string {
	switch d {
	case DimYear:
		if r.Year == nil {
			return ""
		}
		return strconv.Itoa(*r.Year)
	case DimMonth:
		return model.StringOrEmpty(r.Month)
	case DimQuarter:
		return QuarterOf(model.StringOrEmpty(r.Month))
	case DimSector:
		return model.StringOrEmpty(r.Sector)
	case DimVessel:
		return model.StringOrEmpty(r.Vessel)
	}
	return ""
}

func compareKey(d Dimension, a, b string) int {
	switch d {
	case DimYear:
		ai, _ := strconv.Atoi(a)
		bi, _ := strconv.Atoi(b)
		return cmp.Compare(ai, bi)
	case DimMonth:
		return cmp.Compare(model.MonthIndex(a), model.MonthIndex(b))
	}
	return cmp.Compare(a, b)
}
