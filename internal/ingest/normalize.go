package ingest

import (
	"strconv"
	"strings"

	"github.com/sells-group/kpi-cli/internal/model"
)

// PeriodColumn holds encoded fiscal periods such as "K4/002.2024".
const PeriodColumn = "Fiscal year/period"

// columnMapping renames source labels to canonical columns.
var columnMapping = map[string]string{
	"Vessel code": model.ColVesselCode,
	"Sector Code": model.ColSector,
	"Vessel":      model.ColVessel,
	"Total Income (In Lacs) Debit/Credit Amount":              model.ColTotalIncome,
	"DOE (In Lacs) Debit/Credit Amount":                       model.ColDOE,
	"IOE (In Lacs) Debit/Credit Amount":                       model.ColIOE,
	"GOP (In Lacs) Debit/Credit Amount":                       model.ColGOP,
	"Profit before Int. & Dep. (In Lacs) Debit/Credit Amount": model.ColPBT,
	"financial_year":  model.ColYear,
	"financial_month": model.ColMonth,
}

// prunedColumns exist in some exports but carry no schema value.
var prunedColumns = []string{
	"Segment",
	"Voyage Number",
	PeriodColumn,
	"Depreciation (In Lacs) Debit/Credit Amount",
	"Profit After Depreciation (In Lacs) Debit/Credit Amount",
	"Finance Cost (In Lacs) Debit/Credit Amount",
	"Exchange Gain/Loss (In Lacs) Debit/Credit Amount",
}

// Stats counts what normalization did to the input rows.
type Stats struct {
	RowsIn          int `json:"rows_in"`
	RowsOut         int `json:"rows_out"`
	DroppedPeriod   int `json:"dropped_period"`   // undecodable fiscal period
	DroppedRequired int `json:"dropped_required"` // missing year, sector or vessel
	CoercedCells    int `json:"coerced_cells"`    // non-blank KPI cells that failed to parse
}

// Dataset is the normalized output of one pipeline run.
type Dataset struct {
	Header  HeaderSpec     `json:"header"`
	Columns []string       `json:"columns"`
	Records []model.Record `json:"records"`
	Stats   Stats          `json:"stats"`
}

// HasColumn reports whether name is in the final column set.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Normalize maps data rows labelled by header into canonical records.
// Each step checks for the columns it needs and is skipped when they are
// absent.
func Normalize(header HeaderSpec, rows [][]string) *Dataset {
	f := newFrame(header.Columns, rows)
	stats := Stats{RowsIn: len(f.rows)}

	// Repeated labels keep only their first copy as the canonical column;
	// later copies, and any label colliding with a renamed one, pass through.
	f.uniqueLabels()
	f.rename(columnMapping)
	f.uniqueLabels()

	f.keepColumns(func(name string) bool {
		return strings.TrimSpace(name) != "" && !isUnnamed(name)
	})

	if f.has(PeriodColumn) {
		stats.DroppedPeriod = decodePeriods(f)
	}

	f.mapColumn(model.ColYear, func(s string) string {
		if v, ok := parseYear(s); ok {
			return strconv.Itoa(v)
		}
		return ""
	})
	f.mapColumn(model.ColMonth, func(s string) string {
		m, _ := model.CanonicalMonth(s)
		return m
	})

	for _, col := range []string{model.ColSector, model.ColVessel} {
		f.mapColumn(col, cleanText)
	}

	for _, col := range model.KPIColumns {
		f.mapColumn(col, func(s string) string {
			v, ok := coerceKPI(s)
			if !ok && strings.TrimSpace(s) != "" {
				stats.CoercedCells++
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		})
	}

	f.dropColumns(prunedColumns...)

	stats.DroppedRequired = dropMissingRequired(f)
	stats.RowsOut = len(f.rows)

	return &Dataset{
		Header:  header,
		Columns: f.cols,
		Records: toRecords(f),
		Stats:   stats,
	}
}

// decodePeriods replaces the fiscal period column with year and month
// columns and drops rows whose period could not be decoded.
func decodePeriods(f *frame) int {
	pi := f.index(PeriodColumn)
	months := make([]string, len(f.rows))
	years := make([]string, len(f.rows))
	for r, row := range f.rows {
		months[r], years[r] = DecodeFiscalPeriod(row[pi])
	}
	f.set(model.ColYear, years)
	f.set(model.ColMonth, months)
	f.dropColumns(PeriodColumn)

	yi, mi := f.index(model.ColYear), f.index(model.ColMonth)
	return f.filterRows(func(row []string) bool {
		return row[yi] != Unknown && row[mi] != Unknown
	})
}

func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "nan" {
		return ""
	}
	return s
}

func dropMissingRequired(f *frame) int {
	var idx []int
	for _, col := range model.RequiredColumns {
		if i := f.index(col); i >= 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return 0
	}
	return f.filterRows(func(row []string) bool {
		for _, i := range idx {
			if row[i] == "" {
				return false
			}
		}
		return true
	})
}

func toRecords(f *frame) []model.Record {
	records := make([]model.Record, 0, len(f.rows))
	for _, row := range f.rows {
		var rec model.Record
		for i, col := range f.cols {
			v := row[i]
			switch {
			case col == model.ColSector:
				rec.Sector = optional(v)
			case col == model.ColVessel:
				rec.Vessel = optional(v)
			case col == model.ColMonth:
				rec.Month = optional(v)
			case col == model.ColYear:
				if y, ok := parseYear(v); ok {
					rec.Year = model.Ptr(y)
				}
			case model.IsKPIColumn(col):
				rec.SetKPI(col, CoerceKPI(v))
			case v != "":
				if rec.Extra == nil {
					rec.Extra = make(map[string]string)
				}
				rec.Extra[col] = v
			}
		}
		records = append(records, rec)
	}
	return records
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return model.Ptr(s)
}
