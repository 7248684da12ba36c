package report

import (
	"github.com/montanaflynn/stats"

	"github.com/sells-group/kpi-cli/internal/model"
)

// KPISummary describes one KPI across a record set.
type KPISummary struct {
	Total  float64 `json:"total"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	// Display is Total with the ledger sign flipped: credits are booked
	// negative, so income reads positive.
	Display float64 `json:"display"`
}

// Summary holds per-KPI statistics keyed by KPI column name.
type Summary struct {
	Records int                   `json:"records"`
	KPIs    map[string]KPISummary `json:"kpis"`
}

// Summarize computes totals and spread for every KPI column. An empty
// record set yields zero values.
func Summarize(records []model.Record) Summary {
	sum := Summary{Records: len(records), KPIs: make(map[string]KPISummary, len(model.KPIColumns))}

	for _, kpi := range model.KPIColumns {
		if len(records) == 0 {
			sum.KPIs[kpi] = KPISummary{}
			continue
		}
		data := make(stats.Float64Data, len(records))
		for i := range records {
			data[i] = records[i].KPI(kpi)
		}
		// Errors only occur on empty input, which is handled above.
		total, _ := stats.Sum(data)
		mean, _ := stats.Mean(data)
		median, _ := stats.Median(data)
		lo, _ := stats.Min(data)
		hi, _ := stats.Max(data)
		sum.KPIs[kpi] = KPISummary{
			Total:   total,
			Mean:    mean,
			Median:  median,
			Min:     lo,
			Max:     hi,
			Display: 0 - total,
		}
	}
	return sum
}
