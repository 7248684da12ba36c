package ingest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/kpi-cli/internal/model"
)

// Validation check names.
const (
	CheckMissingColumns = "missing_columns"
	CheckEmpty          = "empty"
	CheckDuplicateRows  = "duplicate_rows"
	CheckNegativeValues = "negative_values"
)

// Issue is one failed check or warning.
type Issue struct {
	Check   string `json:"check"`
	Column  string `json:"column,omitempty"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// Report is the outcome of Validate. Failing checks make Passed false;
// warnings never do.
type Report struct {
	Passed   bool    `json:"passed"`
	Issues   []Issue `json:"issues,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Messages returns the issue messages in check order.
func (r *Report) Messages() []string {
	out := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		out[i] = is.Message
	}
	return out
}

// DuplicateCount returns the count reported by the duplicate-rows check.
func (r *Report) DuplicateCount() int {
	for _, is := range r.Issues {
		if is.Check == CheckDuplicateRows {
			return is.Count
		}
	}
	return 0
}

// Validate checks a normalized dataset without modifying it. Issues are
// logged at error level and negative KPI values at warn level.
func Validate(ds *Dataset) *Report {
	rep := &Report{}
	log := zap.L().With(zap.String("component", "validator"))

	var missing []string
	for _, col := range model.RequiredColumns {
		if !ds.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		rep.Issues = append(rep.Issues, Issue{
			Check:   CheckMissingColumns,
			Count:   len(missing),
			Message: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		})
	}

	if len(ds.Records) == 0 {
		rep.Issues = append(rep.Issues, Issue{
			Check:   CheckEmpty,
			Message: "dataset is empty",
		})
	}

	if dups := countDuplicates(ds.Records); dups > 0 {
		rep.Issues = append(rep.Issues, Issue{
			Check:   CheckDuplicateRows,
			Count:   dups,
			Message: fmt.Sprintf("found %d duplicate rows", dups),
		})
	}

	for _, col := range model.KPIColumns {
		if !ds.HasColumn(col) {
			continue
		}
		neg := 0
		for i := range ds.Records {
			if ds.Records[i].KPI(col) < 0 {
				neg++
			}
		}
		if neg > 0 {
			w := Issue{
				Check:   CheckNegativeValues,
				Column:  col,
				Count:   neg,
				Message: fmt.Sprintf("column %q has %d negative values", col, neg),
			}
			rep.Warnings = append(rep.Warnings, w)
			log.Warn("negative kpi values", zap.String("column", col), zap.Int("count", neg))
		}
	}

	for _, is := range rep.Issues {
		log.Error("validation failed",
			zap.String("check", is.Check),
			zap.Int("count", is.Count),
			zap.String("detail", is.Message),
		)
	}

	rep.Passed = len(rep.Issues) == 0
	if rep.Passed {
		log.Info("validation passed", zap.Int("records", len(ds.Records)))
	}
	return rep
}

// countDuplicates returns the number of records equal to an earlier one.
func countDuplicates(records []model.Record) int {
	seen := make(map[string]struct{}, len(records))
	dups := 0
	for i := range records {
		k := recordKey(&records[i])
		if _, ok := seen[k]; ok {
			dups++
			continue
		}
		seen[k] = struct{}{}
	}
	return dups
}

func recordKey(r *model.Record) string {
	const sep = "\x1f"
	var b strings.Builder
	writeOpt := func(s *string) {
		if s == nil {
			b.WriteString("\x00")
		} else {
			b.WriteString(*s)
		}
		b.WriteString(sep)
	}

	writeOpt(r.Sector)
	writeOpt(r.Vessel)
	if r.Year == nil {
		b.WriteString("\x00")
	} else {
		b.WriteString(strconv.Itoa(*r.Year))
	}
	b.WriteString(sep)
	writeOpt(r.Month)
	for _, col := range model.KPIColumns {
		b.WriteString(strconv.FormatFloat(r.KPI(col), 'f', -1, 64))
		b.WriteString(sep)
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(r.Extra[k])
		b.WriteString(sep)
	}
	return b.String()
}
