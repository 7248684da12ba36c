package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/kpi-cli/internal/model"
	"github.com/sells-group/kpi-cli/internal/report"
)

var (
	reportTable   string
	reportFormat  string
	reportSummary bool
	reportFilter  report.Filter
)

var reportCmd = &cobra.Command{
	Use:       "report KIND",
	Short:     "Print grouped KPI totals",
	Long:      "Groups stored records by a preset (" + strings.Join(report.Kinds(), ", ") + ") and prints KPI totals per group.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: report.Kinds(),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("report"); err != nil {
			return err
		}

		f, err := reportFilter.Normalize()
		if err != nil {
			return err
		}
		kind := strings.ToLower(args[0])
		if _, ok := report.Preset(kind); !ok {
			return eris.Errorf("report: unknown kind %q (want one of %s)", args[0], strings.Join(report.Kinds(), ", "))
		}

		table := tableFlag(reportTable)
		st, err := initStore(ctx, table)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.QueryAll(ctx, table)
		if err != nil {
			return eris.Wrap(err, "report: query records")
		}

		tbl, _ := report.Build(records, kind, f)
		out := reportOutput{Kind: kind, Table: tbl}
		if reportSummary {
			sum := report.Summarize(report.Apply(records, f))
			out.Summary = &sum
		}
		return writeReport(os.Stdout, reportFormat, out)
	},
}

func init() {
	fl := reportCmd.Flags()
	fl.StringVar(&reportTable, "table", "", "record table (default from config)")
	fl.StringVar(&reportFormat, "format", "table", "output format: table, json, yaml or csv")
	fl.BoolVar(&reportSummary, "summary", false, "include per-KPI totals, mean, median, min and max")
	fl.IntVar(&reportFilter.FromYear, "from-year", 0, "first year to include")
	fl.IntVar(&reportFilter.ToYear, "to-year", 0, "last year to include")
	fl.StringVar(&reportFilter.FromMonth, "from-month", "", "first month to include (e.g. April)")
	fl.StringVar(&reportFilter.ToMonth, "to-month", "", "last month to include")
	fl.StringSliceVar(&reportFilter.Quarters, "quarter", nil, "calendar quarters to include (Q1..Q4)")
	fl.StringVar(&reportFilter.Sector, "sector", "", "sector to include (default all)")
	fl.StringVar(&reportFilter.Vessel, "vessel", "", "vessel to include (default all)")
	rootCmd.AddCommand(reportCmd)
}

type reportOutput struct {
	Kind    string          `json:"kind" yaml:"kind"`
	Table   *report.Table   `json:"table" yaml:"table"`
	Summary *report.Summary `json:"summary,omitempty" yaml:"summary,omitempty"`
}

func writeReport(w io.Writer, format string, out reportOutput) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return eris.Wrap(err, "report: encode yaml")
		}
		return enc.Close()
	case "csv":
		return writeReportCSV(w, out.Table)
	case "table", "":
		writeReportTable(w, out)
		return nil
	default:
		return eris.Errorf("report: unknown format %q", format)
	}
}

func reportHeader(t *report.Table) []string {
	h := make([]string, 0, len(t.Dimensions)+1+len(model.KPIColumns))
	for _, d := range t.Dimensions {
		h = append(h, string(d))
	}
	h = append(h, "records")
	return append(h, model.KPIColumns...)
}

func reportCells(t *report.Table, row report.Row) []string {
	cells := make([]string, 0, len(t.Dimensions)+1+len(model.KPIColumns))
	cells = append(cells, row.Keys...)
	cells = append(cells, strconv.Itoa(row.Records))
	for _, kpi := range model.KPIColumns {
		cells = append(cells, strconv.FormatFloat(row.KPI(kpi), 'f', 2, 64))
	}
	return cells
}

func writeReportCSV(w io.Writer, t *report.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader(t)); err != nil {
		return eris.Wrap(err, "report: write csv")
	}
	for _, row := range t.Rows {
		if err := cw.Write(reportCells(t, row)); err != nil {
			return eris.Wrap(err, "report: write csv")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

func writeReportTable(out io.Writer, r reportOutput) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(w, strings.ToUpper(strings.Join(reportHeader(r.Table), "\t"))+"\t")
	for _, row := range r.Table.Rows {
		_, _ = fmt.Fprintln(w, strings.Join(reportCells(r.Table, row), "\t")+"\t")
	}
	_ = w.Flush()

	if r.Summary == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%d records\n", r.Summary.Records)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(w, "KPI\tTOTAL\tMEAN\tMEDIAN\tMIN\tMAX\tDISPLAY\t")
	for _, kpi := range model.KPIColumns {
		s := r.Summary.KPIs[kpi]
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			kpi, s.Total, s.Mean, s.Median, s.Min, s.Max, s.Display)
	}
	_ = w.Flush()
}
