// Package ingest detects the header layout of KPI exports and normalizes
// their rows into canonical records.
//
// A run previews the first rows to choose between a one-row and a two-row
// header, re-reads the whole input, and then applies the normalization
// steps in a fixed order. Runs share no state and are safe to execute in
// parallel for different inputs.
package ingest

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-cli/internal/model"
	"github.com/sells-group/kpi-cli/internal/source"
)

// previewRows is how many rows header detection inspects.
const previewRows = 3

// Load reads src and returns its normalized dataset. Any failure to read or
// shape the input is returned as a *MalformedInputError and no dataset is
// produced.
func Load(ctx context.Context, src source.Source) (*Dataset, error) {
	log := zap.L().With(zap.String("source", src.Name()))

	preview, err := src.Rows(ctx, previewRows)
	if err != nil {
		return nil, malformed(src, "preview", err)
	}
	if len(preview) == 0 {
		return nil, malformed(src, "preview", eris.New("input has no rows"))
	}

	var row1 []string
	if len(preview) > 1 {
		row1 = preview[1]
	}
	header := ResolveHeader(preview[0], row1)
	log.Info("resolved header", zap.Bool("double_header", header.Double))

	rows, err := src.Rows(ctx, 0)
	if err != nil {
		return nil, malformed(src, "read", err)
	}

	var data [][]string
	if len(rows) > header.DataStart() {
		data = rows[header.DataStart():]
	}
	if err := checkWidth(header, data); err != nil {
		return nil, malformed(src, "shape", err)
	}

	log.Info("initial dataset",
		zap.Int("rows", len(data)),
		zap.Int("columns", len(header.Columns)),
		zap.Strings("column_names", header.Columns),
	)

	ds := Normalize(header, data)

	log.Info("final dataset",
		zap.Int("rows", len(ds.Records)),
		zap.Int("columns", len(ds.Columns)),
		zap.Strings("column_names", ds.Columns),
		zap.Ints("years", uniqueYears(ds.Records)),
		zap.Strings("sectors", uniqueSectors(ds.Records)),
		zap.Int("vessels", countVessels(ds.Records)),
	)
	if ds.Stats.CoercedCells > 0 {
		log.Debug("kpi cells coerced to zero", zap.Int("cells", ds.Stats.CoercedCells))
	}

	return ds, nil
}

func malformed(src source.Source, op string, err error) error {
	return &MalformedInputError{Op: op, Source: src.Name(), Err: err}
}

// checkWidth rejects data rows with non-empty cells beyond the header.
// Trailing empty cells are tolerated.
func checkWidth(header HeaderSpec, rows [][]string) error {
	width := len(header.Columns)
	for i, row := range rows {
		for j := width; j < len(row); j++ {
			if row[j] != "" {
				return eris.Errorf("row %d has %d fields, header has %d", i+header.DataStart()+1, len(row), width)
			}
		}
	}
	return nil
}

func uniqueYears(records []model.Record) []int {
	seen := make(map[int]bool)
	var out []int
	for _, r := range records {
		if r.Year != nil && !seen[*r.Year] {
			seen[*r.Year] = true
			out = append(out, *r.Year)
		}
	}
	sort.Ints(out)
	return out
}

func uniqueSectors(records []model.Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if r.Sector != nil && !seen[*r.Sector] {
			seen[*r.Sector] = true
			out = append(out, *r.Sector)
		}
	}
	sort.Strings(out)
	return out
}

func countVessels(records []model.Record) int {
	seen := make(map[string]bool)
	for _, r := range records {
		if r.Vessel != nil {
			seen[*r.Vessel] = true
		}
	}
	return len(seen)
}
