package ingest

import "strings"

// namedThreshold is the number of named cells a row must exceed to count
// as a header row.
const namedThreshold = 2

// unnamedPrefix marks auto-generated labels of empty header cells.
const unnamedPrefix = "unnamed"

// HeaderSpec is the resolved list of source column labels.
type HeaderSpec struct {
	Double  bool     `json:"double"`  // labels combine rows 0 and 1
	Columns []string `json:"columns"` // one label per column index
}

// DataStart returns the index of the first data row.
func (h HeaderSpec) DataStart() int {
	if h.Double {
		return 2
	}
	return 1
}

// ResolveHeader decides between a one-row and a two-row header and builds
// the column labels. A two-row header is used only when both rows carry more
// than two named cells; otherwise row0 is the header as given.
func ResolveHeader(row0, row1 []string) HeaderSpec {
	if CountNamed(row0) <= namedThreshold || CountNamed(row1) <= namedThreshold {
		return HeaderSpec{Columns: append([]string(nil), row0...)}
	}

	n := max(len(row0), len(row1))
	cols := make([]string, n)
	for i := range n {
		cols[i] = CombineLabels(cellAt(row0, i), cellAt(row1, i))
	}
	return HeaderSpec{Double: true, Columns: cols}
}

// CountNamed counts cells that are non-empty and do not start with the
// "unnamed" sentinel (case-insensitive).
func CountNamed(row []string) int {
	n := 0
	for _, c := range row {
		if isNamed(c) {
			n++
		}
	}
	return n
}

// CombineLabels merges a top and bottom header label for one column.
//
//	CombineLabels("Total Income (In Lacs)", "Debit/Credit Amount") == "Total Income (In Lacs) Debit/Credit Amount"
//	CombineLabels("Unnamed: 3", "Vessel") == "Vessel"
func CombineLabels(top, bottom string) string {
	if isNamed(top) {
		if isNamed(bottom) {
			return strings.TrimSpace(top) + " " + strings.TrimSpace(bottom)
		}
		return strings.TrimSpace(top)
	}
	return strings.TrimSpace(bottom)
}

func isNamed(s string) bool {
	return s != "" && !isUnnamed(s)
}

func isUnnamed(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), unnamedPrefix)
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
