package ingest

import (
	"strconv"
	"strings"
)

// frame is a column-named grid of string cells. The empty string is an
// absent value. Every row has exactly len(cols) cells.
type frame struct {
	cols []string
	rows [][]string
}

func newFrame(cols []string, rows [][]string) *frame {
	f := &frame{cols: append([]string(nil), cols...), rows: make([][]string, len(rows))}
	for i, r := range rows {
		row := make([]string, len(cols))
		copy(row, r)
		f.rows[i] = row
	}
	return f
}

// index returns the position of the first column named name, or -1.
func (f *frame) index(name string) int {
	for i, c := range f.cols {
		if c == name {
			return i
		}
	}
	return -1
}

func (f *frame) has(name string) bool {
	return f.index(name) >= 0
}

// uniqueLabels suffixes repeated column names in order ("X", "X.1", "X.2"),
// skipping suffixes already taken by another column. Blank and unnamed
// labels are left alone.
func (f *frame) uniqueLabels() {
	taken := make(map[string]bool, len(f.cols))
	for _, c := range f.cols {
		taken[c] = true
	}
	seen := make(map[string]int, len(f.cols))
	for i, c := range f.cols {
		if strings.TrimSpace(c) == "" || isUnnamed(c) {
			continue
		}
		n := seen[c]
		seen[c] = n + 1
		if n == 0 {
			continue
		}
		for {
			cand := c + "." + strconv.Itoa(n)
			n++
			if !taken[cand] {
				f.cols[i] = cand
				taken[cand] = true
				seen[c] = n
				break
			}
		}
	}
}

func (f *frame) rename(mapping map[string]string) {
	for i, c := range f.cols {
		if to, ok := mapping[c]; ok {
			f.cols[i] = to
		}
	}
}

// keepColumns drops every column for which keep returns false.
func (f *frame) keepColumns(keep func(name string) bool) {
	var idx []int
	for i, c := range f.cols {
		if keep(c) {
			idx = append(idx, i)
		}
	}
	if len(idx) == len(f.cols) {
		return
	}

	cols := make([]string, len(idx))
	for j, i := range idx {
		cols[j] = f.cols[i]
	}
	for r, row := range f.rows {
		out := make([]string, len(idx))
		for j, i := range idx {
			out[j] = row[i]
		}
		f.rows[r] = out
	}
	f.cols = cols
}

func (f *frame) dropColumns(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	f.keepColumns(func(name string) bool { return !drop[name] })
}

// set overwrites the named column, appending it if absent.
func (f *frame) set(name string, values []string) {
	i := f.index(name)
	if i < 0 {
		f.cols = append(f.cols, name)
		for r := range f.rows {
			f.rows[r] = append(f.rows[r], values[r])
		}
		return
	}
	for r := range f.rows {
		f.rows[r][i] = values[r]
	}
}

// mapColumn rewrites every cell of the named column in place. It reports
// whether the column exists.
func (f *frame) mapColumn(name string, fn func(string) string) bool {
	i := f.index(name)
	if i < 0 {
		return false
	}
	for _, row := range f.rows {
		row[i] = fn(row[i])
	}
	return true
}

// filterRows keeps rows for which keep returns true and returns the number
// of rows removed.
func (f *frame) filterRows(keep func(row []string) bool) int {
	kept := f.rows[:0]
	for _, row := range f.rows {
		if keep(row) {
			kept = append(kept, row)
		}
	}
	dropped := len(f.rows) - len(kept)
	f.rows = kept
	return dropped
}
