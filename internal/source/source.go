// Package source provides re-readable tabular inputs: CSV files and streams
// in ISO-8859-1, XLSX workbooks, and materialized in-memory tables.
package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Source is a tabular input that can be read from the beginning any number
// of times. Header detection previews the first rows and then reads the
// whole input again, so implementations must not consume it irrecoverably.
type Source interface {
	// Name identifies the input in logs and the upload log.
	Name() string
	// Rows reads up to limit rows from the start of the input. A limit <= 0
	// reads every row.
	Rows(ctx context.Context, limit int) ([][]string, error)
}

// File is a CSV file identified by path. Each read re-opens the file.
type File struct {
	Path string
}

// NewFile returns a Source for the CSV file at path.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Name() string { return filepath.Base(f.Path) }

func (f *File) Rows(ctx context.Context, limit int) ([][]string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", f.Path)
	}
	defer fh.Close() //nolint:errcheck

	return ReadCSV(ctx, fh, CSVOptions{Limit: limit})
}

// Reader is a CSV byte stream. Seekable streams are rewound before every
// read; other streams are buffered in memory on first use.
type Reader struct {
	name string
	r    io.Reader
	rs   io.ReadSeeker
}

// NewReader returns a Source reading CSV from r.
func NewReader(name string, r io.Reader) *Reader {
	src := &Reader{name: name, r: r}
	if rs, ok := r.(io.ReadSeeker); ok {
		src.rs = rs
	}
	return src
}

func (s *Reader) Name() string { return s.name }

func (s *Reader) Rows(ctx context.Context, limit int) ([][]string, error) {
	if s.rs == nil {
		data, err := io.ReadAll(s.r)
		if err != nil {
			return nil, eris.Wrapf(err, "source: read %s", s.name)
		}
		s.rs = bytes.NewReader(data)
	}
	if _, err := s.rs.Seek(0, io.SeekStart); err != nil {
		return nil, eris.Wrapf(err, "source: rewind %s", s.name)
	}
	return ReadCSV(ctx, s.rs, CSVOptions{Limit: limit})
}

// Table is an already-materialized set of rows.
type Table struct {
	name string
	rows [][]string
}

// NewTable returns a Source over rows held in memory.
func NewTable(name string, rows [][]string) *Table {
	return &Table{name: name, rows: rows}
}

func (t *Table) Name() string { return t.name }

func (t *Table) Rows(_ context.Context, limit int) ([][]string, error) {
	n := len(t.rows)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([][]string, n)
	for i := range n {
		out[i] = append([]string(nil), t.rows[i]...)
	}
	return out, nil
}

// Open returns a Source for path, choosing the reader by extension. XLSX
// workbooks are read eagerly into a Table; everything else is treated as CSV.
func Open(path string) (Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err := ReadXLSX(path, XLSXOptions{})
		if err != nil {
			return nil, err
		}
		return NewTable(filepath.Base(path), rows), nil
	}
	return NewFile(path), nil
}

// OpenUpload returns a Source for an uploaded file named name. XLSX uploads
// are parsed immediately; anything else is read as CSV from r.
func OpenUpload(name string, r io.Reader) (Source, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrap(err, "source: read upload")
		}
		rows, err := ReadXLSXBytes(data, XLSXOptions{})
		if err != nil {
			return nil, err
		}
		return NewTable(name, rows), nil
	}
	return NewReader(name, r), nil
}
