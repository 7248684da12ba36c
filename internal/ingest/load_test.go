package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/kpi-cli/internal/source"
)

const doubleHeaderCSV = `Sector Code,Vessel,Vessel code,Fiscal year/period,Total Income (In Lacs),DOE (In Lacs),IOE (In Lacs),GOP (In Lacs),Profit before Int. & Dep. (In Lacs),Segment
,,,,Debit/Credit Amount,Debit/Credit Amount,Debit/Credit Amount,Debit/Credit Amount,Debit/Credit Amount,
LNG,Ship A,V001,K4/001.2023,"1,234.50",100,50,25,10,Seg1
LNG,Ship B,V002,K4/002.2024,200.456,abc,0,0,0,Seg1
Tanker,Ship C,V003,K4/010.2024,-300,(45.10),0,0,0,Seg2
Tanker,Ship D,V004,bad period,1,1,1,1,1,Seg2
Bulk,Ship E,V005,K4/012.2023,0,0,0,0,0,Seg3
`

// The sparse first data row has too few named cells to pass for a second
// header row.
const singleHeaderCSV = `Sector Code,Vessel,financial_year,financial_month,GOP (In Lacs) Debit/Credit Amount,
LNG,,,,,
LNG,Ship A,2024,May,10,
nan,Ship B,2024,May,11,
LNG,Ship C,2024,June,12,
`

func TestLoad_DoubleHeaderEndToEnd(t *testing.T) {
	ds, err := Load(context.Background(), source.NewReader("kpi.csv", strings.NewReader(doubleHeaderCSV)))
	require.NoError(t, err)

	assert.True(t, ds.Header.Double)
	assert.Equal(t, []string{
		"sector", "vessel", "vessel_code", "Total_Income", "DOE", "IOE", "GOP", "PBT", "year", "month",
	}, ds.Columns)
	require.Len(t, ds.Records, 4)
	assert.Equal(t, 5, ds.Stats.RowsIn)
	assert.Equal(t, 1, ds.Stats.DroppedPeriod)
	assert.Equal(t, 1, ds.Stats.CoercedCells)

	a := ds.Records[0]
	assert.Equal(t, "LNG", *a.Sector)
	assert.Equal(t, "Ship A", *a.Vessel)
	assert.Equal(t, 2023, *a.Year)
	assert.Equal(t, "April", *a.Month)
	assert.InDelta(t, 1234.5, a.TotalIncome, 1e-9)
	assert.InDelta(t, 100, a.DOE, 1e-9)
	assert.InDelta(t, 50, a.IOE, 1e-9)
	assert.InDelta(t, 25, a.GOP, 1e-9)
	assert.InDelta(t, 10, a.PBT, 1e-9)
	assert.Equal(t, map[string]string{"vessel_code": "V001"}, a.Extra)

	b := ds.Records[1]
	assert.Equal(t, "May", *b.Month)
	assert.Equal(t, 2024, *b.Year)
	assert.InDelta(t, 200.46, b.TotalIncome, 1e-9)
	assert.InDelta(t, 0, b.DOE, 1e-9, "non-numeric KPI cell becomes 0")

	c := ds.Records[2]
	assert.Equal(t, "January", *c.Month)
	assert.InDelta(t, -300, c.TotalIncome, 1e-9)
	assert.InDelta(t, 45.1, c.DOE, 1e-9)

	for _, r := range ds.Records {
		assert.NotEqual(t, "Ship D", *r.Vessel)
	}

	rep := Validate(ds)
	assert.True(t, rep.Passed)
	require.Len(t, rep.Warnings, 1)
	assert.Equal(t, "Total_Income", rep.Warnings[0].Column)
}

func TestLoad_SingleHeader(t *testing.T) {
	ds, err := Load(context.Background(), source.NewReader("single.csv", strings.NewReader(singleHeaderCSV)))
	require.NoError(t, err)

	assert.False(t, ds.Header.Double)
	assert.Equal(t, []string{"sector", "vessel", "year", "month", "GOP"}, ds.Columns)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, "Ship A", *ds.Records[0].Vessel)
	assert.Equal(t, "Ship C", *ds.Records[1].Vessel)
	assert.Equal(t, 2, ds.Stats.DroppedRequired)
}

func TestLoad_FilePathIsReopened(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpi.csv")
	require.NoError(t, os.WriteFile(path, []byte(doubleHeaderCSV), 0o644))

	ds, err := Load(context.Background(), source.NewFile(path))
	require.NoError(t, err)
	assert.Len(t, ds.Records, 4)
}

func TestLoad_InMemoryTable(t *testing.T) {
	src := source.NewTable("sheet", [][]string{
		{"Sector Code", "financial_year"},
		{"LNG", "2024"},
	})
	ds, err := Load(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, ds.Records, 1)
	assert.Equal(t, 2024, *ds.Records[0].Year)
}

func TestLoad_Latin1Values(t *testing.T) {
	input := "Vessel,financial_year\nAst\xe9rix,2024\n"
	ds, err := Load(context.Background(), source.NewReader("latin1.csv", strings.NewReader(input)))
	require.NoError(t, err)
	require.Len(t, ds.Records, 1)
	assert.Equal(t, "Astérix", *ds.Records[0].Vessel)
}

func TestLoad_HeaderOnly(t *testing.T) {
	ds, err := Load(context.Background(), source.NewReader("h.csv", strings.NewReader("Sector Code,Vessel,financial_year\n")))
	require.NoError(t, err)
	assert.Empty(t, ds.Records)
	assert.False(t, Validate(ds).Passed)
}

func TestLoad_EmptyInput(t *testing.T) {
	_, err := Load(context.Background(), source.NewReader("empty.csv", strings.NewReader("")))
	require.Error(t, err)
	assert.True(t, IsMalformed(err))

	var me *MalformedInputError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "preview", me.Op)
	assert.Equal(t, "empty.csv", me.Source)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), source.NewFile(filepath.Join(t.TempDir(), "missing.csv")))
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
	assert.Contains(t, err.Error(), "malformed input")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("stream truncated") }

func TestLoad_UnreadableStream(t *testing.T) {
	_, err := Load(context.Background(), source.NewReader("broken", failingReader{}))
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
	assert.Contains(t, err.Error(), "stream truncated")
}

func TestLoad_RowWiderThanHeader(t *testing.T) {
	input := "Vessel,financial_year\nShip A,,extra\n"
	_, err := Load(context.Background(), source.NewReader("wide.csv", strings.NewReader(input)))
	require.Error(t, err)

	var me *MalformedInputError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "shape", me.Op)
}

func TestLoad_TrailingEmptyCellsTolerated(t *testing.T) {
	input := "Vessel,financial_year\nShip A,2024,,\n"
	ds, err := Load(context.Background(), source.NewReader("trail.csv", strings.NewReader(input)))
	require.NoError(t, err)
	assert.Len(t, ds.Records, 1)
}

func TestLoad_FullFirstDataRowReadsAsDoubleHeader(t *testing.T) {
	// Three named cells in both leading rows select the two-row header even
	// when the second row is data.
	input := "Sector Code,Vessel,financial_year\nLNG,Ship A,2024\nLNG,Ship B,2023\n"
	ds, err := Load(context.Background(), source.NewReader("full.csv", strings.NewReader(input)))
	require.NoError(t, err)
	assert.True(t, ds.Header.Double)
	assert.Equal(t, "Sector Code LNG", ds.Header.Columns[0])
}

func TestIsMalformed(t *testing.T) {
	assert.False(t, IsMalformed(nil))
	assert.False(t, IsMalformed(errors.New("other")))
	assert.True(t, IsMalformed(&MalformedInputError{Op: "read", Source: "x", Err: errors.New("boom")}))
}
