package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeFiscalPeriod(t *testing.T) {
	tests := []struct {
		period    string
		wantMonth string
		wantYear  string
	}{
		{"K4/002.2024", "May", "2024"},
		{"/001.2023", "April", "2023"},
		{"V3/009.2022", "December", "2022"},
		{"V3/010.2025", "January", "2025"},
		{"V3/012.2025", "March", "2025"},
		{"V3/013.2025", Unknown, "2025"},
		{"no period here", Unknown, Unknown},
		{"", Unknown, Unknown},
		{"K4/005", "August", Unknown},
		{"2024.07", Unknown, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			month, year := DecodeFiscalPeriod(tt.period)
			assert.Equal(t, tt.wantMonth, month)
			assert.Equal(t, tt.wantYear, year)
		})
	}
}

func TestFiscalMonths_CoverAllMonths(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range fiscalMonths {
		seen[m] = true
	}
	assert.Len(t, fiscalMonths, 12)
	assert.Len(t, seen, 12)
}
