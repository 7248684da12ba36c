package ingest

import "regexp"

// Unknown marks a fiscal month or year that could not be decoded.
const Unknown = "Unknown"

var (
	periodCodeRe = regexp.MustCompile(`/(\d{3})`)
	periodYearRe = regexp.MustCompile(`\.(\d{4})`)
)

// fiscalMonths maps period codes of an April-start fiscal year to calendar
// month names.
var fiscalMonths = map[string]string{
	"001": "April",
	"002": "May",
	"003": "June",
	"004": "July",
	"005": "August",
	"006": "September",
	"007": "October",
	"008": "November",
	"009": "December",
	"010": "January",
	"011": "February",
	"012": "March",
}

// DecodeFiscalPeriod extracts the calendar month and 4-digit year from a
// fiscal period value such as "K4/002.2024" (May 2024). Either result is
// Unknown when its part is missing or the month code is out of range.
func DecodeFiscalPeriod(period string) (month, year string) {
	month, year = Unknown, Unknown

	if m := periodCodeRe.FindStringSubmatch(period); m != nil {
		if name, ok := fiscalMonths[m[1]]; ok {
			month = name
		}
	}
	if m := periodYearRe.FindStringSubmatch(period); m != nil {
		year = m[1]
	}
	return month, year
}
