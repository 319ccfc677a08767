package core

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Placeholder is shown for values that are absent from the document.
const Placeholder = "–"

var monthNames = [12]string{
	"Januar", "Februar", "Mars", "April", "Mai", "Juni",
	"Juli", "August", "September", "Oktober", "November", "Desember",
}

// Medium-style abbreviations, as in "19. okt. 2026".
var monthAbbrev = [12]string{
	"jan.", "feb.", "mar.", "apr.", "mai", "jun.",
	"jul.", "aug.", "sep.", "okt.", "nov.", "des.",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// Formatter turns numbers, timestamps and month keys into display strings.
type Formatter struct {
	Locale   language.Tag
	Currency string
	Location *time.Location
}

// DefaultFormatter formats for Norwegian Bokmål with a "kr" suffix in local time.
func DefaultFormatter() Formatter {
	return NewFormatter(language.MustParse("nb-NO"), "kr", time.Local)
}

// NewFormatter builds a Formatter. A nil location means time.Local.
func NewFormatter(locale language.Tag, currency string, loc *time.Location) Formatter {
	if loc == nil {
		loc = time.Local
	}
	return Formatter{
		Locale:   locale,
		Currency: currency,
		Location: loc,
	}
}

// Amount rounds to the nearest whole unit (halves towards +∞), groups the
// digits using the locale's convention and appends the currency suffix.
func (f Formatter) Amount(v float64) string {
	n := math.Floor(v + 0.5)
	return message.NewPrinter(f.Locale).Sprintf("%.0f", n) + " " + f.Currency
}

// NoBudget is the placeholder used in place of an unset budget.
func (f Formatter) NoBudget() string {
	return Placeholder + " " + f.Currency
}

// Timestamp renders an export timestamp as medium date plus short time,
// e.g. "19. okt. 2026, 14:30". An empty value gives the placeholder and an
// unrecognised value is returned as is.
func (f Formatter) Timestamp(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Placeholder
	}
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	t, ok := parseTimestamp(s, loc)
	if !ok {
		return s
	}
	t = t.In(loc)
	return strconv.Itoa(t.Day()) + ". " + monthAbbrev[t.Month()-1] + " " +
		strconv.Itoa(t.Year()) + ", " + t.Format("15:04")
}

// parseTimestamp reads zone-less layouts as wall-clock time in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	// Date-only ISO strings denote UTC midnight.
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// MonthLabel turns "2024-03" into "Mars 2024". A month part outside 1-12
// is kept verbatim.
func (f Formatter) MonthLabel(key string) string {
	year, month, found := strings.Cut(key, "-")
	if !found {
		return key
	}
	if i, err := strconv.Atoi(month); err == nil && i >= 1 && i <= 12 {
		return monthNames[i-1] + " " + year
	}
	return month + " " + year
}
