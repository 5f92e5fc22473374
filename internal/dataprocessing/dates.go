package dataprocessing

import (
	"strconv"
	"strings"
	"time"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// dateLayouts are tried in order. Slash dates are month-first with a
// day-first fallback, matching the usual dataframe reader behaviour.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05Z07:00",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"01/02/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"02-01-2006",
	"02.01.2006",
	"2.1.2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"Mon, 02 Jan 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"Jan-2006",
	"January 2006",
	"2006-01",
}

// ParseTime parses s with the permissive layout list
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !looksLikeDate(s) {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// looksLikeDate rejects bare numbers, which the layouts above would never
// accept but are by far the most common input.
func looksLikeDate(s string) bool {
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return false
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// TimeOf coerces a cell to a time. Timestamps pass through and text is
// parsed; numbers and booleans never convert.
func TimeOf(v domain.Value) (time.Time, bool) {
	switch v.Kind() {
	case domain.KindTimestamp:
		t, _ := v.AsTime()
		return t, true
	case domain.KindText:
		s, _ := v.AsText()
		return ParseTime(s)
	default:
		return time.Time{}, false
	}
}

// FormatTime renders t with a strftime-style format. Unknown directives
// are copied through unchanged.
func FormatTime(t time.Time, format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i == len(format)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch format[i] {
		case 'Y':
			b.WriteString(t.Format("2006"))
		case 'y':
			b.WriteString(t.Format("06"))
		case 'm':
			b.WriteString(t.Format("01"))
		case 'd':
			b.WriteString(t.Format("02"))
		case 'e':
			b.WriteString(t.Format("_2"))
		case 'H':
			b.WriteString(t.Format("15"))
		case 'I':
			b.WriteString(t.Format("03"))
		case 'M':
			b.WriteString(t.Format("04"))
		case 'S':
			b.WriteString(t.Format("05"))
		case 'f':
			b.WriteString(t.Format(".000000")[1:])
		case 'p':
			b.WriteString(t.Format("PM"))
		case 'b':
			b.WriteString(t.Format("Jan"))
		case 'B':
			b.WriteString(t.Format("January"))
		case 'a':
			b.WriteString(t.Format("Mon"))
		case 'A':
			b.WriteString(t.Format("Monday"))
		case 'j':
			b.WriteString(t.Format("002"))
		case 'z':
			b.WriteString(t.Format("-0700"))
		case 'Z':
			b.WriteString(t.Format("MST"))
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}
	return b.String()
}

// ISODate formats t as YYYY-MM-DD
func ISODate(t time.Time) string {
	return t.Format("2006-01-02")
}
