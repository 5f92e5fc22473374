package dataprocessing

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// DefaultCurrencySymbols are stripped by currency cleanup when a rule names none
var DefaultCurrencySymbols = []string{"$", "£", "€", "¥", "₹"}

// NumberOf coerces a cell to a float. Only numbers and numeric text convert.
func NumberOf(v domain.Value) (float64, bool) {
	switch v.Kind() {
	case domain.KindNumber, domain.KindText:
		return v.Float()
	default:
		return 0, false
	}
}

// ParseAmount strips currency symbols, thousands separators and surrounding
// whitespace, then parses the residue as a decimal.
func ParseAmount(s string, symbols []string) (decimal.Decimal, bool) {
	if len(symbols) == 0 {
		symbols = DefaultCurrencySymbols
	}
	for _, sym := range symbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// CleanAmount applies ParseAmount to a cell. Nulls stay null. Values that
// do not parse, or overflow a float64, are returned unchanged.
func CleanAmount(v domain.Value, symbols []string) domain.Value {
	if v.IsNull() {
		return v
	}
	if n, ok := v.AsNumber(); ok {
		return domain.Number(n)
	}
	d, ok := ParseAmount(v.String(), symbols)
	if !ok {
		return v
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) {
		return v
	}
	return domain.Number(f)
}

// ParseBoolLoose accepts common truthy and falsy spellings
func ParseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// BoolOf coerces a cell to a boolean
func BoolOf(v domain.Value) (bool, bool) {
	switch v.Kind() {
	case domain.KindBool:
		return v.AsBool()
	case domain.KindNumber:
		n, _ := v.AsNumber()
		return n != 0, true
	case domain.KindText:
		s, _ := v.AsText()
		return ParseBoolLoose(s)
	default:
		return false, false
	}
}
