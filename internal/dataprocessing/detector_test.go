package dataprocessing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

func texts(ss ...string) []domain.Value {
	out := make([]domain.Value, len(ss))
	for i, s := range ss {
		out[i] = domain.Text(s)
	}
	return out
}

func TestDetectType(t *testing.T) {
	many := make([]domain.Value, 0, 60)
	for i := 0; i < 60; i++ {
		many = append(many, domain.Text(fmt.Sprintf("name-%d", i)))
	}

	tests := []struct {
		name   string
		values []domain.Value
		want   domain.SemanticType
	}{
		{"empty column", nil, domain.TypeUnknown},
		{"all null column", []domain.Value{domain.Null(), domain.Null()}, domain.TypeUnknown},
		{"iso dates", texts("2024-01-01", "2024-01-15", "2024-02-01"), domain.TypeDatetime},
		{"mixed date layouts", texts("01/15/2024", "15 Jan 2024"), domain.TypeDatetime},
		{"timestamps", []domain.Value{domain.Timestamp(time.Now())}, domain.TypeDatetime},
		{"numbers", []domain.Value{domain.Number(1), domain.Number(2.5), domain.Null()}, domain.TypeNumeric},
		{"numeric text", texts("1", "2.5", "-3"), domain.TypeNumeric},
		{"currency text is not numeric", texts("$1,200.50", "£300"), domain.TypeCategorical},
		{"booleans", []domain.Value{domain.Bool(true), domain.Bool(false)}, domain.TypeBoolean},
		{"low cardinality", texts("C", "D", "C", "D"), domain.TypeCategorical},
		{"high cardinality", many, domain.TypeString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectType(tt.values))
		})
	}
}

func TestDetectTypeSamplesFirstHundred(t *testing.T) {
	values := make([]domain.Value, 0, 150)
	for i := 0; i < 100; i++ {
		values = append(values, domain.Number(float64(i)))
	}
	for i := 0; i < 50; i++ {
		values = append(values, domain.Text("not a number"))
	}
	assert.Equal(t, domain.TypeNumeric, DetectType(values))
}

func TestDetectPattern(t *testing.T) {
	tests := []struct {
		column string
		want   domain.PatternFamily
	}{
		{"Transaction_Date", domain.PatternDate},
		{"value_date", domain.PatternDate},
		{"TXN_AMT", domain.PatternAmount},
		{"Amount", domain.PatternAmount},
		{"cr_dr_flag", domain.PatternTransactionType},
		{"Transaction_Type", domain.PatternTransactionType},
		{"Customer_ID", domain.PatternAccount},
		{"account_number", domain.PatternAccount},
		{"region", domain.PatternNone},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPattern(tt.column))
		})
	}
}

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("15/01/2024")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParseTime("12345")
	assert.False(t, ok)
	_, ok = ParseTime("hello")
	assert.False(t, ok)
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	assert.Equal(t, "2024-03-05", FormatTime(ts, "%Y-%m-%d"))
	assert.Equal(t, "05/03/24 14:07:09", FormatTime(ts, "%d/%m/%y %H:%M:%S"))
	assert.Equal(t, "Mar 2024 (065) 100%", FormatTime(ts, "%b %Y (%j) 100%%"))
}
