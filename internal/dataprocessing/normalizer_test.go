package dataprocessing

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/San-2310/hsbc-hack/internal/shared/testutil"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"TransactionDate": "transaction_date",
		"txnAmt":          "txn_amt",
		"Account Number":  "account_number",
		"Value-Date":      "value_date",
		"cr_dr_flag":      "cr_dr_flag",
		"Q3Revenue":       "q3_revenue",
		"HTTPStatus":      "httpstatus",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, SnakeCase(in))
		})
	}
}

func TestCurrencyCleanup(t *testing.T) {
	ds, err := domain.NewDataset([]string{"amount"}, [][]domain.Value{
		{domain.Text("$1,200.50")},
		{domain.Text("£300")},
		{domain.Text("abc")},
		{domain.Null()},
	})
	require.NoError(t, err)

	n := NewNormalizer(nil)
	out, log := n.Normalize(ds, []NormalizationRule{CleanCurrency{Columns: []string{"amount"}}})

	assert.Equal(t, []domain.Value{
		domain.Number(1200.50),
		domain.Number(300),
		domain.Text("abc"),
		domain.Null(),
	}, out.Column("amount"))
	require.Len(t, log, 1)
	assert.Contains(t, log[0], "Normalized amount column: amount")

	// Cleaning already clean values changes nothing.
	again, _ := n.Normalize(out, []NormalizationRule{CleanCurrency{Columns: []string{"amount"}}})
	assert.Equal(t, out.Column("amount"), again.Column("amount"))

	// The caller's dataset is untouched.
	assert.Equal(t, domain.Text("$1,200.50"), ds.Cell(0, "amount"))
}

func TestCleanAmountKeepsOverflow(t *testing.T) {
	tests := []struct {
		in   domain.Value
		want domain.Value
	}{
		{domain.Text("$1e400"), domain.Text("$1e400")},
		{domain.Text("-1e400"), domain.Text("-1e400")},
		{domain.Text("€1e300"), domain.Number(1e300)},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CleanAmount(tt.in, nil))
		})
	}
}

func TestConvertTypesNullsUnparseable(t *testing.T) {
	ds, err := domain.NewDataset([]string{"n", "d", "b", "s"}, [][]domain.Value{
		{domain.Text("12"), domain.Text("01/15/2024"), domain.Text("yes"), domain.Number(1.5)},
		{domain.Text("x"), domain.Text("nope"), domain.Text("maybe"), domain.Null()},
	})
	require.NoError(t, err)

	out, log := NewNormalizer(nil).Normalize(ds, []NormalizationRule{
		ConvertTypes{Conversions: []TypeConversion{
			{Column: "n", Target: TargetNumeric},
			{Column: "d", Target: TargetDatetime},
			{Column: "b", Target: TargetBoolean},
			{Column: "s", Target: TargetString},
		}},
	})

	assert.Equal(t, []domain.Value{domain.Number(12), domain.Null()}, out.Column("n"))
	assert.Equal(t, []domain.Value{domain.Text("2024-01-15"), domain.Null()}, out.Column("d"))
	assert.Equal(t, []domain.Value{domain.Bool(true), domain.Null()}, out.Column("b"))
	assert.Equal(t, []domain.Value{domain.Text("1.5"), domain.Null()}, out.Column("s"))
	require.Len(t, log, 1)
	assert.Contains(t, log[0], "Converted column 'n' to numeric (1 values set to null)")
}

func TestRuleFailureDoesNotStopLaterRules(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	ds, err := domain.NewDataset([]string{"a", "b", "when"}, [][]domain.Value{
		{domain.Text(" x "), domain.Number(1), domain.Text("garbage")},
	})
	require.NoError(t, err)

	rules := []NormalizationRule{
		RenameColumns{Mapping: []ColumnRename{{From: "a", To: "b"}}},
		FormatDates{Columns: []string{"when"}, Strict: true},
		RenameColumns{Mapping: []ColumnRename{{From: "missing", To: "z"}}},
		StripWhitespace{Columns: []string{"a"}},
	}
	out, log := NewNormalizer(logger).Normalize(ds, rules)

	require.Len(t, log, 4)
	assert.Contains(t, log[0], "Rule column_mapping failed")
	assert.Contains(t, log[1], "Rule date_format failed: date column when")
	assert.Equal(t, "Column 'missing' not found, rename skipped", log[2])
	assert.Equal(t, "Stripped whitespace from column 'a'", log[3])

	assert.Equal(t, []string{"a", "b", "when"}, out.Columns())
	assert.Equal(t, domain.Text("x"), out.Cell(0, "a"))
	assert.Equal(t, domain.Text("garbage"), out.Cell(0, "when"))
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "normalization rule failed")
}

func TestNormalizeIsDeterministic(t *testing.T) {
	ds := transactions(t)
	rules := []NormalizationRule{
		StripWhitespace{},
		ConvertTypes{Conversions: []TypeConversion{{Column: "Txn_Date", Target: TargetDatetime}}},
		SnakeCaseColumns{},
	}
	n := NewNormalizer(nil)
	out1, log1 := n.Normalize(ds, rules)
	out2, log2 := n.Normalize(ds, rules)

	assert.Equal(t, log1, log2)
	assert.Equal(t, out1.Records(), out2.Records())
}

func TestNormalizeDefault(t *testing.T) {
	ds := transactions(t)
	schema := NewProfiler(nil, ProfilerConfig{}).DetectSchema(ds)
	n := NewNormalizer(nil)

	out, log := n.NormalizeDefault(ds, schema)

	assert.Equal(t, []string{"txn_date", "amount", "cr_dr_flag", "account_no", "notes"}, out.Columns())
	assert.Equal(t, domain.Text("2024-01-15"), out.Cell(1, "txn_date"))
	assert.Equal(t, domain.Number(1200.5), out.Cell(0, "amount"))
	assert.Equal(t, domain.Text("abc"), out.Cell(2, "amount"))
	assert.Equal(t, []domain.Value{
		domain.Text("Credit"), domain.Text("Debit"), domain.Text("Debit"), domain.Text("Debit"),
	}, out.Column("cr_dr_flag"))
	assert.Equal(t, []string{
		"Normalized date column: Txn_Date -> YYYY-MM-DD format",
		"Normalized amount column: Amount -> float format (2 values kept as text)",
		"Normalized type column: CR_DR_Flag -> standardized values",
		"Standardized column names: 'Txn_Date' -> 'txn_date', 'Amount' -> 'amount', 'CR_DR_Flag' -> 'cr_dr_flag', 'Account_No' -> 'account_no', 'Notes' -> 'notes'",
	}, []string(log))

	// A second pass over normalized data is a no-op.
	again, _ := n.NormalizeDefault(out, NewProfiler(nil, ProfilerConfig{}).DetectSchema(out))
	assert.Equal(t, out.Records(), again.Records())
	assert.Equal(t, out.Columns(), again.Columns())
}

func TestParseNormalizationRule(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		want    NormalizationRule
		wantErr bool
	}{
		{
			name:   "column mapping",
			config: `{"type":"column_mapping","mapping":{"b":"B","a":"A"}}`,
			want:   RenameColumns{Mapping: []ColumnRename{{From: "a", To: "A"}, {From: "b", To: "B"}}},
		},
		{
			name:   "single rename",
			config: `{"type":"rename_column","column":"a","new_name":"b"}`,
			want:   RenameColumns{Mapping: []ColumnRename{{From: "a", To: "b"}}},
		},
		{
			name:   "type conversion",
			config: `{"type":"data_type_conversion","conversions":{"amt":"numeric"}}`,
			want:   ConvertTypes{Conversions: []TypeConversion{{Column: "amt", Target: TargetNumeric}}},
		},
		{
			name:   "date format",
			config: `{"type":"date_format","columns":["d"],"output_format":"%d/%m/%Y"}`,
			want:   FormatDates{Columns: []string{"d"}, OutputFormat: "%d/%m/%Y"},
		},
		{
			name:   "currency cleanup",
			config: `{"type":"currency_cleanup","columns":["amt"]}`,
			want:   CleanCurrency{Columns: []string{"amt"}},
		},
		{
			name:   "value mapping",
			config: `{"type":"value_mapping","mappings":{"flag":{"Y":true}}}`,
			want: MapValues{Mappings: []ColumnValueMapping{
				{Column: "flag", Mapping: map[string]domain.Value{"Y": domain.Bool(true)}},
			}},
		},
		{name: "bad target", config: `{"type":"data_type_conversion","conversions":{"a":"money"}}`, wantErr: true},
		{name: "unknown type", config: `{"type":"explode"}`, wantErr: true},
		{name: "malformed", config: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNormalizationRule(json.RawMessage(tt.config))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseNormalizationRule(json.RawMessage(`{"type":"explode"}`))
	assert.ErrorIs(t, err, ErrUnsupportedRule)
}
