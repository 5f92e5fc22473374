package rules

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

func numbersDataset(t *testing.T, col string, values ...any) *domain.Dataset {
	t.Helper()
	b := domain.NewBuilder(col)
	for _, v := range values {
		b.Append(domain.ValueOf(v))
	}
	ds, err := b.Build()
	require.NoError(t, err)
	return ds
}

func flagConfig(t *testing.T, raw string) FlagConfig {
	t.Helper()
	cfg, err := ParseFlagConfig(json.RawMessage(raw))
	require.NoError(t, err)
	return cfg
}

func TestThresholdFlag(t *testing.T) {
	ds := numbersDataset(t, "amount", 1, 6, 3, 9)

	res := EvaluateFlag(ds, flagConfig(t, `{"type":"threshold","column":"amount","threshold":5,"operator":">"}`))

	require.False(t, res.Failed())
	assert.Equal(t, "threshold_flag", res.FlagName)
	assert.Equal(t, 2, res.FlaggedCount)
	assert.Equal(t, 4, res.TotalCount)
	assert.Equal(t, 50.0, res.FlaggedPercentage)
	assert.Equal(t, []domain.Value{domain.Number(6), domain.Number(9)}, res.FlaggedRows.Column("amount"))

	// The input is left alone.
	assert.Equal(t, 4, ds.Len())
}

func TestThresholdOperators(t *testing.T) {
	ds := numbersDataset(t, "v", 1, 5, "5", nil, "n/a", 7)

	tests := []struct {
		op   string
		want int
	}{
		{"", 1},
		{">", 1},
		{">=", 3},
		{"<", 1},
		{"<=", 3},
		{"==", 2},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			res := EvaluateFlag(ds, FlagConfig{
				Type: FlagThreshold, Column: "v", Operator: tt.op, Threshold: ptr(domain.Number(5)),
			})
			require.False(t, res.Failed(), res.Error)
			assert.Equal(t, tt.want, res.FlaggedCount)
		})
	}
}

func TestFlagErrors(t *testing.T) {
	ds := numbersDataset(t, "v", 1, 2)

	tests := []struct {
		name   string
		config string
		want   string
	}{
		{"threshold without column", `{"type":"threshold","threshold":1}`, "Column and threshold required"},
		{"threshold without value", `{"type":"threshold","column":"v"}`, "Column and threshold required"},
		{"threshold missing column", `{"type":"threshold","column":"x","threshold":1}`, "Column 'x' not found"},
		{"bad operator", `{"type":"threshold","column":"v","threshold":1,"operator":"!="}`, "Invalid operator: !="},
		{"outlier without column", `{"type":"outlier"}`, "Column required"},
		{"outlier bad method", `{"type":"outlier","column":"v","method":"mad"}`, "Invalid outlier detection method: mad"},
		{"pattern without pattern", `{"type":"pattern","column":"v"}`, "Column and pattern required"},
		{"pattern bad type", `{"type":"pattern","column":"v","pattern":"x","pattern_type":"glob"}`, "Invalid pattern type: glob"},
		{"unknown flag", `{"type":"velocity"}`, "Unsupported flag type 'velocity'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := EvaluateFlag(ds, flagConfig(t, tt.config))
			assert.True(t, res.Failed())
			assert.Equal(t, tt.want, res.Error)

			out, err := json.Marshal(res)
			require.NoError(t, err)
			assert.JSONEq(t, `{"error":"`+tt.want+`"}`, string(out))
		})
	}
}

func TestOutlierFlag(t *testing.T) {
	values := []any{10, 11, 12, 10, 11, 12, 10, 11, 12, 10, 11, 500}
	ds := numbersDataset(t, "amount", values...)

	iqr := EvaluateFlag(ds, flagConfig(t, `{"type":"outlier","column":"amount"}`))
	require.False(t, iqr.Failed())
	assert.Equal(t, "outlier_flag", iqr.FlagName)
	assert.Equal(t, 1, iqr.FlaggedCount)
	assert.Equal(t, 8.33, iqr.FlaggedPercentage)
	assert.Equal(t, domain.Number(500), iqr.FlaggedRows.Cell(0, "amount"))

	z := EvaluateFlag(ds, flagConfig(t, `{"type":"outlier","column":"amount","method":"zscore","flag_name":"spike"}`))
	require.False(t, z.Failed())
	assert.Equal(t, "spike", z.FlagName)
	assert.Equal(t, 1, z.FlaggedCount)

	flat := EvaluateFlag(numbersDataset(t, "amount", 3, 3, 3), flagConfig(t, `{"type":"outlier","column":"amount","method":"zscore"}`))
	assert.Zero(t, flat.FlaggedCount)
}

func TestOutlierFlagInfiniteValues(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		method string
		want   int
	}{
		{"iqr flags both infinities", []any{10, 11, 12, math.Inf(1), 11, math.Inf(-1)}, "iqr", 2},
		{"zscore flags infinity", []any{10, 11, 12, 10, 11, math.Inf(1)}, "zscore", 1},
		{"flat column still flags infinity", []any{3, 3, 3, math.Inf(1)}, "zscore", 1},
		{"text infinity", []any{10, 11, 12, "inf"}, "iqr", 1},
		{"only infinities", []any{math.Inf(1), math.Inf(-1)}, "iqr", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := numbersDataset(t, "amount", tt.values...)
			var res domain.FlagResult
			require.NotPanics(t, func() {
				res = EvaluateFlag(ds, flagConfig(t, `{"type":"outlier","column":"amount","method":"`+tt.method+`"}`))
			})
			require.False(t, res.Failed(), res.Error)
			assert.Equal(t, tt.want, res.FlaggedCount)
			_, err := json.Marshal(res)
			assert.NoError(t, err)
		})
	}
}

func TestPatternFlag(t *testing.T) {
	ds := numbersDataset(t, "memo", "ATM WITHDRAWAL", "atm fee", "Salary", nil, "POS ATM")

	tests := []struct {
		name   string
		config string
		want   int
	}{
		{"regex", `{"type":"pattern","column":"memo","pattern":"^ATM"}`, 1},
		{"case insensitive regex", `{"type":"pattern","column":"memo","pattern":"(?i)atm"}`, 3},
		{"exact", `{"type":"pattern","column":"memo","pattern":"Salary","pattern_type":"exact"}`, 1},
		{"contains", `{"type":"pattern","column":"memo","pattern":"ATM","pattern_type":"contains"}`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := EvaluateFlag(ds, flagConfig(t, tt.config))
			require.False(t, res.Failed(), res.Error)
			assert.Equal(t, "pattern_flag", res.FlagName)
			assert.Equal(t, tt.want, res.FlaggedCount)
		})
	}

	res := EvaluateFlag(ds, flagConfig(t, `{"type":"pattern","column":"memo","pattern":"(["}`))
	assert.Contains(t, res.Error, "Invalid regex pattern")
}

func ptr[T any](v T) *T { return &v }
