package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

func accounts(t *testing.T) *domain.Dataset {
	t.Helper()
	ds, err := domain.NewBuilder("account", "amount", "currency").
		Append(domain.Text("A1"), domain.Number(100), domain.Text("GBP")).
		Append(domain.Text("A2"), domain.Number(-5), domain.Text("USD")).
		Append(domain.Text("A1"), domain.Null(), domain.Text("XXX")).
		Append(domain.Null(), domain.Number(2_000_000), domain.Text("GBP")).
		Build()
	require.NoError(t, err)
	return ds
}

func TestValidate(t *testing.T) {
	ds := accounts(t)

	tests := []struct {
		name       string
		config     string
		passed     bool
		failed     int
		message    string
		errMessage string
	}{
		{
			name:    "required columns present",
			config:  `{"type":"required_columns","columns":["account","amount"]}`,
			passed:  true,
			message: "All required columns present",
		},
		{
			name:    "required columns missing",
			config:  `{"type":"required_columns","columns":["account","branch","iban"]}`,
			failed:  2,
			message: "Missing columns: branch, iban",
		},
		{
			name:    "not null",
			config:  `{"type":"not_null","columns":["account","amount"]}`,
			failed:  2,
			message: "2 rows have null values in account, amount",
		},
		{
			name:   "unique",
			config: `{"type":"unique","column":"account"}`,
			failed: 2,
		},
		{
			name:   "range",
			config: `{"type":"range","column":"amount","min":0,"max":1000000}`,
			failed: 2,
		},
		{
			name:   "allowed values",
			config: `{"type":"allowed_values","column":"currency","values":["GBP","USD","EUR"]}`,
			failed: 1,
		},
		{
			name:   "regex",
			config: `{"type":"regex","column":"account","pattern":"^A\\d+$"}`,
			passed: true,
		},
		{
			name:       "missing column",
			config:     `{"type":"not_null","column":"branch"}`,
			errMessage: "Column 'branch' not found",
		},
		{
			name:       "unknown check",
			config:     `{"type":"checksum","column":"account"}`,
			errMessage: "Unsupported validation type 'checksum'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseValidationConfig(json.RawMessage(tt.config))
			require.NoError(t, err)

			report := Validate(ds, "check", cfg)
			assert.Equal(t, "check", report.Rule)
			if tt.errMessage != "" {
				assert.Equal(t, tt.errMessage, report.Error)
				return
			}
			assert.Empty(t, report.Error)
			assert.Equal(t, tt.passed, report.Passed)
			assert.Equal(t, tt.failed, report.FailedCount)
			if tt.message != "" {
				assert.Equal(t, tt.message, report.Message)
			}
			if tt.failed > 0 && cfg.Type != CheckRequiredColumns {
				require.NotNil(t, report.FailedRows)
				assert.Equal(t, tt.failed, report.FailedRows.Len())
			}
		})
	}
}

func TestValidateCapsFailedRows(t *testing.T) {
	b := domain.NewBuilder("v")
	for i := 0; i < 250; i++ {
		b.Append(domain.Null())
	}
	ds, err := b.Build()
	require.NoError(t, err)

	report := Validate(ds, "v_not_null", ValidationConfig{Type: CheckNotNull, Column: "v"})
	assert.Equal(t, 250, report.FailedCount)
	assert.Equal(t, 100, report.FailedRows.Len())
}
