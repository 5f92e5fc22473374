package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/San-2310/hsbc-hack/internal/aggregation"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// ValidationCheck selects a data validation
type ValidationCheck string

const (
	CheckRequiredColumns ValidationCheck = "required_columns"
	CheckNotNull         ValidationCheck = "not_null"
	CheckUnique          ValidationCheck = "unique"
	CheckRange           ValidationCheck = "range"
	CheckAllowedValues   ValidationCheck = "allowed_values"
	CheckRegex           ValidationCheck = "regex"
)

// maxFailedRows caps the rows attached to a validation report
const maxFailedRows = 100

// ValidationConfig is the stored form of a validation rule
type ValidationConfig struct {
	Type    ValidationCheck        `json:"type"`
	Column  string                 `json:"column,omitempty"`
	Columns aggregation.StringList `json:"columns,omitempty"`
	Min     *float64               `json:"min,omitempty"`
	Max     *float64               `json:"max,omitempty"`
	Values  []domain.Value         `json:"values,omitempty"`
	Pattern string                 `json:"pattern,omitempty"`
}

func (c ValidationConfig) columns() []string {
	if len(c.Columns) > 0 {
		return c.Columns
	}
	if c.Column != "" {
		return []string{c.Column}
	}
	return nil
}

// ParseValidationConfig decodes a stored validation rule config
func ParseValidationConfig(raw json.RawMessage) (ValidationConfig, error) {
	var cfg ValidationConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return ValidationConfig{}, fmt.Errorf("decode validation rule: %w", err)
	}
	return cfg, nil
}

// Validate checks ds against cfg. The report names the rows that failed,
// up to a fixed cap.
func Validate(ds *domain.Dataset, name string, cfg ValidationConfig) domain.ValidationReport {
	report := domain.ValidationReport{Rule: name, Check: string(cfg.Type)}
	cols := cfg.columns()

	if cfg.Type == CheckRequiredColumns {
		if len(cols) == 0 {
			report.Error = "columns required"
			return report
		}
		miss := ds.MissingColumns(cols...)
		report.FailedCount = len(miss)
		report.Passed = len(miss) == 0
		if report.Passed {
			report.Message = "All required columns present"
		} else {
			report.Message = fmt.Sprintf("Missing columns: %s", strings.Join(miss, ", "))
		}
		return report
	}

	if len(cols) == 0 {
		report.Error = "column required"
		return report
	}
	if miss := ds.MissingColumns(cols...); len(miss) > 0 {
		report.Error = fmt.Sprintf("Column '%s' not found", miss[0])
		return report
	}

	var failing func(row int) bool
	var describe string
	switch cfg.Type {
	case CheckNotNull:
		data := columnData(ds, cols)
		failing = func(r int) bool {
			for _, col := range data {
				if col[r].IsNull() {
					return true
				}
			}
			return false
		}
		describe = "null values in " + strings.Join(cols, ", ")
	case CheckUnique:
		dup := duplicateRows(ds, cols)
		failing = func(r int) bool { return dup[r] }
		describe = "duplicate values in " + strings.Join(cols, ", ")
	case CheckRange:
		if cfg.Min == nil && cfg.Max == nil {
			report.Error = "min or max required"
			return report
		}
		values := ds.Column(cols[0])
		failing = func(r int) bool {
			v := values[r]
			if v.IsNull() {
				return false
			}
			f, ok := v.Float()
			if !ok {
				return true
			}
			return (cfg.Min != nil && f < *cfg.Min) || (cfg.Max != nil && f > *cfg.Max)
		}
		describe = "values out of range in " + cols[0]
	case CheckAllowedValues:
		allowed := make(map[string]bool, len(cfg.Values))
		for _, v := range cfg.Values {
			allowed[v.Key()] = true
		}
		values := ds.Column(cols[0])
		failing = func(r int) bool { return !values[r].IsNull() && !allowed[values[r].Key()] }
		describe = "values not allowed in " + cols[0]
	case CheckRegex:
		if cfg.Pattern == "" {
			report.Error = "pattern required"
			return report
		}
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			report.Error = fmt.Sprintf("Invalid regex pattern: %v", err)
			return report
		}
		values := ds.Column(cols[0])
		failing = func(r int) bool { return !values[r].IsNull() && !re.MatchString(values[r].String()) }
		describe = "values not matching pattern in " + cols[0]
	default:
		report.Error = fmt.Sprintf("Unsupported validation type '%s'", cfg.Type)
		return report
	}

	var failed []int
	for r := 0; r < ds.Len(); r++ {
		if failing(r) {
			failed = append(failed, r)
		}
	}
	report.FailedCount = len(failed)
	report.Passed = len(failed) == 0
	if report.Passed {
		report.Message = "Validation passed"
		return report
	}
	report.Message = fmt.Sprintf("%d rows have %s", len(failed), describe)
	if len(failed) > maxFailedRows {
		failed = failed[:maxFailedRows]
	}
	report.FailedRows = ds.Take(failed)
	return report
}

func columnData(ds *domain.Dataset, cols []string) [][]domain.Value {
	out := make([][]domain.Value, len(cols))
	for i, c := range cols {
		out[i] = ds.Column(c)
	}
	return out
}

// duplicateRows marks every row whose key tuple occurs more than once
func duplicateRows(ds *domain.Dataset, cols []string) map[int]bool {
	data := columnData(ds, cols)
	byKey := make(map[string][]int)
	var sb strings.Builder
	for r := 0; r < ds.Len(); r++ {
		sb.Reset()
		for _, col := range data {
			sb.WriteString(col[r].Key())
			sb.WriteByte(0x1f)
		}
		byKey[sb.String()] = append(byKey[sb.String()], r)
	}
	dup := make(map[int]bool)
	for _, rows := range byKey {
		if len(rows) > 1 {
			for _, r := range rows {
				dup[r] = true
			}
		}
	}
	return dup
}
