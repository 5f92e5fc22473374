package dataprocessing

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// ErrUnsupportedRule is returned when a rule config names an unknown type
var ErrUnsupportedRule = errors.New("unsupported normalization rule")

// NormalizationRule is the closed set of transforms the Normalizer runs.
// Implementations live in this package only.
type NormalizationRule interface {
	Name() string
	normalizationRule()
}

// TargetType is the output type of a conversion
type TargetType string

const (
	TargetNumeric  TargetType = "numeric"
	TargetDatetime TargetType = "datetime"
	TargetString   TargetType = "string"
	TargetBoolean  TargetType = "boolean"
)

func parseTargetType(s string) (TargetType, error) {
	switch t := TargetType(s); t {
	case TargetNumeric, TargetDatetime, TargetString, TargetBoolean:
		return t, nil
	}
	return "", fmt.Errorf("unsupported target type %q", s)
}

// RenameColumns renames columns; sources that do not exist are skipped
type RenameColumns struct {
	Mapping []ColumnRename
}

// ColumnRename is one rename pair
type ColumnRename struct {
	From string
	To   string
}

// SnakeCaseColumns standardizes column names. An empty list means every column.
type SnakeCaseColumns struct {
	Columns []string
}

// ConvertTypes coerces columns; values that do not convert become null
type ConvertTypes struct {
	Conversions []TypeConversion
}

// TypeConversion converts one column
type TypeConversion struct {
	Column string
	Target TargetType
}

// MapValues replaces cell values by lookup; unmapped values pass through
type MapValues struct {
	Mappings []ColumnValueMapping
}

// ColumnValueMapping is the lookup table of one column, keyed by cell text
type ColumnValueMapping struct {
	Column  string
	Mapping map[string]domain.Value
}

// FormatDates reformats date columns. Coercing rules null out values that
// do not parse; strict rules fail the column instead.
type FormatDates struct {
	Columns      []string
	OutputFormat string
	Strict       bool
}

// CleanCurrency strips currency symbols and separators and parses the
// remainder as a number. Values that still do not parse are kept verbatim.
type CleanCurrency struct {
	Columns []string
	Symbols []string
}

// StripWhitespace trims text cells. An empty list means every text column.
type StripWhitespace struct {
	Columns []string
}

// StandardizeTransactionType maps debit/credit codes to their canonical names
type StandardizeTransactionType struct {
	Columns []string
	Mapping map[string]string
}

// DefaultTransactionTypeMapping is the canonical credit/debit code table
var DefaultTransactionTypeMapping = map[string]string{
	"C": "Credit", "CR": "Credit", "Credit": "Credit",
	"D": "Debit", "DR": "Debit", "Debit": "Debit",
}

func (RenameColumns) Name() string              { return "column_mapping" }
func (SnakeCaseColumns) Name() string           { return "snake_case" }
func (ConvertTypes) Name() string               { return "data_type_conversion" }
func (MapValues) Name() string                  { return "value_mapping" }
func (FormatDates) Name() string                { return "date_format" }
func (CleanCurrency) Name() string              { return "currency_cleanup" }
func (StripWhitespace) Name() string            { return "strip_whitespace" }
func (StandardizeTransactionType) Name() string { return "transaction_type" }

func (RenameColumns) normalizationRule()              {}
func (SnakeCaseColumns) normalizationRule()           {}
func (ConvertTypes) normalizationRule()               {}
func (MapValues) normalizationRule()                  {}
func (FormatDates) normalizationRule()                {}
func (CleanCurrency) normalizationRule()              {}
func (StripWhitespace) normalizationRule()            {}
func (StandardizeTransactionType) normalizationRule() {}

// ruleConfig is the stored JSON shape of a normalization rule. Both the
// bulk forms (mapping, conversions, columns) and the single-column forms
// (column, new_name) are accepted.
type ruleConfig struct {
	Type         string                                `json:"type"`
	Column       string                                `json:"column"`
	Columns      []string                              `json:"columns"`
	NewName      string                                `json:"new_name"`
	Mapping      map[string]string                     `json:"mapping"`
	Conversions  map[string]string                     `json:"conversions"`
	Mappings     map[string]map[string]json.RawMessage `json:"mappings"`
	OutputFormat string                                `json:"output_format"`
	Symbols      []string                              `json:"symbols"`
}

// ParseNormalizationRule decodes a stored rule config
func ParseNormalizationRule(raw json.RawMessage) (NormalizationRule, error) {
	var cfg ruleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode normalization rule: %w", err)
	}

	switch cfg.Type {
	case "column_mapping":
		rule := RenameColumns{}
		for _, from := range sortedKeys(cfg.Mapping) {
			rule.Mapping = append(rule.Mapping, ColumnRename{From: from, To: cfg.Mapping[from]})
		}
		return rule, nil
	case "rename_column":
		if cfg.Column == "" || cfg.NewName == "" {
			return nil, errors.New("rename_column requires column and new_name")
		}
		return RenameColumns{Mapping: []ColumnRename{{From: cfg.Column, To: cfg.NewName}}}, nil
	case "snake_case", "convert_to_snake_case":
		return SnakeCaseColumns{Columns: cfg.columnList()}, nil
	case "data_type_conversion":
		rule := ConvertTypes{}
		for _, col := range sortedKeys(cfg.Conversions) {
			target, err := parseTargetType(cfg.Conversions[col])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			rule.Conversions = append(rule.Conversions, TypeConversion{Column: col, Target: target})
		}
		return rule, nil
	case "convert_numeric":
		return ConvertTypes{Conversions: []TypeConversion{{Column: cfg.Column, Target: TargetNumeric}}}, nil
	case "value_mapping":
		rule := MapValues{}
		cols := make([]string, 0, len(cfg.Mappings))
		for col := range cfg.Mappings {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			m := make(map[string]domain.Value, len(cfg.Mappings[col]))
			for from, rawTo := range cfg.Mappings[col] {
				var to domain.Value
				if err := json.Unmarshal(rawTo, &to); err != nil {
					return nil, fmt.Errorf("column %q mapping %q: %w", col, from, err)
				}
				m[from] = to
			}
			rule.Mappings = append(rule.Mappings, ColumnValueMapping{Column: col, Mapping: m})
		}
		return rule, nil
	case "date_format":
		return FormatDates{Columns: cfg.columnList(), OutputFormat: cfg.OutputFormat}, nil
	case "convert_date":
		return FormatDates{Columns: cfg.columnList(), Strict: true}, nil
	case "currency_cleanup", "standardize_currency":
		return CleanCurrency{Columns: cfg.columnList(), Symbols: cfg.Symbols}, nil
	case "strip_whitespace":
		return StripWhitespace{Columns: cfg.columnList()}, nil
	case "transaction_type":
		return StandardizeTransactionType{Columns: cfg.columnList(), Mapping: cfg.Mapping}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRule, cfg.Type)
	}
}

func (c ruleConfig) columnList() []string {
	if len(c.Columns) > 0 {
		return c.Columns
	}
	if c.Column != "" {
		return []string{c.Column}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
