package aggregation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// Config describes one aggregation request. Fields are read according to
// Type; unrelated fields are ignored.
type Config struct {
	Type domain.AggregationKind `json:"type" validate:"required"`

	// group_by
	GroupBy      StringList   `json:"group_by,omitempty"`
	ValueColumns StringList   `json:"value_columns,omitempty"`
	Aggregations Aggregations `json:"aggregations,omitempty"`

	// pivot; Columns doubles as the column list of summary_stats
	Index     StringList    `json:"index,omitempty"`
	Columns   StringList    `json:"columns,omitempty"`
	Values    StringList    `json:"values,omitempty"`
	AggFunc   string        `json:"aggfunc,omitempty"`
	FillValue *domain.Value `json:"fill_value,omitempty"`

	// time_series
	DateColumn        string     `json:"date_column,omitempty"`
	ValueColumn       string     `json:"value_column,omitempty"`
	Frequency         Frequency  `json:"frequency,omitempty" validate:"omitempty,oneof=D W M Q Y MS QS YS"`
	Aggregation       string     `json:"aggregation,omitempty"`
	AdditionalColumns StringList `json:"additional_columns,omitempty"`

	// summary_stats
	IncludeFinancialMetrics *bool `json:"include_financial_metrics,omitempty"`

	// hsbc_pattern
	Pattern string `json:"pattern,omitempty"`

	CleaningRules *CleaningRules `json:"cleaning_rules,omitempty"`
	Filters       Filters        `json:"filters,omitempty" validate:"dive"`
	SortBy        SortKeys       `json:"sort_by,omitempty" validate:"dive"`
	Limit         int            `json:"limit,omitempty" validate:"gte=0"`
}

// ParseConfig decodes a JSON aggregation config
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode aggregation config: %w", err)
	}
	return cfg, nil
}

func (c Config) includeFinancialMetrics() bool {
	return c.IncludeFinancialMetrics == nil || *c.IncludeFinancialMetrics
}

// StringList accepts either a JSON string or an array of strings
type StringList []string

// UnmarshalJSON implements json.Unmarshaler
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*l = nil
		} else {
			*l = StringList{s}
		}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(data, &ss); err != nil {
		return err
	}
	*l = ss
	return nil
}

// ColumnAggregation lists the functions applied to one value column
type ColumnAggregation struct {
	Column    string
	Functions []string
}

// Aggregations is a JSON object of column to function(s) that keeps the
// key order of the document.
type Aggregations []ColumnAggregation

// Lookup returns the functions configured for column
func (a Aggregations) Lookup(column string) ([]string, bool) {
	for _, ca := range a {
		if ca.Column == column {
			return ca.Functions, true
		}
	}
	return nil, false
}

// Columns returns the configured columns in document order
func (a Aggregations) Columns() []string {
	cols := make([]string, len(a))
	for i, ca := range a {
		cols[i] = ca.Column
	}
	return cols
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Aggregations) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*a = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("aggregations must be an object, got %v", tok)
	}

	var out Aggregations
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var funcs StringList
		if err := dec.Decode(&funcs); err != nil {
			return fmt.Errorf("aggregations[%q]: %w", key, err)
		}
		out = append(out, ColumnAggregation{Column: key, Functions: funcs})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}

// MarshalJSON implements json.Marshaler
func (a Aggregations) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ca := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ca.Column)
		if err != nil {
			return nil, err
		}
		funcs, err := json.Marshal(ca.Functions)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(funcs)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
