package aggregation

import (
	"sort"
	"strings"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// DefaultPattern is used when an hsbc_pattern config names none
const DefaultPattern = "transaction_summary"

// Pattern is a canned group_by over the usual banking column names
type Pattern struct {
	GroupBy      []string     `json:"group_by"`
	Aggregations Aggregations `json:"aggregations"`
}

var patterns = map[string]Pattern{
	"transaction_summary": {
		GroupBy: []string{"account", "transaction_type", "date"},
		Aggregations: Aggregations{
			{Column: "amount", Functions: []string{FuncSum, FuncCount, FuncMean}},
			{Column: "transaction_type", Functions: []string{FuncCount}},
		},
	},
	"customer_summary": {
		GroupBy: []string{"customer_id", "month"},
		Aggregations: Aggregations{
			{Column: "amount", Functions: []string{FuncSum, FuncCount}},
			{Column: "transaction_type", Functions: []string{FuncUniqueCount}},
		},
	},
	"regional_summary": {
		GroupBy: []string{"region", "quarter"},
		Aggregations: Aggregations{
			{Column: "amount", Functions: []string{FuncSum, FuncMean}},
			{Column: "transaction_count", Functions: []string{FuncSum}},
		},
	},
}

// Patterns returns a copy of the preset table
func Patterns() map[string]Pattern {
	out := make(map[string]Pattern, len(patterns))
	for k, v := range patterns {
		out[k] = v
	}
	return out
}

// PatternNames lists the presets in sorted order
func PatternNames() []string {
	names := make([]string, 0, len(patterns))
	for k := range patterns {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func patternName(cfg Config) string {
	if cfg.Pattern == "" {
		return DefaultPattern
	}
	return cfg.Pattern
}

// expandPattern rewrites an hsbc_pattern config into the group_by it
// stands for, bound to the dataset's actual column names. Preset columns
// the dataset lacks are dropped; at least one group key must remain.
func expandPattern(ds *domain.Dataset, cfg Config) (Config, error) {
	name := patternName(cfg)
	p, ok := patterns[name]
	if !ok {
		return Config{}, &UnsupportedOperationError{Kind: "HSBC pattern", Name: name}
	}

	out := cfg
	out.Type = domain.AggregationGroupBy
	out.GroupBy = nil
	out.ValueColumns = nil
	out.Aggregations = nil

	for _, c := range p.GroupBy {
		if actual, ok := resolveColumn(ds, c); ok {
			out.GroupBy = append(out.GroupBy, actual)
		}
	}
	if len(out.GroupBy) == 0 {
		return Config{}, &ColumnNotFoundError{Columns: p.GroupBy}
	}
	for _, ca := range p.Aggregations {
		if actual, ok := resolveColumn(ds, ca.Column); ok {
			out.Aggregations = append(out.Aggregations, ColumnAggregation{Column: actual, Functions: ca.Functions})
		}
	}
	return out, nil
}

// resolveColumn finds name exactly, then ignoring case
func resolveColumn(ds *domain.Dataset, name string) (string, bool) {
	if ds.HasColumn(name) {
		return name, true
	}
	for _, c := range ds.Columns() {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}
