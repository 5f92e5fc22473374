package aggregation

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// Filter keeps result rows whose column satisfies Operator against Value.
// The in operator matches against Values.
type Filter struct {
	Column   string         `json:"column" validate:"required"`
	Operator string         `json:"operator,omitempty" validate:"omitempty,oneof=eq ne gt gte lt lte contains in"`
	Value    domain.Value   `json:"value"`
	Values   []domain.Value `json:"values,omitempty"`
}

// Filters also decodes the shorthand object form {"column": value}, read
// as equality filters in key order.
type Filters []Filter

// UnmarshalJSON implements json.Unmarshaler
func (f *Filters) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		var list []Filter
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*f = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	var out Filters
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		var v domain.Value
		if err := dec.Decode(&v); err != nil {
			return err
		}
		col, _ := keyTok.(string)
		out = append(out, Filter{Column: col, Operator: "eq", Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

func (f Filter) match(v domain.Value) bool {
	switch f.Operator {
	case "", "eq":
		return !v.IsNull() && v.Compare(f.Value) == 0
	case "ne":
		return v.IsNull() || v.Compare(f.Value) != 0
	case "contains":
		return !v.IsNull() && strings.Contains(strings.ToLower(v.String()), strings.ToLower(f.Value.String()))
	case "in":
		for _, want := range f.Values {
			if !v.IsNull() && v.Compare(want) == 0 {
				return true
			}
		}
		return false
	}

	if v.IsNull() || f.Value.IsNull() {
		return false
	}
	c := v.Compare(f.Value)
	switch f.Operator {
	case "gt":
		return c > 0
	case "gte":
		return c >= 0
	case "lt":
		return c < 0
	case "lte":
		return c <= 0
	}
	return false
}

func applyFilters(ds *domain.Dataset, filters Filters) (*domain.Dataset, error) {
	if len(filters) == 0 {
		return ds, nil
	}
	cols := make([]string, len(filters))
	for i, f := range filters {
		cols[i] = f.Column
	}
	if err := missing(ds, cols...); err != nil {
		return nil, err
	}
	data := make([][]domain.Value, len(filters))
	for i, f := range filters {
		data[i] = ds.Column(f.Column)
	}
	return ds.Filter(func(r int) bool {
		for i, f := range filters {
			if !f.match(data[i][r]) {
				return false
			}
		}
		return true
	}), nil
}

// SortKey orders result rows by one column. Ascending defaults to true.
type SortKey struct {
	Column    string `json:"column" validate:"required"`
	Ascending *bool  `json:"ascending,omitempty"`
}

func (k SortKey) ascending() bool { return k.Ascending == nil || *k.Ascending }

// SortKeys also decodes bare column names and a single key object
type SortKeys []SortKey

// UnmarshalJSON implements json.Unmarshaler
func (s *SortKeys) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var col string
		if err := json.Unmarshal(data, &col); err != nil {
			return err
		}
		*s = SortKeys{{Column: col}}
		return nil
	case len(data) > 0 && data[0] == '{':
		var k SortKey
		if err := json.Unmarshal(data, &k); err != nil {
			return err
		}
		*s = SortKeys{k}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(SortKeys, 0, len(raw))
	for _, item := range raw {
		var col string
		if err := json.Unmarshal(item, &col); err == nil {
			out = append(out, SortKey{Column: col})
			continue
		}
		var k SortKey
		if err := json.Unmarshal(item, &k); err != nil {
			return err
		}
		out = append(out, k)
	}
	*s = out
	return nil
}

// sortRows orders rows stably by keys. Nulls sort last in either direction.
func sortRows(ds *domain.Dataset, keys SortKeys) (*domain.Dataset, error) {
	if len(keys) == 0 {
		return ds, nil
	}
	cols := make([]string, len(keys))
	for i, k := range keys {
		cols[i] = k.Column
	}
	if err := missing(ds, cols...); err != nil {
		return nil, err
	}

	data := make([][]domain.Value, len(keys))
	for i, k := range keys {
		data[i] = ds.Column(k.Column)
	}
	order := make([]int, ds.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := order[a], order[b]
		for i, k := range keys {
			va, vb := data[i][ra], data[i][rb]
			if va.IsNull() || vb.IsNull() {
				if va.IsNull() == vb.IsNull() {
					continue
				}
				return vb.IsNull()
			}
			c := va.Compare(vb)
			if c == 0 {
				continue
			}
			if k.ascending() {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return ds.Take(order), nil
}
