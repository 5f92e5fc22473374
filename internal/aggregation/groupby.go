package aggregation

import (
	"sort"
	"strings"

	"github.com/San-2310/hsbc-hack/internal/dataprocessing"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// group is one distinct key tuple and the rows that carry it
type group struct {
	keys []domain.Value
	rows []int
}

// partition splits the rows of ds by the values of keyCols. Rows with a
// null in any key column belong to no group. Groups come back sorted by key.
func partition(ds *domain.Dataset, keyCols []string) []*group {
	idx := make([]int, len(keyCols))
	for i, c := range keyCols {
		idx[i], _ = ds.ColumnIndex(c)
	}

	byKey := make(map[string]*group)
	var groups []*group
	var sb strings.Builder
rows:
	for r := 0; r < ds.Len(); r++ {
		sb.Reset()
		keys := make([]domain.Value, len(idx))
		for i, j := range idx {
			v := ds.At(r, j)
			if v.IsNull() {
				continue rows
			}
			keys[i] = v
			sb.WriteString(v.Key())
			sb.WriteByte(0x1f)
		}
		k := sb.String()
		g, ok := byKey[k]
		if !ok {
			g = &group{keys: keys}
			byKey[k] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return compareKeys(groups[a].keys, groups[b].keys) < 0
	})
	return groups
}

func compareKeys(a, b []domain.Value) int {
	for i := range a {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func pick(values []domain.Value, rows []int) []domain.Value {
	out := make([]domain.Value, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}

// outputSpec is one generated column of a group_by result
type outputSpec struct {
	column string
	fn     string
}

func (s outputSpec) name() string { return s.column + "_" + s.fn }

// groupBySpecs resolves which value columns are aggregated and how.
// value_columns wins when set; otherwise the aggregations keys are used;
// with neither, every numeric non-key column is summed.
func groupBySpecs(ds *domain.Dataset, cfg Config) []outputSpec {
	valueCols := []string(cfg.ValueColumns)
	if len(valueCols) == 0 {
		valueCols = cfg.Aggregations.Columns()
	}
	if len(valueCols) == 0 {
		keys := make(map[string]bool, len(cfg.GroupBy))
		for _, k := range cfg.GroupBy {
			keys[k] = true
		}
		for _, c := range ds.Columns() {
			if !keys[c] && dataprocessing.DetectType(ds.Column(c)) == domain.TypeNumeric {
				valueCols = append(valueCols, c)
			}
		}
	}

	var specs []outputSpec
	seen := make(map[string]bool)
	for _, col := range valueCols {
		funcs, ok := cfg.Aggregations.Lookup(col)
		if !ok || len(funcs) == 0 {
			funcs = []string{FuncSum}
		}
		for _, fn := range funcs {
			s := outputSpec{column: col, fn: fn}
			if seen[s.name()] {
				continue
			}
			seen[s.name()] = true
			specs = append(specs, s)
		}
	}
	return specs
}

func groupBy(ds *domain.Dataset, cfg Config) (*domain.Dataset, error) {
	specs := groupBySpecs(ds, cfg)
	needed := append([]string(nil), cfg.GroupBy...)
	for _, s := range specs {
		needed = append(needed, s.column)
	}
	if err := missing(ds, needed...); err != nil {
		return nil, err
	}

	columns := append([]string(nil), cfg.GroupBy...)
	for _, s := range specs {
		columns = append(columns, s.name())
	}

	valueData := make(map[string][]domain.Value, len(specs))
	for _, s := range specs {
		if _, ok := valueData[s.column]; !ok {
			valueData[s.column] = ds.Column(s.column)
		}
	}

	groups := partition(ds, cfg.GroupBy)
	rows := make([][]domain.Value, 0, len(groups))
	for _, g := range groups {
		row := make([]domain.Value, 0, len(columns))
		row = append(row, g.keys...)
		for _, s := range specs {
			row = append(row, Reduce(s.fn, pick(valueData[s.column], g.rows)))
		}
		rows = append(rows, row)
	}
	return domain.NewDataset(columns, rows)
}
