package aggregation

import (
	"strings"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// pivot builds one row per index tuple and one column per value column and
// distinct columns-axis tuple. Cells with no rows, or whose function yields
// null, take the fill value.
func pivot(ds *domain.Dataset, cfg Config) (*domain.Dataset, error) {
	all := append(append(append([]string(nil), cfg.Index...), cfg.Columns...), cfg.Values...)
	if err := missing(ds, all...); err != nil {
		return nil, err
	}

	fn := cfg.AggFunc
	if fn == "" {
		fn = FuncSum
	}
	fill := domain.Number(0)
	if cfg.FillValue != nil {
		fill = *cfg.FillValue
	}

	rowGroups := partition(ds, cfg.Index)
	var axis []*group
	if len(cfg.Columns) > 0 {
		axis = partition(ds, cfg.Columns)
	}

	axisOf := make(map[int]int, ds.Len())
	labels := make([]string, len(axis))
	for a, g := range axis {
		parts := make([]string, len(g.keys))
		for i, k := range g.keys {
			parts[i] = k.String()
		}
		labels[a] = strings.Join(parts, "_")
		for _, r := range g.rows {
			axisOf[r] = a
		}
	}

	columns := append([]string(nil), cfg.Index...)
	for _, v := range cfg.Values {
		if len(cfg.Columns) == 0 {
			columns = append(columns, v)
			continue
		}
		for _, l := range labels {
			columns = append(columns, v+"_"+l)
		}
	}

	valueData := make([][]domain.Value, len(cfg.Values))
	for i, v := range cfg.Values {
		valueData[i] = ds.Column(v)
	}

	rows := make([][]domain.Value, 0, len(rowGroups))
	for _, g := range rowGroups {
		row := make([]domain.Value, 0, len(columns))
		row = append(row, g.keys...)

		if len(cfg.Columns) == 0 {
			for i := range cfg.Values {
				row = append(row, orFill(Reduce(fn, pick(valueData[i], g.rows)), fill))
			}
			rows = append(rows, row)
			continue
		}

		cells := make([][]int, len(axis))
		for _, r := range g.rows {
			if a, ok := axisOf[r]; ok {
				cells[a] = append(cells[a], r)
			}
		}
		for i := range cfg.Values {
			for a := range axis {
				if len(cells[a]) == 0 {
					row = append(row, fill)
					continue
				}
				row = append(row, orFill(Reduce(fn, pick(valueData[i], cells[a])), fill))
			}
		}
		rows = append(rows, row)
	}
	return domain.NewDataset(columns, rows)
}

func orFill(v, fill domain.Value) domain.Value {
	if v.IsNull() {
		return fill
	}
	return v
}
