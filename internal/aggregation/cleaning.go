package aggregation

import (
	"sort"

	"github.com/San-2310/hsbc-hack/internal/dataprocessing"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// Missing value strategies
const (
	MissingDrop     = "drop"
	MissingFillMean = "fill_mean"
	MissingFillMode = "fill_mode"
)

// Outlier strategies
const (
	OutliersKeep   = "keep"
	OutliersRemove = "remove"
)

// CleaningRules prepares the input before aggregating. MissingValues
// defaults to drop and Outliers to keep.
type CleaningRules struct {
	MissingValues string     `json:"missing_values,omitempty" validate:"omitempty,oneof=drop fill_mean fill_mode"`
	Outliers      string     `json:"outliers,omitempty" validate:"omitempty,oneof=keep remove"`
	DateColumns   StringList `json:"date_columns,omitempty"`
}

func clean(ds *domain.Dataset, rules CleaningRules) *domain.Dataset {
	numeric := numericColumns(ds)

	switch rules.MissingValues {
	case "", MissingDrop:
		ds = dropIncomplete(ds)
	case MissingFillMean:
		for _, c := range numeric {
			ds = fillMean(ds, c)
		}
	case MissingFillMode:
		isNumeric := make(map[string]bool, len(numeric))
		for _, c := range numeric {
			isNumeric[c] = true
		}
		for _, c := range ds.Columns() {
			if !isNumeric[c] {
				ds = fillMode(ds, c)
			}
		}
	}

	if rules.Outliers == OutliersRemove {
		for _, c := range numeric {
			ds = removeOutliers(ds, c)
		}
	}

	for _, c := range rules.DateColumns {
		if !ds.HasColumn(c) {
			continue
		}
		ds, _ = ds.MapColumn(c, func(v domain.Value) domain.Value {
			if t, ok := dataprocessing.TimeOf(v); ok {
				return domain.Timestamp(t)
			}
			return domain.Null()
		})
	}
	return ds
}

func numericColumns(ds *domain.Dataset) []string {
	var cols []string
	for _, c := range ds.Columns() {
		if dataprocessing.DetectType(ds.Column(c)) == domain.TypeNumeric {
			cols = append(cols, c)
		}
	}
	return cols
}

func dropIncomplete(ds *domain.Dataset) *domain.Dataset {
	return ds.Filter(func(i int) bool {
		for _, v := range ds.Row(i) {
			if v.IsNull() {
				return false
			}
		}
		return true
	})
}

func fillMean(ds *domain.Dataset, col string) *domain.Dataset {
	fs := numbers(ds.Column(col))
	if len(fs) == 0 {
		return ds
	}
	mean := domain.Number(Mean(fs))
	out, _ := ds.MapColumn(col, func(v domain.Value) domain.Value {
		if v.IsNull() {
			return mean
		}
		return v
	})
	return out
}

// fillMode fills nulls with the most frequent value; ties go to the
// smallest value.
func fillMode(ds *domain.Dataset, col string) *domain.Dataset {
	counts := make(map[string]int)
	values := make(map[string]domain.Value)
	for _, v := range ds.Column(col) {
		if v.IsNull() {
			continue
		}
		counts[v.Key()]++
		values[v.Key()] = v
	}
	if len(counts) == 0 {
		return ds
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if counts[keys[a]] != counts[keys[b]] {
			return counts[keys[a]] > counts[keys[b]]
		}
		return values[keys[a]].Compare(values[keys[b]]) < 0
	})
	mode := values[keys[0]]
	out, _ := ds.MapColumn(col, func(v domain.Value) domain.Value {
		if v.IsNull() {
			return mode
		}
		return v
	})
	return out
}

// removeOutliers drops rows whose value lies outside the 1.5*IQR fences.
// Rows with no numeric value in col are kept.
func removeOutliers(ds *domain.Dataset, col string) *domain.Dataset {
	values := ds.Column(col)
	fs := numbers(values)
	if len(fs) == 0 {
		return ds
	}
	lower, upper := IQRBounds(fs)
	return ds.Filter(func(i int) bool {
		f, ok := values[i].Float()
		return !ok || (f >= lower && f <= upper)
	})
}
