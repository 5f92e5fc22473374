package aggregation

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// Function names accepted in aggregations, aggfunc and aggregation
const (
	FuncSum         = "sum"
	FuncMean        = "mean"
	FuncAverage     = "average"
	FuncMedian      = "median"
	FuncMin         = "min"
	FuncMax         = "max"
	FuncCount       = "count"
	FuncStd         = "std"
	FuncVar         = "var"
	FuncFirst       = "first"
	FuncLast        = "last"
	FuncUniqueCount = "unique_count"
)

// reducer folds the values of one group into a single cell
type reducer func(values []domain.Value) domain.Value

var reducers = map[string]reducer{
	FuncSum:         reduceSum,
	FuncMean:        reduceMean,
	FuncAverage:     reduceMean,
	FuncMedian:      reduceMedian,
	FuncMin:         func(vs []domain.Value) domain.Value { return reduceExtreme(vs, -1) },
	FuncMax:         func(vs []domain.Value) domain.Value { return reduceExtreme(vs, 1) },
	FuncCount:       reduceCount,
	FuncStd:         reduceStd,
	FuncVar:         reduceVar,
	FuncFirst:       reduceFirst,
	FuncLast:        reduceLast,
	FuncUniqueCount: reduceUniqueCount,
}

// Functions lists the supported function names in a stable order
func Functions() []string {
	return []string{
		FuncSum, FuncMean, FuncAverage, FuncMedian, FuncMin, FuncMax,
		FuncCount, FuncStd, FuncVar, FuncFirst, FuncLast, FuncUniqueCount,
	}
}

// IsSupported reports whether name is a known function
func IsSupported(name string) bool {
	_, ok := reducers[name]
	return ok
}

// Reduce applies the named function to values. Unknown names reduce to Null.
func Reduce(name string, values []domain.Value) domain.Value {
	r, ok := reducers[name]
	if !ok {
		return domain.Null()
	}
	return r(values)
}

// numbers returns the numeric reading of every non-null value that has a
// finite one. Infinite readings are skipped like text.
func numbers(values []domain.Value) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := v.Float(); ok && finite(f) {
			out = append(out, f)
		}
	}
	return out
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func reduceSum(values []domain.Value) domain.Value {
	return domain.Number(DecimalSum(numbers(values)).InexactFloat64())
}

// DecimalSum adds floats without accumulating binary rounding error.
// Infinite and NaN inputs have no decimal form and are left out.
func DecimalSum(fs []float64) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fs {
		if !finite(f) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(f))
	}
	return total
}

func reduceMean(values []domain.Value) domain.Value {
	fs := numbers(values)
	if len(fs) == 0 {
		return domain.Null()
	}
	return domain.Number(Mean(fs))
}

func reduceMedian(values []domain.Value) domain.Value {
	fs := numbers(values)
	if len(fs) == 0 {
		return domain.Null()
	}
	sort.Float64s(fs)
	return domain.Number(Percentile(fs, 0.5))
}

// reduceExtreme returns the min (sign -1) or max (sign 1). Numeric
// columns compare as numbers; anything else falls back to value ordering.
func reduceExtreme(values []domain.Value, sign int) domain.Value {
	if allNumeric(values) {
		fs := numbers(values)
		if len(fs) == 0 {
			return domain.Null()
		}
		best := fs[0]
		for _, f := range fs[1:] {
			if (sign > 0 && f > best) || (sign < 0 && f < best) {
				best = f
			}
		}
		return domain.Number(best)
	}
	var best domain.Value
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if best.IsNull() || v.Compare(best)*sign > 0 {
			best = v
		}
	}
	return best
}

func allNumeric(values []domain.Value) bool {
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if _, ok := v.Float(); !ok {
			return false
		}
	}
	return true
}

func reduceCount(values []domain.Value) domain.Value {
	n := 0
	for _, v := range values {
		if !v.IsNull() {
			n++
		}
	}
	return domain.Number(float64(n))
}

func reduceStd(values []domain.Value) domain.Value {
	fs := numbers(values)
	if len(fs) < 2 {
		return domain.Null()
	}
	return domain.Number(math.Sqrt(Variance(fs)))
}

func reduceVar(values []domain.Value) domain.Value {
	fs := numbers(values)
	if len(fs) < 2 {
		return domain.Null()
	}
	return domain.Number(Variance(fs))
}

func reduceFirst(values []domain.Value) domain.Value {
	for _, v := range values {
		if !v.IsNull() {
			return v
		}
	}
	return domain.Null()
}

func reduceLast(values []domain.Value) domain.Value {
	for i := len(values) - 1; i >= 0; i-- {
		if !values[i].IsNull() {
			return values[i]
		}
	}
	return domain.Null()
}

func reduceUniqueCount(values []domain.Value) domain.Value {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if !v.IsNull() {
			seen[v.Key()] = struct{}{}
		}
	}
	return domain.Number(float64(len(seen)))
}

// Mean returns the arithmetic mean, 0 for no values
func Mean(fs []float64) float64 {
	if len(fs) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range fs {
		sum += f
	}
	return sum / float64(len(fs))
}

// Variance returns the sample variance (n-1 denominator)
func Variance(fs []float64) float64 {
	if len(fs) < 2 {
		return 0
	}
	mean := Mean(fs)
	ss := 0.0
	for _, f := range fs {
		d := f - mean
		ss += d * d
	}
	return ss / float64(len(fs)-1)
}

// StdDev returns the sample standard deviation
func StdDev(fs []float64) float64 {
	return math.Sqrt(Variance(fs))
}

// Percentile interpolates linearly between the closest ranks of sorted
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// IQRBounds returns the 1.5*IQR fences of values
func IQRBounds(values []float64) (lower, upper float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := Percentile(sorted, 0.25)
	q3 := Percentile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr
}
