package aggregation

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/San-2310/hsbc-hack/internal/dataprocessing"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// summaryColumns is the column order of the summary_stats table
var summaryColumns = []string{
	"column", "count", "mean", "median", "std", "min", "max", "q25", "q75",
	"null_count", "null_percentage",
}

var financialColumns = []string{
	"total", "positive_sum", "negative_sum", "positive_count", "negative_count", "zero_count",
}

// summaryStats describes each requested column. Columns without any
// finite numeric value are left out; the returned warnings name those the
// config listed explicitly. The table has one row per described column.
func summaryStats(ds *domain.Dataset, cfg Config) (map[string]domain.ColumnSummary, *domain.Dataset, []string, error) {
	cols := []string(cfg.Columns)
	if len(cols) == 0 {
		for _, c := range ds.Columns() {
			if dataprocessing.DetectType(ds.Column(c)) == domain.TypeNumeric {
				cols = append(cols, c)
			}
		}
	}
	if err := missing(ds, cols...); err != nil {
		return nil, nil, nil, err
	}

	withFinancial := cfg.includeFinancialMetrics()
	header := append([]string(nil), summaryColumns...)
	if withFinancial {
		header = append(header, financialColumns...)
	}

	summaries := make(map[string]domain.ColumnSummary, len(cols))
	var warnings []string
	b := domain.NewBuilder(header...)
	for _, c := range cols {
		s, ok := summarize(ds.Column(c), withFinancial)
		if !ok {
			if len(cfg.Columns) > 0 {
				warnings = append(warnings, fmt.Sprintf("column '%s' has no numeric values and was skipped", c))
			}
			continue
		}
		summaries[c] = s
		row := []domain.Value{
			domain.Text(c), domain.Number(float64(s.Count)), s.Mean, s.Median, s.Std,
			s.Min, s.Max, s.Q25, s.Q75,
			domain.Number(float64(s.NullCount)), domain.Number(s.NullPercentage),
		}
		if withFinancial {
			fm := s.FinancialMetrics
			row = append(row,
				domain.Number(fm.Total), domain.Number(fm.PositiveSum), domain.Number(fm.NegativeSum),
				domain.Number(float64(fm.PositiveCount)), domain.Number(float64(fm.NegativeCount)),
				domain.Number(float64(fm.ZeroCount)),
			)
		}
		b.Append(row...)
	}
	table, err := b.Build()
	if err != nil {
		return nil, nil, nil, err
	}
	return summaries, table, warnings, nil
}

func summarize(values []domain.Value, withFinancial bool) (domain.ColumnSummary, bool) {
	nulls := 0
	fs := make([]float64, 0, len(values))
	for _, v := range values {
		if v.IsNull() {
			nulls++
			continue
		}
		if f, ok := dataprocessing.NumberOf(v); ok && finite(f) {
			fs = append(fs, f)
		}
	}
	if len(fs) == 0 {
		return domain.ColumnSummary{}, false
	}

	sorted := append([]float64(nil), fs...)
	sort.Float64s(sorted)

	s := domain.ColumnSummary{
		Count:          len(fs),
		Mean:           domain.Number(Mean(fs)),
		Median:         domain.Number(Percentile(sorted, 0.5)),
		Std:            domain.Null(),
		Min:            domain.Number(sorted[0]),
		Max:            domain.Number(sorted[len(sorted)-1]),
		Q25:            domain.Number(Percentile(sorted, 0.25)),
		Q75:            domain.Number(Percentile(sorted, 0.75)),
		NullCount:      nulls,
		NullPercentage: math.Round(float64(nulls)/float64(len(values))*100*100) / 100,
	}
	if len(fs) > 1 {
		s.Std = domain.Number(StdDev(fs))
	}
	if withFinancial {
		s.FinancialMetrics = financialMetrics(fs)
	}
	return s, true
}

// financialMetrics expects finite values only
func financialMetrics(fs []float64) *domain.FinancialMetrics {
	pos, neg := decimal.Zero, decimal.Zero
	m := &domain.FinancialMetrics{}
	for _, f := range fs {
		d := decimal.NewFromFloat(f)
		switch d.Sign() {
		case 1:
			pos = pos.Add(d)
			m.PositiveCount++
		case -1:
			neg = neg.Add(d)
			m.NegativeCount++
		default:
			m.ZeroCount++
		}
	}
	m.PositiveSum = pos.InexactFloat64()
	m.NegativeSum = neg.InexactFloat64()
	m.Total = pos.Add(neg).InexactFloat64()
	return m
}
