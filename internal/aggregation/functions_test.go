package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, Percentile(sorted, 0))
	assert.Equal(t, 2.5, Percentile(sorted, 0.5))
	assert.Equal(t, 4.0, Percentile(sorted, 1))
	assert.Equal(t, 1.75, Percentile(sorted, 0.25))
	assert.Equal(t, 0.0, Percentile(nil, 0.5))
}

func TestReduce(t *testing.T) {
	values := []domain.Value{
		domain.Null(), domain.Text("b"), domain.Text("a"), domain.Text("b"), domain.Null(),
	}
	tests := []struct {
		fn   string
		want domain.Value
	}{
		{FuncCount, domain.Number(3)},
		{FuncUniqueCount, domain.Number(2)},
		{FuncFirst, domain.Text("b")},
		{FuncLast, domain.Text("b")},
		{FuncMin, domain.Text("a")},
		{FuncMax, domain.Text("b")},
		{FuncSum, domain.Number(0)},
		{FuncMean, domain.Null()},
		{"mode", domain.Null()},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduce(tt.fn, values))
		})
	}
}

func TestReduceNumericText(t *testing.T) {
	values := []domain.Value{domain.Text("9"), domain.Text("10"), domain.Number(2.5)}
	assert.Equal(t, domain.Number(10), Reduce(FuncMax, values))
	assert.Equal(t, domain.Number(2.5), Reduce(FuncMin, values))
	assert.Equal(t, domain.Number(21.5), Reduce(FuncSum, values))
	assert.Equal(t, domain.Number(9), Reduce(FuncMedian, values))
}

func TestDecimalSumAvoidsDrift(t *testing.T) {
	assert.Equal(t, "0.3", DecimalSum([]float64{0.1, 0.2}).String())
	assert.Equal(t, domain.Number(0.3), Reduce(FuncSum, []domain.Value{domain.Number(0.1), domain.Number(0.2)}))
}

func TestVarianceIsSampleVariance(t *testing.T) {
	assert.Equal(t, 2.5, Variance([]float64{1, 2, 3, 4, 5}))
	assert.Equal(t, 0.0, Variance([]float64{7}))
}
