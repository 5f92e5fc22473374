package aggregation

import (
	"fmt"
	"time"

	"github.com/San-2310/hsbc-hack/internal/dataprocessing"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// Frequency is a time series bucket width
type Frequency string

const (
	FreqDaily        Frequency = "D"
	FreqWeekly       Frequency = "W"
	FreqMonthly      Frequency = "M"
	FreqQuarterly    Frequency = "Q"
	FreqYearly       Frequency = "Y"
	FreqMonthStart   Frequency = "MS"
	FreqQuarterStart Frequency = "QS"
	FreqYearStart    Frequency = "YS"
)

const maxBuckets = 100_000

// periodStart returns the first day of the period containing t
func (f Frequency) periodStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch f {
	case FreqWeekly:
		// weeks run Monday through Sunday
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case FreqMonthly, FreqMonthStart:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	case FreqQuarterly, FreqQuarterStart:
		m := (int(day.Month())-1)/3*3 + 1
		return time.Date(day.Year(), time.Month(m), 1, 0, 0, 0, 0, time.UTC)
	case FreqYearly, FreqYearStart:
		return time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

func (f Frequency) next(start time.Time) time.Time {
	switch f {
	case FreqWeekly:
		return start.AddDate(0, 0, 7)
	case FreqMonthly, FreqMonthStart:
		return start.AddDate(0, 1, 0)
	case FreqQuarterly, FreqQuarterStart:
		return start.AddDate(0, 3, 0)
	case FreqYearly, FreqYearStart:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// label is the date a bucket is reported under. W, M, Q and Y buckets are
// labeled by their last day; the start variants by their first.
func (f Frequency) label(start time.Time) time.Time {
	switch f {
	case FreqWeekly, FreqMonthly, FreqQuarterly, FreqYearly:
		return f.next(start).AddDate(0, 0, -1)
	default:
		return start
	}
}

// timeSeries resamples value_column (and any additional columns present)
// by date_column. Rows whose date does not parse are dropped. Every period
// between the first and last date is emitted, empty ones included.
func timeSeries(ds *domain.Dataset, cfg Config) (*domain.Dataset, error) {
	if err := missing(ds, cfg.DateColumn, cfg.ValueColumn); err != nil {
		return nil, err
	}

	freq := cfg.Frequency
	if freq == "" {
		freq = FreqDaily
	}
	fn := cfg.Aggregation
	if fn == "" {
		fn = FuncSum
	}

	valueCols := []string{cfg.ValueColumn}
	for _, c := range cfg.AdditionalColumns {
		if ds.HasColumn(c) && c != cfg.ValueColumn {
			valueCols = append(valueCols, c)
		}
	}

	dates := ds.Column(cfg.DateColumn)
	starts := make([]time.Time, len(dates))
	valid := make([]bool, len(dates))
	var first, last time.Time
	seen := false
	for i, v := range dates {
		t, ok := dataprocessing.TimeOf(v)
		if !ok {
			continue
		}
		s := freq.periodStart(t)
		starts[i], valid[i] = s, true
		if !seen || s.Before(first) {
			first = s
		}
		if !seen || s.After(last) {
			last = s
		}
		seen = true
	}

	columns := []string{cfg.DateColumn}
	for _, c := range valueCols {
		columns = append(columns, c+"_"+fn)
	}
	if !seen {
		return domain.Empty(columns...), nil
	}

	var buckets []time.Time
	index := make(map[time.Time]int)
	for s := first; !s.After(last); s = freq.next(s) {
		if len(buckets) >= maxBuckets {
			return nil, fmt.Errorf("%w: more than %d at frequency %s", ErrTooManyBuckets, maxBuckets, freq)
		}
		index[s] = len(buckets)
		buckets = append(buckets, s)
	}

	members := make([][]int, len(buckets))
	for i := range dates {
		if valid[i] {
			b := index[starts[i]]
			members[b] = append(members[b], i)
		}
	}

	data := make([][]domain.Value, len(valueCols))
	for i, c := range valueCols {
		data[i] = ds.Column(c)
	}

	rows := make([][]domain.Value, len(buckets))
	for b, s := range buckets {
		row := make([]domain.Value, 0, len(columns))
		row = append(row, domain.Timestamp(freq.label(s)))
		for i := range valueCols {
			row = append(row, Reduce(fn, pick(data[i], members[b])))
		}
		rows[b] = row
	}
	return domain.NewDataset(columns, rows)
}
