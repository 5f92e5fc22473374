package aggregation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// ValidationError collects every problem found in a config
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return "Invalid aggregation configuration: " + strings.Join(e.Errors, "; ")
}

// ColumnNotFoundError names columns a config references but the dataset lacks
type ColumnNotFoundError struct {
	Columns []string
}

func (e *ColumnNotFoundError) Error() string {
	quoted := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		quoted[i] = "'" + c + "'"
	}
	return fmt.Sprintf("Columns not found: [%s]", strings.Join(quoted, ", "))
}

// UnsupportedOperationError names an aggregation kind, function or preset
// this package does not implement
type UnsupportedOperationError struct {
	Kind string
	Name string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("Unsupported %s '%s'", e.Kind, e.Name)
}

func missing(ds *domain.Dataset, cols ...string) error {
	if m := ds.MissingColumns(cols...); len(m) > 0 {
		return &ColumnNotFoundError{Columns: m}
	}
	return nil
}

// ErrTooManyBuckets is returned when a time series span would produce an
// unreasonable number of periods
var ErrTooManyBuckets = errors.New("time series span produces too many periods")

// ErrorID stamps a failure for correlation with logs
func ErrorID(now time.Time) string {
	return "AGG_" + now.Format("20060102_150405")
}

// Failure converts an Aggregate error to its structured result form
func Failure(err error, now time.Time) domain.AggregationFailure {
	f := domain.AggregationFailure{
		Success: false,
		Error:   err.Error(),
		ErrorID: ErrorID(now),
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		f.Error = "Invalid aggregation configuration"
		f.Errors = ve.Errors
		f.Warnings = ve.Warnings
	}
	return f
}
