package domain

import (
	"encoding/json"
	"time"
)

// AggregationKind discriminates aggregation configs and results
type AggregationKind string

const (
	AggregationGroupBy      AggregationKind = "group_by"
	AggregationPivot        AggregationKind = "pivot"
	AggregationTimeSeries   AggregationKind = "time_series"
	AggregationSummaryStats AggregationKind = "summary_stats"
	AggregationHSBCPattern  AggregationKind = "hsbc_pattern"
)

// AggregationMetadata describes how a result was produced
type AggregationMetadata struct {
	AggregationType     AggregationKind `json:"aggregation_type"`
	TotalInputRows      int             `json:"total_input_rows"`
	TotalOutputRows     int             `json:"total_output_rows"`
	ProcessingTimestamp time.Time       `json:"processing_timestamp"`
	ConfigUsed          json.RawMessage `json:"config_used,omitempty"`
}

// FinancialMetrics is the signed decomposition of a numeric column
type FinancialMetrics struct {
	Total         float64 `json:"total"`
	PositiveSum   float64 `json:"positive_sum"`
	NegativeSum   float64 `json:"negative_sum"`
	PositiveCount int     `json:"positive_count"`
	NegativeCount int     `json:"negative_count"`
	ZeroCount     int     `json:"zero_count"`
}

// ColumnSummary holds descriptive statistics of one column. Statistics
// that cannot be computed are Null.
type ColumnSummary struct {
	Count          int     `json:"count"`
	Mean           Value   `json:"mean"`
	Median         Value   `json:"median"`
	Std            Value   `json:"std"`
	Min            Value   `json:"min"`
	Max            Value   `json:"max"`
	Q25            Value   `json:"q25"`
	Q75            Value   `json:"q75"`
	NullCount      int     `json:"null_count"`
	NullPercentage float64 `json:"null_percentage"`
	*FinancialMetrics
}

// AggregationResult is a self-describing aggregation output
type AggregationResult struct {
	Success  bool                     `json:"success"`
	Type     AggregationKind          `json:"type"`
	Data     *Dataset                 `json:"data,omitempty"`
	Columns  []string                 `json:"columns"`
	Summary  map[string]ColumnSummary `json:"summary,omitempty"`
	Metadata AggregationMetadata      `json:"metadata"`
	Warnings []string                 `json:"warnings,omitempty"`
}

// AggregationFailure is the structured error form of an aggregation
type AggregationFailure struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error"`
	ErrorID  string   `json:"error_id"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// FlagResult reports the rows matched by a flag rule. When Error is set
// the other fields are meaningless.
type FlagResult struct {
	FlagName          string   `json:"flag_name,omitempty"`
	FlaggedCount      int      `json:"flagged_count"`
	TotalCount        int      `json:"total_count"`
	FlaggedPercentage float64  `json:"flagged_percentage"`
	FlaggedRows       *Dataset `json:"flagged_data"`
	Error             string   `json:"error,omitempty"`
}

// Failed reports whether the flag could not be evaluated
func (r FlagResult) Failed() bool { return r.Error != "" }

// MarshalJSON emits only the error for failed results
func (r FlagResult) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	type plain FlagResult
	return json.Marshal(plain(r))
}
