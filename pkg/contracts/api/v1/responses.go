package api

import (
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// StatusSuccess is the status of every successful envelope
const StatusSuccess = "success"

// Response is the envelope of successful responses
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

// Success wraps data in the success envelope
func Success(data interface{}) Response {
	return Response{Status: StatusSuccess, Data: data}
}

// DatasetListResponse lists stored datasets
type DatasetListResponse struct {
	Datasets []domain.DatasetInfo `json:"datasets"`
	Total    int                  `json:"total"`
}

// PreviewResponse holds the first rows of a dataset
type PreviewResponse struct {
	DatasetID string          `json:"dataset_id"`
	Columns   []string        `json:"columns"`
	Rows      int             `json:"rows"`
	Records   *domain.Dataset `json:"records"`
}

// IngestResponse reports the datasets created by an ingest request
type IngestResponse struct {
	Datasets []domain.DatasetInfo `json:"datasets"`
}

// RuleResponse is one stored rule
type RuleResponse struct {
	Kind string      `json:"kind"`
	Name string      `json:"name"`
	Rule domain.Rule `json:"rule"`
}

// ImportResponse reports how many rules an import stored
type ImportResponse struct {
	Imported int `json:"imported"`
}

// AggregationOutcome is the wire form of one stored aggregation rule run
type AggregationOutcome struct {
	Result  *domain.AggregationResult  `json:"result,omitempty"`
	Failure *domain.AggregationFailure `json:"failure,omitempty"`
}

// ApplyRulesResponse reports a rule application
type ApplyRulesResponse struct {
	Kind         string                             `json:"kind"`
	Applied      []string                           `json:"applied"`
	Dataset      *domain.DatasetInfo                `json:"dataset,omitempty"`
	Log          domain.NormalizationLog            `json:"log,omitempty"`
	Aggregations map[string]AggregationOutcome      `json:"aggregations,omitempty"`
	Flags        map[string]domain.FlagResult       `json:"flags,omitempty"`
	Validations  map[string]domain.ValidationReport `json:"validations,omitempty"`
}
