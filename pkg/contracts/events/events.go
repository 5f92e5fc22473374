package events

import (
	"time"
)

// Name identifies a domain event
type Name string

const (
	DatasetIngested   Name = "dataset.ingested"
	DatasetNormalized Name = "dataset.normalized"
	RulesChanged      Name = "rules.changed"
	JobCompleted      Name = "job.completed"
)

// Event is published after a state change in the engine. Data carries
// small summaries only, never dataset rows.
type Event struct {
	ID        string         `json:"id"`
	Name      Name           `json:"name"`
	Timestamp time.Time      `json:"timestamp"`
	DatasetID string         `json:"dataset_id,omitempty"`
	JobID     string         `json:"job_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Key returns the partition key for the event. Events for the same dataset
// keep their order.
func (e Event) Key() string {
	if e.DatasetID != "" {
		return e.DatasetID
	}
	return string(e.Name)
}
