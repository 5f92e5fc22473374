package operations

import (
	"context"
)

// Handler executes one job. The returned map is stored as the job result.
type Handler func(ctx context.Context, job Job, progress ProgressFunc) (map[string]interface{}, error)

// ProgressFunc reports progress between 0 and 100
type ProgressFunc func(percent float64, message string)

// Notifier is told about every job state change
type Notifier interface {
	JobUpdated(job Job)
}

// WebSocketHub sends messages to connected clients
type WebSocketHub interface {
	Broadcast(eventType string, data interface{})
}

// JobStore persists jobs
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	ListJobs(filter JobFilter) ([]*Job, error)
	DeleteJob(id string) error
}
