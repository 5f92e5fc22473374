package operations

import (
	"log/slog"
	"sync"
	"time"

	"github.com/San-2310/hsbc-hack/pkg/contracts/events"
)

// StatusBroadcaster pushes job snapshots to websocket clients. Updates are
// processed one at a time so clients see them in the order they happened.
type StatusBroadcaster struct {
	hub     WebSocketHub
	logger  *slog.Logger
	updates chan updateRequest
	stop    chan struct{}
	once    sync.Once
	onEvent func(Job)
}

type updateRequest struct {
	job  Job
	done chan struct{}
}

// NewStatusBroadcaster creates a new status broadcaster
func NewStatusBroadcaster(hub WebSocketHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	sb := &StatusBroadcaster{
		hub:     hub,
		logger:  logger.With(slog.String("component", "status_broadcaster")),
		updates: make(chan updateRequest, 100),
		stop:    make(chan struct{}),
	}
	go sb.processUpdates()
	return sb
}

// OnTerminal registers a callback run after a job reaches a final state
func (sb *StatusBroadcaster) OnTerminal(fn func(Job)) {
	sb.onEvent = fn
}

// JobUpdated implements Notifier. It returns once the snapshot is sent.
func (sb *StatusBroadcaster) JobUpdated(job Job) {
	req := updateRequest{job: job, done: make(chan struct{})}
	select {
	case sb.updates <- req:
	case <-sb.stop:
		return
	}
	select {
	case <-req.done:
	case <-sb.stop:
	}
}

// processUpdates handles all updates sequentially to avoid race conditions
func (sb *StatusBroadcaster) processUpdates() {
	for {
		select {
		case <-sb.stop:
			return
		case req := <-sb.updates:
			sb.broadcast(req.job)
			if req.job.Status.Terminal() && sb.onEvent != nil {
				sb.onEvent(req.job)
			}
			close(req.done)
		}
	}
}

// Snapshot converts a job to the websocket payload
func Snapshot(job Job) events.JobSnapshot {
	return events.JobSnapshot{
		JobID:       job.ID,
		Kind:        job.Kind,
		DatasetID:   job.DatasetID,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Message:     job.Message,
		Error:       job.Error,
		StartedAt:   job.StartedAt,
		UpdatedAt:   time.Now().UTC(),
		CompletedAt: job.CompletedAt,
		Metadata:    job.Result,
	}
}

// broadcast sends the snapshot to all connected clients
func (sb *StatusBroadcaster) broadcast(job Job) {
	if sb.hub == nil {
		sb.logger.Warn("no websocket hub configured for status broadcast")
		return
	}
	sb.logger.Debug("broadcasting job snapshot",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
		slog.Float64("progress", job.Progress))
	sb.hub.Broadcast(string(events.MessageTypeJobSnapshot), Snapshot(job))
}

// Stop ends the update processor
func (sb *StatusBroadcaster) Stop() {
	sb.once.Do(func() { close(sb.stop) })
}
