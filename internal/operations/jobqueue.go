package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/San-2310/hsbc-hack/internal/infrastructure"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job has finished
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents an async job
type Job struct {
	ID          string                 `json:"id"`
	Kind        string                 `json:"kind"`
	DatasetID   string                 `json:"dataset_id,omitempty"`
	Status      JobStatus              `json:"status"`
	Progress    float64                `json:"progress"`
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
}

// clone copies the job and its maps
func (j *Job) clone() *Job {
	c := *j
	c.Metadata = copyMap(j.Metadata)
	c.Result = copyMap(j.Result)
	return &c
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// JobFilter for querying jobs
type JobFilter struct {
	Status    JobStatus
	Kind      string
	DatasetID string
	Since     time.Time
	Limit     int
}

// QueueConfig sizes the worker pool
type QueueConfig struct {
	Workers   int
	QueueSize int
	// Retention is how long finished jobs are kept. Zero keeps them forever.
	Retention time.Duration
}

// JobQueue manages async job execution
type JobQueue struct {
	mu        sync.Mutex
	jobs      chan *Job
	workers   int
	retention time.Duration
	wg        sync.WaitGroup
	store     JobStore
	notifier  Notifier
	handlers  map[string]Handler
	logger    *slog.Logger
	shutdown  chan struct{}
	stopped   bool
	active    map[string]context.CancelFunc // Currently executing jobs
}

// NewJobQueue creates a new job queue
func NewJobQueue(cfg QueueConfig, store JobStore, notifier Notifier, logger *slog.Logger) *JobQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4 // Default number of workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}
	if store == nil {
		store = NewMemoryJobStore()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &JobQueue{
		jobs:      make(chan *Job, cfg.QueueSize),
		workers:   cfg.Workers,
		retention: cfg.Retention,
		store:     store,
		notifier:  notifier,
		handlers:  make(map[string]Handler),
		logger:    logger.With(slog.String("component", "jobqueue")),
		shutdown:  make(chan struct{}),
		active:    make(map[string]context.CancelFunc),
	}
}

// Register installs the handler for a job kind. It must be called before Start.
func (q *JobQueue) Register(kind string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

// Start begins processing jobs
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.Info("starting job queue", slog.Int("workers", q.workers))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	if q.retention > 0 {
		q.wg.Add(1)
		go q.janitor(ctx)
	}
}

// Stop gracefully shuts down the job queue
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	q.mu.Unlock()

	q.logger.Info("stopping job queue")
	close(q.shutdown)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		q.logger.Warn("job queue stop timeout exceeded")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// Enqueue adds a job to the queue. The job's ID and Kind must be set.
func (q *JobQueue) Enqueue(job *Job) error {
	q.mu.Lock()
	stopped := q.stopped
	_, known := q.handlers[job.Kind]
	q.mu.Unlock()
	if stopped {
		return ErrQueueStopped
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind)
	}

	job.Status = JobStatusPending
	job.CreatedAt = time.Now()
	job.Message = "Job queued"
	if err := q.store.CreateJob(job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	q.notify(job)

	select {
	case q.jobs <- job.clone():
		q.logger.Info("job enqueued",
			slog.String("job_id", job.ID),
			slog.String("kind", job.Kind))
		return nil
	default:
		job.Status = JobStatusFailed
		job.Error = ErrQueueFull.Error()
		now := time.Now()
		job.CompletedAt = &now
		q.save(job)
		return ErrQueueFull
	}
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// ListJobs returns jobs matching the filter, newest first
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

// CancelJob cancels a pending or running job
func (q *JobQueue) CancelJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if cancel, ok := q.active[id]; ok {
		cancel()
		return nil
	}

	job, err := q.store.GetJob(id)
	if err != nil {
		return err
	}
	if job.Status != JobStatusPending {
		return fmt.Errorf("%w: %s (status: %s)", ErrNotCancellable, id, job.Status)
	}
	job.Status = JobStatusCancelled
	job.Message = "Job cancelled"
	now := time.Now()
	job.CompletedAt = &now
	q.save(job)
	return nil
}

// worker processes jobs from the queue
func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case job := <-q.jobs:
			q.processJob(ctx, job, logger)
		}
	}
}

// claim marks a queued job running unless it was cancelled while waiting
func (q *JobQueue) claim(ctx context.Context, job *Job) (context.Context, Handler, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, err := q.store.GetJob(job.ID)
	if err != nil || stored.Status != JobStatusPending {
		return nil, nil, false
	}
	jobCtx, cancel := context.WithCancel(ctx)
	q.active[job.ID] = cancel
	return jobCtx, q.handlers[job.Kind], true
}

func (q *JobQueue) release(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cancel, ok := q.active[id]; ok {
		cancel()
		delete(q.active, id)
	}
}

// processJob executes a single job
func (q *JobQueue) processJob(ctx context.Context, job *Job, logger *slog.Logger) {
	if traceID, ok := job.Metadata["trace_id"].(string); ok && traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, traceID)
	}

	jobCtx, handler, ok := q.claim(ctx, job)
	if !ok {
		logger.Info("skipping job that is no longer pending", slog.String("job_id", job.ID))
		return
	}
	defer q.release(job.ID)

	logger = logger.With(
		slog.String("job_id", job.ID),
		slog.String("kind", job.Kind),
	)
	logger.InfoContext(ctx, "processing job started")

	defer func() {
		// Recover from any panics to prevent server crash
		if r := recover(); r != nil {
			logger.Error("job processing panicked", slog.Any("panic", r))
			q.fail(job, fmt.Errorf("job processing panicked: %v", r), logger)
		}
	}()

	job.Status = JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	job.Progress = 0
	job.Message = "Job started"
	q.save(job)

	progress := func(percent float64, message string) {
		if percent < 0 {
			percent = 0
		} else if percent > 100 {
			percent = 100
		}
		job.Progress = percent
		job.Message = message
		q.save(job)
	}

	result, err := handler(jobCtx, *job.clone(), progress)
	if err != nil {
		if errors.Is(err, context.Canceled) && jobCtx.Err() != nil && ctx.Err() == nil {
			q.finish(job, JobStatusCancelled, "Job cancelled", nil)
			logger.Info("job cancelled")
			return
		}
		q.fail(job, err, logger)
		return
	}

	q.finish(job, JobStatusCompleted, "Job completed successfully", result)
	logger.InfoContext(ctx, "processing job completed")
}

func (q *JobQueue) finish(job *Job, status JobStatus, message string, result map[string]interface{}) {
	job.Status = status
	job.Message = message
	if status == JobStatusCompleted {
		job.Progress = 100
	}
	job.Result = result
	completedAt := time.Now()
	job.CompletedAt = &completedAt
	q.save(job)
}

// fail records a job error
func (q *JobQueue) fail(job *Job, err error, logger *slog.Logger) {
	logger.Error("job failed", slog.String("error", err.Error()))

	job.Status = JobStatusFailed
	job.Error = err.Error()
	job.Message = "Job failed"
	completedAt := time.Now()
	job.CompletedAt = &completedAt
	q.save(job)
}

// save stores the job and notifies listeners
func (q *JobQueue) save(job *Job) {
	if err := q.store.UpdateJob(job); err != nil {
		q.logger.Error("failed to update job", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
	q.notify(job)
}

func (q *JobQueue) notify(job *Job) {
	if q.notifier != nil {
		q.notifier.JobUpdated(*job.clone())
	}
}

// janitor removes finished jobs older than the retention period
func (q *JobQueue) janitor(ctx context.Context) {
	defer q.wg.Done()

	interval := q.retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.shutdown:
			return
		case <-ticker.C:
			q.Cleanup(q.retention)
		}
	}
}

// Cleanup deletes finished jobs that completed more than maxAge ago
func (q *JobQueue) Cleanup(maxAge time.Duration) int {
	jobs, err := q.store.ListJobs(JobFilter{})
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, job := range jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			if q.store.DeleteJob(job.ID) == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		q.logger.Info("removed finished jobs", slog.Int("count", removed))
	}
	return removed
}

// GetQueueStats returns queue statistics
func (q *JobQueue) GetQueueStats() map[string]interface{} {
	q.mu.Lock()
	activeCount := len(q.active)
	q.mu.Unlock()

	return map[string]interface{}{
		"workers":     q.workers,
		"queue_size":  len(q.jobs),
		"queue_cap":   cap(q.jobs),
		"active_jobs": activeCount,
	}
}
