package operations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/San-2310/hsbc-hack/pkg/contracts/events"
)

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []Job
}

func (n *recordingNotifier) JobUpdated(job Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
}

func (n *recordingNotifier) statuses(id string) []JobStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []JobStatus
	for _, j := range n.jobs {
		if j.ID == id && (len(out) == 0 || out[len(out)-1] != j.Status) {
			out = append(out, j.Status)
		}
	}
	return out
}

type recordingHub struct {
	mu       sync.Mutex
	messages []interface{}
	types    []string
}

func (h *recordingHub) Broadcast(eventType string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.types = append(h.types, eventType)
	h.messages = append(h.messages, data)
}

func waitForStatus(t *testing.T, q *JobQueue, id string, want JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = q.GetJob(id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestJobQueueRunsHandler(t *testing.T) {
	notifier := &recordingNotifier{}
	q := NewJobQueue(QueueConfig{Workers: 2}, nil, notifier, nil)
	q.Register("process_upload", func(ctx context.Context, job Job, progress ProgressFunc) (map[string]interface{}, error) {
		progress(50, "parsed")
		progress(150, "clamped")
		return map[string]interface{}{"rows": 3, "file": job.Metadata["file"]}, nil
	})
	q.Start(context.Background())
	defer q.Stop(time.Second)

	require.NoError(t, q.Enqueue(&Job{ID: "job-1", Kind: "process_upload", Metadata: map[string]interface{}{"file": "a.csv"}}))

	job := waitForStatus(t, q, "job-1", JobStatusCompleted)
	assert.Equal(t, float64(100), job.Progress)
	assert.Equal(t, map[string]interface{}{"rows": 3, "file": "a.csv"}, job.Result)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)

	assert.Equal(t, []JobStatus{JobStatusPending, JobStatusRunning, JobStatusCompleted}, notifier.statuses("job-1"))
}

func TestJobQueueFailures(t *testing.T) {
	q := NewJobQueue(QueueConfig{Workers: 1}, nil, nil, nil)
	q.Register("boom", func(context.Context, Job, ProgressFunc) (map[string]interface{}, error) {
		return nil, errors.New("bad file")
	})
	q.Register("panic", func(context.Context, Job, ProgressFunc) (map[string]interface{}, error) {
		panic("nil dataset")
	})
	q.Start(context.Background())
	defer q.Stop(time.Second)

	require.NoError(t, q.Enqueue(&Job{ID: "a", Kind: "boom"}))
	require.NoError(t, q.Enqueue(&Job{ID: "b", Kind: "panic"}))

	assert.Equal(t, "bad file", waitForStatus(t, q, "a", JobStatusFailed).Error)
	assert.Contains(t, waitForStatus(t, q, "b", JobStatusFailed).Error, "panicked: nil dataset")

	err := q.Enqueue(&Job{ID: "c", Kind: "unknown"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestJobQueueCancel(t *testing.T) {
	started := make(chan struct{})
	q := NewJobQueue(QueueConfig{Workers: 1, QueueSize: 4}, nil, nil, nil)
	q.Register("slow", func(ctx context.Context, job Job, _ ProgressFunc) (map[string]interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	q.Register("noop", func(context.Context, Job, ProgressFunc) (map[string]interface{}, error) {
		return nil, nil
	})
	q.Start(context.Background())
	defer q.Stop(time.Second)

	require.NoError(t, q.Enqueue(&Job{ID: "running", Kind: "slow"}))
	<-started
	// the single worker is busy, so this one waits in the channel
	require.NoError(t, q.Enqueue(&Job{ID: "pending", Kind: "noop"}))
	require.NoError(t, q.CancelJob("pending"))

	require.NoError(t, q.CancelJob("running"))
	waitForStatus(t, q, "running", JobStatusCancelled)

	// the cancelled pending job is skipped by the worker
	time.Sleep(20 * time.Millisecond)
	job, err := q.GetJob("pending")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, job.Status)

	assert.ErrorIs(t, q.CancelJob("running"), ErrNotCancellable)
	assert.ErrorIs(t, q.CancelJob("missing"), ErrJobNotFound)
}

func TestJobQueueFullAndStopped(t *testing.T) {
	q := NewJobQueue(QueueConfig{Workers: 1, QueueSize: 1}, nil, nil, nil)
	q.Register("noop", func(context.Context, Job, ProgressFunc) (map[string]interface{}, error) { return nil, nil })

	// not started, so the buffer fills up
	require.NoError(t, q.Enqueue(&Job{ID: "1", Kind: "noop"}))
	assert.ErrorIs(t, q.Enqueue(&Job{ID: "2", Kind: "noop"}), ErrQueueFull)

	job, err := q.GetJob("2")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, job.Status)

	require.NoError(t, q.Stop(time.Second))
	assert.ErrorIs(t, q.Enqueue(&Job{ID: "3", Kind: "noop"}), ErrQueueStopped)
	assert.Equal(t, 1, q.GetQueueStats()["queue_size"])
}

func TestJobQueueCleanup(t *testing.T) {
	store := NewMemoryJobStore()
	q := NewJobQueue(QueueConfig{}, store, nil, nil)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.CreateJob(&Job{ID: "old", Status: JobStatusCompleted, CompletedAt: &old}))
	require.NoError(t, store.CreateJob(&Job{ID: "running", Status: JobStatusRunning}))

	assert.Equal(t, 1, q.Cleanup(time.Hour))
	_, err := store.GetJob("old")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Equal(t, map[JobStatus]int{JobStatusRunning: 1}, store.GetStats())
}

func TestMemoryJobStoreListing(t *testing.T) {
	store := NewMemoryJobStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateJob(&Job{
			ID: id, Kind: "process_upload", DatasetID: "ds", Status: JobStatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.CreateJob(&Job{ID: "d", Kind: "other", Status: JobStatusFailed, CreatedAt: base}))
	assert.Error(t, store.CreateJob(&Job{ID: "a"}))

	jobs, err := store.ListJobs(JobFilter{Kind: "process_upload", Limit: 2})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].ID)
	assert.Equal(t, "b", jobs[1].ID)

	jobs, err = store.ListJobs(JobFilter{Status: JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	// returned jobs are copies
	jobs[0].Status = JobStatusCompleted
	got, err := store.GetJob("d")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
}

func TestStatusBroadcasterOrdersSnapshots(t *testing.T) {
	hub := &recordingHub{}
	sb := NewStatusBroadcaster(hub, nil)
	defer sb.Stop()

	var terminal []string
	sb.OnTerminal(func(job Job) { terminal = append(terminal, job.ID) })

	sb.JobUpdated(Job{ID: "j", Status: JobStatusRunning, Progress: 10})
	sb.JobUpdated(Job{ID: "j", Status: JobStatusCompleted, Progress: 100, Result: map[string]interface{}{"rows": 2}})

	require.Len(t, hub.messages, 2)
	assert.Equal(t, []string{"job:snapshot", "job:snapshot"}, hub.types)
	last := hub.messages[1].(events.JobSnapshot)
	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, map[string]any{"rows": 2}, last.Metadata)
	assert.Equal(t, []string{"j"}, terminal)
}
