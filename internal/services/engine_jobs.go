package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/San-2310/hsbc-hack/internal/infrastructure"
	"github.com/San-2310/hsbc-hack/internal/ingestion"
	"github.com/San-2310/hsbc-hack/internal/operations"
)

// JobKindProcessUpload ingests a stored upload into a dataset
const JobKindProcessUpload = "process_upload"

// JobRunner is the subset of the job queue the engine uses
type JobRunner interface {
	Register(kind string, h operations.Handler)
	Enqueue(job *operations.Job) error
	GetJob(id string) (*operations.Job, error)
	ListJobs(filter operations.JobFilter) ([]*operations.Job, error)
	CancelJob(id string) error
}

// Upload stores an uploaded file and queues a job that ingests it. The
// file extension must name a supported format.
func (s *EngineService) Upload(ctx context.Context, filename string, r io.Reader) (*operations.Job, error) {
	if s.uploads == nil {
		return nil, ErrUploadsDisabled
	}
	if s.jobs == nil {
		return nil, ErrJobsDisabled
	}
	if _, err := ingestion.FormatFromName(filename); err != nil {
		return nil, err
	}

	stored, err := s.uploads.Save(ctx, filename, r)
	if err != nil {
		return nil, err
	}

	ctx = infrastructure.EnsureTraceID(ctx)
	job := &operations.Job{
		ID:   uuid.New().String(),
		Kind: JobKindProcessUpload,
		Metadata: map[string]interface{}{
			"file":     stored.Name,
			"filename": stored.Original,
			"size":     stored.Size,
			"trace_id": infrastructure.GetTraceID(ctx),
		},
	}
	if err := s.jobs.Enqueue(job); err != nil {
		_ = s.uploads.Remove(stored.Name)
		return nil, err
	}

	s.logger.InfoContext(ctx, "upload queued",
		slog.String("job_id", job.ID),
		slog.String("file", stored.Name),
		slog.Int64("size_bytes", stored.Size))
	return job, nil
}

// processUpload is the job handler for JobKindProcessUpload
func (s *EngineService) processUpload(ctx context.Context, job operations.Job, progress operations.ProgressFunc) (map[string]interface{}, error) {
	name, _ := job.Metadata["file"].(string)
	original, _ := job.Metadata["filename"].(string)
	if name == "" {
		return nil, fmt.Errorf("%w: job has no file", ErrInvalidInput)
	}

	progress(10, "Reading "+original)
	f, err := s.uploads.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress(30, "Parsing "+original)
	info, err := s.Ingest(ctx, ingestion.FileSource{Reader: f, Filename: original})
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"dataset_id": info.ID,
		"rows":       info.Rows,
		"columns":    info.Columns,
	}

	if s.cfg.NormalizeUploads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(70, "Normalizing")
		normalized, err := s.NormalizeDefault(ctx, info.ID)
		if err != nil {
			return nil, err
		}
		result["normalized_dataset_id"] = normalized.Dataset.ID
		result["normalization_log"] = []string(normalized.Log)
	}

	progress(95, "Profiling")
	schema, err := s.DetectSchema(ctx, info.ID)
	if err != nil {
		return nil, err
	}
	result["date_columns"] = schema.DateColumns
	result["numeric_columns"] = schema.NumericColumns
	result["currency_columns"] = schema.CurrencyColumns
	return result, nil
}

// GetJob returns one job
func (s *EngineService) GetJob(ctx context.Context, id string) (*operations.Job, error) {
	if s.jobs == nil {
		return nil, ErrJobsDisabled
	}
	return s.jobs.GetJob(id)
}

// ListJobs returns jobs matching filter, newest first
func (s *EngineService) ListJobs(ctx context.Context, filter operations.JobFilter) ([]*operations.Job, error) {
	if s.jobs == nil {
		return nil, ErrJobsDisabled
	}
	return s.jobs.ListJobs(filter)
}

// CancelJob cancels a pending or running job
func (s *EngineService) CancelJob(ctx context.Context, id string) error {
	if s.jobs == nil {
		return ErrJobsDisabled
	}
	err := s.jobs.CancelJob(id)
	if err != nil && !errors.Is(err, operations.ErrJobNotFound) && !errors.Is(err, operations.ErrNotCancellable) {
		s.logger.WarnContext(ctx, "job cancel failed", slog.String("job_id", id), slog.String("error", err.Error()))
	}
	return err
}
