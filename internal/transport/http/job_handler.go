package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "github.com/San-2310/hsbc-hack/internal/errors"
	"github.com/San-2310/hsbc-hack/internal/middleware"
	"github.com/San-2310/hsbc-hack/internal/operations"
	api "github.com/San-2310/hsbc-hack/pkg/contracts/api/v1"
)

// JobHandler serves background job status
type JobHandler struct {
	baseHandler
	service JobService
	query   *middleware.QueryParamValidator
}

// NewJobHandler creates a new job handler
func NewJobHandler(service JobService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *JobHandler {
	base := newBaseHandler("job", logger, errorHandler)
	return &JobHandler{
		baseHandler: base,
		service:     service,
		query:       middleware.NewQueryParamValidator(logger, base.errorHandler),
	}
}

// Routes returns the job routes
func (h *JobHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Cancel)
	return r
}

// List handles GET /api/v1/jobs?status=&kind=&dataset_id=&limit=
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.query.ValidateInt(w, r, "limit", 0, 1000, 0)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := api.JobListRequest{
		Status:    q.Get("status"),
		Kind:      q.Get("kind"),
		DatasetID: q.Get("dataset_id"),
		Limit:     limit,
		Since:     q.Get("since"),
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	filter := operations.JobFilter{
		Status:    operations.JobStatus(req.Status),
		Kind:      req.Kind,
		DatasetID: req.DatasetID,
		Limit:     req.Limit,
	}
	if req.Since != "" {
		// already validated
		filter.Since, _ = middleware.ParseISO8601(req.Since)
	}
	jobs, err := h.service.ListJobs(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*operations.Job{}
	}
	respond(w, r, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// Get handles GET /api/v1/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, job)
}

// Cancel handles DELETE /api/v1/jobs/{id}
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.CancelJob(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "job cancelled", slog.String("job_id", id))
	respond(w, r, http.StatusAccepted, map[string]string{"id": id, "status": string(operations.JobStatusCancelled)})
}
