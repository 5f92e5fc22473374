package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/San-2310/hsbc-hack/internal/aggregation"
	apierrors "github.com/San-2310/hsbc-hack/internal/errors"
	"github.com/San-2310/hsbc-hack/internal/exporter"
	"github.com/San-2310/hsbc-hack/internal/infrastructure"
	"github.com/San-2310/hsbc-hack/internal/ingestion"
	"github.com/San-2310/hsbc-hack/internal/middleware"
	"github.com/San-2310/hsbc-hack/internal/services"
	api "github.com/San-2310/hsbc-hack/pkg/contracts/api/v1"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

type datasetIDKey struct{}

// DatasetConfig holds the tunables of DatasetHandler
type DatasetConfig struct {
	// MaxUploadSize caps the multipart form held in memory
	MaxUploadSize int64
	// DefaultPreviewRows is used when ?rows is absent
	DefaultPreviewRows int
	// MaxPreviewRows bounds ?rows
	MaxPreviewRows int
}

// DatasetHandler serves dataset ingestion, profiling and processing
type DatasetHandler struct {
	baseHandler
	service DatasetService
	query   *middleware.QueryParamValidator
	cfg     DatasetConfig
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(service DatasetService, cfg DatasetConfig, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DatasetHandler {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 32 << 20
	}
	if cfg.DefaultPreviewRows <= 0 {
		cfg.DefaultPreviewRows = 10
	}
	if cfg.MaxPreviewRows <= 0 {
		cfg.MaxPreviewRows = 1000
	}
	base := newBaseHandler("dataset", logger, errorHandler)
	return &DatasetHandler{
		baseHandler: base,
		service:     service,
		query:       middleware.NewQueryParamValidator(logger, base.errorHandler),
		cfg:         cfg,
	}
}

// Routes returns the dataset routes
func (h *DatasetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.List)
	r.Post("/upload", h.Upload)
	r.Post("/ingest", h.Ingest)

	r.Route("/{id}", func(r chi.Router) {
		r.Use(h.DatasetCtx)
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Get("/schema", h.Schema)
		r.Get("/preview", h.Preview)
		r.Get("/export", h.Export)
		r.Post("/normalize", h.Normalize)
		r.Post("/aggregate", h.Aggregate)
		r.Post("/flags", h.EvaluateFlag)
		r.Post("/rules/{kind}/apply", h.ApplyRules)
	})
	return r
}

// DatasetCtx validates the dataset id path parameter
func (h *DatasetHandler) DatasetCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" || len(id) > 100 {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("id", "Invalid dataset id"))
			return
		}
		ctx := context.WithValue(r.Context(), datasetIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func datasetID(r *http.Request) string {
	id, _ := r.Context().Value(datasetIDKey{}).(string)
	return id
}

// List handles GET /api/v1/datasets
func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	stage, ok := h.query.ValidateEnum(w, r, "stage", []string{services.StageIngested, services.StageNormalized}, "")
	if !ok {
		return
	}
	all, err := h.service.ListDatasets(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	infos := all
	if stage != "" {
		infos = make([]domain.DatasetInfo, 0, len(all))
		for _, info := range all {
			if info.Stage == stage {
				infos = append(infos, info)
			}
		}
	}
	respond(w, r, http.StatusOK, api.DatasetListResponse{Datasets: infos, Total: len(infos)})
}

// Get handles GET /api/v1/datasets/{id}
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.GetDataset(r.Context(), datasetID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, info)
}

// Delete handles DELETE /api/v1/datasets/{id}
func (h *DatasetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteDataset(r.Context(), datasetID(r)); err != nil {
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"id": datasetID(r), "deleted": "true"})
}

// Upload handles POST /api/v1/datasets/upload. The file is processed by a
// background job; the response carries the job to poll.
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "multipart form with a file field is required"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "file field is required"))
		return
	}
	defer file.Close()

	if err := h.validator.ValidateStruct(api.UploadRequest{Filename: header.Filename}); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	job, err := h.service.Upload(r.Context(), header.Filename, file)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "upload accepted",
		slog.String("job_id", job.ID),
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size))
	respond(w, r, http.StatusAccepted, job)
}

// Ingest handles POST /api/v1/datasets/ingest for one source or a batch
func (h *DatasetHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req api.IngestRequest
	if !h.bind(w, r, &req) {
		return
	}

	ctx, span := infrastructure.StartSpan(r.Context(), "http.ingest", map[string]interface{}{
		"ingest.batch": len(req.Sources) > 0,
	})
	defer span.End()

	if len(req.Sources) > 0 {
		sources := make([]ingestion.Source, 0, len(req.Sources))
		for i, raw := range req.Sources {
			src, err := ingestion.ParseSource(raw)
			if err != nil {
				h.errorHandler.HandleError(w, r, apierrors.ErrValidation(fmt.Sprintf("sources[%d]", i), err.Error()))
				return
			}
			sources = append(sources, src)
		}
		infos, err := h.service.IngestAll(ctx, sources)
		if err != nil {
			infrastructure.RecordError(ctx, err)
			h.handleError(w, r, err)
			return
		}
		respond(w, r, http.StatusCreated, api.IngestResponse{Datasets: infos})
		return
	}

	src, err := ingestion.ParseSource(req.Raw())
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("type", err.Error()))
		return
	}
	info, err := h.service.Ingest(ctx, src)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, api.IngestResponse{Datasets: []domain.DatasetInfo{info}})
}

// Schema handles GET /api/v1/datasets/{id}/schema
func (h *DatasetHandler) Schema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.service.DetectSchema(r.Context(), datasetID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, schema)
}

// Preview handles GET /api/v1/datasets/{id}/preview?rows=N
func (h *DatasetHandler) Preview(w http.ResponseWriter, r *http.Request) {
	n, ok := h.query.ValidateInt(w, r, "rows", 1, h.cfg.MaxPreviewRows, h.cfg.DefaultPreviewRows)
	if !ok {
		return
	}
	ds, err := h.service.Preview(r.Context(), datasetID(r), n)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, api.PreviewResponse{
		DatasetID: datasetID(r),
		Columns:   ds.Columns(),
		Rows:      ds.Len(),
		Records:   ds,
	})
}

// Export handles GET /api/v1/datasets/{id}/export?format=csv|xlsx
func (h *DatasetHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := exporter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	// Buffer so a failed export still gets a problem response
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), datasetID(r), format, &buf); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", datasetID(r)+format.Extension()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "export write failed", slog.String("error", err.Error()))
	}
}

// Normalize handles POST /api/v1/datasets/{id}/normalize
func (h *DatasetHandler) Normalize(w http.ResponseWriter, r *http.Request) {
	var req api.NormalizeRequest
	if !h.bind(w, r, &req) {
		return
	}

	var (
		res services.NormalizeResult
		err error
	)
	if req.Default {
		res, err = h.service.NormalizeDefault(r.Context(), datasetID(r))
	} else {
		res, err = h.service.Normalize(r.Context(), datasetID(r), req.Rules)
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, res)
}

// Aggregate handles POST /api/v1/datasets/{id}/aggregate. The body is an
// aggregation config; failures carry the structured failure document.
func (h *DatasetHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	res, err := h.service.Aggregate(r.Context(), datasetID(r), body)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, res)
}

// EvaluateFlag handles POST /api/v1/datasets/{id}/flags
func (h *DatasetHandler) EvaluateFlag(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	res, err := h.service.EvaluateFlag(r.Context(), datasetID(r), body)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if res.Failed() {
		h.errorHandler.HandleError(w, r, apierrors.UnprocessableWithError("FLAG_FAILED", errors.New(res.Error), res))
		return
	}
	respond(w, r, http.StatusOK, res)
}

// ApplyRules handles POST /api/v1/datasets/{id}/rules/{kind}/apply
func (h *DatasetHandler) ApplyRules(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseRuleKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("kind", err.Error()))
		return
	}

	var req api.ApplyRulesRequest
	if r.ContentLength != 0 {
		if !h.bind(w, r, &req) {
			return
		}
	}

	res, err := h.service.ApplyRules(r.Context(), kind, datasetID(r), req.Names)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, h.applyResponse(res))
}

func (h *DatasetHandler) applyResponse(res services.ApplyResult) api.ApplyRulesResponse {
	out := api.ApplyRulesResponse{
		Kind:        string(res.Kind),
		Applied:     res.Applied,
		Dataset:     res.Dataset,
		Log:         res.Log,
		Flags:       res.Flags,
		Validations: res.Validations,
	}
	if res.Aggregations != nil {
		out.Aggregations = make(map[string]api.AggregationOutcome, len(res.Aggregations))
		for name, o := range res.Aggregations {
			if o.Err != nil {
				f := aggregation.Failure(o.Err, h.now())
				out.Aggregations[name] = api.AggregationOutcome{Failure: &f}
				continue
			}
			out.Aggregations[name] = api.AggregationOutcome{Result: o.Result}
		}
	}
	return out
}
