package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/San-2310/hsbc-hack/internal/aggregation"
	"github.com/San-2310/hsbc-hack/internal/dataprocessing"
	apperrors "github.com/San-2310/hsbc-hack/internal/errors"
	"github.com/San-2310/hsbc-hack/internal/events"
	"github.com/San-2310/hsbc-hack/internal/exporter"
	"github.com/San-2310/hsbc-hack/internal/files"
	"github.com/San-2310/hsbc-hack/internal/infrastructure"
	"github.com/San-2310/hsbc-hack/internal/ingestion"
	"github.com/San-2310/hsbc-hack/internal/rules"
	"github.com/San-2310/hsbc-hack/internal/rulestore"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
	contracts "github.com/San-2310/hsbc-hack/pkg/contracts/events"
)

// EngineDeps are the collaborators of EngineService. Nil fields get an
// in-process default, except Jobs and Uploads which disable Upload when nil.
type EngineDeps struct {
	Profiler   *dataprocessing.Profiler
	Normalizer *dataprocessing.Normalizer
	Aggregator *aggregation.Aggregator
	Registry   *rules.Registry
	Adapter    *ingestion.Adapter
	Datasets   DatasetStore
	RuleStore  rulestore.Store
	Publisher  events.Publisher
	Jobs       JobRunner
	Uploads    *files.Store
	Metrics    *infrastructure.BusinessMetrics
}

// EngineConfig holds the tunables of the engine
type EngineConfig struct {
	MaxRowsPreview int
	// NormalizeUploads runs the default normalization on every processed upload
	NormalizeUploads bool
}

// EngineService is the facade over the profiling, normalization,
// aggregation, rule and ingestion packages
type EngineService struct {
	cfg        EngineConfig
	profiler   *dataprocessing.Profiler
	normalizer *dataprocessing.Normalizer
	aggregator *aggregation.Aggregator
	registry   *rules.Registry
	adapter    *ingestion.Adapter
	datasets   DatasetStore
	ruleStore  rulestore.Store
	persistMu  sync.Mutex // orders rule snapshot saves
	publisher  events.Publisher
	jobs       JobRunner
	uploads    *files.Store
	metrics    *infrastructure.BusinessMetrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngineService wires the engine and registers its job handlers
func NewEngineService(cfg EngineConfig, deps EngineDeps, logger *slog.Logger) *EngineService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRowsPreview <= 0 {
		cfg.MaxRowsPreview = dataprocessing.DefaultMaxPreviewRows
	}
	if deps.Profiler == nil {
		deps.Profiler = dataprocessing.NewProfiler(logger, dataprocessing.ProfilerConfig{MaxPreviewRows: cfg.MaxRowsPreview})
	}
	if deps.Normalizer == nil {
		deps.Normalizer = dataprocessing.NewNormalizer(logger)
	}
	if deps.Aggregator == nil {
		deps.Aggregator = aggregation.NewAggregator(logger)
	}
	if deps.Registry == nil {
		deps.Registry = rules.NewRegistry(logger, deps.Normalizer, deps.Aggregator)
	}
	if deps.Adapter == nil {
		deps.Adapter = ingestion.NewAdapter(ingestion.DefaultConfig(), logger)
	}
	if deps.Datasets == nil {
		deps.Datasets = NewMemoryDatasetStore(0)
	}
	if deps.RuleStore == nil {
		deps.RuleStore = rulestore.NewMemory()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}

	s := &EngineService{
		cfg:        cfg,
		profiler:   deps.Profiler,
		normalizer: deps.Normalizer,
		aggregator: deps.Aggregator,
		registry:   deps.Registry,
		adapter:    deps.Adapter,
		datasets:   deps.Datasets,
		ruleStore:  deps.RuleStore,
		publisher:  deps.Publisher,
		jobs:       deps.Jobs,
		uploads:    deps.Uploads,
		metrics:    deps.Metrics,
		logger:     logger.With(slog.String("component", "engine_service")),
		now:        time.Now,
	}
	if s.jobs != nil {
		s.jobs.Register(JobKindProcessUpload, s.processUpload)
	}
	return s
}

// Start loads the persisted rule snapshot into the registry
func (s *EngineService) Start(ctx context.Context) error {
	data, err := s.ruleStore.Load(ctx)
	if err != nil {
		return apperrors.NewStorageError("load rule snapshot", err)
	}
	if len(data) == 0 {
		s.logger.InfoContext(ctx, "no persisted rules found")
		return nil
	}
	if err := s.registry.Import(data); err != nil {
		return apperrors.NewStorageError("restore rule snapshot", err)
	}
	s.logger.InfoContext(ctx, "rules restored", slog.Int("count", s.registry.Count()))
	return nil
}

func (s *EngineService) publish(ctx context.Context, event contracts.Event) {
	if err := s.publisher.Publish(ctx, events.Stamp(ctx, event)); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", string(event.Name)),
			slog.String("error", err.Error()))
	}
}

func (s *EngineService) dataset(ctx context.Context, id string) (*domain.Dataset, domain.DatasetInfo, error) {
	ds, info, err := s.datasets.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDatasetNotFound) {
			return nil, domain.DatasetInfo{}, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
		}
		return nil, domain.DatasetInfo{}, apperrors.NewStorageError("load dataset", err)
	}
	return ds, info, nil
}

// ListDatasets returns the catalogue of stored datasets
func (s *EngineService) ListDatasets(ctx context.Context) ([]domain.DatasetInfo, error) {
	return s.datasets.List(ctx)
}

// GetDataset returns the catalogue entry of one dataset
func (s *EngineService) GetDataset(ctx context.Context, id string) (domain.DatasetInfo, error) {
	_, info, err := s.dataset(ctx, id)
	return info, err
}

// DeleteDataset removes a dataset
func (s *EngineService) DeleteDataset(ctx context.Context, id string) error {
	if err := s.datasets.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrDatasetNotFound) {
			return fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
		}
		return apperrors.NewStorageError("delete dataset", err)
	}
	return nil
}

// StoreDataset adds an already built dataset to the catalogue
func (s *EngineService) StoreDataset(ctx context.Context, ds *domain.Dataset, source domain.SourceDescriptor) (domain.DatasetInfo, error) {
	info, err := s.datasets.Put(ctx, ds, domain.DatasetInfo{Source: source, Stage: StageIngested})
	if err != nil {
		return domain.DatasetInfo{}, apperrors.NewStorageError("store dataset", err)
	}
	return info, nil
}

// Ingest reads a source, stores the dataset and announces it
func (s *EngineService) Ingest(ctx context.Context, src ingestion.Source) (domain.DatasetInfo, error) {
	ctx, span := infrastructure.StartSpan(ctx, "engine.ingest", map[string]interface{}{
		"source.kind": string(src.Kind()),
	})
	defer span.End()

	ds, desc, err := s.adapter.Ingest(ctx, src)
	s.metrics.RecordIngestion(ctx, string(src.Kind()), rowsOf(ds), err)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return domain.DatasetInfo{}, classifyIngestError(src.Kind(), err)
	}

	info, err := s.StoreDataset(ctx, ds, desc)
	if err != nil {
		return domain.DatasetInfo{}, err
	}

	s.publish(ctx, contracts.Event{
		Name:      contracts.DatasetIngested,
		DatasetID: info.ID,
		Data: map[string]any{
			"source":  string(desc.Kind),
			"rows":    info.Rows,
			"columns": len(info.Columns),
		},
	})
	return info, nil
}

// IngestAll ingests several sources concurrently and stores them in order.
// Nothing is stored when any source fails.
func (s *EngineService) IngestAll(ctx context.Context, sources []ingestion.Source) ([]domain.DatasetInfo, error) {
	results, err := s.adapter.IngestAll(ctx, sources)
	if err != nil {
		return nil, classifyIngestError("", err)
	}

	infos := make([]domain.DatasetInfo, 0, len(results))
	for i, res := range results {
		s.metrics.RecordIngestion(ctx, string(sources[i].Kind()), res.Dataset.Len(), nil)
		info, err := s.StoreDataset(ctx, res.Dataset, res.Source)
		if err != nil {
			return nil, err
		}
		s.publish(ctx, contracts.Event{
			Name:      contracts.DatasetIngested,
			DatasetID: info.ID,
			Data:      map[string]any{"source": string(res.Source.Kind), "rows": info.Rows},
		})
		infos = append(infos, info)
	}
	return infos, nil
}

// classifyIngestError keeps known sentinels and tags the rest as a remote or
// parsing failure depending on where the data came from
func classifyIngestError(kind domain.SourceKind, err error) error {
	switch {
	case errors.Is(err, ingestion.ErrUnsupportedFormat),
		errors.Is(err, ingestion.ErrFileTooLarge),
		errors.Is(err, ingestion.ErrSheetsUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	switch kind {
	case domain.SourceAPI, domain.SourceURL, domain.SourceSheets:
		if errors.Is(err, ingestion.ErrNoColumns) || errors.Is(err, ingestion.ErrNoTable) {
			return apperrors.NewParsingError("decode remote data", err)
		}
		return apperrors.NewNetworkError("fetch source", err)
	default:
		return apperrors.NewParsingError("decode input", err)
	}
}

func rowsOf(ds *domain.Dataset) int {
	if ds == nil {
		return 0
	}
	return ds.Len()
}

// DetectSchema profiles a stored dataset
func (s *EngineService) DetectSchema(ctx context.Context, id string) (domain.SchemaDocument, error) {
	ds, _, err := s.dataset(ctx, id)
	if err != nil {
		return domain.SchemaDocument{}, err
	}
	return s.profiler.DetectSchema(ds), nil
}

// Preview returns the first n rows, capped at the configured maximum
func (s *EngineService) Preview(ctx context.Context, id string, n int) (*domain.Dataset, error) {
	ds, _, err := s.dataset(ctx, id)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > s.cfg.MaxRowsPreview {
		n = s.cfg.MaxRowsPreview
	}
	return s.profiler.Preview(ds, n), nil
}

// NormalizeResult is a normalized dataset with its log
type NormalizeResult struct {
	Dataset domain.DatasetInfo      `json:"dataset"`
	Log     domain.NormalizationLog `json:"log"`
}

// Normalize runs ad-hoc normalization rules and stores the output as a new
// dataset derived from id. A rule that does not decode rejects the whole
// request; rules that fail at run time are reported in the log.
func (s *EngineService) Normalize(ctx context.Context, id string, rawRules []json.RawMessage) (NormalizeResult, error) {
	parsed := make([]dataprocessing.NormalizationRule, 0, len(rawRules))
	for i, raw := range rawRules {
		rule, err := dataprocessing.ParseNormalizationRule(raw)
		if err != nil {
			return NormalizeResult{}, fmt.Errorf("%w: rule %d: %v", ErrInvalidInput, i, err)
		}
		parsed = append(parsed, rule)
	}

	ds, info, err := s.dataset(ctx, id)
	if err != nil {
		return NormalizeResult{}, err
	}

	out, log := s.normalizer.Normalize(ds, parsed)
	return s.storeNormalized(ctx, out, info, log, "custom")
}

// NormalizeDefault runs the pattern-driven normalization on a dataset
func (s *EngineService) NormalizeDefault(ctx context.Context, id string) (NormalizeResult, error) {
	ds, info, err := s.dataset(ctx, id)
	if err != nil {
		return NormalizeResult{}, err
	}
	out, log := s.normalizer.NormalizeDefault(ds, s.profiler.DetectSchema(ds))
	return s.storeNormalized(ctx, out, info, log, "default")
}

func (s *EngineService) storeNormalized(ctx context.Context, ds *domain.Dataset, parent domain.DatasetInfo, log domain.NormalizationLog, mode string) (NormalizeResult, error) {
	info, err := s.datasets.Put(ctx, ds, domain.DatasetInfo{
		Source:   parent.Source,
		ParentID: parent.ID,
		Stage:    StageNormalized,
	})
	if err != nil {
		return NormalizeResult{}, apperrors.NewStorageError("store dataset", err)
	}
	if log == nil {
		log = domain.NormalizationLog{}
	}

	s.logger.InfoContext(ctx, "dataset normalized",
		slog.String("dataset_id", info.ID),
		slog.String("parent_id", parent.ID),
		slog.String("mode", mode),
		slog.Int("log_lines", len(log)))
	s.publish(ctx, contracts.Event{
		Name:      contracts.DatasetNormalized,
		DatasetID: info.ID,
		Data:      map[string]any{"parent_id": parent.ID, "mode": mode, "steps": len(log)},
	})
	return NormalizeResult{Dataset: info, Log: log}, nil
}

// Aggregate decodes and runs one aggregation config against a dataset
func (s *EngineService) Aggregate(ctx context.Context, id string, rawConfig []byte) (*domain.AggregationResult, error) {
	cfg, err := aggregation.ParseConfig(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ds, _, err := s.dataset(ctx, id)
	if err != nil {
		return nil, err
	}

	ctx, span := infrastructure.StartSpan(ctx, "engine.aggregate", map[string]interface{}{
		"aggregation.type": string(cfg.Type),
		"dataset.rows":     ds.Len(),
	})
	defer span.End()

	start := s.now()
	res, err := s.aggregator.Aggregate(ctx, ds, cfg)
	s.metrics.RecordAggregation(ctx, string(cfg.Type), s.now().Sub(start), err == nil)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, err
	}
	return res, nil
}

// EvaluateFlag runs one flag config against a dataset. Evaluation problems
// such as a missing column come back inside the FlagResult.
func (s *EngineService) EvaluateFlag(ctx context.Context, id string, rawConfig []byte) (domain.FlagResult, error) {
	cfg, err := rules.ParseFlagConfig(rawConfig)
	if err != nil {
		return domain.FlagResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ds, _, err := s.dataset(ctx, id)
	if err != nil {
		return domain.FlagResult{}, err
	}

	res := rules.EvaluateFlag(ds, cfg)
	if !res.Failed() {
		s.metrics.RecordFlags(ctx, res.FlagName, res.FlaggedCount)
	}
	return res, nil
}

// Export writes a dataset to w in the requested format
func (s *EngineService) Export(ctx context.Context, id string, format exporter.Format, w io.Writer) error {
	ds, _, err := s.dataset(ctx, id)
	if err != nil {
		return err
	}
	if err := exporter.Export(w, ds, format); err != nil {
		return fmt.Errorf("export %s: %w", format, err)
	}
	return nil
}
