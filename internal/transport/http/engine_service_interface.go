package http

import (
	"context"
	"encoding/json"
	"io"

	"github.com/San-2310/hsbc-hack/internal/exporter"
	"github.com/San-2310/hsbc-hack/internal/ingestion"
	"github.com/San-2310/hsbc-hack/internal/operations"
	"github.com/San-2310/hsbc-hack/internal/services"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// DatasetService is what DatasetHandler needs from the engine
type DatasetService interface {
	ListDatasets(ctx context.Context) ([]domain.DatasetInfo, error)
	GetDataset(ctx context.Context, id string) (domain.DatasetInfo, error)
	DeleteDataset(ctx context.Context, id string) error
	Ingest(ctx context.Context, src ingestion.Source) (domain.DatasetInfo, error)
	IngestAll(ctx context.Context, sources []ingestion.Source) ([]domain.DatasetInfo, error)
	Upload(ctx context.Context, filename string, r io.Reader) (*operations.Job, error)
	DetectSchema(ctx context.Context, id string) (domain.SchemaDocument, error)
	Preview(ctx context.Context, id string, n int) (*domain.Dataset, error)
	Normalize(ctx context.Context, id string, rawRules []json.RawMessage) (services.NormalizeResult, error)
	NormalizeDefault(ctx context.Context, id string) (services.NormalizeResult, error)
	Aggregate(ctx context.Context, id string, rawConfig []byte) (*domain.AggregationResult, error)
	EvaluateFlag(ctx context.Context, id string, rawConfig []byte) (domain.FlagResult, error)
	ApplyRules(ctx context.Context, kind domain.RuleKind, id string, names []string) (services.ApplyResult, error)
	Export(ctx context.Context, id string, format exporter.Format, w io.Writer) error
}

// RuleService is what RuleHandler needs from the engine
type RuleService interface {
	ListRules(ctx context.Context) map[domain.RuleKind]map[string]domain.Rule
	GetRule(ctx context.Context, kind domain.RuleKind, name string) (domain.Rule, error)
	SaveRule(ctx context.Context, kind domain.RuleKind, name string, config json.RawMessage) (domain.Rule, error)
	DeleteRule(ctx context.Context, kind domain.RuleKind, name string) error
	ExportRules(ctx context.Context) ([]byte, error)
	ImportRules(ctx context.Context, data []byte) (int, error)
}

// JobService is what JobHandler needs from the engine
type JobService interface {
	GetJob(ctx context.Context, id string) (*operations.Job, error)
	ListJobs(ctx context.Context, filter operations.JobFilter) ([]*operations.Job, error)
	CancelJob(ctx context.Context, id string) error
}

// EngineService is the full engine surface served over HTTP
type EngineService interface {
	DatasetService
	RuleService
	JobService
}

var _ EngineService = (*services.EngineService)(nil)
