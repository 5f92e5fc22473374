package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/San-2310/hsbc-hack/internal/aggregation"
	apperrors "github.com/San-2310/hsbc-hack/internal/errors"
	"github.com/San-2310/hsbc-hack/internal/exporter"
	"github.com/San-2310/hsbc-hack/internal/files"
	"github.com/San-2310/hsbc-hack/internal/ingestion"
	"github.com/San-2310/hsbc-hack/internal/operations"
	"github.com/San-2310/hsbc-hack/internal/rules"
	"github.com/San-2310/hsbc-hack/internal/rulestore"
	"github.com/San-2310/hsbc-hack/internal/shared/testutil"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
	contracts "github.com/San-2310/hsbc-hack/pkg/contracts/events"
)

const transactionsJSON = `[
	{"account":"A1","amount":120.5,"type":"C","date":"2024-01-05"},
	{"account":"A1","amount":-40,"type":"D","date":"2024-01-20"},
	{"account":"A2","amount":990,"type":"C","date":"2024-02-02"},
	{"account":"A2","amount":15,"type":"D","date":"2024-02-11"}
]`

type testEngine struct {
	*EngineService
	pub   *MockPublisher
	store *rulestore.Memory
}

func newTestEngine(t *testing.T, deps EngineDeps) testEngine {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	store := rulestore.NewMemory()
	deps.Publisher = pub
	deps.RuleStore = store

	svc := NewEngineService(EngineConfig{MaxRowsPreview: 3}, deps, logger)
	return testEngine{EngineService: svc, pub: pub, store: store}
}

func ingestTransactions(t *testing.T, e testEngine) domain.DatasetInfo {
	t.Helper()
	info, err := e.Ingest(context.Background(), ingestion.InlineSource{Data: json.RawMessage(transactionsJSON)})
	require.NoError(t, err)
	return info
}

func TestIngestStoresAndPublishes(t *testing.T) {
	e := newTestEngine(t, EngineDeps{})
	info := ingestTransactions(t, e)

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 4, info.Rows)
	assert.Equal(t, []string{"account", "amount", "type", "date"}, info.Columns)
	assert.Equal(t, StageIngested, info.Stage)
	assert.Equal(t, domain.SourceJSON, info.Source.Kind)
	assert.Equal(t, []contracts.Name{contracts.DatasetIngested}, e.pub.Names())

	got, err := e.GetDataset(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	list, err := e.ListDatasets(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestIngestErrorsAreClassified(t *testing.T) {
	e := newTestEngine(t, EngineDeps{})

	_, err := e.Ingest(context.Background(), ingestion.InlineSource{Data: json.RawMessage(`42`)})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrTypeParsing, appErr.Type)

	_, err = e.Ingest(context.Background(), ingestion.SheetsSource{SpreadsheetID: "x"})
	assert.ErrorIs(t, err, ingestion.ErrSheetsUnavailable)

	_, err = e.Ingest(context.Background(), ingestion.APISource{URL: "http://127.0.0.1:1/unreachable"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrTypeNetwork, appErr.Type)
}

func TestIngestAll(t *testing.T) {
	e := newTestEngine(t, EngineDeps{})
	infos, err := e.IngestAll(context.Background(), []ingestion.Source{
		ingestion.InlineSource{Data: json.RawMessage(`[{"n":1}]`)},
		ingestion.InlineSource{Data: json.RawMessage(`[{"n":1},{"n":2}]`)},
	})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 1, infos[0].Rows)
	assert.Equal(t, 2, infos[1].Rows)
}

func TestDetectSchemaAndPreview(t *testing.T) {
	e := newTestEngine(t, EngineDeps{})
	info := ingestTransactions(t, e)

	schema, err := e.DetectSchema(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, schema.TotalRows)
	assert.Contains(t, schema.NumericColumns, "amount")

	preview, err := e.Preview(context.Background(), info.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, preview.Len(), "preview is capped at the configured maximum")

	preview, err = e.Preview(context.Background(), info.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, preview.Len())

	_, err = e.DetectSchema(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestNormalize(t *testing.T) {
	e := newTestEngine(t, EngineDeps{})
	info := ingestTransactions(t, e)

	res, err := e.Normalize(context.Background(), info.ID, []json.RawMessage{
		json.RawMessage(`{"type":"column_mapping","mapping":{"account":"Account ID"}}`),
		json.RawMessage(`{"type":"snake_case"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, info.ID, res.Dataset.ParentID)
	assert.Equal(t, StageNormalized, res.Dataset.Stage)
	assert.Contains(t, res.Dataset.Columns, "account_id")
	assert.Len(t, res.Log, 2)

	// the source dataset is untouched
	orig, err := e.GetDataset(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Contains(t, orig.Columns, "account")

	_, err = e.Normalize(context.Background(), info.ID, []json.RawMessage{json.RawMessage(`{"type":"teleport"}`)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, []contracts.Name{contracts.DatasetIngested, contracts.DatasetNormalized}, e.pub.Names())
}

func TestNormalizeDefault(t *testing.T) {
	e := newTestEngine(t, EngineDeps{})
	info, err := e.Ingest(context.Background(), ingestion.InlineSource{
		Data: json.RawMessage(`[{"Transaction Date":"05/01/2024","Amount":"$1,200.50"}]`),
	})
	require.NoError(t, err)

	res, err := e.NormalizeDefault(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"transaction_date", "amount"}, res.Dataset.Columns)
	assert.NotEmpty(t, res.Log)
}

func TestAggregate(t *testing.T) {
	e := newTestEngine(t, EngineDeps{})
	info := ingestTransactions(t, e)

	res, err := e.Aggregate(context.Background(), info.ID,
		[]byte(`{"type":"group_by","group_by":"account","value_columns":["amount"]}`))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Data.Len())
	assert.Equal(t, domain.Number(80.5), res.Data.Cell(0, "amount_sum"))

	_, err = e.Aggregate(context.Background(), info.ID, []byte(`{"type":"group_by"}`))
	var ve *aggregation.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = e.Aggregate(context.Background(), info.ID, []byte(`{"type":`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.Aggregate(context.Background(), "nope", []byte(`{"type":"summary_stats"}`))
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestEvaluateFlag(t *testing.T) {
	e := newTestEngine(t, EngineDeps{})
	info := ingestTransactions(t, e)

	res, err := e.EvaluateFlag(context.Background(), info.ID,
		[]byte(`{"type":"threshold","column":"amount","threshold":100,"flag_name":"large"}`))
	require.NoError(t, err)
	assert.Equal(t, "large", res.FlagName)
	assert.Equal(t, 2, res.FlaggedCount)
	assert.Equal(t, 50.0, res.FlaggedPercentage)

	res, err = e.EvaluateFlag(context.Background(), info.ID, []byte(`{"type":"threshold","column":"nope","threshold":1}`))
	require.NoError(t, err)
	assert.Equal(t, "Column 'nope' not found", res.Error)
}

func TestRuleCRUDPersists(t *testing.T) {
	e := newTestEngine(t, EngineDeps{})
	ctx := context.Background()

	rule, err := e.SaveRule(ctx, domain.RuleKindFlag, "large", json.RawMessage(`{"type":"threshold","column":"amount","threshold":100}`))
	require.NoError(t, err)
	assert.Equal(t, "flag", rule.Type)

	snapshot, err := e.store.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(snapshot), `"large"`)

	got, err := e.GetRule(ctx, domain.RuleKindFlag, "large")
	require.NoError(t, err)
	assert.Equal(t, rule, got)

	_, err = e.SaveRule(ctx, domain.RuleKindFlag, "", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.SaveRule(ctx, domain.RuleKindAggregation, "bad", json.RawMessage(`not json`))
	assert.True(t, IsRuleInputError(err))

	require.NoError(t, e.DeleteRule(ctx, domain.RuleKindFlag, "large"))
	assert.ErrorIs(t, e.DeleteRule(ctx, domain.RuleKindFlag, "large"), ErrRuleNotFound)
	_, err = e.GetRule(ctx, domain.RuleKindFlag, "large")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	assert.Contains(t, e.pub.Names(), contracts.RulesChanged)
}

// gatedStore holds its first Save until release is closed
type gatedStore struct {
	*rulestore.Memory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Save(ctx context.Context, snapshot []byte) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Memory.Save(ctx, snapshot)
}

func TestConcurrentRuleSavesKeepNewestSnapshot(t *testing.T) {
	ctx := context.Background()
	logger, _ := testutil.NewTestLogger(t)
	store := &gatedStore{Memory: rulestore.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewEngineService(EngineConfig{}, EngineDeps{RuleStore: store}, logger)

	flag := json.RawMessage(`{"type":"threshold","column":"amount","threshold":100}`)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.SaveRule(ctx, domain.RuleKindFlag, "first", flag)
		assert.NoError(t, err)
	}()
	<-store.entered

	go func() {
		defer wg.Done()
		_, err := svc.SaveRule(ctx, domain.RuleKindFlag, "second", flag)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool {
		_, err := svc.GetRule(ctx, domain.RuleKindFlag, "second")
		return err == nil
	}, time.Second, time.Millisecond)
	close(store.release)
	wg.Wait()

	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(snapshot), `"first"`)
	assert.Contains(t, string(snapshot), `"second"`)
}

func TestStartRestoresRules(t *testing.T) {
	ctx := context.Background()
	store := rulestore.NewMemory()
	logger, _ := testutil.NewTestLogger(t)

	first := NewEngineService(EngineConfig{}, EngineDeps{RuleStore: store}, logger)
	_, err := first.SaveRule(ctx, domain.RuleKindValidation, "no_nulls", json.RawMessage(`{"type":"not_null","columns":["amount"]}`))
	require.NoError(t, err)

	second := NewEngineService(EngineConfig{}, EngineDeps{RuleStore: store}, logger)
	require.NoError(t, second.Start(ctx))
	_, err = second.GetRule(ctx, domain.RuleKindValidation, "no_nulls")
	assert.NoError(t, err)

	empty := NewEngineService(EngineConfig{}, EngineDeps{}, logger)
	assert.NoError(t, empty.Start(ctx))
}

func TestExportImportRules(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, EngineDeps{})
	_, err := e.SaveRule(ctx, domain.RuleKindNormalization, "snake", json.RawMessage(`{"type":"snake_case"}`))
	require.NoError(t, err)

	doc, err := e.ExportRules(ctx)
	require.NoError(t, err)

	other := newTestEngine(t, EngineDeps{})
	n, err := other.ImportRules(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := other.ExportRules(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, string(doc), string(again))

	_, err = other.ImportRules(ctx, []byte(`[`))
	assert.ErrorIs(t, err, rules.ErrInvalidImport)
}

func TestApplyRules(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, EngineDeps{})
	info := ingestTransactions(t, e)

	_, err := e.SaveRule(ctx, domain.RuleKindFlag, "large", json.RawMessage(`{"type":"threshold","column":"amount","threshold":100}`))
	require.NoError(t, err)
	_, err = e.SaveRule(ctx, domain.RuleKindFlag, "broken", json.RawMessage(`{"type":"threshold","column":"missing","threshold":1}`))
	require.NoError(t, err)
	_, err = e.SaveRule(ctx, domain.RuleKindNormalization, "snake", json.RawMessage(`{"type":"snake_case"}`))
	require.NoError(t, err)

	res, err := e.ApplyRules(ctx, domain.RuleKindFlag, info.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"large"}, res.Applied)
	assert.Equal(t, 2, res.Flags["large"].FlaggedCount)
	assert.True(t, res.Flags["broken"].Failed())

	res, err = e.ApplyRules(ctx, domain.RuleKindNormalization, info.ID, []string{"snake"})
	require.NoError(t, err)
	assert.Equal(t, []string{"snake"}, res.Applied)
	require.NotNil(t, res.Dataset)
	assert.Equal(t, info.ID, res.Dataset.ParentID)

	_, err = e.ApplyRules(ctx, domain.RuleKindFlag, info.ID, []string{"ghost"})
	assert.ErrorIs(t, err, ErrRuleNotFound)

	_, err = e.ApplyRules(ctx, domain.RuleKind("weird"), info.ID, nil)
	assert.ErrorIs(t, err, rules.ErrUnknownKind)
}

func TestExport(t *testing.T) {
	e := newTestEngine(t, EngineDeps{})
	info := ingestTransactions(t, e)

	var buf bytes.Buffer
	require.NoError(t, e.Export(context.Background(), info.ID, exporter.FormatCSV, &buf))
	assert.Contains(t, buf.String(), "account,amount,type,date")

	err := e.Export(context.Background(), info.ID, exporter.Format("pdf"), &buf)
	assert.ErrorIs(t, err, exporter.ErrUnsupportedFormat)
}

func TestUploadRunsJob(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	uploads, err := files.NewStore(t.TempDir(), 1<<20, logger)
	require.NoError(t, err)
	queue := operations.NewJobQueue(operations.QueueConfig{Workers: 1}, nil, nil, logger)

	e := newTestEngine(t, EngineDeps{Jobs: queue, Uploads: uploads})
	e.cfg.NormalizeUploads = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	t.Cleanup(func() { _ = queue.Stop(time.Second) })

	job, err := e.Upload(ctx, "March Statement.csv", strings.NewReader("Account,Amount\nA1,10\nA2,20\n"))
	require.NoError(t, err)
	assert.Equal(t, JobKindProcessUpload, job.Kind)

	var done *operations.Job
	require.Eventually(t, func() bool {
		done, err = e.GetJob(ctx, job.ID)
		return err == nil && done.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, operations.JobStatusCompleted, done.Status, done.Error)

	datasetID, _ := done.Result["dataset_id"].(string)
	info, err := e.GetDataset(ctx, datasetID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Rows)
	assert.Equal(t, "March_Statement.csv", info.Source.Filename)
	assert.NotEmpty(t, done.Result["normalized_dataset_id"])

	jobs, err := e.ListJobs(ctx, operations.JobFilter{Kind: JobKindProcessUpload})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestUploadRejections(t *testing.T) {
	e := newTestEngine(t, EngineDeps{})
	_, err := e.Upload(context.Background(), "x.csv", strings.NewReader("a"))
	assert.ErrorIs(t, err, ErrUploadsDisabled)

	logger, _ := testutil.NewTestLogger(t)
	uploads, err := files.NewStore(t.TempDir(), 0, logger)
	require.NoError(t, err)
	queue := operations.NewJobQueue(operations.QueueConfig{Workers: 1}, nil, nil, logger)
	e = newTestEngine(t, EngineDeps{Jobs: queue, Uploads: uploads})

	_, err = e.Upload(context.Background(), "notes.pdf", strings.NewReader("a"))
	assert.ErrorIs(t, err, ingestion.ErrUnsupportedFormat)

	assert.ErrorIs(t, e.CancelJob(context.Background(), "nope"), operations.ErrJobNotFound)
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	e := NewEngineService(EngineConfig{}, EngineDeps{Publisher: pub}, logger)

	_, err := e.Ingest(context.Background(), ingestion.InlineSource{Data: json.RawMessage(`[{"a":1}]`)})
	require.NoError(t, err)
	pub.AssertNumberOfCalls(t, "Publish", 1)
	assert.True(t, handler.ContainsMessage("event publish failed"))
}
