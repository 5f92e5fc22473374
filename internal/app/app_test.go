package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/San-2310/hsbc-hack/internal/config"
	"github.com/San-2310/hsbc-hack/internal/infrastructure"
	"github.com/San-2310/hsbc-hack/internal/operations"
	"github.com/San-2310/hsbc-hack/internal/shared/testutil"
	contractevents "github.com/San-2310/hsbc-hack/pkg/contracts/events"
)

const uploadCSV = "Date,Branch,Amount\n2024-01-05,London,\"$1,200.50\"\n2024-01-20,Leeds,300\n2024-02-02,London,(45.00)\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Processing.UploadDir = t.TempDir()
	cfg.RuleStore.Driver = "memory"
	cfg.Events.Driver = "none"
	cfg.Security.RateLimit = 0
	cfg.Security.AllowedOrigins = nil
	cfg.Jobs.Workers = 2
	cfg.Telemetry.StdoutTraces = false
	return cfg
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	a, err := New(context.Background(), testConfig(t), logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx, cancel))
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, a.Stop(context.Background()))
	})
	return a
}

func get(t *testing.T, a *Application, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestApp(t)

	rec := get(t, a, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = get(t, a, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)

	rec = get(t, a, "/api/v1/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t)
	get(t, a, "/healthz")

	rec := get(t, a, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "websocket_clients")
	assert.Contains(t, body, "http_requests_total")
}

func TestUnknownRouteIsProblem(t *testing.T) {
	a := newTestApp(t)
	rec := get(t, a, "/api/v1/datasets/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"/errors/not-found"`)
	assert.Contains(t, rec.Body.String(), "DATASET_NOT_FOUND")
}

func TestUploadRunsJob(t *testing.T) {
	a := newTestApp(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "ledger.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(uploadCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var queued struct {
		Data operations.Job `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queued))
	require.NotEmpty(t, queued.Data.ID)

	var job operations.Job
	require.Eventually(t, func() bool {
		rec := get(t, a, "/api/v1/jobs/"+queued.Data.ID)
		if rec.Code != http.StatusOK {
			return false
		}
		var out struct {
			Data operations.Job `json:"data"`
		}
		if json.Unmarshal(rec.Body.Bytes(), &out) != nil {
			return false
		}
		job = out.Data
		return job.Status == operations.JobStatusCompleted || job.Status == operations.JobStatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, operations.JobStatusCompleted, job.Status, job.Error)
	datasetID, _ := job.Result["dataset_id"].(string)
	require.NotEmpty(t, datasetID)

	rec = get(t, a, "/api/v1/datasets/"+datasetID+"/schema")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Amount")
}

func TestWebSocketReceivesDatasetEvents(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.Router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return a.WebSocketHub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/v1/datasets/ingest", "application/json",
		strings.NewReader(`{"type":"json","data":[{"Amount":"10"},{"Amount":"20"}]}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Type string `json:"type"`
			Data struct {
				Name      string `json:"name"`
				DatasetID string `json:"dataset_id"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		if msg.Type != string(contractevents.MessageTypeDatasetEvent) {
			continue
		}
		assert.Equal(t, string(contractevents.DatasetIngested), msg.Data.Name)
		assert.NotEmpty(t, msg.Data.DatasetID)
		return
	}
}

func TestNewRejectsUnknownRuleStore(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	cfg := testConfig(t)
	cfg.RuleStore.Driver = "etcd"

	_, err := New(context.Background(), cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule store")
}

func TestOTelConfigMapping(t *testing.T) {
	oc := otelConfig(config.TelemetryConfig{
		ServiceName:  "engine-test",
		Environment:  "staging",
		StdoutTraces: true,
		SampleRatio:  0.25,
	})
	assert.Equal(t, "engine-test", oc.ServiceName)
	assert.Equal(t, "staging", oc.Environment)
	assert.Equal(t, "stdout", oc.TraceExporter)
	assert.Equal(t, "none", oc.MetricExporter)
	assert.False(t, oc.EnableMetrics)
	assert.Equal(t, 0.25, oc.SampleRatio)
	assert.Equal(t, infrastructure.ServiceVersion, oc.ServiceVersion)
}
