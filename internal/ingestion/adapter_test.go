package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/San-2310/hsbc-hack/internal/shared/testutil"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

type fakeSheets struct {
	values [][]interface{}
	err    error
	calls  []string
}

func (f *fakeSheets) ReadRange(_ context.Context, id, rng string) ([][]interface{}, error) {
	f.calls = append(f.calls, id+"!"+rng)
	return f.values, f.err
}

func newTestAdapter(t *testing.T, opts ...Option) (*Adapter, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, handler := testutil.NewTestLogger(t)
	a := NewAdapter(Config{RateLimit: 0}, logger, opts...)
	a.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return a, handler
}

func TestIngestFileFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "statement.csv")
	require.NoError(t, os.WriteFile(path, []byte("account,amount\nA1,10\nA2,20\n"), 0o644))

	a, handler := newTestAdapter(t)
	ds, desc, err := a.Ingest(context.Background(), FileSource{Path: path})
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, domain.SourceFile, desc.Kind)
	assert.Equal(t, "csv", desc.Format)
	assert.Equal(t, path, desc.Location)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), desc.IngestedAt)
	testutil.AssertLogContains(t, handler, slog.LevelInfo, "dataset ingested")
}

func TestIngestFileLimits(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	a := NewAdapter(Config{MaxFileSize: 8}, logger)

	_, _, err := a.Ingest(context.Background(), FileSource{
		Reader: strings.NewReader("a,b\n1,2\n3,4\n"), Filename: "upload.csv",
	})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, _, err = a.Ingest(context.Background(), FileSource{
		Reader: strings.NewReader("x"), Filename: "upload.docx",
	})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = a.Ingest(context.Background(), FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIngestAPI(t *testing.T) {
	var gotQuery, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		if r.Method == http.MethodPost {
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"amount":"$5"},{"id":2,"amount":"$7"}]`))
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t)

	ds, desc, err := a.Ingest(context.Background(), APISource{
		URL:     srv.URL + "/tx",
		Headers: map[string]string{"Authorization": "Bearer t"},
		Params:  map[string]string{"from": "2024-01-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "amount"}, ds.Columns())
	assert.Equal(t, "API: "+srv.URL+"/tx", desc.Location)
	assert.Equal(t, "from=2024-01-01", gotQuery)
	assert.Equal(t, "Bearer t", gotAuth)

	_, _, err = a.Ingest(context.Background(), APISource{
		URL: srv.URL, Method: "post", Body: json.RawMessage(`{"account":"A1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"account":"A1"}`, gotBody)
}

func TestIngestAPIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	a, handler := newTestAdapter(t)
	_, _, err := a.Ingest(context.Background(), APISource{URL: srv.URL})
	assert.EqualError(t, err, "API request failed with status 502")
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "ingestion failed")
}

func TestIngestURLSniffsFormat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rates", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<table><tr><th>ccy</th><th>rate</th></tr><tr><td>GBP</td><td>1.2</td></tr></table>`))
	})
	mux.HandleFunc("/export.csv", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("a,b\n1,2\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, _ := newTestAdapter(t)

	ds, desc, err := a.Ingest(context.Background(), URLSource{URL: srv.URL + "/rates"})
	require.NoError(t, err)
	assert.Equal(t, "html", desc.Format)
	assert.Equal(t, "URL: "+srv.URL+"/rates", desc.Location)
	assert.Equal(t, domain.Number(1.2), ds.Cell(0, "rate"))

	_, desc, err = a.Ingest(context.Background(), URLSource{URL: srv.URL + "/export.csv"})
	require.NoError(t, err)
	assert.Equal(t, "csv", desc.Format)

	_, _, err = a.Ingest(context.Background(), URLSource{URL: srv.URL + "/missing"})
	assert.EqualError(t, err, "URL request failed with status 404")
}

func TestIngestInline(t *testing.T) {
	a, _ := newTestAdapter(t)

	ds, desc, err := a.Ingest(context.Background(), InlineSource{Data: json.RawMessage(`{"amount":5,"type":"C"}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, "JSON Input", desc.Location)
	assert.Equal(t, domain.SourceJSON, desc.Kind)

	_, _, err = a.Ingest(context.Background(), InlineSource{Data: json.RawMessage(`42`)})
	assert.Error(t, err)
}

func TestIngestSheets(t *testing.T) {
	a, _ := newTestAdapter(t)
	_, _, err := a.Ingest(context.Background(), SheetsSource{SpreadsheetID: "abc"})
	assert.ErrorIs(t, err, ErrSheetsUnavailable)

	sheets := &fakeSheets{values: [][]interface{}{
		{"account", "amount"},
		{"A1", "10"},
		{"A2"},
	}}
	a, _ = newTestAdapter(t, WithSheetsReader(sheets))
	ds, desc, err := a.Ingest(context.Background(), SheetsSource{SpreadsheetID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc!Sheet1"}, sheets.calls)
	assert.Equal(t, "Sheets: abc/Sheet1", desc.Location)
	assert.Equal(t, []domain.Value{domain.Number(10), domain.Null()}, ds.Column("amount"))

	a, _ = newTestAdapter(t, WithSheetsReader(&fakeSheets{err: errors.New("quota")}))
	_, _, err = a.Ingest(context.Background(), SheetsSource{SpreadsheetID: "abc", Range: "Tx!A:D"})
	assert.EqualError(t, err, "quota")
}

func TestIngestAllKeepsOrder(t *testing.T) {
	a, _ := newTestAdapter(t)
	sources := []Source{
		InlineSource{Data: json.RawMessage(`[{"n":1}]`)},
		InlineSource{Data: json.RawMessage(`[{"n":1},{"n":2}]`)},
		InlineSource{Data: json.RawMessage(`[{"n":1},{"n":2},{"n":3}]`)},
	}
	out, err := a.IngestAll(context.Background(), sources)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, res := range out {
		assert.Equal(t, i+1, res.Dataset.Len())
	}

	_, err = a.IngestAll(context.Background(), append(sources, InlineSource{Data: json.RawMessage(`1`)}))
	assert.ErrorContains(t, err, "source 3")
}

func TestParseSource(t *testing.T) {
	src, err := ParseSource([]byte(`{"type":"api","url":"https://x.test","method":"POST","data":{"a":1}}`))
	require.NoError(t, err)
	api, ok := src.(APISource)
	require.True(t, ok)
	assert.Equal(t, "POST", api.Method)
	assert.JSONEq(t, `{"a":1}`, string(api.Body))

	src, err = ParseSource([]byte(`{"type":"sheets","spreadsheet_id":"s1","range":"A:B"}`))
	require.NoError(t, err)
	assert.Equal(t, SheetsSource{SpreadsheetID: "s1", Range: "A:B"}, src)

	_, err = ParseSource([]byte(`{"type":"url"}`))
	assert.ErrorContains(t, err, "url is required")

	_, err = ParseSource([]byte(`{"type":"ftp"}`))
	assert.ErrorContains(t, err, "unsupported input type")
}
