package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/San-2310/hsbc-hack/internal/errors"
	"github.com/San-2310/hsbc-hack/internal/infrastructure"
	"github.com/San-2310/hsbc-hack/internal/shared/testutil"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func TestRequestID(t *testing.T) {
	var seen, chiSeen, traceSeen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		chiSeen = chimw.GetReqID(r.Context())
		traceSeen = infrastructure.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", chiSeen)
	assert.Equal(t, "abc-123", traceSeen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "abc-123", seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestGetRequestIDFallsBackToTrace(t *testing.T) {
	ctx := infrastructure.WithTraceID(context.Background(), "trace-9")
	assert.Equal(t, "trace-9", GetRequestID(ctx))
}

func TestStructuredLogger(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	h := RequestID(StructuredLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/datasets", nil))

	testutil.AssertLogContains(t, handler, slog.LevelError, "request completed")
	testutil.AssertLogAttr(t, handler, "path", "/api/v1/datasets")
}

func TestRecoverer(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	h := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(500), body["status"])
	testutil.AssertLogContains(t, handler, slog.LevelError, "panic recovered")
}

func TestRateLimiterPerClient(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	rl := NewRateLimiter(1, 2, logger)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	h := rl.Handler(http.HandlerFunc(okHandler))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002"))
	// A different client has its own bucket
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000"))

	fixed = fixed.Add(time.Second)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1003"))

	testutil.AssertLogContains(t, handler, slog.LevelWarn, "rate limit exceeded")
}

func TestRateLimiterDisabled(t *testing.T) {
	h := NewRateLimiter(0, 0, nil).Handler(http.HandlerFunc(okHandler))
	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestMaxBodySize(t *testing.T) {
	var readErr error
	h := MaxBodySize(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, readErr, &maxErr)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("012")))
	assert.NoError(t, readErr)
}

func TestCORS(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/rules", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "300", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestOTelMiddlewareRecordsRoute(t *testing.T) {
	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = providers.Shutdown(context.Background()) })

	metrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(NewOTelMiddleware(providers.Tracer, metrics, nil).Handler)
	r.Get("/api/v1/datasets/{id}", okHandler)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ds-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	mrec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(mrec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := mrec.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, `/api/v1/datasets/{id}`)
}

func TestGetRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:5"
	assert.Equal(t, "1.2.3.4:5", GetRealIP(req))
	req.Header.Set("X-Real-IP", "9.9.9.9")
	assert.Equal(t, "9.9.9.9", GetRealIP(req))
	req.Header.Set("X-Forwarded-For", "8.8.8.8")
	assert.Equal(t, "8.8.8.8", GetRealIP(req))
}

type saveRuleRequest struct {
	Kind string `json:"kind" validate:"required,rule_kind"`
	Name string `json:"name" validate:"required,filename"`
	From string `json:"from" validate:"omitempty,iso8601"`
}

func TestValidateStruct(t *testing.T) {
	v := NewValidationMiddleware(nil, apierrors.NewErrorHandler(nil, false), 0)

	assert.NoError(t, v.ValidateStruct(saveRuleRequest{Kind: "flag", Name: "big_tx", From: "2024-02-29"}))

	err := v.ValidateStruct(saveRuleRequest{Kind: "bogus", Name: "../etc", From: "2023-02-30"})
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	details, ok := apiErr.Details.(apierrors.ValidationErrors)
	require.True(t, ok)
	fields := map[string]string{}
	for _, d := range details.Errors {
		fields[d.Field] = d.Message
	}
	assert.Contains(t, fields["kind"], "normalization, aggregation, flag, validation")
	assert.Equal(t, "name must be a valid filename", fields["name"])
	assert.Equal(t, "from must be a valid ISO8601 date", fields["from"])
}

func TestValidateRequestRejectsBadJSON(t *testing.T) {
	v := NewValidationMiddleware(nil, apierrors.NewErrorHandler(nil, false), 16)
	h := v.ValidateRequest(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{nope")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"0123456789abcdef"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireContentType(t *testing.T) {
	v := NewValidationMiddleware(nil, apierrors.NewErrorHandler(nil, false), 0)
	h := v.RequireContentType("application/json")(http.HandlerFunc(okHandler))

	post := func(contentType string) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, post("application/json; charset=utf-8"))
	assert.Equal(t, http.StatusBadRequest, post(""))
	assert.Equal(t, http.StatusUnsupportedMediaType, post("text/plain"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseISO8601(t *testing.T) {
	d, err := ParseISO8601("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, 29, d.Day())

	ts, err := ParseISO8601("2024-03-01T08:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 6, ts.UTC().Hour())

	_, err = ParseISO8601("01/03/2024")
	assert.Error(t, err)
}

func TestQueryParamValidator(t *testing.T) {
	v := NewQueryParamValidator(nil, apierrors.NewErrorHandler(nil, false))

	req := httptest.NewRequest(http.MethodGet, "/?rows=25&format=xlsx", nil)
	n, ok := v.ValidateInt(httptest.NewRecorder(), req, "rows", 1, 1000, 10)
	assert.True(t, ok)
	assert.Equal(t, 25, n)

	f, ok := v.ValidateEnum(httptest.NewRecorder(), req, "format", []string{"csv", "xlsx"}, "csv")
	assert.True(t, ok)
	assert.Equal(t, "xlsx", f)

	rec := httptest.NewRecorder()
	_, ok = v.ValidateInt(rec, httptest.NewRequest(http.MethodGet, "/?rows=5000", nil), "rows", 1, 1000, 10)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	n, ok = v.ValidateInt(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), "rows", 1, 1000, 10)
	assert.True(t, ok)
	assert.Equal(t, 10, n)
}
