package errors

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	// bodies at or above this size are not kept for the access log
	maxLoggedBody = 1 << 20
	// logged bodies are cut to this many bytes
	bodyPreview = 500
)

// redactedFields are replaced before a request body reaches the log.
// Ingest requests carry upstream credentials in these keys.
var redactedFields = []string{
	"api_key", "apiKey", "token", "secret", "password",
	"headers", "authorization", "credentials", "account_number",
}

// ErrorMiddleware recovers panics as problem responses and writes one
// access log line per request. Failed requests also log their redacted body.
type ErrorMiddleware struct {
	handler *ErrorHandler
	logger  *slog.Logger
}

// NewErrorMiddleware creates the middleware around handler
func NewErrorMiddleware(handler *ErrorHandler, logger *slog.Logger) *ErrorMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorMiddleware{
		handler: handler,
		logger:  logger.With(slog.String("component", "error_middleware")),
	}
}

func (m *ErrorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		body := captureBody(r)
		start := time.Now()

		defer func() {
			if p := recover(); p != nil {
				m.handler.HandlePanic(ww, r, p)
			}
			m.log(r, ww, body, time.Since(start))
		}()

		next.ServeHTTP(ww, r)
	})
}

func (m *ErrorMiddleware) log(r *http.Request, ww middleware.WrapResponseWriter, body []byte, took time.Duration) {
	status := ww.Status()
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", took),
		slog.Int("bytes", ww.BytesWritten()),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	}
	if r.URL.RawQuery != "" {
		attrs = append(attrs, slog.String("query", r.URL.RawQuery))
	}
	if status >= 400 && len(body) > 0 {
		attrs = append(attrs, slog.String("request_body", redactBody(body)))
	}
	m.logger.LogAttrs(r.Context(), level, "http request", attrs...)
}

// captureBody buffers small non-multipart bodies and restores r.Body
func captureBody(r *http.Request) []byte {
	if r.Body == nil || r.ContentLength <= 0 || r.ContentLength >= maxLoggedBody ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		return nil
	}
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

func redactBody(body []byte) string {
	out := string(body)
	var doc map[string]interface{}
	if json.Unmarshal(body, &doc) == nil {
		for _, field := range redactedFields {
			if _, ok := doc[field]; ok {
				doc[field] = "[REDACTED]"
			}
		}
		if b, err := json.Marshal(doc); err == nil {
			out = string(b)
		}
	}
	if len(out) > bodyPreview {
		out = out[:bodyPreview] + "..."
	}
	return out
}
