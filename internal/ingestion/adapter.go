// Package ingestion turns files, HTTP endpoints, inline JSON and Google
// Sheets ranges into datasets.
package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// DefaultMaxFileSize is the largest payload accepted, 100 MiB
const DefaultMaxFileSize int64 = 100 << 20

// maxConcurrentSources bounds IngestAll
const maxConcurrentSources = 4

// ErrFileTooLarge is returned for payloads above Config.MaxFileSize
var ErrFileTooLarge = errors.New("file too large")

// Config controls limits and outbound traffic
type Config struct {
	MaxFileSize int64
	HTTPTimeout time.Duration
	// RateLimit is outbound requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// DefaultConfig returns the limits used when none are configured
func DefaultConfig() Config {
	return Config{
		MaxFileSize: DefaultMaxFileSize,
		HTTPTimeout: 30 * time.Second,
		RateLimit:   5,
		RateBurst:   10,
	}
}

// Adapter ingests sources into datasets
type Adapter struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	sheets  SheetsReader
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes an Adapter
type Option func(*Adapter)

// WithHTTPClient replaces the outbound HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithSheetsReader enables SheetsSource
func WithSheetsReader(r SheetsReader) Option {
	return func(a *Adapter) { a.sheets = r }
}

// NewAdapter creates an adapter. Zero config fields take their defaults.
func NewAdapter(cfg Config, logger *slog.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = def.HTTPTimeout
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	a := &Adapter{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: rate.NewLimiter(limit, cfg.RateBurst),
		logger:  logger.With(slog.String("component", "ingestion")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ingest reads src into a dataset and describes where it came from
func (a *Adapter) Ingest(ctx context.Context, src Source) (*domain.Dataset, domain.SourceDescriptor, error) {
	start := time.Now()
	var (
		ds   *domain.Dataset
		desc domain.SourceDescriptor
		err  error
	)
	switch s := src.(type) {
	case FileSource:
		ds, desc, err = a.ingestFile(s)
	case *FileSource:
		ds, desc, err = a.ingestFile(*s)
	case APISource:
		ds, desc, err = a.ingestAPI(ctx, s)
	case URLSource:
		ds, desc, err = a.ingestURL(ctx, s)
	case InlineSource:
		ds, desc, err = a.ingestInline(s)
	case SheetsSource:
		ds, desc, err = a.ingestSheets(ctx, s)
	default:
		err = fmt.Errorf("unsupported source %T", src)
	}
	if err != nil {
		a.logger.WarnContext(ctx, "ingestion failed",
			slog.String("kind", kindOf(src)),
			slog.String("error", err.Error()))
		return nil, domain.SourceDescriptor{}, err
	}

	desc.Kind = src.Kind()
	desc.IngestedAt = a.now().UTC()
	a.logger.InfoContext(ctx, "dataset ingested",
		slog.String("kind", string(desc.Kind)),
		slog.String("location", desc.Location),
		slog.Int("rows", ds.Len()),
		slog.Int("columns", ds.Width()),
		slog.Duration("duration", time.Since(start)))
	return ds, desc, nil
}

func kindOf(src Source) string {
	if src == nil {
		return "unknown"
	}
	return string(src.Kind())
}

// Ingested is one result of IngestAll
type Ingested struct {
	Dataset *domain.Dataset
	Source  domain.SourceDescriptor
}

// IngestAll ingests sources concurrently. Results keep the input order.
// The first failure cancels the remaining sources.
func (a *Adapter) IngestAll(ctx context.Context, sources []Source) ([]Ingested, error) {
	out := make([]Ingested, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSources)
	for i, src := range sources {
		g.Go(func() error {
			ds, desc, err := a.Ingest(gctx, src)
			if err != nil {
				return fmt.Errorf("source %d: %w", i, err)
			}
			out[i] = Ingested{Dataset: ds, Source: desc}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) tooLarge(size int64) error {
	return fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, size, a.cfg.MaxFileSize)
}

// readLimited reads r fully, failing once more than MaxFileSize bytes arrive
func (a *Adapter) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, a.cfg.MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > a.cfg.MaxFileSize {
		return nil, a.tooLarge(int64(len(data)))
	}
	return data, nil
}

func (a *Adapter) ingestFile(s FileSource) (*domain.Dataset, domain.SourceDescriptor, error) {
	name := s.name()
	format, err := FormatFromName(name)
	if err != nil {
		return nil, domain.SourceDescriptor{}, err
	}

	var data []byte
	if s.Reader != nil {
		data, err = a.readLimited(s.Reader)
	} else {
		var info os.FileInfo
		info, err = os.Stat(s.Path)
		if err != nil {
			return nil, domain.SourceDescriptor{}, fmt.Errorf("stat %s: %w", s.Path, err)
		}
		if info.Size() > a.cfg.MaxFileSize {
			return nil, domain.SourceDescriptor{}, a.tooLarge(info.Size())
		}
		data, err = os.ReadFile(s.Path)
	}
	if err != nil {
		return nil, domain.SourceDescriptor{}, fmt.Errorf("read %s: %w", name, err)
	}

	ds, err := decode(format, data)
	if err != nil {
		return nil, domain.SourceDescriptor{}, fmt.Errorf("error reading file: %w", err)
	}
	return ds, domain.SourceDescriptor{
		Location: name,
		Filename: name,
		Format:   string(format),
		Size:     int64(len(data)),
	}, nil
}

// fetch performs a rate limited request and returns the body of a 200 response
func (a *Adapter) fetch(ctx context.Context, req *http.Request, label string) ([]byte, string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HTTPTimeout)
	defer cancel()

	resp, err := a.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, "", fmt.Errorf("%s request failed: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("%s request failed with status %d", label, resp.StatusCode)
	}
	body, err := a.readLimited(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (a *Adapter) ingestAPI(ctx context.Context, s APISource) (*domain.Dataset, domain.SourceDescriptor, error) {
	method := strings.ToUpper(s.Method)
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.Parse(s.URL)
	if err != nil {
		return nil, domain.SourceDescriptor{}, fmt.Errorf("invalid url %q: %w", s.URL, err)
	}

	var req *http.Request
	switch method {
	case http.MethodGet:
		q := target.Query()
		for k, v := range s.Params {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	case http.MethodPost:
		body := s.Body
		if len(body) == 0 {
			body = []byte("{}")
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	default:
		return nil, domain.SourceDescriptor{}, fmt.Errorf("unsupported method %q", s.Method)
	}
	if err != nil {
		return nil, domain.SourceDescriptor{}, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	body, contentType, err := a.fetch(ctx, req, "API")
	if err != nil {
		return nil, domain.SourceDescriptor{}, err
	}
	ds, err := decodeJSON(body)
	if err != nil {
		return nil, domain.SourceDescriptor{}, fmt.Errorf("decode API response: %w", err)
	}
	return ds, domain.SourceDescriptor{
		Location:    "API: " + s.URL,
		Format:      string(FormatJSON),
		Size:        int64(len(body)),
		ContentType: contentType,
	}, nil
}

func (a *Adapter) ingestURL(ctx context.Context, s URLSource) (*domain.Dataset, domain.SourceDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, domain.SourceDescriptor{}, fmt.Errorf("invalid url %q: %w", s.URL, err)
	}
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	body, contentType, err := a.fetch(ctx, req, "URL")
	if err != nil {
		return nil, domain.SourceDescriptor{}, err
	}
	format := sniffFormat(s.URL, contentType, body)
	ds, err := decode(format, body)
	if err != nil {
		return nil, domain.SourceDescriptor{}, fmt.Errorf("decode %s from %s: %w", format, s.URL, err)
	}
	return ds, domain.SourceDescriptor{
		Location:    "URL: " + s.URL,
		Format:      string(format),
		Size:        int64(len(body)),
		ContentType: contentType,
	}, nil
}

func (a *Adapter) ingestInline(s InlineSource) (*domain.Dataset, domain.SourceDescriptor, error) {
	data := bytes.TrimSpace(s.Data)
	if int64(len(data)) > a.cfg.MaxFileSize {
		return nil, domain.SourceDescriptor{}, a.tooLarge(int64(len(data)))
	}

	var (
		ds  *domain.Dataset
		err error
	)
	switch {
	case len(data) > 0 && data[0] == '[':
		ds, err = recordsFromArray(data)
	case len(data) > 0 && data[0] == '{':
		var obj orderedObject
		obj, err = decodeObject(data)
		if err == nil {
			ds, err = recordsToDataset([]orderedObject{obj})
		}
	default:
		err = errors.New("data must be a JSON object or an array of objects")
	}
	if err != nil {
		return nil, domain.SourceDescriptor{}, err
	}
	return ds, domain.SourceDescriptor{
		Location: "JSON Input",
		Format:   string(FormatJSON),
		Size:     int64(len(data)),
	}, nil
}

func (a *Adapter) ingestSheets(ctx context.Context, s SheetsSource) (*domain.Dataset, domain.SourceDescriptor, error) {
	if a.sheets == nil {
		return nil, domain.SourceDescriptor{}, ErrSheetsUnavailable
	}
	readRange := s.Range
	if readRange == "" {
		readRange = defaultSheetRange
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, domain.SourceDescriptor{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HTTPTimeout)
	defer cancel()

	values, err := a.sheets.ReadRange(ctx, s.SpreadsheetID, readRange)
	if err != nil {
		return nil, domain.SourceDescriptor{}, err
	}
	header, records := sheetRows(values)
	if len(header) == 0 {
		return nil, domain.SourceDescriptor{}, ErrNoColumns
	}
	ds, err := buildTable(header, records)
	if err != nil {
		return nil, domain.SourceDescriptor{}, err
	}
	return ds, domain.SourceDescriptor{
		Location: fmt.Sprintf("Sheets: %s/%s", s.SpreadsheetID, readRange),
		Format:   "sheets",
	}, nil
}
