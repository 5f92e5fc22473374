package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
	NoHeader  bool
}

// WriteCSV writes the header and every row of ds to w
func WriteCSV(w io.Writer, ds *domain.Dataset, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if !options.NoHeader {
		if err := writer.Write(ds.Columns()); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	record := make([]string, ds.Width())
	for i := 0; i < ds.Len(); i++ {
		for j, v := range ds.Row(i) {
			record[j] = formatCell(v)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// CSVWriter writes dataset files below a base directory
type CSVWriter struct {
	baseDir string
	logger  *slog.Logger
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(baseDir string) *CSVWriter {
	return &CSVWriter{
		baseDir: baseDir,
		logger:  slog.Default().With(slog.String("component", "exporter")),
	}
}

// WriteFile writes ds to filePath and returns the resolved path. Relative
// paths are resolved against the base directory.
func (w *CSVWriter) WriteFile(filePath string, ds *domain.Dataset, options WriteOptions) (string, error) {
	fullPath, err := w.resolvePath(filePath)
	if err != nil {
		return "", err
	}

	w.logger.Info("Writing CSV file",
		slog.String("file_path", filePath),
		slog.String("full_path", fullPath),
		slog.Int("record_count", ds.Len()))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteCSV(file, ds, options); err != nil {
		file.Close()
		return "", err
	}
	return fullPath, file.Close()
}

// StreamWriter provides streaming CSV writing for results produced row by row
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
	width  int
}

// CreateStreamWriter creates a new streaming CSV writer
func (w *CSVWriter) CreateStreamWriter(filePath string, headers []string) (*StreamWriter, error) {
	fullPath, err := w.resolvePath(filePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := file.Write(utf8BOM); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(file)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
	}
	return &StreamWriter{file: file, writer: writer, width: len(headers)}, nil
}

// WriteRow writes one row of cells
func (s *StreamWriter) WriteRow(values []domain.Value) error {
	if s.width > 0 && len(values) != s.width {
		return fmt.Errorf("row has %d cells, want %d", len(values), s.width)
	}
	record := make([]string, len(values))
	for i, v := range values {
		record[i] = formatCell(v)
	}
	return s.writer.Write(record)
}

// Close flushes and closes the stream writer
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// resolvePath keeps relative paths inside the base directory
func (w *CSVWriter) resolvePath(filePath string) (string, error) {
	if filepath.IsAbs(filePath) || w.baseDir == "" {
		return filePath, nil
	}
	full := filepath.Join(w.baseDir, filePath)
	rel, err := filepath.Rel(w.baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes export directory", filePath)
	}
	return full, nil
}
