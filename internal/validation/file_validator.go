// Package validation checks local files before the engine touches them.
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/San-2310/hsbc-hack/internal/exporter"
	"github.com/San-2310/hsbc-hack/internal/ingestion"
)

// ErrEmptyFile is returned for zero-length inputs
var ErrEmptyFile = errors.New("file is empty")

// FileValidator validates input files and output locations
type FileValidator struct {
	maxSize int64
	logger  *slog.Logger
}

// NewFileValidator creates a new file validator. maxSize <= 0 disables the
// size check.
func NewFileValidator(maxSize int64, logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		maxSize: maxSize,
		logger:  logger.With(slog.String("component", "file_validator")),
	}
}

// ValidateFile checks that path is an existing, readable regular file
func (v *FileValidator) ValidateFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist", slog.String("file", path))
		return nil, fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("File is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()
	return info, nil
}

// ValidateInput checks an input file: readable, non-empty, within the size
// limit, not an office lock file, and in a format the ingestion adapter
// reads.
func (v *FileValidator) ValidateInput(path string) (ingestion.Format, error) {
	info, err := v.ValidateFile(path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return "", fmt.Errorf("file %s is a temporary office file", path)
	}
	format, err := ingestion.FormatFromName(path)
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	if v.maxSize > 0 && info.Size() > v.maxSize {
		return "", fmt.Errorf("%s: %w", path, ingestion.ErrFileTooLarge)
	}

	v.logger.Debug("Input validated",
		slog.String("file", path),
		slog.String("format", string(format)),
		slog.Int64("size", info.Size()))
	return format, nil
}

// ValidateOutputDirectory ensures dir exists or can be created, and is writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".write_test*")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// ValidateOutputFile checks that path names an export format and that its
// directory is writable
func (v *FileValidator) ValidateOutputFile(path string) (exporter.Format, error) {
	format, err := exporter.ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return "", fmt.Errorf("output %s: %w", path, err)
	}
	if err := v.ValidateOutputDirectory(filepath.Dir(path)); err != nil {
		return "", err
	}
	return format, nil
}
