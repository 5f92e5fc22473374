package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/San-2310/hsbc-hack/internal/exporter"
	"github.com/San-2310/hsbc-hack/internal/ingestion"
	"github.com/San-2310/hsbc-hack/internal/shared/testutil"
)

func TestFileValidator_ValidateInput(t *testing.T) {
	tests := []struct {
		name          string
		setupFunc     func(t *testing.T) string
		want          ingestion.Format
		errorContains string
		errorIs       error
	}{
		{
			name: "csv file",
			setupFunc: func(t *testing.T) string {
				return write(t, "ledger.csv", "a,b\n1,2\n")
			},
			want: ingestion.FormatCSV,
		},
		{
			name: "json file",
			setupFunc: func(t *testing.T) string {
				return write(t, "ledger.json", `[{"a":1}]`)
			},
			want: ingestion.FormatJSON,
		},
		{
			name: "non-existent file",
			setupFunc: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing.csv")
			},
			errorContains: "does not exist",
		},
		{
			name: "directory",
			setupFunc: func(t *testing.T) string {
				return t.TempDir()
			},
			errorContains: "is a directory",
		},
		{
			name: "office lock file",
			setupFunc: func(t *testing.T) string {
				return write(t, "~$ledger.xlsx", "lock")
			},
			errorContains: "temporary office file",
		},
		{
			name: "unsupported extension",
			setupFunc: func(t *testing.T) string {
				return write(t, "notes.doc", "x")
			},
			errorIs: ingestion.ErrUnsupportedFormat,
		},
		{
			name: "empty file",
			setupFunc: func(t *testing.T) string {
				return write(t, "empty.csv", "")
			},
			errorIs: ErrEmptyFile,
		},
		{
			name: "too large",
			setupFunc: func(t *testing.T) string {
				return write(t, "big.csv", "0123456789abcdef0123456789abcdef")
			},
			errorIs: ingestion.ErrFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			v := NewFileValidator(16, logger)

			got, err := v.ValidateInput(tt.setupFunc(t))
			switch {
			case tt.errorIs != nil:
				assert.ErrorIs(t, err, tt.errorIs)
			case tt.errorContains != "":
				assert.ErrorContains(t, err, tt.errorContains)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFileValidator_ValidateInputUnlimited(t *testing.T) {
	v := NewFileValidator(0, nil)
	_, err := v.ValidateInput(write(t, "big.csv", "0123456789abcdef0123456789abcdef"))
	assert.NoError(t, err)
}

func TestFileValidator_ValidateOutputDirectory(t *testing.T) {
	v := NewFileValidator(0, nil)

	dir := filepath.Join(t.TempDir(), "nested", "reports")
	require.NoError(t, v.ValidateOutputDirectory(dir))
	assert.DirExists(t, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "write probe is removed")

	file := write(t, "plain.txt", "x")
	assert.ErrorContains(t, v.ValidateOutputDirectory(filepath.Join(file, "sub")), "failed to create output directory")
}

func TestFileValidator_ValidateOutputFile(t *testing.T) {
	v := NewFileValidator(0, nil)
	dir := t.TempDir()

	format, err := v.ValidateOutputFile(filepath.Join(dir, "out.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, exporter.FormatXLSX, format)

	format, err = v.ValidateOutputFile(filepath.Join(dir, "out", "clean.csv"))
	require.NoError(t, err)
	assert.Equal(t, exporter.FormatCSV, format)
	assert.DirExists(t, filepath.Join(dir, "out"))

	_, err = v.ValidateOutputFile(filepath.Join(dir, "out.pdf"))
	assert.ErrorIs(t, err, exporter.ErrUnsupportedFormat)
}

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
