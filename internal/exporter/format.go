package exporter

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for formats other than csv and xlsx
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat accepts csv or xlsx in any case. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the MIME type served for the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Extension returns the file extension including the dot
func (f Format) Extension() string {
	return "." + string(f)
}

// Export writes ds to w in the given format
func Export(w io.Writer, ds *domain.Dataset, format Format) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, ds, WriteOptions{BOMPrefix: true})
	case FormatXLSX:
		return WriteXLSX(w, ds, "")
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// formatCell renders one cell for CSV output. Null is the empty string.
func formatCell(v domain.Value) string {
	return v.String()
}
