package ingestion

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// Source describes where a dataset comes from. The set of sources is closed:
// FileSource, APISource, URLSource, InlineSource and SheetsSource.
type Source interface {
	Kind() domain.SourceKind
}

// FileSource reads a local file, or an already open reader named Filename
type FileSource struct {
	Path     string
	Reader   io.Reader
	Filename string
}

// APISource calls a JSON endpoint
type APISource struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Body    json.RawMessage   `json:"data,omitempty"`
}

// URLSource downloads a file and sniffs its format
type URLSource struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// InlineSource carries records in the request itself
type InlineSource struct {
	Data json.RawMessage `json:"data"`
}

// SheetsSource reads a Google Sheets range. The first row is the header.
type SheetsSource struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Range         string `json:"range,omitempty"`
}

func (FileSource) Kind() domain.SourceKind   { return domain.SourceFile }
func (APISource) Kind() domain.SourceKind    { return domain.SourceAPI }
func (URLSource) Kind() domain.SourceKind    { return domain.SourceURL }
func (InlineSource) Kind() domain.SourceKind { return domain.SourceJSON }
func (SheetsSource) Kind() domain.SourceKind { return domain.SourceSheets }

// name returns the file name used for format detection
func (f FileSource) name() string {
	if f.Filename != "" {
		return f.Filename
	}
	return f.Path
}

// ParseSource decodes a request body of the form {"type": "api"|"url"|"json"|"sheets", ...}
func ParseSource(data []byte) (Source, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}

	var (
		src Source
		err error
	)
	switch strings.ToLower(head.Type) {
	case "api":
		var s APISource
		err = json.Unmarshal(data, &s)
		if err == nil && s.URL == "" {
			err = fmt.Errorf("url is required")
		}
		src = s
	case "url":
		var s URLSource
		err = json.Unmarshal(data, &s)
		if err == nil && s.URL == "" {
			err = fmt.Errorf("url is required")
		}
		src = s
	case "json":
		var s InlineSource
		err = json.Unmarshal(data, &s)
		if err == nil && len(s.Data) == 0 {
			err = fmt.Errorf("data is required")
		}
		src = s
	case "sheets":
		var s SheetsSource
		err = json.Unmarshal(data, &s)
		if err == nil && s.SpreadsheetID == "" {
			err = fmt.Errorf("spreadsheet_id is required")
		}
		src = s
	default:
		return nil, fmt.Errorf("unsupported input type: %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s source: %w", head.Type, err)
	}
	return src, nil
}
