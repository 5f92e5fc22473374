package ingestion

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// Format names a decodable payload layout
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// Decoding errors
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoColumns         = errors.New("no columns to parse from input")
	ErrNoTable           = errors.New("no table found in HTML document")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FormatFromName maps a file name extension to a format
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xls", ".xlsm":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	case ".html", ".htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path.Ext(name))
}

// sniffFormat picks a format for downloaded content: URL extension first,
// then content type, then a JSON parse, then markup, finally CSV.
func sniffFormat(rawURL, contentType string, body []byte) Format {
	if u, err := url.Parse(rawURL); err == nil {
		if f, err := FormatFromName(u.Path); err == nil {
			return f
		}
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case mt == "text/csv" || mt == "application/csv":
			return FormatCSV
		case mt == "application/json" || strings.HasSuffix(mt, "+json"):
			return FormatJSON
		case mt == "text/html" || mt == "application/xhtml+xml":
			return FormatHTML
		case strings.Contains(mt, "spreadsheetml") || mt == "application/vnd.ms-excel":
			return FormatXLSX
		}
	}
	trimmed := bytes.TrimSpace(body)
	if json.Valid(trimmed) && len(trimmed) > 0 {
		return FormatJSON
	}
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return FormatHTML
	}
	return FormatCSV
}

// decode dispatches on format
func decode(format Format, data []byte) (*domain.Dataset, error) {
	switch format {
	case FormatCSV:
		return decodeCSV(data)
	case FormatXLSX:
		return decodeXLSX(data)
	case FormatJSON:
		return decodeJSON(data)
	case FormatHTML:
		return decodeHTML(data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// toUTF8 strips a byte order mark and decodes legacy single-byte text.
// Windows-1252 is a superset of the printable ISO-8859-1 range, so one
// decoder serves both.
func toUTF8(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

func decodeCSV(data []byte) (*domain.Dataset, error) {
	data = toUTF8(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoColumns
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, rec)
	}
	return buildTable(header, records)
}

// decodeXLSX reads the first sheet. The first row is the header.
func decodeXLSX(data []byte) (*domain.Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoColumns
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrNoColumns
	}
	return buildTable(rows[0], rows[1:])
}

// decodeJSON accepts an array of objects, an object with a "data" array or
// a single object. Columns keep first-seen key order across records.
func decodeJSON(data []byte) (*domain.Dataset, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(data) == 0 {
		return nil, ErrNoColumns
	}

	switch data[0] {
	case '[':
		return recordsFromArray(data)
	case '{':
		obj, err := decodeObject(data)
		if err != nil {
			return nil, err
		}
		if inner, ok := obj.get("data"); ok && len(obj.keys) == 1 {
			trimmed := bytes.TrimSpace(inner)
			if len(trimmed) > 0 && trimmed[0] == '[' {
				return recordsFromArray(trimmed)
			}
		}
		return recordsToDataset([]orderedObject{obj})
	}
	return nil, fmt.Errorf("expected a JSON array or object, got %q", string(data[:1]))
}

type orderedObject struct {
	keys   []string
	values map[string]json.RawMessage
}

func (o orderedObject) get(key string) (json.RawMessage, bool) {
	v, ok := o.values[key]
	return v, ok
}

func decodeObject(data []byte) (orderedObject, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return orderedObject{}, fmt.Errorf("decode json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return orderedObject{}, fmt.Errorf("decode json: expected object")
	}
	obj := orderedObject{values: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return orderedObject{}, fmt.Errorf("decode json: %w", err)
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return orderedObject{}, fmt.Errorf("decode json field %q: %w", key, err)
		}
		if _, dup := obj.values[key]; !dup {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return orderedObject{}, fmt.Errorf("decode json: %w", err)
	}
	return obj, nil
}

func recordsFromArray(data []byte) (*domain.Dataset, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	objects := make([]orderedObject, 0, len(items))
	for i, item := range items {
		obj, err := decodeObject(item)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		objects = append(objects, obj)
	}
	return recordsToDataset(objects)
}

func recordsToDataset(objects []orderedObject) (*domain.Dataset, error) {
	var columns []string
	seen := make(map[string]bool)
	for _, obj := range objects {
		for _, k := range obj.keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}

	records := make([]map[string]domain.Value, len(objects))
	for i, obj := range objects {
		rec := make(map[string]domain.Value, len(obj.keys))
		for _, k := range obj.keys {
			var v domain.Value
			if err := json.Unmarshal(obj.values[k], &v); err != nil {
				return nil, fmt.Errorf("record %d field %q: %w", i, k, err)
			}
			rec[k] = v
		}
		records[i] = rec
	}
	return domain.FromRecords(columns, records)
}

// decodeHTML reads the first <table>. Header cells come from <thead>, or
// from the first row when the table has none.
func decodeHTML(data []byte) (*domain.Dataset, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(toUTF8(data)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	cells := func(row *goquery.Selection) []string {
		var out []string
		row.Find("th, td").Each(func(_ int, c *goquery.Selection) {
			out = append(out, strings.TrimSpace(c.Text()))
		})
		return out
	}

	var header []string
	var records [][]string
	if head := table.Find("thead tr").First(); head.Length() > 0 {
		header = cells(head)
		table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
			records = append(records, cells(row))
		})
	} else {
		table.Find("tr").Each(func(i int, row *goquery.Selection) {
			if i == 0 {
				header = cells(row)
				return
			}
			records = append(records, cells(row))
		})
	}
	if len(header) == 0 {
		return nil, ErrNoColumns
	}
	return buildTable(header, records)
}
