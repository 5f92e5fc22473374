package ingestion

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrSheetsUnavailable is returned when no sheets reader is configured
var ErrSheetsUnavailable = errors.New("google sheets access is not configured")

// defaultSheetRange is read when a SheetsSource names no range
const defaultSheetRange = "Sheet1"

// SheetsReader reads a range of cell values
type SheetsReader interface {
	ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error)
}

// GoogleSheets reads ranges through the Sheets v4 API
type GoogleSheets struct {
	service *sheets.Service
}

// NewGoogleSheets creates a read-only Sheets client from a service account
// credentials file, or from an API key for public sheets.
func NewGoogleSheets(ctx context.Context, credentialsFile, apiKey string) (*GoogleSheets, error) {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}
	switch {
	case credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	case apiKey != "":
		opts = append(opts, option.WithAPIKey(apiKey))
	default:
		return nil, ErrSheetsUnavailable
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &GoogleSheets{service: service}, nil
}

func (g *GoogleSheets) ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	resp, err := g.service.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet range %s: %w", readRange, err)
	}
	return resp.Values, nil
}

// sheetRows converts API cell values into header and text rows
func sheetRows(values [][]interface{}) ([]string, [][]string) {
	if len(values) == 0 {
		return nil, nil
	}
	toStrings := func(row []interface{}) []string {
		out := make([]string, len(row))
		for i, c := range row {
			if c != nil {
				out[i] = fmt.Sprint(c)
			}
		}
		return out
	}
	header := toStrings(values[0])
	records := make([][]string, 0, len(values)-1)
	for _, row := range values[1:] {
		records = append(records, toStrings(row))
	}
	return header, records
}
