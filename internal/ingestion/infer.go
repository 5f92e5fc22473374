package ingestion

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// missingMarkers are the cell texts read as missing
var missingMarkers = map[string]bool{
	"": true, "NA": true, "N/A": true, "n/a": true, "#N/A": true, "<NA>": true,
	"NaN": true, "nan": true, "-NaN": true, "null": true, "NULL": true, "None": true,
}

// buildTable turns a header and raw text rows into a typed dataset. Each
// column becomes Number when every present cell parses as a number, Bool
// when every present cell is true or false, and Text otherwise. Missing
// cells are Null in every case.
func buildTable(header []string, records [][]string) (*domain.Dataset, error) {
	columns := uniqueHeaders(header, widest(header, records))
	width := len(columns)

	rows := make([][]domain.Value, len(records))
	for i := range rows {
		rows[i] = make([]domain.Value, width)
	}
	for j := 0; j < width; j++ {
		typeColumn(records, rows, j)
	}
	return domain.NewDataset(columns, rows)
}

func widest(header []string, records [][]string) int {
	w := len(header)
	for _, r := range records {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

func cellAt(record []string, j int) (string, bool) {
	if j >= len(record) {
		return "", false
	}
	s := strings.TrimSpace(record[j])
	if missingMarkers[s] {
		return "", false
	}
	return s, true
}

func typeColumn(records [][]string, rows [][]domain.Value, j int) {
	numeric, boolean, present := true, true, 0
	for _, rec := range records {
		s, ok := cellAt(rec, j)
		if !ok {
			continue
		}
		present++
		if numeric {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				numeric = false
			}
		}
		if boolean {
			if _, ok := parseBoolCell(s); !ok {
				boolean = false
			}
		}
		if !numeric && !boolean {
			break
		}
	}

	for i, rec := range records {
		s, ok := cellAt(rec, j)
		if !ok {
			continue
		}
		switch {
		case present > 0 && numeric:
			f, _ := strconv.ParseFloat(s, 64)
			rows[i][j] = domain.Number(f)
		case present > 0 && boolean:
			b, _ := parseBoolCell(s)
			rows[i][j] = domain.Bool(b)
		default:
			// keep the raw text, spacing included
			rows[i][j] = domain.Text(rec[j])
		}
	}
}

func parseBoolCell(s string) (bool, bool) {
	switch s {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	}
	return false, false
}

// uniqueHeaders fills blank headers and suffixes repeats with .1, .2 ...
func uniqueHeaders(header []string, width int) []string {
	out := make([]string, width)
	seen := make(map[string]bool, width)
	repeats := make(map[string]int)
	for j := 0; j < width; j++ {
		name := ""
		if j < len(header) {
			name = strings.TrimSpace(header[j])
		}
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", j)
		}
		if seen[name] {
			base := name
			for seen[name] {
				repeats[base]++
				name = fmt.Sprintf("%s.%d", base, repeats[base])
			}
		}
		seen[name] = true
		out[j] = name
	}
	return out
}
