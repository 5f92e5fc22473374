package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// DefaultSheetName names the exported worksheet
const DefaultSheetName = "Data"

// WriteXLSX writes ds as a single-sheet workbook. Numbers and booleans keep
// their cell types; timestamps are written as text in the CSV layout.
func WriteXLSX(w io.Writer, ds *domain.Dataset, sheet string) error {
	if sheet == "" {
		sheet = DefaultSheetName
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	header := make([]interface{}, ds.Width())
	for j, name := range ds.Columns() {
		header[j] = excelize.Cell{StyleID: bold, Value: name}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	row := make([]interface{}, ds.Width())
	for i := 0; i < ds.Len(); i++ {
		for j, v := range ds.Row(i) {
			row[j] = xlsxCell(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	return f.Write(w)
}

func xlsxCell(v domain.Value) interface{} {
	switch v.Kind() {
	case domain.KindNull:
		return nil
	case domain.KindNumber:
		f, _ := v.AsNumber()
		return f
	case domain.KindBool:
		b, _ := v.AsBool()
		return b
	default:
		return v.String()
	}
}
