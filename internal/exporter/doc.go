// Package exporter writes datasets as CSV or XLSX.
//
// CSVWriter streams a dataset to any io.Writer, optionally with a UTF-8 BOM
// so Excel detects the encoding, and can write files below a base
// directory. WriteXLSX builds a single-sheet workbook with a bold header
// row through the excelize stream writer.
//
// Example usage:
//
//	w := exporter.NewCSVWriter("/var/lib/hsbc/exports")
//	path, err := w.WriteFile("monthly/summary.csv", ds, exporter.WriteOptions{BOMPrefix: true})
//
//	err = exporter.Export(resp, ds, exporter.FormatXLSX)
package exporter
