// Package dataprocessing profiles and normalizes tabular financial data.
//
// # Components
//
//   - Detector: semantic column types (date, numeric, currency, boolean,
//     text) and HSBC column pattern families from headers
//   - Profiler: per-column statistics, data quality and the schema document
//   - Normalizer: ordered normalization rules with a human-readable log
//
// # Usage
//
//	profiler := dataprocessing.NewProfiler(logger, dataprocessing.ProfilerConfig{})
//	schema := profiler.DetectSchema(ds)
//
//	n := dataprocessing.NewNormalizer(logger)
//	out, log := n.Normalize(ds, rules)
//
// Rules decode from JSON with ParseNormalizationRule; the "type" member
// selects the rule.
//
// # Values
//
// Cells are domain.Value. Amount parsing goes through shopspring/decimal so
// "$1,200.50" and "(45.00)" survive without float rounding; dates accept
// the ISO, day-first and month-name layouts listed in dates.go.
package dataprocessing
