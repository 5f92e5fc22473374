package dataprocessing

import (
	"log/slog"
	"math"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

const (
	// sampleValueLimit is the number of example values kept per column
	sampleValueLimit = 5

	// nullColumnThreshold is the null percentage above which a column is flagged
	nullColumnThreshold = 50.0

	// DefaultMaxPreviewRows caps preview requests
	DefaultMaxPreviewRows = 1000
)

var currencyNameKeywords = []string{"amount", "price", "cost", "revenue", "income", "expense"}

var currencyValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$[\d,]+\.?\d*`),
	regexp.MustCompile(`[\d,]+\.?\d*\s*[A-Z]{3}`),
	regexp.MustCompile(`[A-Z]{3}\s*[\d,]+\.?\d*`),
}

// ProfilerConfig tunes the schema profiler
type ProfilerConfig struct {
	MaxPreviewRows int
}

// Profiler builds schema documents for datasets
type Profiler struct {
	logger *slog.Logger
	config ProfilerConfig
}

// NewProfiler creates a profiler
func NewProfiler(logger *slog.Logger, config ProfilerConfig) *Profiler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxPreviewRows <= 0 {
		config.MaxPreviewRows = DefaultMaxPreviewRows
	}
	return &Profiler{
		logger: logger.With(slog.String("component", "profiler")),
		config: config,
	}
}

// DetectSchema profiles every column of ds. It never fails; an empty
// dataset yields unknown columns with zero statistics.
func (p *Profiler) DetectSchema(ds *domain.Dataset) domain.SchemaDocument {
	columns := ds.Columns()
	doc := domain.SchemaDocument{
		TotalRows:       ds.Len(),
		TotalColumns:    len(columns),
		ColumnOrder:     columns,
		Columns:         make(map[string]domain.ColumnProfile, len(columns)),
		Patterns:        make(map[string]domain.PatternFamily),
		DateColumns:     []string{},
		NumericColumns:  []string{},
		CurrencyColumns: []string{},
		DataQuality: domain.DataQuality{
			NullColumns:       []domain.NullColumn{},
			InconsistentTypes: []domain.TypeIssue{},
		},
	}

	for _, col := range columns {
		values := ds.Column(col)
		profile := profileColumn(values)
		if pattern := DetectPattern(col); pattern != domain.PatternNone {
			profile.Pattern = pattern
			doc.Patterns[col] = pattern
		}
		doc.Columns[col] = profile

		switch profile.Type {
		case domain.TypeDatetime:
			doc.DateColumns = append(doc.DateColumns, col)
		case domain.TypeNumeric:
			doc.NumericColumns = append(doc.NumericColumns, col)
		}
		if isCurrencyColumn(col, values) {
			doc.CurrencyColumns = append(doc.CurrencyColumns, col)
		}
		if profile.NullPercentage > nullColumnThreshold {
			doc.DataQuality.NullColumns = append(doc.DataQuality.NullColumns, domain.NullColumn{
				Column:         col,
				NullPercentage: profile.NullPercentage,
			})
		}
		if textHoldsNumbers(values) {
			doc.DataQuality.InconsistentTypes = append(doc.DataQuality.InconsistentTypes, domain.TypeIssue{
				Column: col,
				Issue:  "Object column contains numeric data",
			})
		}
	}
	doc.DataQuality.DuplicateRows = CountDuplicateRows(ds)

	p.logger.Debug("schema detected",
		slog.Int("rows", doc.TotalRows),
		slog.Int("columns", doc.TotalColumns),
		slog.Int("duplicate_rows", doc.DataQuality.DuplicateRows),
		slog.Int("null_columns", len(doc.DataQuality.NullColumns)),
	)
	return doc
}

// Preview returns at most n leading rows, bounded by the configured cap
func (p *Profiler) Preview(ds *domain.Dataset, n int) *domain.Dataset {
	if n <= 0 || n > p.config.MaxPreviewRows {
		n = p.config.MaxPreviewRows
	}
	return ds.Head(n)
}

func profileColumn(values []domain.Value) domain.ColumnProfile {
	profile := domain.ColumnProfile{
		Type:         DetectType(values),
		SampleValues: []domain.Value{},
	}
	for _, v := range values {
		if v.IsNull() {
			profile.NullCount++
			continue
		}
		if len(profile.SampleValues) < sampleValueLimit {
			profile.SampleValues = append(profile.SampleValues, v)
		}
	}
	profile.UniqueCount = distinctCount(values)
	if len(values) > 0 {
		profile.NullPercentage = round2(float64(profile.NullCount) / float64(len(values)) * 100)
	}
	return profile
}

func isCurrencyColumn(name string, values []domain.Value) bool {
	lower := strings.ToLower(name)
	for _, kw := range currencyNameKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	checked := 0
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if checked == detectionSampleSize {
			break
		}
		checked++
		s := v.String()
		for _, re := range currencyValuePatterns {
			if re.MatchString(s) {
				return true
			}
		}
	}
	return false
}

// textHoldsNumbers reports a text-stored column whose sampled values are all numeric
func textHoldsNumbers(values []domain.Value) bool {
	checked := 0
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if v.Kind() != domain.KindText {
			return false
		}
		if checked == detectionSampleSize {
			break
		}
		checked++
		if _, ok := v.Float(); !ok {
			return false
		}
	}
	return checked > 0
}

// CountDuplicateRows counts rows equal across all columns to an earlier row
func CountDuplicateRows(ds *domain.Dataset) int {
	seen := make(map[[32]byte]struct{}, ds.Len())
	dups := 0
	width := ds.Width()
	var buf []byte
	for i := 0; i < ds.Len(); i++ {
		buf = buf[:0]
		for j := 0; j < width; j++ {
			buf = append(buf, ds.At(i, j).Key()...)
			buf = append(buf, 0x1f)
		}
		sum := blake2b.Sum256(buf)
		if _, ok := seen[sum]; ok {
			dups++
			continue
		}
		seen[sum] = struct{}{}
	}
	return dups
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
