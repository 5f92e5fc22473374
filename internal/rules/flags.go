package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/San-2310/hsbc-hack/internal/aggregation"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// FlagKind selects the flag evaluator
type FlagKind string

const (
	FlagThreshold FlagKind = "threshold"
	FlagOutlier   FlagKind = "outlier"
	FlagPattern   FlagKind = "pattern"
)

// Outlier methods
const (
	OutlierIQR    = "iqr"
	OutlierZScore = "zscore"
)

// Pattern match types
const (
	PatternRegex    = "regex"
	PatternExact    = "exact"
	PatternContains = "contains"
)

const zScoreLimit = 3.0

// FlagConfig is the stored form of a flag rule
type FlagConfig struct {
	Type     FlagKind `json:"type"`
	Column   string   `json:"column,omitempty"`
	FlagName string   `json:"flag_name,omitempty"`

	// threshold
	Threshold *domain.Value `json:"threshold,omitempty"`
	Operator  string        `json:"operator,omitempty"`

	// outlier
	Method string `json:"method,omitempty"`

	// pattern
	Pattern     string `json:"pattern,omitempty"`
	PatternType string `json:"pattern_type,omitempty"`
}

// ParseFlagConfig decodes a stored flag rule config
func ParseFlagConfig(raw json.RawMessage) (FlagConfig, error) {
	var cfg FlagConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return FlagConfig{}, fmt.Errorf("decode flag rule: %w", err)
	}
	return cfg, nil
}

// EvaluateFlag marks the rows of ds matched by cfg. Problems with the
// config come back in FlagResult.Error; the dataset is never modified.
func EvaluateFlag(ds *domain.Dataset, cfg FlagConfig) domain.FlagResult {
	var (
		matched []int
		err     error
	)
	switch cfg.Type {
	case FlagThreshold:
		matched, err = thresholdMatches(ds, cfg)
	case FlagOutlier:
		matched, err = outlierMatches(ds, cfg)
	case FlagPattern:
		matched, err = patternMatches(ds, cfg)
	default:
		err = fmt.Errorf("Unsupported flag type '%s'", cfg.Type)
	}
	if err != nil {
		return domain.FlagResult{Error: err.Error()}
	}

	pct := 0.0
	if ds.Len() > 0 {
		pct = math.Round(float64(len(matched))/float64(ds.Len())*100*100) / 100
	}
	return domain.FlagResult{
		FlagName:          flagName(cfg),
		FlaggedCount:      len(matched),
		TotalCount:        ds.Len(),
		FlaggedPercentage: pct,
		FlaggedRows:       ds.Take(matched),
	}
}

func flagName(cfg FlagConfig) string {
	if cfg.FlagName != "" {
		return cfg.FlagName
	}
	return string(cfg.Type) + "_flag"
}

func columnNotFound(col string) error {
	return fmt.Errorf("Column '%s' not found", col)
}

func thresholdMatches(ds *domain.Dataset, cfg FlagConfig) ([]int, error) {
	if cfg.Column == "" || cfg.Threshold == nil || cfg.Threshold.IsNull() {
		return nil, errors.New("Column and threshold required")
	}
	if !ds.HasColumn(cfg.Column) {
		return nil, columnNotFound(cfg.Column)
	}
	op := cfg.Operator
	if op == "" {
		op = ">"
	}
	var test func(c int) bool
	switch op {
	case ">":
		test = func(c int) bool { return c > 0 }
	case "<":
		test = func(c int) bool { return c < 0 }
	case ">=":
		test = func(c int) bool { return c >= 0 }
	case "<=":
		test = func(c int) bool { return c <= 0 }
	case "==":
		test = func(c int) bool { return c == 0 }
	default:
		return nil, fmt.Errorf("Invalid operator: %s", op)
	}

	threshold := *cfg.Threshold
	tf, thresholdNumeric := threshold.Float()
	var matched []int
	for i, v := range ds.Column(cfg.Column) {
		if v.IsNull() {
			continue
		}
		if thresholdNumeric {
			f, ok := v.Float()
			if !ok {
				continue
			}
			if test(compareFloats(f, tf)) {
				matched = append(matched, i)
			}
			continue
		}
		if v.Kind() == threshold.Kind() && test(v.Compare(threshold)) {
			matched = append(matched, i)
		}
	}
	return matched, nil
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func outlierMatches(ds *domain.Dataset, cfg FlagConfig) ([]int, error) {
	if cfg.Column == "" {
		return nil, errors.New("Column required")
	}
	if !ds.HasColumn(cfg.Column) {
		return nil, columnNotFound(cfg.Column)
	}
	method := cfg.Method
	if method == "" {
		method = OutlierIQR
	}
	if method != OutlierIQR && method != OutlierZScore {
		return nil, fmt.Errorf("Invalid outlier detection method: %s", method)
	}

	// Fences come from the finite readings; an infinite reading lies
	// outside any of them.
	values := ds.Column(cfg.Column)
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := v.Float(); ok && !math.IsInf(f, 0) {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return nil, nil
	}

	var outside func(f float64) bool
	switch method {
	case OutlierIQR:
		lower, upper := aggregation.IQRBounds(nums)
		outside = func(f float64) bool { return f < lower || f > upper }
	case OutlierZScore:
		mean := aggregation.Mean(nums)
		std := aggregation.StdDev(nums)
		if std == 0 {
			outside = func(f float64) bool { return math.IsInf(f, 0) }
			break
		}
		outside = func(f float64) bool { return math.Abs((f-mean)/std) > zScoreLimit }
	}

	var matched []int
	for i, v := range values {
		if f, ok := v.Float(); ok && outside(f) {
			matched = append(matched, i)
		}
	}
	return matched, nil
}

func patternMatches(ds *domain.Dataset, cfg FlagConfig) ([]int, error) {
	if cfg.Column == "" || cfg.Pattern == "" {
		return nil, errors.New("Column and pattern required")
	}
	if !ds.HasColumn(cfg.Column) {
		return nil, columnNotFound(cfg.Column)
	}

	var match func(v domain.Value) bool
	switch cfg.PatternType {
	case "", PatternRegex:
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("Invalid regex pattern: %v", err)
		}
		match = func(v domain.Value) bool { return re.MatchString(v.String()) }
	case PatternExact:
		match = func(v domain.Value) bool {
			s, ok := v.AsText()
			return ok && s == cfg.Pattern
		}
	case PatternContains:
		match = func(v domain.Value) bool { return strings.Contains(v.String(), cfg.Pattern) }
	default:
		return nil, fmt.Errorf("Invalid pattern type: %s", cfg.PatternType)
	}

	var matched []int
	for i, v := range ds.Column(cfg.Column) {
		if !v.IsNull() && match(v) {
			matched = append(matched, i)
		}
	}
	return matched, nil
}
