package aggregation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// Aggregator runs aggregation configs against datasets
type Aggregator struct {
	logger    *slog.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewAggregator creates an aggregator
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		logger:    logger.With(slog.String("component", "aggregator")),
		validator: newValidator(),
		now:       time.Now,
	}
}

// Validate checks cfg without running it
func (a *Aggregator) Validate(cfg Config) ([]string, error) {
	return a.validate(cfg)
}

// Aggregate validates cfg, applies the optional cleaning rules, runs the
// aggregation and then the filters, sort and limit on its output. The
// input dataset is never modified.
func (a *Aggregator) Aggregate(ctx context.Context, ds *domain.Dataset, cfg Config) (*domain.AggregationResult, error) {
	start := a.now()

	warnings, err := a.validate(cfg)
	if err != nil {
		a.logger.WarnContext(ctx, "aggregation config rejected",
			slog.String("type", string(cfg.Type)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	input := ds
	if cfg.CleaningRules != nil {
		input = clean(input, *cfg.CleaningRules)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &domain.AggregationResult{
		Success:  true,
		Type:     cfg.Type,
		Warnings: warnings,
	}

	var out *domain.Dataset
	switch cfg.Type {
	case domain.AggregationGroupBy:
		out, err = groupBy(input, cfg)
	case domain.AggregationHSBCPattern:
		var expanded Config
		expanded, err = expandPattern(input, cfg)
		if err == nil {
			out, err = groupBy(input, expanded)
		}
	case domain.AggregationPivot:
		out, err = pivot(input, cfg)
	case domain.AggregationTimeSeries:
		out, err = timeSeries(input, cfg)
	case domain.AggregationSummaryStats:
		var skipped []string
		result.Summary, out, skipped, err = summaryStats(input, cfg)
		result.Warnings = append(result.Warnings, skipped...)
	default:
		err = &UnsupportedOperationError{Kind: "aggregation type", Name: string(cfg.Type)}
	}
	if err == nil {
		err = ctx.Err()
	}
	if err == nil && cfg.Type != domain.AggregationSummaryStats {
		out, err = a.shape(out, cfg)
	}
	if err != nil {
		a.logger.WarnContext(ctx, "aggregation failed",
			slog.String("type", string(cfg.Type)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	result.Data = out
	result.Columns = out.Columns()
	if cfg.Type == domain.AggregationSummaryStats {
		result.Columns = columnNames(out)
	}

	configUsed, _ := json.Marshal(cfg)
	result.Metadata = domain.AggregationMetadata{
		AggregationType:     cfg.Type,
		TotalInputRows:      ds.Len(),
		TotalOutputRows:     out.Len(),
		ProcessingTimestamp: a.now(),
		ConfigUsed:          configUsed,
	}

	a.logger.DebugContext(ctx, "aggregation completed",
		slog.String("type", string(cfg.Type)),
		slog.Int("input_rows", ds.Len()),
		slog.Int("output_rows", out.Len()),
		slog.Duration("duration", a.now().Sub(start)),
	)
	return result, nil
}

// shape applies filters, sort_by and limit to an aggregation output
func (a *Aggregator) shape(ds *domain.Dataset, cfg Config) (*domain.Dataset, error) {
	ds, err := applyFilters(ds, cfg.Filters)
	if err != nil {
		return nil, err
	}
	ds, err = sortRows(ds, cfg.SortBy)
	if err != nil {
		return nil, err
	}
	if cfg.Limit > 0 {
		ds = ds.Head(cfg.Limit)
	}
	return ds, nil
}

// columnNames reads the summarized column names out of a summary table
func columnNames(table *domain.Dataset) []string {
	names := make([]string, 0, table.Len())
	for _, v := range table.Column("column") {
		names = append(names, v.String())
	}
	return names
}
