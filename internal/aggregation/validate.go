package aggregation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate collects every problem in cfg. It returns the warnings and, when
// anything is wrong, a *ValidationError carrying both lists.
func (a *Aggregator) validate(cfg Config) ([]string, error) {
	var errs, warnings []string

	if err := a.validator.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, formatFieldError(fe))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	switch cfg.Type {
	case "":
	case domain.AggregationGroupBy:
		if len(cfg.GroupBy) == 0 {
			errs = append(errs, "group_by is required for group_by aggregation")
		}
		if len(cfg.ValueColumns) == 0 {
			warnings = append(warnings, "value_columns is recommended for group_by aggregation")
		}
	case domain.AggregationTimeSeries:
		if cfg.DateColumn == "" {
			errs = append(errs, "date_column is required for time_series aggregation")
		}
		if cfg.ValueColumn == "" {
			errs = append(errs, "value_column is required for time_series aggregation")
		}
		if cfg.Aggregation != "" && !IsSupported(cfg.Aggregation) {
			errs = append(errs, unsupportedFunction(cfg.Aggregation, cfg.ValueColumn))
		}
	case domain.AggregationPivot:
		if len(cfg.Index) == 0 {
			errs = append(errs, "index is required for pivot aggregation")
		}
		if len(cfg.Values) == 0 {
			errs = append(errs, "values is required for pivot aggregation")
		}
		if cfg.AggFunc != "" && !IsSupported(cfg.AggFunc) {
			errs = append(errs, unsupportedFunction(cfg.AggFunc, strings.Join(cfg.Values, ", ")))
		}
	case domain.AggregationSummaryStats:
	case domain.AggregationHSBCPattern:
		if _, ok := patterns[patternName(cfg)]; !ok {
			errs = append(errs, fmt.Sprintf("Unknown HSBC pattern '%s'", cfg.Pattern))
		}
	default:
		errs = append(errs, fmt.Sprintf("Unsupported aggregation type '%s'", cfg.Type))
	}

	for _, ca := range cfg.Aggregations {
		for _, fn := range ca.Functions {
			if !IsSupported(fn) {
				errs = append(errs, unsupportedFunction(fn, ca.Column))
			}
		}
	}

	if len(errs) > 0 {
		return warnings, &ValidationError{Errors: errs, Warnings: warnings}
	}
	return warnings, nil
}

func unsupportedFunction(fn, column string) string {
	return fmt.Sprintf("Unsupported aggregation function '%s' for column '%s'", fn, column)
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
