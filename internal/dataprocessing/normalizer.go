package dataprocessing

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

const defaultDateOutputFormat = "%Y-%m-%d"

// RuleOutcome is the result of applying one rule. Dataset is the table
// after the rule; on failure it still carries the columns the rule did
// manage to transform.
type RuleOutcome struct {
	Rule    NormalizationRule
	Dataset *domain.Dataset
	Message string
	Err     error
}

// LogLine renders the outcome as a normalization log entry
func (o RuleOutcome) LogLine() string {
	if o.Err != nil {
		line := fmt.Sprintf("Rule %s failed: %v", o.Rule.Name(), o.Err)
		if o.Message != "" {
			line = o.Message + "; " + line
		}
		return line
	}
	return o.Message
}

// Normalizer applies normalization rules to datasets
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a normalizer
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger.With(slog.String("component", "normalizer"))}
}

// Normalize runs rules in order. A failing rule is logged and skipped;
// it never stops the remaining rules.
func (n *Normalizer) Normalize(ds *domain.Dataset, rules []NormalizationRule) (*domain.Dataset, domain.NormalizationLog) {
	outcomes := n.Run(ds, rules)
	log := make(domain.NormalizationLog, 0, len(outcomes))
	current := ds
	for _, o := range outcomes {
		log = append(log, o.LogLine())
		current = o.Dataset
	}
	return current, log
}

// Run applies rules in order and returns one outcome per rule
func (n *Normalizer) Run(ds *domain.Dataset, rules []NormalizationRule) []RuleOutcome {
	outcomes := make([]RuleOutcome, 0, len(rules))
	current := ds
	for _, rule := range rules {
		o := n.apply(current, rule)
		if o.Dataset == nil {
			o.Dataset = current
		}
		if o.Err != nil {
			n.logger.Warn("normalization rule failed",
				slog.String("rule", rule.Name()),
				slog.String("error", o.Err.Error()),
			)
		} else {
			n.logger.Debug("normalization rule applied",
				slog.String("rule", rule.Name()),
				slog.String("message", o.Message),
			)
		}
		current = o.Dataset
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// NormalizeDefault runs the pattern-driven pass: date columns to
// YYYY-MM-DD, amount cleanup, transaction type codes, then snake_case names.
func (n *Normalizer) NormalizeDefault(ds *domain.Dataset, schema domain.SchemaDocument) (*domain.Dataset, domain.NormalizationLog) {
	var rules []NormalizationRule
	for _, col := range schema.ColumnsWithPattern(domain.PatternDate) {
		rules = append(rules, FormatDates{Columns: []string{col}, Strict: true})
	}
	for _, col := range schema.ColumnsWithPattern(domain.PatternAmount) {
		rules = append(rules, CleanCurrency{Columns: []string{col}})
	}
	for _, col := range schema.ColumnsWithPattern(domain.PatternTransactionType) {
		rules = append(rules, StandardizeTransactionType{Columns: []string{col}})
	}
	rules = append(rules, SnakeCaseColumns{})
	return n.Normalize(ds, rules)
}

func (n *Normalizer) apply(ds *domain.Dataset, rule NormalizationRule) RuleOutcome {
	switch r := rule.(type) {
	case RenameColumns:
		return applyRename(ds, r)
	case SnakeCaseColumns:
		return applySnakeCase(ds, r)
	case ConvertTypes:
		return applyConvertTypes(ds, r)
	case MapValues:
		return applyMapValues(ds, r)
	case FormatDates:
		return applyFormatDates(ds, r)
	case CleanCurrency:
		return applyCleanCurrency(ds, r)
	case StripWhitespace:
		return applyStripWhitespace(ds, r)
	case StandardizeTransactionType:
		return applyTransactionType(ds, r)
	default:
		return RuleOutcome{Rule: rule, Err: fmt.Errorf("%w: %T", ErrUnsupportedRule, rule)}
	}
}

func applyRename(ds *domain.Dataset, r RenameColumns) RuleOutcome {
	mapping := make(map[string]string, len(r.Mapping))
	var parts []string
	for _, m := range r.Mapping {
		if !ds.HasColumn(m.From) {
			parts = append(parts, fmt.Sprintf("Column '%s' not found, rename skipped", m.From))
			continue
		}
		mapping[m.From] = m.To
		parts = append(parts, fmt.Sprintf("Renamed column '%s' to '%s'", m.From, m.To))
	}
	if len(parts) == 0 {
		return RuleOutcome{Rule: r, Dataset: ds, Message: "No columns to rename"}
	}
	out, err := ds.RenameColumns(mapping)
	if err != nil {
		return RuleOutcome{Rule: r, Err: fmt.Errorf("rename columns: %w", err)}
	}
	return RuleOutcome{Rule: r, Dataset: out, Message: strings.Join(parts, "; ")}
}

func applySnakeCase(ds *domain.Dataset, r SnakeCaseColumns) RuleOutcome {
	targets := r.Columns
	if len(targets) == 0 {
		targets = ds.Columns()
	}
	mapping := make(map[string]string)
	var parts []string
	for _, col := range targets {
		if !ds.HasColumn(col) {
			continue
		}
		if name := SnakeCase(col); name != col {
			mapping[col] = name
			parts = append(parts, fmt.Sprintf("'%s' -> '%s'", col, name))
		}
	}
	if len(mapping) == 0 {
		return RuleOutcome{Rule: r, Dataset: ds, Message: "Column names already standardized"}
	}
	out, err := ds.RenameColumns(mapping)
	if err != nil {
		return RuleOutcome{Rule: r, Err: fmt.Errorf("standardize column names: %w", err)}
	}
	return RuleOutcome{Rule: r, Dataset: out, Message: "Standardized column names: " + strings.Join(parts, ", ")}
}

// SnakeCase inserts an underscore before each uppercase letter that follows
// a lowercase letter or digit, lower-cases the result and replaces spaces
// and hyphens with underscores.
func SnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteRune('_')
			}
		}
		b.WriteRune(r)
	}
	out := strings.ToLower(b.String())
	return strings.NewReplacer(" ", "_", "-", "_").Replace(out)
}

func applyConvertTypes(ds *domain.Dataset, r ConvertTypes) RuleOutcome {
	current := ds
	var parts []string
	for _, c := range r.Conversions {
		if !current.HasColumn(c.Column) {
			parts = append(parts, fmt.Sprintf("Column '%s' not found, conversion skipped", c.Column))
			continue
		}
		nulled := 0
		out, err := current.MapColumn(c.Column, func(v domain.Value) domain.Value {
			converted := convertValue(v, c.Target)
			if converted.IsNull() && !v.IsNull() {
				nulled++
			}
			return converted
		})
		if err != nil {
			return RuleOutcome{Rule: r, Dataset: current, Message: strings.Join(parts, "; "), Err: err}
		}
		current = out
		msg := fmt.Sprintf("Converted column '%s' to %s", c.Column, c.Target)
		if nulled > 0 {
			msg += fmt.Sprintf(" (%d values set to null)", nulled)
		}
		parts = append(parts, msg)
	}
	return RuleOutcome{Rule: r, Dataset: current, Message: joinOr(parts, "No columns to convert")}
}

func convertValue(v domain.Value, target TargetType) domain.Value {
	if v.IsNull() {
		return v
	}
	switch target {
	case TargetNumeric:
		if f, ok := NumberOf(v); ok {
			return domain.Number(f)
		}
		if b, ok := v.AsBool(); ok {
			if b {
				return domain.Number(1)
			}
			return domain.Number(0)
		}
	case TargetDatetime:
		if t, ok := TimeOf(v); ok {
			return domain.Text(ISODate(t))
		}
	case TargetString:
		return domain.Text(v.String())
	case TargetBoolean:
		if b, ok := BoolOf(v); ok {
			return domain.Bool(b)
		}
	}
	return domain.Null()
}

func applyMapValues(ds *domain.Dataset, r MapValues) RuleOutcome {
	current := ds
	var parts []string
	for _, m := range r.Mappings {
		if !current.HasColumn(m.Column) {
			parts = append(parts, fmt.Sprintf("Column '%s' not found, value mapping skipped", m.Column))
			continue
		}
		changed := 0
		out, err := current.MapColumn(m.Column, func(v domain.Value) domain.Value {
			if v.IsNull() {
				return v
			}
			if to, ok := m.Mapping[v.String()]; ok {
				changed++
				return to
			}
			return v
		})
		if err != nil {
			return RuleOutcome{Rule: r, Dataset: current, Message: strings.Join(parts, "; "), Err: err}
		}
		current = out
		parts = append(parts, fmt.Sprintf("Mapped values in column '%s' (%d values changed)", m.Column, changed))
	}
	return RuleOutcome{Rule: r, Dataset: current, Message: joinOr(parts, "No columns to map")}
}

func applyFormatDates(ds *domain.Dataset, r FormatDates) RuleOutcome {
	format := r.OutputFormat
	if format == "" {
		format = defaultDateOutputFormat
	}
	label := format
	if format == defaultDateOutputFormat {
		label = "YYYY-MM-DD"
	}

	current := ds
	var parts []string
	var errs []error
	for _, col := range r.Columns {
		if !current.HasColumn(col) {
			parts = append(parts, fmt.Sprintf("Column '%s' not found, date formatting skipped", col))
			continue
		}
		values := current.Column(col)
		out := make([]domain.Value, len(values))
		var failure error
		for i, v := range values {
			if v.IsNull() {
				continue
			}
			t, ok := TimeOf(v)
			if !ok {
				if r.Strict {
					failure = fmt.Errorf("date column %s: unparseable value %q at row %d", col, v.String(), i)
					break
				}
				continue
			}
			out[i] = domain.Text(FormatTime(t, format))
		}
		if failure != nil {
			errs = append(errs, failure)
			continue
		}
		current = current.WithColumn(col, out)
		parts = append(parts, fmt.Sprintf("Normalized date column: %s -> %s format", col, label))
	}
	return RuleOutcome{Rule: r, Dataset: current, Message: joinOr(parts, ""), Err: errors.Join(errs...)}
}

func applyCleanCurrency(ds *domain.Dataset, r CleanCurrency) RuleOutcome {
	current := ds
	var parts []string
	for _, col := range r.Columns {
		if !current.HasColumn(col) {
			parts = append(parts, fmt.Sprintf("Column '%s' not found, currency cleanup skipped", col))
			continue
		}
		kept := 0
		out, err := current.MapColumn(col, func(v domain.Value) domain.Value {
			cleaned := CleanAmount(v, r.Symbols)
			if !cleaned.IsNull() && cleaned.Kind() != domain.KindNumber {
				kept++
			}
			return cleaned
		})
		if err != nil {
			return RuleOutcome{Rule: r, Dataset: current, Message: strings.Join(parts, "; "), Err: err}
		}
		current = out
		msg := fmt.Sprintf("Normalized amount column: %s -> float format", col)
		if kept > 0 {
			msg += fmt.Sprintf(" (%d values kept as text)", kept)
		}
		parts = append(parts, msg)
	}
	return RuleOutcome{Rule: r, Dataset: current, Message: joinOr(parts, "No columns to clean")}
}

func applyStripWhitespace(ds *domain.Dataset, r StripWhitespace) RuleOutcome {
	targets := r.Columns
	if len(targets) == 0 {
		targets = ds.Columns()
	}
	current := ds
	var parts []string
	for _, col := range targets {
		if !current.HasColumn(col) {
			parts = append(parts, fmt.Sprintf("Column '%s' not found, strip skipped", col))
			continue
		}
		changed := 0
		out, err := current.MapColumn(col, func(v domain.Value) domain.Value {
			s, ok := v.AsText()
			if !ok {
				return v
			}
			trimmed := strings.TrimSpace(s)
			if trimmed != s {
				changed++
			}
			return domain.Text(trimmed)
		})
		if err != nil {
			return RuleOutcome{Rule: r, Dataset: current, Message: strings.Join(parts, "; "), Err: err}
		}
		if changed == 0 && len(r.Columns) == 0 {
			continue
		}
		current = out
		parts = append(parts, fmt.Sprintf("Stripped whitespace from column '%s'", col))
	}
	return RuleOutcome{Rule: r, Dataset: current, Message: joinOr(parts, "No whitespace to strip")}
}

func applyTransactionType(ds *domain.Dataset, r StandardizeTransactionType) RuleOutcome {
	mapping := r.Mapping
	if len(mapping) == 0 {
		mapping = DefaultTransactionTypeMapping
	}
	current := ds
	var parts []string
	for _, col := range r.Columns {
		if !current.HasColumn(col) {
			parts = append(parts, fmt.Sprintf("Column '%s' not found, type mapping skipped", col))
			continue
		}
		out, err := current.MapColumn(col, func(v domain.Value) domain.Value {
			if v.IsNull() {
				return v
			}
			key := strings.TrimSpace(v.String())
			if to, ok := mapping[key]; ok {
				return domain.Text(to)
			}
			if _, isText := v.AsText(); isText {
				return domain.Text(key)
			}
			return v
		})
		if err != nil {
			return RuleOutcome{Rule: r, Dataset: current, Message: strings.Join(parts, "; "), Err: err}
		}
		current = out
		parts = append(parts, fmt.Sprintf("Normalized type column: %s -> standardized values", col))
	}
	return RuleOutcome{Rule: r, Dataset: current, Message: joinOr(parts, "No type columns to map")}
}

func joinOr(parts []string, fallback string) string {
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, "; ")
}
