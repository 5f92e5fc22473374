// Package rules holds the named rule store and the flag and validation
// evaluators that run stored rules against datasets.
package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/San-2310/hsbc-hack/internal/aggregation"
	"github.com/San-2310/hsbc-hack/internal/dataprocessing"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

// Registry errors
var (
	ErrUnknownKind   = errors.New("unknown rule kind")
	ErrInvalidRule   = errors.New("invalid rule")
	ErrInvalidImport = errors.New("invalid rule import")
)

// createdAtLayout matches an ISO 8601 timestamp with microseconds
const createdAtLayout = "2006-01-02T15:04:05.000000"

// Snapshot is the export document: one name-keyed map per kind. Order
// lists each kind's names in insertion order; documents without it import
// in created_at order.
type Snapshot struct {
	Normalization map[string]domain.Rule `json:"normalization"`
	Aggregation   map[string]domain.Rule `json:"aggregation"`
	Flag          map[string]domain.Rule `json:"flag"`
	Validation    map[string]domain.Rule `json:"validation"`
	Order         map[string][]string    `json:"order,omitempty"`
}

// Registry stores named rules per kind and applies them by name. A single
// lock covers all four kinds so readers always see a consistent snapshot.
// Rules of a kind run in insertion order; replacing a rule keeps its place.
type Registry struct {
	mu    sync.RWMutex
	rules map[domain.RuleKind]map[string]domain.Rule
	order map[domain.RuleKind][]string

	normalizer *dataprocessing.Normalizer
	aggregator *aggregation.Aggregator
	logger     *slog.Logger
	now        func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger, normalizer *dataprocessing.Normalizer, aggregator *aggregation.Aggregator) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if normalizer == nil {
		normalizer = dataprocessing.NewNormalizer(logger)
	}
	if aggregator == nil {
		aggregator = aggregation.NewAggregator(logger)
	}
	r := &Registry{
		rules:      make(map[domain.RuleKind]map[string]domain.Rule, len(domain.RuleKinds)),
		order:      make(map[domain.RuleKind][]string, len(domain.RuleKinds)),
		normalizer: normalizer,
		aggregator: aggregator,
		logger:     logger.With(slog.String("component", "rule_registry")),
		now:        time.Now,
	}
	for _, k := range domain.RuleKinds {
		r.rules[k] = make(map[string]domain.Rule)
	}
	return r
}

// Add stores config under (kind, name). A new name runs after every rule
// already stored; a replaced rule keeps its position. The config must
// decode as a rule of that kind.
func (r *Registry) Add(kind domain.RuleKind, name string, config json.RawMessage) error {
	if _, ok := r.rules[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	compact, err := compactJSON(config)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if err := checkConfig(kind, compact); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	rule := domain.Rule{
		Type:      string(kind),
		Config:    compact,
		CreatedAt: r.now().Format(createdAtLayout),
	}
	r.mu.Lock()
	r.put(kind, name, rule)
	r.mu.Unlock()

	r.logger.Info("rule added",
		slog.String("kind", string(kind)),
		slog.String("name", name),
		slog.String("type", domain.RuleTypeOf(compact)),
	)
	return nil
}

// put stores rule and records new names at the end of the kind's order.
// Callers hold r.mu.
func (r *Registry) put(kind domain.RuleKind, name string, rule domain.Rule) {
	if _, ok := r.rules[kind][name]; !ok {
		r.order[kind] = append(r.order[kind], name)
	}
	r.rules[kind][name] = rule
}

func checkConfig(kind domain.RuleKind, config json.RawMessage) error {
	var err error
	switch kind {
	case domain.RuleKindNormalization:
		_, err = dataprocessing.ParseNormalizationRule(config)
	case domain.RuleKindAggregation:
		_, err = aggregation.ParseConfig(config)
	case domain.RuleKindFlag:
		_, err = ParseFlagConfig(config)
	case domain.RuleKindValidation:
		_, err = ParseValidationConfig(config)
	}
	return err
}

// Get returns a stored rule
func (r *Registry) Get(kind domain.RuleKind, name string) (domain.Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[kind][name]
	return rule, ok
}

// Delete removes a rule and reports whether it existed
func (r *Registry) Delete(kind domain.RuleKind, name string) bool {
	r.mu.Lock()
	_, ok := r.rules[kind][name]
	if ok {
		delete(r.rules[kind], name)
		r.order[kind] = slices.DeleteFunc(r.order[kind], func(n string) bool { return n == name })
	}
	r.mu.Unlock()

	if ok {
		r.logger.Info("rule deleted", slog.String("kind", string(kind)), slog.String("name", name))
	}
	return ok
}

// List returns a copy of every rule grouped by kind
func (r *Registry) List() map[domain.RuleKind]map[string]domain.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.RuleKind]map[string]domain.Rule, len(r.rules))
	for kind, rules := range r.rules {
		out[kind] = copyRules(rules)
	}
	return out
}

// Names lists the rules of kind in insertion order
func (r *Registry) Names(kind domain.RuleKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order[kind])
}

// Count returns the number of stored rules across all kinds
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rules := range r.rules {
		n += len(rules)
	}
	return n
}

// importOrder lists the names of rules: those in listed first, in that
// order, then the rest by created_at and name.
func importOrder(rules map[string]domain.Rule, listed []string) []string {
	names := make([]string, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, name := range listed {
		if _, ok := rules[name]; ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	rest := make([]string, 0, len(rules)-len(names))
	for name := range rules {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		a, b := rules[rest[i]], rules[rest[j]]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return rest[i] < rest[j]
	})
	return append(names, rest...)
}

func copyRules(rules map[string]domain.Rule) map[string]domain.Rule {
	out := make(map[string]domain.Rule, len(rules))
	for name, rule := range rules {
		rule.Config = append(json.RawMessage(nil), rule.Config...)
		out[name] = rule
	}
	return out
}

// Export serializes every rule as an indented JSON snapshot
func (r *Registry) Export() ([]byte, error) {
	r.mu.RLock()
	snap := Snapshot{
		Normalization: copyRules(r.rules[domain.RuleKindNormalization]),
		Aggregation:   copyRules(r.rules[domain.RuleKindAggregation]),
		Flag:          copyRules(r.rules[domain.RuleKindFlag]),
		Validation:    copyRules(r.rules[domain.RuleKindValidation]),
		Order:         make(map[string][]string, len(r.order)),
	}
	for kind, names := range r.order {
		if len(names) > 0 {
			snap.Order[string(kind)] = slices.Clone(names)
		}
	}
	r.mu.RUnlock()
	return json.MarshalIndent(snap, "", "  ")
}

// Import merges an exported snapshot into the registry. Incoming rules
// replace stored rules of the same kind and name in place; new names are
// appended in the document's order. A malformed document changes nothing.
func (r *Registry) Import(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	incoming := map[domain.RuleKind]map[string]domain.Rule{
		domain.RuleKindNormalization: snap.Normalization,
		domain.RuleKindAggregation:   snap.Aggregation,
		domain.RuleKindFlag:          snap.Flag,
		domain.RuleKindValidation:    snap.Validation,
	}
	for kind, rules := range incoming {
		for name, rule := range rules {
			compact, err := compactJSON(rule.Config)
			if err != nil {
				return fmt.Errorf("%w: %s rule %q: %v", ErrInvalidImport, kind, name, err)
			}
			if rule.Type == "" {
				rule.Type = string(kind)
			}
			rule.Config = compact
			rules[name] = rule
		}
	}

	n := 0
	r.mu.Lock()
	for _, kind := range domain.RuleKinds {
		rules := incoming[kind]
		for _, name := range importOrder(rules, snap.Order[string(kind)]) {
			r.put(kind, name, rules[name])
			n++
		}
	}
	r.mu.Unlock()

	r.logger.Info("rules imported", slog.Int("count", n))
	return nil
}

func compactJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("config is required")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// selected snapshots the configs of the named rules of kind. With no
// names every rule is selected. Unknown names are skipped.
func (r *Registry) selected(kind domain.RuleKind, names []string) ([]string, []json.RawMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules := r.rules[kind]
	if len(names) == 0 {
		names = r.order[kind]
	}
	var outNames []string
	var configs []json.RawMessage
	for _, name := range names {
		rule, ok := rules[name]
		if !ok {
			continue
		}
		outNames = append(outNames, name)
		configs = append(configs, rule.Config)
	}
	return outNames, configs
}

// ApplyNormalization runs the named normalization rules in order. It
// returns the normalized dataset, the names of the rules that ran without
// error and the combined normalization log.
func (r *Registry) ApplyNormalization(ds *domain.Dataset, names ...string) (*domain.Dataset, []string, domain.NormalizationLog) {
	names, configs := r.selected(domain.RuleKindNormalization, names)
	applied := make([]string, 0, len(names))
	var log domain.NormalizationLog
	for i, name := range names {
		rule, err := dataprocessing.ParseNormalizationRule(configs[i])
		if err != nil {
			log = append(log, fmt.Sprintf("Rule %s failed: %v", name, err))
			continue
		}
		for _, outcome := range r.normalizer.Run(ds, []dataprocessing.NormalizationRule{rule}) {
			ds = outcome.Dataset
			log = append(log, outcome.LogLine())
			if outcome.Err == nil {
				applied = append(applied, name)
			}
		}
	}
	return ds, applied, log
}

// AggregationOutcome is the result of one stored aggregation rule
type AggregationOutcome struct {
	Result *domain.AggregationResult
	Err    error
	at     time.Time
}

// MarshalJSON renders the result, or the structured failure
func (o AggregationOutcome) MarshalJSON() ([]byte, error) {
	if o.Err != nil {
		return json.Marshal(aggregation.Failure(o.Err, o.at))
	}
	return json.Marshal(o.Result)
}

// ApplyAggregation runs the named aggregation rules against ds
func (r *Registry) ApplyAggregation(ctx context.Context, ds *domain.Dataset, names ...string) map[string]AggregationOutcome {
	names, configs := r.selected(domain.RuleKindAggregation, names)
	out := make(map[string]AggregationOutcome, len(names))
	for i, name := range names {
		cfg, err := aggregation.ParseConfig(configs[i])
		if err != nil {
			out[name] = AggregationOutcome{Err: err, at: r.now()}
			continue
		}
		res, err := r.aggregator.Aggregate(ctx, ds, cfg)
		out[name] = AggregationOutcome{Result: res, Err: err, at: r.now()}
	}
	return out
}

// ApplyFlags runs the named flag rules against ds
func (r *Registry) ApplyFlags(ds *domain.Dataset, names ...string) map[string]domain.FlagResult {
	names, configs := r.selected(domain.RuleKindFlag, names)
	out := make(map[string]domain.FlagResult, len(names))
	for i, name := range names {
		cfg, err := ParseFlagConfig(configs[i])
		if err != nil {
			out[name] = domain.FlagResult{Error: err.Error()}
			continue
		}
		out[name] = EvaluateFlag(ds, cfg)
	}
	return out
}

// ApplyValidation runs the named validation rules against ds
func (r *Registry) ApplyValidation(ds *domain.Dataset, names ...string) map[string]domain.ValidationReport {
	names, configs := r.selected(domain.RuleKindValidation, names)
	out := make(map[string]domain.ValidationReport, len(names))
	for i, name := range names {
		cfg, err := ParseValidationConfig(configs[i])
		if err != nil {
			out[name] = domain.ValidationReport{Rule: name, Error: err.Error()}
			continue
		}
		out[name] = Validate(ds, name, cfg)
	}
	return out
}
