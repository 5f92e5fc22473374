package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	apperrors "github.com/San-2310/hsbc-hack/internal/errors"
	"github.com/San-2310/hsbc-hack/internal/rules"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
	contracts "github.com/San-2310/hsbc-hack/pkg/contracts/events"
)

// ListRules returns every stored rule grouped by kind
func (s *EngineService) ListRules(ctx context.Context) map[domain.RuleKind]map[string]domain.Rule {
	return s.registry.List()
}

// GetRule returns one stored rule
func (s *EngineService) GetRule(ctx context.Context, kind domain.RuleKind, name string) (domain.Rule, error) {
	rule, ok := s.registry.Get(kind, name)
	if !ok {
		return domain.Rule{}, fmt.Errorf("%w: %s/%s", ErrRuleNotFound, kind, name)
	}
	return rule, nil
}

// SaveRule stores a rule, replacing any rule with the same kind and name
func (s *EngineService) SaveRule(ctx context.Context, kind domain.RuleKind, name string, config json.RawMessage) (domain.Rule, error) {
	if name == "" {
		return domain.Rule{}, fmt.Errorf("%w: rule name is required", ErrInvalidInput)
	}
	if err := s.registry.Add(kind, name, config); err != nil {
		return domain.Rule{}, err
	}
	if err := s.persistRules(ctx, "saved", kind, name); err != nil {
		return domain.Rule{}, err
	}
	rule, _ := s.registry.Get(kind, name)
	return rule, nil
}

// DeleteRule removes a stored rule
func (s *EngineService) DeleteRule(ctx context.Context, kind domain.RuleKind, name string) error {
	if !s.registry.Delete(kind, name) {
		return fmt.Errorf("%w: %s/%s", ErrRuleNotFound, kind, name)
	}
	return s.persistRules(ctx, "deleted", kind, name)
}

// ExportRules returns the rule snapshot document
func (s *EngineService) ExportRules(ctx context.Context) ([]byte, error) {
	return s.registry.Export()
}

// ImportRules merges a rule snapshot document into the registry
func (s *EngineService) ImportRules(ctx context.Context, data []byte) (int, error) {
	if err := s.registry.Import(data); err != nil {
		return 0, err
	}
	if err := s.persistRules(ctx, "imported", "", ""); err != nil {
		return 0, err
	}
	return s.registry.Count(), nil
}

// persistRules saves the registry snapshot and announces the change. The
// export and save run under persistMu so a stale snapshot never lands
// after a newer one.
func (s *EngineService) persistRules(ctx context.Context, action string, kind domain.RuleKind, name string) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	snapshot, err := s.registry.Export()
	if err != nil {
		return apperrors.NewStorageError("export rules", err)
	}
	if err := s.ruleStore.Save(ctx, snapshot); err != nil {
		s.logger.ErrorContext(ctx, "rule snapshot not saved",
			slog.String("action", action),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError("save rules", err)
	}

	data := map[string]any{"action": action, "total": s.registry.Count()}
	if kind != "" {
		data["kind"] = string(kind)
		data["name"] = name
	}
	s.publish(ctx, contracts.Event{Name: contracts.RulesChanged, Data: data})
	return nil
}

// ApplyResult is the outcome of running stored rules of one kind. Only one
// of the per-kind fields is set.
type ApplyResult struct {
	Kind         domain.RuleKind                     `json:"kind"`
	Applied      []string                            `json:"applied"`
	Dataset      *domain.DatasetInfo                 `json:"dataset,omitempty"`
	Log          domain.NormalizationLog             `json:"log,omitempty"`
	Aggregations map[string]rules.AggregationOutcome `json:"aggregations,omitempty"`
	Flags        map[string]domain.FlagResult        `json:"flags,omitempty"`
	Validations  map[string]domain.ValidationReport  `json:"validations,omitempty"`
}

// ApplyRules runs the named stored rules of kind against a dataset. With
// no names every rule of the kind runs. Applied lists the rules that ran
// without error. Normalization stores its output as a new dataset.
func (s *EngineService) ApplyRules(ctx context.Context, kind domain.RuleKind, id string, names []string) (ApplyResult, error) {
	if _, err := domain.ParseRuleKind(string(kind)); err != nil {
		return ApplyResult{}, fmt.Errorf("%w: %v", rules.ErrUnknownKind, err)
	}
	ds, info, err := s.dataset(ctx, id)
	if err != nil {
		return ApplyResult{}, err
	}
	for _, name := range names {
		if _, ok := s.registry.Get(kind, name); !ok {
			return ApplyResult{}, fmt.Errorf("%w: %s/%s", ErrRuleNotFound, kind, name)
		}
	}

	total := len(names)
	if total == 0 {
		total = len(s.registry.Names(kind))
	}

	res := ApplyResult{Kind: kind, Applied: []string{}}
	switch kind {
	case domain.RuleKindNormalization:
		out, applied, log := s.registry.ApplyNormalization(ds, names...)
		res.Applied = append(res.Applied, applied...)
		normalized, err := s.storeNormalized(ctx, out, info, log, "rules")
		if err != nil {
			return ApplyResult{}, err
		}
		res.Dataset = &normalized.Dataset
		res.Log = normalized.Log

	case domain.RuleKindAggregation:
		res.Aggregations = s.registry.ApplyAggregation(ctx, ds, names...)
		for _, name := range sortedKeys(res.Aggregations) {
			if res.Aggregations[name].Err == nil {
				res.Applied = append(res.Applied, name)
			}
		}

	case domain.RuleKindFlag:
		res.Flags = s.registry.ApplyFlags(ds, names...)
		for _, name := range sortedKeys(res.Flags) {
			if r := res.Flags[name]; !r.Failed() {
				res.Applied = append(res.Applied, name)
				s.metrics.RecordFlags(ctx, name, r.FlaggedCount)
			}
		}

	case domain.RuleKindValidation:
		res.Validations = s.registry.ApplyValidation(ds, names...)
		for _, name := range sortedKeys(res.Validations) {
			if res.Validations[name].Error == "" {
				res.Applied = append(res.Applied, name)
			}
		}
	}

	s.metrics.RecordRuleApplication(ctx, string(kind), len(res.Applied) == total)
	s.logger.InfoContext(ctx, "rules applied",
		slog.String("kind", string(kind)),
		slog.String("dataset_id", id),
		slog.Int("applied", len(res.Applied)))
	return res, nil
}

// IsRuleInputError reports whether err is a client mistake in a rule request
func IsRuleInputError(err error) bool {
	return errors.Is(err, rules.ErrInvalidRule) ||
		errors.Is(err, rules.ErrUnknownKind) ||
		errors.Is(err, rules.ErrInvalidImport)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
