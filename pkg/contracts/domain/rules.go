package domain

import (
	"encoding/json"
	"fmt"
)

// RuleKind partitions the rule registry
type RuleKind string

const (
	RuleKindNormalization RuleKind = "normalization"
	RuleKindAggregation   RuleKind = "aggregation"
	RuleKindFlag          RuleKind = "flag"
	RuleKindValidation    RuleKind = "validation"
)

// RuleKinds lists every kind in export order
var RuleKinds = []RuleKind{
	RuleKindNormalization,
	RuleKindAggregation,
	RuleKindFlag,
	RuleKindValidation,
}

// ParseRuleKind validates a kind name
func ParseRuleKind(s string) (RuleKind, error) {
	for _, k := range RuleKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown rule kind %q", s)
}

// Rule is a stored rule definition. Config is kept as raw JSON so that an
// export reproduces exactly what was stored.
type Rule struct {
	Type      string          `json:"type"`
	Config    json.RawMessage `json:"config"`
	CreatedAt string          `json:"created_at"`
}

// RuleTypeOf reads the "type" discriminator from a rule config
func RuleTypeOf(config json.RawMessage) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(config, &probe); err != nil {
		return ""
	}
	return probe.Type
}

// NormalizationLog is the ordered list of messages produced by a normalization run
type NormalizationLog []string

// ValidationReport is the outcome of one validation rule
type ValidationReport struct {
	Rule        string   `json:"rule"`
	Check       string   `json:"check"`
	Passed      bool     `json:"passed"`
	FailedCount int      `json:"failed_count"`
	Message     string   `json:"message"`
	FailedRows  *Dataset `json:"failed_rows,omitempty"`
	Error       string   `json:"error,omitempty"`
}
