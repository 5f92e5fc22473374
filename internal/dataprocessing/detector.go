package dataprocessing

import (
	"strings"

	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

const (
	// detectionSampleSize bounds how many non-null values type detection inspects
	detectionSampleSize = 100

	// categoricalLimit is the largest distinct count still treated as categorical
	categoricalLimit = 50
)

// patternFamilies are checked in order; the first keyword contained in
// the lower-cased column name wins.
var patternFamilies = []struct {
	family   domain.PatternFamily
	keywords []string
}{
	{domain.PatternDate, []string{"date", "txn_date", "value_date", "transaction_date", "created_date"}},
	{domain.PatternAmount, []string{"amount", "txn_amt", "transaction_value", "value", "sum"}},
	{domain.PatternTransactionType, []string{"type", "cr_dr_flag", "transaction_type", "direction"}},
	{domain.PatternAccount, []string{"account", "user_id", "account_no", "customer_id", "account_number"}},
}

// DetectType assigns a semantic type to a column's values
func DetectType(values []domain.Value) domain.SemanticType {
	nonNull := make([]domain.Value, 0, len(values))
	for _, v := range values {
		if !v.IsNull() {
			nonNull = append(nonNull, v)
		}
	}
	if len(nonNull) == 0 {
		return domain.TypeUnknown
	}

	sample := nonNull
	if len(sample) > detectionSampleSize {
		sample = sample[:detectionSampleSize]
	}

	if all(sample, isTimeLike) {
		return domain.TypeDatetime
	}
	if all(sample, isNumberLike) {
		return domain.TypeNumeric
	}
	if all(nonNull, func(v domain.Value) bool { return v.Kind() == domain.KindBool }) {
		return domain.TypeBoolean
	}
	if distinctCount(nonNull) <= categoricalLimit {
		return domain.TypeCategorical
	}
	return domain.TypeString
}

// DetectPattern tags a column by name
func DetectPattern(column string) domain.PatternFamily {
	name := strings.ToLower(column)
	for _, pf := range patternFamilies {
		for _, kw := range pf.keywords {
			if strings.Contains(name, kw) {
				return pf.family
			}
		}
	}
	return domain.PatternNone
}

func isTimeLike(v domain.Value) bool {
	_, ok := TimeOf(v)
	return ok
}

func isNumberLike(v domain.Value) bool {
	_, ok := NumberOf(v)
	return ok
}

func all(values []domain.Value, pred func(domain.Value) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func distinctCount(values []domain.Value) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if !v.IsNull() {
			seen[v.Key()] = struct{}{}
		}
	}
	return len(seen)
}
