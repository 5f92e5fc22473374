package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/San-2310/hsbc-hack/internal/aggregation"
	"github.com/San-2310/hsbc-hack/internal/shared/testutil"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

func newTestRegistry(t *testing.T) (*Registry, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, handler := testutil.NewTestLogger(t)
	r := NewRegistry(logger, nil, nil)
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return r, handler
}

func TestRegistryCRUD(t *testing.T) {
	r, handler := newTestRegistry(t)

	require.NoError(t, r.Add(domain.RuleKindFlag, "big", json.RawMessage(`{ "type": "threshold", "column": "amount", "threshold": 1000 }`)))

	rule, ok := r.Get(domain.RuleKindFlag, "big")
	require.True(t, ok)
	assert.Equal(t, "flag", rule.Type)
	assert.Equal(t, `{"type":"threshold","column":"amount","threshold":1000}`, string(rule.Config))
	assert.Equal(t, "2024-01-01T09:00:01.000000", rule.CreatedAt)
	testutil.AssertLogContains(t, handler, slog.LevelInfo, "rule added")

	assert.Equal(t, 1, r.Count())
	assert.True(t, r.Delete(domain.RuleKindFlag, "big"))
	assert.False(t, r.Delete(domain.RuleKindFlag, "big"))
	_, ok = r.Get(domain.RuleKindFlag, "big")
	assert.False(t, ok)
}

func TestRegistryAddRejectsBadRules(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.Add("enrichment", "x", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	err = r.Add(domain.RuleKindNormalization, "", json.RawMessage(`{"type":"snake_case"}`))
	assert.ErrorIs(t, err, ErrInvalidRule)

	err = r.Add(domain.RuleKindNormalization, "boom", json.RawMessage(`{"type":"explode"}`))
	assert.ErrorIs(t, err, ErrInvalidRule)

	err = r.Add(domain.RuleKindAggregation, "broken", json.RawMessage(`{"type":`))
	assert.ErrorIs(t, err, ErrInvalidRule)

	assert.Zero(t, r.Count())
}

func TestRegistryExportImportRoundTrip(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Add(domain.RuleKindNormalization, "snake", json.RawMessage(`{"type":"snake_case"}`)))
	require.NoError(t, r.Add(domain.RuleKindAggregation, "by_account", json.RawMessage(`{"type":"group_by","group_by":["account"]}`)))
	require.NoError(t, r.Add(domain.RuleKindFlag, "big", json.RawMessage(`{"type":"threshold","column":"amount","threshold":1000}`)))
	require.NoError(t, r.Add(domain.RuleKindValidation, "has_amount", json.RawMessage(`{"type":"required_columns","columns":["amount"]}`)))

	exported, err := r.Export()
	require.NoError(t, err)
	assert.Contains(t, string(exported), "\n  \"normalization\": {")

	other, _ := newTestRegistry(t)
	require.NoError(t, other.Import(exported))
	assert.Equal(t, r.List(), other.List())

	// Importing into the source changes nothing either.
	require.NoError(t, r.Import(exported))
	again, err := r.Export()
	require.NoError(t, err)
	assert.Equal(t, string(exported), string(again))
}

func TestRegistryImportMerges(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Add(domain.RuleKindFlag, "keep", json.RawMessage(`{"type":"outlier","column":"a"}`)))
	require.NoError(t, r.Add(domain.RuleKindFlag, "replace", json.RawMessage(`{"type":"outlier","column":"a"}`)))

	err := r.Import([]byte(`{"flag":{"replace":{"type":"flag","config":{"type":"outlier","column":"b"},"created_at":"2023-01-01T00:00:00.000000"}}}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"keep", "replace"}, r.Names(domain.RuleKindFlag))
	rule, _ := r.Get(domain.RuleKindFlag, "replace")
	assert.Equal(t, `{"type":"outlier","column":"b"}`, string(rule.Config))

	before := r.List()
	assert.ErrorIs(t, r.Import([]byte(`{"flag":`)), ErrInvalidImport)
	assert.Equal(t, before, r.List())
}

func TestApplyNormalizationSkipsUnknownNames(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Add(domain.RuleKindNormalization, "rename", json.RawMessage(`{"type":"column_mapping","mapping":{"Amt":"Amount"}}`)))
	require.NoError(t, r.Add(domain.RuleKindNormalization, "snake", json.RawMessage(`{"type":"snake_case"}`)))
	require.NoError(t, r.Add(domain.RuleKindNormalization, "dates", json.RawMessage(`{"type":"convert_date","column":"When"}`)))

	ds, err := domain.NewBuilder("Amt", "When").Append(domain.Text("$5"), domain.Text("soon")).Build()
	require.NoError(t, err)

	out, applied, log := r.ApplyNormalization(ds, "rename", "missing", "dates", "snake")

	assert.Equal(t, []string{"rename", "snake"}, applied)
	require.Len(t, log, 3)
	assert.Equal(t, "Renamed column 'Amt' to 'Amount'", log[0])
	assert.Contains(t, log[1], "Rule date_format failed")
	assert.Equal(t, []string{"amount", "when"}, out.Columns())
	assert.Equal(t, []string{"Amt", "When"}, ds.Columns())

	// No names means every rule in insertion order. dates now sees the
	// snake_cased column and skips.
	out, applied, log = r.ApplyNormalization(ds)
	assert.Equal(t, []string{"rename", "snake", "dates"}, applied)
	assert.Equal(t, "Column 'When' not found, date formatting skipped", log[2])
	assert.Equal(t, []string{"amount", "when"}, out.Columns())
}

func TestRegistryInsertionOrder(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	r := NewRegistry(logger, nil, nil)
	fixed := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	require.NoError(t, r.Add(domain.RuleKindNormalization, "z_rename", json.RawMessage(`{"type":"column_mapping","mapping":{"A":"B"}}`)))
	require.NoError(t, r.Add(domain.RuleKindNormalization, "a_rename", json.RawMessage(`{"type":"column_mapping","mapping":{"B":"C"}}`)))
	require.NoError(t, r.Add(domain.RuleKindNormalization, "m_snake", json.RawMessage(`{"type":"snake_case"}`)))
	assert.Equal(t, []string{"z_rename", "a_rename", "m_snake"}, r.Names(domain.RuleKindNormalization))

	ds, err := domain.NewBuilder("A").Append(domain.Number(1)).Build()
	require.NoError(t, err)
	out, applied, log := r.ApplyNormalization(ds)
	assert.Equal(t, []string{"z_rename", "a_rename", "m_snake"}, applied)
	assert.Equal(t, []string{"c"}, out.Columns())
	assert.Equal(t, "Renamed column 'A' to 'B'", log[0])
	assert.Equal(t, "Renamed column 'B' to 'C'", log[1])

	// Replacing keeps the position; deleting and re-adding moves to the end.
	require.NoError(t, r.Add(domain.RuleKindNormalization, "z_rename", json.RawMessage(`{"type":"column_mapping","mapping":{"A":"B"}}`)))
	assert.Equal(t, []string{"z_rename", "a_rename", "m_snake"}, r.Names(domain.RuleKindNormalization))
	require.True(t, r.Delete(domain.RuleKindNormalization, "a_rename"))
	require.NoError(t, r.Add(domain.RuleKindNormalization, "a_rename", json.RawMessage(`{"type":"column_mapping","mapping":{"B":"C"}}`)))
	assert.Equal(t, []string{"z_rename", "m_snake", "a_rename"}, r.Names(domain.RuleKindNormalization))

	// The order survives an export and import.
	exported, err := r.Export()
	require.NoError(t, err)
	other, _ := newTestRegistry(t)
	require.NoError(t, other.Import(exported))
	assert.Equal(t, []string{"z_rename", "m_snake", "a_rename"}, other.Names(domain.RuleKindNormalization))
}

func TestRegistryImportWithoutOrder(t *testing.T) {
	r, _ := newTestRegistry(t)
	doc := `{"flag":{
		"late":{"type":"flag","config":{"type":"outlier","column":"a"},"created_at":"2024-01-02T00:00:00.000000"},
		"b_tie":{"type":"flag","config":{"type":"outlier","column":"a"},"created_at":"2024-01-01T00:00:00.000000"},
		"a_tie":{"type":"flag","config":{"type":"outlier","column":"a"},"created_at":"2024-01-01T00:00:00.000000"}
	}}`
	require.NoError(t, r.Import([]byte(doc)))
	assert.Equal(t, []string{"a_tie", "b_tie", "late"}, r.Names(domain.RuleKindFlag))
}

func TestApplyAggregationAndFlags(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Add(domain.RuleKindAggregation, "by_account", json.RawMessage(`{"type":"group_by","group_by":"account","value_columns":"amount"}`)))
	require.NoError(t, r.Add(domain.RuleKindAggregation, "invalid", json.RawMessage(`{"type":"group_by"}`)))
	require.NoError(t, r.Add(domain.RuleKindFlag, "big", json.RawMessage(`{"type":"threshold","column":"amount","threshold":50}`)))
	require.NoError(t, r.Add(domain.RuleKindValidation, "amount_present", json.RawMessage(`{"type":"not_null","column":"amount"}`)))

	ds := accounts(t)

	aggs := r.ApplyAggregation(context.Background(), ds)
	require.Len(t, aggs, 2)
	require.NoError(t, aggs["by_account"].Err)
	assert.Equal(t, []string{"account", "amount_sum"}, aggs["by_account"].Result.Columns)

	var ve *aggregation.ValidationError
	require.ErrorAs(t, aggs["invalid"].Err, &ve)
	out, err := json.Marshal(aggs["invalid"])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"error_id":"AGG_`)
	assert.Contains(t, string(out), "group_by is required for group_by aggregation")

	flags := r.ApplyFlags(ds, "big", "nope")
	require.Len(t, flags, 1)
	assert.Equal(t, 2, flags["big"].FlaggedCount)

	reports := r.ApplyValidation(ds)
	assert.False(t, reports["amount_present"].Passed)
	assert.Equal(t, 1, reports["amount_present"].FailedCount)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r, _ := newTestRegistry(t)
	var nowMu sync.Mutex
	inner := r.now
	r.now = func() time.Time {
		nowMu.Lock()
		defer nowMu.Unlock()
		return inner()
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("rule-%d", i)
			_ = r.Add(domain.RuleKindFlag, name, json.RawMessage(`{"type":"outlier","column":"a"}`))
			r.Delete(domain.RuleKindFlag, name)
		}(i)
		go func() {
			defer wg.Done()
			_, err := r.Export()
			assert.NoError(t, err)
			_ = r.List()
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Count())
}
