package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/errors"
)

func reconcileGroups(t *testing.T, r *Reconciler, existing, incoming []*refbook.Group) *ChangeBatch {
	t.Helper()
	ex, err := IndexBy(existing, func(g *refbook.Group) string { return FoldKey(g.Name) })
	require.NoError(t, err)
	in, err := IndexBy(incoming, func(g *refbook.Group) string { return FoldKey(g.Name) })
	require.NoError(t, err)
	batch, err := Reconcile(context.Background(), r, domain.KindGroup, ex, in, nil, testDate, "tester")
	require.NoError(t, err)
	return batch
}

func TestReconcile_Example1Restore(t *testing.T) {
	r := newTestReconciler()
	batch := reconcileGroups(t, r, []*refbook.Group{closedGroup("g1", "Sales")}, []*refbook.Group{group("", "Sales")})

	restored := Entities[*refbook.Group](batch.Set(domain.ChangeRestore))
	require.Len(t, restored, 1)
	assert.Equal(t, "g1", restored[0].GetID())
	require.NotNil(t, restored[0].LatestEvent())
	assert.Equal(t, domain.EventRestore, restored[0].LatestEvent().EventType)
	assert.Equal(t, int64(90), restored[0].LatestEvent().PreviousID)
	assert.False(t, restored[0].IsClosed())
	assert.Len(t, batch.Events(), 1)
}

func TestReconcile_Example2FieldSkip(t *testing.T) {
	r := newTestReconciler()
	old := withEvent(&refbook.Field{MetaFieldID: "m1", RecordID: "r1", Value: "USD"}, 5, domain.EventCreate)
	old.ID = "f1"

	batch, err := Reconcile(context.Background(), r, domain.KindField,
		map[string]*refbook.Field{"r1": old},
		map[string]*refbook.Field{"r1": {MetaFieldID: "m1", RecordID: "r1", Value: "USD"}},
		nil, testDate, "tester")
	require.NoError(t, err)

	skipped := Entities[*refbook.Field](batch.Set(domain.ChangeSkip))
	require.Len(t, skipped, 1)
	assert.Equal(t, "f1", skipped[0].GetID())
	assert.Equal(t, int64(5), skipped[0].GetHistoryID())
	assert.Empty(t, batch.Events())
	assert.False(t, batch.HasChanges())
}

func TestReconcile_Example3Create(t *testing.T) {
	r := newTestReconciler()
	batch, err := Reconcile(context.Background(), r, domain.KindDictionary,
		nil,
		map[string]*refbook.Dictionary{"currencies": {GroupID: "g1", Name: "Currencies"}},
		nil, testDate, "tester")
	require.NoError(t, err)

	created := Entities[*refbook.Dictionary](batch.Set(domain.ChangeCreate))
	require.Len(t, created, 1)
	assert.Equal(t, "new-1", created[0].GetID())
	ev := created[0].LatestEvent()
	require.NotNil(t, ev)
	assert.Equal(t, domain.EventCreate, ev.EventType)
	assert.Equal(t, "new-1", ev.TargetID)
	assert.Equal(t, "tester", ev.Author)
	assert.Equal(t, testDate, ev.EventDate)
	_, hasName := ev.DiffFor("name")
	assert.True(t, hasName)
}

func TestReconcile_ClosesMissingExactlyOnce(t *testing.T) {
	r := newTestReconciler()
	existing := []*refbook.Group{openGroup("g1", "Sales"), openGroup("g2", "Finance"), closedGroup("g3", "Legacy")}
	batch := reconcileGroups(t, r, existing, []*refbook.Group{group("", "Sales")})

	closed := ClosedOf[*refbook.Group](batch)
	require.Len(t, closed, 1)
	assert.Equal(t, "g2", closed[0].GetID())
	assert.True(t, closed[0].IsClosed())

	ev := closed[0].LatestEvent()
	d, ok := ev.DiffFor("name")
	require.True(t, ok, "close events carry a full snapshot")
	assert.Equal(t, "Finance", d.From)
	assert.Equal(t, "Finance", d.To)

	assert.Equal(t, 1, batch.Count(domain.ChangeIgnore))
	assert.Equal(t, 1, batch.Count(domain.ChangeSkip))
	assert.False(t, existing[1].IsClosed(), "existing entities are never mutated")
}

func TestReconcile_Idempotent(t *testing.T) {
	r := newTestReconciler()
	incoming := []*refbook.Group{group("", "Sales"), group("", "Finance")}
	first := reconcileGroups(t, r, []*refbook.Group{openGroup("g9", "Legacy")}, incoming)

	second := reconcileGroups(t, r, ActualOf[*refbook.Group](first), []*refbook.Group{group("", "Sales"), group("", "Finance")})
	assert.Equal(t, []domain.ChangeType{domain.ChangeSkip}, second.Types())

	closedOnly := reconcileGroups(t, r, ClosedOf[*refbook.Group](first), nil)
	assert.Equal(t, []domain.ChangeType{domain.ChangeIgnore}, closedOnly.Types())
	again := reconcileGroups(t, r, Entities[*refbook.Group](closedOnly.Set(domain.ChangeIgnore)), nil)
	assert.Equal(t, []domain.ChangeType{domain.ChangeIgnore}, again.Types())
}

func TestReconcile_RoundTripIdentityMergeSkips(t *testing.T) {
	r := newTestReconciler()
	old := openGroup("g1", "Sales")
	old.Tags = []string{"x"}

	identity := func(incoming, existing *refbook.Group) *refbook.Group { return incoming }
	batch, err := Reconcile(context.Background(), r, domain.KindGroup,
		map[string]*refbook.Group{"k": old}, map[string]*refbook.Group{"k": old.Clone()},
		identity, testDate, "tester")
	require.NoError(t, err)
	assert.Equal(t, []domain.ChangeType{domain.ChangeSkip}, batch.Types())
}

func TestReconcile_UpdateCarriesIdentityAndDiff(t *testing.T) {
	r := newTestReconciler()
	old := openGroup("g1", "Sales")
	old.Permissions = domain.PermRead

	incoming := group("ignored", "Sales")
	incoming.Description = "EMEA sales"
	batch := reconcileGroups(t, r, []*refbook.Group{old}, []*refbook.Group{incoming})

	updated := Entities[*refbook.Group](batch.Set(domain.ChangeUpdate))
	require.Len(t, updated, 1)
	assert.Equal(t, "g1", updated[0].GetID())
	assert.Equal(t, domain.PermRead, updated[0].Permissions)
	ev := updated[0].LatestEvent()
	assert.Equal(t, int64(10), ev.PreviousID)
	require.Len(t, ev.Diffs, 1)
	assert.Equal(t, domain.Diff{FieldType: "STRING", FieldName: "description", From: "", To: "EMEA sales"}, ev.Diffs[0])
}

func TestReconcile_ValidationAborts(t *testing.T) {
	r := newTestReconciler()
	_, err := Reconcile(context.Background(), r, domain.KindDictionary,
		nil,
		map[string]*refbook.Dictionary{"a": {GroupID: "g1", Name: "A"}, "b": {Name: "missing group"}},
		nil, testDate, "tester")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestReconcile_SelfMappingRuleRejected(t *testing.T) {
	r := newTestReconciler()
	_, err := Reconcile(context.Background(), r, domain.KindRule,
		nil,
		map[string]*refbook.Rule{"r": {RuleSetID: "rs", From: refbook.FieldSnapshot{FieldID: "f1"}, To: refbook.FieldSnapshot{FieldID: "f1"}}},
		nil, testDate, "tester")
	assert.True(t, errors.IsValidation(err))
}

func TestIndexBy_Duplicate(t *testing.T) {
	_, err := IndexBy([]*refbook.Group{group("", "Sales"), group("", "SALES")},
		func(g *refbook.Group) string { return FoldKey(g.Name) })
	assert.True(t, errors.IsDuplicate(err))
	assert.True(t, errors.IsValidation(err))
}

func TestChangeBatch_Isolated(t *testing.T) {
	r := newTestReconciler()
	batch := reconcileGroups(t, r, nil, []*refbook.Group{group("", "Sales")})
	iso := batch.Isolated()

	assert.Equal(t, domain.ModeIsolated, iso.Mode)
	assert.Equal(t, domain.ModeIsolated, iso.Set(domain.ChangeCreate).Mode)
	assert.Same(t, iso, iso.Set(domain.ChangeCreate).Batch())
	assert.Equal(t, batch.Summary(), iso.Summary())
	assert.Equal(t, "CREATE=1", batch.Summary())
}
