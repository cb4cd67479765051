package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/errors"
	"refsync/store"
)

func event(id int64, target string, t domain.EventType) *domain.HistoryEvent {
	return &domain.HistoryEvent{ID: id, TargetID: target, TargetKind: domain.KindRuleSet, EventType: t,
		EventDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Author: "test"}
}

func ruleSet(id, name, fromMeta string, closed bool) *refbook.RuleSet {
	rs := &refbook.RuleSet{Name: name, From: refbook.MetaFieldSnapshot{MetaFieldID: fromMeta}, To: refbook.MetaFieldSnapshot{MetaFieldID: "m-to"}}
	rs.ID = id
	typ := domain.EventCreate
	if closed {
		typ = domain.EventClose
	}
	rs.AttachHistory(event(int64(len(id)+len(name)), id, typ))
	return rs
}

func TestRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[*refbook.RuleSet](domain.KindRuleSet)
	rs := ruleSet("rs-1", "Currency", "m-1", false)
	require.NoError(t, repo.Save(ctx, rs))

	got, err := repo.FindByID(ctx, "rs-1")
	require.NoError(t, err)
	assert.Equal(t, "Currency", got.Name)
	assert.NotSame(t, rs, got)
	require.NotNil(t, got.LatestEvent())
	assert.Equal(t, domain.EventCreate, got.LatestEvent().EventType)

	got.Name = "mutated"
	again, _ := repo.FindByID(ctx, "rs-1")
	assert.Equal(t, "Currency", again.Name)

	_, err = repo.FindByID(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
	quiet, err := store.Quiet(repo.FindByID(ctx, "missing"))
	require.NoError(t, err)
	assert.Nil(t, quiet)
}

func TestRepository_SaveWithoutID(t *testing.T) {
	repo := NewRepository[*refbook.Group](domain.KindGroup)
	err := repo.Save(context.Background(), &refbook.Group{Name: "x"})
	assert.True(t, errors.IsProgramming(err))
	assert.Zero(t, repo.Len())
}

func TestRepository_FindByCriteria(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[*refbook.RuleSet](domain.KindRuleSet)
	require.NoError(t, repo.Save(ctx,
		ruleSet("rs-1", "A", "m-1", false),
		ruleSet("rs-2", "B", "m-2", false),
		ruleSet("rs-3", "C", "m-1", true),
	))

	t.Run("按嵌套路径", func(t *testing.T) {
		found, err := repo.FindByCriteria(ctx, store.AnyOf(store.Where("from.metaFieldId", "m-1")))
		require.NoError(t, err)
		assert.Equal(t, []string{"rs-1"}, domain.IDs(found))
	})
	t.Run("包含已关闭", func(t *testing.T) {
		c := store.AnyOf(store.Where("from.metaFieldId", "m-1"))
		c.IncludeClosed = true
		found, err := repo.FindByCriteria(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, []string{"rs-1", "rs-3"}, domain.IDs(found))
	})
	t.Run("多个条件取并集", func(t *testing.T) {
		found, err := repo.FindByCriteria(ctx, store.AnyOf(store.Where("id", "rs-2"), store.Where("to.metaFieldId", "m-to")))
		require.NoError(t, err)
		assert.Equal(t, []string{"rs-1", "rs-2"}, domain.IDs(found))
	})
	t.Run("无候选值", func(t *testing.T) {
		found, err := repo.FindByCriteria(ctx, store.AnyOf(store.Where("id")))
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestRepository_FindAllByRelatedID(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[*refbook.Field](domain.KindField)
	for i, meta := range []string{"m-1", "m-2", "m-1"} {
		f := &refbook.Field{MetaFieldID: meta, RecordID: "r", Value: "v"}
		f.ID = []string{"f-1", "f-2", "f-3"}[i]
		require.NoError(t, repo.Save(ctx, f))
	}

	found, err := repo.FindAllByRelatedID(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"f-1", "f-3"}, domain.IDs(found))

	all, err := repo.FindAllByRelatedID(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRepository_Rollback(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[*refbook.RuleSet](domain.KindRuleSet)
	require.NoError(t, repo.Save(ctx, ruleSet("rs-1", "A", "m-1", false)))

	ctx, err := repo.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, ruleSet("rs-2", "B", "m-1", false), ruleSet("rs-1", "A2", "m-1", false)))
	require.NoError(t, repo.Rollback(ctx))

	assert.Equal(t, 1, repo.Len())
	got, err := repo.FindByID(ctx, "rs-1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
}

func TestHistoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewHistoryStore()
	require.NoError(t, s.Append(ctx, event(2, "t-1", domain.EventUpdate), event(1, "t-1", domain.EventCreate), event(3, "t-2", domain.EventCreate)))

	chain, err := s.ListByTarget(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, int64(1), chain[0].ID)
	assert.Equal(t, int64(2), chain[1].ID)

	err = s.Append(ctx, event(1, "t-3", domain.EventCreate))
	assert.True(t, errors.IsDuplicate(err))

	_, err = s.FindByID(ctx, 99)
	assert.True(t, errors.IsNotFound(err))

	ctx, _ = s.Begin(ctx)
	require.NoError(t, s.Append(ctx, event(4, "t-1", domain.EventClose)))
	require.NoError(t, s.Rollback(ctx))
	chain, _ = s.ListByTarget(ctx, "t-1")
	assert.Len(t, chain, 2)
	assert.Equal(t, 3, s.Len())
}
