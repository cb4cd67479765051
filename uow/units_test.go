package uow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/logging"
	"refsync/store/memory"
	"refsync/uow"
)

func group(id, name string) *refbook.Group {
	g := &refbook.Group{Name: name}
	g.ID = id
	return g
}

func TestManager_OverlappingUnitsRollBackIndependently(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository[*refbook.Group](domain.KindGroup)
	events := memory.NewHistoryStore()
	m := uow.NewManager(logging.NewNoopLogger(), repo, events)

	require.NoError(t, repo.Save(ctx, group("g-0", "Base")))

	boom := errors.New("boom")
	err := m.Do(ctx, func(a context.Context) error {
		require.NoError(t, repo.Save(a, group("A", "Alpha"), group("g-0", "Base edited by A")))
		require.NoError(t, events.Append(a, &domain.HistoryEvent{ID: 1, TargetID: "A", EventType: domain.EventCreate}))

		// 第二个工作单元在 A 之后开始、在 A 回滚之前提交
		require.NoError(t, m.Do(context.Background(), func(b context.Context) error {
			assert.NotEqual(t, uow.ID(a), uow.ID(b))
			if err := repo.Save(b, group("B", "Beta")); err != nil {
				return err
			}
			return events.Append(b, &domain.HistoryEvent{ID: 2, TargetID: "B", EventType: domain.EventCreate})
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.FindByID(ctx, "A")
	assert.Error(t, err, "回滚的单元写入不应保留")
	got, err := repo.FindByID(ctx, "B")
	require.NoError(t, err, "已提交的单元写入应保留")
	assert.Equal(t, "Beta", got.Name)
	base, err := repo.FindByID(ctx, "g-0")
	require.NoError(t, err)
	assert.Equal(t, "Base", base.Name)

	assert.Equal(t, 1, events.Len())
	chain, err := events.ListByTarget(ctx, "B")
	require.NoError(t, err)
	assert.Len(t, chain, 1)
	chain, err = events.ListByTarget(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, chain)
}
