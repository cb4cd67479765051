package actualize_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refsync/actualize"
	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/errors"
)

func TestRequire(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, domain.ModeDefault)
	open := withID(&refbook.Group{Name: "Finance"}, "g1")
	closed := withID(&refbook.Group{Name: "Ops"}, "g2")
	seed(t, h, h.repos.Groups, open, closed)
	closed.SetHistory(closed.GetHistoryID()+1, &domain.HistoryEvent{TargetID: "g2", TargetKind: domain.KindGroup, EventType: domain.EventClose, EventDate: testDate})
	require.NoError(t, h.groups.Save(ctx, closed))

	assert.NoError(t, actualize.Require(ctx, h.repos.Groups, "groupId", "g1"))
	assert.True(t, errors.IsValidation(actualize.Require(ctx, h.repos.Groups, "groupId", "g2")))
	assert.True(t, errors.IsValidation(actualize.Require(ctx, h.repos.Groups, "groupId", "ghost")))
	assert.True(t, errors.IsValidation(actualize.Require(ctx, h.repos.Groups, "groupId", "")))
}

func TestHydrator_RuleEndpoints(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, domain.ModeDefault)
	fx := newFixture(t, h)
	hydrator := actualize.NewHydrator(h.repos)

	t.Run("端点属于规则集的元字段", func(t *testing.T) {
		r := &refbook.Rule{RuleSetID: "RS", From: refbook.FieldSnapshot{FieldID: fx.f2.ID}, To: refbook.FieldSnapshot{FieldID: fx.t1.ID}}
		require.NoError(t, hydrator.Rule(ctx, r))
		assert.Equal(t, "B", r.From.Value)
		assert.Equal(t, "m2", r.To.MetaFieldID)
	})

	t.Run("端点方向颠倒", func(t *testing.T) {
		r := &refbook.Rule{RuleSetID: "RS", From: refbook.FieldSnapshot{FieldID: fx.t1.ID}, To: refbook.FieldSnapshot{FieldID: fx.f1.ID}}
		assert.True(t, errors.IsValidation(hydrator.Rule(ctx, r)))
	})

	t.Run("规则集不存在", func(t *testing.T) {
		r := &refbook.Rule{RuleSetID: "ghost", From: refbook.FieldSnapshot{FieldID: fx.f1.ID}, To: refbook.FieldSnapshot{FieldID: fx.t1.ID}}
		assert.True(t, errors.IsValidation(hydrator.Rule(ctx, r)))
	})
}

func TestCheckMappings(t *testing.T) {
	h := newHarness(t, domain.ModeDefault)
	fx := newFixture(t, h)

	lower := fx.r2.Clone()
	lower.ID = "R3"
	lower.From.Value = "a"

	t.Run("源值折叠后相同且目标一致", func(t *testing.T) {
		same := lower.Clone()
		same.To = fx.t1.Snapshot()
		assert.NoError(t, actualize.CheckMappings([]*refbook.Rule{fx.r1, fx.r2, same}))
	})

	t.Run("源值折叠后相同而目标不同", func(t *testing.T) {
		err := actualize.CheckMappings([]*refbook.Rule{fx.r1, fx.r2, lower})
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("不同规则集互不影响", func(t *testing.T) {
		other := lower.Clone()
		other.RuleSetID = "RS2"
		assert.NoError(t, actualize.CheckMappings([]*refbook.Rule{fx.r1, fx.r2, other}))
	})
}
