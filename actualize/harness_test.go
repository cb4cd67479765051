package actualize_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"refsync/actualize"
	"refsync/dispatch"
	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/history"
	"refsync/logging"
	"refsync/store"
	"refsync/store/memory"
)

var testDate = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	groups       *memory.Repository[*refbook.Group]
	dictionaries *memory.Repository[*refbook.Dictionary]
	metaFields   *memory.Repository[*refbook.MetaField]
	fields       *memory.Repository[*refbook.Field]
	ruleSets     *memory.Repository[*refbook.RuleSet]
	rules        *memory.Repository[*refbook.Rule]
	tasks        *memory.Repository[*refbook.SyncTask]
	events       *memory.HistoryStore

	repos      actualize.Repositories
	reconciler *history.Reconciler
	dispatcher *dispatch.Dispatcher
	seq        int64
}

func newHarness(t *testing.T, mode domain.ChangeMode) *harness {
	t.Helper()
	h := &harness{
		groups:       memory.NewRepository[*refbook.Group](domain.KindGroup),
		dictionaries: memory.NewRepository[*refbook.Dictionary](domain.KindDictionary),
		metaFields:   memory.NewRepository[*refbook.MetaField](domain.KindMetaField),
		fields:       memory.NewRepository[*refbook.Field](domain.KindField),
		ruleSets:     memory.NewRepository[*refbook.RuleSet](domain.KindRuleSet),
		rules:        memory.NewRepository[*refbook.Rule](domain.KindRule),
		tasks:        memory.NewRepository[*refbook.SyncTask](domain.KindSyncTask),
		events:       memory.NewHistoryStore(),
		seq:          10000,
	}
	h.repos = actualize.Repositories{
		Groups: h.groups, Dictionaries: h.dictionaries, MetaFields: h.metaFields, Fields: h.fields,
		RuleSets: h.ruleSets, Rules: h.rules, SyncTasks: h.tasks,
	}

	var err error
	noop := logging.NewNoopLogger()
	h.reconciler, err = history.NewReconciler(history.Config{Identity: &history.SequentialIdentity{Prefix: "new"}, Logger: noop})
	require.NoError(t, err)
	h.dispatcher = dispatch.NewDispatcher(noop)
	h.dispatcher.Register(
		store.NewObserver[*refbook.Group](h.groups, h.events, noop),
		store.NewObserver[*refbook.Dictionary](h.dictionaries, h.events, noop),
		store.NewObserver[*refbook.MetaField](h.metaFields, h.events, noop),
		store.NewObserver[*refbook.Field](h.fields, h.events, noop),
		store.NewObserver[*refbook.RuleSet](h.ruleSets, h.events, noop),
		store.NewObserver[*refbook.Rule](h.rules, h.events, noop),
		store.NewObserver[*refbook.SyncTask](h.tasks, h.events, noop),
	)

	cfg := actualize.Config{Repositories: h.repos, Reconciler: h.reconciler, Dispatcher: h.dispatcher, Mode: mode, Logger: noop}
	ruleSets, err := actualize.NewRuleSetObserver(cfg)
	require.NoError(t, err)
	rules, err := actualize.NewRuleObserver(cfg)
	require.NoError(t, err)
	tasks, err := actualize.NewSyncTaskObserver(cfg)
	require.NoError(t, err)
	h.dispatcher.Register(ruleSets, rules, tasks)
	return h
}

// seed 直接写入带 CREATE 事件的实体
func seed[T domain.Entity[T]](t *testing.T, h *harness, repo store.IRepository[T], entities ...T) {
	t.Helper()
	for _, e := range entities {
		h.seq++
		e.SetHistory(h.seq, &domain.HistoryEvent{
			ID: h.seq, TargetID: e.GetID(), TargetKind: e.Kind(), EventType: domain.EventCreate, EventDate: testDate, Author: "seed",
		})
	}
	require.NoError(t, repo.Save(context.Background(), entities...))
}

// change 以 ID 为键对账并分发；incoming 中缺少的已有实体会被关闭
func change[T domain.Entity[T]](t *testing.T, h *harness, kind domain.EntityKind, existing []T, incoming map[string]T) *history.ChangeBatch {
	t.Helper()
	ctx := context.Background()
	byID, err := history.IndexBy(existing, func(e T) string { return e.GetID() })
	require.NoError(t, err)
	batch, err := history.Reconcile(ctx, h.reconciler, kind, byID, incoming, nil, testDate.Add(time.Hour), "operator")
	require.NoError(t, err)
	require.NoError(t, h.dispatcher.Dispatch(ctx, batch))
	return batch
}

func find[T domain.Entity[T]](t *testing.T, repo store.IRepository[T], id string) T {
	t.Helper()
	e, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return e
}

func withID[T domain.IHistorical](e T, id string) T {
	e.SetID(id)
	return e
}

// fixture 分组 g1 下两个字典，各有一个主元字段；RS 将 d1 的值重编码为 d2 的值：
//
//	R1: F1(A) → T1(1)
//	R2: F2(B) → T2(2)
type fixture struct {
	group    *refbook.Group
	d1, d2   *refbook.Dictionary
	m1, m2   *refbook.MetaField
	f1, f2   *refbook.Field
	t1, t2   *refbook.Field
	ruleSet  *refbook.RuleSet
	r1, r2   *refbook.Rule
	syncTask *refbook.SyncTask
}

func newFixture(t *testing.T, h *harness) *fixture {
	t.Helper()
	fx := &fixture{
		group: withID(&refbook.Group{Code: "fin", Name: "Finance"}, "g1"),
		d1:    withID(&refbook.Dictionary{GroupID: "g1", Code: "cur", Name: "Currencies"}, "d1"),
		d2:    withID(&refbook.Dictionary{GroupID: "g1", Code: "iso", Name: "ISO codes"}, "d2"),
		m1:    withID(&refbook.MetaField{DictionaryID: "d1", Name: "Code", Type: refbook.TypeString, Primary: true}, "m1"),
		m2:    withID(&refbook.MetaField{DictionaryID: "d2", Name: "Numeric", Type: refbook.TypeString, Primary: true}, "m2"),
		f1:    withID(&refbook.Field{MetaFieldID: "m1", RecordID: "rec1", Value: "A"}, "F1"),
		f2:    withID(&refbook.Field{MetaFieldID: "m1", RecordID: "rec2", Value: "B"}, "F2"),
		t1:    withID(&refbook.Field{MetaFieldID: "m2", RecordID: "rec1", Value: "1"}, "T1"),
		t2:    withID(&refbook.Field{MetaFieldID: "m2", RecordID: "rec2", Value: "2"}, "T2"),
	}
	snap := func(m *refbook.MetaField, d *refbook.Dictionary) refbook.MetaFieldSnapshot {
		return refbook.MetaFieldSnapshot{MetaFieldID: m.ID, MetaFieldName: m.Name, DictionarySnapshot: refbook.DictionarySnapshot{
			DictionaryID: d.ID, DictionaryName: d.Name, GroupID: fx.group.ID, GroupName: fx.group.Name,
		}}
	}
	t1 := fx.t1.Snapshot()
	fx.ruleSet = withID(&refbook.RuleSet{Name: "Recode", From: snap(fx.m1, fx.d1), To: snap(fx.m2, fx.d2), Default: &t1}, "RS")
	fx.r1 = withID(&refbook.Rule{RuleSetID: "RS", From: fx.f1.Snapshot(), To: fx.t1.Snapshot()}, "R1")
	fx.r2 = withID(&refbook.Rule{RuleSetID: "RS", From: fx.f2.Snapshot(), To: fx.t2.Snapshot()}, "R2")
	fx.syncTask = withID(&refbook.SyncTask{Name: "nightly", Enabled: true, Dictionary: refbook.DictionarySnapshot{
		DictionaryID: "d1", DictionaryName: "Currencies", GroupID: "g1", GroupName: "Finance",
	}}, "task1")

	seed(t, h, h.repos.Groups, fx.group)
	seed(t, h, h.repos.Dictionaries, fx.d1, fx.d2)
	seed(t, h, h.repos.MetaFields, fx.m1, fx.m2)
	seed(t, h, h.repos.Fields, fx.f1, fx.f2, fx.t1, fx.t2)
	seed(t, h, h.repos.RuleSets, fx.ruleSet)
	seed(t, h, h.repos.Rules, fx.r1, fx.r2)
	seed(t, h, h.repos.SyncTasks, fx.syncTask)
	return fx
}
