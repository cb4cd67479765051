package actualize

import (
	"context"
	"time"

	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/errors"
	"refsync/history"
	"refsync/logging"
	"refsync/store"
)

// IDispatcher 级联产生的批次交回分发器，在同一工作单元内递归分发
type IDispatcher interface {
	Dispatch(ctx context.Context, batch *history.ChangeBatch, filter ...domain.ChangeType) error
}

// Config 级联观察者配置
type Config struct {
	Repositories Repositories
	Reconciler   *history.Reconciler
	Dispatcher   IDispatcher

	// Mode 级联批次的分发模式；ISOLATED 时级联结果只做自身处理，不再向下传播
	Mode   domain.ChangeMode
	Logger logging.Logger
}

type cascade struct {
	repos      Repositories
	reconciler *history.Reconciler
	dispatcher IDispatcher
	mode       domain.ChangeMode
	logger     logging.Logger
}

func newCascade(cfg Config) (*cascade, error) {
	if err := cfg.Repositories.Validate(); err != nil {
		return nil, err
	}
	if cfg.Reconciler == nil || cfg.Dispatcher == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "级联观察者需要 Reconciler 与 Dispatcher")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Component("actualize")
	}
	return &cascade{
		repos:      cfg.Repositories,
		reconciler: cfg.Reconciler,
		dispatcher: cfg.Dispatcher,
		mode:       cfg.Mode,
		logger:     cfg.Logger,
	}, nil
}

// apply 对账级联计划并递归分发，事件的时间与作者沿用触发批次
func apply[T domain.Entity[T]](ctx context.Context, c *cascade, kind domain.EntityKind, plan Plan[T], trigger *history.ChangeSet) error {
	if plan.Empty() {
		return nil
	}
	date, author := provenance(trigger)
	batch, err := history.Reconcile(ctx, c.reconciler, kind, plan.Existing, plan.Incoming, nil, date, author)
	if err != nil {
		return err
	}
	if !batch.HasChanges() {
		return nil
	}
	c.logger.Info(ctx, "级联变更", logging.String("trigger", trigger.Kind.String()+"."+trigger.Type.String()),
		logging.String("kind", kind.String()), logging.String("summary", batch.Summary()))
	if c.mode == domain.ModeIsolated {
		batch = batch.Isolated()
	}
	return c.dispatcher.Dispatch(ctx, batch)
}

func provenance(set *history.ChangeSet) (time.Time, string) {
	for _, e := range set.Entities {
		if ev := e.LatestEvent(); ev != nil {
			return ev.EventDate, ev.Author
		}
	}
	return time.Now().UTC(), "system"
}

// refreshed 实际化结果转为计划：已存储版本对更新后的克隆
func refreshed[T domain.Entity[T]](stored, updated []T) Plan[T] {
	plan := newPlan[T]()
	byID := make(map[string]T, len(stored))
	for _, s := range stored {
		byID[s.GetID()] = s
	}
	for _, u := range updated {
		plan.Existing[u.GetID()] = byID[u.GetID()]
		plan.Incoming[u.GetID()] = u
	}
	return plan
}

// closing 计划只含已有实体，对账后全部关闭
func closing[T domain.Entity[T]](stored []T) Plan[T] {
	plan := newPlan[T]()
	for _, s := range stored {
		plan.Existing[s.GetID()] = s
	}
	return plan
}

func refreshing(t domain.ChangeType) bool {
	return t == domain.ChangeUpdate || t == domain.ChangeRestore
}

// RuleSetObserver 规则集的依赖实际化：分组、字典、元字段变化刷新端点快照；
// 元字段关闭时关闭引用它的规则集；字段变化刷新默认值，字段关闭时清空默认值。
type RuleSetObserver struct {
	*cascade
	byGroup      *Actualizer[*refbook.Group, *refbook.RuleSet, refbook.MetaFieldSnapshot]
	byDictionary *Actualizer[*refbook.Dictionary, *refbook.RuleSet, refbook.MetaFieldSnapshot]
	byMetaField  *Actualizer[*refbook.MetaField, *refbook.RuleSet, refbook.MetaFieldSnapshot]
	defaults     *Actualizer[*refbook.Field, *refbook.RuleSet, refbook.FieldSnapshot]
}

// NewRuleSetObserver 创建规则集级联观察者
func NewRuleSetObserver(cfg Config) (*RuleSetObserver, error) {
	c, err := newCascade(cfg)
	if err != nil {
		return nil, err
	}
	return &RuleSetObserver{
		cascade:      c,
		byGroup:      RuleSetsByGroup(c.repos),
		byDictionary: RuleSetsByDictionary(c.repos),
		byMetaField:  RuleSetsByMetaField(c.repos),
		defaults:     RuleSetDefaultsByField(),
	}, nil
}

func (o *RuleSetObserver) Kind() domain.EntityKind { return domain.KindRuleSet }

func (o *RuleSetObserver) Name() string { return "actualize:RULE_SET" }

func (o *RuleSetObserver) HandleSelf(ctx context.Context, set *history.ChangeSet) error { return nil }

func (o *RuleSetObserver) HandleOther(ctx context.Context, set *history.ChangeSet) error {
	var (
		plan Plan[*refbook.RuleSet]
		err  error
	)
	switch {
	case set.Kind == domain.KindGroup && refreshing(set.Type):
		plan, err = endpoints(ctx, o.repos.RuleSets, o.byGroup, history.Entities[*refbook.Group](set), "groupId")
	case set.Kind == domain.KindDictionary && refreshing(set.Type):
		plan, err = endpoints(ctx, o.repos.RuleSets, o.byDictionary, history.Entities[*refbook.Dictionary](set), "dictionaryId")
	case set.Kind == domain.KindMetaField && refreshing(set.Type):
		plan, err = endpoints(ctx, o.repos.RuleSets, o.byMetaField, history.Entities[*refbook.MetaField](set), "metaFieldId")
	case set.Kind == domain.KindMetaField && set.Type == domain.ChangeClose:
		plan, err = o.closeByMetaField(ctx, domain.IDs(set.Entities))
	case set.Kind == domain.KindField && refreshing(set.Type):
		plan, err = o.refreshDefaults(ctx, history.Entities[*refbook.Field](set))
	case set.Kind == domain.KindField && set.Type == domain.ChangeClose:
		plan, err = o.clearDefaults(ctx, domain.IDs(set.Entities))
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return apply(ctx, o.cascade, domain.KindRuleSet, plan, set)
}

// endpoints 读取任一端点引用了变化实体的规则集并刷新
func endpoints[D domain.IHistorical](ctx context.Context, repo store.IRepository[*refbook.RuleSet],
	a *Actualizer[D, *refbook.RuleSet, refbook.MetaFieldSnapshot], changed []D, path string) (Plan[*refbook.RuleSet], error) {
	ids := domain.IDs(changed)
	stored, err := repo.FindByCriteria(ctx, store.AnyOf(store.Where("from."+path, ids...), store.Where("to."+path, ids...)))
	if err != nil {
		return Plan[*refbook.RuleSet]{}, err
	}
	_, updated, err := a.Actualize(ctx, changed, stored)
	if err != nil {
		return Plan[*refbook.RuleSet]{}, err
	}
	return refreshed(stored, updated), nil
}

func (o *RuleSetObserver) closeByMetaField(ctx context.Context, ids []string) (Plan[*refbook.RuleSet], error) {
	stored, err := o.repos.RuleSets.FindByCriteria(ctx, store.AnyOf(
		store.Where("from.metaFieldId", ids...),
		store.Where("to.metaFieldId", ids...),
	))
	if err != nil {
		return Plan[*refbook.RuleSet]{}, err
	}
	return closing(stored), nil
}

func (o *RuleSetObserver) refreshDefaults(ctx context.Context, fields []*refbook.Field) (Plan[*refbook.RuleSet], error) {
	stored, err := o.repos.RuleSets.FindByCriteria(ctx, store.AnyOf(store.Where("default.fieldId", domain.IDs(fields)...)))
	if err != nil {
		return Plan[*refbook.RuleSet]{}, err
	}
	_, updated, err := o.defaults.Actualize(ctx, fields, stored)
	if err != nil {
		return Plan[*refbook.RuleSet]{}, err
	}
	return refreshed(stored, updated), nil
}

// clearDefaults 默认值字段关闭后规则集保持有效，只去掉默认值
func (o *RuleSetObserver) clearDefaults(ctx context.Context, ids []string) (Plan[*refbook.RuleSet], error) {
	stored, err := o.repos.RuleSets.FindByCriteria(ctx, store.AnyOf(store.Where("default.fieldId", ids...)))
	if err != nil {
		return Plan[*refbook.RuleSet]{}, err
	}
	updated := make([]*refbook.RuleSet, 0, len(stored))
	for _, rs := range stored {
		c := rs.Clone()
		c.Default = nil
		updated = append(updated, c)
	}
	return refreshed(stored, updated), nil
}

// RuleObserver 规则的依赖实际化与冲突处理
type RuleObserver struct {
	*cascade
	byField  *Actualizer[*refbook.Field, *refbook.Rule, refbook.FieldSnapshot]
	resolver *ConflictResolver
}

// NewRuleObserver 创建规则级联观察者
func NewRuleObserver(cfg Config) (*RuleObserver, error) {
	c, err := newCascade(cfg)
	if err != nil {
		return nil, err
	}
	return &RuleObserver{
		cascade:  c,
		byField:  RulesByField(),
		resolver: NewConflictResolver(c.repos.Rules, c.logger),
	}, nil
}

func (o *RuleObserver) Kind() domain.EntityKind { return domain.KindRule }

func (o *RuleObserver) Name() string { return "actualize:RULE" }

func (o *RuleObserver) HandleSelf(ctx context.Context, set *history.ChangeSet) error { return nil }

func (o *RuleObserver) HandleOther(ctx context.Context, set *history.ChangeSet) error {
	var (
		plan Plan[*refbook.Rule]
		err  error
	)
	switch {
	case set.Kind == domain.KindField && set.Type == domain.ChangeCreate:
		plan, err = o.synthesize(ctx, history.Entities[*refbook.Field](set))
	case set.Kind == domain.KindField && refreshing(set.Type):
		plan, err = o.refresh(ctx, history.Entities[*refbook.Field](set))
	case set.Kind == domain.KindField && set.Type == domain.ChangeClose:
		plan, err = o.resolver.Dangling(ctx, domain.IDs(set.Entities))
	case set.Kind == domain.KindRuleSet && set.Type == domain.ChangeClose:
		plan, err = o.closeByRuleSet(ctx, domain.IDs(set.Entities))
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return apply(ctx, o.cascade, domain.KindRule, plan, set)
}

func (o *RuleObserver) refresh(ctx context.Context, fields []*refbook.Field) (Plan[*refbook.Rule], error) {
	ids := domain.IDs(fields)
	stored, err := o.repos.Rules.FindByCriteria(ctx, store.AnyOf(
		store.Where("from.fieldId", ids...),
		store.Where("to.fieldId", ids...),
	))
	if err != nil {
		return Plan[*refbook.Rule]{}, err
	}
	_, updated, err := o.byField.Actualize(ctx, fields, stored)
	if err != nil {
		return Plan[*refbook.Rule]{}, err
	}
	return o.resolver.Resolve(ctx, updated)
}

func (o *RuleObserver) synthesize(ctx context.Context, fields []*refbook.Field) (Plan[*refbook.Rule], error) {
	metaFieldIDs := make([]string, 0, len(fields))
	for _, f := range fields {
		metaFieldIDs = append(metaFieldIDs, f.MetaFieldID)
	}
	ruleSets, err := o.repos.RuleSets.FindByCriteria(ctx, store.AnyOf(store.Where("from.metaFieldId", metaFieldIDs...)))
	if err != nil {
		return Plan[*refbook.Rule]{}, err
	}
	return o.resolver.Synthesize(ctx, fields, ruleSets)
}

func (o *RuleObserver) closeByRuleSet(ctx context.Context, ids []string) (Plan[*refbook.Rule], error) {
	stored, err := o.repos.Rules.FindByCriteria(ctx, store.AnyOf(store.Where("ruleSetId", ids...)))
	if err != nil {
		return Plan[*refbook.Rule]{}, err
	}
	return closing(stored), nil
}

// SyncTaskObserver 同步任务随所绑定字典刷新快照，字典关闭时关闭任务
type SyncTaskObserver struct {
	*cascade
	byGroup      *Actualizer[*refbook.Group, *refbook.SyncTask, refbook.DictionarySnapshot]
	byDictionary *Actualizer[*refbook.Dictionary, *refbook.SyncTask, refbook.DictionarySnapshot]
}

// NewSyncTaskObserver 创建同步任务级联观察者
func NewSyncTaskObserver(cfg Config) (*SyncTaskObserver, error) {
	c, err := newCascade(cfg)
	if err != nil {
		return nil, err
	}
	return &SyncTaskObserver{
		cascade:      c,
		byGroup:      SyncTasksByGroup(c.repos),
		byDictionary: SyncTasksByDictionary(c.repos),
	}, nil
}

func (o *SyncTaskObserver) Kind() domain.EntityKind { return domain.KindSyncTask }

func (o *SyncTaskObserver) Name() string { return "actualize:SYNC_TASK" }

func (o *SyncTaskObserver) HandleSelf(ctx context.Context, set *history.ChangeSet) error { return nil }

func (o *SyncTaskObserver) HandleOther(ctx context.Context, set *history.ChangeSet) error {
	var (
		plan Plan[*refbook.SyncTask]
		err  error
	)
	switch {
	case set.Kind == domain.KindGroup && refreshing(set.Type):
		plan, err = tasks(ctx, o.repos.SyncTasks, o.byGroup, history.Entities[*refbook.Group](set), "dictionary.groupId")
	case set.Kind == domain.KindDictionary && refreshing(set.Type):
		plan, err = tasks(ctx, o.repos.SyncTasks, o.byDictionary, history.Entities[*refbook.Dictionary](set), "dictionary.dictionaryId")
	case set.Kind == domain.KindDictionary && set.Type == domain.ChangeClose:
		var stored []*refbook.SyncTask
		stored, err = o.repos.SyncTasks.FindByCriteria(ctx, store.AnyOf(store.Where("dictionary.dictionaryId", domain.IDs(set.Entities)...)))
		plan = closing(stored)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return apply(ctx, o.cascade, domain.KindSyncTask, plan, set)
}

func tasks[D domain.IHistorical](ctx context.Context, repo store.IRepository[*refbook.SyncTask],
	a *Actualizer[D, *refbook.SyncTask, refbook.DictionarySnapshot], changed []D, path string) (Plan[*refbook.SyncTask], error) {
	stored, err := repo.FindByCriteria(ctx, store.AnyOf(store.Where(path, domain.IDs(changed)...)))
	if err != nil {
		return Plan[*refbook.SyncTask]{}, err
	}
	_, updated, err := a.Actualize(ctx, changed, stored)
	if err != nil {
		return Plan[*refbook.SyncTask]{}, err
	}
	return refreshed(stored, updated), nil
}
