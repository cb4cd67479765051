// Package engine 装配对账、分发与级联实际化，对外提供按类型的批量同步入口。
//
// 每次 Sync 调用是一个工作单元：读取作用域内的已有实体，按自然键对账传入批次，
// 然后在同一工作单元内分发变更（持久化、索引、外发以及依赖方的级联实际化）。
// 任一观察者失败时整个工作单元回滚。
package engine

import (
	"context"
	stdErrors "errors"
	"io"
	"slices"

	"refsync/actualize"
	"refsync/dispatch"
	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/errors"
	"refsync/history"
	"refsync/index"
	"refsync/logging"
	"refsync/relay"
	"refsync/store"
	"refsync/uow"
)

// Engine 参考数据同步引擎
type Engine struct {
	opts       *Options
	storage    *Storage
	repos      actualize.Repositories
	units      *uow.Manager
	reconciler *history.Reconciler
	dispatcher *dispatch.Dispatcher
	hydrator   *actualize.Hydrator
	factory    *actualize.RuleSetFactory
	logger     logging.Logger
}

// New 基于给定存储装配引擎
func New(storage *Storage, opts ...Option) (*Engine, error) {
	if storage == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "未配置存储")
	}
	if err := storage.Repositories.Validate(); err != nil {
		return nil, err
	}
	options := DefaultOptions()
	for _, o := range opts {
		o(options)
	}
	if options.Logger == nil {
		options.Logger = logging.Component("engine")
	}

	reconciler, err := history.NewReconciler(history.Config{Identity: options.Identity, Logger: options.Logger})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:       options,
		storage:    storage,
		repos:      storage.Repositories,
		units:      uow.NewManager(options.Logger, storage.Participants...),
		reconciler: reconciler,
		dispatcher: dispatch.NewDispatcher(options.Logger),
		hydrator:   actualize.NewHydrator(storage.Repositories),
		factory:    actualize.NewRuleSetFactory(storage.Repositories),
		logger:     options.Logger,
	}
	e.dispatcher.Use(dispatch.NewTracingMiddleware(options.MaxDepth))
	e.dispatcher.Use(dispatch.NewLoggingMiddleware(options.Logger))

	observe(e, e.repos.Groups)
	observe(e, e.repos.Dictionaries)
	observe(e, e.repos.MetaFields)
	observe(e, e.repos.Fields)
	observe(e, e.repos.RuleSets)
	observe(e, e.repos.Rules)
	observe(e, e.repos.SyncTasks)

	cfg := actualize.Config{
		Repositories: e.repos,
		Reconciler:   reconciler,
		Dispatcher:   e.dispatcher,
		Mode:         options.CascadeMode,
		Logger:       options.Logger,
	}
	ruleSets, err := actualize.NewRuleSetObserver(cfg)
	if err != nil {
		return nil, err
	}
	rules, err := actualize.NewRuleObserver(cfg)
	if err != nil {
		return nil, err
	}
	tasks, err := actualize.NewSyncTaskObserver(cfg)
	if err != nil {
		return nil, err
	}
	e.dispatcher.Register(ruleSets, rules, tasks)
	return e, nil
}

// observe 注册某一类型的自身观察者：持久化、索引、外发
func observe[T domain.Entity[T]](e *Engine, repo store.IRepository[T]) {
	e.dispatcher.Register(store.NewObserver[T](repo, e.storage.Events, e.logger))
	if e.opts.Index != nil {
		e.dispatcher.Register(index.NewObserver(repo.Kind(), e.opts.Index, e.reconciler.Hasher(), e.logger))
	}
	if e.opts.Publisher != nil {
		e.dispatcher.Register(relay.NewObserver(repo.Kind(), e.opts.Publisher, e.opts.Retry, e.logger))
	}
}

// Repositories 只读访问各类型仓储
func (e *Engine) Repositories() actualize.Repositories { return e.repos }

// Dispatcher 供调用方注册额外的观察者
func (e *Engine) Dispatcher() *dispatch.Dispatcher { return e.dispatcher }

// Publisher 已配置的外发端，未配置时为 nil
func (e *Engine) Publisher() relay.IPublisher { return e.opts.Publisher }

// SyncGroups 对账全部分组。携带 ID 的分组按 ID 匹配，其余按折叠后的名称匹配
func (e *Engine) SyncGroups(ctx context.Context, incoming []*refbook.Group, author string) (*history.ChangeBatch, error) {
	return run(ctx, e, target[*refbook.Group]{
		repo: e.repos.Groups,
		key:  byName(func(g *refbook.Group) string { return g.Name }),
	}, incoming, author)
}

// SyncDictionaries 对账分组下的字典
func (e *Engine) SyncDictionaries(ctx context.Context, groupID string, incoming []*refbook.Dictionary, author string) (*history.ChangeBatch, error) {
	return run(ctx, e, target[*refbook.Dictionary]{
		repo:   e.repos.Dictionaries,
		scope:  groupID,
		key:    byName(func(d *refbook.Dictionary) string { return d.Name }),
		parent: func(ctx context.Context) error { return actualize.Require(ctx, e.repos.Groups, "groupId", groupID) },
		prepare: func(ctx context.Context, d *refbook.Dictionary) error {
			return adopt(&d.GroupID, groupID, domain.KindDictionary, "groupId")
		},
	}, incoming, author)
}

// SyncMetaFields 对账字典下的元字段
func (e *Engine) SyncMetaFields(ctx context.Context, dictionaryID string, incoming []*refbook.MetaField, author string) (*history.ChangeBatch, error) {
	return run(ctx, e, target[*refbook.MetaField]{
		repo:   e.repos.MetaFields,
		scope:  dictionaryID,
		key:    byName(func(m *refbook.MetaField) string { return m.Name }),
		parent: func(ctx context.Context) error { return actualize.Require(ctx, e.repos.Dictionaries, "dictionaryId", dictionaryID) },
		prepare: func(ctx context.Context, m *refbook.MetaField) error {
			return adopt(&m.DictionaryID, dictionaryID, domain.KindMetaField, "dictionaryId")
		},
	}, incoming, author)
}

// SyncFields 对账元字段下的字段值，自然键为记录 ID
func (e *Engine) SyncFields(ctx context.Context, metaFieldID string, incoming []*refbook.Field, author string) (*history.ChangeBatch, error) {
	return run(ctx, e, target[*refbook.Field]{
		repo:   e.repos.Fields,
		scope:  metaFieldID,
		key:    func(f *refbook.Field) string { return f.RecordID },
		parent: func(ctx context.Context) error { return actualize.Require(ctx, e.repos.MetaFields, "metaFieldId", metaFieldID) },
		prepare: func(ctx context.Context, f *refbook.Field) error {
			return adopt(&f.MetaFieldID, metaFieldID, domain.KindField, "metaFieldId")
		},
	}, incoming, author)
}

// SyncRuleSets 对账全部规则集；端点快照按元字段 ID 补全
func (e *Engine) SyncRuleSets(ctx context.Context, incoming []*refbook.RuleSet, author string) (*history.ChangeBatch, error) {
	return run(ctx, e, target[*refbook.RuleSet]{
		repo:    e.repos.RuleSets,
		key:     byName(func(rs *refbook.RuleSet) string { return rs.Name }),
		prepare: e.hydrator.RuleSet,
	}, incoming, author)
}

// SyncRules 对账规则集下的规则，自然键为源字段 ID。
// 批次即规则集的全部有效规则，源值相同而目标值不同的批次整体拒绝。
func (e *Engine) SyncRules(ctx context.Context, ruleSetID string, incoming []*refbook.Rule, author string) (*history.ChangeBatch, error) {
	return run(ctx, e, target[*refbook.Rule]{
		repo:   e.repos.Rules,
		scope:  ruleSetID,
		key:    func(r *refbook.Rule) string { return r.From.FieldID },
		parent: func(ctx context.Context) error { return actualize.Require(ctx, e.repos.RuleSets, "ruleSetId", ruleSetID) },
		prepare: func(ctx context.Context, r *refbook.Rule) error {
			if err := adopt(&r.RuleSetID, ruleSetID, domain.KindRule, "ruleSetId"); err != nil {
				return err
			}
			return e.hydrator.Rule(ctx, r)
		},
		check: actualize.CheckMappings,
	}, incoming, author)
}

// SyncTasks 对账字典上的同步任务
func (e *Engine) SyncTasks(ctx context.Context, dictionaryID string, incoming []*refbook.SyncTask, author string) (*history.ChangeBatch, error) {
	return run(ctx, e, target[*refbook.SyncTask]{
		repo:   e.repos.SyncTasks,
		scope:  dictionaryID,
		key:    byName(func(t *refbook.SyncTask) string { return t.Name }),
		parent: func(ctx context.Context) error { return actualize.Require(ctx, e.repos.Dictionaries, "dictionaryId", dictionaryID) },
		prepare: func(ctx context.Context, t *refbook.SyncTask) error {
			if err := adopt(&t.Dictionary.DictionaryID, dictionaryID, domain.KindSyncTask, "dictionary.dictionaryId"); err != nil {
				return err
			}
			return e.hydrator.SyncTask(ctx, t)
		},
	}, incoming, author)
}

// BuildRuleSet 按两个字典的主元字段构建规则集（未保存）
func (e *Engine) BuildRuleSet(ctx context.Context, name, fromDictionaryID, toDictionaryID string) (*refbook.RuleSet, error) {
	return e.factory.Build(ctx, name, fromDictionaryID, toDictionaryID)
}

// History 实体的审计轨迹，最新的事件在前
func (e *Engine) History(ctx context.Context, id string) ([]*domain.HistoryEvent, error) {
	events, err := e.storage.Events.ListByTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(events)
	slices.Reverse(out)
	return out, nil
}

// Close 关闭外发端、索引与存储
func (e *Engine) Close() error {
	var errs []error
	if e.opts.Publisher != nil {
		errs = append(errs, e.opts.Publisher.Close())
	}
	if c, ok := e.opts.Index.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, e.storage.Close())
	return stdErrors.Join(errs...)
}

func byName[T any](name func(T) string) func(T) string {
	return func(e T) string { return history.FoldKey(name(e)) }
}

// adopt 传入实体未声明上级时归入作用域，声明了其他上级时拒绝
func adopt(ref *string, scope string, kind domain.EntityKind, field string) error {
	switch *ref {
	case "":
		*ref = scope
	case scope:
	default:
		return errors.Errorf(errors.ErrCodeValidation, "%s.%s=%s 不属于同步作用域 %s", kind, field, *ref, scope)
	}
	return nil
}

// target 一次同步的对象。parent 在非空批次写入前校验上级，check 对整理后的完整批次做跨实体校验
type target[T domain.Entity[T]] struct {
	repo    store.IRepository[T]
	scope   string
	key     func(T) string
	parent  func(context.Context) error
	prepare func(context.Context, T) error
	check   func([]T) error
}

// run 一个同步工作单元：读取作用域内已有实体、对账、分发
func run[T domain.Entity[T]](ctx context.Context, e *Engine, t target[T], incoming []T, author string) (*history.ChangeBatch, error) {
	if author == "" {
		author = e.opts.Author
	}
	kind := t.repo.Kind()
	var batch *history.ChangeBatch
	err := e.units.Do(ctx, func(ctx context.Context) error {
		if dispatch.CorrelationID(ctx) == "" {
			ctx = dispatch.WithCorrelationID(ctx, uow.ID(ctx))
		}
		if t.parent != nil && len(incoming) > 0 {
			if err := t.parent(ctx); err != nil {
				return err
			}
		}

		existing, err := t.repo.FindAllByRelatedID(ctx, t.scope)
		if err != nil {
			return err
		}

		prepared := make([]T, 0, len(incoming))
		for _, in := range incoming {
			c := in.Clone()
			if t.prepare != nil {
				if err := t.prepare(ctx, c); err != nil {
					return err
				}
			}
			prepared = append(prepared, c)
		}
		if _, err := history.IndexBy(prepared, t.key); err != nil {
			return errors.WrapError(err, errors.ErrCodeDuplicate, kind.String()+" 批次中自然键重复")
		}
		if t.check != nil {
			if err := t.check(prepared); err != nil {
				return err
			}
		}

		existingByKey, incomingByKey, err := match(kind, t.scope, existing, prepared, t.key)
		if err != nil {
			return err
		}
		batch, err = history.Reconcile(ctx, e.reconciler, kind, existingByKey, incomingByKey, nil, e.opts.Clock(), author)
		if err != nil {
			return err
		}
		return e.dispatcher.Dispatch(ctx, batch)
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// match 为已有与传入实体分配对账键。
// 携带 ID 的传入实体占用该 ID 实体的自然键槽位，因此改名对账为 UPDATE 而非 CLOSE 加 CREATE；
// 未携带 ID 的按自然键匹配。
func match[T domain.Entity[T]](kind domain.EntityKind, scope string, existing, incoming []T, key func(T) string) (map[string]T, map[string]T, error) {
	existingByKey := latestByKey(existing, key)
	byID := make(map[string]T, len(existing))
	for _, x := range existing {
		byID[x.GetID()] = x
	}

	incomingByKey := make(map[string]T, len(incoming))
	for _, in := range incoming {
		k := key(in)
		if id := in.GetID(); id != "" {
			old, ok := byID[id]
			if !ok {
				return nil, nil, errors.Errorf(errors.ErrCodeValidation, "%s %s 不在同步作用域 %q 内", kind, id, scope).
					WithContext("id", id)
			}
			k = key(old)
			existingByKey[k] = old
		}
		if _, dup := incomingByKey[k]; dup {
			return nil, nil, errors.Errorf(errors.ErrCodeDuplicate, "%s 批次中有多个实体匹配同一已有实体 (键 %q)", kind, k)
		}
		incomingByKey[k] = in
	}
	return existingByKey, incomingByKey, nil
}

// latestByKey 同一自然键下保留有效实体；都已关闭时保留最近关闭的一个
func latestByKey[T domain.Entity[T]](entities []T, key func(T) string) map[string]T {
	out := make(map[string]T, len(entities))
	for _, e := range entities {
		k := key(e)
		current, ok := out[k]
		switch {
		case !ok:
			out[k] = e
		case current.IsClosed() && !e.IsClosed():
			out[k] = e
		case current.IsClosed() && e.IsClosed() && e.GetHistoryID() > current.GetHistoryID():
			out[k] = e
		}
	}
	return out
}
