package actualize

import (
	"context"
	"fmt"
	"strings"

	"refsync/cache"
	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/errors"
	"refsync/store"
)

// Repositories 实际化需要读取的各类型仓储
type Repositories struct {
	Groups       store.IRepository[*refbook.Group]
	Dictionaries store.IRepository[*refbook.Dictionary]
	MetaFields   store.IRepository[*refbook.MetaField]
	Fields       store.IRepository[*refbook.Field]
	RuleSets     store.IRepository[*refbook.RuleSet]
	Rules        store.IRepository[*refbook.Rule]
	SyncTasks    store.IRepository[*refbook.SyncTask]
}

// Validate 检查所有仓储均已配置
func (r Repositories) Validate() error {
	var missing []string
	if r.Groups == nil {
		missing = append(missing, "Groups")
	}
	if r.Dictionaries == nil {
		missing = append(missing, "Dictionaries")
	}
	if r.MetaFields == nil {
		missing = append(missing, "MetaFields")
	}
	if r.Fields == nil {
		missing = append(missing, "Fields")
	}
	if r.RuleSets == nil {
		missing = append(missing, "RuleSets")
	}
	if r.Rules == nil {
		missing = append(missing, "Rules")
	}
	if r.SyncTasks == nil {
		missing = append(missing, "SyncTasks")
	}
	if len(missing) > 0 {
		return errors.Errorf(errors.ErrCodeInvalidInput, "缺少仓储: %s", strings.Join(missing, ", "))
	}
	return nil
}

// lookup 一次提取内的上级实体查找，重复 ID 只读一次仓储
type lookup struct {
	repos        Repositories
	groups       *cache.Cache[string, *refbook.Group]
	dictionaries *cache.Cache[string, *refbook.Dictionary]
}

func newLookup(repos Repositories) *lookup {
	return &lookup{
		repos:        repos,
		groups:       cache.New[string, *refbook.Group](cache.Config{Name: "actualize.groups", MaxSize: 256}),
		dictionaries: cache.New[string, *refbook.Dictionary](cache.Config{Name: "actualize.dictionaries", MaxSize: 1024}),
	}
}

// primeGroups 预置本批次的最新实体
func (l *lookup) primeGroups(groups []*refbook.Group) {
	for _, g := range groups {
		l.groups.Set(g.ID, g)
	}
}

func (l *lookup) primeDictionaries(dictionaries []*refbook.Dictionary) {
	for _, d := range dictionaries {
		l.dictionaries.Set(d.ID, d)
	}
}

func (l *lookup) group(ctx context.Context, id string) (*refbook.Group, error) {
	return l.groups.GetOrLoad(ctx, id, l.repos.Groups.FindByID)
}

func (l *lookup) dictionary(ctx context.Context, id string) (*refbook.Dictionary, error) {
	return l.dictionaries.GetOrLoad(ctx, id, l.repos.Dictionaries.FindByID)
}

// dictionarySnapshot 字典及其分组的快照；字典未归属分组时分组字段为空
func (l *lookup) dictionarySnapshot(ctx context.Context, d *refbook.Dictionary) (refbook.DictionarySnapshot, error) {
	snap := refbook.DictionarySnapshot{DictionaryID: d.ID, DictionaryName: d.Name, GroupID: d.GroupID}
	if d.GroupID == "" {
		return snap, nil
	}
	g, err := l.group(ctx, d.GroupID)
	if err != nil {
		return refbook.DictionarySnapshot{}, dependencyError(err, domain.KindDictionary, d.ID)
	}
	snap.GroupName = g.Name
	return snap, nil
}

func (l *lookup) metaFieldSnapshot(ctx context.Context, m *refbook.MetaField) (refbook.MetaFieldSnapshot, error) {
	d, err := l.dictionary(ctx, m.DictionaryID)
	if err != nil {
		return refbook.MetaFieldSnapshot{}, dependencyError(err, domain.KindMetaField, m.ID)
	}
	ds, err := l.dictionarySnapshot(ctx, d)
	if err != nil {
		return refbook.MetaFieldSnapshot{}, err
	}
	return refbook.MetaFieldSnapshot{MetaFieldID: m.ID, MetaFieldName: m.Name, DictionarySnapshot: ds}, nil
}

// activeChildren 上级实体下未关闭的下级实体
func activeChildren[T domain.Entity[T]](ctx context.Context, repo store.IRepository[T], parentID string) ([]T, error) {
	all, err := repo.FindAllByRelatedID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if !e.IsClosed() {
			out = append(out, e)
		}
	}
	return out, nil
}

func dependencyError(err error, kind domain.EntityKind, id string) error {
	if errors.IsNotFound(err) {
		return errors.WrapError(err, errors.ErrCodeDependency, fmt.Sprintf("%s %s 的上级实体无法解析", kind, id))
	}
	return err
}
