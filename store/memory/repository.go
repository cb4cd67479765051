// Package memory 提供进程内的仓储与历史存储实现，可作为工作单元参与者回滚
package memory

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"refsync/domain"
	"refsync/errors"
	"refsync/store"
	"refsync/uow"
)

// Repository 基于 map 的仓储，保存与读取时都复制实体
type Repository[T domain.Entity[T]] struct {
	kind domain.EntityKind

	mu    sync.RWMutex
	items map[string]T

	// journals 按工作单元记录首次写入前的值，回滚只撤销本单元写过的键
	journals map[string]map[string]prior[T]
}

type prior[T any] struct {
	value   T
	existed bool
}

// NewRepository 创建指定实体类型的内存仓储
func NewRepository[T domain.Entity[T]](kind domain.EntityKind) *Repository[T] {
	return &Repository[T]{kind: kind, items: make(map[string]T), journals: make(map[string]map[string]prior[T])}
}

func (r *Repository[T]) Kind() domain.EntityKind { return r.kind }

func (r *Repository[T]) FindByID(ctx context.Context, id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[id]
	if !ok {
		var zero T
		return zero, store.NotFound(r.kind, id)
	}
	return e.Clone(), nil
}

func (r *Repository[T]) FindAllByRelatedID(ctx context.Context, relatedID string) ([]T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []T
	for _, id := range slices.Sorted(maps.Keys(r.items)) {
		e := r.items[id]
		if relatedID == "" || store.RelatedID(e) == relatedID {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (r *Repository[T]) FindByCriteria(ctx context.Context, criteria store.Criteria) ([]T, error) {
	if criteria.Empty() {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []T
	for _, id := range slices.Sorted(maps.Keys(r.items)) {
		e := r.items[id]
		if !criteria.IncludeClosed && e.IsClosed() {
			continue
		}
		ok, err := matches(e, criteria)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (r *Repository[T]) Save(ctx context.Context, entities ...T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entities {
		if e.GetID() == "" {
			return errors.Errorf(errors.ErrCodeProgramming, "%s 缺少 ID，无法保存", r.kind)
		}
	}
	journal := r.journals[uow.ID(ctx)]
	for _, e := range entities {
		id := e.GetID()
		if journal != nil {
			if _, seen := journal[id]; !seen {
				old, existed := r.items[id]
				journal[id] = prior[T]{value: old, existed: existed}
			}
		}
		r.items[id] = e.Clone()
	}
	return nil
}

// Len 已保存的实体数量
func (r *Repository[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Begin 为 context 中的工作单元开启写入日志，Rollback 时按日志恢复
func (r *Repository[T]) Begin(ctx context.Context) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.journals[uow.ID(ctx)] = make(map[string]prior[T])
	return ctx, nil
}

func (r *Repository[T]) Commit(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.journals, uow.ID(ctx))
	return nil
}

func (r *Repository[T]) Rollback(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uow.ID(ctx)
	for key, p := range r.journals[id] {
		if p.existed {
			r.items[key] = p.value
		} else {
			delete(r.items, key)
		}
	}
	delete(r.journals, id)
	return nil
}

func matches(e any, criteria store.Criteria) (bool, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return false, errors.WrapError(err, errors.ErrCodeInternal, "序列化实体失败")
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, errors.WrapError(err, errors.ErrCodeInternal, "解析实体失败")
	}
	for _, m := range criteria.Any {
		if v, ok := lookup(doc, m.Path); ok && slices.Contains(m.Values, text(v)) {
			return true, nil
		}
	}
	return false, nil
}

func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		raw, _ := json.Marshal(val)
		return string(raw)
	}
}
