// Package index 将自身类型的变更同步到外部检索索引
package index

import (
	"context"
	"maps"
	"slices"
	"sync"

	"refsync/domain"
	"refsync/errors"
	"refsync/history"
	"refsync/logging"
)

// Document 实体的索引文档，Fields 为内容字段的展示值
type Document struct {
	Kind   domain.EntityKind
	ID     string
	Fields map[string]string
}

// IIndex 检索索引协作者，按实体 ID 维护文档
type IIndex interface {
	Insert(ctx context.Context, docs ...Document) error
	Update(ctx context.Context, docs ...Document) error
	Delete(ctx context.Context, kind domain.EntityKind, ids ...string) error
}

// IRestorer 可选接口：支持将已删除的文档恢复。
// 只追加/撤回的索引不实现它，收到 RESTORE 时观察者返回 UNSUPPORTED。
type IRestorer interface {
	Restore(ctx context.Context, docs ...Document) error
}

// Observer 自身类型的索引观察者
type Observer struct {
	kind   domain.EntityKind
	index  IIndex
	hasher *history.Hasher
	logger logging.Logger
}

// NewObserver 创建索引观察者；hasher 为 nil 时使用默认内容字段表
func NewObserver(kind domain.EntityKind, idx IIndex, hasher *history.Hasher, logger logging.Logger) *Observer {
	if hasher == nil {
		hasher = history.DefaultHasher()
	}
	if logger == nil {
		logger = logging.Component("index")
	}
	return &Observer{kind: kind, index: idx, hasher: hasher, logger: logger}
}

func (o *Observer) Kind() domain.EntityKind { return o.kind }

func (o *Observer) Name() string { return "index:" + o.kind.String() }

func (o *Observer) HandleSelf(ctx context.Context, set *history.ChangeSet) error {
	if !set.Type.Actionable() {
		return nil
	}
	if set.Type == domain.ChangeClose {
		return o.index.Delete(ctx, o.kind, domain.IDs(set.Entities)...)
	}

	docs := make([]Document, 0, set.Len())
	for _, e := range set.Entities {
		docs = append(docs, o.Document(e))
	}
	switch set.Type {
	case domain.ChangeCreate:
		return o.index.Insert(ctx, docs...)
	case domain.ChangeUpdate:
		return o.index.Update(ctx, docs...)
	case domain.ChangeRestore:
		restorer, ok := o.index.(IRestorer)
		if !ok {
			return errors.Errorf(errors.ErrCodeUnsupported, "索引 %T 不支持恢复 %s", o.index, o.kind)
		}
		return restorer.Restore(ctx, docs...)
	}
	return nil
}

func (o *Observer) HandleOther(ctx context.Context, set *history.ChangeSet) error { return nil }

// Document 由内容字段生成索引文档
func (o *Observer) Document(e domain.IHistorical) Document {
	doc := Document{Kind: e.Kind(), ID: e.GetID(), Fields: make(map[string]string)}
	for _, v := range o.hasher.Canonical(e) {
		doc.Fields[v.Name] = v.Display
	}
	return doc
}

// MemoryIndex 进程内索引，用于测试与示例
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[domain.EntityKind]map[string]Document
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[domain.EntityKind]map[string]Document)}
}

func (m *MemoryIndex) put(docs []Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		byID, ok := m.docs[d.Kind]
		if !ok {
			byID = make(map[string]Document)
			m.docs[d.Kind] = byID
		}
		d.Fields = maps.Clone(d.Fields)
		byID[d.ID] = d
	}
}

func (m *MemoryIndex) Insert(ctx context.Context, docs ...Document) error {
	m.put(docs)
	return nil
}

func (m *MemoryIndex) Update(ctx context.Context, docs ...Document) error {
	m.put(docs)
	return nil
}

func (m *MemoryIndex) Restore(ctx context.Context, docs ...Document) error {
	m.put(docs)
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, kind domain.EntityKind, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs[kind], id)
	}
	return nil
}

// Lookup 按 ID 读取文档
func (m *MemoryIndex) Lookup(kind domain.EntityKind, id string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[kind][id]
	return d, ok
}

// Find 返回指定字段展示值等于 value 的文档 ID（升序）
func (m *MemoryIndex) Find(kind domain.EntityKind, field, value string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, d := range m.docs[kind] {
		if d.Fields[field] == value {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
