package history

import (
	"fmt"
	"strings"

	"refsync/domain"
)

// ChangeSet 同一次对账中共享同一变更类型的实体
type ChangeSet struct {
	Kind     domain.EntityKind
	Type     domain.ChangeType
	Mode     domain.ChangeMode
	Entities []domain.IHistorical

	batch *ChangeBatch
}

// Batch 所属的变更批次
func (s *ChangeSet) Batch() *ChangeBatch { return s.batch }

func (s *ChangeSet) Len() int { return len(s.Entities) }

// Entities 将变更集中的实体还原为具体类型
func Entities[T domain.IHistorical](s *ChangeSet) []T {
	if s == nil {
		return nil
	}
	out := make([]T, 0, len(s.Entities))
	for _, e := range s.Entities {
		if typed, ok := e.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// ChangeBatch 一次对账的结果：变更类型 → ChangeSet。仅在单个工作单元内有效。
type ChangeBatch struct {
	Kind domain.EntityKind
	Mode domain.ChangeMode

	sets   map[domain.ChangeType]*ChangeSet
	events []*domain.HistoryEvent
}

// NewChangeBatch 创建空批次
func NewChangeBatch(kind domain.EntityKind, mode domain.ChangeMode) *ChangeBatch {
	return &ChangeBatch{Kind: kind, Mode: mode, sets: make(map[domain.ChangeType]*ChangeSet)}
}

// Add 将实体追加到对应变更类型的集合
func (b *ChangeBatch) Add(t domain.ChangeType, e domain.IHistorical) {
	set, ok := b.sets[t]
	if !ok {
		set = &ChangeSet{Kind: b.Kind, Type: t, Mode: b.Mode, batch: b}
		b.sets[t] = set
	}
	set.Entities = append(set.Entities, e)
}

func (b *ChangeBatch) addEvent(ev *domain.HistoryEvent) {
	b.events = append(b.events, ev)
}

// Set 返回指定类型的变更集，不存在时为 nil
func (b *ChangeBatch) Set(t domain.ChangeType) *ChangeSet { return b.sets[t] }

// Types 按分发顺序返回批次中存在的变更类型
func (b *ChangeBatch) Types() []domain.ChangeType {
	var out []domain.ChangeType
	for _, t := range domain.ChangeTypes() {
		if set, ok := b.sets[t]; ok && set.Len() > 0 {
			out = append(out, t)
		}
	}
	return out
}

// Actual CREATE、UPDATE、RESTORE、SKIP 中的实体
func (b *ChangeBatch) Actual() []domain.IHistorical {
	var out []domain.IHistorical
	for _, t := range b.Types() {
		if t.Actual() {
			out = append(out, b.sets[t].Entities...)
		}
	}
	return out
}

// Closed CLOSE 中的实体
func (b *ChangeBatch) Closed() []domain.IHistorical {
	if set := b.sets[domain.ChangeClose]; set != nil {
		return set.Entities
	}
	return nil
}

// Events 本次对账新生成的 HistoryEvent
func (b *ChangeBatch) Events() []*domain.HistoryEvent { return b.events }

// Count 指定类型的实体数
func (b *ChangeBatch) Count(t domain.ChangeType) int {
	if set := b.sets[t]; set != nil {
		return set.Len()
	}
	return 0
}

// HasChanges 是否存在会产生事件的变更
func (b *ChangeBatch) HasChanges() bool { return len(b.events) > 0 }

// Isolated 返回共享实体但分发模式为 ISOLATED 的批次副本
func (b *ChangeBatch) Isolated() *ChangeBatch {
	out := NewChangeBatch(b.Kind, domain.ModeIsolated)
	for _, t := range b.Types() {
		for _, e := range b.sets[t].Entities {
			out.Add(t, e)
		}
	}
	out.events = b.events
	return out
}

// Summary 形如 "CREATE=1 UPDATE=2" 的统计
func (b *ChangeBatch) Summary() string {
	parts := make([]string, 0, len(b.sets))
	for _, t := range b.Types() {
		parts = append(parts, fmt.Sprintf("%s=%d", t, b.sets[t].Len()))
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}

// ActualOf 具体类型的有效实体
func ActualOf[T domain.IHistorical](b *ChangeBatch) []T {
	var out []T
	for _, e := range b.Actual() {
		if typed, ok := e.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// ClosedOf 具体类型的关闭实体
func ClosedOf[T domain.IHistorical](b *ChangeBatch) []T {
	return Entities[T](b.Set(domain.ChangeClose))
}
