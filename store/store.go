// Package store 定义引擎依赖的存储协作者：按实体类型的仓储与 HistoryEvent 存储
package store

import (
	"context"

	"refsync/domain"
	"refsync/domain/refbook"
	"refsync/errors"
)

// Match 单个路径条件：实体 JSON 表示中 Path 处的文本值属于 Values 之一。
// Path 为点分路径，例如 "from.metaFieldId"；"id" 指实体 ID。
type Match struct {
	Path   string
	Values []string
}

// Criteria 条件查询；Any 中任一 Match 成立即命中
type Criteria struct {
	Any []Match
	// IncludeClosed 为 false 时只返回未关闭的实体
	IncludeClosed bool
}

// Where 构造单个路径条件
func Where(path string, values ...string) Match {
	return Match{Path: path, Values: values}
}

// AnyOf 以 OR 组合多个条件，只查询未关闭的实体
func AnyOf(matches ...Match) Criteria {
	return Criteria{Any: matches}
}

// Empty 所有 Match 都没有候选值时查询结果必为空
func (c Criteria) Empty() bool {
	for _, m := range c.Any {
		if len(m.Values) > 0 {
			return false
		}
	}
	return true
}

// IRepository 单一实体类型的存储与查询。
//
// 返回的实体已解析最近一次 HistoryEvent，可直接用于分类。
type IRepository[T domain.Entity[T]] interface {
	Kind() domain.EntityKind

	// FindByID 不存在时返回 NOT_FOUND
	FindByID(ctx context.Context, id string) (T, error)
	// FindAllByRelatedID 按上级实体 ID 查询，包含已关闭的实体；
	// relatedID 为空时返回该类型的全部实体
	FindAllByRelatedID(ctx context.Context, relatedID string) ([]T, error)
	FindByCriteria(ctx context.Context, criteria Criteria) ([]T, error)

	// Save 按 ID 插入或覆盖
	Save(ctx context.Context, entities ...T) error
}

// IHistoryStore HistoryEvent 追加存储，事件写入后不再修改
type IHistoryStore interface {
	Append(ctx context.Context, events ...*domain.HistoryEvent) error
	FindByID(ctx context.Context, id int64) (*domain.HistoryEvent, error)
	// ListByTarget 按事件 ID 升序返回实体的完整审计链
	ListByTarget(ctx context.Context, targetID string) ([]*domain.HistoryEvent, error)
}

// RelatedID 实体的上级实体 ID，顶层实体为空串
func RelatedID(e domain.IHistorical) string {
	switch v := e.(type) {
	case *refbook.Dictionary:
		return v.GroupID
	case *refbook.MetaField:
		return v.DictionaryID
	case *refbook.Field:
		return v.MetaFieldID
	case *refbook.Rule:
		return v.RuleSetID
	case *refbook.SyncTask:
		return v.Dictionary.DictionaryID
	}
	return ""
}

// Quiet 将 NOT_FOUND 降级为零值结果，其他错误原样返回
func Quiet[T any](value T, err error) (T, error) {
	if errors.IsNotFound(err) {
		var zero T
		return zero, nil
	}
	return value, err
}

// NotFound 构造实体不存在错误
func NotFound(kind domain.EntityKind, id string) error {
	return errors.Errorf(errors.ErrCodeNotFound, "%s %s 不存在", kind, id).
		WithContext("kind", kind.String()).
		WithContext("id", id)
}
