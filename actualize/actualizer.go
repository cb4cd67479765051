// Package actualize 在被依赖实体变化后刷新规则集、规则与同步任务中嵌入的反规范化快照，
// 并处理由此产生的歧义与悬空引用。
package actualize

import (
	"context"

	"refsync/domain"
)

// Accessor 依赖方实体中的一个嵌入端点。Get 返回端点的地址，端点缺省时返回 nil。
type Accessor[T any, S any] struct {
	Name string
	Get  func(T) *S
}

// Actualizer 泛型实际化器。
//
// D 为发生变化的依赖类型，T 为嵌入了端点快照的依赖方类型，S 为快照类型。
// Extract 将变化的依赖下钻到快照所指向的端点实体（两者相同时为恒等映射），
// 返回端点 ID → 最新快照。
type Actualizer[D domain.IHistorical, T domain.Entity[T], S comparable] struct {
	Name      string
	Extract   func(ctx context.Context, changed []D) (map[string]S, error)
	ID        func(S) string
	Endpoints []Accessor[T, S]
}

// Actualize 刷新 existing 中引用了变化依赖的端点。
//
// all 与 existing 一一对应：未受影响的实体原样返回（同一指针），受影响的实体先克隆再刷新；
// updated 只包含快照确实发生变化的克隆。
func (a *Actualizer[D, T, S]) Actualize(ctx context.Context, changed []D, existing []T) (all []T, updated []T, err error) {
	if len(changed) == 0 || len(existing) == 0 {
		return existing, nil, nil
	}
	fresh, err := a.Extract(ctx, changed)
	if err != nil {
		return nil, nil, err
	}

	all = make([]T, 0, len(existing))
	for _, e := range existing {
		current, touched := e, false
		for _, ep := range a.Endpoints {
			snap := ep.Get(current)
			if snap == nil {
				continue
			}
			next, ok := fresh[a.ID(*snap)]
			if !ok || next == *snap {
				continue
			}
			if !touched {
				current, touched = e.Clone(), true
				snap = ep.Get(current)
			}
			*snap = next
		}
		all = append(all, current)
		if touched {
			updated = append(updated, current)
		}
	}
	return all, updated, nil
}
