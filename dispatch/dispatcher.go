// Package dispatch 将变更批次按优先级同步分发给观察者
package dispatch

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"refsync/domain"
	"refsync/history"
	"refsync/logging"
)

// IObserver 绑定到单一实体类型的观察者。
//
// 变更集类型与 Kind 相同时调用 HandleSelf，否则调用 HandleOther。
type IObserver interface {
	Kind() domain.EntityKind
	HandleSelf(ctx context.Context, set *history.ChangeSet) error
	HandleOther(ctx context.Context, set *history.ChangeSet) error
}

// INamed 可选接口：日志与错误信息中使用的观察者名称
type INamed interface {
	Name() string
}

// HandlerFunc 中间件链的基本执行单元
type HandlerFunc func(ctx context.Context, set *history.ChangeSet) error

// IMiddleware 分发中间件，包裹每个变更集的投递
type IMiddleware interface {
	Handle(ctx context.Context, set *history.ChangeSet, next HandlerFunc) error
	Name() string
}

type registration struct {
	observer IObserver
	priority int
	seq      int
}

// Dispatcher 观察者按优先级升序执行，优先级相同按注册顺序
type Dispatcher struct {
	mu          sync.RWMutex
	entries     []registration
	middlewares []IMiddleware
	seq         int
	logger      logging.Logger
}

// NewDispatcher 创建分发器，logger 为 nil 时使用全局 Logger
func NewDispatcher(logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Component("dispatch")
	}
	return &Dispatcher{logger: logger}
}

// Register 以观察者所属类型的默认优先级注册
func (d *Dispatcher) Register(observers ...IObserver) {
	for _, o := range observers {
		d.RegisterWithPriority(o, o.Kind().Priority())
	}
}

// RegisterWithPriority 以指定优先级注册
func (d *Dispatcher) RegisterWithPriority(o IObserver, priority int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.entries = append(d.entries, registration{observer: o, priority: priority, seq: d.seq})
	slices.SortStableFunc(d.entries, func(a, b registration) int {
		if a.priority != b.priority {
			return a.priority - b.priority
		}
		return a.seq - b.seq
	})
}

// Use 注册中间件，先注册的在外层
func (d *Dispatcher) Use(m IMiddleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, m)
}

// Observers 按执行顺序返回已注册的观察者
func (d *Dispatcher) Observers() []IObserver {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]IObserver, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e.observer)
	}
	return out
}

// Dispatch 按 IGNORE、SKIP、CREATE、UPDATE、RESTORE、CLOSE 顺序投递批次中存在的变更集；
// filter 非空时只投递列出的类型。任一观察者失败立即中止并返回错误。
func (d *Dispatcher) Dispatch(ctx context.Context, batch *history.ChangeBatch, filter ...domain.ChangeType) error {
	if batch == nil {
		return nil
	}
	d.mu.RLock()
	entries := slices.Clone(d.entries)
	middlewares := slices.Clone(d.middlewares)
	d.mu.RUnlock()

	deliver := chain(middlewares, func(ctx context.Context, set *history.ChangeSet) error {
		return d.deliver(ctx, entries, set)
	})

	for _, t := range batch.Types() {
		if len(filter) > 0 && !slices.Contains(filter, t) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := deliver(ctx, batch.Set(t)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, entries []registration, set *history.ChangeSet) error {
	other := set.Mode != domain.ModeIsolated && set.Type.Actionable()
	for _, e := range entries {
		o := e.observer
		var err error
		switch {
		case o.Kind() == set.Kind:
			err = o.HandleSelf(ctx, set)
		case other:
			err = o.HandleOther(ctx, set)
		default:
			continue
		}
		if err != nil {
			d.logger.Error(ctx, "观察者处理失败",
				logging.String("observer", observerName(o)),
				logging.String("kind", set.Kind.String()),
				logging.String("change", set.Type.String()),
				logging.Error(err))
			return fmt.Errorf("observer %s on %s %s: %w", observerName(o), set.Kind, set.Type, err)
		}
	}
	return nil
}

func chain(middlewares []IMiddleware, final HandlerFunc) HandlerFunc {
	next := final
	for i := len(middlewares) - 1; i >= 0; i-- {
		m, inner := middlewares[i], next
		next = func(ctx context.Context, set *history.ChangeSet) error {
			return m.Handle(ctx, set, inner)
		}
	}
	return next
}

func observerName(o IObserver) string {
	if n, ok := o.(INamed); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", o)
}

// Funcs 以函数组装观察者，未设置的处理函数视为空操作
type Funcs struct {
	ObserverName string
	Target       domain.EntityKind
	Self         HandlerFunc
	Other        HandlerFunc
}

func (f *Funcs) Kind() domain.EntityKind { return f.Target }

func (f *Funcs) Name() string {
	if f.ObserverName != "" {
		return f.ObserverName
	}
	return "funcs:" + f.Target.String()
}

func (f *Funcs) HandleSelf(ctx context.Context, set *history.ChangeSet) error {
	if f.Self == nil {
		return nil
	}
	return f.Self(ctx, set)
}

func (f *Funcs) HandleOther(ctx context.Context, set *history.ChangeSet) error {
	if f.Other == nil {
		return nil
	}
	return f.Other(ctx, set)
}
