package store

import (
	"context"

	"refsync/domain"
	"refsync/errors"
	"refsync/history"
	"refsync/logging"
)

// Observer 自身类型的持久化观察者：先追加 HistoryEvent，再保存实体
type Observer[T domain.Entity[T]] struct {
	repo    IRepository[T]
	history IHistoryStore
	logger  logging.Logger
}

// NewObserver 创建持久化观察者
func NewObserver[T domain.Entity[T]](repo IRepository[T], events IHistoryStore, logger logging.Logger) *Observer[T] {
	if logger == nil {
		logger = logging.Component("store")
	}
	return &Observer[T]{repo: repo, history: events, logger: logger}
}

func (o *Observer[T]) Kind() domain.EntityKind { return o.repo.Kind() }

func (o *Observer[T]) Name() string { return "store:" + o.repo.Kind().String() }

func (o *Observer[T]) HandleSelf(ctx context.Context, set *history.ChangeSet) error {
	if !set.Type.Actionable() {
		return nil
	}
	entities := history.Entities[T](set)
	events := make([]*domain.HistoryEvent, 0, len(entities))
	for _, e := range entities {
		ev := e.LatestEvent()
		if ev == nil || ev.EventType != set.Type.EventType() {
			return errors.Errorf(errors.ErrCodeProgramming, "%s %s 缺少 %s 事件", set.Kind, e.GetID(), set.Type)
		}
		events = append(events, ev)
	}

	if err := o.history.Append(ctx, events...); err != nil {
		return err
	}
	if err := o.repo.Save(ctx, entities...); err != nil {
		return err
	}
	o.logger.Debug(ctx, "实体已持久化", logging.String("kind", set.Kind.String()),
		logging.String("change", set.Type.String()), logging.Int("count", len(entities)))
	return nil
}

func (o *Observer[T]) HandleOther(ctx context.Context, set *history.ChangeSet) error { return nil }
