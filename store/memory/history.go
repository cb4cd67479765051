package memory

import (
	"context"
	"slices"
	"sync"

	"refsync/domain"
	"refsync/errors"
	"refsync/uow"
)

// HistoryStore 内存中的 HistoryEvent 存储
type HistoryStore struct {
	mu       sync.RWMutex
	events   map[int64]*domain.HistoryEvent
	byTarget map[string][]int64

	// journals 按工作单元记录追加的事件 ID
	journals map[string][]int64
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		events:   make(map[int64]*domain.HistoryEvent),
		byTarget: make(map[string][]int64),
		journals: make(map[string][]int64),
	}
}

func (s *HistoryStore) Append(ctx context.Context, events ...*domain.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if _, exists := s.events[ev.ID]; exists {
			return errors.Errorf(errors.ErrCodeDuplicate, "事件 %d 已存在", ev.ID)
		}
	}
	unit := uow.ID(ctx)
	_, journaled := s.journals[unit]
	for _, ev := range events {
		s.events[ev.ID] = ev
		s.byTarget[ev.TargetID] = append(s.byTarget[ev.TargetID], ev.ID)
		if journaled {
			s.journals[unit] = append(s.journals[unit], ev.ID)
		}
	}
	return nil
}

func (s *HistoryStore) FindByID(ctx context.Context, id int64) (*domain.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, errors.Errorf(errors.ErrCodeNotFound, "事件 %d 不存在", id)
	}
	return ev, nil
}

func (s *HistoryStore) ListByTarget(ctx context.Context, targetID string) ([]*domain.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := slices.Sorted(slices.Values(s.byTarget[targetID]))
	out := make([]*domain.HistoryEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.events[id])
	}
	return out, nil
}

// Len 已保存的事件数量
func (s *HistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *HistoryStore) Begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journals[uow.ID(ctx)] = []int64{}
	return ctx, nil
}

func (s *HistoryStore) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.journals, uow.ID(ctx))
	return nil
}

// Rollback 删除本工作单元追加的事件
func (s *HistoryStore) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit := uow.ID(ctx)
	for _, id := range s.journals[unit] {
		ev, ok := s.events[id]
		if !ok {
			continue
		}
		delete(s.events, id)
		s.byTarget[ev.TargetID] = slices.DeleteFunc(s.byTarget[ev.TargetID], func(x int64) bool { return x == id })
		if len(s.byTarget[ev.TargetID]) == 0 {
			delete(s.byTarget, ev.TargetID)
		}
	}
	delete(s.journals, unit)
	return nil
}
