package history

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"refsync/domain"
	"refsync/errors"
	"refsync/logging"
)

// MergeFunc 合并传入实体与已有实体，返回用于分类的实体。
// 仅在存在已有实体时调用；incoming 已是副本，可直接修改。
type MergeFunc[T any] func(incoming, existing T) T

// DefaultMerge 保留传入内容；传入实体未声明权限时沿用已有权限
func DefaultMerge[T domain.IHistorical](incoming, existing T) T {
	if incoming.GetPermissions() == domain.PermNone {
		incoming.SetPermissions(existing.GetPermissions())
	}
	return incoming
}

// Config 对账器配置
type Config struct {
	Hasher   *Hasher
	Identity IIdentity
	Logger   logging.Logger
}

// Reconciler 持有对账所需的协作者，对账本身由泛型函数 Reconcile 执行
type Reconciler struct {
	hasher   *Hasher
	identity IIdentity
	logger   logging.Logger
}

// NewReconciler 创建对账器；未指定的协作者使用默认实现
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Hasher == nil {
		cfg.Hasher = DefaultHasher()
	}
	if cfg.Identity == nil {
		id, err := NewDefaultIdentity(1, 1)
		if err != nil {
			return nil, err
		}
		cfg.Identity = id
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Component("history.reconciler")
	}
	return &Reconciler{hasher: cfg.Hasher, identity: cfg.Identity, logger: cfg.Logger}, nil
}

func (r *Reconciler) Hasher() *Hasher { return r.hasher }

// Reconcile 按自然键将传入批次与已有实体对账。
//
// 传入键按排序顺序处理，每个键恰好分类一次；匹配到的已有实体从私有副本中移除，
// 剩余未匹配的已有实体按 classify(old, 缺失) 关闭或忽略。
// CREATE、UPDATE、RESTORE 的实体在分类后执行校验，任一失败即中止整个对账。
func Reconcile[K cmp.Ordered, T domain.Entity[T]](
	ctx context.Context,
	r *Reconciler,
	kind domain.EntityKind,
	existing, incoming map[K]T,
	merge MergeFunc[T],
	date time.Time,
	author string,
) (*ChangeBatch, error) {
	if merge == nil {
		merge = DefaultMerge[T]
	}
	batch := NewChangeBatch(kind, domain.ModeDefault)
	remaining := maps.Clone(existing)
	if remaining == nil {
		remaining = map[K]T{}
	}

	for _, key := range slices.Sorted(maps.Keys(incoming)) {
		in := incoming[key]
		if isNil(in) {
			return nil, errors.Errorf(errors.ErrCodeProgramming, "%s: incoming entity for key %v is nil", kind, key)
		}

		old, found := remaining[key]
		delete(remaining, key)
		if found && isNil(old) {
			found = false
		}

		merged := in.Clone()
		var previous domain.IHistorical
		if found {
			merged = merge(merged, old)
			merged.SetID(old.GetID())
			merged.SetHistory(old.GetHistoryID(), old.LatestEvent())
			previous = old
		}

		t, err := r.hasher.Classify(previous, merged)
		if err != nil {
			return nil, err
		}

		switch t {
		case domain.ChangeCreate:
			if err := merged.Validate(); err != nil {
				return nil, validationFailure(kind, key, err)
			}
			merged.SetID(r.identity.NewEntityID())
			merged.SetHistory(0, nil)
			if err := r.stamp(batch, merged, t, r.hasher.Diff(nil, merged), 0, date, author); err != nil {
				return nil, err
			}
		case domain.ChangeUpdate:
			if err := merged.Validate(); err != nil {
				return nil, validationFailure(kind, key, err)
			}
			if err := r.stamp(batch, merged, t, r.hasher.Diff(old, merged), old.GetHistoryID(), date, author); err != nil {
				return nil, err
			}
		case domain.ChangeRestore:
			if err := merged.Validate(); err != nil {
				return nil, validationFailure(kind, key, err)
			}
			if err := r.stamp(batch, merged, t, r.hasher.Snapshot(old, merged), old.GetHistoryID(), date, author); err != nil {
				return nil, err
			}
		case domain.ChangeSkip:
			r.logger.Debug(ctx, "实体内容未变化", logging.String("kind", kind.String()),
				logging.String("key", fmt.Sprint(key)), logging.String("id", merged.GetID()))
		}
		batch.Add(t, merged)
	}

	for _, key := range slices.Sorted(maps.Keys(remaining)) {
		old := remaining[key]
		if isNil(old) {
			continue
		}
		t, err := r.hasher.Classify(old, nil)
		if err != nil {
			return nil, err
		}
		gone := old.Clone()
		if t == domain.ChangeClose {
			if err := r.stamp(batch, gone, t, r.hasher.Snapshot(old, old), old.GetHistoryID(), date, author); err != nil {
				return nil, err
			}
		} else {
			r.logger.Debug(ctx, "实体已关闭，忽略", logging.String("kind", kind.String()),
				logging.String("key", fmt.Sprint(key)), logging.String("id", old.GetID()))
		}
		batch.Add(t, gone)
	}

	r.logger.Info(ctx, "对账完成", logging.String("kind", kind.String()),
		logging.String("summary", batch.Summary()), logging.String("author", author))
	return batch, nil
}

func (r *Reconciler) stamp(batch *ChangeBatch, e domain.IHistorical, t domain.ChangeType, diffs []domain.Diff,
	previousID int64, date time.Time, author string) error {
	id, err := r.identity.NewEventID()
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInternal, "分配事件 ID 失败")
	}
	ev := &domain.HistoryEvent{
		ID:         id,
		TargetID:   e.GetID(),
		TargetKind: e.Kind(),
		EventType:  t.EventType(),
		EventDate:  date,
		Author:     author,
		PreviousID: previousID,
		Diffs:      diffs,
	}
	e.SetHistory(ev.ID, ev)
	batch.addEvent(ev)
	return nil
}

func validationFailure(kind domain.EntityKind, key any, err error) error {
	code := errors.GetErrorCode(err)
	if code == errors.ErrCodeInternal {
		code = errors.ErrCodeValidation
	}
	return errors.WrapError(err, code, fmt.Sprintf("%s %v 校验失败", kind, key))
}

// IndexBy 按自然键建立索引，自然键重复时返回 DUPLICATE_ERROR
func IndexBy[K comparable, T any](entities []T, key func(T) K) (map[K]T, error) {
	out := make(map[K]T, len(entities))
	for _, e := range entities {
		k := key(e)
		if _, dup := out[k]; dup {
			return nil, errors.Errorf(errors.ErrCodeDuplicate, "duplicate natural key %v", k)
		}
		out[k] = e
	}
	return out, nil
}

// FoldKey 名称类自然键：去除首尾空白并做大小写折叠
func FoldKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
