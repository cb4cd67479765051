package sqlstore

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	core "refsync/data/db"
	"refsync/data/db/dialect"
	dbsql "refsync/data/db/sql"
	"refsync/domain"
	"refsync/errors"
)

var historyColumns = []string{"id", "target_id", "target_kind", "event_type", "event_date", "author", "previous_id", "diffs"}

// HistoryStore refsync_history 表上的事件存储
type HistoryStore struct {
	db      core.IDatabase
	sql     dbsql.ISql
	dialect dialect.Dialect
}

func NewHistoryStore(db core.IDatabase) *HistoryStore {
	b := dbsql.New(db)
	return &HistoryStore{db: db, sql: b, dialect: b.Dialect()}
}

func (s *HistoryStore) Append(ctx context.Context, events ...*domain.HistoryEvent) error {
	for _, ev := range events {
		diffs, err := json.Marshal(ev.Diffs)
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeInternal, "序列化差异失败")
		}
		if diffs == nil || string(diffs) == "null" {
			diffs = []byte("[]")
		}
		_, err = s.sql.InsertInto(historyTable).
			Columns(historyColumns...).
			Values(ev.ID, ev.TargetID, ev.TargetKind.String(), string(ev.EventType),
				ev.EventDate.UTC().Format(time.RFC3339Nano), ev.Author, ev.PreviousID, string(diffs)).
			Exec(ctx)
		if err != nil {
			if s.dialect.IsUniqueViolation(err) {
				return errors.WrapError(err, errors.ErrCodeDuplicate, "事件 "+strconv.FormatInt(ev.ID, 10)+" 已存在")
			}
			return errors.WrapDatabaseError(ctx, err, "追加历史事件")
		}
	}
	return nil
}

func (s *HistoryStore) FindByID(ctx context.Context, id int64) (*domain.HistoryEvent, error) {
	rows, err := s.sql.Select(historyColumns...).From(historyTable).Where("id = ?", id).Limit(1).Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "查询历史事件")
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, errors.Errorf(errors.ErrCodeNotFound, "事件 %d 不存在", id)
	}
	return events[0], nil
}

func (s *HistoryStore) ListByTarget(ctx context.Context, targetID string) ([]*domain.HistoryEvent, error) {
	rows, err := s.sql.Select(historyColumns...).From(historyTable).
		Where("target_id = ?", targetID).OrderBy("id ASC").Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "查询审计链")
	}
	return scanEvents(rows)
}

func scanEvents(rows core.IRows) ([]*domain.HistoryEvent, error) {
	defer rows.Close()
	var out []*domain.HistoryEvent
	for rows.Next() {
		var (
			ev               domain.HistoryEvent
			kind, eventType  string
			eventDate, diffs string
		)
		if err := rows.Scan(&ev.ID, &ev.TargetID, &kind, &eventType, &eventDate, &ev.Author, &ev.PreviousID, &diffs); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeDatabase, "读取历史事件失败")
		}
		if err := decodeEvent(&ev, kind, eventType, eventDate, diffs); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "遍历历史事件失败")
	}
	return out, nil
}

func decodeEvent(ev *domain.HistoryEvent, kind, eventType, eventDate, diffs string) error {
	k, err := domain.ParseKind(kind)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "历史事件类型无效")
	}
	date, err := time.Parse(time.RFC3339Nano, eventDate)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "历史事件时间无效")
	}
	ev.TargetKind = k
	ev.EventType = domain.EventType(eventType)
	ev.EventDate = date
	if err := json.Unmarshal([]byte(diffs), &ev.Diffs); err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "历史事件差异无效")
	}
	if len(ev.Diffs) == 0 {
		ev.Diffs = nil
	}
	return nil
}
