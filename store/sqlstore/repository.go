package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	core "refsync/data/db"
	"refsync/data/db/dialect"
	dbsql "refsync/data/db/sql"
	"refsync/domain"
	"refsync/errors"
	"refsync/store"
)

const joined = entityTable + " e LEFT JOIN " + historyTable + " h ON h.id = e.history_id"

var loadColumns = []string{
	"e.payload", "e.history_id",
	"h.id", "h.target_id", "h.target_kind", "h.event_type", "h.event_date", "h.author", "h.previous_id", "h.diffs",
}

// Repository 单一实体类型的 SQL 仓储，读取时联表解析最近事件
type Repository[T domain.Entity[T]] struct {
	kind    domain.EntityKind
	newFn   func() T
	sql     dbsql.ISql
	dialect dialect.Dialect
}

// NewRepository 创建仓储；newFn 返回用于反序列化的空实体
func NewRepository[T domain.Entity[T]](db core.IDatabase, kind domain.EntityKind, newFn func() T) *Repository[T] {
	b := dbsql.New(db)
	return &Repository[T]{kind: kind, newFn: newFn, sql: b, dialect: b.Dialect()}
}

func (r *Repository[T]) Kind() domain.EntityKind { return r.kind }

func (r *Repository[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	found, err := r.load(ctx, r.query().Where("e.id = ?", id).Limit(1))
	if err != nil {
		return zero, err
	}
	if len(found) == 0 {
		return zero, store.NotFound(r.kind, id)
	}
	return found[0], nil
}

func (r *Repository[T]) FindAllByRelatedID(ctx context.Context, relatedID string) ([]T, error) {
	q := r.query()
	if relatedID != "" {
		q = q.Where("e.related_id = ?", relatedID)
	}
	return r.load(ctx, q.OrderBy("e.id"))
}

func (r *Repository[T]) FindByCriteria(ctx context.Context, criteria store.Criteria) ([]T, error) {
	if criteria.Empty() {
		return nil, nil
	}
	q := r.query()
	if !criteria.IncludeClosed {
		q = q.Where("e.state <> ?", string(domain.EventClose))
	}
	var (
		conds []string
		args  []any
	)
	for _, m := range criteria.Any {
		if len(m.Values) == 0 {
			continue
		}
		expr := "e.id"
		if m.Path != "id" {
			expr = r.dialect.JSONText("e.payload", m.Path)
		}
		cond, condArgs := dbsql.In(expr, m.Values)
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}
	return r.load(ctx, q.AnyOf(conds, args).OrderBy("e.id"))
}

func (r *Repository[T]) Save(ctx context.Context, entities ...T) error {
	for _, e := range entities {
		if e.GetID() == "" {
			return errors.Errorf(errors.ErrCodeProgramming, "%s 缺少 ID，无法保存", r.kind)
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeInternal, "序列化实体失败")
		}
		var state string
		if ev := e.LatestEvent(); ev != nil {
			state = string(ev.EventType)
		}
		_, err = r.sql.InsertInto(entityTable).
			Columns("kind", "id", "related_id", "history_id", "state", "payload").
			Values(r.kind.String(), e.GetID(), store.RelatedID(e), e.GetHistoryID(), state, string(payload)).
			OnConflict("kind", "id").
			Exec(ctx)
		if err != nil {
			return errors.WrapDatabaseError(ctx, err, "保存"+r.kind.String())
		}
	}
	return nil
}

func (r *Repository[T]) query() dbsql.ISelectBuilder {
	return r.sql.Select(loadColumns...).From(joined).Where("e.kind = ?", r.kind.String())
}

func (r *Repository[T]) load(ctx context.Context, q dbsql.ISelectBuilder) ([]T, error) {
	rows, err := q.Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "查询"+r.kind.String())
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var (
			payload   string
			historyID int64
			evID      sql.NullInt64
			prevID    sql.NullInt64
			target    sql.NullString
			kind      sql.NullString
			eventType sql.NullString
			eventDate sql.NullString
			author    sql.NullString
			diffs     sql.NullString
		)
		if err := rows.Scan(&payload, &historyID, &evID, &target, &kind, &eventType, &eventDate, &author, &prevID, &diffs); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeDatabase, "读取实体失败")
		}

		e := r.newFn()
		if err := json.Unmarshal([]byte(payload), e); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeDatabase, "解析实体失败")
		}
		var latest *domain.HistoryEvent
		if evID.Valid {
			latest = &domain.HistoryEvent{ID: evID.Int64, TargetID: target.String, Author: author.String, PreviousID: prevID.Int64}
			if err := decodeEvent(latest, kind.String, eventType.String, eventDate.String, diffs.String); err != nil {
				return nil, err
			}
		}
		e.SetHistory(historyID, latest)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "遍历实体失败")
	}
	return out, nil
}
