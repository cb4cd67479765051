// Package sqlstore 基于 data/db 的 SQL 仓储与 HistoryEvent 存储。
//
// 所有实体类型共用一张表，内容以 JSON 保存在 payload 列，
// 条件查询通过方言的 JSON 取值表达式完成。
package sqlstore

import (
	"context"

	core "refsync/data/db"
	"refsync/errors"
)

const (
	entityTable  = "refsync_entities"
	historyTable = "refsync_history"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ` + entityTable + ` (
		kind       TEXT    NOT NULL,
		id         TEXT    NOT NULL,
		related_id TEXT    NOT NULL DEFAULT '',
		history_id INTEGER NOT NULL DEFAULT 0,
		state      TEXT    NOT NULL DEFAULT '',
		payload    TEXT    NOT NULL,
		PRIMARY KEY (kind, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refsync_entities_related ON ` + entityTable + ` (kind, related_id)`,
	`CREATE TABLE IF NOT EXISTS ` + historyTable + ` (
		id          INTEGER PRIMARY KEY,
		target_id   TEXT    NOT NULL,
		target_kind TEXT    NOT NULL,
		event_type  TEXT    NOT NULL,
		event_date  TEXT    NOT NULL,
		author      TEXT    NOT NULL DEFAULT '',
		previous_id INTEGER NOT NULL DEFAULT 0,
		diffs       TEXT    NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refsync_history_target ON ` + historyTable + ` (target_id, id)`,
}

// EnsureSchema 创建实体表与历史表（已存在时跳过）
func EnsureSchema(ctx context.Context, db core.IDatabase) error {
	for _, stmt := range schema {
		if _, err := core.Executor(ctx, db).Exec(ctx, stmt); err != nil {
			return errors.WrapDatabaseError(ctx, err, "初始化表结构")
		}
	}
	return nil
}
