// Package sql 提供存储层使用的轻量 SQL 构建器
package sql

import (
	"context"
	"database/sql"

	core "refsync/data/db"
	"refsync/data/db/dialect"
)

// ISql 构建器入口
type ISql interface {
	Select(columns ...string) ISelectBuilder
	InsertInto(table string) IInsertBuilder
	Dialect() dialect.Dialect
}

// ISelectBuilder SELECT 构建器
type ISelectBuilder interface {
	From(table string) ISelectBuilder
	Where(cond string, args ...any) ISelectBuilder
	// WhereIn 追加 expr IN (...) 条件；values 为空时条件恒假
	WhereIn(expr string, values []string) ISelectBuilder
	// AnyOf 将多个子条件以 OR 组合为一个条件
	AnyOf(conds []string, args []any) ISelectBuilder
	OrderBy(expr string) ISelectBuilder
	Limit(n int) ISelectBuilder

	Build() (string, []any)
	Query(ctx context.Context) (core.IRows, error)
}

// IInsertBuilder INSERT 构建器
type IInsertBuilder interface {
	Columns(cols ...string) IInsertBuilder
	Values(vals ...any) IInsertBuilder
	// OnConflict 主键冲突时覆盖非键列
	OnConflict(keys ...string) IInsertBuilder

	Build() (string, []any, error)
	Exec(ctx context.Context) (sql.Result, error)
}

type builder struct {
	db      core.IDatabase
	dialect dialect.Dialect
}

// New 创建构建器；执行时优先使用 context 中的事务
func New(db core.IDatabase) ISql {
	return &builder{db: db, dialect: dialect.FromDatabase(db)}
}

func (b *builder) Dialect() dialect.Dialect { return b.dialect }

func (b *builder) Select(columns ...string) ISelectBuilder {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	return &selectBuilder{db: b.db, cols: columns}
}

func (b *builder) InsertInto(table string) IInsertBuilder {
	return &insertBuilder{db: b.db, dialect: b.dialect, table: table}
}
