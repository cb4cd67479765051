package sql

import (
	"context"
	"strings"

	core "refsync/data/db"
)

type selectBuilder struct {
	db core.IDatabase

	cols    []string
	table   string
	where   []string
	args    []any
	orderBy string
	limit   int
}

func (b *selectBuilder) From(table string) ISelectBuilder {
	b.table = table
	return b
}

func (b *selectBuilder) Where(cond string, args ...any) ISelectBuilder {
	if cond != "" {
		b.where = append(b.where, cond)
		b.args = append(b.args, args...)
	}
	return b
}

func (b *selectBuilder) WhereIn(expr string, values []string) ISelectBuilder {
	if len(values) == 0 {
		return b.Where("1 = 0")
	}
	cond, args := inClause(expr, values)
	return b.Where(cond, args...)
}

func (b *selectBuilder) AnyOf(conds []string, args []any) ISelectBuilder {
	switch len(conds) {
	case 0:
		return b
	case 1:
		return b.Where(conds[0], args...)
	}
	return b.Where("("+strings.Join(conds, " OR ")+")", args...)
}

func (b *selectBuilder) OrderBy(expr string) ISelectBuilder {
	b.orderBy = expr
	return b
}

func (b *selectBuilder) Limit(n int) ISelectBuilder {
	b.limit = n
	return b
}

func (b *selectBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	args := make([]any, 0, len(b.args)+1)
	args = append(args, b.args...)
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if b.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.orderBy)
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	return sb.String(), args
}

func (b *selectBuilder) Query(ctx context.Context) (core.IRows, error) {
	query, args := b.Build()
	return core.Executor(ctx, b.db).Query(ctx, query, args...)
}

// inClause 生成 expr IN (?, ?, ...) 与对应参数
func inClause(expr string, values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return expr + " IN (" + strings.Join(placeholders, ", ") + ")", args
}

// In 生成 IN 条件，供 AnyOf 组合使用
func In(expr string, values []string) (string, []any) {
	if len(values) == 0 {
		return "1 = 0", nil
	}
	return inClause(expr, values)
}
