package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	core "refsync/data/db"
	"refsync/data/db/dialect"
)

type insertBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	columns []string
	values  []any
	keys    []string
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.columns = cols
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	b.values = vals
	return b
}

func (b *insertBuilder) OnConflict(keys ...string) IInsertBuilder {
	b.keys = keys
	return b
}

func (b *insertBuilder) Build() (string, []any, error) {
	if !isSafeIdentifier(b.table) {
		return "", nil, fmt.Errorf("insert: unsafe table name %q", b.table)
	}
	if len(b.columns) == 0 {
		return "", nil, fmt.Errorf("insert: columns are required")
	}
	if len(b.values) != len(b.columns) {
		return "", nil, fmt.Errorf("insert: %d values for %d columns", len(b.values), len(b.columns))
	}
	for _, c := range b.columns {
		if !isSafeIdentifier(c) {
			return "", nil, fmt.Errorf("insert: unsafe column name %q", c)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(b.columns)), ", ")
	query := "INSERT INTO " + b.table + " (" + strings.Join(b.columns, ", ") + ") VALUES (" + placeholders + ")"

	if len(b.keys) > 0 {
		update := make([]string, 0, len(b.columns))
		for _, c := range b.columns {
			if !contains(b.keys, c) {
				update = append(update, c)
			}
		}
		if len(update) > 0 {
			query += b.dialect.UpsertClause(b.keys, update)
		}
	}
	return query, append([]any(nil), b.values...), nil
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	query, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return core.Executor(ctx, b.db).Exec(ctx, query, args...)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
