// Package db 提供存储层使用的最小数据库抽象
package db

import (
	"context"
	"database/sql"
	"time"
)

// IDatabase 通用数据库接口
type IDatabase interface {
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	Begin(ctx context.Context) (ITransaction, error)

	Ping(ctx context.Context) error
	Close() error
}

// IDialectNameProvider 可选接口：提供底层数据库方言名称
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 事务接口
type ITransaction interface {
	IDatabase

	Commit() error
	Rollback() error
}

// IRows 查询结果集接口
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// IRow 单行结果接口
type IRow interface {
	Scan(dest ...any) error
}

// Config 数据库配置
type Config struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite, postgres, mysql
	DSN    string `mapstructure:"dsn" yaml:"dsn"`

	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

type txKey struct{}

// WithTx 将事务放入 context，同一工作单元内的仓储共享该事务
func WithTx(ctx context.Context, tx ITransaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom 取出 context 中的事务
func TxFrom(ctx context.Context) (ITransaction, bool) {
	tx, ok := ctx.Value(txKey{}).(ITransaction)
	return tx, ok && tx != nil
}

// Executor 优先返回 context 中的事务，否则返回 db 本身
func Executor(ctx context.Context, db IDatabase) IDatabase {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db
}
