// Package dialect 抽象存储层实际用到的方言差异
package dialect

import (
	"strconv"
	"strings"

	core "refsync/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameMySQL    Name = "mysql"
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// Dialect 当前数据库的方言能力
type Dialect struct {
	name Name
}

// New 根据字符串构造方言（大小写不敏感）
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql":
		return Dialect{name: NameMySQL}
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pgx":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从实现了 IDialectNameProvider 的数据库推断方言
func FromDatabase(db core.IDatabase) Dialect {
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

func (d Dialect) Name() Name { return d.name }

// QuoteIdentifier 按方言为标识符加引号，带点的限定名逐段处理
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		switch d.name {
		case NameMySQL:
			parts[i] = "`" + p + "`"
		case NameSQLite, NamePostgres:
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 将占位符 ? 转换为方言形式，目前仅 Postgres 需要 $n。
// 简单字符扫描，不识别字符串字面量中的 ?。
func (d Dialect) Rebind(query string) string {
	if d.name != NamePostgres || query == "" {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 4)
	argIndex := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(argIndex))
			argIndex++
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// JSONText 返回从 JSON 列中按点分路径取文本值的表达式，例如 from.metaFieldId
func (d Dialect) JSONText(column, path string) string {
	segments := strings.Split(path, ".")
	switch d.name {
	case NamePostgres:
		return column + " #>> '{" + strings.Join(segments, ",") + "}'"
	case NameMySQL:
		return "JSON_UNQUOTE(JSON_EXTRACT(" + column + ", '$." + path + "'))"
	default:
		return "json_extract(" + column + ", '$." + path + "')"
	}
}

// UpsertClause 返回主键冲突时覆盖 columns 的子句
func (d Dialect) UpsertClause(keys []string, columns []string) string {
	if d.name == NameMySQL {
		sets := make([]string, 0, len(columns))
		for _, c := range columns {
			sets = append(sets, c+" = VALUES("+c+")")
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		sets = append(sets, c+" = excluded."+c)
	}
	return " ON CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// IsUniqueViolation 通过错误消息关键字识别唯一键冲突
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch d.name {
	case NameMySQL:
		return strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "duplicate key")
	case NameSQLite:
		return strings.Contains(msg, "unique constraint failed")
	default:
		return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
	}
}
