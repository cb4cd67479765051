// Package logging 提供引擎统一使用的结构化日志抽象
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String 返回级别的大写名称
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel 将配置中的级别名解析为 Level，未知名称回退到 InfoLevel
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger 日志接口
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields 添加固定字段，返回新的 Logger
	WithFields(fields ...Field) Logger
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Any(key string, value any) Field { return Field{Key: key, Value: value} }

func Error(err error) Field { return Field{Key: "error", Value: err} }

func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Strings 以逗号拼接的形式输出字符串列表
func Strings(key string, values []string) Field {
	return Field{Key: key, Value: strings.Join(values, ",")}
}

// ContextFieldsFunc 从 context 中提取附加字段（例如工作单元 ID）
type ContextFieldsFunc func(ctx context.Context) []Field

var (
	ctxExtractorsMu sync.RWMutex
	ctxExtractors   []ContextFieldsFunc
)

// RegisterContextFields 注册 context 字段提取器，StdLogger 输出时会附带这些字段
func RegisterContextFields(fn ContextFieldsFunc) {
	if fn == nil {
		return
	}
	ctxExtractorsMu.Lock()
	defer ctxExtractorsMu.Unlock()
	ctxExtractors = append(ctxExtractors, fn)
}

func contextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	ctxExtractorsMu.RLock()
	extractors := ctxExtractors
	ctxExtractorsMu.RUnlock()

	var out []Field
	for _, fn := range extractors {
		out = append(out, fn(ctx)...)
	}
	return out
}

// StdLogger 基于标准库 log 的实现，按 key=value 形式输出
type StdLogger struct {
	out    *log.Logger
	level  Level
	fields []Field
}

// NewStdLogger 创建输出到 stderr 的 Logger，prefix 会作为 component 字段输出
func NewStdLogger(prefix string) *StdLogger {
	return NewStdLoggerTo(os.Stderr, prefix, InfoLevel)
}

// NewStdLoggerTo 创建输出到指定 writer 的 Logger
func NewStdLoggerTo(w io.Writer, prefix string, level Level) *StdLogger {
	l := &StdLogger{
		out:   log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		level: level,
	}
	if prefix != "" {
		l.fields = []Field{String("component", prefix)}
	}
	return l
}

// SetLevel 调整最低输出级别
func (l *StdLogger) SetLevel(level Level) { l.level = level }

func (l *StdLogger) write(ctx context.Context, level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(level.String())
	sb.WriteString("] ")
	sb.WriteString(msg)

	all := make([]Field, 0, len(l.fields)+len(fields)+2)
	all = append(all, l.fields...)
	all = append(all, contextFields(ctx)...)
	all = append(all, fields...)
	for _, f := range all {
		sb.WriteString(" ")
		sb.WriteString(f.Key)
		sb.WriteString("=")
		sb.WriteString(formatValue(f.Value))
	}
	l.out.Println(sb.String())
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case string:
		if strings.ContainsAny(val, " \t\"") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case error:
		return fmt.Sprintf("%q", val.Error())
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, DebugLevel, msg, fields)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, InfoLevel, msg, fields)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, WarnLevel, msg, fields)
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, ErrorLevel, msg, fields)
}

func (l *StdLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, len(l.fields)+len(fields))
	copy(merged, l.fields)
	copy(merged[len(l.fields):], fields)
	return &StdLogger{out: l.out, level: l.level, fields: merged}
}

// NoopLogger 空日志实现（用于测试）
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                      { return l }

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewStdLogger("")
)

// SetLogger 设置全局 Logger
func SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetLogger 获取全局 Logger
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Component 返回带 component 字段的全局 Logger，组件未显式注入 Logger 时使用
func Component(name string) Logger {
	return GetLogger().WithFields(String("component", name))
}
