package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"refsync/errors"
	"refsync/history"
	"refsync/logging"
)

// LoggingMiddleware 记录每个变更集的投递结果与耗时
type LoggingMiddleware struct {
	logger logging.Logger
}

func NewLoggingMiddleware(logger logging.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = logging.Component("dispatch")
	}
	return &LoggingMiddleware{logger: logger}
}

func (m *LoggingMiddleware) Name() string { return "Logging" }

func (m *LoggingMiddleware) Handle(ctx context.Context, set *history.ChangeSet, next HandlerFunc) error {
	start := time.Now()
	err := next(ctx, set)
	fields := []logging.Field{
		logging.String("kind", set.Kind.String()),
		logging.String("change", set.Type.String()),
		logging.String("mode", set.Mode.String()),
		logging.Int("entities", set.Len()),
		logging.Int("depth", Depth(ctx)),
		logging.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		m.logger.Warn(ctx, "变更集分发失败", append(fields, logging.Error(err))...)
		return err
	}
	if set.Type.Actionable() {
		m.logger.Info(ctx, "变更集已分发", fields...)
	} else {
		m.logger.Debug(ctx, "变更集已分发", fields...)
	}
	return nil
}

type correlationKey struct{}
type depthKey struct{}

// CorrelationID 取出级联分发共享的关联 ID
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// WithCorrelationID 设置关联 ID（通常为工作单元 ID）
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// Depth 当前级联深度，顶层分发为 1，分发之外为 0
func Depth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// TracingMiddleware 为顶层分发分配关联 ID，并记录级联深度
type TracingMiddleware struct {
	// MaxDepth 大于 0 时限制级联深度，防止观察者之间形成回路
	MaxDepth int
}

func NewTracingMiddleware(maxDepth int) *TracingMiddleware {
	return &TracingMiddleware{MaxDepth: maxDepth}
}

func (m *TracingMiddleware) Name() string { return "Tracing" }

func (m *TracingMiddleware) Handle(ctx context.Context, set *history.ChangeSet, next HandlerFunc) error {
	if CorrelationID(ctx) == "" {
		ctx = WithCorrelationID(ctx, uuid.NewString())
	}
	depth := Depth(ctx) + 1
	if m.MaxDepth > 0 && depth > m.MaxDepth {
		return errors.Errorf(errors.ErrCodeProgramming, "cascade depth %d exceeded while dispatching %s %s", depth, set.Kind, set.Type)
	}
	return next(context.WithValue(ctx, depthKey{}, depth), set)
}

func init() {
	logging.RegisterContextFields(func(ctx context.Context) []logging.Field {
		if id := CorrelationID(ctx); id != "" {
			return []logging.Field{logging.String("correlation_id", id)}
		}
		return nil
	})
}
