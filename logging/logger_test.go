package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type ctxKey struct{}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel(" WARNING "))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
	assert.Equal(t, "WARN", WarnLevel.String())
}

func TestStdLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, "test", WarnLevel)
	ctx := context.Background()

	l.Info(ctx, "hidden")
	l.Warn(ctx, "shown", String("key", "value"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown")
	assert.Contains(t, out, "component=test")
	assert.Contains(t, out, "key=value")
}

func TestStdLogger_WithFieldsDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := NewStdLoggerTo(&buf, "", DebugLevel)
	child := base.WithFields(String("batch", "b1"))
	ctx := context.Background()

	base.Debug(ctx, "from base")
	child.Debug(ctx, "from child")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if assert.Len(t, lines, 2) {
		assert.NotContains(t, lines[0], "batch=b1")
		assert.Contains(t, lines[1], "batch=b1")
	}
}

func TestStdLogger_ContextFields(t *testing.T) {
	RegisterContextFields(func(ctx context.Context) []Field {
		if v, ok := ctx.Value(ctxKey{}).(string); ok {
			return []Field{String("uow", v)}
		}
		return nil
	})

	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, "", DebugLevel)
	l.Info(context.WithValue(context.Background(), ctxKey{}, "u-1"), "msg")
	assert.Contains(t, buf.String(), "uow=u-1")
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"字符串", "plain", "plain"},
		{"带空格字符串", "two words", `"two words"`},
		{"错误", errors.New("boom"), `"boom"`},
		{"整数", 42, "42"},
		{"空值", nil, "<nil>"},
		{"Stringer", WarnLevel, "WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatValue(tt.value))
		})
	}
}

func TestGlobalLogger(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	noop := NewNoopLogger()
	SetLogger(noop)
	assert.Same(t, noop, GetLogger())

	SetLogger(nil)
	assert.Same(t, noop, GetLogger(), "nil logger must be ignored")
}
