package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_CodeMatching(t *testing.T) {
	err := Errorf(ErrCodeProgramming, "classify(%s, %s)", "nil", "nil")

	assert.True(t, IsProgramming(err))
	assert.True(t, stdErrors.Is(err, ErrProgramming))
	assert.False(t, stdErrors.Is(err, ErrNotFound))
	assert.Equal(t, "[PROGRAMMING_ERROR] classify(nil, nil)", err.Error())
	assert.NotEmpty(t, err.Stack())
}

func TestWrapError(t *testing.T) {
	t.Run("nil 错误返回 nil", func(t *testing.T) {
		assert.Nil(t, WrapError(nil, ErrCodeDatabase, "查询"))
	})

	t.Run("保留原始错误", func(t *testing.T) {
		cause := stdErrors.New("连接断开")
		wrapped := WrapError(cause, ErrCodeDatabase, "查询")
		assert.ErrorIs(t, wrapped, cause)
		assert.Equal(t, ErrCodeDatabase, GetErrorCode(wrapped))
	})
}

func TestAppError_WithContext(t *testing.T) {
	base := NewError(ErrCodeValidation, "规则自映射")
	withCtx := base.WithContext("rule_id", "r1")

	assert.Equal(t, "r1", withCtx.Details()["rule_id"])
	assert.Empty(t, base.Details(), "原错误不应被修改")
	assert.True(t, IsValidation(withCtx))
}

func TestIsValidation_IncludesDuplicate(t *testing.T) {
	assert.True(t, IsValidation(NewError(ErrCodeDuplicate, "重复键")))
	assert.True(t, IsDuplicate(NewError(ErrCodeDuplicate, "重复键")))
	assert.False(t, IsValidation(stdErrors.New("plain")))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(stdErrors.New("plain")))
	assert.Equal(t, ErrCodeUnsupported, GetErrorCode(NewError(ErrCodeUnsupported, "restore")))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"无记录", sql.ErrNoRows, ErrCodeNotFound},
		{"超时", context.DeadlineExceeded, ErrCodeTimeout},
		{"事务结束", sql.ErrTxDone, ErrCodeDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized := Normalize(tt.err)
			require.Error(t, normalized)
			assert.Equal(t, tt.code, GetErrorCode(normalized))
			assert.ErrorIs(t, normalized, tt.err)
		})
	}

	t.Run("未识别错误保持原样", func(t *testing.T) {
		plain := stdErrors.New("plain")
		assert.Same(t, plain, Normalize(plain))
	})
}

func TestWrapDatabaseError(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, WrapDatabaseError(ctx, nil, "读取"))
	assert.True(t, IsNotFound(WrapDatabaseError(ctx, sql.ErrNoRows, "读取")))
	assert.Equal(t, ErrCodeDatabase, GetErrorCode(WrapDatabaseError(ctx, stdErrors.New("disk"), "写入")))
}
