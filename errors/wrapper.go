package errors

import (
	"context"
	"fmt"
	"runtime"

	"refsync/logging"
)

// Wrap 包装错误并以 Debug 级别记录包装位置
func Wrap(ctx context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	wrapped := WrapError(err, code, msg)
	logging.GetLogger().Debug(ctx, "错误包装", logging.String("message", msg),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)))
	return wrapped
}

// WrapWithLog 包装错误并记录警告日志
func WrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	wrapped := WrapError(err, code, msg)

	all := append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	}, fields...)
	logging.GetLogger().Warn(ctx, msg, all...)
	return wrapped
}

// WrapDatabaseError 包装数据库错误；未找到类错误保留 NOT_FOUND 错误码
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	err = Normalize(err)
	if IsNotFound(err) {
		return WrapError(err, ErrCodeNotFound, operation)
	}
	return WrapWithLog(ctx, err, ErrCodeDatabase,
		fmt.Sprintf("数据库操作失败: %s", operation),
		logging.String("operation", operation),
	)
}

// NewValidationError 创建验证错误
func NewValidationError(msg string) error {
	return NewError(ErrCodeValidation, msg)
}
