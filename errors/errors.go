// Package errors 定义引擎统一的错误码体系
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	// 通用错误代码
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"

	// 业务错误代码
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeDuplicate  ErrorCode = "DUPLICATE_ERROR"
	ErrCodeDependency ErrorCode = "DEPENDENCY_ERROR"

	// 调用方违反引擎前置条件（例如对两个缺失实体做分类），不应在正确构造的批次中出现
	ErrCodeProgramming ErrorCode = "PROGRAMMING_ERROR"
	// 协作方不支持请求的操作（例如仅追加的索引收到 RESTORE）
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"

	// 基础设施错误代码
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeCache    ErrorCode = "CACHE_ERROR"
	ErrCodeQueue    ErrorCode = "QUEUE_ERROR"
	ErrCodeNetwork  ErrorCode = "NETWORK_ERROR"
)

// IError 错误接口
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any
	Stack() string

	// Wrap 以相同错误码包装，补充上层消息
	Wrap(msg string) IError

	// WithContext 返回携带附加详情的副本
	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{
		code:    code,
		message: message,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// Errorf 按格式创建新错误
func Errorf(code ErrorCode, format string, args ...any) IError {
	return &AppError{
		code:    code,
		message: fmt.Sprintf(format, args...),
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// WrapError 包装错误，err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{
		code:    code,
		message: message,
		cause:   err,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }

func (e *AppError) Message() string { return e.message }

func (e *AppError) Cause() error { return e.cause }

func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

func (e *AppError) Stack() string { return e.stack }

// Is 同错误码的 AppError 视为相等
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	return false
}

// Unwrap 解包错误（支持 errors.Is / errors.As）
func (e *AppError) Unwrap() error { return e.cause }

func (e *AppError) Wrap(msg string) IError {
	return &AppError{
		code:    e.code,
		message: fmt.Sprintf("%s: %s", msg, e.message),
		cause:   e,
		details: copyMap(e.details),
		stack:   captureStack(),
	}
}

func (e *AppError) WithContext(key string, value any) IError {
	details := copyMap(e.details)
	details[key] = value
	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: details,
		stack:   e.stack,
	}
}

// 预定义错误变量，仅用于 errors.Is 比较错误码
var (
	ErrNotFound    = NewError(ErrCodeNotFound, "资源未找到")
	ErrValidation  = NewError(ErrCodeValidation, "数据验证失败")
	ErrDuplicate   = NewError(ErrCodeDuplicate, "数据重复")
	ErrProgramming = NewError(ErrCodeProgramming, "编程错误")
	ErrUnsupported = NewError(ErrCodeUnsupported, "不支持的操作")
)

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool { return IsErrorCode(err, ErrCodeNotFound) }

// IsValidation 检查是否为验证类错误（含重复数据）
func IsValidation(err error) bool {
	return IsErrorCode(err, ErrCodeValidation) || IsErrorCode(err, ErrCodeDuplicate)
}

func IsDuplicate(err error) bool { return IsErrorCode(err, ErrCodeDuplicate) }

func IsProgramming(err error) bool { return IsErrorCode(err, ErrCodeProgramming) }

func IsUnsupported(err error) bool { return IsErrorCode(err, ErrCodeUnsupported) }

// IsErrorCode 检查错误链中最外层 AppError 的错误码
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}
	return false
}

// GetErrorCode 获取错误代码，非 AppError 返回 INTERNAL_ERROR
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&builder, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return builder.String()
}

func copyMap(original map[string]any) map[string]any {
	copied := make(map[string]any, len(original)+1)
	for k, v := range original {
		copied[k] = v
	}
	return copied
}
