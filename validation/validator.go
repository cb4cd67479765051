// Package validation 提供实体校验使用的通用检查函数
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"refsync/errors"
)

// IValidatable 可自校验的实体
type IValidatable interface {
	Validate() error
}

// Validate 对实现 IValidatable 的值执行校验，其他值视为合法
func Validate(value any) error {
	if v, ok := value.(IValidatable); ok {
		return v.Validate()
	}
	return nil
}

// ValidateRequired 验证必填字段
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不能为空", fieldName))
	}
	return nil
}

// ValidateStringLength 验证字符串长度（按字符计），max 为 0 表示不限
func ValidateStringLength(value, fieldName string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if length < min {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s长度不能少于%d个字符（当前%d）", fieldName, min, length))
	}
	if max > 0 && length > max {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s长度不能超过%d个字符（当前%d）", fieldName, max, length))
	}
	return nil
}

// ValidateEnum 验证枚举值
func ValidateEnum(value, fieldName string, validValues []string) error {
	for _, valid := range validValues {
		if value == valid {
			return nil
		}
	}
	return errors.NewError(errors.ErrCodeValidation,
		fmt.Sprintf("%s的值无效，必须是以下之一: %v", fieldName, validValues))
}

// ValidateReference 验证必需的依赖引用已填写
func ValidateReference(id, fieldName string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("缺少必需的依赖: %s", fieldName))
	}
	return nil
}

// ValidateDistinct 验证两个引用不相同（例如规则的源字段与目标字段）
func ValidateDistinct(left, right, leftName, rightName string) error {
	if left != "" && left == right {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s与%s不能相同（%s）", leftName, rightName, left))
	}
	return nil
}

// First 依次执行检查，返回第一个错误
func First(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
