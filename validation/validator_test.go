package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"refsync/errors"
)

type selfChecked struct{ ok bool }

func (s selfChecked) Validate() error {
	if s.ok {
		return nil
	}
	return errors.NewValidationError("bad")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(selfChecked{ok: true}))
	assert.True(t, errors.IsValidation(Validate(selfChecked{})))
	assert.NoError(t, Validate("not validatable"))
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"有值", "Sales", false},
		{"空字符串", "", true},
		{"仅空白", "   ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequired(tt.value, "名称")
			if tt.wantErr {
				assert.True(t, errors.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateStringLength_CountsRunes(t *testing.T) {
	assert.NoError(t, ValidateStringLength("货币", "名称", 1, 2))
	assert.Error(t, ValidateStringLength("货币表", "名称", 1, 2))
	assert.Error(t, ValidateStringLength("", "名称", 1, 0))
	assert.NoError(t, ValidateStringLength("very long name", "名称", 1, 0))
}

func TestValidateEnum(t *testing.T) {
	allowed := []string{"STRING", "INTEGER"}
	assert.NoError(t, ValidateEnum("STRING", "类型", allowed))
	assert.Error(t, ValidateEnum("BLOB", "类型", allowed))
}

func TestValidateDistinct(t *testing.T) {
	assert.NoError(t, ValidateDistinct("f1", "f2", "源字段", "目标字段"))
	assert.NoError(t, ValidateDistinct("", "", "源字段", "目标字段"))

	err := ValidateDistinct("f1", "f1", "源字段", "目标字段")
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "f1")
}

func TestValidateReference(t *testing.T) {
	assert.NoError(t, ValidateReference("g1", "groupId"))
	assert.Error(t, ValidateReference(" ", "groupId"))
}

func TestFirst(t *testing.T) {
	assert.NoError(t, First(nil, nil))
	err := First(nil, ValidateRequired("", "a"), ValidateRequired("", "b"))
	assert.Contains(t, err.Error(), "a不能为空")
}
