package history

import (
	"reflect"

	"refsync/domain"
	"refsync/errors"
)

// Classify 使用共享 Hasher 对 (old, new) 分类，nil 表示缺失
func Classify(old, new domain.IHistorical) (domain.ChangeType, error) {
	return defaultHasher.Classify(old, new)
}

// Classify 纯函数，不修改任何实体：
//
//	缺失 → 存在         CREATE
//	打开 → 存在         指纹相同 SKIP，否则 UPDATE
//	关闭 → 存在         RESTORE
//	打开 → 缺失         CLOSE
//	关闭 → 缺失         IGNORE
//	缺失 → 缺失         PROGRAMMING_ERROR
func (h *Hasher) Classify(old, new domain.IHistorical) (domain.ChangeType, error) {
	oldAbsent, newAbsent := isNil(old), isNil(new)
	switch {
	case oldAbsent && newAbsent:
		return 0, errors.NewError(errors.ErrCodeProgramming, "classify called with neither old nor new entity")
	case oldAbsent:
		return domain.ChangeCreate, nil
	case newAbsent:
		if old.IsClosed() {
			return domain.ChangeIgnore, nil
		}
		return domain.ChangeClose, nil
	case old.IsClosed():
		return domain.ChangeRestore, nil
	}

	if old.Kind() != new.Kind() {
		return 0, errors.Errorf(errors.ErrCodeProgramming, "classify called with mismatched kinds %s and %s", old.Kind(), new.Kind())
	}
	if !h.Supports(old.Kind()) {
		return 0, errors.Errorf(errors.ErrCodeProgramming, "no content fields declared for %s", old.Kind())
	}
	if h.Fingerprint(old) == h.Fingerprint(new) {
		return domain.ChangeSkip, nil
	}
	return domain.ChangeUpdate, nil
}

// isNil 识别 nil 接口以及装有 nil 指针的接口
func isNil(e domain.IHistorical) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
