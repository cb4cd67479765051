package domain

import "fmt"

// ChangeType 一次对账中实体的生命周期转换分类
type ChangeType int

// 声明顺序即分发顺序
const (
	ChangeIgnore ChangeType = iota + 1
	ChangeSkip
	ChangeCreate
	ChangeUpdate
	ChangeRestore
	ChangeClose
)

// ChangeTypes 按分发顺序返回所有变更类型
func ChangeTypes() []ChangeType {
	return []ChangeType{ChangeIgnore, ChangeSkip, ChangeCreate, ChangeUpdate, ChangeRestore, ChangeClose}
}

func (t ChangeType) String() string {
	switch t {
	case ChangeIgnore:
		return "IGNORE"
	case ChangeSkip:
		return "SKIP"
	case ChangeCreate:
		return "CREATE"
	case ChangeUpdate:
		return "UPDATE"
	case ChangeRestore:
		return "RESTORE"
	case ChangeClose:
		return "CLOSE"
	default:
		return fmt.Sprintf("CHANGE(%d)", int(t))
	}
}

// Actionable IGNORE 与 SKIP 之外的类型会产生 HistoryEvent
func (t ChangeType) Actionable() bool {
	switch t {
	case ChangeCreate, ChangeUpdate, ChangeRestore, ChangeClose:
		return true
	}
	return false
}

// Actual 分类后实体仍处于有效状态（CREATE、UPDATE、RESTORE、SKIP）
func (t ChangeType) Actual() bool {
	return t == ChangeSkip || t == ChangeCreate || t == ChangeUpdate || t == ChangeRestore
}

// EventType 对应的事件类型；不产生事件的分类返回空串
func (t ChangeType) EventType() EventType {
	switch t {
	case ChangeCreate:
		return EventCreate
	case ChangeUpdate:
		return EventUpdate
	case ChangeRestore:
		return EventRestore
	case ChangeClose:
		return EventClose
	}
	return ""
}

func (t ChangeType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ChangeType) UnmarshalText(text []byte) error {
	for _, ct := range ChangeTypes() {
		if ct.String() == string(text) {
			*t = ct
			return nil
		}
	}
	return fmt.Errorf("unknown change type %q", string(text))
}

// ChangeMode 变更集的分发模式
type ChangeMode int

const (
	// ModeDefault 自身与依赖方观察者都会收到
	ModeDefault ChangeMode = iota
	// ModeIsolated 只做自身处理，不再触发依赖方，用于阻断级联回路
	ModeIsolated
)

func (m ChangeMode) String() string {
	if m == ModeIsolated {
		return "ISOLATED"
	}
	return "DEFAULT"
}
