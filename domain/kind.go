package domain

import (
	"fmt"
	"strings"
)

// EntityKind 引擎追踪的实体类型，取值顺序即依赖拓扑中的位置
type EntityKind int

const (
	KindGroup EntityKind = iota + 1
	KindDictionary
	KindMetaField
	KindField
	KindRuleSet
	KindRule
	KindSyncTask
)

var kindNames = map[EntityKind]string{
	KindGroup:      "GROUP",
	KindDictionary: "DICTIONARY",
	KindMetaField:  "META_FIELD",
	KindField:      "FIELD",
	KindRuleSet:    "RULE_SET",
	KindRule:       "RULE",
	KindSyncTask:   "SYNC_TASK",
}

// Kinds 按优先级升序返回所有实体类型
func Kinds() []EntityKind {
	return []EntityKind{KindGroup, KindDictionary, KindMetaField, KindField, KindRuleSet, KindRule, KindSyncTask}
}

func (k EntityKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

// Priority 观察者优先级，数值越小越先执行。
// 依赖方总在被依赖方之后，保证实际化时读到的是已落库的状态。
func (k EntityKind) Priority() int { return int(k) * 100 }

func (k EntityKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind 解析实体类型名称（不区分大小写）
func ParseKind(name string) (EntityKind, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == upper {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %q", name)
}

func (k EntityKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *EntityKind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
