package refbook

import (
	"refsync/domain"
	"refsync/validation"
)

// DictionarySnapshot 嵌入依赖方的字典反规范化快照
type DictionarySnapshot struct {
	DictionaryID   string `json:"dictionaryId" yaml:"dictionaryId"`
	DictionaryName string `json:"dictionaryName,omitempty" yaml:"dictionaryName,omitempty"`
	GroupID        string `json:"groupId,omitempty" yaml:"groupId,omitempty"`
	GroupName      string `json:"groupName,omitempty" yaml:"groupName,omitempty"`
}

// MetaFieldSnapshot 规则集端点：元字段及其所属字典、分组
type MetaFieldSnapshot struct {
	MetaFieldID   string `json:"metaFieldId" yaml:"metaFieldId"`
	MetaFieldName string `json:"metaFieldName,omitempty" yaml:"metaFieldName,omitempty"`

	DictionarySnapshot `yaml:",inline"`
}

// FieldSnapshot 规则端点：具体字段值
type FieldSnapshot struct {
	FieldID     string `json:"fieldId" yaml:"fieldId"`
	MetaFieldID string `json:"metaFieldId,omitempty" yaml:"metaFieldId,omitempty"`
	RecordID    string `json:"recordId,omitempty" yaml:"recordId,omitempty"`
	Value       string `json:"value" yaml:"value"`
}

// RuleSet 两个字典之间的值重编码配置
type RuleSet struct {
	domain.Historical `yaml:",inline"`

	Name string            `json:"name" yaml:"name"`
	From MetaFieldSnapshot `json:"from" yaml:"from"`
	To   MetaFieldSnapshot `json:"to" yaml:"to"`
	// Default 无匹配规则时使用的目标值
	Default *FieldSnapshot `json:"default,omitempty" yaml:"default,omitempty"`
}

func (r *RuleSet) Kind() domain.EntityKind { return domain.KindRuleSet }

func (r *RuleSet) Clone() *RuleSet {
	c := *r
	if r.Default != nil {
		d := *r.Default
		c.Default = &d
	}
	return &c
}

func (r *RuleSet) Validate() error {
	return validation.First(
		validation.ValidateRequired(r.Name, "规则集名称"),
		validation.ValidateReference(r.From.MetaFieldID, "from.metaFieldId"),
		validation.ValidateReference(r.To.MetaFieldID, "to.metaFieldId"),
		validation.ValidateDistinct(r.From.MetaFieldID, r.To.MetaFieldID, "源元字段", "目标元字段"),
	)
}

// Rule 规则集中的一条值映射
type Rule struct {
	domain.Historical `yaml:",inline"`

	RuleSetID string        `json:"ruleSetId" yaml:"ruleSetId"`
	From      FieldSnapshot `json:"from" yaml:"from"`
	To        FieldSnapshot `json:"to" yaml:"to"`
}

func (r *Rule) Kind() domain.EntityKind { return domain.KindRule }

func (r *Rule) Clone() *Rule {
	c := *r
	return &c
}

// Validate 拒绝自映射规则
func (r *Rule) Validate() error {
	return validation.First(
		validation.ValidateReference(r.RuleSetID, "ruleSetId"),
		validation.ValidateReference(r.From.FieldID, "from.fieldId"),
		validation.ValidateReference(r.To.FieldID, "to.fieldId"),
		validation.ValidateDistinct(r.From.FieldID, r.To.FieldID, "源字段", "目标字段"),
	)
}

// SyncTask 绑定到字典的周期同步任务
type SyncTask struct {
	domain.Historical `yaml:",inline"`

	Name       string             `json:"name" yaml:"name"`
	Schedule   string             `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Enabled    bool               `json:"enabled" yaml:"enabled"`
	Dictionary DictionarySnapshot `json:"dictionary" yaml:"dictionary"`
}

func (t *SyncTask) Kind() domain.EntityKind { return domain.KindSyncTask }

func (t *SyncTask) Clone() *SyncTask {
	c := *t
	return &c
}

func (t *SyncTask) Validate() error {
	return validation.First(
		validation.ValidateRequired(t.Name, "任务名称"),
		validation.ValidateReference(t.Dictionary.DictionaryID, "dictionary.dictionaryId"),
	)
}
