// Package refbook 参考数据模型：分组 → 字典 → 元字段 → 字段值，以及字典间的重编码规则
package refbook

import (
	"maps"
	"slices"

	"refsync/domain"
	"refsync/validation"
)

// FieldType 元字段的数据类型
type FieldType int

const (
	TypeString FieldType = iota + 1
	TypeInteger
	TypeDecimal
	TypeDate
	TypeBoolean
)

var fieldTypeNames = map[FieldType]string{
	TypeString:  "STRING",
	TypeInteger: "INTEGER",
	TypeDecimal: "DECIMAL",
	TypeDate:    "DATE",
	TypeBoolean: "BOOLEAN",
}

func (t FieldType) String() string {
	if n, ok := fieldTypeNames[t]; ok {
		return n
	}
	return "UNKNOWN"
}

func (t FieldType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *FieldType) UnmarshalText(text []byte) error {
	for k, n := range fieldTypeNames {
		if n == string(text) {
			*t = k
			return nil
		}
	}
	return validation.ValidateEnum(string(text), "字段类型", FieldTypeNames())
}

// FieldTypeNames 所有合法类型名
func FieldTypeNames() []string {
	names := make([]string, 0, len(fieldTypeNames))
	for _, n := range fieldTypeNames {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Group 字典分组
type Group struct {
	domain.Historical `yaml:",inline"`

	Code        string   `json:"code" yaml:"code"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

func (g *Group) Kind() domain.EntityKind { return domain.KindGroup }

func (g *Group) Clone() *Group {
	c := *g
	c.Tags = slices.Clone(g.Tags)
	return &c
}

func (g *Group) Validate() error {
	return validation.First(
		validation.ValidateRequired(g.Name, "分组名称"),
		validation.ValidateStringLength(g.Name, "分组名称", 1, 255),
	)
}

// Dictionary 参考数据字典，隶属于一个分组
type Dictionary struct {
	domain.Historical `yaml:",inline"`

	GroupID     string            `json:"groupId" yaml:"groupId"`
	Code        string            `json:"code" yaml:"code"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

func (d *Dictionary) Kind() domain.EntityKind { return domain.KindDictionary }

func (d *Dictionary) Clone() *Dictionary {
	c := *d
	c.Attributes = maps.Clone(d.Attributes)
	return &c
}

func (d *Dictionary) Validate() error {
	return validation.First(
		validation.ValidateReference(d.GroupID, "groupId"),
		validation.ValidateRequired(d.Name, "字典名称"),
		validation.ValidateStringLength(d.Name, "字典名称", 1, 255),
	)
}

// MetaField 字典的类型化列；Primary 标记用于重编码的主键列
type MetaField struct {
	domain.Historical `yaml:",inline"`

	DictionaryID string    `json:"dictionaryId" yaml:"dictionaryId"`
	Name         string    `json:"name" yaml:"name"`
	Type         FieldType `json:"type" yaml:"type"`
	Primary      bool      `json:"primary,omitempty" yaml:"primary,omitempty"`
	Unique       bool      `json:"unique,omitempty" yaml:"unique,omitempty"`
	Ordinal      int       `json:"ordinal,omitempty" yaml:"ordinal,omitempty"`
}

func (m *MetaField) Kind() domain.EntityKind { return domain.KindMetaField }

func (m *MetaField) Clone() *MetaField {
	c := *m
	return &c
}

func (m *MetaField) Validate() error {
	return validation.First(
		validation.ValidateReference(m.DictionaryID, "dictionaryId"),
		validation.ValidateRequired(m.Name, "元字段名称"),
		validation.ValidateEnum(m.Type.String(), "字段类型", FieldTypeNames()),
	)
}

// Field 某条记录在某个元字段上的取值
type Field struct {
	domain.Historical `yaml:",inline"`

	MetaFieldID string `json:"metaFieldId" yaml:"metaFieldId"`
	RecordID    string `json:"recordId" yaml:"recordId"`
	Value       string `json:"value" yaml:"value"`
}

func (f *Field) Kind() domain.EntityKind { return domain.KindField }

func (f *Field) Clone() *Field {
	c := *f
	return &c
}

func (f *Field) Validate() error {
	return validation.First(
		validation.ValidateReference(f.MetaFieldID, "metaFieldId"),
		validation.ValidateReference(f.RecordID, "recordId"),
	)
}

// Snapshot 字段的当前取值快照
func (f *Field) Snapshot() FieldSnapshot {
	return FieldSnapshot{FieldID: f.ID, MetaFieldID: f.MetaFieldID, RecordID: f.RecordID, Value: f.Value}
}
