package refbook

import "refsync/domain"

// registry 各实体类型参与指纹与差异计算的内容字段。
// ID、HistoryID、Permissions 等标识与派生字段不在其中。
var registry = domain.ContentRegistry{
	domain.KindGroup: {
		{Name: "code", Kind: domain.FieldString, Get: func(e domain.IHistorical) any { return e.(*Group).Code }},
		{Name: "name", Kind: domain.FieldFolded, Get: func(e domain.IHistorical) any { return e.(*Group).Name }},
		{Name: "description", Kind: domain.FieldString, Get: func(e domain.IHistorical) any { return e.(*Group).Description }},
		{Name: "tags", Kind: domain.FieldSet, Get: func(e domain.IHistorical) any { return e.(*Group).Tags }},
	},
	domain.KindDictionary: {
		{Name: "groupId", Kind: domain.FieldString, Get: func(e domain.IHistorical) any { return e.(*Dictionary).GroupID }},
		{Name: "code", Kind: domain.FieldString, Get: func(e domain.IHistorical) any { return e.(*Dictionary).Code }},
		{Name: "name", Kind: domain.FieldFolded, Get: func(e domain.IHistorical) any { return e.(*Dictionary).Name }},
		{Name: "description", Kind: domain.FieldString, Get: func(e domain.IHistorical) any { return e.(*Dictionary).Description }},
		{Name: "attributes", Kind: domain.FieldMap, Get: func(e domain.IHistorical) any { return e.(*Dictionary).Attributes }},
	},
	domain.KindMetaField: {
		{Name: "dictionaryId", Kind: domain.FieldString, Get: func(e domain.IHistorical) any { return e.(*MetaField).DictionaryID }},
		{Name: "name", Kind: domain.FieldFolded, Get: func(e domain.IHistorical) any { return e.(*MetaField).Name }},
		{Name: "type", Kind: domain.FieldEnum, Get: func(e domain.IHistorical) any { return e.(*MetaField).Type }},
		{Name: "primary", Kind: domain.FieldBool, Get: func(e domain.IHistorical) any { return e.(*MetaField).Primary }},
		{Name: "unique", Kind: domain.FieldBool, Get: func(e domain.IHistorical) any { return e.(*MetaField).Unique }},
		{Name: "ordinal", Kind: domain.FieldInt, Get: func(e domain.IHistorical) any { return e.(*MetaField).Ordinal }},
	},
	domain.KindField: {
		{Name: "metaFieldId", Kind: domain.FieldString, Get: func(e domain.IHistorical) any { return e.(*Field).MetaFieldID }},
		{Name: "recordId", Kind: domain.FieldString, Get: func(e domain.IHistorical) any { return e.(*Field).RecordID }},
		{Name: "value", Kind: domain.FieldString, Get: func(e domain.IHistorical) any { return e.(*Field).Value }},
	},
	domain.KindRuleSet: {
		{Name: "name", Kind: domain.FieldFolded, Get: func(e domain.IHistorical) any { return e.(*RuleSet).Name }},
		{Name: "from", Kind: domain.FieldSnapshot, Get: func(e domain.IHistorical) any { return e.(*RuleSet).From }},
		{Name: "to", Kind: domain.FieldSnapshot, Get: func(e domain.IHistorical) any { return e.(*RuleSet).To }},
		{Name: "default", Kind: domain.FieldSnapshot, Get: func(e domain.IHistorical) any { return e.(*RuleSet).Default }},
	},
	domain.KindRule: {
		{Name: "ruleSetId", Kind: domain.FieldString, Get: func(e domain.IHistorical) any { return e.(*Rule).RuleSetID }},
		{Name: "from", Kind: domain.FieldSnapshot, Get: func(e domain.IHistorical) any { return e.(*Rule).From }},
		{Name: "to", Kind: domain.FieldSnapshot, Get: func(e domain.IHistorical) any { return e.(*Rule).To }},
	},
	domain.KindSyncTask: {
		{Name: "name", Kind: domain.FieldFolded, Get: func(e domain.IHistorical) any { return e.(*SyncTask).Name }},
		{Name: "schedule", Kind: domain.FieldString, Get: func(e domain.IHistorical) any { return e.(*SyncTask).Schedule }},
		{Name: "enabled", Kind: domain.FieldBool, Get: func(e domain.IHistorical) any { return e.(*SyncTask).Enabled }},
		{Name: "dictionary", Kind: domain.FieldSnapshot, Get: func(e domain.IHistorical) any { return e.(*SyncTask).Dictionary }},
	},
}

// Registry 返回参考数据实体的内容字段注册表（进程内共享，调用方不得修改）
func Registry() domain.ContentRegistry { return registry }
