package domain

// FieldKind 内容字段的格式化规则
type FieldKind int

const (
	// FieldString 原样输出
	FieldString FieldKind = iota
	// FieldFolded 名称类字段，比较时做 Unicode 大小写折叠
	FieldFolded
	// FieldEnum 按符号名输出（fmt.Stringer）
	FieldEnum
	FieldInt
	FieldBool
	FieldTime
	// FieldList 有序集合，保持元素顺序
	FieldList
	// FieldSet 无序字符串集合，先排序再输出
	FieldSet
	// FieldMap 映射，按键排序输出
	FieldMap
	// FieldSnapshot 嵌入的反规范化快照结构
	FieldSnapshot
)

var fieldKindNames = [...]string{"STRING", "FOLDED", "ENUM", "INT", "BOOL", "TIME", "LIST", "SET", "MAP", "SNAPSHOT"}

func (k FieldKind) String() string {
	if int(k) < len(fieldKindNames) {
		return fieldKindNames[k]
	}
	return "UNKNOWN"
}

// ContentField 参与指纹与差异计算的字段声明
type ContentField struct {
	Name string
	Kind FieldKind
	Get  func(e IHistorical) any
}

// ContentRegistry 实体类型 → 有序内容字段列表
type ContentRegistry map[EntityKind][]ContentField
