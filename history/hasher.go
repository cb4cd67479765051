// Package history 实现变更检测、分类与批量对账
package history

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/davecgh/go-spew/spew"
	"golang.org/x/text/cases"

	"refsync/domain"
	"refsync/domain/refbook"
)

// CanonicalValue 单个内容字段的规范化结果。
// Key 用于指纹与相等比较，Display 用于差异展示。
type CanonicalValue struct {
	Name    string
	Kind    domain.FieldKind
	Key     string
	Display string
}

// Hasher 基于静态内容字段表计算指纹与差异。
// 指纹与差异都来自同一次 Canonical 调用，字段集合天然一致。
type Hasher struct {
	registry domain.ContentRegistry
	printer  *spew.ConfigState
}

// NewHasher 创建 Hasher；registry 在创建后不应再修改
func NewHasher(registry domain.ContentRegistry) *Hasher {
	return &Hasher{
		registry: registry,
		printer: &spew.ConfigState{
			Indent:                  " ",
			SortKeys:                true,
			SpewKeys:                true,
			DisablePointerAddresses: true,
			DisableCapacities:       true,
			DisableMethods:          true,
		},
	}
}

var defaultHasher = NewHasher(refbook.Registry())

// DefaultHasher 使用参考数据注册表的共享 Hasher
func DefaultHasher() *Hasher { return defaultHasher }

// Supports 是否声明了该类型的内容字段
func (h *Hasher) Supports(kind domain.EntityKind) bool {
	return len(h.registry[kind]) > 0
}

// Canonical 按声明顺序返回实体全部内容字段的规范化值
func (h *Hasher) Canonical(e domain.IHistorical) []CanonicalValue {
	fields := h.registry[e.Kind()]
	out := make([]CanonicalValue, 0, len(fields))
	// Caser 有状态，不能跨 goroutine 共享
	folder := cases.Fold()
	for _, f := range fields {
		display := h.format(f.Kind, f.Get(e))
		key := display
		if f.Kind == domain.FieldFolded {
			key = folder.String(display)
		}
		out = append(out, CanonicalValue{Name: f.Name, Kind: f.Kind, Key: key, Display: display})
	}
	return out
}

// Fingerprint 内容指纹（xxhash64，十六进制）
func (h *Hasher) Fingerprint(e domain.IHistorical) string {
	return fingerprintOf(h.Canonical(e))
}

func fingerprintOf(values []CanonicalValue) string {
	d := xxhash.New()
	for _, v := range values {
		_, _ = d.WriteString(v.Name)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(v.Key)
		_, _ = d.Write([]byte{0x1e})
	}
	return hex.EncodeToString(d.Sum(nil))
}

// Diff 返回规范化值不同的字段；old 或 new 为 nil 时视对应侧为空值
func (h *Hasher) Diff(old, new domain.IHistorical) []domain.Diff {
	var before, after []CanonicalValue
	switch {
	case old != nil && new != nil:
		before, after = h.Canonical(old), h.Canonical(new)
	case old != nil:
		before = h.Canonical(old)
		after = blank(before)
	case new != nil:
		after = h.Canonical(new)
		before = blank(after)
	default:
		return nil
	}

	var diffs []domain.Diff
	for i := range after {
		if before[i].Key == after[i].Key {
			continue
		}
		diffs = append(diffs, domain.Diff{
			FieldType: after[i].Kind.String(),
			FieldName: after[i].Name,
			From:      before[i].Display,
			To:        after[i].Display,
		})
	}
	return diffs
}

// Snapshot 返回全部内容字段的快照差异，From 取 from 的值，To 取 to 的值。
// CLOSE 时 from 与 to 为同一实体，RESTORE 时分别为关闭前与重新打开的实体。
func (h *Hasher) Snapshot(from, to domain.IHistorical) []domain.Diff {
	before, after := h.Canonical(from), h.Canonical(to)
	diffs := make([]domain.Diff, 0, len(after))
	for i := range after {
		diffs = append(diffs, domain.Diff{
			FieldType: after[i].Kind.String(),
			FieldName: after[i].Name,
			From:      before[i].Display,
			To:        after[i].Display,
		})
	}
	return diffs
}

func blank(values []CanonicalValue) []CanonicalValue {
	out := make([]CanonicalValue, len(values))
	for i, v := range values {
		out[i] = CanonicalValue{Name: v.Name, Kind: v.Kind}
	}
	return out
}

func (h *Hasher) format(kind domain.FieldKind, value any) string {
	if isEmpty(value) {
		return ""
	}
	switch kind {
	case domain.FieldString, domain.FieldFolded:
		return fmt.Sprint(value)
	case domain.FieldEnum:
		if s, ok := value.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprint(value)
	case domain.FieldInt:
		return fmt.Sprintf("%d", value)
	case domain.FieldBool:
		if b, ok := value.(bool); ok {
			return strconv.FormatBool(b)
		}
		return fmt.Sprint(value)
	case domain.FieldTime:
		if t, ok := value.(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano)
		}
		return fmt.Sprint(value)
	case domain.FieldSet:
		if items, ok := value.([]string); ok {
			sorted := slices.Clone(items)
			slices.Sort(sorted)
			return h.printer.Sprintf("%v", sorted)
		}
		return h.printer.Sprintf("%v", value)
	default:
		// 列表、映射与快照结构
		return h.printer.Sprintf("%+v", value)
	}
}

// isEmpty 零值、nil 指针以及空集合统一格式化为空串
func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	case reflect.Bool, reflect.Int, reflect.Int64:
		// false 与 0 是有意义的值
		return false
	}
	return v.IsZero()
}
