// Package domain 定义引擎内所有可追踪历史的实体的公共契约。
//
// 具体的参考数据类型（分组、字典、规则等）位于 domain/refbook。
package domain

import "time"

// Permission 实体权限位掩码
type Permission uint32

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermClose
	PermAdmin

	PermNone Permission = 0
	PermAll             = PermRead | PermWrite | PermClose | PermAdmin
)

// Has 是否包含全部指定权限
func (p Permission) Has(flags Permission) bool { return p&flags == flags }

// IValidatable 可验证接口。
type IValidatable interface {
	Validate() error
}

// IHistorical 生命周期由 HistoryEvent 链追踪的实体。
//
// ChangeType/ChangeDate 由最近一次事件推导，实体本身不保存。
type IHistorical interface {
	IValidatable

	Kind() EntityKind

	GetID() string
	SetID(id string)

	GetPermissions() Permission
	SetPermissions(p Permission)

	// GetHistoryID 最近一次 HistoryEvent 的 ID，未追踪时为 0
	GetHistoryID() int64
	// LatestEvent 已解析的最近一次事件，未解析时为 nil
	LatestEvent() *HistoryEvent
	// SetHistory 设置最近事件引用；latest 可为 nil（仅知道 ID 时）
	SetHistory(historyID int64, latest *HistoryEvent)

	IsClosed() bool
}

// Entity 带值快照能力的历史实体，T 为实体自身的指针类型
type Entity[T any] interface {
	IHistorical

	// Clone 返回结构化副本，切片与映射不与原实体共享
	Clone() T
}

// Historical 历史实体的公共字段（用于嵌入）
type Historical struct {
	ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
	HistoryID   int64      `json:"historyId,omitempty" yaml:"-"`
	Permissions Permission `json:"permissions,omitempty" yaml:"permissions,omitempty"`

	latest *HistoryEvent
}

func (h *Historical) GetID() string   { return h.ID }
func (h *Historical) SetID(id string) { h.ID = id }

func (h *Historical) GetPermissions() Permission  { return h.Permissions }
func (h *Historical) SetPermissions(p Permission) { h.Permissions = p }

func (h *Historical) GetHistoryID() int64         { return h.HistoryID }
func (h *Historical) LatestEvent() *HistoryEvent { return h.latest }

func (h *Historical) SetHistory(historyID int64, latest *HistoryEvent) {
	h.HistoryID = historyID
	h.latest = latest
}

// AttachHistory 将新事件设为最近事件
func (h *Historical) AttachHistory(ev *HistoryEvent) {
	if ev == nil {
		return
	}
	h.SetHistory(ev.ID, ev)
}

// IsClosed 最近事件为 CLOSE 时实体处于关闭状态
func (h *Historical) IsClosed() bool {
	return h.latest != nil && h.latest.EventType == EventClose
}

// ChangeType 最近事件的类型，未追踪时为空
func (h *Historical) ChangeType() EventType {
	if h.latest == nil {
		return ""
	}
	return h.latest.EventType
}

// ChangeDate 最近事件的时间
func (h *Historical) ChangeDate() time.Time {
	if h.latest == nil {
		return time.Time{}
	}
	return h.latest.EventDate
}

// CarryIdentity 将 src 的标识、历史引用与权限复制到 dst
func CarryIdentity(dst, src IHistorical) {
	dst.SetID(src.GetID())
	dst.SetHistory(src.GetHistoryID(), src.LatestEvent())
	dst.SetPermissions(src.GetPermissions())
}

// IDs 提取实体 ID 列表（保持顺序）
func IDs[T IHistorical](entities []T) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.GetID())
	}
	return out
}

// IDSet 提取实体 ID 集合
func IDSet[T IHistorical](entities []T) map[string]struct{} {
	out := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		out[e.GetID()] = struct{}{}
	}
	return out
}
