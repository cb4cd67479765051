package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventType HistoryEvent 类型
type EventType string

const (
	EventCreate  EventType = "CREATE"
	EventUpdate  EventType = "UPDATE"
	EventClose   EventType = "CLOSE"
	EventRestore EventType = "RESTORE"
)

// Diff 单个内容字段的变化，取值均为格式化后的字符串
type Diff struct {
	FieldType string `json:"fieldType"`
	FieldName string `json:"fieldName"`
	From      string `json:"from"`
	To        string `json:"to"`
}

func (d Diff) String() string {
	return fmt.Sprintf("%s: %q -> %q", d.FieldName, d.From, d.To)
}

// HistoryEvent 一次生命周期转换的不可变审计记录
type HistoryEvent struct {
	ID         int64      `json:"id"`
	TargetID   string     `json:"targetId"`
	TargetKind EntityKind `json:"targetKind"`
	EventType  EventType  `json:"eventType"`
	EventDate  time.Time  `json:"eventDate"`
	Author     string     `json:"author"`
	// PreviousID 被本事件取代的上一条事件，首个事件为 0
	PreviousID int64  `json:"previousId,omitempty"`
	Diffs      []Diff `json:"diffs,omitempty"`
}

// DiffFor 按字段名查找变化
func (e *HistoryEvent) DiffFor(fieldName string) (Diff, bool) {
	for _, d := range e.Diffs {
		if d.FieldName == fieldName {
			return d, true
		}
	}
	return Diff{}, false
}

func (e *HistoryEvent) String() string {
	names := make([]string, 0, len(e.Diffs))
	for _, d := range e.Diffs {
		names = append(names, d.FieldName)
	}
	return fmt.Sprintf("%s %s[%s] #%d by %s (%s)", e.EventType, e.TargetKind, e.TargetID, e.ID, e.Author, strings.Join(names, ","))
}
