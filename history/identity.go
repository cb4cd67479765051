package history

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"refsync/idgen/snowflake"
)

// IIdentity 为新实体与新事件分配标识
type IIdentity interface {
	NewEntityID() string
	NewEventID() (int64, error)
}

// DefaultIdentity 实体使用 UUID，事件使用雪花 ID（按时间递增）
type DefaultIdentity struct {
	node *snowflake.Node
}

// NewDefaultIdentity 创建默认标识分配器
func NewDefaultIdentity(datacenterID, workerID int64) (*DefaultIdentity, error) {
	node, err := snowflake.NewNode(datacenterID, workerID)
	if err != nil {
		return nil, err
	}
	return &DefaultIdentity{node: node}, nil
}

func (d *DefaultIdentity) NewEntityID() string { return uuid.NewString() }

func (d *DefaultIdentity) NewEventID() (int64, error) { return d.node.NextID() }

// SequentialIdentity 确定性的标识分配器，用于测试与示例
type SequentialIdentity struct {
	Prefix string

	entities atomic.Int64
	events   atomic.Int64
}

func (s *SequentialIdentity) NewEntityID() string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "id"
	}
	return fmt.Sprintf("%s-%d", prefix, s.entities.Add(1))
}

func (s *SequentialIdentity) NewEventID() (int64, error) { return s.events.Add(1), nil }
