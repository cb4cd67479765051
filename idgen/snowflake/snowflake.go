// Package snowflake 生成按时间递增的 int64 ID，用于 HistoryEvent 编号
package snowflake

import (
	"fmt"
	"sync"
	"time"

	"refsync/errors"
)

const (
	// 起始时间戳 (2024-01-01 00:00:00 UTC)
	epoch int64 = 1704067200000

	workerIDBits     = 5
	datacenterIDBits = 5
	sequenceBits     = 12

	maxWorkerID     = -1 ^ (-1 << workerIDBits)
	maxDatacenterID = -1 ^ (-1 << datacenterIDBits)
	maxSequence     = -1 ^ (-1 << sequenceBits)

	workerIDShift      = sequenceBits
	datacenterIDShift  = sequenceBits + workerIDBits
	timestampLeftShift = sequenceBits + workerIDBits + datacenterIDBits
)

// Clock 返回当前毫秒时间戳
type Clock func() int64

func wallClock() int64 { return time.Now().UnixMilli() }

// Node 单个节点的 ID 生成器，并发安全
type Node struct {
	mu            sync.Mutex
	clock         Clock
	datacenterID  int64
	workerID      int64
	sequence      int64
	lastTimestamp int64
}

// NewNode 创建节点；datacenterID 与 workerID 取值范围均为 [0, 31]
func NewNode(datacenterID, workerID int64) (*Node, error) {
	return NewNodeWithClock(datacenterID, workerID, wallClock)
}

// NewNodeWithClock 使用自定义时钟创建节点（测试用）
func NewNodeWithClock(datacenterID, workerID int64, clock Clock) (*Node, error) {
	if datacenterID < 0 || datacenterID > maxDatacenterID {
		return nil, errors.NewError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("datacenter id %d out of range [0, %d]", datacenterID, maxDatacenterID))
	}
	if workerID < 0 || workerID > maxWorkerID {
		return nil, errors.NewError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("worker id %d out of range [0, %d]", workerID, maxWorkerID))
	}
	if clock == nil {
		clock = wallClock
	}
	return &Node{
		clock:         clock,
		datacenterID:  datacenterID,
		workerID:      workerID,
		lastTimestamp: -1,
	}, nil
}

// NextID 生成下一个 ID；时钟回拨时返回错误
func (n *Node) NextID() (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock()
	if now < n.lastTimestamp {
		return 0, errors.NewError(errors.ErrCodeInternal,
			fmt.Sprintf("clock moved backwards by %dms", n.lastTimestamp-now))
	}

	if now == n.lastTimestamp {
		n.sequence = (n.sequence + 1) & maxSequence
		if n.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= n.lastTimestamp {
				now = n.clock()
			}
		}
	} else {
		n.sequence = 0
	}
	n.lastTimestamp = now

	return ((now - epoch) << timestampLeftShift) |
		(n.datacenterID << datacenterIDShift) |
		(n.workerID << workerIDShift) |
		n.sequence, nil
}

// Parts ID 的组成部分
type Parts struct {
	Timestamp    time.Time
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

// Parse 拆解 ID
func Parse(id int64) Parts {
	return Parts{
		Timestamp:    time.UnixMilli((id >> timestampLeftShift) + epoch).UTC(),
		DatacenterID: (id >> datacenterIDShift) & maxDatacenterID,
		WorkerID:     (id >> workerIDShift) & maxWorkerID,
		Sequence:     id & maxSequence,
	}
}
