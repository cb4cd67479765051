package engine

import (
	"time"

	"refsync/domain"
	"refsync/history"
	"refsync/index"
	"refsync/logging"
	"refsync/patterns/retry"
	"refsync/relay"
)

// Options 引擎装配选项
type Options struct {
	// Author 调用方未指定作者时使用
	Author string
	// Clock 提供 HistoryEvent 的时间戳
	Clock func() time.Time
	// Identity 实体与事件 ID 分配，nil 时使用 uuid + snowflake
	Identity history.IIdentity
	Logger   logging.Logger

	// MaxDepth 级联分发的最大深度
	MaxDepth int
	// CascadeMode 级联批次的分发模式
	CascadeMode domain.ChangeMode

	// Index 可选的检索索引
	Index index.IIndex
	// Publisher 可选的变更外发端
	Publisher relay.IPublisher
	Retry     retry.Config
}

// Option 选项修改函数
type Option func(*Options)

// DefaultOptions 默认选项
func DefaultOptions() *Options {
	return &Options{
		Author:   "system",
		Clock:    func() time.Time { return time.Now().UTC() },
		MaxDepth: 16,
		Retry:    retry.DefaultConfig(),
	}
}

func WithAuthor(author string) Option {
	return func(o *Options) { o.Author = author }
}

// WithClock 固定时间源，用于确定性的测试
func WithClock(clock func() time.Time) Option {
	return func(o *Options) { o.Clock = clock }
}

func WithIdentity(identity history.IIdentity) Option {
	return func(o *Options) { o.Identity = identity }
}

func WithLogger(logger logging.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func WithMaxDepth(depth int) Option {
	return func(o *Options) { o.MaxDepth = depth }
}

func WithCascadeMode(mode domain.ChangeMode) Option {
	return func(o *Options) { o.CascadeMode = mode }
}

// WithIndex 注册索引观察者
func WithIndex(idx index.IIndex) Option {
	return func(o *Options) { o.Index = idx }
}

// WithPublisher 注册外发观察者；Envelope 在工作单元提交前发布
func WithPublisher(p relay.IPublisher, cfg retry.Config) Option {
	return func(o *Options) {
		o.Publisher = p
		o.Retry = cfg
	}
}
