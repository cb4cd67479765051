// Package relay 将已提交的生命周期转换转发给外部消息系统
package relay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"refsync/dispatch"
	"refsync/domain"
	"refsync/errors"
	"refsync/history"
	"refsync/logging"
	"refsync/patterns/retry"
)

// Envelope 一次实体转换的外发消息
type Envelope struct {
	ID            string            `json:"id"`
	Kind          domain.EntityKind `json:"kind"`
	Change        domain.ChangeType `json:"change"`
	EntityID      string            `json:"entityId"`
	EventID       int64             `json:"eventId"`
	PreviousID    int64             `json:"previousId,omitempty"`
	Author        string            `json:"author"`
	Date          time.Time         `json:"date"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Diffs         []domain.Diff     `json:"diffs,omitempty"`
	Entity        json.RawMessage   `json:"entity,omitempty"`
}

// Subject 形如 "dictionary.update" 的主题名
func (e Envelope) Subject() string {
	return strings.ToLower(e.Kind.String() + "." + e.Change.String())
}

// Marshal 序列化为 JSON
func (e Envelope) Marshal() ([]byte, error) { return json.Marshal(e) }

// Unmarshal 从 JSON 还原
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

// IPublisher 外部消息系统的发布端
type IPublisher interface {
	Publish(ctx context.Context, envelopes ...Envelope) error
	Close() error
}

// Observer 自身类型的转发观察者，按实体逐条生成 Envelope 并带重试发布
type Observer struct {
	kind      domain.EntityKind
	publisher IPublisher
	retry     retry.Config
	logger    logging.Logger
}

// NewObserver 创建转发观察者
func NewObserver(kind domain.EntityKind, publisher IPublisher, retryCfg retry.Config, logger logging.Logger) *Observer {
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = retry.DefaultConfig()
	}
	if logger == nil {
		logger = logging.Component("relay")
	}
	return &Observer{kind: kind, publisher: publisher, retry: retryCfg, logger: logger}
}

func (o *Observer) Kind() domain.EntityKind { return o.kind }

func (o *Observer) Name() string { return "relay:" + o.kind.String() }

func (o *Observer) HandleSelf(ctx context.Context, set *history.ChangeSet) error {
	if !set.Type.Actionable() {
		return nil
	}
	envelopes := make([]Envelope, 0, set.Len())
	for _, e := range set.Entities {
		env, err := NewEnvelope(ctx, set.Type, e)
		if err != nil {
			return err
		}
		envelopes = append(envelopes, env)
	}

	err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			o.logger.Warn(ctx, "重试发布变更", logging.Int("attempt", attempt), logging.String("kind", set.Kind.String()))
		}
		return o.publisher.Publish(ctx, envelopes...)
	}, o.retry)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "发布变更失败")
	}
	o.logger.Debug(ctx, "变更已发布", logging.String("kind", set.Kind.String()),
		logging.String("change", set.Type.String()), logging.Int("count", len(envelopes)))
	return nil
}

func (o *Observer) HandleOther(ctx context.Context, set *history.ChangeSet) error { return nil }

// NewEnvelope 由实体及其最近事件生成 Envelope
func NewEnvelope(ctx context.Context, change domain.ChangeType, e domain.IHistorical) (Envelope, error) {
	entity, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, errors.WrapError(err, errors.ErrCodeInternal, "序列化实体失败")
	}
	env := Envelope{
		ID:            uuid.NewString(),
		Kind:          e.Kind(),
		Change:        change,
		EntityID:      e.GetID(),
		CorrelationID: dispatch.CorrelationID(ctx),
		Entity:        entity,
	}
	if ev := e.LatestEvent(); ev != nil {
		env.EventID = ev.ID
		env.PreviousID = ev.PreviousID
		env.Author = ev.Author
		env.Date = ev.EventDate
		env.Diffs = ev.Diffs
	}
	return env, nil
}

// MemoryPublisher 记录发布内容的进程内实现，用于测试与示例
type MemoryPublisher struct {
	mu        sync.Mutex
	envelopes []Envelope

	// Fail 非 nil 时在每次发布前调用，返回的错误作为发布失败
	Fail func(attempt int) error
	calls int
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(ctx context.Context, envelopes ...Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.Fail != nil {
		if err := p.Fail(p.calls); err != nil {
			return err
		}
	}
	p.envelopes = append(p.envelopes, envelopes...)
	return nil
}

// Envelopes 已发布内容的副本
func (p *MemoryPublisher) Envelopes() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Envelope(nil), p.envelopes...)
}

func (p *MemoryPublisher) Close() error { return nil }
