// Package redisrelay 通过 Redis Streams（XADD）发布变更 Envelope
package redisrelay

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"refsync/logging"
	"refsync/relay"
)

type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Config Redis Streams 发布端配置
type Config struct {
	Client       redis.UniversalClient
	Addr         string
	Username     string
	Password     string
	DB           int
	StreamPrefix string
	// MaxLen 大于 0 时按近似长度裁剪流
	MaxLen int64
	Logger logging.Logger
}

// Publisher 每个主题一条流：StreamPrefix + Envelope.Subject()
type Publisher struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger
}

// New 创建发布端；未提供 Client 时按 Addr 自建连接
func New(cfg Config) (*Publisher, error) {
	var cl client
	own := false
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		if cfg.Addr == "" {
			return nil, errors.New("redis relay: addr not configured")
		}
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		own = true
	}
	return newWithClient(cl, own, cfg), nil
}

func newWithClient(cl client, own bool, cfg Config) *Publisher {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "refsync:"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Component("relay.redis")
	}
	return &Publisher{cfg: cfg, client: cl, ownClient: own, logger: cfg.Logger}
}

func (p *Publisher) Publish(ctx context.Context, envelopes ...relay.Envelope) error {
	for _, env := range envelopes {
		data, err := env.Marshal()
		if err != nil {
			return err
		}
		args := &redis.XAddArgs{
			Stream: p.cfg.StreamPrefix + env.Subject(),
			Values: map[string]any{
				"id":        env.ID,
				"kind":      env.Kind.String(),
				"change":    env.Change.String(),
				"entity_id": env.EntityID,
				"payload":   string(data),
			},
		}
		if p.cfg.MaxLen > 0 {
			args.MaxLen = p.cfg.MaxLen
			args.Approx = true
		}
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ownClient {
		return p.client.Close()
	}
	return nil
}
