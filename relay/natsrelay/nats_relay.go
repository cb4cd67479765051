// Package natsrelay 通过 NATS JetStream 发布变更 Envelope
package natsrelay

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"refsync/logging"
	"refsync/relay"
)

// jetStream 实际使用的 JetStream 能力子集（便于测试替换）
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Config JetStream 发布端配置
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	MaxAge        time.Duration
	Replicas      int
	Conn          *nats.Conn
	Logger        logging.Logger
}

// Publisher JetStream 发布端，主题为 SubjectPrefix + Envelope.Subject()
type Publisher struct {
	cfg      Config
	js       jetStream
	conn     *nats.Conn
	ownsConn bool
	logger   logging.Logger
}

func applyDefaults(cfg Config) Config {
	if cfg.Stream == "" {
		cfg.Stream = "REFSYNC"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "refsync."
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Component("relay.nats")
	}
	return cfg
}

// New 连接 NATS 并确保流存在
func New(cfg Config) (*Publisher, error) {
	cfg = applyDefaults(cfg)
	conn := cfg.Conn
	owns := false
	if conn == nil {
		if cfg.URL == "" {
			return nil, errors.New("nats relay: url not configured")
		}
		c, err := nats.Connect(cfg.URL, nats.Name("refsync-relay"))
		if err != nil {
			return nil, err
		}
		conn, owns = c, true
	}
	js, err := conn.JetStream()
	if err != nil {
		if owns {
			conn.Close()
		}
		return nil, err
	}
	p := &Publisher{cfg: cfg, js: js, conn: conn, ownsConn: owns, logger: cfg.Logger}
	if err := p.ensureStream(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func newWithJetStream(js jetStream, cfg Config) *Publisher {
	cfg = applyDefaults(cfg)
	return &Publisher{cfg: cfg, js: js, logger: cfg.Logger}
}

func (p *Publisher) ensureStream() error {
	sc := &nats.StreamConfig{
		Name:      p.cfg.Stream,
		Subjects:  []string{p.cfg.SubjectPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    p.cfg.MaxAge,
	}
	if p.cfg.Replicas > 0 {
		sc.Replicas = p.cfg.Replicas
	}
	_, err := p.js.AddStream(sc)
	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil
	}
	return err
}

// Publish 逐条发布；Envelope.ID 作为 JetStream 去重 ID，重试不会产生重复消息
func (p *Publisher) Publish(ctx context.Context, envelopes ...relay.Envelope) error {
	for _, env := range envelopes {
		data, err := env.Marshal()
		if err != nil {
			return err
		}
		if _, err := p.js.Publish(p.cfg.SubjectPrefix+env.Subject(), data, nats.MsgId(env.ID), nats.Context(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ownsConn && p.conn != nil {
		p.conn.Close()
	}
	return nil
}
