// Package redisindex 将索引文档保存为 Redis Hash，并以 Set 维护每个类型的成员
package redisindex

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"refsync/domain"
	appErrors "refsync/errors"
	"refsync/index"
	"refsync/logging"
)

// client go-redis 中实际使用的命令子集（便于测试替换）
type client interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	Close() error
}

// Config Redis 索引配置
type Config struct {
	Client    redis.UniversalClient
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	Logger    logging.Logger
}

var _ index.IRestorer = (*Index)(nil)

// Index 基于 Redis 的检索索引
type Index struct {
	client    client
	ownClient bool
	prefix    string
	logger    logging.Logger
}

// New 创建 Redis 索引；未提供 Client 时按 Addr 自建连接
func New(cfg Config) (*Index, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "refsync:"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Component("index.redis")
	}
	var cl client
	own := false
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		if cfg.Addr == "" {
			return nil, errors.New("redis index: addr not configured")
		}
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		own = true
	}
	return newWithClient(cl, own, cfg.KeyPrefix, cfg.Logger), nil
}

func newWithClient(cl client, own bool, prefix string, logger logging.Logger) *Index {
	return &Index{client: cl, ownClient: own, prefix: prefix, logger: logger}
}

func (i *Index) docKey(kind domain.EntityKind, id string) string {
	return i.prefix + strings.ToLower(kind.String()) + ":" + id
}

func (i *Index) setKey(kind domain.EntityKind) string {
	return i.prefix + strings.ToLower(kind.String())
}

func (i *Index) write(ctx context.Context, docs []index.Document, replace bool) error {
	for _, d := range docs {
		key := i.docKey(d.Kind, d.ID)
		if replace {
			if err := i.client.Del(ctx, key).Err(); err != nil {
				return wrap(err, "删除旧文档")
			}
		}
		values := make([]any, 0, 2*len(d.Fields)+4)
		values = append(values, "_kind", d.Kind.String(), "_id", d.ID)
		for k, v := range d.Fields {
			values = append(values, k, v)
		}
		if err := i.client.HSet(ctx, key, values...).Err(); err != nil {
			return wrap(err, "写入文档")
		}
		if err := i.client.SAdd(ctx, i.setKey(d.Kind), d.ID).Err(); err != nil {
			return wrap(err, "登记文档")
		}
	}
	i.logger.Debug(ctx, "索引文档已写入", logging.Int("count", len(docs)), logging.Bool("replace", replace))
	return nil
}

func (i *Index) Insert(ctx context.Context, docs ...index.Document) error { return i.write(ctx, docs, false) }

func (i *Index) Update(ctx context.Context, docs ...index.Document) error { return i.write(ctx, docs, true) }

// Restore 与 Insert 相同：已删除的文档重新写入
func (i *Index) Restore(ctx context.Context, docs ...index.Document) error {
	return i.write(ctx, docs, false)
}

func (i *Index) Delete(ctx context.Context, kind domain.EntityKind, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, i.docKey(kind, id))
		members = append(members, id)
	}
	if err := i.client.Del(ctx, keys...).Err(); err != nil {
		return wrap(err, "删除文档")
	}
	if err := i.client.SRem(ctx, i.setKey(kind), members...).Err(); err != nil {
		return wrap(err, "注销文档")
	}
	return nil
}

// Close 关闭自建的连接
func (i *Index) Close() error {
	if i.ownClient {
		return i.client.Close()
	}
	return nil
}

func wrap(err error, op string) error {
	return appErrors.WrapError(err, appErrors.ErrCodeCache, "redis 索引"+op+"失败")
}
