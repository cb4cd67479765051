package engine

import (
	"context"

	_ "modernc.org/sqlite"

	"refsync/config"
	core "refsync/data/db"
	"refsync/data/db/basic"
	"refsync/domain"
	"refsync/history"
	"refsync/index"
	"refsync/index/redisindex"
	"refsync/logging"
	"refsync/patterns/retry"
	"refsync/relay"
	"refsync/relay/natsrelay"
	"refsync/relay/redisrelay"
)

// Open 按配置装配存储、索引、外发端并创建引擎；opts 在配置之后应用
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.NewStdLogger("refsync")
	logger.SetLevel(logging.ParseLevel(cfg.Log.Level))

	identity, err := history.NewDefaultIdentity(cfg.IDGen.DatacenterID, cfg.IDGen.WorkerID)
	if err != nil {
		return nil, err
	}

	storage, err := openStorage(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	idx, err := openIndex(cfg.Index, logger)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	publisher, err := openPublisher(cfg.Relay, logger)
	if err != nil {
		closeIndex(idx)
		_ = storage.Close()
		return nil, err
	}

	mode := domain.ModeDefault
	if cfg.Engine.Isolated() {
		mode = domain.ModeIsolated
	}
	base := []Option{
		WithLogger(logger),
		WithIdentity(identity),
		WithAuthor(cfg.Engine.Author),
		WithMaxDepth(cfg.Engine.MaxDepth),
		WithCascadeMode(mode),
	}
	if idx != nil {
		base = append(base, WithIndex(idx))
	}
	if publisher != nil {
		base = append(base, WithPublisher(publisher, retry.Config{
			MaxAttempts:   cfg.Relay.Retry.MaxAttempts,
			InitialDelay:  cfg.Relay.Retry.InitialDelay,
			BackoffFactor: cfg.Relay.Retry.BackoffFactor,
			MaxDelay:      cfg.Relay.Retry.MaxDelay,
		}))
	}

	e, err := New(storage, append(base, opts...)...)
	if err != nil {
		if publisher != nil {
			_ = publisher.Close()
		}
		closeIndex(idx)
		_ = storage.Close()
		return nil, err
	}
	return e, nil
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig) (*Storage, error) {
	if cfg.Driver == config.DriverMemory {
		return NewMemoryStorage(), nil
	}
	db, err := basic.New(ctx, core.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	storage, err := NewSQLStorage(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return storage, nil
}

func openIndex(cfg config.IndexConfig, logger logging.Logger) (index.IIndex, error) {
	switch cfg.Kind {
	case config.KindMemory:
		return index.NewMemoryIndex(), nil
	case config.KindRedis:
		return redisindex.New(redisindex.Config{
			Addr:      cfg.Redis.Addr,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.Prefix,
			Logger:    logger,
		})
	}
	return nil, nil
}

func closeIndex(idx index.IIndex) {
	if c, ok := idx.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func openPublisher(cfg config.RelayConfig, logger logging.Logger) (relay.IPublisher, error) {
	switch cfg.Kind {
	case config.KindMemory:
		return relay.NewMemoryPublisher(), nil
	case config.KindNATS:
		return natsrelay.New(natsrelay.Config{
			URL:           cfg.NATS.URL,
			Stream:        cfg.NATS.Stream,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			MaxAge:        cfg.NATS.MaxAge,
			Replicas:      cfg.NATS.Replicas,
			Logger:        logger,
		})
	case config.KindRedis:
		return redisrelay.New(redisrelay.Config{
			Addr:         cfg.Redis.Addr,
			Username:     cfg.Redis.Username,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			StreamPrefix: cfg.Redis.Prefix,
			MaxLen:       cfg.Redis.MaxLen,
			Logger:       logger,
		})
	}
	return nil, nil
}
