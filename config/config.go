// Package config 加载 refsync 的运行配置：YAML 文件 + REFSYNC_ 前缀的环境变量覆盖
package config

import (
	stdErrors "errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"refsync/errors"
	"refsync/validation"
)

// 存储、发布端与索引的可选实现
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"

	KindNone   = "none"
	KindMemory = "memory"
	KindNATS   = "nats"
	KindRedis  = "redis"
)

// Config 顶层配置
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	IDGen    IDGenConfig    `mapstructure:"idgen"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Index    IndexConfig    `mapstructure:"index"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DatabaseConfig 实体与历史存储；driver 为 memory 时不使用数据库
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// IDGenConfig HistoryEvent ID 的 snowflake 节点
type IDGenConfig struct {
	DatacenterID int64 `mapstructure:"datacenter_id"`
	WorkerID     int64 `mapstructure:"worker_id"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	MaxLen   int64  `mapstructure:"max_len"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Stream        string        `mapstructure:"stream"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	Replicas      int           `mapstructure:"replicas"`
}

type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
}

// RelayConfig 变更 Envelope 的外发目标
type RelayConfig struct {
	Kind  string      `mapstructure:"kind"`
	NATS  NATSConfig  `mapstructure:"nats"`
	Redis RedisConfig `mapstructure:"redis"`
	Retry RetryConfig `mapstructure:"retry"`
}

type IndexConfig struct {
	Kind  string      `mapstructure:"kind"`
	Redis RedisConfig `mapstructure:"redis"`
}

// EngineConfig 对账与级联
type EngineConfig struct {
	// Author 调用方未指定作者时写入 HistoryEvent 的作者
	Author string `mapstructure:"author"`
	// MaxDepth 级联分发的最大深度
	MaxDepth int `mapstructure:"max_depth"`
	// CascadeMode DEFAULT 或 ISOLATED
	CascadeMode string `mapstructure:"cascade_mode"`
}

// Default 默认配置：内存存储，不外发，不建索引
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info"},
		Database: DatabaseConfig{Driver: DriverMemory, MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: 30 * time.Minute},
		IDGen:    IDGenConfig{DatacenterID: 1, WorkerID: 1},
		Relay: RelayConfig{
			Kind:  KindNone,
			NATS:  NATSConfig{Stream: "REFSYNC", SubjectPrefix: "refsync.", MaxAge: 72 * time.Hour, Replicas: 1},
			Redis: RedisConfig{Prefix: "refsync:"},
			Retry: RetryConfig{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second},
		},
		Index:  IndexConfig{Kind: KindNone, Redis: RedisConfig{Prefix: "refsync:"}},
		Engine: EngineConfig{Author: "system", MaxDepth: 16, CascadeMode: "DEFAULT"},
	}
}

// Load 读取配置。path 为空时只使用默认值与环境变量；
// 环境变量形如 REFSYNC_DATABASE_DSN、REFSYNC_RELAY_NATS_URL。
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix("REFSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stdErrors.As(err, &notFound) {
				return Config{}, errors.WrapError(err, errors.ErrCodeInvalidInput, "读取配置文件失败: "+path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.WrapError(err, errors.ErrCodeInvalidInput, "解析配置失败")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults 注册全部键，AutomaticEnv 只对已知键生效
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)

	v.SetDefault("idgen.datacenter_id", d.IDGen.DatacenterID)
	v.SetDefault("idgen.worker_id", d.IDGen.WorkerID)

	v.SetDefault("relay.kind", d.Relay.Kind)
	v.SetDefault("relay.nats.url", d.Relay.NATS.URL)
	v.SetDefault("relay.nats.stream", d.Relay.NATS.Stream)
	v.SetDefault("relay.nats.subject_prefix", d.Relay.NATS.SubjectPrefix)
	v.SetDefault("relay.nats.max_age", d.Relay.NATS.MaxAge)
	v.SetDefault("relay.nats.replicas", d.Relay.NATS.Replicas)
	redisDefaults(v, "relay.redis", d.Relay.Redis)
	v.SetDefault("relay.retry.max_attempts", d.Relay.Retry.MaxAttempts)
	v.SetDefault("relay.retry.initial_delay", d.Relay.Retry.InitialDelay)
	v.SetDefault("relay.retry.backoff_factor", d.Relay.Retry.BackoffFactor)
	v.SetDefault("relay.retry.max_delay", d.Relay.Retry.MaxDelay)

	v.SetDefault("index.kind", d.Index.Kind)
	redisDefaults(v, "index.redis", d.Index.Redis)

	v.SetDefault("engine.author", d.Engine.Author)
	v.SetDefault("engine.max_depth", d.Engine.MaxDepth)
	v.SetDefault("engine.cascade_mode", d.Engine.CascadeMode)
}

func redisDefaults(v *viper.Viper, prefix string, r RedisConfig) {
	v.SetDefault(prefix+".addr", r.Addr)
	v.SetDefault(prefix+".username", r.Username)
	v.SetDefault(prefix+".password", r.Password)
	v.SetDefault(prefix+".db", r.DB)
	v.SetDefault(prefix+".prefix", r.Prefix)
	v.SetDefault(prefix+".max_len", r.MaxLen)
}

// Validate 检查枚举项与必需的连接参数
func (c Config) Validate() error {
	if err := validation.First(
		validation.ValidateEnum(c.Database.Driver, "database.driver", []string{DriverMemory, DriverSQLite}),
		validation.ValidateEnum(c.Relay.Kind, "relay.kind", []string{KindNone, KindMemory, KindNATS, KindRedis}),
		validation.ValidateEnum(c.Index.Kind, "index.kind", []string{KindNone, KindMemory, KindRedis}),
		validation.ValidateEnum(strings.ToUpper(c.Engine.CascadeMode), "engine.cascade_mode", []string{"DEFAULT", "ISOLATED"}),
	); err != nil {
		return err
	}
	switch {
	case c.Database.Driver == DriverSQLite && c.Database.DSN == "":
		return errors.NewValidationError("database.dsn 未配置")
	case c.Relay.Kind == KindNATS && c.Relay.NATS.URL == "":
		return errors.NewValidationError("relay.nats.url 未配置")
	case c.Relay.Kind == KindRedis && c.Relay.Redis.Addr == "":
		return errors.NewValidationError("relay.redis.addr 未配置")
	case c.Index.Kind == KindRedis && c.Index.Redis.Addr == "":
		return errors.NewValidationError("index.redis.addr 未配置")
	case c.Engine.MaxDepth < 1:
		return errors.NewValidationError("engine.max_depth 必须大于 0")
	}
	return nil
}

// Isolated 级联是否使用 ISOLATED 模式
func (c EngineConfig) Isolated() bool {
	return strings.EqualFold(c.CascadeMode, "ISOLATED")
}
