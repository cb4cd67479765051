// Package cache 提供带容量与过期控制的泛型查找缓存
//
// 引擎在依赖实际化过程中频繁按 ID 解析上级实体（例如 Field → MetaField → Dictionary），
// 同一批次内的重复查找通过 Cache 去重。底层使用 hashicorp/golang-lru 的 expirable LRU。
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Config 缓存配置
type Config struct {
	// Name 缓存名称（用于日志和统计）
	Name string

	// MaxSize 最大缓存条目数，0 表示无限制
	MaxSize int

	// TTL 过期时间，0 表示永不过期
	TTL time.Duration

	// OnEvict 驱逐回调（可选）
	OnEvict func(key, value any)
}

// Stats 缓存统计信息
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// Loader 缓存未命中时的加载函数
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Cache 通用泛型缓存，并发安全
type Cache[K comparable, V any] struct {
	name    string
	maxSize int
	lru     *expirable.LRU[K, V]
	hits    atomic.Int64
	misses  atomic.Int64
}

// New 创建新的缓存实例
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	var onEvict expirable.EvictCallback[K, V]
	if config.OnEvict != nil {
		onEvict = func(key K, value V) { config.OnEvict(key, value) }
	}
	return &Cache[K, V]{
		name:    config.Name,
		maxSize: config.MaxSize,
		lru:     expirable.NewLRU[K, V](config.MaxSize, onEvict, config.TTL),
	}
}

// Get 获取缓存值
func (c *Cache[K, V]) Get(key K) (V, bool) {
	value, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return value, ok
}

// Set 设置缓存值
func (c *Cache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// Delete 删除缓存条目，返回是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	return c.lru.Remove(key)
}

// Clear 清空所有缓存
func (c *Cache[K, V]) Clear() {
	c.lru.Purge()
}

// GetOrLoad 命中时直接返回，否则调用 load 并缓存成功的结果；加载错误不缓存
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, load Loader[K, V]) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	value, err := load(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, value)
	return value, nil
}

// Size 当前缓存条目数
func (c *Cache[K, V]) Size() int {
	return c.lru.Len()
}

// Stats 获取缓存统计信息
func (c *Cache[K, V]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.lru.Len()}
}

func (c *Cache[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("Cache[%s]: size=%d/%d, hits=%d, misses=%d", c.name, s.Size, c.maxSize, s.Hits, s.Misses)
}
