package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TranslationCache 缓存机器翻译结果，命中时返回 ok=true。
type TranslationCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

func translationCacheKey(source, target, text string) string {
	sum := sha256.Sum256([]byte(source + "|" + target + "|" + text))
	return hex.EncodeToString(sum[:])
}

type memoryTranslationEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryTranslationCache 是进程内的翻译缓存，未配置 Redis 时使用。
type MemoryTranslationCache struct {
	mu      sync.RWMutex
	entries map[string]memoryTranslationEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryTranslationCache(ttl time.Duration) *MemoryTranslationCache {
	return &MemoryTranslationCache{
		entries: make(map[string]memoryTranslationEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryTranslationCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryTranslationCache) Set(_ context.Context, key, value string) error {
	entry := memoryTranslationEntry{value: value}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

const redisTranslationPrefix = "lensfolio:translation:"

// RedisTranslationCache 将翻译结果存入 Redis，多实例部署时共享。
type RedisTranslationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTranslationCache 解析 redis:// 地址并在返回前 Ping 一次。
func NewRedisTranslationCache(ctx context.Context, url string, ttl time.Duration) (*RedisTranslationCache, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisTranslationCache{client: client, ttl: ttl}, nil
}

func (c *RedisTranslationCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, redisTranslationPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (c *RedisTranslationCache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, redisTranslationPrefix+key, value, c.ttl).Err()
}

func (c *RedisTranslationCache) Close() error {
	return c.client.Close()
}
