// Package redis provides a Redis-backed embedding cache.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/storage/codec"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.EmbeddingCache = (*Cache)(nil)

// DefaultKeyPrefix namespaces cache keys.
const DefaultKeyPrefix = "handbook-rag:embedding:"

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	// TTL is the lifetime of an entry. Zero keeps entries forever.
	TTL time.Duration

	// KeyPrefix namespaces keys (default: handbook-rag:embedding:).
	KeyPrefix string

	// DialTimeout bounds connecting and the initial ping (default: 2s).
	DialTimeout time.Duration
}

// Cache stores embeddings in Redis keyed by model and text digest.
type Cache struct {
	client *goredis.Client
	ttl    time.Duration
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 2 * time.Second
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return &Cache{client: client, ttl: cfg.TTL, prefix: cfg.KeyPrefix}, nil
}

// Key returns the cache key for a model and text.
func (c *Cache) Key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + model + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached vector and whether it was found.
func (c *Cache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, c.Key(model, text)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get: %w", err)
	}

	vec, err := codec.DecodeVector(data)
	if err != nil {
		// Drop the corrupt entry so it is recomputed.
		_ = c.client.Del(ctx, c.Key(model, text)).Err()
		return nil, false, fmt.Errorf("redis: decode: %w", err)
	}
	return vec, true, nil
}

// Set stores a vector.
func (c *Cache) Set(ctx context.Context, model, text string, vector []float32) error {
	if err := c.client.Set(ctx, c.Key(model, text), codec.EncodeVector(vector), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
