// Package redis provides an optional Redis-backed cache for catalog results.
//
// Graceful fallback: if Redis is unavailable, operations return zero values
// instead of failing the request that asked for them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dayuer/tubebot/internal/logging"
)

// Key prefixes.
const (
	KeySearch   = "tubebot:search:"
	KeyTrending = "tubebot:trending:"
)

const opTimeout = 2 * time.Second

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port/db
	Password string
}

// Store wraps a Redis client. A nil *Store is valid and behaves as an
// always-empty cache.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// Open connects to Redis and pings it.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url not configured")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger = logging.OrNop(logger)
	logger.Info("redis connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return &Store{client: c, logger: logger}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(c *redis.Client, logger *zap.Logger) *Store {
	return &Store{client: c, logger: logging.OrNop(logger)}
}

// Close closes the connection.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// IsAvailable reports whether the store has a client.
func (s *Store) IsAvailable() bool {
	return s != nil && s.client != nil
}

// Get reads a string value. Returns "" if missing or unavailable.
func (s *Store) Get(ctx context.Context, key string) string {
	if !s.IsAvailable() {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	return val
}

// Set writes a string value with TTL. Returns false on failure.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if !s.IsAvailable() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Del deletes a key. Returns false on failure.
func (s *Store) Del(ctx context.Context, key string) bool {
	if !s.IsAvailable() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("redis del failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// GetJSON reads a JSON value into out. Returns false if not found or on error.
func (s *Store) GetJSON(ctx context.Context, key string, out any) bool {
	raw := s.Get(ctx, key)
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logger.Warn("redis value is not valid json", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SetJSON writes a JSON-serialized value with TTL.
func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if !s.IsAvailable() {
		return false
	}
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("redis json marshal failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return s.Set(ctx, key, string(data), ttl)
}
