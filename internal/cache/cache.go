// Package cache memoises predictions for identical flow records.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"

	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/schema"
)

const keyPrefix = "flowguard:prediction:"

// Cache stores predictions keyed by Key.
type Cache interface {
	Get(ctx context.Context, key string) (model.Prediction, bool, error)
	Set(ctx context.Context, key string, p model.Prediction) error
	Close() error
}

// Key is the BLAKE3 digest of the record's canonical JSON. Records with
// equal field values share a key.
func Key(rec schema.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	sum := blake3.Sum256(data)
	return keyPrefix + hex.EncodeToString(sum[:]), nil
}

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: redis ping %s: %w", opts.Addr, err)
	}
	return &Redis{client: client, ttl: opts.TTL}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (model.Prediction, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Prediction{}, false, nil
	}
	if err != nil {
		return model.Prediction{}, false, fmt.Errorf("cache: get: %w", err)
	}
	var p model.Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Prediction{}, false, fmt.Errorf("cache: decode: %w", err)
	}
	return p, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, p model.Prediction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Memory is an in-process Cache with per-entry expiry.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

type entry struct {
	p       model.Prediction
	expires time.Time
}

// NewMemory returns an empty Memory cache. A zero ttl never expires.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

func (m *Memory) Get(_ context.Context, key string) (model.Prediction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return model.Prediction{}, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return model.Prediction{}, false, nil
	}
	return e.p, true, nil
}

func (m *Memory) Set(_ context.Context, key string, p model.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{p: p}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Close() error { return nil }
