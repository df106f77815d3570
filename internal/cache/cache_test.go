package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/schema"
)

func record(t *testing.T, proto string) schema.Record {
	t.Helper()
	rec, err := schema.Build(map[string]any{"Protocol": proto, "Flags": "SYN", "Duration": 2.0})
	require.NoError(t, err)
	return rec
}

func TestKeyDeterministic(t *testing.T) {
	a, err := Key(record(t, "TCP"))
	require.NoError(t, err)
	b, err := Key(record(t, "TCP"))
	require.NoError(t, err)
	c, err := Key(record(t, "UDP"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, keyPrefix))
	assert.Len(t, strings.TrimPrefix(a, keyPrefix), 64)
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	want := model.Prediction{Class: "DDoS", Confidence: 0.8, Probabilities: []float64{0.1, 0.8, 0.05, 0.05}}

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", want))
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.NoError(t, m.Close())
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", model.Prediction{Class: "Normal"}))

	now = now.Add(59 * time.Second)
	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNewRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedis(ctx, RedisOptions{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

// TestRedisRoundTrip runs against a live server named by FLOWGUARD_TEST_REDIS.
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("FLOWGUARD_TEST_REDIS")
	if addr == "" {
		t.Skip("FLOWGUARD_TEST_REDIS not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, RedisOptions{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer r.Close()

	key, err := Key(record(t, "Other"))
	require.NoError(t, err)
	want := model.Prediction{Class: "Ransomware", Confidence: 0.6, Probabilities: []float64{0.1, 0.1, 0.6, 0.2}}
	require.NoError(t, r.Set(ctx, key, want))

	got, ok, err := r.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok, err = r.Get(ctx, key+"-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
