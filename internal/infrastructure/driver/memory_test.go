package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	_, err := kv.Get(ctx, "k")
	assert.True(t, IsKeyNotFound(err))

	assert.NoError(t, kv.Set(ctx, "k", "v", 0))
	v, err := kv.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, "v", v)

	ok, _ := kv.Exists(ctx, "k")
	assert.True(t, ok)

	assert.NoError(t, kv.Del(ctx, "k"))
	ok, _ = kv.Exists(ctx, "k")
	assert.False(t, ok)
	assert.NoError(t, kv.Ping(ctx))
}

func TestMemoryKV_Expiration(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	kv := NewMemoryKV()
	kv.now = func() time.Time { return now }

	assert.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	_, err := kv.Get(ctx, "k")
	assert.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
