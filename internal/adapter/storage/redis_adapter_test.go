package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSetIdempotency_SecondClaimFails(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	key := "order:test-user:" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, key) })

	ok, err := adapter.SetIdempotency(ctx, key, "token-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.SetIdempotency(ctx, key, "token-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	key := "order:test-user:" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, key) })

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, key, uuid.NewString())
			if !assert.NoError(t, err) {
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successCount.Load())
}

func TestReleaseIdempotency_OnlyOwnerReleases(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	key := "order:test-user:" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, key) })

	ok, err := adapter.SetIdempotency(ctx, key, "owner")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, adapter.ReleaseIdempotency(ctx, key, "intruder"))
	assert.EqualValues(t, 1, client.Exists(ctx, key).Val())

	require.NoError(t, adapter.ReleaseIdempotency(ctx, key, "owner"))
	assert.EqualValues(t, 0, client.Exists(ctx, key).Val())

	ok, err = adapter.SetIdempotency(ctx, key, "retry")
	require.NoError(t, err)
	assert.True(t, ok)
}
