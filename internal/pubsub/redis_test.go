package pubsub

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisBus(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	bus := NewRedis(client, zap.NewNop().Sugar())
	t.Cleanup(func() { bus.Close() })
	return bus, mr
}

func TestRedisSubscribeWaitsForChannel(t *testing.T) {
	bus, mr := newRedisBus(t)
	channel := keyPrefix + "servers"

	var calls atomic.Int32
	cancel, err := bus.Subscribe("servers", func() { calls.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, 1, mr.PubSubNumSub(channel)[channel])

	// published right away, nothing may be lost
	require.NoError(t, bus.Publish(context.Background(), "servers"))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	second, err := bus.Subscribe("servers", func() { calls.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, 1, mr.PubSubNumSub(channel)[channel])

	require.NoError(t, bus.Publish(context.Background(), "servers"))
	assert.Eventually(t, func() bool { return calls.Load() == 3 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	cancel()
	assert.Equal(t, 1, mr.PubSubNumSub(channel)[channel])

	second()
	assert.Eventually(t, func() bool { return mr.PubSubNumSub(channel)[channel] == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestRedisSubscribeAfterClose(t *testing.T) {
	bus, _ := newRedisBus(t)
	require.NoError(t, bus.Close())

	_, err := bus.Subscribe("servers", func() {})
	assert.Error(t, err)
}
