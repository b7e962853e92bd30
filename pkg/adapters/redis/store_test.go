package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/redis"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunSlotStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Second), redis.WithPrefix("robot1:"))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "person", []byte(`"alice"`)))
	assert.True(t, mr.Exists("robot1:slot:person"))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"person"}, keys)

	mr.FastForward(2 * time.Second)

	_, err = store.Get(ctx, "person")
	assert.ErrorIs(t, err, domain.ErrSlotEmpty)
}

func TestLocker(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "bonsai:").WithRetryInterval(5 * time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "robot1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("bonsai:lock:robot1"))

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "robot1", time.Minute)
	assert.ErrorIs(t, err, redis.ErrLockAcquire)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("bonsai:lock:robot1"))

	unlock2, err := locker.Lock(ctx, "robot1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx), "stale unlock must not release a foreign lease")
	assert.True(t, mr.Exists("bonsai:lock:robot1"))
	require.NoError(t, unlock2(ctx))
}

func TestLockerHold(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "bonsai:")
	ctx := context.Background()

	lost := make(chan error, 1)
	unlock, err := locker.Hold(ctx, "robot1", 60*time.Millisecond, func(err error) { lost <- err })
	require.NoError(t, err)

	mr.FastForward(50 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Greater(t, mr.TTL("bonsai:lock:robot1"), 20*time.Millisecond, "refresh restores the ttl")

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("bonsai:lock:robot1"))
	assert.Empty(t, lost)
}

func TestLockerHoldReportsTakeover(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "bonsai:")
	ctx := context.Background()

	lost := make(chan error, 1)
	unlock, err := locker.Hold(ctx, "robot1", 30*time.Millisecond, func(err error) { lost <- err })
	require.NoError(t, err)
	defer func() { _ = unlock(ctx) }()

	require.NoError(t, mr.Set("bonsai:lock:robot1", "someone-else"))

	select {
	case err := <-lost:
		assert.ErrorIs(t, err, redis.ErrLeaseLost)
	case <-time.After(time.Second):
		t.Fatal("lease loss not reported")
	}
}

func TestPublisher(t *testing.T) {
	mr, client := newClient(t)
	pub := redis.NewPublisher(client, "bonsai:")
	ctx := context.Background()

	sub := client.Subscribe(ctx, pub.Channel(redis.ChannelStates), pub.Channel(redis.ChannelExceptions))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	msgs := sub.Channel()

	require.NoError(t, pub.OnStatus(ctx, domain.StatusReport{Status: domain.MachineRunning, Active: []string{"Talk"}}))
	stored, err := mr.Get("bonsai:status")
	require.NoError(t, err)
	assert.Contains(t, stored, `"RUNNING"`)

	require.NoError(t, pub.OnStatesChanged(ctx, domain.StateChange{Active: []string{"Nav"}}))
	require.NoError(t, pub.OnException(ctx, domain.ExceptionEvent{StateID: "Nav", Message: "boom"}))

	select {
	case msg := <-msgs:
		assert.Equal(t, "bonsai:states", msg.Channel)
		var change domain.StateChange
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &change))
		assert.Equal(t, []string{"Nav"}, change.Active)
	case <-time.After(time.Second):
		t.Fatal("no state change published")
	}

	select {
	case msg := <-msgs:
		assert.Equal(t, "bonsai:exceptions", msg.Channel)
		assert.Contains(t, msg.Payload, "boom")
	case <-time.After(time.Second):
		t.Fatal("no exception published")
	}
}
