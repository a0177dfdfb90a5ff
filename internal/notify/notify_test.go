package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		require.True(t, ok, "subscription closed before an event arrived")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestLocal(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to the user's subscribers only", func(t *testing.T) {
		n := NewLocal()
		defer n.Close()

		alice, err := n.Subscribe(ctx, "alice")
		require.NoError(t, err)
		defer alice.Close()
		bob, err := n.Subscribe(ctx, "bob")
		require.NoError(t, err)
		defer bob.Close()

		require.NoError(t, n.Publish(ctx, Event{UserID: "alice", Seq: 7, DeviceID: "linux-box"}))

		e := receive(t, alice)
		assert.Equal(t, int64(7), e.Seq)
		assert.Equal(t, "linux-box", e.DeviceID)

		select {
		case e := <-bob.Events():
			t.Fatalf("bob should not receive alice's event, got %+v", e)
		default:
		}
	})

	t.Run("Close removes the subscriber", func(t *testing.T) {
		n := NewLocal()
		defer n.Close()

		sub, err := n.Subscribe(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 1, n.Subscribers("alice"))

		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())

		require.Eventually(t, func() bool { return n.Subscribers("alice") == 0 }, time.Second, 5*time.Millisecond)
		_, ok := <-sub.Events()
		assert.False(t, ok, "events channel should be closed")
	})

	t.Run("context cancel ends the subscription", func(t *testing.T) {
		n := NewLocal()
		defer n.Close()

		subCtx, cancel := context.WithCancel(ctx)
		sub, err := n.Subscribe(subCtx, "alice")
		require.NoError(t, err)
		cancel()

		assert.False(t, sub.Wait(context.Background()))
	})

	t.Run("Wait returns on deadline", func(t *testing.T) {
		n := NewLocal()
		defer n.Close()

		sub, err := n.Subscribe(ctx, "alice")
		require.NoError(t, err)
		defer sub.Close()

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		assert.False(t, sub.Wait(waitCtx))
	})

	t.Run("slow subscribers do not block publishers", func(t *testing.T) {
		n := NewLocal()
		defer n.Close()

		sub, err := n.Subscribe(ctx, "alice")
		require.NoError(t, err)
		defer sub.Close()

		for i := range 50 {
			require.NoError(t, n.Publish(ctx, Event{UserID: "alice", Seq: int64(i)}))
		}
		assert.Len(t, sub.Events(), 10)
	})

	t.Run("closed notifier rejects subscribers", func(t *testing.T) {
		n := NewLocal()
		require.NoError(t, n.Close())

		_, err := n.Subscribe(ctx, "alice")
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr := miniredis.RunT(t)
	n, err := NewRedis(&redis.Options{Addr: mr.Addr()}, "clipsync")
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return mr, n
}

func TestRedis(t *testing.T) {
	ctx := context.Background()

	t.Run("publish and subscribe", func(t *testing.T) {
		_, n := setupRedis(t)
		require.NoError(t, n.Ping(ctx))

		sub, err := n.Subscribe(ctx, "alice")
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, n.Publish(ctx, Event{UserID: "alice", Seq: 42, DeviceID: "darwin-mac"}))

		e := receive(t, sub)
		assert.Equal(t, Event{UserID: "alice", Seq: 42, DeviceID: "darwin-mac"}, e)
	})

	t.Run("channels are namespaced per user", func(t *testing.T) {
		mr, n := setupRedis(t)
		assert.Equal(t, "clipsync:clipboard:alice", n.Channel("alice"))

		sub, err := n.Subscribe(ctx, "alice")
		require.NoError(t, err)
		defer sub.Close()

		assert.Contains(t, mr.PubSubChannels(""), "clipsync:clipboard:alice")
	})

	t.Run("undecodable payloads surface as errors", func(t *testing.T) {
		mr, n := setupRedis(t)

		sub, err := n.Subscribe(ctx, "alice")
		require.NoError(t, err)
		defer sub.Close()

		mr.Publish(n.Channel("alice"), "not json")

		select {
		case err := <-sub.Errors():
			assert.ErrorContains(t, err, "failed to unmarshal event")
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for error")
		}

		require.NoError(t, n.Publish(ctx, Event{UserID: "alice", Seq: 1}))
		assert.Equal(t, int64(1), receive(t, sub).Seq)
	})

	t.Run("unread errors do not stall events", func(t *testing.T) {
		mr, n := setupRedis(t)

		sub, err := n.Subscribe(ctx, "alice")
		require.NoError(t, err)
		defer sub.Close()

		for range 25 {
			mr.Publish(n.Channel("alice"), "not json")
		}
		require.NoError(t, n.Publish(ctx, Event{UserID: "alice", Seq: 7}))

		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		assert.True(t, sub.Wait(waitCtx), "event was not delivered after undecodable payloads")
	})

	t.Run("Close ends the subscription", func(t *testing.T) {
		_, n := setupRedis(t)

		sub, err := n.Subscribe(ctx, "alice")
		require.NoError(t, err)
		require.NoError(t, sub.Close())

		select {
		case _, ok := <-sub.Events():
			assert.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("events channel was not closed")
		}
	})

	t.Run("subscribe fails when redis is down", func(t *testing.T) {
		mr, n := setupRedis(t)
		mr.Close()

		_, err := n.Subscribe(ctx, "alice")
		assert.Error(t, err)
	})

	t.Run("empty prefix is rejected", func(t *testing.T) {
		_, err := NewRedis(&redis.Options{Addr: "localhost:0"}, "")
		assert.ErrorIs(t, err, shared.ErrInvalidConfig)
	})
}

func TestFromConfig(t *testing.T) {
	local, err := FromConfig(shared.NotifyConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, local)

	mr := miniredis.RunT(t)
	remote, err := FromConfig(shared.NotifyConfig{RedisAddr: mr.Addr(), ChannelPrefix: "clipsync"})
	require.NoError(t, err)
	defer remote.Close()
	assert.IsType(t, &Redis{}, remote)
}
