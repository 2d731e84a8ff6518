package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStorageSuite exercises the Storage contract against any backend. Valkey
// is covered by this same suite in integration environments that set
// GATEWAY_TEST_VALKEY_ADDR; it is skipped otherwise (see TestValkey_Suite).
func runStorageSuite(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))
	defer s.Close(ctx)

	t.Run("value get/set roundtrip", func(t *testing.T) {
		_, ok, err := s.ValueGet(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.ValueSet(ctx, "k1", []byte(`{"a":1}`)))
		v, ok, err := s.ValueGet(ctx, "k1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `{"a":1}`, string(v))
	})

	t.Run("hash set/get with ttl", func(t *testing.T) {
		require.NoError(t, s.HashSet(ctx, "h1", "f1", []byte("v1"), time.Minute, false))
		require.NoError(t, s.HashSet(ctx, "h1", "f2", []byte("v2"), time.Minute, false))

		v, ok, err := s.HashGet(ctx, "h1", "f1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v1", string(v))

		all, err := s.HashGetAll(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{"f1": []byte("v1"), "f2": []byte("v2")}, all)
	})

	t.Run("hash entry expires as a whole", func(t *testing.T) {
		require.NoError(t, s.HashSet(ctx, "h2", "f1", []byte("v1"), 10*time.Millisecond, false))
		time.Sleep(30 * time.Millisecond)

		_, ok, err := s.HashGet(ctx, "h2", "f1")
		require.NoError(t, err)
		assert.False(t, ok)

		all, err := s.HashGetAll(ctx, "h2")
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("publish delivers to subscribers before HashSet returns", func(t *testing.T) {
		require.NoError(t, s.CreateSubscription(ctx, "chan1"))
		defer s.RemoveSubscription(ctx, "chan1")

		var mu sync.Mutex
		var got []byte
		done := make(chan struct{})
		sub := s.Subscribe("chan1", func(payload []byte) {
			mu.Lock()
			got = payload
			mu.Unlock()
			close(done)
		})
		defer sub.Unsubscribe()

		assert.Equal(t, 1, s.ChannelSubscriberCount("chan1"))
		require.NoError(t, s.HashSet(ctx, "chan1", "f1", []byte("hello"), time.Minute, true))

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for publish delivery")
		}
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "hello", string(got))
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		require.NoError(t, s.CreateSubscription(ctx, "chan2"))
		defer s.RemoveSubscription(ctx, "chan2")

		sub := s.Subscribe("chan2", func(payload []byte) {
			t.Fatal("callback should not fire after unsubscribe")
		})
		sub.Unsubscribe()
		assert.Equal(t, 0, s.ChannelSubscriberCount("chan2"))

		require.NoError(t, s.HashSet(ctx, "chan2", "f1", []byte("x"), time.Minute, true))
		time.Sleep(20 * time.Millisecond)
	})
}

func TestMemory_Suite(t *testing.T) {
	runStorageSuite(t, NewMemory(nil))
}
