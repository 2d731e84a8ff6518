package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/ai-gateway/internal/sse"
	"github.com/upb/ai-gateway/internal/storage"
)

func TestPublishAndReplay_OrderedAfterEventId(t *testing.T) {
	ctx := context.Background()
	b := New(storage.NewMemory(nil), time.Minute)

	require.NoError(t, b.Publish(ctx, "sess-1", sse.Event{Type: sse.EventContent, Data: sse.ContentData{Response: "Hello"}, ID: "0001"}))
	require.NoError(t, b.Publish(ctx, "sess-1", sse.Event{Type: sse.EventContent, Data: sse.ContentData{Response: " world"}, ID: "0002"}))
	require.NoError(t, b.Publish(ctx, "sess-1", sse.Event{Type: sse.EventContent, Data: sse.ContentData{Response: "!"}, ID: "0003"}))

	all, err := b.Replay(ctx, "sess-1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	suffix, err := b.Replay(ctx, "sess-1", "0001")
	require.NoError(t, err)
	require.Len(t, suffix, 2)
	assert.Contains(t, string(suffix[0]), " world")
	assert.Contains(t, string(suffix[1]), "!")
}

func TestHasEvents(t *testing.T) {
	ctx := context.Background()
	b := New(storage.NewMemory(nil), time.Minute)

	has, err := b.HasEvents(ctx, "never")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, b.Publish(ctx, "sess-2", sse.Event{Type: sse.EventContent, Data: sse.ContentData{Response: "hi"}, ID: "0001"}))
	has, err = b.HasEvents(ctx, "sess-2")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSubscribe_ReceivesLiveFrames(t *testing.T) {
	ctx := context.Background()
	b := New(storage.NewMemory(nil), time.Minute)

	var mu sync.Mutex
	var received []byte
	done := make(chan struct{})

	unsub, err := b.Subscribe(ctx, "sess-3", func(frame []byte) {
		mu.Lock()
		received = frame
		mu.Unlock()
		close(done)
	})
	require.NoError(t, err)
	defer unsub()

	assert.True(t, b.IsLive("sess-3"))
	require.NoError(t, b.Publish(ctx, "sess-3", sse.Event{Type: sse.EventContent, Data: sse.ContentData{Response: "live"}, ID: "0001"}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live frame")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, string(received), "live")
}
