package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/ai-gateway/internal/storage"
)

func TestPushAndRange_PreservesAppendOrder(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemory(nil), time.Minute)

	require.NoError(t, s.Push(ctx, "sess-1", Turn{Prompt: "hi", Response: "hello"}))
	require.NoError(t, s.Push(ctx, "sess-1", Turn{Prompt: "how are you", Response: "great"}))
	require.NoError(t, s.Push(ctx, "sess-1", Turn{Prompt: "bye", Response: "see ya"}))

	turns, err := s.Range(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "hi", turns[0].Prompt)
	assert.Equal(t, "how are you", turns[1].Prompt)
	assert.Equal(t, "bye", turns[2].Prompt)
}

func TestRange_UnknownSessionIsEmptyNotError(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemory(nil), time.Minute)

	turns, err := s.Range(ctx, "never-existed")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRange_ExpiredSessionIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemory(nil), 10*time.Millisecond)

	require.NoError(t, s.Push(ctx, "sess-2", Turn{Prompt: "hi", Response: "hello"}))
	time.Sleep(30 * time.Millisecond)

	turns, err := s.Range(ctx, "sess-2")
	require.NoError(t, err)
	assert.Empty(t, turns)
}
