package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/upb/ai-gateway/internal/registry"
)

type fakeSweeper struct {
	calls int32
}

func (f *fakeSweeper) SelectModel(ctx context.Context, candidates []registry.ModelRef, nowMs int64) (registry.ModelRef, error) {
	atomic.AddInt32(&f.calls, 1)
	if len(candidates) == 0 {
		return registry.ModelRef{}, nil
	}
	return candidates[0], nil
}

func TestScheduler_SweepsEveryTrackedModelOnEachTick(t *testing.T) {
	sweeper := &fakeSweeper{}
	models := []registry.ModelRef{
		{Provider: registry.ProviderOpenAI, Name: "gpt"},
		{Provider: registry.ProviderDeepSeek, Name: "chat"},
	}
	s := New(sweeper, models, nil)

	assert.NoError(t, s.Start("@every 10ms"))
	defer s.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&sweeper.calls)), 2)
}
