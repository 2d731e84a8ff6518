package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/ai-gateway/internal/gwerrors"
	"github.com/upb/ai-gateway/internal/storage"
)

func newTestRegistry() *Registry {
	return New(storage.NewMemory(nil),
		ModelLimits{Rate: RateLimits{Max: 2, WindowMs: 1000}},
		ModelRestore{RateLimit: 60_000, Retry: 60_000, Timeout: 60_000, ProviderCommunicationError: 60_000, ProviderExceededError: 600_000},
		nil)
}

func TestSelectModel_SkipsErroredUnlessRestoreElapsed(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	a := ModelRef{Provider: ProviderOpenAI, Name: "gpt-4o-mini"}
	b := ModelRef{Provider: ProviderGemini, Name: "gemini-2.5-flash"}

	require.NoError(t, r.MarkError(ctx, a, gwerrors.CodeProviderExceededQuota, 1000))

	sel, err := r.SelectModel(ctx, []ModelRef{a, b}, 1500)
	require.NoError(t, err)
	assert.Equal(t, b, sel)
}

func TestSelectModel_RestoresAfterDeadline(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	a := ModelRef{Provider: ProviderOpenAI, Name: "gpt-4o-mini"}

	require.NoError(t, r.MarkError(ctx, a, gwerrors.CodeProviderRateLimit, 1000))

	_, err := r.SelectModel(ctx, []ModelRef{a}, 1500)
	require.Error(t, err)
	assert.Equal(t, gwerrors.CodeNoModelsAvailable, gwerrors.CodeOf(err))

	sel, err := r.SelectModel(ctx, []ModelRef{a}, 1000+60_000+1)
	require.NoError(t, err)
	assert.Equal(t, a, sel)
}

func TestSelectModel_NoModelsAvailable(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	a := ModelRef{Provider: ProviderOpenAI, Name: "gpt-4o-mini"}
	require.NoError(t, r.MarkError(ctx, a, gwerrors.CodeProviderResponseError, 1000))

	_, err := r.SelectModel(ctx, []ModelRef{a}, 1001)
	require.Error(t, err)
	assert.Equal(t, gwerrors.CodeNoModelsAvailable, gwerrors.CodeOf(err))
}

func TestCheckAndIncrementRate_FixedWindow(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	a := ModelRef{Provider: ProviderOpenAI, Name: "gpt-4o-mini"}

	require.NoError(t, r.CheckAndIncrementRate(ctx, a, 0))
	require.NoError(t, r.CheckAndIncrementRate(ctx, a, 100))

	err := r.CheckAndIncrementRate(ctx, a, 200)
	require.Error(t, err)
	assert.Equal(t, gwerrors.CodeProviderRateLimit, gwerrors.CodeOf(err))

	require.NoError(t, r.CheckAndIncrementRate(ctx, a, 1000))
}

func TestMarkError_LastWriterWinsByTimestamp(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	a := ModelRef{Provider: ProviderOpenAI, Name: "gpt-4o-mini"}

	require.NoError(t, r.MarkError(ctx, a, gwerrors.CodeProviderExceededQuota, 5000))
	// An older-stamped write must not clobber the newer one.
	require.NoError(t, r.MarkError(ctx, a, gwerrors.CodeProviderRateLimit, 1000))

	s, err := r.load(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, ReasonExceededQuota, s.Reason)
	assert.Equal(t, int64(5000), s.TimestampMs)
}

func TestMarkReady_SkipsWhenStale(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	a := ModelRef{Provider: ProviderOpenAI, Name: "gpt-4o-mini"}

	require.NoError(t, r.MarkError(ctx, a, gwerrors.CodeProviderExceededQuota, 5000))
	require.NoError(t, r.MarkReady(ctx, a, 1000))

	s, err := r.load(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, StatusError, s.Status)
}

func TestParseModelRefString_CompactFormAndRejectsMalformed(t *testing.T) {
	ref, err := ParseModelRefString("openai:gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, ModelRef{Provider: ProviderOpenAI, Name: "gpt-4o-mini"}, ref)

	_, err = ParseModelRefString("bad")
	assert.Error(t, err)
}
