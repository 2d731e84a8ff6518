package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/ai-gateway/internal/gwerrors"
)

func TestResolve_Defaults(t *testing.T) {
	r, err := Resolve(Defaults())
	require.NoError(t, err)
	assert.Equal(t, uint64(200), r.Limits.Rate.Max)
	assert.Equal(t, uint64(30_000), r.Limits.Rate.WindowMs)
	assert.Equal(t, uint64(30_000), r.RequestTimeoutMs)
	assert.Equal(t, 1, r.RetryMax)
	assert.Equal(t, uint64(1000), r.RetryIntervalMs)
	assert.Equal(t, uint64(86_400_000), r.HistoryExpirationMs)
	assert.Equal(t, uint64(60_000), r.Restore.RateLimit)
	assert.Equal(t, uint64(600_000), r.Restore.ProviderExceededError)
	assert.Equal(t, "memory", r.StorageType)
}

func TestMerge_OverrideWinsOnlyWhereSet(t *testing.T) {
	base := Defaults()
	u := func(v uint64) *uint64 { return &v }
	override := Options{RateMax: u(5)}

	merged := Merge(base, override)
	r, err := Resolve(merged)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), r.Limits.Rate.Max)
	assert.Equal(t, uint64(30_000), r.Limits.Rate.WindowMs) // untouched by override
}

func TestMerge_ChainOfFourLayers(t *testing.T) {
	u := func(v uint64) *uint64 { return &v }
	i := func(v int) *int { return &v }

	engineLevel := Options{RateMax: u(50)}
	perModel := Options{RateWindow: "10s"}
	perRequest := Options{RetryMax: i(3)}

	resolved, err := Resolve(Merge(Merge(Merge(Defaults(), engineLevel), perModel), perRequest))
	require.NoError(t, err)
	assert.Equal(t, uint64(50), resolved.Limits.Rate.Max)
	assert.Equal(t, uint64(10_000), resolved.Limits.Rate.WindowMs)
	assert.Equal(t, 3, resolved.RetryMax)
}

func TestResolve_RejectsInvalidTimeWindow(t *testing.T) {
	opts := Defaults()
	opts.RequestTimeout = "5x"
	_, err := Resolve(opts)
	require.Error(t, err)
	assert.Equal(t, gwerrors.CodeOptionsError, gwerrors.CodeOf(err))
}

func TestResolve_RejectsUnknownStorageType(t *testing.T) {
	opts := Defaults()
	bad := "postgres"
	opts.StorageType = &bad
	_, err := Resolve(opts)
	require.Error(t, err)
	assert.Equal(t, gwerrors.CodeOptionsError, gwerrors.CodeOf(err))
}
