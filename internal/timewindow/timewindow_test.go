package timewindow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Symmetry(t *testing.T) {
	ms, err := Parse("1m")
	require.NoError(t, err)
	assert.EqualValues(t, 60_000, ms)

	ms, err = Parse(uint64(60_000))
	require.NoError(t, err)
	assert.EqualValues(t, 60_000, ms)
}

func TestParse_Units(t *testing.T) {
	cases := map[string]uint64{
		"500ms": 500,
		"30s":   30_000,
		"1m":    60_000,
		"2h":    7_200_000,
		"1d":    86_400_000,
		"0s":    0,
		"42":    42,
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, bad := range []interface{}{"-5s", "5x", "abc", "", -1, -1.5, 1.5} {
		_, err := Parse(bad)
		assert.Error(t, err, "%v", bad)
	}
}
