package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeExactBytes(t *testing.T) {
	b, err := EncodeContent("hi", "id-1")
	require.NoError(t, err)
	assert.Equal(t, "event: content\ndata: {\"response\":\"hi\"}\nid: id-1\n\n", string(b))
}

func TestRoundTrip_Content(t *testing.T) {
	b, err := EncodeContent("hello world", "evt-1")
	require.NoError(t, err)

	d := NewDecoder()
	raws := d.Feed(b)
	require.Len(t, raws, 1)

	ev := DecodeContent(raws[0])
	assert.Equal(t, EventContent, ev.Type)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, ContentData{Response: "hello world"}, ev.Data)
}

func TestRoundTrip_End(t *testing.T) {
	final := FinalResponse{Text: "done", Result: "COMPLETE", SessionID: "sess-1"}
	b, err := EncodeEnd(final, "evt-2")
	require.NoError(t, err)

	d := NewDecoder()
	raws := d.Feed(b)
	require.Len(t, raws, 1)

	ev, err := Decode(raws[0])
	require.NoError(t, err)
	assert.Equal(t, EndData{Response: final}, ev.Data)
}

func TestRoundTrip_Error(t *testing.T) {
	b, err := EncodeError("PROVIDER_RATE_LIMIT", "slow down", "evt-3")
	require.NoError(t, err)

	d := NewDecoder()
	raws := d.Feed(b)
	require.Len(t, raws, 1)

	ev, err := Decode(raws[0])
	require.NoError(t, err)
	assert.Equal(t, ErrorData{Code: "PROVIDER_RATE_LIMIT", Message: "slow down"}, ev.Data)
}

func TestDecoder_SplitAcrossFeeds(t *testing.T) {
	b, err := EncodeContent("chunked", "evt-4")
	require.NoError(t, err)

	d := NewDecoder()
	mid := len(b) / 2
	assert.Empty(t, d.Feed(b[:mid]))
	raws := d.Feed(b[mid:])
	require.Len(t, raws, 1)
	assert.Equal(t, "evt-4", raws[0].ID)
}

func TestDecoder_NonJSONDataSurfacesAsContent(t *testing.T) {
	d := NewDecoder()
	raws := d.Feed([]byte("data: not json at all\n\n"))
	require.Len(t, raws, 1)
	ev := DecodeContent(raws[0])
	assert.Equal(t, ContentData{Response: "not json at all"}, ev.Data)
}

func TestDecoder_UnknownEventDropped(t *testing.T) {
	d := NewDecoder()
	raws := d.Feed([]byte("event: ping\ndata: {}\nid: x\n\n"))
	assert.Empty(t, raws)
}

func TestDecoder_EmptyFrameYieldsNothing(t *testing.T) {
	d := NewDecoder()
	raws := d.Feed([]byte("\n\n"))
	assert.Empty(t, raws)
}

func TestDecoder_MultipleFramesInOneFeed(t *testing.T) {
	b1, _ := EncodeContent("a", "1")
	b2, _ := EncodeContent("b", "2")
	d := NewDecoder()
	raws := d.Feed(append(b1, b2...))
	require.Len(t, raws, 2)
	assert.Equal(t, "1", raws[0].ID)
	assert.Equal(t, "2", raws[1].ID)
}
