// Package session implements the session/resume bus (C8): every emitted SSE
// frame is both persisted to a per-session hash and fanned out live to
// subscribers, so a dropped connection can resume from the stored tail and
// then fall through to live delivery.
package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/upb/ai-gateway/internal/gwerrors"
	"github.com/upb/ai-gateway/internal/sse"
	"github.com/upb/ai-gateway/internal/storage"
)

// Bus is the session capability backed by storage.Storage.
type Bus struct {
	store storage.Storage
	ttl   time.Duration
}

// New constructs a Bus. ttl is historyExpiration, the session hash TTL
// refreshed on every publish.
func New(store storage.Storage, ttl time.Duration) *Bus {
	return &Bus{store: store, ttl: ttl}
}

func channel(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// Publish persists frame under ev.ID in sessionID's hash and fans it out
// live to any active subscribers of the session channel.
func (b *Bus) Publish(ctx context.Context, sessionID string, ev sse.Event) error {
	frame, err := sse.Encode(ev)
	if err != nil {
		return gwerrors.New(gwerrors.CodeStorageListPushError, "encode sse frame", err)
	}
	if err := b.store.HashSet(ctx, channel(sessionID), ev.ID, frame, b.ttl, true); err != nil {
		return gwerrors.New(gwerrors.CodeStorageListPushError, "publish sse frame", err)
	}
	return nil
}

// Replay returns the frames stored for sessionID whose event id sorts
// strictly after afterEventID, in id order. Pass "" to replay everything.
// An expired or never-existing session returns an empty slice.
func (b *Bus) Replay(ctx context.Context, sessionID, afterEventID string) ([][]byte, error) {
	fields, err := b.store.HashGetAll(ctx, channel(sessionID))
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeHistoryGetError, "replay session frames", err)
	}

	ids := make([]string, 0, len(fields))
	for id := range fields {
		if afterEventID == "" || id > afterEventID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	frames := make([][]byte, 0, len(ids))
	for _, id := range ids {
		frames = append(frames, fields[id])
	}
	return frames, nil
}

// HasEvents reports whether sessionID has any stored frames at all
// (used to distinguish "resume an active/recent stream" from "session
// never existed or fully expired").
func (b *Bus) HasEvents(ctx context.Context, sessionID string) (bool, error) {
	fields, err := b.store.HashGetAll(ctx, channel(sessionID))
	if err != nil {
		return false, gwerrors.New(gwerrors.CodeHistoryGetError, "check session frames", err)
	}
	return len(fields) > 0, nil
}

// IsLive reports whether another process is currently subscribed to
// sessionID's channel, i.e. the original stream may still be producing.
func (b *Bus) IsLive(sessionID string) bool {
	return b.store.ChannelSubscriberCount(channel(sessionID)) > 0
}

// Subscribe registers cb for every frame subsequently published on
// sessionID's channel. Callers must invoke the returned unsubscribe func
// when done to release the underlying channel subscription.
func (b *Bus) Subscribe(ctx context.Context, sessionID string, cb func(frame []byte)) (func(), error) {
	ch := channel(sessionID)
	if err := b.store.CreateSubscription(ctx, ch); err != nil {
		return nil, gwerrors.New(gwerrors.CodeStorageGetError, "create session subscription", err)
	}
	sub := b.store.Subscribe(ch, cb)
	return func() {
		sub.Unsubscribe()
		_ = b.store.RemoveSubscription(context.Background(), ch)
	}, nil
}
