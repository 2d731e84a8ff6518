// Package storage implements the gateway's shared-storage abstraction (C4):
// opaque value get/set, a hash-with-expiry map-per-key, and channel pub/sub,
// backed either by an in-process map or a Valkey/Redis-compatible server.
package storage

import (
	"context"
	"time"
)

// Subscription is a handle returned by Subscribe; Unsubscribe stops delivery
// for that particular callback registration.
type Subscription interface {
	Unsubscribe()
}

// Callback receives the raw published payload for a channel.
type Callback func(payload []byte)

// Storage is the capability set every backend (memory, Valkey) must satisfy.
// It is the only place shared mutable state (model state, history, session
// events) may live; callers hold no other copy of record-of-truth data.
type Storage interface {
	// Init connects the backend. Safe to call once before first use.
	Init(ctx context.Context) error
	// Close disconnects the backend and releases resources.
	Close(ctx context.Context) error

	// ValueGet returns the raw JSON bytes stored at key, or (nil, false) if
	// absent or expired.
	ValueGet(ctx context.Context, key string) ([]byte, bool, error)
	// ValueSet stores raw JSON bytes at key with no expiry.
	ValueSet(ctx context.Context, key string, value []byte) error

	// HashSet stores field within the hash at key, refreshing the whole
	// key's TTL to ttl. When publish is true, value is also emitted on a
	// channel named key.
	HashSet(ctx context.Context, key, field string, value []byte, ttl time.Duration, publish bool) error
	// HashGet returns one field's raw bytes, or (nil, false) if absent.
	HashGet(ctx context.Context, key, field string) ([]byte, bool, error)
	// HashGetAll returns every field currently stored under key as a map,
	// which carries no order in any backend; callers needing order must
	// sort by a field they control, e.g. a sortable id.
	HashGetAll(ctx context.Context, key string) (map[string][]byte, error)

	// CreateSubscription ensures channel has an active subscription,
	// reference-counting so multiple logical subscribers share one
	// upstream connection.
	CreateSubscription(ctx context.Context, channel string) error
	// RemoveSubscription decrements the reference count and tears down the
	// upstream subscription once it reaches zero.
	RemoveSubscription(ctx context.Context, channel string) error
	// Subscribe registers cb for messages published on channel. The
	// channel must already have an active subscription via
	// CreateSubscription.
	Subscribe(channel string, cb Callback) Subscription
	// ChannelSubscriberCount reports how many local callbacks are
	// currently registered on channel (used by the session/resume bus to
	// decide whether a stream is "still active").
	ChannelSubscriberCount(channel string) int
}
