package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Memory is the in-process Storage backend: a concurrency-safe mapping of
// values, a mapping-of-mappings for hashes, and in-process pub/sub. Expiry
// is wall-clock and checked opportunistically on read and on write — there
// is no background sweep.
type Memory struct {
	logger *zap.Logger

	mu     sync.RWMutex
	values map[string][]byte

	hashes map[string]*hashEntry

	subMu sync.Mutex
	subs  map[string]*channelSubs
}

type hashEntry struct {
	fields  map[string][]byte
	order   []string // insertion order of fields; HashGetAll does not use it
	expires time.Time
}

type channelSubs struct {
	refs      int
	callbacks map[int]Callback
	nextID    int
}

// NewMemory constructs an empty in-memory Storage backend.
func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		logger: logger,
		values: make(map[string][]byte),
		hashes: make(map[string]*hashEntry),
		subs:   make(map[string]*channelSubs),
	}
}

func (m *Memory) Init(ctx context.Context) error  { return nil }
func (m *Memory) Close(ctx context.Context) error { return nil }

func (m *Memory) ValueGet(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	v, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	cp := append([]byte(nil), v...)
	return cp, true, nil
}

func (m *Memory) ValueSet(ctx context.Context, key string, value []byte) error {
	cp := append([]byte(nil), value...)
	m.mu.Lock()
	m.values[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) HashSet(ctx context.Context, key, field string, value []byte, ttl time.Duration, publish bool) error {
	cp := append([]byte(nil), value...)

	m.mu.Lock()
	entry, ok := m.hashes[key]
	if !ok || time.Now().After(entry.expires) {
		entry = &hashEntry{fields: make(map[string][]byte)}
		m.hashes[key] = entry
	}
	if _, exists := entry.fields[field]; !exists {
		entry.order = append(entry.order, field)
	}
	entry.fields[field] = cp
	entry.expires = time.Now().Add(ttl)
	m.mu.Unlock()

	if publish {
		m.publish(key, cp)
	}
	return nil
}

func (m *Memory) HashGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.hashes[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, false, nil
	}
	v, ok := entry.fields[field]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) HashGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.hashes[key]
	if !ok || time.Now().After(entry.expires) {
		return map[string][]byte{}, nil
	}
	out := make(map[string][]byte, len(entry.fields))
	for k, v := range entry.fields {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, channel string) error {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	cs, ok := m.subs[channel]
	if !ok {
		cs = &channelSubs{callbacks: make(map[int]Callback)}
		m.subs[channel] = cs
	}
	cs.refs++
	return nil
}

func (m *Memory) RemoveSubscription(ctx context.Context, channel string) error {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	cs, ok := m.subs[channel]
	if !ok {
		return nil
	}
	cs.refs--
	if cs.refs <= 0 {
		delete(m.subs, channel)
	}
	return nil
}

type memorySubscription struct {
	m       *Memory
	channel string
	id      int
}

func (s *memorySubscription) Unsubscribe() {
	s.m.subMu.Lock()
	defer s.m.subMu.Unlock()
	if cs, ok := s.m.subs[s.channel]; ok {
		delete(cs.callbacks, s.id)
	}
}

func (m *Memory) Subscribe(channel string, cb Callback) Subscription {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	cs, ok := m.subs[channel]
	if !ok {
		cs = &channelSubs{callbacks: make(map[int]Callback)}
		m.subs[channel] = cs
	}
	id := cs.nextID
	cs.nextID++
	cs.callbacks[id] = cb
	return &memorySubscription{m: m, channel: channel, id: id}
}

func (m *Memory) ChannelSubscriberCount(channel string) int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	cs, ok := m.subs[channel]
	if !ok {
		return 0
	}
	return len(cs.callbacks)
}

// publish delivers payload to every callback registered on channel,
// synchronously, before returning — matching the storage invariant that a
// publish-before-return subscriber observes the value exactly once.
func (m *Memory) publish(channel string, payload []byte) {
	m.subMu.Lock()
	cs, ok := m.subs[channel]
	var cbs []Callback
	if ok {
		cbs = make([]Callback, 0, len(cs.callbacks))
		for _, cb := range cs.callbacks {
			cbs = append(cbs, cb)
		}
	}
	m.subMu.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("storage: subscriber panicked", zap.Any("recover", r), zap.String("channel", channel))
				}
			}()
			cb(payload)
		}()
	}
}
