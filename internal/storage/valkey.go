package storage

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ValkeyConfig configures the Valkey/Redis-compatible backend.
type ValkeyConfig struct {
	Addr     string
	Password string
	DB       int
}

// Valkey implements Storage against a Valkey/Redis-compatible server. Per
// spec §4.4/§5 it uses one connection for commands and a separate one for
// subscriptions, since most Redis-compatible servers forbid mixing the two
// modes on a single connection. Local subscription counts avoid
// over-subscribing the upstream channel.
type Valkey struct {
	logger *zap.Logger
	cmd    *redis.Client

	subMu   sync.Mutex
	subs    map[string]*valkeyChannelSubs
	pubsub  *redis.PubSub
	pubsubM sync.Mutex
}

type valkeyChannelSubs struct {
	refs      int
	callbacks map[int]Callback
	nextID    int
}

// NewValkey constructs a Valkey-backed Storage. Call Init before use.
func NewValkey(cfg ValkeyConfig, logger *zap.Logger) *Valkey {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Valkey{
		logger: logger,
		cmd: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		subs: make(map[string]*valkeyChannelSubs),
	}
}

func (v *Valkey) Init(ctx context.Context) error {
	if err := v.cmd.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("storage: valkey ping: %w", err)
	}
	v.pubsubM.Lock()
	v.pubsub = v.cmd.Subscribe(ctx)
	v.pubsubM.Unlock()
	go v.loop(context.Background())
	return nil
}

func (v *Valkey) Close(ctx context.Context) error {
	v.pubsubM.Lock()
	if v.pubsub != nil {
		_ = v.pubsub.Close()
	}
	v.pubsubM.Unlock()
	return v.cmd.Close()
}

func (v *Valkey) ValueGet(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := v.cmd.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: valkey GET %s: %w", key, err)
	}
	return b, true, nil
}

func (v *Valkey) ValueSet(ctx context.Context, key string, value []byte) error {
	if err := v.cmd.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("storage: valkey SET %s: %w", key, err)
	}
	return nil
}

func (v *Valkey) HashSet(ctx context.Context, key, field string, value []byte, ttl time.Duration, publish bool) error {
	pipe := v.cmd.TxPipeline()
	pipe.HSet(ctx, key, field, value)
	pipe.Expire(ctx, key, ceilSeconds(ttl))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storage: valkey HSET %s/%s: %w", key, field, err)
	}

	if publish {
		if err := v.cmd.Publish(ctx, key, value).Err(); err != nil {
			return fmt.Errorf("storage: valkey PUBLISH %s: %w", key, err)
		}
	}
	return nil
}

func (v *Valkey) HashGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	b, err := v.cmd.HGet(ctx, key, field).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: valkey HGET %s/%s: %w", key, field, err)
	}
	return b, true, nil
}

func (v *Valkey) HashGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	res, err := v.cmd.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: valkey HGETALL %s: %w", key, err)
	}
	out := make(map[string][]byte, len(res))
	for k, val := range res {
		out[k] = []byte(val)
	}
	return out, nil
}

func (v *Valkey) CreateSubscription(ctx context.Context, channel string) error {
	v.subMu.Lock()
	defer v.subMu.Unlock()

	cs, ok := v.subs[channel]
	if !ok {
		cs = &valkeyChannelSubs{callbacks: make(map[int]Callback)}
		v.subs[channel] = cs
	}
	first := cs.refs == 0
	cs.refs++

	if first {
		v.pubsubM.Lock()
		err := v.pubsub.Subscribe(ctx, channel)
		v.pubsubM.Unlock()
		if err != nil {
			cs.refs--
			return fmt.Errorf("storage: valkey SUBSCRIBE %s: %w", channel, err)
		}
	}
	return nil
}

func (v *Valkey) RemoveSubscription(ctx context.Context, channel string) error {
	v.subMu.Lock()
	defer v.subMu.Unlock()

	cs, ok := v.subs[channel]
	if !ok {
		return nil
	}
	cs.refs--
	if cs.refs <= 0 {
		delete(v.subs, channel)
		v.pubsubM.Lock()
		err := v.pubsub.Unsubscribe(ctx, channel)
		v.pubsubM.Unlock()
		if err != nil {
			return fmt.Errorf("storage: valkey UNSUBSCRIBE %s: %w", channel, err)
		}
	}
	return nil
}

type valkeySubscription struct {
	v       *Valkey
	channel string
	id      int
}

func (s *valkeySubscription) Unsubscribe() {
	s.v.subMu.Lock()
	defer s.v.subMu.Unlock()
	if cs, ok := s.v.subs[s.channel]; ok {
		delete(cs.callbacks, s.id)
	}
}

func (v *Valkey) Subscribe(channel string, cb Callback) Subscription {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	cs, ok := v.subs[channel]
	if !ok {
		// CreateSubscription should have been called first; tolerate the
		// out-of-order case by lazily registering the bookkeeping entry.
		cs = &valkeyChannelSubs{callbacks: make(map[int]Callback)}
		v.subs[channel] = cs
	}
	id := cs.nextID
	cs.nextID++
	cs.callbacks[id] = cb
	return &valkeySubscription{v: v, channel: channel, id: id}
}

func (v *Valkey) ChannelSubscriberCount(channel string) int {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	cs, ok := v.subs[channel]
	if !ok {
		return 0
	}
	return len(cs.callbacks)
}

// loop drains the shared subscription connection and fans each message out
// to every local callback registered on its channel.
func (v *Valkey) loop(ctx context.Context) {
	v.pubsubM.Lock()
	ch := v.pubsub.Channel()
	v.pubsubM.Unlock()

	for msg := range ch {
		v.subMu.Lock()
		cs, ok := v.subs[msg.Channel]
		var cbs []Callback
		if ok {
			cbs = make([]Callback, 0, len(cs.callbacks))
			for _, cb := range cs.callbacks {
				cbs = append(cbs, cb)
			}
		}
		v.subMu.Unlock()

		payload := []byte(msg.Payload)
		for _, cb := range cbs {
			cb(payload)
		}
	}
}

func ceilSeconds(d time.Duration) time.Duration {
	secs := math.Ceil(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
