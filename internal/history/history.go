// Package history implements the per-session chat history store (C7): an
// append-only, TTL-bound sequence of prompt/response turns keyed by
// session id.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/upb/ai-gateway/internal/gwerrors"
	"github.com/upb/ai-gateway/internal/storage"
)

// Turn is one prompt/response pair in a session's history.
type Turn struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// Store is the history capability backed by storage.Storage.
type Store struct {
	store storage.Storage
	ttl   time.Duration
}

// New constructs a history Store. ttl is historyExpiration, the session
// hash TTL refreshed on every push.
func New(store storage.Storage, ttl time.Duration) *Store {
	return &Store{store: store, ttl: ttl}
}

func key(sessionID string) string {
	return fmt.Sprintf("history:%s", sessionID)
}

// Push appends turn to sessionID's history, refreshing the session's TTL.
// The event id is a time-ordered UUIDv7, so lexical key order equals append
// order (see Range).
func (s *Store) Push(ctx context.Context, sessionID string, turn Turn) error {
	raw, err := json.Marshal(turn)
	if err != nil {
		return gwerrors.New(gwerrors.CodeStorageListPushError, "encode chat turn", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return gwerrors.New(gwerrors.CodeStorageListPushError, "generate turn id", err)
	}
	if err := s.store.HashSet(ctx, key(sessionID), id.String(), raw, s.ttl, false); err != nil {
		return gwerrors.New(gwerrors.CodeStorageListPushError, "append chat turn", err)
	}
	return nil
}

// Range returns sessionID's turns in append order. A session that has
// expired (or never existed) returns an empty slice, not an error.
func (s *Store) Range(ctx context.Context, sessionID string) ([]Turn, error) {
	fields, err := s.store.HashGetAll(ctx, key(sessionID))
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeHistoryGetError, "range chat history", err)
	}

	ids := make([]string, 0, len(fields))
	for id := range fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	turns := make([]Turn, 0, len(ids))
	for _, id := range ids {
		var t Turn
		if err := json.Unmarshal(fields[id], &t); err != nil {
			return nil, gwerrors.New(gwerrors.CodeHistoryGetError, "decode chat turn", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}
