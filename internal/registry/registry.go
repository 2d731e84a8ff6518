package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/ai-gateway/internal/gwerrors"
	"github.com/upb/ai-gateway/internal/storage"
)

// Registry is the shared model directory: candidate selection, rate
// limiting, and error/restore bookkeeping, all proxied through Storage so
// every process in a deployment sees the same ModelState.
type Registry struct {
	store          storage.Storage
	logger         *zap.Logger
	defaultLimits  ModelLimits
	defaultRestore ModelRestore
}

// New constructs a Registry. defaultLimits/defaultRestore are the
// engine-level fallbacks used for any ModelRef without its own overrides.
func New(store storage.Storage, defaultLimits ModelLimits, defaultRestore ModelRestore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger, defaultLimits: defaultLimits, defaultRestore: defaultRestore}
}

func stateKey(ref ModelRef) string {
	return fmt.Sprintf("model:%s:%s", ref.Provider, ref.Name)
}

func (r *Registry) limitsFor(ref ModelRef) ModelLimits {
	if ref.Limits != nil {
		return *ref.Limits
	}
	return r.defaultLimits
}

func (r *Registry) restoreFor(ref ModelRef) ModelRestore {
	if ref.Restore != nil {
		return *ref.Restore
	}
	return r.defaultRestore
}

func (r *Registry) load(ctx context.Context, ref ModelRef) (State, error) {
	raw, ok, err := r.store.ValueGet(ctx, stateKey(ref))
	if err != nil {
		return State{}, gwerrors.New(gwerrors.CodeStorageGetError, "load model state", err)
	}
	if !ok {
		return readyState(), nil
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, gwerrors.New(gwerrors.CodeStorageGetError, "decode model state", err)
	}
	return s, nil
}

func (r *Registry) save(ctx context.Context, ref ModelRef, s State) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return gwerrors.New(gwerrors.CodeStorageSetError, "encode model state", err)
	}
	if err := r.store.ValueSet(ctx, stateKey(ref), raw); err != nil {
		return gwerrors.New(gwerrors.CodeStorageSetError, "save model state", err)
	}
	return nil
}

// SelectModel returns the first candidate, in order, that is ready — either
// because it was never marked errored or because its restore deadline has
// elapsed. A candidate found to have crossed its restore deadline is
// persisted back to ready before being returned (the restore transition
// itself). Returns PROVIDER_NO_MODELS_AVAILABLE if none qualify.
func (r *Registry) SelectModel(ctx context.Context, candidates []ModelRef, nowMs int64) (ModelRef, error) {
	for _, cand := range candidates {
		s, err := r.load(ctx, cand)
		if err != nil {
			return ModelRef{}, err
		}
		if s.Status == StatusReady {
			return cand, nil
		}
		if s.restoreDeadlineElapsed(nowMs, r.restoreFor(cand)) {
			restored := readyState()
			restored.TimestampMs = nowMs
			if err := r.save(ctx, cand, restored); err != nil {
				return ModelRef{}, err
			}
			return cand, nil
		}
	}
	return ModelRef{}, gwerrors.New(gwerrors.CodeNoModelsAvailable, "no ready models in candidate list", nil)
}

// CheckAndIncrementRate applies the fixed-window rate limiter for ref,
// failing with PROVIDER_RATE_LIMIT (carrying waitSeconds) when the window's
// budget is exhausted.
func (r *Registry) CheckAndIncrementRate(ctx context.Context, ref ModelRef, nowMs int64) error {
	limits := r.limitsFor(ref)
	s, err := r.load(ctx, ref)
	if err != nil {
		return err
	}

	if uint64(nowMs-s.Rate.WindowStartMs) >= limits.Rate.WindowMs {
		s.Rate.Count = 1
		s.Rate.WindowStartMs = nowMs
	} else if s.Rate.Count >= limits.Rate.Max {
		waitMs := s.Rate.WindowStartMs + int64(limits.Rate.WindowMs) - nowMs
		waitSeconds := (waitMs + 999) / 1000
		return gwerrors.New(gwerrors.CodeProviderRateLimit, "rate limit exceeded", nil).
			WithDetail("waitSeconds", waitSeconds)
	} else {
		s.Rate.Count++
	}

	return r.save(ctx, ref, s)
}

// MarkError transitions ref into the error state for code, stamped at
// opStartMs, honoring the state-write rule: the write is skipped if a
// newer stamp is already on record. code must be in the retryable/fallback
// category (ReasonForCode returns ok=false otherwise, and MarkError is a
// no-op).
func (r *Registry) MarkError(ctx context.Context, ref ModelRef, code gwerrors.Code, opStartMs int64) error {
	reason, ok := ReasonForCode(code)
	if !ok {
		return nil
	}

	s, err := r.load(ctx, ref)
	if err != nil {
		return err
	}
	if s.TimestampMs >= opStartMs {
		return nil
	}

	return r.save(ctx, ref, State{
		Rate:        s.Rate,
		Status:      StatusError,
		Reason:      reason,
		TimestampMs: opStartMs,
	})
}

// MarkReady force-transitions ref to ready, stamped at opStartMs, subject to
// the same last-writer-wins rule as MarkError. Used when a provider call
// succeeds against a model that was previously in a (possibly stale) error
// state from another process.
func (r *Registry) MarkReady(ctx context.Context, ref ModelRef, opStartMs int64) error {
	s, err := r.load(ctx, ref)
	if err != nil {
		return err
	}
	if s.TimestampMs >= opStartMs {
		return nil
	}
	next := readyState()
	next.Rate = s.Rate
	next.TimestampMs = opStartMs
	return r.save(ctx, ref, next)
}
