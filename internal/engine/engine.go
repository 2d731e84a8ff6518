// Package engine implements the request engine (C9): the state machine
// that ties registry selection, rate limiting, retry/timeout, provider
// adapters, history, and the session bus into a single prompt() or
// stream() call.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-gateway/internal/config"
	"github.com/upb/ai-gateway/internal/gwerrors"
	"github.com/upb/ai-gateway/internal/history"
	"github.com/upb/ai-gateway/internal/provider"
	"github.com/upb/ai-gateway/internal/registry"
	"github.com/upb/ai-gateway/internal/session"
	"github.com/upb/ai-gateway/internal/telemetry"
)

// Engine orchestrates one gateway request end to end.
type Engine struct {
	reg         *registry.Registry
	hist        *history.Store
	bus         *session.Bus
	clients     map[registry.ProviderId]provider.Client
	baseOptions config.Options
	logger      *zap.Logger
	metrics     *telemetry.Metrics
}

// New constructs an Engine. baseOptions is the already-merged
// defaults+engine-level layer of the §4.10 chain; each request merges its
// own Options on top before resolving. metrics may be nil.
func New(reg *registry.Registry, hist *history.Store, bus *session.Bus, clients map[registry.ProviderId]provider.Client, baseOptions config.Options, metrics *telemetry.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{reg: reg, hist: hist, bus: bus, clients: clients, baseOptions: baseOptions, metrics: metrics, logger: logger}
}

// Request is one prompt() or stream() call's input.
type Request struct {
	SessionID   string
	Prompt      string
	Context     string
	Temperature *float64
	MaxTokens   *int
	// Models is the candidate list, tried in order.
	Models []registry.ModelRef
	// Options is the per-request override layer of the §4.10 chain.
	Options config.Options
}

// Response is a completed non-streaming call's result.
type Response struct {
	Text      string
	Result    provider.ResponseResult
	SessionID string
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the runtime's random source is broken;
		// fall back to a plain v4 rather than leaving the event unidentified.
		return uuid.NewString()
	}
	return id.String()
}

// newSessionID mints a SessionId for a request that arrived without one.
// Per §3, a session is created on first prompt; uses the same time-ordered
// UUIDv7 generator as SSE event ids.
func newSessionID() string {
	return newEventID()
}

func remainingCandidates(all []registry.ModelRef, tried map[string]bool) []registry.ModelRef {
	out := make([]registry.ModelRef, 0, len(all))
	for _, c := range all {
		if !tried[c.Key()] {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) resolveOptions(req Request) (config.Resolved, error) {
	return config.Resolve(config.Merge(e.baseOptions, req.Options))
}

func (e *Engine) loadHistory(ctx context.Context, sessionID string) ([]provider.HistoryTurn, error) {
	if sessionID == "" {
		return nil, nil
	}
	turns, err := e.hist.Range(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]provider.HistoryTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, provider.HistoryTurn{Prompt: t.Prompt, Response: t.Response})
	}
	return out, nil
}

func chatOptions(req Request, hist []provider.HistoryTurn) provider.ChatOptions {
	return provider.ChatOptions{
		Context:     req.Context,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		History:     hist,
	}
}

// Execute runs a non-streaming prompt() call: select → rate-check → call
// (with retry/timeout) → on a retryable/fallback failure, mark the model
// errored and try the next candidate; on success, mark it ready and append
// the turn to history. Returns PROVIDER_NO_MODELS_AVAILABLE once every
// candidate has been tried and failed.
func (e *Engine) Execute(ctx context.Context, req Request) (*Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ai-gateway.request")
	defer span.End()

	resp, err := e.execute(ctx, req)
	if err != nil {
		e.metrics.RecordTerminalError(string(gwerrors.CodeOf(err)))
	}
	return resp, err
}

func (e *Engine) execute(ctx context.Context, req Request) (*Response, error) {
	cfg, err := e.resolveOptions(req)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	hist, err := e.loadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	opts := chatOptions(req, hist)

	tried := make(map[string]bool, len(req.Models))
	requestTimeout := time.Duration(cfg.RequestTimeoutMs) * time.Millisecond
	retryInterval := time.Duration(cfg.RetryIntervalMs) * time.Millisecond
	var lastErr error

	for {
		now := nowMs()
		_, selectSpan := telemetry.Tracer().Start(ctx, "select")
		sel, err := e.reg.SelectModel(ctx, remainingCandidates(req.Models, tried), now)
		selectSpan.End()
		if err != nil {
			if gwerrors.CodeOf(err) == gwerrors.CodeNoModelsAvailable && lastErr != nil {
				err = gwerrors.New(gwerrors.CodeNoModelsAvailable, "no ready models in candidate list", lastErr)
			}
			return nil, err
		}
		e.metrics.RecordSelection(string(sel.Provider), sel.Name)

		_, rateSpan := telemetry.Tracer().Start(ctx, "rate_check")
		rateErr := e.reg.CheckAndIncrementRate(ctx, sel, now)
		rateSpan.End()
		if rateErr != nil {
			lastErr = rateErr
			e.metrics.RecordRateLimitRejection(string(sel.Provider), sel.Name)
			tried[sel.Key()] = true
			continue
		}

		client, ok := e.clients[sel.Provider]
		if !ok {
			return nil, gwerrors.New(gwerrors.CodeProviderNotFound, "no adapter wired for provider "+string(sel.Provider), nil)
		}

		opStart := now
		callCtx, callSpan := telemetry.Tracer().Start(ctx, "call")
		var resp provider.ContentResponse
		callErr := callWithRetry(callCtx, cfg.RetryMax, retryInterval, func(ctx context.Context) (bool, error) {
			cctx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			r, err := client.Request(cctx, sel.Name, req.Prompt, opts)
			if err != nil {
				if isTimeoutDeadline(cctx) {
					return true, gwerrors.New(gwerrors.CodeProviderRequestTimeout, "provider request timed out", err)
				}
				return false, err
			}
			resp = r
			return false, nil
		})
		callSpan.End()

		if callErr != nil {
			gerr := classifyProviderErr(callErr)
			if gwerrors.IsRetryableFallback(gerr) {
				if merr := e.reg.MarkError(ctx, sel, gerr.Code, opStart); merr != nil {
					return nil, merr
				}
				lastErr = gerr
				e.metrics.RecordFallback(string(sel.Provider), sel.Name, string(gerr.Code))
				tried[sel.Key()] = true
				continue
			}
			return nil, gerr
		}

		if err := e.reg.MarkReady(ctx, sel, opStart); err != nil {
			return nil, err
		}
		if err := e.hist.Push(ctx, sessionID, history.Turn{Prompt: req.Prompt, Response: resp.Text}); err != nil {
			return nil, err
		}
		return &Response{Text: resp.Text, Result: resp.Result, SessionID: sessionID}, nil
	}
}
