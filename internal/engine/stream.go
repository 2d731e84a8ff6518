package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-gateway/internal/gwerrors"
	"github.com/upb/ai-gateway/internal/history"
	"github.com/upb/ai-gateway/internal/provider"
	"github.com/upb/ai-gateway/internal/sse"
	"github.com/upb/ai-gateway/internal/telemetry"
)

// StreamHandle is the caller's view of a running stream() call: Frames
// yields already-encoded SSE frames in order and is closed once the
// terminal end or error frame has been sent.
type StreamHandle struct {
	Frames    <-chan []byte
	SessionID string
}

// runStream drains one provider.Stream call, forwarding each text delta to
// emit as it arrives and enforcing a per-chunk inactivity timeout. The
// first chunk resets the classification from "request" to "stream"
// timeout/no-content, matching the distinct restore reasons in §4.6. It
// returns the full aggregated text (empty if nothing was ever emitted) so
// the caller can decide whether a failure is still retryable.
func (e *Engine) runStream(ctx context.Context, client provider.Client, model, prompt string, opts provider.ChatOptions, timeout time.Duration, emit func(text string)) (string, provider.ResponseResult, error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := client.Stream(cctx, model, prompt, opts)
	if err != nil {
		return "", "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var sb strings.Builder
	gotContent := false

	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				if !gotContent {
					return "", "", gwerrors.New(gwerrors.CodeProviderNoContent, "stream closed without content", nil)
				}
				return sb.String(), provider.ResultComplete, nil
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)

			if chunk.Err != nil {
				if !gotContent {
					return "", "", chunk.Err
				}
				return sb.String(), provider.ResultIncompleteUnknown, chunk.Err
			}

			gotContent = true
			sb.WriteString(chunk.Text)
			emit(chunk.Text)

		case <-timer.C:
			code := gwerrors.CodeProviderRequestTimeout
			if gotContent {
				code = gwerrors.CodeProviderStreamTimeout
			}
			err := gwerrors.New(code, "provider stream timed out", nil)
			if !gotContent {
				return "", "", err
			}
			return sb.String(), provider.ResultIncompleteUnknown, err

		case <-ctx.Done():
			return sb.String(), provider.ResultIncompleteUnknown, ctx.Err()
		}
	}
}

// emit encodes ev, forwards it to the caller's channel, and publishes it to
// the session bus so a dropped connection can resume and so other
// processes watching the same session see it live.
func (e *Engine) emit(ctx context.Context, out chan<- []byte, sessionID string, ev sse.Event) {
	frame, err := sse.Encode(ev)
	if err != nil {
		e.logger.Error("encode sse frame", zap.Error(err))
		return
	}
	select {
	case out <- frame:
	case <-ctx.Done():
		return
	}
	if err := e.bus.Publish(ctx, sessionID, ev); err != nil {
		e.logger.Error("publish sse frame", zap.Error(err))
	}
}

func (e *Engine) emitContent(ctx context.Context, out chan<- []byte, sessionID, text string) {
	e.emit(ctx, out, sessionID, sse.Event{Type: sse.EventContent, Data: sse.ContentData{Response: text}, ID: newEventID()})
}

func (e *Engine) emitEnd(ctx context.Context, out chan<- []byte, sessionID, full string, result provider.ResponseResult) {
	e.emit(ctx, out, sessionID, sse.Event{
		Type: sse.EventEnd,
		Data: sse.EndData{Response: sse.FinalResponse{Text: full, Result: string(result), SessionID: sessionID}},
		ID:   newEventID(),
	})
}

func (e *Engine) emitError(ctx context.Context, out chan<- []byte, sessionID string, err error) {
	e.emit(ctx, out, sessionID, sse.Event{
		Type: sse.EventError,
		Data: sse.ErrorData{Code: string(gwerrors.CodeOf(err)), Message: err.Error()},
		ID:   newEventID(),
	})
}

// ExecuteStream runs a streaming stream() call. It applies the same
// select/rate-check/call loop as Execute, but a candidate is only retried
// or failed over once no content has yet reached the caller — once the
// first delta has been forwarded, a mid-stream failure is terminal for
// this request (an error frame is sent) rather than silently replayed from
// a different model, since the caller has already seen a partial answer.
func (e *Engine) ExecuteStream(ctx context.Context, req Request) (*StreamHandle, error) {
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

	out := make(chan []byte, 16)
	requestTimeout := time.Duration(cfg.RequestTimeoutMs) * time.Millisecond

	go func() {
		ctx, span := telemetry.Tracer().Start(ctx, "ai-gateway.request.stream")
		defer span.End()
		defer close(out)
		tried := make(map[string]bool, len(req.Models))
		var lastErr error

		for {
			now := nowMs()
			_, selectSpan := telemetry.Tracer().Start(ctx, "select")
			sel, selErr := e.reg.SelectModel(ctx, remainingCandidates(req.Models, tried), now)
			selectSpan.End()
			if selErr != nil {
				if gwerrors.CodeOf(selErr) == gwerrors.CodeNoModelsAvailable && lastErr != nil {
					selErr = gwerrors.New(gwerrors.CodeNoModelsAvailable, "no ready models in candidate list", lastErr)
				}
				e.metrics.RecordTerminalError(string(gwerrors.CodeOf(selErr)))
				e.emitError(ctx, out, sessionID, selErr)
				return
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
				err := gwerrors.New(gwerrors.CodeProviderNotFound, "no adapter wired for provider "+string(sel.Provider), nil)
				e.metrics.RecordTerminalError(string(err.Code))
				e.emitError(ctx, out, sessionID, err)
				return
			}

			opStart := now
			streamCtx, streamSpan := telemetry.Tracer().Start(ctx, "stream")
			full, result, runErr := e.runStream(streamCtx, client, sel.Name, req.Prompt, opts, requestTimeout, func(text string) {
				e.emitContent(ctx, out, sessionID, text)
			})
			streamSpan.End()

			if runErr != nil {
				gerr := classifyProviderErr(runErr)
				retryable := gwerrors.IsRetryableFallback(gerr)
				if retryable {
					if merr := e.reg.MarkError(ctx, sel, gerr.Code, opStart); merr != nil {
						e.metrics.RecordTerminalError(string(gwerrors.CodeOf(merr)))
						e.emitError(ctx, out, sessionID, merr)
						return
					}
				}
				if full == "" && retryable {
					lastErr = gerr
					e.metrics.RecordFallback(string(sel.Provider), sel.Name, string(gerr.Code))
					tried[sel.Key()] = true
					continue
				}
				if full != "" {
					_ = e.hist.Push(ctx, sessionID, history.Turn{Prompt: req.Prompt, Response: full})
				}
				e.metrics.RecordTerminalError(string(gerr.Code))
				e.emitError(ctx, out, sessionID, gerr)
				return
			}

			if merr := e.reg.MarkReady(ctx, sel, opStart); merr != nil {
				e.emitError(ctx, out, sessionID, merr)
				return
			}
			if err := e.hist.Push(ctx, sessionID, history.Turn{Prompt: req.Prompt, Response: full}); err != nil {
				e.emitError(ctx, out, sessionID, err)
				return
			}
			e.emitEnd(ctx, out, sessionID, full, result)
			return
		}
	}()

	return &StreamHandle{Frames: out, SessionID: sessionID}, nil
}

// ResumeStream replays sessionID's stored frames after afterEventID and,
// if another process still holds the live channel (Bus.IsLive), subscribes
// to continue forwarding new frames until ctx is canceled. A session with
// no live producer ends the handle once the replay is drained.
func (e *Engine) ResumeStream(ctx context.Context, sessionID, afterEventID string) (*StreamHandle, error) {
	frames, err := e.bus.Replay(ctx, sessionID, afterEventID)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, len(frames)+16)
	for _, f := range frames {
		out <- f
	}

	if !e.bus.IsLive(sessionID) {
		close(out)
		return &StreamHandle{Frames: out, SessionID: sessionID}, nil
	}

	unsubscribe, err := e.bus.Subscribe(ctx, sessionID, func(frame []byte) {
		select {
		case out <- frame:
		case <-ctx.Done():
		}
	})
	if err != nil {
		close(out)
		return nil, err
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
		close(out)
	}()

	return &StreamHandle{Frames: out, SessionID: sessionID}, nil
}
