// Package provider defines the uniform provider adapter capability (C5):
// request/stream against a vendor's wire format, translated to and from the
// gateway's canonical shapes.
package provider

import "context"

// ResponseResult classifies how a non-streaming response completed.
type ResponseResult string

const (
	ResultComplete            ResponseResult = "COMPLETE"
	ResultIncompleteMaxTokens ResponseResult = "INCOMPLETE_MAX_TOKENS"
	ResultIncompleteUnknown   ResponseResult = "INCOMPLETE_UNKNOWN"
)

// HistoryTurn is the wire-shape-agnostic prompt/response pair an adapter
// folds into conversation context.
type HistoryTurn struct {
	Prompt   string
	Response string
}

// ChatOptions carries the per-call knobs the engine resolved from C10.
type ChatOptions struct {
	Context     string
	Temperature *float64
	MaxTokens   *int
	History     []HistoryTurn
}

// ContentResponse is a completed, non-streaming provider response.
type ContentResponse struct {
	Text   string
	Result ResponseResult
}

// StreamChunk is one increment of a streaming response. Exactly one of
// Text or Err is meaningful; Err, when set, is the adapter's best
// classification of the failure (typically a *gwerrors.Error) and the
// channel is closed immediately after it is sent.
type StreamChunk struct {
	Text string
	Err  error
}

// Client is the capability every vendor adapter (OpenAI, DeepSeek, Gemini,
// …) satisfies. Implementations own their HTTP connection pool and are
// expected to be safe for concurrent use.
type Client interface {
	// Name identifies the provider, matching registry.ProviderId.
	Name() string
	// Request performs one non-streaming call.
	Request(ctx context.Context, model, prompt string, opts ChatOptions) (ContentResponse, error)
	// Stream performs one streaming call. The returned channel yields text
	// deltas in arrival order and is always closed by the adapter, with at
	// most one final StreamChunk carrying a non-nil Err.
	Stream(ctx context.Context, model, prompt string, opts ChatOptions) (<-chan StreamChunk, error)
}

// SendChunk delivers sc on chunks unless ctx is already done, mirroring the
// cooperative-cancellation idiom used by streaming adapters.
func SendChunk(ctx context.Context, chunks chan<- StreamChunk, sc StreamChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case chunks <- sc:
		return true
	}
}
