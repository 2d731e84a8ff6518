// Package testprovider is a scriptable fake provider.Client used by engine
// tests to exercise fallback, retry, and streaming without a network call.
package testprovider

import (
	"context"
	"sync/atomic"

	"github.com/upb/ai-gateway/internal/provider"
)

// Step describes one scripted outcome for a single Request or Stream call.
type Step struct {
	// Err, if set, is returned (Request) or sent as the sole StreamChunk
	// (Stream) and the call fails.
	Err error
	// Text is the full response text for Request, or joined chunk text for
	// Stream (split on Chunks if provided).
	Text   string
	Chunks []string
	Result provider.ResponseResult
}

// Provider replays a fixed script of Steps in order, one per call; calls
// beyond the script repeat the last step.
type Provider struct {
	name  string
	steps []Step
	calls int32
}

// New constructs a scripted Provider named name.
func New(name string, steps ...Step) *Provider {
	return &Provider{name: name, steps: steps}
}

func (p *Provider) Name() string { return p.name }

// Calls reports how many Request/Stream calls have been made so far.
func (p *Provider) Calls() int { return int(atomic.LoadInt32(&p.calls)) }

func (p *Provider) next() Step {
	n := int(atomic.AddInt32(&p.calls, 1)) - 1
	if n >= len(p.steps) {
		n = len(p.steps) - 1
	}
	if n < 0 {
		return Step{}
	}
	return p.steps[n]
}

func (p *Provider) Request(ctx context.Context, model, prompt string, opts provider.ChatOptions) (provider.ContentResponse, error) {
	step := p.next()
	if step.Err != nil {
		return provider.ContentResponse{}, step.Err
	}
	result := step.Result
	if result == "" {
		result = provider.ResultComplete
	}
	return provider.ContentResponse{Text: step.Text, Result: result}, nil
}

func (p *Provider) Stream(ctx context.Context, model, prompt string, opts provider.ChatOptions) (<-chan provider.StreamChunk, error) {
	step := p.next()
	chunks := make(chan provider.StreamChunk, len(step.Chunks)+1)

	go func() {
		defer close(chunks)
		if step.Err != nil {
			provider.SendChunk(ctx, chunks, provider.StreamChunk{Err: step.Err})
			return
		}
		pieces := step.Chunks
		if len(pieces) == 0 && step.Text != "" {
			pieces = []string{step.Text}
		}
		for _, piece := range pieces {
			if !provider.SendChunk(ctx, chunks, provider.StreamChunk{Text: piece}) {
				return
			}
		}
	}()

	return chunks, nil
}
