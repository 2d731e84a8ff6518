// Package deepseek adapts DeepSeek's OpenAI-compatible chat completions API
// to the gateway's provider.Client capability.
package deepseek

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/upb/ai-gateway/internal/gwerrors"
	"github.com/upb/ai-gateway/internal/provider"
)

const defaultBaseURL = "https://api.deepseek.com/v1"

// Config is the adapter's construction-time configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Adapter implements provider.Client for DeepSeek.
type Adapter struct {
	client *resty.Client
	apiKey string
}

// New constructs a DeepSeek Adapter.
func New(cfg Config) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Adapter{client: client, apiKey: cfg.APIKey}
}

func (a *Adapter) Name() string { return "deepseek" }

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type apiChoice struct {
	Index        int        `json:"index"`
	Message      apiMessage `json:"message"`
	Delta        apiMessage `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

type apiResponse struct {
	ID      string      `json:"id"`
	Choices []apiChoice `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func buildMessages(opts provider.ChatOptions, prompt string) []apiMessage {
	msgs := make([]apiMessage, 0, len(opts.History)*2+2)
	if opts.Context != "" {
		msgs = append(msgs, apiMessage{Role: "system", Content: opts.Context})
	}
	for _, turn := range opts.History {
		msgs = append(msgs, apiMessage{Role: "user", Content: turn.Prompt})
		msgs = append(msgs, apiMessage{Role: "assistant", Content: turn.Response})
	}
	msgs = append(msgs, apiMessage{Role: "user", Content: prompt})
	return msgs
}

func resultFor(finishReason string) provider.ResponseResult {
	switch finishReason {
	case "stop", "":
		return provider.ResultComplete
	case "length":
		return provider.ResultIncompleteMaxTokens
	default:
		return provider.ResultIncompleteUnknown
	}
}

// Request performs one non-streaming chat completion call.
func (a *Adapter) Request(ctx context.Context, model, prompt string, opts provider.ChatOptions) (provider.ContentResponse, error) {
	body := apiRequest{
		Model:       model,
		Messages:    buildMessages(opts, prompt),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(a.apiKey).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return provider.ContentResponse{}, gwerrors.New(gwerrors.CodeProviderResponseError, "deepseek request failed", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return provider.ContentResponse{}, classifyHTTPError(resp.StatusCode(), resp.Body())
	}

	var parsed apiResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return provider.ContentResponse{}, gwerrors.New(gwerrors.CodeProviderResponseError, "deepseek decode failed", err)
	}
	if len(parsed.Choices) == 0 {
		return provider.ContentResponse{}, gwerrors.New(gwerrors.CodeProviderNoContent, "deepseek returned no choices", nil)
	}

	choice := parsed.Choices[0]
	return provider.ContentResponse{Text: choice.Message.Content, Result: resultFor(choice.FinishReason)}, nil
}

// Stream performs a streaming chat completion over SSE.
func (a *Adapter) Stream(ctx context.Context, model, prompt string, opts provider.ChatOptions) (<-chan provider.StreamChunk, error) {
	body := apiRequest{
		Model:       model,
		Messages:    buildMessages(opts, prompt),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      true,
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(a.apiKey).
		SetHeader("Accept", "text/event-stream").
		SetBody(body).
		SetDoNotParseResponse(true).
		Post("/chat/completions")
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeProviderResponseError, "deepseek stream request failed", err)
	}
	if resp.StatusCode() != http.StatusOK {
		defer resp.RawBody().Close()
		buf := make([]byte, 4096)
		n, _ := resp.RawBody().Read(buf)
		return nil, classifyHTTPError(resp.StatusCode(), buf[:n])
	}

	chunks := make(chan provider.StreamChunk, 16)
	go func() {
		defer close(chunks)
		defer resp.RawBody().Close()

		scanner := bufio.NewScanner(resp.RawBody())
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		sawContent := false
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}

			var parsed apiResponse
			if err := json.Unmarshal([]byte(data), &parsed); err != nil {
				continue
			}
			if len(parsed.Choices) == 0 {
				continue
			}
			if delta := parsed.Choices[0].Delta.Content; delta != "" {
				sawContent = true
				if !provider.SendChunk(ctx, chunks, provider.StreamChunk{Text: delta}) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			provider.SendChunk(ctx, chunks, provider.StreamChunk{Err: gwerrors.New(gwerrors.CodeProviderResponseError, "deepseek stream read failed", err)})
			return
		}
		if !sawContent {
			provider.SendChunk(ctx, chunks, provider.StreamChunk{Err: gwerrors.New(gwerrors.CodeProviderNoContent, "deepseek stream produced no content", nil)})
		}
	}()

	return chunks, nil
}

func classifyHTTPError(status int, body []byte) error {
	var parsed apiErrorBody
	_ = json.Unmarshal(body, &parsed)
	msg := parsed.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("deepseek: HTTP %d", status)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return gwerrors.New(gwerrors.CodeProviderRateLimit, msg, nil)
	case strings.Contains(strings.ToLower(parsed.Error.Type), "quota") || strings.Contains(strings.ToLower(parsed.Error.Type), "balance"):
		return gwerrors.New(gwerrors.CodeProviderExceededQuota, msg, nil)
	default:
		return gwerrors.New(gwerrors.CodeProviderResponseError, msg, nil)
	}
}
