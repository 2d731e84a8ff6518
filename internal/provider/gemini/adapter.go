// Package gemini adapts Google's Gemini generateContent API to the
// gateway's provider.Client capability.
package gemini

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

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Config is the adapter's construction-time configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Adapter implements provider.Client for Gemini.
type Adapter struct {
	client *resty.Client
	apiKey string
}

// New constructs a Gemini Adapter.
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

func (a *Adapter) Name() string { return "gemini" }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type apiRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type apiResponse struct {
	Candidates []candidate `json:"candidates"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func buildContents(opts provider.ChatOptions, prompt string) []content {
	contents := make([]content, 0, len(opts.History)*2+1)
	for _, turn := range opts.History {
		contents = append(contents, content{Role: "user", Parts: []part{{Text: turn.Prompt}}})
		contents = append(contents, content{Role: "model", Parts: []part{{Text: turn.Response}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: prompt}}})
	return contents
}

func buildRequest(opts provider.ChatOptions, prompt string) apiRequest {
	req := apiRequest{Contents: buildContents(opts, prompt)}
	if opts.Context != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: opts.Context}}}
	}
	if opts.Temperature != nil || opts.MaxTokens != nil {
		req.GenerationConfig = &generationConfig{Temperature: opts.Temperature, MaxOutputTokens: opts.MaxTokens}
	}
	return req
}

func textOf(c candidate) string {
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func resultFor(finishReason string) provider.ResponseResult {
	switch finishReason {
	case "STOP", "":
		return provider.ResultComplete
	case "MAX_TOKENS":
		return provider.ResultIncompleteMaxTokens
	default:
		return provider.ResultIncompleteUnknown
	}
}

// Request performs one non-streaming generateContent call.
func (a *Adapter) Request(ctx context.Context, model, prompt string, opts provider.ChatOptions) (provider.ContentResponse, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("key", a.apiKey).
		SetBody(buildRequest(opts, prompt)).
		Post(fmt.Sprintf("/models/%s:generateContent", model))
	if err != nil {
		return provider.ContentResponse{}, gwerrors.New(gwerrors.CodeProviderResponseError, "gemini request failed", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return provider.ContentResponse{}, classifyHTTPError(resp.StatusCode(), resp.Body())
	}

	var parsed apiResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return provider.ContentResponse{}, gwerrors.New(gwerrors.CodeProviderResponseError, "gemini decode failed", err)
	}
	if len(parsed.Candidates) == 0 {
		return provider.ContentResponse{}, gwerrors.New(gwerrors.CodeProviderNoContent, "gemini returned no candidates", nil)
	}

	cand := parsed.Candidates[0]
	return provider.ContentResponse{Text: textOf(cand), Result: resultFor(cand.FinishReason)}, nil
}

// Stream performs a streaming generateContent call over SSE.
func (a *Adapter) Stream(ctx context.Context, model, prompt string, opts provider.ChatOptions) (<-chan provider.StreamChunk, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("key", a.apiKey).
		SetQueryParam("alt", "sse").
		SetHeader("Accept", "text/event-stream").
		SetBody(buildRequest(opts, prompt)).
		SetDoNotParseResponse(true).
		Post(fmt.Sprintf("/models/%s:streamGenerateContent", model))
	if err != nil {
		return nil, gwerrors.New(gwerrors.CodeProviderResponseError, "gemini stream request failed", err)
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

			var parsed apiResponse
			if err := json.Unmarshal([]byte(data), &parsed); err != nil {
				continue
			}
			if len(parsed.Candidates) == 0 {
				continue
			}
			if text := textOf(parsed.Candidates[0]); text != "" {
				sawContent = true
				if !provider.SendChunk(ctx, chunks, provider.StreamChunk{Text: text}) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			provider.SendChunk(ctx, chunks, provider.StreamChunk{Err: gwerrors.New(gwerrors.CodeProviderResponseError, "gemini stream read failed", err)})
			return
		}
		if !sawContent {
			provider.SendChunk(ctx, chunks, provider.StreamChunk{Err: gwerrors.New(gwerrors.CodeProviderNoContent, "gemini stream produced no content", nil)})
		}
	}()

	return chunks, nil
}

func classifyHTTPError(status int, body []byte) error {
	var parsed apiErrorBody
	_ = json.Unmarshal(body, &parsed)
	msg := parsed.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("gemini: HTTP %d", status)
	}

	switch {
	case status == http.StatusTooManyRequests || parsed.Error.Status == "RESOURCE_EXHAUSTED":
		return gwerrors.New(gwerrors.CodeProviderExceededQuota, msg, nil)
	default:
		return gwerrors.New(gwerrors.CodeProviderResponseError, msg, nil)
	}
}
