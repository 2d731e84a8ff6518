package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/upb/ai-gateway/internal/engine"
	"github.com/upb/ai-gateway/internal/registry"
)

var validate = validator.New()

// API binds the request engine to chi handlers. It is intentionally thin:
// request parsing, JWT-populated identity (unused by the engine itself),
// and JSON/SSE framing, nothing else.
type API struct {
	eng           *engine.Engine
	logger        *zap.Logger
	sessionHeader string
}

// NewAPI constructs an API bound to eng. sessionHeader is the header name
// carrying the stream's SessionId per §6 ("configurable name"); an empty
// value falls back to "x-session-id".
func NewAPI(eng *engine.Engine, sessionHeader string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessionHeader == "" {
		sessionHeader = "x-session-id"
	}
	return &API{eng: eng, sessionHeader: sessionHeader, logger: logger}
}

type promptRequest struct {
	SessionID   string   `json:"sessionId"`
	Prompt      string   `json:"prompt" validate:"required"`
	Context     string   `json:"context"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"maxTokens"`
	Models      []string `json:"models" validate:"required,min=1"`
}

type promptResponse struct {
	Text      string `json:"text"`
	Result    string `json:"result"`
	SessionID string `json:"sessionId"`
}

func parseModels(raw []string) ([]registry.ModelRef, error) {
	refs := make([]registry.ModelRef, 0, len(raw))
	for _, r := range raw {
		ref, err := registry.ParseModelRefString(r)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// HandlePrompt serves the non-streaming POST /prompt endpoint.
func (a *API) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid request body", err), a.logger)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, badRequest("validation failed", err), a.logger)
		return
	}

	models, err := parseModels(req.Models)
	if err != nil {
		writeError(w, badRequest("invalid models", err), a.logger)
		return
	}

	resp, err := a.eng.Execute(r.Context(), engine.Request{
		SessionID:   req.SessionID,
		Prompt:      req.Prompt,
		Context:     req.Context,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Models:      models,
	})
	if err != nil {
		writeError(w, err, a.logger)
		return
	}

	writeJSON(w, http.StatusOK, promptResponse{Text: resp.Text, Result: string(resp.Result), SessionID: resp.SessionID}, a.logger)
}

// HandleStream serves the streaming GET /stream endpoint. Query params:
// prompt, sessionId (optional), context (optional), models (comma
// separated "<provider>:<name>"). Frames are forwarded verbatim as
// already-encoded SSE bytes.
func (a *API) HandleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prompt := q.Get("prompt")
	if prompt == "" {
		writeError(w, badRequest("prompt is required", nil), a.logger)
		return
	}
	rawModels := q.Get("models")
	if rawModels == "" {
		writeError(w, badRequest("models is required", nil), a.logger)
		return
	}
	models, err := parseModels(strings.Split(rawModels, ","))
	if err != nil {
		writeError(w, badRequest("invalid models", err), a.logger)
		return
	}

	handle, err := a.eng.ExecuteStream(r.Context(), engine.Request{
		SessionID: q.Get("sessionId"),
		Prompt:    prompt,
		Context:   q.Get("context"),
		Models:    models,
	})
	if err != nil {
		writeError(w, err, a.logger)
		return
	}

	a.streamFrames(w, r, handle)
}

// HandleResume serves GET /resume: replay a session's stored frames after
// resumeEventId and, if still live, keep forwarding new ones.
func (a *API) HandleResume(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("sessionId")
	if sessionID == "" {
		writeError(w, badRequest("sessionId is required", nil), a.logger)
		return
	}

	handle, err := a.eng.ResumeStream(r.Context(), sessionID, q.Get("resumeEventId"))
	if err != nil {
		writeError(w, err, a.logger)
		return
	}

	a.streamFrames(w, r, handle)
}

func (a *API) streamFrames(w http.ResponseWriter, r *http.Request, handle *engine.StreamHandle) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, badRequest("streaming unsupported", nil), a.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(a.sessionHeader, handle.SessionID)
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case frame, ok := <-handle.Frames:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				a.logger.Debug("client disconnected mid-stream", zap.Error(err))
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleHealth reports the process as healthy once it can accept traffic.
func (a *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, a.logger)
}

