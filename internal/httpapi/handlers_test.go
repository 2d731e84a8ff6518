package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/ai-gateway/internal/config"
	"github.com/upb/ai-gateway/internal/engine"
	"github.com/upb/ai-gateway/internal/history"
	"github.com/upb/ai-gateway/internal/provider"
	"github.com/upb/ai-gateway/internal/provider/testprovider"
	"github.com/upb/ai-gateway/internal/registry"
	"github.com/upb/ai-gateway/internal/session"
	"github.com/upb/ai-gateway/internal/storage"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	store := storage.NewMemory(nil)
	opts := config.Defaults()
	resolved, err := config.Resolve(opts)
	require.NoError(t, err)

	reg := registry.New(store, resolved.Limits, resolved.Restore, nil)
	hist := history.New(store, time.Hour)
	bus := session.New(store, time.Hour)
	client := testprovider.New("openai", testprovider.Step{Text: "pong"})

	return engine.New(reg, hist, bus, map[registry.ProviderId]provider.Client{registry.ProviderOpenAI: client}, opts, nil, nil)
}

func TestHandlePrompt_Success(t *testing.T) {
	api := NewAPI(testEngine(t), "", nil)
	router := Routes(api, false, "", "", nil)

	body, _ := json.Marshal(map[string]interface{}{
		"prompt": "ping",
		"models": []string{"openai:gpt"},
	})
	req := httptest.NewRequest(http.MethodPost, "/prompt", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp promptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pong", resp.Text)
}

func TestHandlePrompt_RejectsMissingPrompt(t *testing.T) {
	api := NewAPI(testEngine(t), "", nil)
	router := Routes(api, false, "", "", nil)

	body, _ := json.Marshal(map[string]interface{}{"models": []string{"openai:gpt"}})
	req := httptest.NewRequest(http.MethodPost, "/prompt", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePrompt_RequiresAuthWhenEnabled(t *testing.T) {
	api := NewAPI(testEngine(t), "", nil)
	router := Routes(api, true, "supersecret", "ai-gateway", nil)

	body, _ := json.Marshal(map[string]interface{}{"prompt": "ping", "models": []string{"openai:gpt"}})
	req := httptest.NewRequest(http.MethodPost, "/prompt", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlePrompt_GeneratesSessionIDWhenAbsent(t *testing.T) {
	api := NewAPI(testEngine(t), "", nil)
	router := Routes(api, false, "", "", nil)

	body, _ := json.Marshal(map[string]interface{}{"prompt": "ping", "models": []string{"openai:gpt"}})
	req := httptest.NewRequest(http.MethodPost, "/prompt", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp promptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
}

func TestHandleStream_SetsSessionHeader(t *testing.T) {
	api := NewAPI(testEngine(t), "", nil)
	router := Routes(api, false, "", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/stream?prompt=ping&models=openai:gpt", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("x-session-id"))
}

func TestHandleStream_UsesConfiguredSessionHeaderName(t *testing.T) {
	api := NewAPI(testEngine(t), "x-custom-session", nil)
	router := Routes(api, false, "", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/stream?prompt=ping&models=openai:gpt", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("x-custom-session"))
	assert.Empty(t, rec.Header().Get("x-session-id"))
}

func TestHandleHealth_AlwaysOpen(t *testing.T) {
	api := NewAPI(testEngine(t), "", nil)
	router := Routes(api, true, "supersecret", "ai-gateway", nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
