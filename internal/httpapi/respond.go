package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/ai-gateway/internal/gwerrors"
)

// errorBody is the JSON shape every error response carries, keyed by the
// gwerrors.Code taxonomy rather than a generic HTTP error string.
type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encode response", zap.Error(err))
	}
}

// writeError maps err to its gwerrors status/code and writes the JSON
// error body. Unrecognized errors fall back to 500/INTERNAL_ERROR without
// leaking the underlying message.
func writeError(w http.ResponseWriter, err error, logger *zap.Logger) {
	code := gwerrors.CodeOf(err)
	status := gwerrors.StatusOf(err)
	body := errorBody{Code: string(code), Message: err.Error()}

	if gerr, ok := err.(*gwerrors.Error); ok {
		body.Details = gerr.Details
	}
	if code == "" {
		body.Code = "INTERNAL_ERROR"
		body.Message = "an internal error occurred"
		logger.Error("unhandled error", zap.Error(err))
	}
	writeJSON(w, status, body, logger)
}
