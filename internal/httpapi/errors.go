package httpapi

import "github.com/upb/ai-gateway/internal/gwerrors"

func authRequiredErr() error {
	return gwerrors.New(gwerrors.CodeAuthRequired, "missing or malformed bearer token", nil)
}

func authInvalidTokenErr(cause error) error {
	return gwerrors.New(gwerrors.CodeAuthInvalidToken, "invalid bearer token", cause)
}

func badRequest(message string, cause error) error {
	return gwerrors.New(gwerrors.CodeBadRequest, message, cause)
}
