package apperr

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Issue is one failed rule of a request field.
type Issue struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

// FieldError groups the issues of one request part (body, params, query).
type FieldError struct {
	Key    string  `json:"key"`
	Issues []Issue `json:"issues"`
}

// Validation reports malformed input.
func Validation(fields []FieldError) *Error {
	return &Error{Kind: KindBadRequest, Message: "validation Error", Status: http.StatusBadRequest, Fields: fields}
}

type envelope struct {
	Message          string       `json:"message"`
	Data             any          `json:"data,omitempty"`
	ValidationErrors []FieldError `json:"validationErrors,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Write renders err as the error envelope. Untyped errors are logged and
// answered with a bare 500.
func Write(w http.ResponseWriter, logger *zap.Logger, err error) {
	e, ok := From(err)
	if !ok {
		if logger != nil {
			logger.Error("unhandled error", zap.Error(err))
		}
		WriteJSON(w, http.StatusInternalServerError, envelope{Message: "Internal server error"})
		return
	}
	if e.Err != nil && logger != nil {
		logger.Debug("request failed", zap.String("kind", e.Kind.String()), zap.Error(e.Err))
	}
	WriteJSON(w, StatusCode(e), envelope{Message: e.Message, Data: e.Data, ValidationErrors: e.Fields})
}
