// Package api exposes the account lifecycle over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"socialhub/internal/apperr"
	"socialhub/internal/auth"
	"socialhub/internal/middleware"
)

// Handler serves the /auth and /user routes.
type Handler struct {
	manager *auth.Manager
	logger  *zap.Logger
}

func NewHandler(manager *auth.Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// response is the success envelope.
type response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) respond(w http.ResponseWriter, status int, message string, data any) {
	apperr.WriteJSON(w, status, response{Message: message, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	apperr.Write(w, h.logger.With(zap.String("request_id", middleware.RequestIDFromContext(r.Context()))), err)
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.BadRequest("Invalid request payload").Wrap(err)
}

func session(r *http.Request) *auth.Session {
	sess, _ := middleware.SessionFromContext(r.Context())
	return sess
}

// logoutStatus answers 201 when only the current token was revoked.
func logoutStatus(flag auth.LogoutFlag) int {
	if flag == auth.LogoutAll {
		return http.StatusOK
	}
	return http.StatusCreated
}
