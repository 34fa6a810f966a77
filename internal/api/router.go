package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"socialhub/internal/middleware"
	"socialhub/internal/models"
	"socialhub/internal/token"
)

// NewRouter registers every route on a new mux router. limiter may be nil.
func NewRouter(h *Handler, gate *middleware.Gate, limiter *middleware.RateLimiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.SecureHeaders, middleware.StructuredLog(h.logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h.respond(w, http.StatusOK, "ok", nil)
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	authRouter := router.PathPrefix("/auth").Subrouter()
	if limiter != nil {
		authRouter.Use(limiter.Middleware)
	}
	authRouter.HandleFunc("/signup", h.signup).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", h.login).Methods(http.MethodPost)
	authRouter.HandleFunc("/confirm-email", h.confirmEmail).Methods(http.MethodPatch)
	authRouter.HandleFunc("/gmail/signup", h.signupWithGmail).Methods(http.MethodPost)
	authRouter.HandleFunc("/gmail/login", h.loginWithGmail).Methods(http.MethodPost)
	authRouter.HandleFunc("/forgot-password", h.sendForgotCode).Methods(http.MethodPost)
	authRouter.HandleFunc("/forgot-password/verify", h.verifyForgotPassword).Methods(http.MethodPost)
	authRouter.HandleFunc("/forgot-password/reset", h.resetForgotPassword).Methods(http.MethodPost)

	access := gate.Authentication(token.Access)
	refresh := gate.Authentication(token.Refresh)
	admin := gate.Authorization(token.Access, models.RoleAdmin, models.RoleSuperAdmin)

	user := router.PathPrefix("/user").Subrouter()
	user.Handle("", access(http.HandlerFunc(h.profile))).Methods(http.MethodGet)
	user.Handle("/logout", access(http.HandlerFunc(h.logout))).Methods(http.MethodPost)
	user.Handle("/refresh-token", refresh(http.HandlerFunc(h.refreshToken))).Methods(http.MethodPost)
	user.Handle("/update-password", access(http.HandlerFunc(h.updatePassword))).Methods(http.MethodPatch)
	user.Handle("/update-email", access(http.HandlerFunc(h.updateEmail))).Methods(http.MethodPatch)
	user.Handle("/update-basic-info", access(http.HandlerFunc(h.updateBasicInfo))).Methods(http.MethodPatch)
	user.Handle("/profile-image", access(http.HandlerFunc(h.profileImage))).Methods(http.MethodPatch)
	user.Handle("/profile-cover-image", access(http.HandlerFunc(h.profileCoverImage))).Methods(http.MethodPatch)
	user.Handle("/enable-2fa", access(http.HandlerFunc(h.enableTwoFactor))).Methods(http.MethodPost)
	user.Handle("/verify-2fa", access(http.HandlerFunc(h.verifyTwoFactor))).Methods(http.MethodPost)
	user.Handle("/disable-2fa", access(http.HandlerFunc(h.disableTwoFactor))).Methods(http.MethodPost)
	user.Handle("/send-email", admin(http.HandlerFunc(h.sendEmail))).Methods(http.MethodPost)
	// Static segments are registered before {userId} so they win the match.
	user.Handle("/freeze-account", access(http.HandlerFunc(h.freezeAccount))).Methods(http.MethodDelete)
	user.Handle("/{userId}/freeze-account", access(http.HandlerFunc(h.freezeAccount))).Methods(http.MethodDelete)
	user.Handle("/{userId}/restore-account", admin(http.HandlerFunc(h.restoreAccount))).Methods(http.MethodPatch)
	user.Handle("/{userId}", admin(http.HandlerFunc(h.hardDelete))).Methods(http.MethodDelete)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.respond(w, http.StatusNotFound, "In-valid app routing", nil)
	})
	return router
}
