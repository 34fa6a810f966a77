package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"socialhub/internal/apperr"
	"socialhub/internal/auth"
	"socialhub/internal/models"
	"socialhub/internal/token"
)

// Authenticator resolves an Authorization header into a session.
type Authenticator interface {
	Authenticate(ctx context.Context, header string, kind token.Kind) (*auth.Session, error)
	Authorize(ctx context.Context, header string, kind token.Kind, roles ...models.Role) (*auth.Session, error)
}

type sessionKey struct{}

// SessionFromContext returns the session stored by the gate.
func SessionFromContext(ctx context.Context) (*auth.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*auth.Session)
	return sess, ok && sess != nil
}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *auth.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// Gate guards routes behind a token of a given kind.
type Gate struct {
	auth   Authenticator
	logger *zap.Logger
}

func NewGate(a Authenticator, logger *zap.Logger) *Gate {
	return &Gate{auth: a, logger: logger}
}

// Authentication requires a valid, unrevoked, non-stale token of kind.
func (g *Gate) Authentication(kind token.Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := g.auth.Authenticate(r.Context(), r.Header.Get("Authorization"), kind)
			if err != nil {
				apperr.Write(w, g.logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// Authorization is Authentication restricted to roles.
func (g *Gate) Authorization(kind token.Kind, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := g.auth.Authorize(r.Context(), r.Header.Get("Authorization"), kind, roles...)
			if err != nil {
				apperr.Write(w, g.logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}
