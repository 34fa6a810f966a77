// Package auth implements the account lifecycle: registration, confirmation,
// login, password recovery, two-factor authentication and the freeze/restore
// lifecycle, plus the session checks used by the HTTP gate.
package auth

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"socialhub/internal/apperr"
	"socialhub/internal/identity"
	"socialhub/internal/metrics"
	"socialhub/internal/models"
	"socialhub/internal/notify"
	"socialhub/internal/otp"
	"socialhub/internal/repository"
	"socialhub/internal/security"
	"socialhub/internal/storage"
	"socialhub/internal/token"
)

// Deps are the collaborators of a Manager.
type Deps struct {
	Accounts repository.Store
	Tokens   *token.Service
	Hasher   security.Hasher
	OTP      *otp.Engine
	Notifier notify.Publisher
	Identity identity.Verifier
	Storage  storage.Storage
	Logger   *zap.Logger
	AppName  string
	// UploadCheckDelay is how long after issuing a presigned profile image link
	// the upload is checked. Zero disables the check.
	UploadCheckDelay time.Duration
	Clock            func() time.Time
}

// Manager runs the account lifecycle operations.
type Manager struct {
	accounts    *repository.Repository[models.Account]
	tokens      *token.Service
	hasher      security.Hasher
	otp         *otp.Engine
	notifier    notify.Publisher
	identity    identity.Verifier
	storage     storage.Storage
	logger      *zap.Logger
	app         string
	uploadDelay time.Duration
	now         func() time.Time
}

// NewManager returns a Manager over d.
func NewManager(d Deps) *Manager {
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		accounts:    repository.New[models.Account](d.Accounts, true).WithClock(now),
		tokens:      d.Tokens,
		hasher:      d.Hasher,
		otp:         d.OTP,
		notifier:    d.Notifier,
		identity:    d.Identity,
		storage:     d.Storage,
		logger:      logger,
		app:         d.AppName,
		uploadDelay: d.UploadCheckDelay,
		now:         now,
	}
}

// Session is an authenticated request: the freshly loaded account and the
// claims of the token that proved it.
type Session struct {
	Account *models.Account
	Claims  *token.Claims
}

func (m *Manager) observe(op string, err error) {
	metrics.AuthOperationsTotal.WithLabelValues(op, metrics.Outcome(err)).Inc()
}

// issueCode generates a numeric code and returns it with its digest.
func (m *Manager) issueCode(ctx context.Context) (string, string, error) {
	code, err := m.otp.Numeric()
	if err != nil {
		return "", "", err
	}
	digest, err := m.hasher.Hash(ctx, code)
	if err != nil {
		return "", "", err
	}
	return code, digest, nil
}

func isMissing(err error) bool {
	return errors.Is(err, repository.ErrNoDocument)
}

// Authenticate resolves the "<Level> <token>" header into a Session. Every
// call re-reads the account.
func (m *Manager) Authenticate(ctx context.Context, header string, kind token.Kind) (*Session, error) {
	claims, err := m.tokens.Decode(ctx, header, kind)
	if err != nil {
		return nil, err
	}
	id, err := claims.Account()
	if err != nil {
		return nil, apperr.BadRequest("Invalid token").Wrap(err)
	}
	acc, err := m.accounts.FindByID(ctx, id)
	if isMissing(err) {
		return nil, apperr.BadRequest("not register account")
	}
	if err != nil {
		return nil, err
	}
	if token.Stale(acc.ChangeCredentialTime, claims) {
		return nil, apperr.Unauthorized("Invalid or old login credential")
	}
	return &Session{Account: acc, Claims: claims}, nil
}

// Authorize is Authenticate plus a role check.
func (m *Manager) Authorize(ctx context.Context, header string, kind token.Kind, roles ...models.Role) (*Session, error) {
	sess, err := m.Authenticate(ctx, header, kind)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if sess.Account.Role == r {
			return sess, nil
		}
	}
	return nil, apperr.Forbidden("You do not have permission to access this resource")
}

func byID(id primitive.ObjectID) bson.M {
	return bson.M{"_id": id}
}
