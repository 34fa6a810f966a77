package auth

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"

	"socialhub/internal/apperr"
	"socialhub/internal/identity"
	"socialhub/internal/models"
	"socialhub/internal/notify"
	"socialhub/internal/notify/notifytest"
	"socialhub/internal/otp"
	"socialhub/internal/repository/repotest"
	"socialhub/internal/security"
	"socialhub/internal/storage"
	"socialhub/internal/token"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeIdentity struct {
	profiles map[string]*identity.Profile
}

func (f *fakeIdentity) Verify(_ context.Context, idToken string) (*identity.Profile, error) {
	p, ok := f.profiles[idToken]
	if !ok {
		return nil, apperr.BadRequest("Failed to verify Google account")
	}
	return p, nil
}

type fakeStorage struct {
	mu       sync.Mutex
	existing map[string]bool
	deleted  []string
	purged   []string
	stored   map[string]string
	failPut  bool
}

func (f *fakeStorage) PresignUpload(_ context.Context, u storage.Upload) (storage.Presigned, error) {
	key := "socialhub/" + u.Path + "/" + u.OriginalName
	return storage.Presigned{URL: "https://s3.example.com/" + key, Key: key}, nil
}

func (f *fakeStorage) Put(_ context.Context, u storage.Upload, body io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return "", errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	key := "socialhub/" + u.Path + "/" + u.OriginalName
	f.stored[key] = string(data)
	return key, nil
}

func (f *fakeStorage) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeStorage) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[key], nil
}

func (f *fakeStorage) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, keys...)
	return nil
}

func (f *fakeStorage) DeleteByPrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, prefix)
	return nil
}

type harness struct {
	m     *Manager
	store *repotest.MemStore
	mail  *notifytest.Recorder
	idp   *fakeIdentity
	files *fakeStorage
	clock *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{now: time.Now().Truncate(time.Second)}
	keys := map[token.Level]token.KeyPair{
		token.LevelBearer: {Access: []byte("ua"), Refresh: []byte("ur")},
		token.LevelSystem: {Access: []byte("sa"), Refresh: []byte("sr")},
	}
	issuer := token.NewIssuer(keys, time.Hour, 24*time.Hour).WithClock(clock.Now)
	tokens := token.NewService(issuer, token.NewMongoLedger(repotest.NewMemStore("jti")))

	h := &harness{
		store: repotest.NewMemStore("email"),
		mail:  &notifytest.Recorder{},
		idp:   &fakeIdentity{profiles: map[string]*identity.Profile{}},
		files: &fakeStorage{existing: map[string]bool{}, stored: map[string]string{}},
		clock: clock,
	}
	h.m = NewManager(Deps{
		Accounts: h.store,
		Tokens:   tokens,
		Hasher:   security.NewBcrypt(bcrypt.MinCost),
		OTP:      otp.NewEngine("socialhub"),
		Notifier: h.mail,
		Identity: h.idp,
		Storage:  h.files,
		AppName:  "socialhub",
		Clock:    clock.Now,
	})
	return h
}

func (h *harness) lastCode(t *testing.T, name notify.Name) string {
	t.Helper()
	e, ok := h.mail.Last(name)
	require.True(t, ok, "no %s event", name)
	return e.OTP
}

// register signs up and confirms a local account.
func (h *harness) register(t *testing.T, email, password string) *models.Account {
	t.Helper()
	ctx := context.Background()
	acc, err := h.m.Signup(ctx, SignupInput{Username: "test user", Email: email, Password: password})
	require.NoError(t, err)
	require.NoError(t, h.m.ConfirmEmail(ctx, email, h.lastCode(t, notify.ConfirmEmail)))
	return acc
}

func (h *harness) login(t *testing.T, email, password string) token.Credentials {
	t.Helper()
	creds, err := h.m.Login(context.Background(), email, password)
	require.NoError(t, err)
	return creds
}

func (h *harness) session(t *testing.T, creds token.Credentials) *Session {
	t.Helper()
	sess, err := h.m.Authenticate(context.Background(), h.header(t, creds.AccessToken), token.Access)
	require.NoError(t, err)
	return sess
}

// header prefixes raw with the level its role requires.
func (h *harness) header(t *testing.T, raw string) string {
	t.Helper()
	for _, level := range []token.Level{token.LevelBearer, token.LevelSystem} {
		kp, err := h.m.tokens.Keys(level)
		require.NoError(t, err)
		if _, err := h.m.tokens.Verify(raw, kp.Access); err == nil {
			return string(level) + " " + raw
		}
		if _, err := h.m.tokens.Verify(raw, kp.Refresh); err == nil {
			return string(level) + " " + raw
		}
	}
	return "Bearer " + raw
}

func (h *harness) promote(t *testing.T, email string, role models.Role) {
	t.Helper()
	res, err := h.store.UpdateOne(context.Background(), bson.M{"email": email}, bson.M{"$set": bson.M{"role": role}})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Matched)
}

func (h *harness) raw(t *testing.T, email string) bson.M {
	t.Helper()
	doc, ok := h.store.Raw(bson.M{"email": email})
	require.True(t, ok, "no account %s", email)
	return doc
}
