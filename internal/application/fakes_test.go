package application

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/identity-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-service/internal/domain/repository"
	"github.com/oksasatya/identity-service/internal/infrastructure/memory"
	"github.com/oksasatya/identity-service/pkg/helpers"
)

const testFrontend = "http://app.test"

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendVerificationEmail(ctx context.Context, to, name, link string) error {
	return m.Called(ctx, to, name, link).Error(0)
}

func (m *mockMailer) SendPasswordResetEmail(ctx context.Context, to, name, link string) error {
	return m.Called(ctx, to, name, link).Error(0)
}

type stubValidator struct {
	ext   *ExternalIdentity
	err   error
	calls int
}

func (v *stubValidator) Validate(_ context.Context, _, _ string) (*ExternalIdentity, error) {
	v.calls++
	return v.ext, v.err
}

// flakyTokens fails access token minting on demand.
type flakyTokens struct {
	*helpers.JWTManager
	failAccess bool
}

func (f *flakyTokens) GenerateAccessToken(subject, email, role string) (helpers.AccessToken, error) {
	if f.failAccess {
		return helpers.AccessToken{}, errors.New("signer unavailable")
	}
	return f.JWTManager.GenerateAccessToken(subject, email, role)
}

type fakeSessions struct {
	mu   sync.Mutex
	data map[string]Session
	ttls map[string]time.Duration
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{data: map[string]Session{}, ttls: map[string]time.Duration{}}
}

func (f *fakeSessions) Put(_ context.Context, s Session, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[s.IdentityID] = s
	f.ttls[s.IdentityID] = ttl
	return nil
}

func (f *fakeSessions) Refresh(_ context.Context, id, name, avatarURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.data[id]
	if !ok {
		return nil
	}
	s.Name = name
	s.AvatarURL = avatarURL
	f.data[id] = s
	return nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.data[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, id)
	delete(f.ttls, id)
	return nil
}

type fakeIndex struct {
	mu      sync.Mutex
	docs    map[string]string
	removed []string
}

func newFakeIndex() *fakeIndex { return &fakeIndex{docs: map[string]string{}} }

func (f *fakeIndex) Index(_ context.Context, i *entity.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[i.ID().String()] = i.Name()
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, q string, size int) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for id, name := range f.docs {
		if strings.Contains(strings.ToLower(name), strings.ToLower(q)) && len(out) < size {
			out = append(out, map[string]any{"id": id, "name": name})
		}
	}
	return out, nil
}

type fakeStorage struct {
	uploads map[string]string
	deleted []string
}

func (f *fakeStorage) Upload(_ context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.uploads[objectPath] = contentType
	return "https://storage.test/bucket/" + objectPath, nil
}

func (f *fakeStorage) Delete(_ context.Context, url string) error {
	f.deleted = append(f.deleted, url)
	return nil
}

type fixture struct {
	store    *memory.Store
	cipher   *helpers.CredentialCipher
	tokens   *flakyTokens
	mailer   *mockMailer
	ext      *stubValidator
	sessions *fakeSessions
	index    *fakeIndex
	now      time.Time
	auth     *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := memory.NewStore()
	require.NoError(t, err)
	cipher, err := helpers.NewCredentialCipher("12345678901234567890123456789012", "1234567890123456")
	require.NoError(t, err)
	jwt, err := helpers.NewJWTManager(strings.Repeat("k", helpers.MinSigningKeyLen), "test")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		store:    store,
		cipher:   cipher,
		tokens:   &flakyTokens{JWTManager: jwt},
		mailer:   &mockMailer{},
		ext:      &stubValidator{},
		sessions: newFakeSessions(),
		index:    newFakeIndex(),
		now:      time.Now().UTC(),
	}
	f.auth = NewAuthService(store.Identities(), store.Links(), store.Transactor(), cipher, f.tokens, f.ext, f.mailer, logger, testFrontend+"/")
	f.auth.Sessions = f.sessions
	f.auth.Index = f.index
	f.auth.Now = func() time.Time { return f.now }
	return f
}

// seed stores a local identity with the given plaintext password.
func (f *fixture) seed(t *testing.T, name, email, password string) *entity.Identity {
	t.Helper()
	secret, err := f.cipher.Encrypt(password)
	require.NoError(t, err)
	i, err := entity.NewIdentity(name, email, "", "", secret, entity.RoleUser, f.now)
	require.NoError(t, err)
	require.NoError(t, f.store.Identities().Create(context.Background(), i))
	return i
}

func (f *fixture) all(t *testing.T) []*entity.Identity {
	t.Helper()
	list, err := f.store.Identities().List(context.Background(), repoQueryAll)
	require.NoError(t, err)
	return list
}

var repoQueryAll = repo.IdentityQuery{}
