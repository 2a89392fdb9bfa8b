package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/identity-service/internal/application"
	"github.com/oksasatya/identity-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-service/internal/domain/repository"
	"github.com/oksasatya/identity-service/internal/infrastructure/memory"
	"github.com/oksasatya/identity-service/internal/interface/middleware"
	"github.com/oksasatya/identity-service/pkg/apperr"
	"github.com/oksasatya/identity-service/pkg/helpers"
	"github.com/oksasatya/identity-service/pkg/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
	validation.Init()
}

type linkRecorder struct {
	mu    sync.Mutex
	links []string
}

func (l *linkRecorder) SendVerificationEmail(_ context.Context, _, _, link string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.links = append(l.links, link)
	return nil
}

func (l *linkRecorder) SendPasswordResetEmail(ctx context.Context, to, name, link string) error {
	return l.SendVerificationEmail(ctx, to, name, link)
}

func (l *linkRecorder) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.links[len(l.links)-1]
}

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   map[string]any  `json:"error"`
}

type server struct {
	engine *gin.Engine
	store  *memory.Store
	mail   *linkRecorder
}

func newServer(t *testing.T) *server {
	t.Helper()
	store, err := memory.NewStore()
	require.NoError(t, err)
	cipher, err := helpers.NewCredentialCipher("12345678901234567890123456789012", "1234567890123456")
	require.NoError(t, err)
	jwt, err := helpers.NewJWTManager(strings.Repeat("k", helpers.MinSigningKeyLen), "test")
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	mail := &linkRecorder{}

	authSvc := application.NewAuthService(store.Identities(), store.Links(), store.Transactor(), cipher, jwt, nil, mail, logger, "http://app.test")
	profileSvc := application.NewProfileService(store.Identities(), cipher, nil, nil, nil, logger)
	userSvc := application.NewUserService(store.Identities(), cipher, nil, nil, logger)

	authH := NewAuthHandler(authSvc, helpers.NewCookie("", false), logger)
	profileH := NewProfileHandler(profileSvc, logger)
	userH := NewUserHandler(userSvc, logger)
	requireAuth := middleware.Auth(jwt, nil)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	api := r.Group("/api")
	api.POST("/auth/register", authH.Register)
	api.POST("/auth/login", authH.Login)
	api.POST("/auth/external-login", authH.ExternalLogin)
	api.POST("/auth/refresh", authH.Refresh)
	api.GET("/auth/verify-email", authH.VerifyEmail)
	api.POST("/auth/logout", requireAuth, authH.Logout)
	api.GET("/profile", requireAuth, profileH.GetProfile)
	api.PUT("/profile", requireAuth, profileH.UpdateProfile)
	api.GET("/users", requireAuth, middleware.RequireRole(entity.RoleAdmin), userH.List)

	return &server{engine: r, store: store, mail: mail}
}

func (s *server) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (s *server) login(t *testing.T, email, password string) TokenResponse {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &tok))
	return tok
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusOf(application.ErrInvalidCredentials))
	assert.Equal(t, http.StatusNotFound, StatusOf(application.ErrIdentityNotFound))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(application.ErrInvalidExternalToken))
	assert.Equal(t, http.StatusConflict, StatusOf(repo.ErrConcurrencyConflict))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(apperr.New(apperr.KindDecryption, "bad padding")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Ann", "email": "ann@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.Success)
	assert.Equal(t, application.MsgRegistered, env.Message)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	// The link is forwarded verbatim, so the query string decodes back to the stored token.
	u, err := url.Parse(s.mail.last())
	require.NoError(t, err)
	w, env = s.do(t, http.MethodGet, "/api/auth/verify-email?"+u.RawQuery, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, application.MsgEmailVerified, env.Message)

	w, env = s.do(t, http.MethodGet, "/api/auth/verify-email?token=unknown", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)

	tok := s.login(t, "ann@example.com", "secret1")
	assert.NotEmpty(t, tok.AccessToken)
	assert.NotEmpty(t, tok.RefreshToken)

	w, env = s.do(t, http.MethodGet, "/api/profile", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile IdentityResponse
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "ann@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.True(t, profile.LocalCredential)
	assert.NotContains(t, string(env.Data), "credential")

	w, _ = s.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": tok.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": tok.RefreshToken})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, application.ErrInvalidRefreshToken.Message, env.Message)
}

func TestRefresh_BodySources(t *testing.T) {
	s := newServer(t)
	_, _ = s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Ann", "email": "ann@example.com", "password": "secret1"})
	tok := s.login(t, "ann@example.com", "secret1")

	// Chunked upload: no Content-Length, body only.
	b, err := json.Marshal(gin.H{"refresh_token": tok.RefreshToken})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", io.MultiReader(bytes.NewReader(b)))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var rotated TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	assert.NotEqual(t, tok.RefreshToken, rotated.RefreshToken)

	// No body at all falls back to the cookie.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: helpers.RefreshCookie, Value: rotated.RefreshToken})
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Malformed JSON is still rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_InvalidPayload(t *testing.T) {
	s := newServer(t)
	w, env := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Ann", "email": "not-an-email", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid payload", env.Message)
	assert.Equal(t, "must be a valid email", env.Error["email"])
	assert.Equal(t, "must be at least 6 characters", env.Error["password"])
}

func TestLogin_Failure(t *testing.T) {
	s := newServer(t)
	w, env := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ghost@example.com", "password": "whatever"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, application.ErrInvalidCredentials.Message, env.Message)
	assert.Equal(t, "validation", env.Error["kind"])
}

func TestExternalLogin_WithoutValidatorIsUnauthorized(t *testing.T) {
	s := newServer(t)
	w, env := s.do(t, http.MethodPost, "/api/auth/external-login", "", gin.H{"provider": "google", "id_token": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_external_assertion", env.Error["kind"])

	w, _ = s.do(t, http.MethodPost, "/api/auth/external-login", "", gin.H{"provider": "github", "id_token": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfile_RequiresAuthAndDetectsConflicts(t *testing.T) {
	s := newServer(t)
	w, _ := s.do(t, http.MethodGet, "/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, _ = s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Ann", "email": "ann@example.com", "password": "secret1"})
	tok := s.login(t, "ann@example.com", "secret1")

	// Login stored a new refresh token, so the stamp is now past its initial value.
	w, env := s.do(t, http.MethodPut, "/api/profile", tok.AccessToken, gin.H{"name": "Ann Lee", "concurrency_stamp": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "concurrency_conflict", env.Error["kind"])

	_, env = s.do(t, http.MethodGet, "/api/profile", tok.AccessToken, nil)
	var profile IdentityResponse
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	w, env = s.do(t, http.MethodPut, "/api/profile", tok.AccessToken, gin.H{"name": "Ann Lee", "concurrency_stamp": profile.ConcurrencyStamp})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "Ann Lee", profile.Name)
}

func TestUsers_AdminOnly(t *testing.T) {
	s := newServer(t)
	_, _ = s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Ann", "email": "ann@example.com", "password": "secret1"})
	tok := s.login(t, "ann@example.com", "secret1")

	w, _ := s.do(t, http.MethodGet, "/api/users", tok.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	ann, err := s.store.Identities().GetByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	require.NoError(t, ann.ChangeRole(entity.RoleAdmin))
	require.NoError(t, s.store.Identities().Update(context.Background(), ann))
	tok = s.login(t, "ann@example.com", "secret1")

	w, env := s.do(t, http.MethodGet, "/api/users?filter=name+co+ann", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list []IdentityResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	w, _ = s.do(t, http.MethodGet, "/api/users?filter=password+eq+x", tok.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
