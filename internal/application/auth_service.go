package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"expvar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-service/internal/domain/repository"
	"github.com/oksasatya/identity-service/pkg/helpers"
)

const (
	// ProviderGoogle is the only supported federated provider.
	ProviderGoogle = "google"

	RefreshTokenTTL  = 30 * 24 * time.Hour
	PasswordResetTTL = time.Hour

	emailTimeout = 5 * time.Second
)

// User-facing messages of the self-service flows.
const (
	MsgRegistered               = "If the email is valid, you will receive a confirmation link."
	MsgInvalidVerificationToken = "Invalid verification token."
	MsgEmailVerified            = "Email verified successfully."
	MsgResetRequested           = "If an account exists with that email, a password reset link has been sent."
	MsgInvalidResetToken        = "The reset token is invalid."
	MsgExpiredResetToken        = "The reset token has expired."
	MsgPasswordReset            = "Password reset successfully."
	MsgPasswordChanged          = "Password updated successfully."
	MsgLoggedOut                = "Logged out."
)

var (
	metricRegistrations  = expvar.NewInt("auth_registrations_total")
	metricLogins         = expvar.NewInt("auth_logins_total")
	metricExternalLogins = expvar.NewInt("auth_external_logins_total")
	metricRefreshes      = expvar.NewInt("auth_refreshes_total")
)

// AuthResult is the uniform outcome of the public self-service flows.
// Not-found and expired cases are reported here rather than as errors.
type AuthResult struct {
	Success bool
	Message string
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	TaxID    string
}

// AuthService owns registration, authentication, token lifecycle and recovery flows.
type AuthService struct {
	Identities      repo.IdentityRepository
	Links           repo.ExternalLinkRepository
	Tx              repo.Transactor
	Cipher          CredentialCipher
	Tokens          TokenIssuer
	Validator       ExternalIdentityValidator
	Mailer          EmailSender
	Logger          *logrus.Logger
	FrontendBaseURL string

	// Optional collaborators; nil disables them.
	Sessions SessionCache
	Index    IdentityIndex

	Now func() time.Time
}

func NewAuthService(identities repo.IdentityRepository, links repo.ExternalLinkRepository, tx repo.Transactor, cipher CredentialCipher, tokens TokenIssuer, validator ExternalIdentityValidator, mailer EmailSender, logger *logrus.Logger, frontendBaseURL string) *AuthService {
	return &AuthService{
		Identities:      identities,
		Links:           links,
		Tx:              tx,
		Cipher:          cipher,
		Tokens:          tokens,
		Validator:       validator,
		Mailer:          mailer,
		Logger:          logger,
		FrontendBaseURL: strings.TrimRight(frontendBaseURL, "/"),
		Now:             time.Now,
	}
}

func (s *AuthService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *AuthService) log() *logrus.Logger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}

// Register creates a local account. An already registered email yields the
// same result as a fresh registration and creates nothing.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	generic := AuthResult{Success: true, Message: MsgRegistered}
	email := strings.TrimSpace(in.Email)

	// Both branches pay for encryption and token generation.
	secret, err := s.Cipher.Encrypt(in.Password)
	if err != nil {
		return AuthResult{}, err
	}
	token, err := s.Tokens.GenerateRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}

	if _, err := s.Identities.FindByEmail(ctx, email); err == nil {
		s.log().WithField("email", email).Debug("register: email already registered")
		return generic, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return AuthResult{}, err
	}
	if in.TaxID != "" {
		if _, err := s.Identities.GetByTaxID(ctx, in.TaxID); err == nil {
			return AuthResult{}, ErrTaxIDTaken
		} else if !errors.Is(err, repo.ErrNotFound) {
			return AuthResult{}, err
		}
	}

	identity, err := entity.NewIdentity(in.Name, email, in.Phone, in.TaxID, secret, entity.RoleUser, s.now())
	if err != nil {
		return AuthResult{}, err
	}
	identity.RequestEmailVerification(token)
	if err := s.Identities.Create(ctx, identity); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicateEmail):
			s.log().WithField("email", email).Debug("register: lost race on email")
			return generic, nil
		case errors.Is(err, repo.ErrDuplicateTaxID):
			return AuthResult{}, ErrTaxIDTaken
		}
		return AuthResult{}, err
	}
	metricRegistrations.Add(1)
	s.index(ctx, identity)

	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emailTimeout)
	defer cancel()
	if err := s.Mailer.SendVerificationEmail(ectx, identity.Email(), identity.Name(), s.link("verify-email", token)); err != nil {
		s.log().WithError(err).WithField("identity_id", identity.ID().String()).Warn("send verification email failed")
	}
	return generic, nil
}

// Login authenticates by exact email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (TokenPair, error) {
	identity, err := s.Identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if !identity.HasLocalCredential() {
		return TokenPair{}, ErrInvalidCredentials
	}
	plain, err := s.Cipher.Decrypt(identity.CredentialSecret())
	if err != nil {
		s.log().WithError(err).WithField("identity_id", identity.ID().String()).Error("credential decryption failed")
		return TokenPair{}, err
	}
	if subtle.ConstantTimeCompare([]byte(plain), []byte(password)) != 1 {
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, jti, err := s.issueTokens(identity)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.Identities.Update(ctx, identity); err != nil {
		return TokenPair{}, err
	}
	metricLogins.Add(1)
	s.cacheSession(ctx, identity, jti)
	return pair, nil
}

// ExternalLogin signs in with a federated id token, creating and linking the
// local identity on first use. The lookup-create-link sequence is atomic.
func (s *AuthService) ExternalLogin(ctx context.Context, provider, idToken string) (TokenPair, error) {
	if !strings.EqualFold(strings.TrimSpace(provider), ProviderGoogle) {
		return TokenPair{}, ErrUnsupportedProvider
	}
	if s.Validator == nil {
		s.log().Warn("external login attempted without a configured validator")
		return TokenPair{}, ErrInvalidExternalToken
	}
	ext, err := s.Validator.Validate(ctx, ProviderGoogle, idToken)
	if err != nil {
		s.log().WithError(err).Info("external token rejected")
		return TokenPair{}, ErrInvalidExternalToken
	}
	if ext == nil || ext.SubjectID == "" || strings.TrimSpace(ext.Email) == "" {
		return TokenPair{}, ErrInvalidExternalToken
	}

	var (
		pair     TokenPair
		jti      string
		identity *entity.Identity
	)
	err = s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		identity, err = s.resolveExternal(ctx, ext)
		if err != nil {
			return err
		}
		pair, jti, err = s.issueTokens(identity)
		if err != nil {
			return err
		}
		return s.Identities.Update(ctx, identity)
	})
	if err != nil {
		s.log().WithError(err).WithField("subject", ext.SubjectID).Warn("external login rolled back")
		return TokenPair{}, err
	}
	metricExternalLogins.Add(1)
	s.cacheSession(ctx, identity, jti)
	s.index(ctx, identity)
	return pair, nil
}

func (s *AuthService) resolveExternal(ctx context.Context, ext *ExternalIdentity) (*entity.Identity, error) {
	link, err := s.Links.Get(ctx, ProviderGoogle, ext.SubjectID)
	if err == nil {
		return s.Identities.GetByID(ctx, link.IdentityID())
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	identity, err := s.Identities.FindByEmail(ctx, ext.Email)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		identity, err = entity.NewFederatedIdentity(ext.DisplayName, strings.TrimSpace(ext.Email), ext.PictureURL, s.now())
		if err != nil {
			return nil, err
		}
		if err := s.Identities.Create(ctx, identity); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if err := s.Links.Create(ctx, entity.NewExternalLink(ProviderGoogle, ext.SubjectID, identity.ID(), s.now())); err != nil {
		return nil, err
	}
	identity.BackfillAvatar(ext.PictureURL)
	return identity, nil
}

// RefreshToken exchanges a refresh token for a new pair. The presented token
// stops working as soon as the new one is stored.
func (s *AuthService) RefreshToken(ctx context.Context, token string) (TokenPair, error) {
	if token == "" {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	identity, err := s.Identities.GetByRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}
	if identity.RefreshTokenExpired(s.now()) {
		return TokenPair{}, ErrRefreshTokenExpired
	}
	pair, jti, err := s.issueTokens(identity)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.Identities.Update(ctx, identity); err != nil {
		// A concurrent write already replaced the token.
		if errors.Is(err, repo.ErrConcurrencyConflict) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}
	metricRefreshes.Add(1)
	s.cacheSession(ctx, identity, jti)
	return pair, nil
}

// VerifyEmail matches the token exactly as received.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (AuthResult, error) {
	decoded := decodeToken(token)
	identity, err := s.Identities.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.log().WithField("decoded_differs", decoded != token).Debug("verify email: token not found")
			return AuthResult{Success: false, Message: MsgInvalidVerificationToken}, nil
		}
		return AuthResult{}, err
	}
	identity.VerifyEmail()
	if err := s.Identities.Update(ctx, identity); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Success: true, Message: MsgEmailVerified}, nil
}

// ForgotPassword opens a one hour reset window. The result never reveals
// whether the email exists.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (AuthResult, error) {
	generic := AuthResult{Success: true, Message: MsgResetRequested}
	identity, err := s.Identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return generic, nil
		}
		return AuthResult{}, err
	}
	token, err := s.Tokens.GenerateRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}
	identity.IssuePasswordReset(token, s.now().Add(PasswordResetTTL))
	if err := s.Identities.Update(ctx, identity); err != nil {
		return AuthResult{}, err
	}

	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emailTimeout)
	defer cancel()
	if err := s.Mailer.SendPasswordResetEmail(ectx, identity.Email(), identity.Name(), s.link("reset-password", token)); err != nil {
		s.log().WithError(err).WithField("identity_id", identity.ID().String()).Warn("send reset email failed")
	}
	return generic, nil
}

// ResetPassword matches the URL-decoded token.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (AuthResult, error) {
	identity, err := s.Identities.GetByResetToken(ctx, decodeToken(token))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return AuthResult{Success: false, Message: MsgInvalidResetToken}, nil
		}
		return AuthResult{}, err
	}
	if identity.PasswordResetExpired(s.now()) {
		return AuthResult{Success: false, Message: MsgExpiredResetToken}, nil
	}
	secret, err := s.Cipher.Encrypt(newPassword)
	if err != nil {
		return AuthResult{}, err
	}
	identity.ResetCredential(secret)
	if err := s.Identities.Update(ctx, identity); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Success: true, Message: MsgPasswordReset}, nil
}

// Logout revokes the refresh token and drops the cached session.
func (s *AuthService) Logout(ctx context.Context, identityID uuid.UUID) error {
	identity, err := s.Identities.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return err
	}
	identity.RevokeRefreshToken()
	if err := s.Identities.Update(ctx, identity); err != nil {
		return err
	}
	if s.Sessions != nil {
		if err := s.Sessions.Delete(ctx, identityID.String()); err != nil {
			s.log().WithError(err).WithField("identity_id", identityID.String()).Warn("drop session failed")
		}
	}
	return nil
}

// issueTokens mints a pair and stores the refresh token on the aggregate.
// The caller persists the identity.
func (s *AuthService) issueTokens(identity *entity.Identity) (TokenPair, string, error) {
	access, err := s.Tokens.GenerateAccessToken(identity.ID().String(), identity.Email(), string(identity.Role()))
	if err != nil {
		s.log().WithError(err).WithField("identity_id", identity.ID().String()).Error("generate access token failed")
		return TokenPair{}, "", err
	}
	refresh, err := s.Tokens.GenerateRefreshToken()
	if err != nil {
		s.log().WithError(err).WithField("identity_id", identity.ID().String()).Error("generate refresh token failed")
		return TokenPair{}, "", err
	}
	exp := s.now().Add(RefreshTokenTTL)
	identity.IssueRefreshToken(refresh, exp)
	return TokenPair{
		AccessToken:        access.Value,
		AccessTokenExpiry:  access.ExpiresAt,
		RefreshToken:       refresh,
		RefreshTokenExpiry: exp,
	}, access.ID, nil
}

func (s *AuthService) cacheSession(ctx context.Context, identity *entity.Identity, jti string) {
	if s.Sessions == nil {
		return
	}
	sess := Session{
		IdentityID: identity.ID().String(),
		Email:      identity.Email(),
		Name:       identity.Name(),
		Role:       string(identity.Role()),
		AvatarURL:  identity.AvatarURL(),
		TokenID:    jti,
	}
	if err := s.Sessions.Put(ctx, sess, helpers.AccessTokenTTL); err != nil {
		s.log().WithError(err).WithField("identity_id", sess.IdentityID).Warn("cache session failed")
	}
}

func (s *AuthService) index(ctx context.Context, identity *entity.Identity) {
	if s.Index == nil {
		return
	}
	if err := s.Index.Index(ctx, identity); err != nil {
		s.log().WithError(err).WithField("identity_id", identity.ID().String()).Warn("index identity failed")
	}
}

func (s *AuthService) link(path, token string) string {
	return s.FrontendBaseURL + "/" + path + "?token=" + url.QueryEscape(token)
}

// decodeToken URL-decodes a token, keeping the raw value when it is not
// valid percent-encoding.
func decodeToken(token string) string {
	decoded, err := url.QueryUnescape(token)
	if err != nil {
		return token
	}
	return decoded
}
