package application

import (
	"context"
	"io"
	"time"

	"github.com/oksasatya/identity-service/internal/domain/entity"
	"github.com/oksasatya/identity-service/pkg/helpers"
)

// CredentialCipher reversibly protects stored passwords.
type CredentialCipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(encoded string) (string, error)
}

// TokenIssuer mints access tokens and opaque random tokens.
type TokenIssuer interface {
	GenerateAccessToken(subject, email, role string) (helpers.AccessToken, error)
	GenerateRefreshToken() (string, error)
}

// ExternalIdentity is a verified federated assertion.
type ExternalIdentity struct {
	SubjectID   string
	Email       string
	DisplayName string
	PictureURL  string
}

// ExternalIdentityValidator verifies a provider id token.
type ExternalIdentityValidator interface {
	Validate(ctx context.Context, provider, idToken string) (*ExternalIdentity, error)
}

// EmailSender delivers account emails. Callers treat failures as non-fatal.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, to, name, link string) error
	SendPasswordResetEmail(ctx context.Context, to, name, link string) error
}

// Session is the cached view of the identity behind the current access token.
type Session struct {
	IdentityID string
	Email      string
	Name       string
	Role       string
	AvatarURL  string
	TokenID    string
}

type SessionCache interface {
	Put(ctx context.Context, s Session, ttl time.Duration) error
	// Refresh rewrites the display fields of a cached session and keeps its
	// expiry. It does nothing when no session is cached.
	Refresh(ctx context.Context, identityID, name, avatarURL string) error
	Get(ctx context.Context, identityID string) (*Session, error)
	Delete(ctx context.Context, identityID string) error
}

// IdentityIndex keeps a searchable projection of identities.
type IdentityIndex interface {
	Index(ctx context.Context, i *entity.Identity) error
	Remove(ctx context.Context, identityID string) error
	Search(ctx context.Context, q string, size int) ([]map[string]any, error)
}

// AvatarStorage stores avatar images and returns their public URL.
type AvatarStorage interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

var timeNow = func() time.Time { return time.Now().UTC() }
