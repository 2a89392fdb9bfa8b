package entity

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Identity is the account aggregate root. Its state is reachable only through
// the constructors and mutation methods below; empty strings and zero times
// stand for absent optional values.
type Identity struct {
	id                       uuid.UUID
	email                    string
	name                     string
	phone                    string
	taxID                    string
	credentialSecret         string
	role                     Role
	createdAt                time.Time
	avatarURL                string
	isEmailVerified          bool
	emailVerificationToken   string
	passwordResetToken       string
	passwordResetTokenExpiry time.Time
	refreshToken             string
	refreshTokenExpiry       time.Time
	concurrencyStamp         int64
	addresses                []Address
}

// NewIdentity creates a locally registered identity. credentialSecret is the
// already encrypted password.
func NewIdentity(name, email, phone, taxID, credentialSecret string, role Role, now time.Time) (*Identity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, ErrNameRequired
	}
	if email == "" {
		return nil, ErrEmailRequired
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	return &Identity{
		id:               uuid.New(),
		email:            email,
		name:             name,
		phone:            strings.TrimSpace(phone),
		taxID:            strings.ToUpper(strings.TrimSpace(taxID)),
		credentialSecret: credentialSecret,
		role:             role,
		createdAt:        now.UTC(),
	}, nil
}

// MaxNameLen bounds display names, in characters.
const MaxNameLen = 100

// NewFederatedIdentity creates an identity from a verified external assertion.
// It has no local credential and its email is considered verified. Provider
// display names longer than MaxNameLen are cut.
func NewFederatedIdentity(name, email, avatarURL string, now time.Time) (*Identity, error) {
	if strings.TrimSpace(name) == "" {
		name = email
	}
	name = truncateRunes(strings.TrimSpace(name), MaxNameLen)
	i, err := NewIdentity(name, email, "", "", "", RoleUser, now)
	if err != nil {
		return nil, err
	}
	i.isEmailVerified = true
	i.avatarURL = strings.TrimSpace(avatarURL)
	return i, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

func (i *Identity) ID() uuid.UUID                       { return i.id }
func (i *Identity) Email() string                       { return i.email }
func (i *Identity) Name() string                        { return i.name }
func (i *Identity) Phone() string                       { return i.phone }
func (i *Identity) TaxID() string                       { return i.taxID }
func (i *Identity) CredentialSecret() string            { return i.credentialSecret }
func (i *Identity) Role() Role                          { return i.role }
func (i *Identity) CreatedAt() time.Time                { return i.createdAt }
func (i *Identity) AvatarURL() string                   { return i.avatarURL }
func (i *Identity) IsEmailVerified() bool               { return i.isEmailVerified }
func (i *Identity) EmailVerificationToken() string      { return i.emailVerificationToken }
func (i *Identity) PasswordResetToken() string          { return i.passwordResetToken }
func (i *Identity) PasswordResetTokenExpiry() time.Time { return i.passwordResetTokenExpiry }
func (i *Identity) RefreshToken() string                { return i.refreshToken }
func (i *Identity) RefreshTokenExpiry() time.Time       { return i.refreshTokenExpiry }
func (i *Identity) ConcurrencyStamp() int64             { return i.concurrencyStamp }

func (i *Identity) Addresses() []Address {
	out := make([]Address, len(i.addresses))
	copy(out, i.addresses)
	return out
}

// HasLocalCredential is false for federation-only accounts.
func (i *Identity) HasLocalCredential() bool { return i.credentialSecret != "" }

// RequestEmailVerification stores a pending verification token.
// It is a no-op once the email is verified.
func (i *Identity) RequestEmailVerification(token string) {
	if i.isEmailVerified {
		return
	}
	i.emailVerificationToken = token
}

func (i *Identity) VerifyEmail() {
	i.isEmailVerified = true
	i.emailVerificationToken = ""
}

// IssuePasswordReset opens a reset window, superseding any previous one.
func (i *Identity) IssuePasswordReset(token string, expiry time.Time) {
	i.passwordResetToken = token
	i.passwordResetTokenExpiry = expiry.UTC()
}

func (i *Identity) PasswordResetExpired(now time.Time) bool {
	return !i.passwordResetTokenExpiry.After(now)
}

// ResetCredential replaces the secret through a reset token and closes the window.
func (i *Identity) ResetCredential(secret string) {
	i.credentialSecret = secret
	i.passwordResetToken = ""
	i.passwordResetTokenExpiry = time.Time{}
}

// ChangeCredential replaces the secret of an account that already has one.
func (i *Identity) ChangeCredential(secret string) error {
	if !i.HasLocalCredential() {
		return ErrNoLocalCredential
	}
	i.credentialSecret = secret
	return nil
}

// IssueRefreshToken replaces the current refresh token; the old value is gone.
func (i *Identity) IssueRefreshToken(token string, expiry time.Time) {
	i.refreshToken = token
	i.refreshTokenExpiry = expiry.UTC()
}

func (i *Identity) RevokeRefreshToken() {
	i.refreshToken = ""
	i.refreshTokenExpiry = time.Time{}
}

func (i *Identity) RefreshTokenExpired(now time.Time) bool {
	return !i.refreshTokenExpiry.After(now)
}

// SetAvatarURL ignores blank values.
func (i *Identity) SetAvatarURL(url string) {
	if url = strings.TrimSpace(url); url != "" {
		i.avatarURL = url
	}
}

// BackfillAvatar sets the avatar only when none is present.
func (i *Identity) BackfillAvatar(url string) {
	if i.avatarURL == "" {
		i.SetAvatarURL(url)
	}
}

func (i *Identity) UpdateProfile(name, phone, taxID string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	i.name = name
	i.phone = strings.TrimSpace(phone)
	i.taxID = strings.ToUpper(strings.TrimSpace(taxID))
	return nil
}

func (i *Identity) ChangeEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	i.email = email
	return nil
}

func (i *Identity) ChangeRole(r Role) error {
	if !r.Valid() {
		return ErrInvalidRole
	}
	i.role = r
	return nil
}

func (i *Identity) AddAddress(a Address) {
	i.addresses = append(i.addresses, a)
}

func (i *Identity) RemoveAddress(id uuid.UUID) error {
	for n, a := range i.addresses {
		if a.ID == id {
			i.addresses = append(i.addresses[:n:n], i.addresses[n+1:]...)
			return nil
		}
	}
	return ErrAddressNotFound
}

// MarkSaved records the stamp assigned by the store after a successful write.
func (i *Identity) MarkSaved(stamp int64) { i.concurrencyStamp = stamp }
