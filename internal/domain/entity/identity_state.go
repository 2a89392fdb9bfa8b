package entity

import (
	"time"

	"github.com/google/uuid"
)

// IdentityState is the flat persistence form of an Identity.
type IdentityState struct {
	ID                       uuid.UUID
	Email                    string
	Name                     string
	Phone                    string
	TaxID                    string
	CredentialSecret         string
	Role                     Role
	CreatedAt                time.Time
	AvatarURL                string
	IsEmailVerified          bool
	EmailVerificationToken   string
	PasswordResetToken       string
	PasswordResetTokenExpiry time.Time
	RefreshToken             string
	RefreshTokenExpiry       time.Time
	ConcurrencyStamp         int64
	Addresses                []Address
}

func (i *Identity) State() IdentityState {
	return IdentityState{
		ID:                       i.id,
		Email:                    i.email,
		Name:                     i.name,
		Phone:                    i.phone,
		TaxID:                    i.taxID,
		CredentialSecret:         i.credentialSecret,
		Role:                     i.role,
		CreatedAt:                i.createdAt,
		AvatarURL:                i.avatarURL,
		IsEmailVerified:          i.isEmailVerified,
		EmailVerificationToken:   i.emailVerificationToken,
		PasswordResetToken:       i.passwordResetToken,
		PasswordResetTokenExpiry: i.passwordResetTokenExpiry,
		RefreshToken:             i.refreshToken,
		RefreshTokenExpiry:       i.refreshTokenExpiry,
		ConcurrencyStamp:         i.concurrencyStamp,
		Addresses:                i.Addresses(),
	}
}

// RestoreIdentity rebuilds an aggregate from stored state.
func RestoreIdentity(s IdentityState) *Identity {
	addrs := make([]Address, len(s.Addresses))
	copy(addrs, s.Addresses)
	return &Identity{
		id:                       s.ID,
		email:                    s.Email,
		name:                     s.Name,
		phone:                    s.Phone,
		taxID:                    s.TaxID,
		credentialSecret:         s.CredentialSecret,
		role:                     s.Role,
		createdAt:                s.CreatedAt,
		avatarURL:                s.AvatarURL,
		isEmailVerified:          s.IsEmailVerified,
		emailVerificationToken:   s.EmailVerificationToken,
		passwordResetToken:       s.PasswordResetToken,
		passwordResetTokenExpiry: s.PasswordResetTokenExpiry,
		refreshToken:             s.RefreshToken,
		refreshTokenExpiry:       s.RefreshTokenExpiry,
		concurrencyStamp:         s.ConcurrencyStamp,
		addresses:                addrs,
	}
}
