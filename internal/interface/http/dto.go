package handlers

import (
	"time"

	"github.com/oksasatya/identity-service/internal/application"
	"github.com/oksasatya/identity-service/internal/domain/entity"
)

type AddressResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Street      string `json:"street"`
	CountryCode string `json:"country_code"`
}

// IdentityResponse never exposes credentials or tokens.
type IdentityResponse struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Email            string            `json:"email"`
	Phone            string            `json:"phone,omitempty"`
	TaxID            string            `json:"tax_id,omitempty"`
	Role             string            `json:"role"`
	AvatarURL        string            `json:"avatar_url,omitempty"`
	EmailVerified    bool              `json:"email_verified"`
	LocalCredential  bool              `json:"has_password"`
	Addresses        []AddressResponse `json:"addresses"`
	ConcurrencyStamp int64             `json:"concurrency_stamp"`
	CreatedAt        time.Time         `json:"created_at"`
}

func toIdentityResponse(i *entity.Identity) IdentityResponse {
	addrs := make([]AddressResponse, 0, len(i.Addresses()))
	for _, a := range i.Addresses() {
		addrs = append(addrs, AddressResponse{ID: a.ID.String(), Name: a.Name, Street: a.Street, CountryCode: a.CountryCode})
	}
	return IdentityResponse{
		ID:               i.ID().String(),
		Name:             i.Name(),
		Email:            i.Email(),
		Phone:            i.Phone(),
		TaxID:            i.TaxID(),
		Role:             string(i.Role()),
		AvatarURL:        i.AvatarURL(),
		EmailVerified:    i.IsEmailVerified(),
		LocalCredential:  i.HasLocalCredential(),
		Addresses:        addrs,
		ConcurrencyStamp: i.ConcurrencyStamp(),
		CreatedAt:        i.CreatedAt(),
	}
}

type TokenResponse struct {
	AccessToken        string    `json:"access_token"`
	AccessTokenExpiry  time.Time `json:"access_token_expiry"`
	RefreshToken       string    `json:"refresh_token"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry"`
}

func toTokenResponse(p application.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:        p.AccessToken,
		AccessTokenExpiry:  p.AccessTokenExpiry,
		RefreshToken:       p.RefreshToken,
		RefreshTokenExpiry: p.RefreshTokenExpiry,
	}
}
