package application

import "github.com/oksasatya/identity-service/pkg/apperr"

var (
	ErrInvalidCredentials   = apperr.Validation("Invalid credentials.")
	ErrUnsupportedProvider  = apperr.Validation("Unsupported provider.")
	ErrInvalidExternalToken = apperr.InvalidExternalAssertion("Invalid external token.")
	ErrInvalidRefreshToken  = apperr.Validation("Invalid refresh token.")
	ErrRefreshTokenExpired  = apperr.Validation("Refresh token expired.")
	ErrIdentityNotFound     = apperr.NotFound("User not found.")
	ErrTaxIDTaken           = apperr.Validation("Tax ID is already registered.")
	ErrEmailTaken           = apperr.Validation("Email is already registered.")
	ErrWrongPassword        = apperr.Validation("Current password is incorrect.")
	ErrInvalidAvatar        = apperr.Validation("Avatar must be a JPEG or PNG image up to 5 MiB.")
	ErrInvalidFilter        = apperr.Validation("Invalid filter expression.")
	ErrStorageUnavailable   = apperr.New(apperr.KindInternal, "avatar storage is not configured")
)
