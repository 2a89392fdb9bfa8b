package entity

import "github.com/oksasatya/identity-service/pkg/apperr"

var (
	ErrNameRequired      = apperr.Validation("name is required")
	ErrEmailRequired     = apperr.Validation("email is required")
	ErrInvalidRole       = apperr.Validation("invalid role")
	ErrInvalidAddress    = apperr.Validation("invalid address")
	ErrAddressNotFound   = apperr.NotFound("address not found")
	ErrNoLocalCredential = apperr.Validation("Cannot change the password of an externally authenticated account.")
)
