package repository

import "github.com/oksasatya/identity-service/pkg/apperr"

var (
	ErrNotFound            = apperr.NotFound("record not found")
	ErrDuplicateEmail      = apperr.Validation("email already registered")
	ErrDuplicateTaxID      = apperr.Validation("tax id already registered")
	ErrDuplicateLink       = apperr.ConcurrencyConflict("external login already linked")
	ErrConcurrencyConflict = apperr.ConcurrencyConflict("This user was modified by someone else. Please reload and try again.")
)
