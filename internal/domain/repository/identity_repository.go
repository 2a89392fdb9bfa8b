package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/oksasatya/identity-service/internal/domain/entity"
)

// IdentityRepository persists Identity aggregates. Lookups return ErrNotFound
// when nothing matches. Writes join the transaction carried by ctx, if any.
type IdentityRepository interface {
	Create(ctx context.Context, i *entity.Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Identity, error)
	// GetByEmail matches the email exactly.
	GetByEmail(ctx context.Context, email string) (*entity.Identity, error)
	// FindByEmail matches the email case-insensitively.
	FindByEmail(ctx context.Context, email string) (*entity.Identity, error)
	GetByTaxID(ctx context.Context, taxID string) (*entity.Identity, error)
	GetByRefreshToken(ctx context.Context, token string) (*entity.Identity, error)
	GetByVerificationToken(ctx context.Context, token string) (*entity.Identity, error)
	GetByResetToken(ctx context.Context, token string) (*entity.Identity, error)
	// Update saves i if its concurrency stamp still matches the stored one and
	// advances the stamp; otherwise it returns ErrConcurrencyConflict.
	Update(ctx context.Context, i *entity.Identity) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q IdentityQuery) ([]*entity.Identity, error)
}

// ExternalLinkRepository stores immutable provider-subject bindings.
type ExternalLinkRepository interface {
	Get(ctx context.Context, provider, subjectID string) (*entity.ExternalLink, error)
	Create(ctx context.Context, l *entity.ExternalLink) error
}

// Transactor runs fn inside a single transaction. The transaction commits when
// fn returns nil and the context is still live; it rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
