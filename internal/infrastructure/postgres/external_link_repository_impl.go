package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/identity-service/internal/domain/entity"
	"github.com/oksasatya/identity-service/internal/domain/repository"
)

type ExternalLinkRepository struct {
	pool *pgxpool.Pool
}

func NewExternalLinkRepository(pool *pgxpool.Pool) *ExternalLinkRepository {
	return &ExternalLinkRepository{pool: pool}
}

var _ repository.ExternalLinkRepository = (*ExternalLinkRepository)(nil)

func (r *ExternalLinkRepository) Get(ctx context.Context, provider, subjectID string) (*entity.ExternalLink, error) {
	var (
		p, s    string
		id      uuid.UUID
		created time.Time
	)
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT provider, provider_subject_id, identity_id, created_at
		FROM external_links
		WHERE provider = $1 AND provider_subject_id = $2
	`, strings.ToLower(provider), subjectID)
	if err := row.Scan(&p, &s, &id, &created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return entity.NewExternalLink(p, s, id, created), nil
}

func (r *ExternalLinkRepository) Create(ctx context.Context, l *entity.ExternalLink) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO external_links (provider, provider_subject_id, identity_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, l.Provider(), l.SubjectID(), l.IdentityID(), l.CreatedAt())
	return mapError(err)
}
