package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"

	"github.com/oksasatya/identity-service/internal/domain/entity"
	"github.com/oksasatya/identity-service/internal/domain/repository"
)

type ExternalLinkRepository struct {
	s *Store
}

var _ repository.ExternalLinkRepository = (*ExternalLinkRepository)(nil)

func (r *ExternalLinkRepository) Get(ctx context.Context, provider, subjectID string) (*entity.ExternalLink, error) {
	txn, done := r.s.read(ctx)
	defer done()
	raw, err := txn.First(tableLink, "id", provider, subjectID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, repository.ErrNotFound
	}
	rec := raw.(*linkRecord)
	id, err := uuid.Parse(rec.IdentityID)
	if err != nil {
		return nil, err
	}
	return entity.NewExternalLink(rec.Provider, rec.SubjectID, id, rec.CreatedAt), nil
}

func (r *ExternalLinkRepository) Create(ctx context.Context, l *entity.ExternalLink) error {
	return r.s.write(ctx, func(txn *memdb.Txn) error {
		existing, err := txn.First(tableLink, "id", l.Provider(), l.SubjectID())
		if err != nil {
			return err
		}
		if existing != nil {
			return repository.ErrDuplicateLink
		}
		owner, err := txn.First(tableIdentity, "id", l.IdentityID().String())
		if err != nil {
			return err
		}
		if owner == nil {
			return repository.ErrNotFound
		}
		return txn.Insert(tableLink, &linkRecord{
			Provider:   l.Provider(),
			SubjectID:  l.SubjectID(),
			IdentityID: l.IdentityID().String(),
			CreatedAt:  l.CreatedAt(),
		})
	})
}
