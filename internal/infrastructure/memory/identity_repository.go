package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"

	"github.com/oksasatya/identity-service/internal/domain/entity"
	"github.com/oksasatya/identity-service/internal/domain/repository"
)

type IdentityRepository struct {
	s *Store
}

var _ repository.IdentityRepository = (*IdentityRepository)(nil)

func toRecord(st entity.IdentityState) *identityRecord {
	return &identityRecord{
		ID:                st.ID.String(),
		Email:             st.Email,
		TaxID:             st.TaxID,
		RefreshToken:      st.RefreshToken,
		VerificationToken: st.EmailVerificationToken,
		ResetToken:        st.PasswordResetToken,
		State:             st,
	}
}

func (r *IdentityRepository) first(ctx context.Context, index, arg string) (*entity.Identity, error) {
	if arg == "" {
		return nil, repository.ErrNotFound
	}
	txn, done := r.s.read(ctx)
	defer done()
	raw, err := txn.First(tableIdentity, index, arg)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, repository.ErrNotFound
	}
	return entity.RestoreIdentity(raw.(*identityRecord).State), nil
}

// checkUnique rejects email or tax id values owned by another identity.
func checkUnique(txn *memdb.Txn, st entity.IdentityState) error {
	raw, err := txn.First(tableIdentity, "email", st.Email)
	if err != nil {
		return err
	}
	if raw != nil && raw.(*identityRecord).ID != st.ID.String() {
		return repository.ErrDuplicateEmail
	}
	if st.TaxID == "" {
		return nil
	}
	raw, err = txn.First(tableIdentity, "tax_id", st.TaxID)
	if err != nil {
		return err
	}
	if raw != nil && raw.(*identityRecord).ID != st.ID.String() {
		return repository.ErrDuplicateTaxID
	}
	return nil
}

func (r *IdentityRepository) Create(ctx context.Context, i *entity.Identity) error {
	st := i.State()
	st.ConcurrencyStamp = 1
	err := r.s.write(ctx, func(txn *memdb.Txn) error {
		if err := checkUnique(txn, st); err != nil {
			return err
		}
		return txn.Insert(tableIdentity, toRecord(st))
	})
	if err != nil {
		return err
	}
	i.MarkSaved(st.ConcurrencyStamp)
	return nil
}

func (r *IdentityRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Identity, error) {
	return r.first(ctx, "id", id.String())
}

func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	return r.first(ctx, "email_exact", email)
}

func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	return r.first(ctx, "email", strings.TrimSpace(email))
}

func (r *IdentityRepository) GetByTaxID(ctx context.Context, taxID string) (*entity.Identity, error) {
	return r.first(ctx, "tax_id", strings.ToUpper(strings.TrimSpace(taxID)))
}

func (r *IdentityRepository) GetByRefreshToken(ctx context.Context, token string) (*entity.Identity, error) {
	return r.first(ctx, "refresh_token", token)
}

func (r *IdentityRepository) GetByVerificationToken(ctx context.Context, token string) (*entity.Identity, error) {
	return r.first(ctx, "verification_token", token)
}

func (r *IdentityRepository) GetByResetToken(ctx context.Context, token string) (*entity.Identity, error) {
	return r.first(ctx, "reset_token", token)
}

func (r *IdentityRepository) Update(ctx context.Context, i *entity.Identity) error {
	st := i.State()
	err := r.s.write(ctx, func(txn *memdb.Txn) error {
		raw, err := txn.First(tableIdentity, "id", st.ID.String())
		if err != nil {
			return err
		}
		if raw == nil {
			return repository.ErrNotFound
		}
		if raw.(*identityRecord).State.ConcurrencyStamp != st.ConcurrencyStamp {
			return repository.ErrConcurrencyConflict
		}
		if err := checkUnique(txn, st); err != nil {
			return err
		}
		st.ConcurrencyStamp++
		return txn.Insert(tableIdentity, toRecord(st))
	})
	if err != nil {
		return err
	}
	i.MarkSaved(st.ConcurrencyStamp)
	return nil
}

func (r *IdentityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.write(ctx, func(txn *memdb.Txn) error {
		n, err := txn.DeleteAll(tableIdentity, "id", id.String())
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrNotFound
		}
		_, err = txn.DeleteAll(tableLink, "identity_id", id.String())
		return err
	})
}

func (r *IdentityRepository) List(ctx context.Context, q repository.IdentityQuery) ([]*entity.Identity, error) {
	txn, done := r.s.read(ctx)
	defer done()
	it, err := txn.Get(tableIdentity, "id")
	if err != nil {
		return nil, err
	}
	var out []*entity.Identity
	for raw := it.Next(); raw != nil; raw = it.Next() {
		st := raw.(*identityRecord).State
		if matches(st, q) {
			out = append(out, entity.RestoreIdentity(st))
		}
	}
	sortIdentities(out, q.SortBy, q.Desc)
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func attrValue(st entity.IdentityState, attr string) string {
	switch attr {
	case repository.AttrName:
		return st.Name
	case repository.AttrEmail:
		return st.Email
	case repository.AttrPhone:
		return st.Phone
	case repository.AttrTaxID:
		return st.TaxID
	case repository.AttrID:
		return st.ID.String()
	}
	return ""
}

func matches(st entity.IdentityState, q repository.IdentityQuery) bool {
	if q.Attribute == "" {
		return true
	}
	v := strings.ToLower(attrValue(st, q.Attribute))
	want := strings.ToLower(q.Value)
	switch q.Op {
	case repository.OpContains:
		return strings.Contains(v, want)
	case repository.OpEquals:
		return v == want
	case repository.OpStartsWith:
		return strings.HasPrefix(v, want)
	case repository.OpEndsWith:
		return strings.HasSuffix(v, want)
	}
	return false
}

func sortIdentities(list []*entity.Identity, by string, desc bool) {
	less := func(a, b *entity.Identity) bool {
		switch by {
		case repository.AttrName:
			return strings.ToLower(a.Name()) < strings.ToLower(b.Name())
		case repository.AttrEmail:
			return strings.ToLower(a.Email()) < strings.ToLower(b.Email())
		case repository.AttrPhone:
			return a.Phone() < b.Phone()
		case repository.AttrTaxID:
			return a.TaxID() < b.TaxID()
		case repository.AttrID:
			return a.ID().String() < b.ID().String()
		default:
			return a.CreatedAt().Before(b.CreatedAt())
		}
	}
	sort.SliceStable(list, func(x, y int) bool {
		if desc {
			return less(list[y], list[x])
		}
		return less(list[x], list[y])
	})
}
