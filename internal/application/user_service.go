package application

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-service/internal/domain/repository"
)

var filterAttrs = map[string]bool{
	repo.AttrName:  true,
	repo.AttrEmail: true,
	repo.AttrPhone: true,
	repo.AttrTaxID: true,
	repo.AttrID:    true,
}

var sortKeys = map[string]bool{
	repo.AttrEmail:     true,
	repo.AttrID:        true,
	repo.AttrName:      true,
	repo.AttrPhone:     true,
	repo.AttrTaxID:     true,
	repo.AttrCreatedAt: true,
}

// UserService is the administrative surface over identities.
type UserService struct {
	Identities repo.IdentityRepository
	Cipher     CredentialCipher
	Index      IdentityIndex
	Sessions   SessionCache
	Logger     *logrus.Logger
}

func NewUserService(identities repo.IdentityRepository, cipher CredentialCipher, index IdentityIndex, sessions SessionCache, logger *logrus.Logger) *UserService {
	return &UserService{Identities: identities, Cipher: cipher, Index: index, Sessions: sessions, Logger: logger}
}

func (s *UserService) log() *logrus.Logger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}

// ParseListQuery parses "attr op value" filters (e.g. `name co "ann"`) and a
// sort key, optionally prefixed with "-" for descending order.
func ParseListQuery(filter, sortedBy string) (repo.IdentityQuery, error) {
	var q repo.IdentityQuery
	if f := strings.TrimSpace(filter); f != "" {
		parts := strings.Fields(f)
		if len(parts) < 3 {
			return q, ErrInvalidFilter
		}
		attr := strings.ToLower(parts[0])
		op := repo.FilterOp(strings.ToLower(parts[1]))
		if !filterAttrs[attr] {
			return q, ErrInvalidFilter
		}
		switch op {
		case repo.OpContains, repo.OpEquals, repo.OpStartsWith, repo.OpEndsWith:
		default:
			return q, ErrInvalidFilter
		}
		value := strings.Trim(strings.Join(parts[2:], " "), `"'`)
		if value == "" {
			return q, ErrInvalidFilter
		}
		q.Attribute, q.Op, q.Value = attr, op, value
	}
	if s := strings.ToLower(strings.TrimSpace(sortedBy)); s != "" {
		if strings.HasPrefix(s, "-") {
			q.Desc = true
			s = s[1:]
		}
		if !sortKeys[s] {
			return q, ErrInvalidFilter
		}
		q.SortBy = s
	}
	return q, nil
}

func (s *UserService) List(ctx context.Context, filter, sortedBy string, limit, offset int) ([]*entity.Identity, error) {
	q, err := ParseListQuery(filter, sortedBy)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q.Limit = limit
	if offset > 0 {
		q.Offset = offset
	}
	return s.Identities.List(ctx, q)
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*entity.Identity, error) {
	identity, err := s.Identities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return identity, nil
}

// Search runs a full-text query against the identity index.
func (s *UserService) Search(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.Index == nil {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	return s.Index.Search(ctx, q, size)
}

type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	TaxID    string
	Role     string
}

// Create provisions an identity on behalf of an administrator. The email is
// considered verified.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*entity.Identity, error) {
	role, err := entity.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	if _, err := s.Identities.FindByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if err := ensureTaxIDFree(ctx, s.Identities, strings.ToUpper(strings.TrimSpace(in.TaxID)), uuid.Nil); err != nil {
		return nil, err
	}
	secret, err := s.Cipher.Encrypt(in.Password)
	if err != nil {
		return nil, err
	}
	identity, err := entity.NewIdentity(in.Name, in.Email, in.Phone, in.TaxID, secret, role, timeNow())
	if err != nil {
		return nil, err
	}
	identity.VerifyEmail()
	if err := s.Identities.Create(ctx, identity); err != nil {
		return nil, mapDuplicate(err)
	}
	s.index(ctx, identity)
	return identity, nil
}

type UpdateUserInput struct {
	Name          *string
	Email         *string
	Phone         *string
	TaxID         *string
	Role          *string
	ExpectedStamp *int64
}

func (s *UserService) Update(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*entity.Identity, error) {
	identity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.ExpectedStamp != nil && *in.ExpectedStamp != identity.ConcurrencyStamp() {
		return nil, repo.ErrConcurrencyConflict
	}
	name, phone, taxID := identity.Name(), identity.Phone(), identity.TaxID()
	if in.Name != nil {
		name = *in.Name
	}
	if in.Phone != nil {
		phone = *in.Phone
	}
	if in.TaxID != nil {
		taxID = strings.ToUpper(strings.TrimSpace(*in.TaxID))
		if err := ensureTaxIDFree(ctx, s.Identities, taxID, identity.ID()); err != nil {
			return nil, err
		}
	}
	if err := identity.UpdateProfile(name, phone, taxID); err != nil {
		return nil, err
	}
	if in.Email != nil && !strings.EqualFold(*in.Email, identity.Email()) {
		if other, err := s.Identities.FindByEmail(ctx, *in.Email); err == nil && other.ID() != identity.ID() {
			return nil, ErrEmailTaken
		} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		if err := identity.ChangeEmail(*in.Email); err != nil {
			return nil, err
		}
	}
	if in.Role != nil {
		role, err := entity.ParseRole(*in.Role)
		if err != nil {
			return nil, err
		}
		if err := identity.ChangeRole(role); err != nil {
			return nil, err
		}
	}
	if err := s.Identities.Update(ctx, identity); err != nil {
		return nil, mapDuplicate(err)
	}
	s.index(ctx, identity)
	return identity, nil
}

// Delete removes the identity with its addresses and external links.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.Identities.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return err
	}
	if s.Sessions != nil {
		if err := s.Sessions.Delete(ctx, id.String()); err != nil {
			s.log().WithError(err).WithField("identity_id", id.String()).Warn("drop session failed")
		}
	}
	if s.Index != nil {
		if err := s.Index.Remove(ctx, id.String()); err != nil {
			s.log().WithError(err).WithField("identity_id", id.String()).Warn("remove from index failed")
		}
	}
	return nil
}

func (s *UserService) index(ctx context.Context, identity *entity.Identity) {
	if s.Index == nil {
		return
	}
	if err := s.Index.Index(ctx, identity); err != nil {
		s.log().WithError(err).WithField("identity_id", identity.ID().String()).Warn("index identity failed")
	}
}

func mapDuplicate(err error) error {
	switch {
	case errors.Is(err, repo.ErrDuplicateEmail):
		return ErrEmailTaken
	case errors.Is(err, repo.ErrDuplicateTaxID):
		return ErrTaxIDTaken
	}
	return err
}
