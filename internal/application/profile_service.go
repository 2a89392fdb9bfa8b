package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-service/internal/domain/repository"
)

const MaxAvatarSize = 5 << 20

// allowed avatar types and the extensions accepted for each
var avatarTypes = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
}

type ProfileService struct {
	Identities repo.IdentityRepository
	Cipher     CredentialCipher
	Storage    AvatarStorage
	Sessions   SessionCache
	Index      IdentityIndex
	Logger     *logrus.Logger
}

func NewProfileService(identities repo.IdentityRepository, cipher CredentialCipher, storage AvatarStorage, sessions SessionCache, index IdentityIndex, logger *logrus.Logger) *ProfileService {
	return &ProfileService{
		Identities: identities,
		Cipher:     cipher,
		Storage:    storage,
		Sessions:   sessions,
		Index:      index,
		Logger:     logger,
	}
}

func (s *ProfileService) log() *logrus.Logger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}

func (s *ProfileService) GetProfile(ctx context.Context, id uuid.UUID) (*entity.Identity, error) {
	identity, err := s.Identities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return identity, nil
}

// UpdateProfileInput carries optional profile changes. ExpectedStamp, when
// set, must equal the stored concurrency stamp.
type UpdateProfileInput struct {
	Name          *string
	Phone         *string
	TaxID         *string
	ExpectedStamp *int64
}

func (s *ProfileService) UpdateProfile(ctx context.Context, id uuid.UUID, in UpdateProfileInput) (*entity.Identity, error) {
	identity, err := s.GetProfile(ctx, id)
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
	if err := s.save(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// ChangePassword requires the current password. Accounts without a local
// credential are rejected.
func (s *ProfileService) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) (AuthResult, error) {
	identity, err := s.Identities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return AuthResult{Success: false, Message: ErrIdentityNotFound.Message}, nil
		}
		return AuthResult{}, err
	}
	if !identity.HasLocalCredential() {
		return AuthResult{}, entity.ErrNoLocalCredential
	}
	plain, err := s.Cipher.Decrypt(identity.CredentialSecret())
	if err != nil {
		return AuthResult{}, err
	}
	if plain != current {
		return AuthResult{}, ErrWrongPassword
	}
	secret, err := s.Cipher.Encrypt(next)
	if err != nil {
		return AuthResult{}, err
	}
	if err := identity.ChangeCredential(secret); err != nil {
		return AuthResult{}, err
	}
	if err := s.Identities.Update(ctx, identity); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Success: true, Message: MsgPasswordChanged}, nil
}

// UploadAvatar validates the image by content signature, stores it and
// replaces the previous avatar.
func (s *ProfileService) UploadAvatar(ctx context.Context, id uuid.UUID, filename string, r io.Reader) (string, error) {
	if s.Storage == nil {
		return "", ErrStorageUnavailable
	}
	identity, err := s.GetProfile(ctx, id)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxAvatarSize+1))
	if err != nil {
		return "", err
	}
	if len(data) == 0 || len(data) > MaxAvatarSize {
		return "", ErrInvalidAvatar
	}
	ext := strings.ToLower(path.Ext(filename))
	mt := mimetype.Detect(data)
	exts, ok := avatarTypes[mt.String()]
	if !ok || !contains(exts, ext) {
		return "", ErrInvalidAvatar
	}

	previous := identity.AvatarURL()
	objectPath := path.Join("avatars", identity.ID().String(), uuid.NewString()+ext)
	url, err := s.Storage.Upload(ctx, objectPath, mt.String(), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	identity.SetAvatarURL(url)
	if err := s.save(ctx, identity); err != nil {
		return "", err
	}
	if previous != "" && previous != url {
		if err := s.Storage.Delete(ctx, previous); err != nil {
			s.log().WithError(err).WithField("url", previous).Warn("delete previous avatar failed")
		}
	}
	return url, nil
}

type AddressInput struct {
	Name        string
	Street      string
	CountryCode string
}

func (s *ProfileService) AddAddress(ctx context.Context, id uuid.UUID, in AddressInput) (*entity.Identity, error) {
	identity, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	addr, err := entity.NewAddress(in.Name, in.Street, in.CountryCode)
	if err != nil {
		return nil, err
	}
	identity.AddAddress(addr)
	if err := s.save(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

func (s *ProfileService) RemoveAddress(ctx context.Context, id, addressID uuid.UUID) (*entity.Identity, error) {
	identity, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := identity.RemoveAddress(addressID); err != nil {
		return nil, err
	}
	if err := s.save(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// save persists with optimistic concurrency, then refreshes the cached
// session and the search projection.
func (s *ProfileService) save(ctx context.Context, identity *entity.Identity) error {
	if err := s.Identities.Update(ctx, identity); err != nil {
		if errors.Is(err, repo.ErrDuplicateTaxID) {
			return ErrTaxIDTaken
		}
		return err
	}
	if s.Sessions != nil {
		if err := s.Sessions.Refresh(ctx, identity.ID().String(), identity.Name(), identity.AvatarURL()); err != nil {
			s.log().WithError(err).WithField("identity_id", identity.ID().String()).Warn("refresh session failed")
		}
	}
	if s.Index != nil {
		if err := s.Index.Index(ctx, identity); err != nil {
			s.log().WithError(err).WithField("identity_id", identity.ID().String()).Warn("index identity failed")
		}
	}
	return nil
}

func ensureTaxIDFree(ctx context.Context, identities repo.IdentityRepository, taxID string, self uuid.UUID) error {
	if taxID == "" {
		return nil
	}
	other, err := identities.GetByTaxID(ctx, taxID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID() != self:
		return ErrTaxIDTaken
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

