package application

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/identity-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-service/internal/domain/repository"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newProfileService(f *fixture, storage AvatarStorage) *ProfileService {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewProfileService(f.store.Identities(), f.cipher, storage, f.sessions, f.index, logger)
}

func ptr[T any](v T) *T { return &v }

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	svc := newProfileService(f, nil)
	ctx := context.Background()
	ann := f.seed(t, "Ann", "ann@example.com", "secret1")
	require.NoError(t, f.sessions.Put(ctx, Session{IdentityID: ann.ID().String(), Name: "Ann", TokenID: "jti-1"}, time.Minute))

	updated, err := svc.UpdateProfile(ctx, ann.ID(), UpdateProfileInput{
		Name:          ptr("Ann Lee"),
		TaxID:         ptr("goma800101ab1"),
		ExpectedStamp: ptr(ann.ConcurrencyStamp()),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", updated.Name())
	assert.Equal(t, "GOMA800101AB1", updated.TaxID())
	assert.Equal(t, ann.ConcurrencyStamp()+1, updated.ConcurrencyStamp())

	sess, err := f.sessions.Get(ctx, ann.ID().String())
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", sess.Name)
	assert.Equal(t, "jti-1", sess.TokenID)
	assert.Equal(t, time.Minute, f.sessions.ttls[ann.ID().String()])
	assert.Equal(t, "Ann Lee", f.index.docs[ann.ID().String()])
}

func TestUpdateProfile_DoesNotRecreateExpiredSession(t *testing.T) {
	f := newFixture(t)
	svc := newProfileService(f, nil)
	ctx := context.Background()
	ann := f.seed(t, "Ann", "ann@example.com", "secret1")

	_, err := svc.UpdateProfile(ctx, ann.ID(), UpdateProfileInput{Name: ptr("Ann Lee")})
	require.NoError(t, err)

	sess, err := f.sessions.Get(ctx, ann.ID().String())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestUpdateProfile_StaleStamp(t *testing.T) {
	f := newFixture(t)
	svc := newProfileService(f, nil)
	ctx := context.Background()
	ann := f.seed(t, "Ann", "ann@example.com", "secret1")
	stale := ann.ConcurrencyStamp()

	_, err := svc.UpdateProfile(ctx, ann.ID(), UpdateProfileInput{Name: ptr("First"), ExpectedStamp: ptr(stale)})
	require.NoError(t, err)
	_, err = svc.UpdateProfile(ctx, ann.ID(), UpdateProfileInput{Name: ptr("Second"), ExpectedStamp: ptr(stale)})
	assert.ErrorIs(t, err, repo.ErrConcurrencyConflict)

	stored, err := svc.GetProfile(ctx, ann.ID())
	require.NoError(t, err)
	assert.Equal(t, "First", stored.Name())
}

func TestUpdateProfile_TaxIDTaken(t *testing.T) {
	f := newFixture(t)
	svc := newProfileService(f, nil)
	ctx := context.Background()
	ann := f.seed(t, "Ann", "ann@example.com", "secret1")
	bob := f.seed(t, "Bob", "bob@example.com", "secret1")

	_, err := svc.UpdateProfile(ctx, ann.ID(), UpdateProfileInput{TaxID: ptr("GOMA800101AB1")})
	require.NoError(t, err)
	_, err = svc.UpdateProfile(ctx, bob.ID(), UpdateProfileInput{TaxID: ptr("goma800101ab1")})
	assert.ErrorIs(t, err, ErrTaxIDTaken)

	// Keeping one's own tax id is not a conflict.
	_, err = svc.UpdateProfile(ctx, ann.ID(), UpdateProfileInput{TaxID: ptr("GOMA800101AB1")})
	assert.NoError(t, err)
}

func TestGetProfile_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := newProfileService(f, nil).GetProfile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	svc := newProfileService(f, nil)
	ctx := context.Background()
	ann := f.seed(t, "Ann", "ann@example.com", "secret1")

	_, err := svc.ChangePassword(ctx, ann.ID(), "wrong", "newpass1")
	assert.ErrorIs(t, err, ErrWrongPassword)

	res, err := svc.ChangePassword(ctx, ann.ID(), "secret1", "newpass1")
	require.NoError(t, err)
	assert.Equal(t, AuthResult{Success: true, Message: MsgPasswordChanged}, res)

	_, err = f.auth.Login(ctx, "ann@example.com", "newpass1")
	assert.NoError(t, err)
	_, err = f.auth.Login(ctx, "ann@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword_FederatedAndMissing(t *testing.T) {
	f := newFixture(t)
	svc := newProfileService(f, nil)
	ctx := context.Background()
	fed, err := entity.NewFederatedIdentity("Fed", "fed@example.com", "", f.now)
	require.NoError(t, err)
	require.NoError(t, f.store.Identities().Create(ctx, fed))

	_, err = svc.ChangePassword(ctx, fed.ID(), "", "newpass1")
	assert.ErrorIs(t, err, entity.ErrNoLocalCredential)

	res, err := svc.ChangePassword(ctx, uuid.New(), "a", "b")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestUploadAvatar(t *testing.T) {
	f := newFixture(t)
	storage := &fakeStorage{}
	svc := newProfileService(f, storage)
	ctx := context.Background()
	ann := f.seed(t, "Ann", "ann@example.com", "secret1")

	first, err := svc.UploadAvatar(ctx, ann.ID(), "me.PNG", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	prefix := "https://storage.test/bucket/avatars/" + ann.ID().String() + "/"
	assert.True(t, strings.HasPrefix(first, prefix), first)
	assert.True(t, strings.HasSuffix(first, ".png"), first)

	second, err := svc.UploadAvatar(ctx, ann.ID(), "again.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{first}, storage.deleted)
	assert.Len(t, storage.uploads, 2)
	for _, ct := range storage.uploads {
		assert.Equal(t, "image/png", ct)
	}

	stored, err := svc.GetProfile(ctx, ann.ID())
	require.NoError(t, err)
	assert.Equal(t, second, stored.AvatarURL())
}

func TestUploadAvatar_Rejected(t *testing.T) {
	f := newFixture(t)
	svc := newProfileService(f, &fakeStorage{})
	ctx := context.Background()
	ann := f.seed(t, "Ann", "ann@example.com", "secret1")

	cases := map[string]struct {
		filename string
		body     []byte
	}{
		"text file":          {"notes.png", []byte("just some text")},
		"extension mismatch": {"me.jpg", pngHeader},
		"empty":              {"me.png", nil},
		"too large":          {"me.png", append(append([]byte{}, pngHeader...), make([]byte, MaxAvatarSize)...)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.UploadAvatar(ctx, ann.ID(), tc.filename, bytes.NewReader(tc.body))
			assert.ErrorIs(t, err, ErrInvalidAvatar)
		})
	}

	_, err := newProfileService(f, nil).UploadAvatar(ctx, ann.ID(), "me.png", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestAddresses(t *testing.T) {
	f := newFixture(t)
	svc := newProfileService(f, nil)
	ctx := context.Background()
	ann := f.seed(t, "Ann", "ann@example.com", "secret1")

	updated, err := svc.AddAddress(ctx, ann.ID(), AddressInput{Name: "Home", Street: "1 Main St", CountryCode: "mx"})
	require.NoError(t, err)
	require.Len(t, updated.Addresses(), 1)
	addr := updated.Addresses()[0]
	assert.Equal(t, "MX", addr.CountryCode)

	_, err = svc.AddAddress(ctx, ann.ID(), AddressInput{Name: "Bad", Street: "x", CountryCode: "MEX"})
	assert.Error(t, err)

	updated, err = svc.RemoveAddress(ctx, ann.ID(), addr.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Addresses())

	_, err = svc.RemoveAddress(ctx, ann.ID(), addr.ID)
	assert.Error(t, err)
}
