package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "client-123.apps.googleusercontent.com"

func newTestValidator(t *testing.T) (*GoogleValidator, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys := &gooidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return newGoogleValidator(keys, testClientID, nil), key
}

func sign(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func baseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            testClientID,
		"sub":            "1098765",
		"email":          "fed@example.com",
		"email_verified": true,
		"name":           "Fed User",
		"picture":        "https://lh3.googleusercontent.com/a/pic",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
}

func TestValidate_AcceptsGoogleToken(t *testing.T) {
	v, key := newTestValidator(t)

	for _, iss := range []string{"https://accounts.google.com", "accounts.google.com"} {
		claims := baseClaims()
		claims["iss"] = iss
		ext, err := v.Validate(context.Background(), "Google", sign(t, key, claims))
		require.NoError(t, err, iss)
		assert.Equal(t, "1098765", ext.SubjectID)
		assert.Equal(t, "fed@example.com", ext.Email)
		assert.Equal(t, "Fed User", ext.DisplayName)
		assert.Equal(t, "https://lh3.googleusercontent.com/a/pic", ext.PictureURL)
	}
}

func TestValidate_Rejects(t *testing.T) {
	v, key := newTestValidator(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := map[string]func() string{
		"wrong audience": func() string {
			c := baseClaims()
			c["aud"] = "someone-else"
			return sign(t, key, c)
		},
		"expired": func() string {
			c := baseClaims()
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return sign(t, key, c)
		},
		"foreign issuer": func() string {
			c := baseClaims()
			c["iss"] = "https://evil.example.com"
			return sign(t, key, c)
		},
		"unverified email": func() string {
			c := baseClaims()
			c["email_verified"] = false
			return sign(t, key, c)
		},
		"no email": func() string {
			c := baseClaims()
			delete(c, "email")
			return sign(t, key, c)
		},
		"unknown key": func() string { return sign(t, other, baseClaims()) },
		"garbage":     func() string { return "not.a.jwt" },
		"empty":       func() string { return "" },
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			ext, err := v.Validate(context.Background(), "google", token())
			assert.Error(t, err)
			assert.Nil(t, ext)
		})
	}
}

func TestValidate_UnsupportedProvider(t *testing.T) {
	v, key := newTestValidator(t)
	_, err := v.Validate(context.Background(), "facebook", sign(t, key, baseClaims()))
	assert.Error(t, err)
}

func TestNewGoogleValidator_RequiresClientID(t *testing.T) {
	_, err := NewGoogleValidator(context.Background(), "")
	assert.Error(t, err)
}
