package helpers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// AccessTokenTTL is the fixed validity window of access tokens.
	AccessTokenTTL = 15 * time.Minute
	// MinSigningKeyLen is the HS512 block size; shorter keys are rejected.
	MinSigningKeyLen = 64

	refreshTokenBytes = 64
)

// JWTManager mints HS512 access tokens and opaque random tokens.
type JWTManager struct {
	SigningKey []byte
	Issuer     string
	AccessTTL  time.Duration
	now        func() time.Time
}

func NewJWTManager(signingKey, issuer string) (*JWTManager, error) {
	if len(signingKey) < MinSigningKeyLen {
		return nil, fmt.Errorf("jwt: signing key must be at least %d bytes, got %d", MinSigningKeyLen, len(signingKey))
	}
	return &JWTManager{
		SigningKey: []byte(signingKey),
		Issuer:     issuer,
		AccessTTL:  AccessTokenTTL,
		now:        time.Now,
	}, nil
}

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AccessToken is a signed access token and its identifying metadata.
type AccessToken struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

func (m *JWTManager) GenerateAccessToken(subject, email, role string) (AccessToken, error) {
	now := m.now().UTC()
	exp := now.Add(m.AccessTTL)
	jti := uuid.NewString()
	claims := &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			Issuer:    m.Issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(m.SigningKey)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Value: s, ID: jti, ExpiresAt: exp}, nil
}

// GenerateRefreshToken returns 64 random bytes, base64 encoded.
// The same primitive produces verification and reset tokens.
func (m *JWTManager) GenerateRefreshToken() (string, error) {
	return RandomToken(refreshTokenBytes)
}

func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (m *JWTManager) ParseAccessToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.Issuer))
	}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return m.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
