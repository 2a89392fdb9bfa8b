package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "queue", cfg.MailDelivery)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("FRONTEND_BASE_URL", "https://app.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com , ,https://b.example.com")
	t.Setenv("DB_MAX_CONN_LIFETIME", "30m")
	t.Setenv("COOKIE_SECURE", "not-a-bool")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "https://app.example.com", cfg.FrontendBaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins())
	assert.Equal(t, 30*time.Minute, cfg.DBMaxConnLife)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.CredentialKey = "short"
	cfg.CredentialIV = "also-short"
	cfg.JWTSigningKey = "tiny"
	cfg.StoreDriver = "mysql"
	cfg.MailDelivery = "pigeon"
	cfg.FrontendBaseURL = ""

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"CREDENTIAL_ENCRYPTION_KEY",
		"CREDENTIAL_ENCRYPTION_IV",
		"JWT_SIGNING_KEY",
		"STORE_DRIVER",
		"MAIL_DELIVERY",
		"FRONTEND_BASE_URL",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "5432", DBName: "d", DBSSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", cfg.PostgresDSN())
}
