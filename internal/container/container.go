package container

import (
	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-service/config"
	"github.com/oksasatya/identity-service/internal/application"
	"github.com/oksasatya/identity-service/internal/infrastructure/memory"
	"github.com/oksasatya/identity-service/pkg/helpers"
)

// app-level container to share constructed components across packages.
// The router wires modules from these singletons; optional backends stay nil
// when not configured.

var (
	cfg         *config.Config
	logger      *logrus.Logger
	pgPool      *pgxpool.Pool
	memStore    *memory.Store
	redisClient *redis.Client
	gcsClient   *storage.Client
	esClient    *elasticsearch.Client

	jwtManager *helpers.JWTManager
	cipher     *helpers.CredentialCipher

	mailSender        application.EmailSender
	externalValidator application.ExternalIdentityValidator
)

func SetConfig(c *config.Config) { cfg = c }
func GetConfig() *config.Config  { return cfg }
func SetLogger(l *logrus.Logger) { logger = l }
func GetLogger() *logrus.Logger {
	if logger == nil {
		return logrus.StandardLogger()
	}
	return logger
}
func SetPGPool(p *pgxpool.Pool)                  { pgPool = p }
func GetPGPool() *pgxpool.Pool                   { return pgPool }
func SetMemoryStore(s *memory.Store)             { memStore = s }
func GetMemoryStore() *memory.Store              { return memStore }
func SetRedis(r *redis.Client)                   { redisClient = r }
func GetRedis() *redis.Client                    { return redisClient }
func SetGCS(s *storage.Client)                   { gcsClient = s }
func GetGCS() *storage.Client                    { return gcsClient }
func SetES(c *elasticsearch.Client)              { esClient = c }
func GetES() *elasticsearch.Client               { return esClient }
func SetJWT(m *helpers.JWTManager)               { jwtManager = m }
func GetJWT() *helpers.JWTManager                { return jwtManager }
func SetCipher(c *helpers.CredentialCipher)      { cipher = c }
func GetCipher() *helpers.CredentialCipher       { return cipher }
func SetMailSender(s application.EmailSender)    { mailSender = s }
func GetMailSender() application.EmailSender     { return mailSender }

func SetExternalValidator(v application.ExternalIdentityValidator) { externalValidator = v }
func GetExternalValidator() application.ExternalIdentityValidator  { return externalValidator }
