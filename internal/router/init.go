package router

import (
	"errors"

	"github.com/oksasatya/identity-service/internal/application"
	"github.com/oksasatya/identity-service/internal/container"
	repo "github.com/oksasatya/identity-service/internal/domain/repository"
	"github.com/oksasatya/identity-service/internal/infrastructure/cache"
	pginfra "github.com/oksasatya/identity-service/internal/infrastructure/postgres"
	"github.com/oksasatya/identity-service/internal/infrastructure/search"
	"github.com/oksasatya/identity-service/internal/infrastructure/storage"
	handlers "github.com/oksasatya/identity-service/internal/interface/http"
	"github.com/oksasatya/identity-service/internal/router/modules"
	"github.com/oksasatya/identity-service/pkg/helpers"
)

type Repositories struct {
	Identities repo.IdentityRepository
	Links      repo.ExternalLinkRepository
	Tx         repo.Transactor
}

type Services struct {
	Auth     *application.AuthService
	Profile  *application.ProfileService
	Users    *application.UserService
	Sessions application.SessionCache
}

// BuildRepositories picks the store backend registered in the container.
func BuildRepositories() (Repositories, error) {
	if pool := container.GetPGPool(); pool != nil {
		return Repositories{
			Identities: pginfra.NewIdentityRepository(pool),
			Links:      pginfra.NewExternalLinkRepository(pool),
			Tx:         pginfra.NewTxManager(pool),
		}, nil
	}
	if st := container.GetMemoryStore(); st != nil {
		return Repositories{Identities: st.Identities(), Links: st.Links(), Tx: st.Transactor()}, nil
	}
	return Repositories{}, errors.New("no identity store configured")
}

// BuildServices wires the application services. Redis, Elasticsearch and GCS
// are optional and degrade to nil collaborators.
func BuildServices(repos Repositories) (*Services, error) {
	cfg := container.GetConfig()
	logger := container.GetLogger()
	if container.GetJWT() == nil || container.GetCipher() == nil {
		return nil, errors.New("jwt manager and credential cipher are required")
	}

	var sessions application.SessionCache
	if rdb := container.GetRedis(); rdb != nil {
		sessions = cache.NewSessionCache(rdb)
	}
	var index application.IdentityIndex
	if es := container.GetES(); es != nil {
		index = search.NewIdentityIndex(es, cfg.ESUsersIndex)
	}
	var avatars application.AvatarStorage
	if gcs := container.GetGCS(); gcs != nil && cfg.GCSBucket != "" {
		st, err := storage.NewGCSAvatarStorage(gcs, cfg.GCSBucket)
		if err != nil {
			return nil, err
		}
		avatars = st
	}

	auth := application.NewAuthService(
		repos.Identities,
		repos.Links,
		repos.Tx,
		container.GetCipher(),
		container.GetJWT(),
		container.GetExternalValidator(),
		container.GetMailSender(),
		logger,
		cfg.FrontendBaseURL,
	)
	if sessions != nil {
		auth.Sessions = sessions
	}
	if index != nil {
		auth.Index = index
	}

	profile := application.NewProfileService(repos.Identities, container.GetCipher(), avatars, sessions, index, logger)
	users := application.NewUserService(repos.Identities, container.GetCipher(), index, sessions, logger)

	return &Services{Auth: auth, Profile: profile, Users: users, Sessions: sessions}, nil
}

// InitModules initializes all application modules and registers them with the router registry.
// It should be called once during application startup.
func InitModules(r *Registry) error {
	repos, err := BuildRepositories()
	if err != nil {
		return err
	}
	svc, err := BuildServices(repos)
	if err != nil {
		return err
	}
	cfg := container.GetConfig()
	logger := container.GetLogger()
	jwt := container.GetJWT()

	cookies := helpers.NewCookie(cfg.CookieDomain, cfg.CookieSecure)
	r.Add(modules.NewAuthModule(handlers.NewAuthHandler(svc.Auth, cookies, logger), jwt, svc.Sessions))
	r.Add(modules.NewProfileModule(handlers.NewProfileHandler(svc.Profile, logger), jwt, svc.Sessions))
	r.Add(modules.NewUserModule(handlers.NewUserHandler(svc.Users, logger), jwt, svc.Sessions))
	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule())
	}
	return nil
}
