package modules

import (
	"github.com/gin-gonic/gin"

	"github.com/oksasatya/identity-service/internal/application"
	handlers "github.com/oksasatya/identity-service/internal/interface/http"
	"github.com/oksasatya/identity-service/internal/interface/middleware"
	"github.com/oksasatya/identity-service/pkg/helpers"
)

type ProfileModule struct {
	Handler  *handlers.ProfileHandler
	JWT      *helpers.JWTManager
	Sessions application.SessionCache
}

func NewProfileModule(h *handlers.ProfileHandler, jwt *helpers.JWTManager, sessions application.SessionCache) *ProfileModule {
	return &ProfileModule{Handler: h, JWT: jwt, Sessions: sessions}
}

func (m *ProfileModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/profile")
	auth.Use(middleware.Auth(m.JWT, m.Sessions))
	{
		auth.GET("", m.Handler.GetProfile)
		auth.PUT("", m.Handler.UpdateProfile)
		auth.PUT("/password", m.Handler.ChangePassword)
		auth.POST("/avatar", m.Handler.UploadAvatar)
		auth.POST("/addresses", m.Handler.AddAddress)
		auth.DELETE("/addresses/:addressId", m.Handler.RemoveAddress)
	}
}
