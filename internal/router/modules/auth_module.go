package modules

import (
	"github.com/gin-gonic/gin"

	"github.com/oksasatya/identity-service/internal/application"
	handlers "github.com/oksasatya/identity-service/internal/interface/http"
	"github.com/oksasatya/identity-service/internal/interface/middleware"
	"github.com/oksasatya/identity-service/pkg/helpers"
)

// AuthModule registers the public credential flows under /auth.
type AuthModule struct {
	Handler  *handlers.AuthHandler
	JWT      *helpers.JWTManager
	Sessions application.SessionCache
}

func NewAuthModule(h *handlers.AuthHandler, jwt *helpers.JWTManager, sessions application.SessionCache) *AuthModule {
	return &AuthModule{Handler: h, JWT: jwt, Sessions: sessions}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	g := rg.Group("/auth")
	g.POST("/register", m.Handler.Register)
	g.POST("/login", m.Handler.Login)
	g.POST("/external-login", m.Handler.ExternalLogin)
	g.POST("/refresh", m.Handler.Refresh)
	g.GET("/verify-email", m.Handler.VerifyEmail)
	g.POST("/verify-email", m.Handler.VerifyEmail)
	g.POST("/forgot-password", m.Handler.ForgotPassword)
	g.POST("/reset-password", m.Handler.ResetPassword)

	g.POST("/logout", middleware.Auth(m.JWT, m.Sessions), m.Handler.Logout)
}
