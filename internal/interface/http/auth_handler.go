package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-service/internal/application"
	"github.com/oksasatya/identity-service/internal/interface/middleware"
	"github.com/oksasatya/identity-service/pkg/helpers"
	"github.com/oksasatya/identity-service/pkg/response"
)

type AuthHandler struct {
	Service *application.AuthService
	Cookies *helpers.Manager
	Logger  *logrus.Logger
}

func NewAuthHandler(service *application.AuthService, cookies *helpers.Manager, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{Service: service, Cookies: cookies, Logger: logger}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,personname"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
	Phone    string `json:"phone" binding:"omitempty,phone"`
	TaxID    string `json:"tax_id" binding:"omitempty,rfc"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type externalLoginRequest struct {
	Provider string `json:"provider" binding:"required"`
	IDToken  string `json:"id_token" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenRequest struct {
	Token string `json:"token" form:"token" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,pwd"`
}

// writeResult renders the uniform outcome: 200 on success, 400 otherwise.
func writeResult(c *gin.Context, res application.AuthResult) {
	if res.Success {
		response.Success[any](c, http.StatusOK, nil, res.Message, nil)
		return
	}
	response.Error[any](c, http.StatusBadRequest, res.Message, nil)
}

func (h *AuthHandler) writeTokens(c *gin.Context, pair application.TokenPair, message string) {
	if h.Cookies != nil {
		h.Cookies.SetPair(c, pair.AccessToken, pair.AccessTokenExpiry, pair.RefreshToken, pair.RefreshTokenExpiry)
	}
	response.Success(c, http.StatusOK, toTokenResponse(pair), message, nil)
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	res, err := h.Service.Register(c.Request.Context(), application.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		TaxID:    req.TaxID,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	writeResult(c, res)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	pair, err := h.Service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	h.writeTokens(c, pair, "login successful")
}

func (h *AuthHandler) ExternalLogin(c *gin.Context) {
	var req externalLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	pair, err := h.Service.ExternalLogin(c.Request.Context(), req.Provider, req.IDToken)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	h.writeTokens(c, pair, "login successful")
}

// Refresh reads the refresh token from the body, falling back to the cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	// An empty body is allowed; chunked bodies report no length.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBindError(c, err)
		return
	}
	if req.RefreshToken == "" {
		req.RefreshToken, _ = c.Cookie(helpers.RefreshCookie)
	}
	pair, err := h.Service.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	h.writeTokens(c, pair, "token refreshed")
}

func (h *AuthHandler) Logout(c *gin.Context) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Error[any](c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	if err := h.Service.Logout(c.Request.Context(), id); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	if h.Cookies != nil {
		h.Cookies.Clear(c)
	}
	response.Success[any](c, http.StatusOK, nil, application.MsgLoggedOut, nil)
}

// VerifyEmail accepts the token as a query parameter (GET) or in the body (POST).
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req tokenRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		writeBindError(c, err)
		return
	}
	res, err := h.Service.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	writeResult(c, res)
}

func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	res, err := h.Service.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	writeResult(c, res)
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	res, err := h.Service.ResetPassword(c.Request.Context(), req.Token, req.NewPassword)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	writeResult(c, res)
}
