package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-service/internal/application"
	"github.com/oksasatya/identity-service/internal/interface/middleware"
	"github.com/oksasatya/identity-service/pkg/response"
)

// ProfileHandler serves the authenticated identity's own profile.
type ProfileHandler struct {
	Service *application.ProfileService
	Logger  *logrus.Logger
}

func NewProfileHandler(service *application.ProfileService, logger *logrus.Logger) *ProfileHandler {
	return &ProfileHandler{Service: service, Logger: logger}
}

type updateProfileRequest struct {
	Name             *string `json:"name" binding:"omitempty,personname"`
	Phone            *string `json:"phone" binding:"omitempty,phone"`
	TaxID            *string `json:"tax_id" binding:"omitempty,rfc"`
	ConcurrencyStamp *int64  `json:"concurrency_stamp"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,pwd"`
}

type addressRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Street      string `json:"street" binding:"required,max=200"`
	CountryCode string `json:"country_code" binding:"required,len=2"`
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Error[any](c, http.StatusUnauthorized, "unauthorized", nil)
	}
	return id, ok
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	identity, err := h.Service.GetProfile(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toIdentityResponse(identity), "profile", nil)
}

func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	identity, err := h.Service.UpdateProfile(c.Request.Context(), id, application.UpdateProfileInput{
		Name:          req.Name,
		Phone:         req.Phone,
		TaxID:         req.TaxID,
		ExpectedStamp: req.ConcurrencyStamp,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toIdentityResponse(identity), "profile updated", nil)
}

func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	res, err := h.Service.ChangePassword(c.Request.Context(), id, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	writeResult(c, res)
}

// UploadAvatar expects a multipart form with an "avatar" file field.
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, application.MaxAvatarSize+1<<20)
	fh, err := c.FormFile("avatar")
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "avatar file is required", nil)
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	defer f.Close()

	url, err := h.Service.UploadAvatar(c.Request.Context(), id, fh.Filename, f)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"avatar_url": url}, "avatar updated", nil)
}

func (h *ProfileHandler) AddAddress(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	identity, err := h.Service.AddAddress(c.Request.Context(), id, application.AddressInput{
		Name:        req.Name,
		Street:      req.Street,
		CountryCode: req.CountryCode,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, toIdentityResponse(identity), "address added", nil)
}

func (h *ProfileHandler) RemoveAddress(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}
	addressID, err := uuid.Parse(c.Param("addressId"))
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid address id", nil)
		return
	}
	identity, err := h.Service.RemoveAddress(c.Request.Context(), id, addressID)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toIdentityResponse(identity), "address removed", nil)
}
