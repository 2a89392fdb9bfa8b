package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-service/internal/application"
	"github.com/oksasatya/identity-service/pkg/response"
)

// UserHandler is the administrative identity API.
type UserHandler struct {
	Service *application.UserService
	Logger  *logrus.Logger
}

func NewUserHandler(service *application.UserService, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Service: service, Logger: logger}
}

type createUserRequest struct {
	Name     string `json:"name" binding:"required,personname"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
	Phone    string `json:"phone" binding:"omitempty,phone"`
	TaxID    string `json:"tax_id" binding:"omitempty,rfc"`
	Role     string `json:"role" binding:"required,oneof=User Admin"`
}

type updateUserRequest struct {
	Name             *string `json:"name" binding:"omitempty,personname"`
	Email            *string `json:"email" binding:"omitempty,email"`
	Phone            *string `json:"phone" binding:"omitempty,phone"`
	TaxID            *string `json:"tax_id" binding:"omitempty,rfc"`
	Role             *string `json:"role" binding:"omitempty,oneof=User Admin"`
	ConcurrencyStamp *int64  `json:"concurrency_stamp"`
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid user id", nil)
		return uuid.Nil, false
	}
	return id, true
}

// List accepts ?filter=name co "ann"&sortedBy=-created_at&limit=&offset=.
func (h *UserHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	items, err := h.Service.List(c.Request.Context(), c.Query("filter"), c.Query("sortedBy"), limit, offset)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	out := make([]IdentityResponse, 0, len(items))
	for _, i := range items {
		out = append(out, toIdentityResponse(i))
	}
	response.Success(c, http.StatusOK, out, "users", gin.H{"count": len(out), "limit": limit, "offset": offset})
}

func (h *UserHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	hits, err := h.Service.Search(c.Request.Context(), c.Query("q"), size)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, hits, "search results", gin.H{"count": len(hits)})
}

func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	identity, err := h.Service.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toIdentityResponse(identity), "user", nil)
}

func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	identity, err := h.Service.Create(c.Request.Context(), application.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		TaxID:    req.TaxID,
		Role:     req.Role,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, toIdentityResponse(identity), "user created", nil)
}

func (h *UserHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	identity, err := h.Service.Update(c.Request.Context(), id, application.UpdateUserInput{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		TaxID:         req.TaxID,
		Role:          req.Role,
		ExpectedStamp: req.ConcurrencyStamp,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toIdentityResponse(identity), "user updated", nil)
}

func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Service.Delete(c.Request.Context(), id); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "user deleted", nil)
}
