package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/services"
	"github.com/noticeboardhq/noticeboard/pkg/errors"
	"github.com/noticeboardhq/noticeboard/pkg/response"
)

// AuthHandler exposes login and registration.
type AuthHandler struct {
	users *services.UserService
	jwt   *iauth.JWTService
}

// NewAuthHandler wires the auth endpoints.
func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errors.NewValidation("username and password are required"))
		return
	}

	identity, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(identity)
	if err != nil {
		response.Error(c, errors.Wrap(err, "issue access token"))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user":  identity,
	})
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var input services.RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, errors.NewValidation("invalid registration payload"))
		return
	}

	profile, err := h.users.Register(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, profile)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := iauth.CurrentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, identity)
}
