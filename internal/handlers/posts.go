package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	iauth "github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/services"
	"github.com/noticeboardhq/noticeboard/pkg/errors"
	"github.com/noticeboardhq/noticeboard/pkg/response"
)

// PostHandler exposes the community board.
type PostHandler struct {
	svc *services.PostService
}

// NewPostHandler wires the board endpoints.
func NewPostHandler(svc *services.PostService) *PostHandler {
	return &PostHandler{svc: svc}
}

// GET /api/posts
func (h *PostHandler) List(c *gin.Context) {
	// Plain listing without filters serves the cached hot path.
	if c.Query("q") == "" && c.Query("category") == "" && c.Query("page") == "" {
		posts, err := h.svc.Recent(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, posts)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	per, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	posts, total, err := h.svc.Search(c.Request.Context(), c.Query("q"), c.Query("category"), page, per)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, posts, &response.Meta{Page: page, PerPage: per, Total: int(total)})
}

// GET /api/posts/categories
func (h *PostHandler) CategoryCounts(c *gin.Context) {
	counts, err := h.svc.CategoryCounts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, counts)
}

// GET /api/posts/:id
func (h *PostHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	post, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

// POST /api/posts
func (h *PostHandler) Create(c *gin.Context) {
	identity, ok := iauth.CurrentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var input services.PostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, errors.NewValidation("invalid post payload"))
		return
	}

	post, err := h.svc.Create(c.Request.Context(), identity, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, post)
}

// PATCH /api/posts/:id
func (h *PostHandler) Update(c *gin.Context) {
	identity, ok := iauth.CurrentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id, ok := pathID(c)
	if !ok {
		return
	}

	var input services.PostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, errors.NewValidation("invalid post payload"))
		return
	}

	post, err := h.svc.Update(c.Request.Context(), identity, id, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

// DELETE /api/posts/:id
func (h *PostHandler) Delete(c *gin.Context) {
	identity, ok := iauth.CurrentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), identity, id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/posts/:id/comments
func (h *PostHandler) AddComment(c *gin.Context) {
	identity, ok := iauth.CurrentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id, ok := pathID(c)
	if !ok {
		return
	}

	var input services.CommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, errors.NewValidation("invalid comment payload"))
		return
	}

	comment, err := h.svc.AddComment(c.Request.Context(), identity, id, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, comment)
}

// pathID parses the :id path parameter, writing the error response itself on
// failure.
func pathID(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		response.Error(c, errors.NewValidation("invalid id"))
		return 0, false
	}
	return uint(id), true
}
