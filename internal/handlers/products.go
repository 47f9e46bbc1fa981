package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/services"
	"github.com/noticeboardhq/noticeboard/pkg/errors"
	"github.com/noticeboardhq/noticeboard/pkg/response"
)

// ProductHandler exposes the storefront and its admin management surface.
type ProductHandler struct {
	svc *services.ProductService
}

// NewProductHandler wires the storefront endpoints.
func NewProductHandler(svc *services.ProductService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// GET /api/products
func (h *ProductHandler) Catalog(c *gin.Context) {
	products, err := h.svc.Catalog(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, products)
}

// GET /api/products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, product)
}

// POST /api/admin/products
func (h *ProductHandler) Create(c *gin.Context) {
	var input services.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, errors.NewValidation("invalid product payload"))
		return
	}

	product, err := h.svc.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, product)
}

// PATCH /api/admin/products/:id
func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var input services.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, errors.NewValidation("invalid product payload"))
		return
	}

	product, err := h.svc.Update(c.Request.Context(), id, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, product)
}

// DELETE /api/admin/products/:id
func (h *ProductHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/orders
func (h *ProductHandler) PlaceOrder(c *gin.Context) {
	identity, ok := iauth.CurrentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var input services.OrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, errors.NewValidation("invalid order payload"))
		return
	}

	order, err := h.svc.PlaceOrder(c.Request.Context(), identity, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, order)
}
