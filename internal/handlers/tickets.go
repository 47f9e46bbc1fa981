package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/services"
	"github.com/noticeboardhq/noticeboard/pkg/errors"
	"github.com/noticeboardhq/noticeboard/pkg/response"
)

// TicketHandler exposes the helpdesk.
type TicketHandler struct {
	svc *services.TicketService
}

// NewTicketHandler wires the helpdesk endpoints.
func NewTicketHandler(svc *services.TicketService) *TicketHandler {
	return &TicketHandler{svc: svc}
}

// GET /api/tickets
func (h *TicketHandler) List(c *gin.Context) {
	identity, ok := iauth.CurrentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	// Admins see the shared open queue; members see their own tickets.
	if identity.IsAdmin() {
		tickets, err := h.svc.Open(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, tickets)
		return
	}

	tickets, err := h.svc.ListForUser(c.Request.Context(), identity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tickets)
}

// GET /api/tickets/:id
func (h *TicketHandler) Get(c *gin.Context) {
	identity, ok := iauth.CurrentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id, ok := pathID(c)
	if !ok {
		return
	}

	ticket, err := h.svc.Get(c.Request.Context(), identity, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, ticket)
}

// POST /api/tickets
func (h *TicketHandler) Create(c *gin.Context) {
	identity, ok := iauth.CurrentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var input services.TicketInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, errors.NewValidation("invalid ticket payload"))
		return
	}

	ticket, err := h.svc.Create(c.Request.Context(), identity, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, ticket)
}

// POST /api/tickets/:id/replies
func (h *TicketHandler) Reply(c *gin.Context) {
	identity, ok := iauth.CurrentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id, ok := pathID(c)
	if !ok {
		return
	}

	var input services.ReplyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, errors.NewValidation("invalid reply payload"))
		return
	}

	reply, err := h.svc.Reply(c.Request.Context(), identity, id, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, reply)
}

// POST /api/tickets/:id/close
func (h *TicketHandler) Close(c *gin.Context) {
	identity, ok := iauth.CurrentIdentity(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.svc.Close(c.Request.Context(), identity, id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"closed": true})
}
