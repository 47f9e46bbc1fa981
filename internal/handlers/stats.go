package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noticeboardhq/noticeboard/internal/services"
	"github.com/noticeboardhq/noticeboard/pkg/response"
)

// StatsHandler exposes the community aggregate for the landing page.
type StatsHandler struct {
	svc *services.StatsService
}

// NewStatsHandler wires the stats endpoint.
func NewStatsHandler(svc *services.StatsService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// GET /api/stats
func (h *StatsHandler) Community(c *gin.Context) {
	stats, err := h.svc.Community(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}
