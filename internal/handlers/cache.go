package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noticeboardhq/noticeboard/internal/app/maintenance"
	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/pkg/logger"
)

// CacheHandler is the admin dashboard's cache-management surface. Its
// response shape is a fixed contract with the dashboard: a flat JSON object
// with a success flag plus a message or error string, not the standard API
// envelope. Access control (admin JWT + anti-forgery token) is applied by the
// router group.
type CacheHandler struct {
	store cache.Store
	inv   *cache.Invalidator
	job   *maintenance.Job
	log   *zap.Logger
}

// NewCacheHandler wires the cache-management endpoint.
func NewCacheHandler(store cache.Store, inv *cache.Invalidator, job *maintenance.Job) *CacheHandler {
	return &CacheHandler{
		store: store,
		inv:   inv,
		job:   job,
		log:   logger.WithModule("cache.admin"),
	}
}

type cacheActionRequest struct {
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// GET /api/admin/cache/stats
func (h *CacheHandler) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to read cache stats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// POST /api/admin/cache
func (h *CacheHandler) Action(c *gin.Context) {
	var req cacheActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}

	ctx := c.Request.Context()

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "stats":
		h.Stats(c)

	case "cleanup":
		removed, err := h.store.Cleanup(ctx)
		if err != nil {
			h.fail(c, http.StatusInternalServerError, "Cleanup failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"message":         "Expired entries removed",
			"cleaned_entries": removed,
		})

	case "clear":
		removed, err := h.store.Clear(ctx)
		if err != nil {
			h.fail(c, http.StatusInternalServerError, "Clear failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"message":         "Cache cleared",
			"cleared_entries": removed,
		})

	case "warm":
		warmed, err := h.job.Warm(ctx)
		if err != nil {
			// Partial warms still report the keys that were written.
			h.log.Warn("cache warm incomplete", zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"message":     "Hot keys repopulated",
			"warmed_keys": warmed,
		})

	case "maintenance":
		report, err := h.job.RunOnce(ctx)
		if err != nil {
			h.fail(c, http.StatusInternalServerError, "Maintenance run failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Maintenance completed",
			"report":  report,
		})

	case "invalidate":
		entity := strings.TrimSpace(req.EntityType)
		if entity == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "entity_type is required"})
			return
		}
		if raw := strings.TrimSpace(req.EntityID); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "entity_id must be numeric"})
				return
			}
			h.inv.Invalidate(ctx, entity, uint(id))
		} else {
			h.inv.Invalidate(ctx, entity)
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Invalidation completed",
		})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Unknown action"})
	}
}

// fail logs the underlying error and returns a generic message; driver and
// filesystem detail stays server-side.
func (h *CacheHandler) fail(c *gin.Context, status int, message string, err error) {
	h.log.Error("cache action failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(status, gin.H{"success": false, "error": message})
}
