package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Health reports liveness plus database reachability.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		dbOK := true

		if db != nil {
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				dbOK = false
				status = http.StatusServiceUnavailable
			}
		}

		c.JSON(status, gin.H{
			"success":    dbOK,
			"database":   dbOK,
			"checked_at": time.Now().UTC(),
		})
	}
}
