package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"portfolio/internal/database"
	"portfolio/internal/domain/upload"
)

// healthHandler reports database connectivity and whether the storage root
// is writable. It always answers 200; degraded state is in the body.
func healthHandler(db *gorm.DB, store *upload.DiskStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		dbStatus := "connected"
		storageStatus := "writable"

		if err := database.Ping(c.Request.Context(), db); err != nil {
			status = "degraded"
			dbStatus = fmt.Sprintf("error: %v", err)
		}

		if err := store.CheckWritable(); err != nil {
			status = "degraded"
			storageStatus = fmt.Sprintf("error: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   status,
			"database": dbStatus,
			"storage":  storageStatus,
		})
	}
}
