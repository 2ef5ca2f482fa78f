package upload

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the catalog API. guard protects the mutating
// routes, limit runs before multipart parsing on the upload routes.
func RegisterRoutes(api *gin.RouterGroup, h *Handler, guard, limit gin.HandlerFunc) {
	api.POST("/upload", guard, limit, h.Upload)
	api.POST("/upload/:folder", guard, limit, h.Upload)

	for _, table := range KnownTables {
		g := api.Group("/" + table)
		{
			g.GET("", h.List(table))
			g.GET("/:id", h.Get(table))
			g.PATCH("/:id", guard, h.UpdateMetadata(table))
			g.DELETE("/:id", guard, h.Delete(table))
		}
	}

	api.GET("/stats", h.Stats)
}

// RegisterStatic maps prefix onto the storage root.
func RegisterStatic(r *gin.Engine, prefix string, h *Handler) {
	r.GET(prefix+"/*filepath", h.Serve)
	r.HEAD(prefix+"/*filepath", h.Serve)
}
