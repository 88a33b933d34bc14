package api

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the API on r.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	if h.metrics != nil {
		r.Use(h.metrics.Middleware())
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := r.Group("/api")
	{
		api.GET("/health", health)

		api.POST("/image/render", h.renderImage)
		api.GET("/image/share", h.shareImage)

		v := api.Group("/viewer")
		v.GET("", h.viewerState)
		v.PUT("/url", h.setViewerURL)
		v.PUT("/target", h.setViewerTarget)
		v.POST("/triggers/:name", h.trigger)
		v.GET("/image", h.viewerImage)

		b := api.Group("/bridge")
		b.POST("/pages", h.openPage)
		b.POST("/pages/:id/events", h.firePageEvent)
		b.DELETE("/pages/:id", h.closePage)
		b.GET("/events", h.bridgeEvents)
	}
}
