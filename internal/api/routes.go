package api

import "github.com/gin-gonic/gin"

func RegisterRoutes(r *gin.Engine, h *Handler) {
	api := r.Group("/api")
	{
		api.GET("/health", health)
		api.GET("/stickers", h.stickerCatalog)

		api.POST("/sessions", h.createSession)
		s := api.Group("/sessions/:id")
		{
			s.GET("", h.getSession)
			s.DELETE("", h.deleteSession)

			s.POST("/camera/start", h.startCamera)
			s.POST("/camera/stop", h.stopCamera)
			s.POST("/camera/frame", h.pushFrame)
			s.POST("/countdown", h.countdown)
			s.POST("/capture", h.captureNow)
			s.POST("/upload", h.upload)

			s.DELETE("/photos", h.clearPhotos)
			s.DELETE("/photos/:index", h.deletePhoto)
			s.GET("/photos/:index/download", h.downloadPhoto)

			s.POST("/edit", h.goToEdit)
			s.PUT("/name", h.setName)
			s.DELETE("/name", h.cancelName)
			s.POST("/name/proceed", h.proceedToEdit)
			s.POST("/back", h.backToCamera)

			s.POST("/stickers", h.addSticker)
			s.PUT("/stickers/active", h.selectSticker)
			s.DELETE("/stickers/active", h.removeSticker)
			s.PATCH("/stickers/:sticker", h.transformSticker)

			s.GET("/preview", h.preview)
			s.GET("/poster", h.poster)
			s.GET("/poster/qr", h.posterQR)
		}
	}
}
