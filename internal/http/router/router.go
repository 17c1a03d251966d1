package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"janatpmp.app/syncd/internal/http/handler"
)

func SetupRoutes(router *gin.Engine, syncHandler *handler.SyncHandler, mutationHandler *handler.MutationHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		SyncRouter(v1.Group("/sync"), syncHandler)
		v1.POST("/mutations", mutationHandler.Record)
	}
}

func SyncRouter(group *gin.RouterGroup, h *handler.SyncHandler) {
	group.GET("/pending", h.Pending)
	group.GET("/dead-letters", h.DeadLetters)
	group.POST("/dead-letters/:id/redrive", h.Redrive)
}
