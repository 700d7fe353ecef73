// Package api exposes the chat service over HTTP with gin.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

// RequestLogger 记录每个请求的方法、路径、状态码和耗时。
func RequestLogger(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			Status:     c.Writer.Status(),
			LatencyMS:  time.Since(start).Milliseconds(),
		}).Debug("Request handled")
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(api *API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(api.logger))
	RegisterRoutes(router, api)
	return router
}

// RegisterRoutes registers all the routes for the chat service.
func RegisterRoutes(router *gin.Engine, api *API) {
	router.GET("/health", api.HealthHandler)
	router.GET("/metrics", gin.WrapH(api.metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/chat", api.ChatHandler)
	v1.POST("/feedback", api.FeedbackHandler)
	v1.POST("/scraper", api.ScraperHandler)
	v1.POST("/form-submit", api.FormSubmitHandler)
	v1.GET("/form-submissions", api.ListSubmissionsHandler)
	v1.GET("/admin/conversations", api.ListConversationsHandler)

	kb := v1.Group("/knowledge")
	{
		kb.GET("", api.ListFactsHandler)
		kb.POST("", api.CreateFactHandler)
		kb.GET("/stats", api.StatsHandler)
		kb.POST("/bulk", api.BulkCreateHandler)
		kb.POST("/bulk-delete", api.BulkDeleteHandler)
		kb.POST("/find-conflicts", api.FindConflictsHandler)
		kb.GET("/:id", api.GetFactHandler)
		kb.PATCH("/:id", api.UpdateFactHandler)
		kb.DELETE("/:id", api.DeleteFactHandler)
	}

	updates := v1.Group("/rag-updates")
	{
		updates.GET("", api.ListUpdatesHandler)
		updates.POST("", api.AppendUpdateHandler)
	}
}
