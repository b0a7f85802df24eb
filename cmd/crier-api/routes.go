package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	crier "github.com/matthewjhunter/crier"
	"github.com/matthewjhunter/crier/internal/logging"
)

// newRouter wires the /autonomy surface. Every tenant-scoped route runs
// behind tenantAuth.
func newRouter(engine *crier.Engine, secret []byte, log logging.Logger) http.Handler {
	r := gin.New()
	r.Use(recovery(log), requestLogger(log))

	h := &handlers{engine: engine, log: log}

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(engine.MetricsHandler()))

	a := r.Group("/autonomy", tenantAuth(secret))

	a.GET("/config", h.getConfig)
	a.PUT("/config", h.putConfig)
	a.GET("/eligibility", h.eligibility)

	a.POST("/generate", h.generate)
	a.POST("/post", h.post)

	a.GET("/queue", h.listQueue)
	a.POST("/queue", h.enqueue)
	a.GET("/queue/:id", h.getQueueItem)
	a.POST("/queue/:id/approve", h.approve)
	a.POST("/queue/:id/requeue", h.requeue)
	a.DELETE("/queue/:id", h.deleteQueueItem)

	a.GET("/posted", h.listPosted)
	a.GET("/logs", h.listLogs)
	a.GET("/dashboard", h.dashboard)
	a.GET("/performance", h.performance)

	a.GET("/knowledge", h.listKnowledge)
	a.POST("/knowledge", h.addKnowledge)
	a.POST("/knowledge/reset", h.resetKnowledge)
	a.POST("/knowledge/import", h.importKnowledge)
	a.POST("/knowledge/import-feed", h.importKnowledgeFeed)
	a.GET("/knowledge/:id", h.getKnowledge)
	a.PUT("/knowledge/:id", h.updateKnowledge)
	a.DELETE("/knowledge/:id", h.deleteKnowledge)

	a.GET("/prompts/:type", h.getPrompt)
	a.PUT("/prompts/:type", h.putPrompt)
	a.DELETE("/prompts/:type", h.deletePrompt)

	a.GET("/platforms", h.listPlatforms)
	a.POST("/platforms", h.connectPlatform)
	a.DELETE("/platforms/:platform", h.disconnectPlatform)

	return r
}
