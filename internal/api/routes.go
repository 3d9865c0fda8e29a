package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handlers, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	RegisterRoutes(router, h)
	return router
}

// RegisterRoutes attaches the endpoints to a router group.
func RegisterRoutes(r gin.IRouter, h *Handlers) {
	r.GET("/healthz", h.HandleHealth)

	p := r.Group("/progress")
	{
		p.GET("", h.HandleGetProgress)
		p.POST("/xp", h.HandleAddXP)
		p.POST("/lessons/:id", h.HandleCompleteLesson)
		p.POST("/scenarios/:id", h.HandleCompleteScenario)
		p.POST("/quizzes", h.HandleRecordQuiz)
		p.POST("/problems", h.HandleSubmitProblem)
	}

	s := r.Group("/session")
	{
		s.GET("", h.HandleSession)
		s.POST("/login", h.HandleLogin)
		s.POST("/identity", h.HandleIdentity)
	}

	rw := r.Group("/rewards")
	{
		rw.GET("/claimable", h.HandleClaimable)
		rw.POST("/daily/:day", h.HandleClaimDaily)
		rw.POST("/weekly/:week", h.HandleClaimWeekly)
	}

	r.GET("/readiness", h.HandleReadiness)
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request served")
	}
}
