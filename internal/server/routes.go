// Package server provides the HTTP API of the job service.
// This file contains all route definitions.
package server

import (
	"github.com/gin-gonic/gin"
	"github.com/mantonx/vcompress/internal/server/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes registers every endpoint on r.
func (s *Server) setupRoutes(r *gin.Engine) {
	health := handlers.NewHealthHandler(s.db)
	r.GET("/health", health.HandleHealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		setupJobRoutes(v1, handlers.NewJobsHandler(s.jobs, s.logger))
	}
}

// =============================================================================
// JOB ROUTES
// =============================================================================

func setupJobRoutes(api *gin.RouterGroup, h *handlers.JobsHandler) {
	api.GET("/stats", h.GetStats)

	jobs := api.Group("/jobs")
	{
		jobs.POST("", h.CreateJob)
		jobs.GET("", h.ListJobs)
		jobs.GET("/:id", h.GetJob)
		jobs.DELETE("/:id", h.CancelJob)
		jobs.GET("/:id/ws", h.StreamJob)
	}
}
