package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/proctorhub/session-service/internal/realtime"
	"github.com/proctorhub/session-service/internal/services"
	"github.com/proctorhub/session-service/internal/utils"
)

type HandlerManager struct {
	sessionHandler   *SessionHandler
	violationHandler *ViolationHandler
	wsController     *realtime.Controller
}

func NewHandlerManager(
	sessionService services.SessionService,
	violationService services.ViolationService,
	exportService services.ExportService,
	wsController *realtime.Controller,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler:   NewSessionHandler(sessionService, logger),
		violationHandler: NewViolationHandler(violationService, exportService, logger),
		wsController:     wsController,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", HealthCheck)

	// Signaling and realtime relay
	router.GET("/ws", hm.wsController.HandleWS)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Session routes
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.CreateSession)
			sessions.GET("", hm.sessionHandler.ListSessions)
			sessions.GET("/:session_id", hm.sessionHandler.GetSession)
			sessions.POST("/:session_id/start", hm.sessionHandler.StartSession)
			sessions.POST("/:session_id/end", hm.sessionHandler.EndSession)
			sessions.POST("/:session_id/terminate", hm.sessionHandler.TerminateSession)
			sessions.PUT("/:session_id/paths", hm.sessionHandler.SetSessionPaths)
			sessions.GET("/:session_id/stats", hm.sessionHandler.GetSessionStats)

			// Violation ingestion and reporting
			sessions.POST("/:session_id/violations", hm.violationHandler.IngestViolation)
			sessions.POST("/:session_id/violations/bulk", hm.violationHandler.IngestViolationsBulk)
			sessions.GET("/:session_id/violations", hm.violationHandler.ListViolations)
			sessions.GET("/:session_id/violations/summary", hm.violationHandler.GetViolationSummary)
			sessions.GET("/:session_id/violations/export", hm.violationHandler.ExportViolations)
		}

		// Violation review routes
		violations := v1.Group("/violations")
		{
			violations.PUT("/:id/resolve", hm.violationHandler.ResolveViolation)
		}
	}
}
