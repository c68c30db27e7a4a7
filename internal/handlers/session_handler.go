package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/proctorhub/session-service/internal/models"
	"github.com/proctorhub/session-service/internal/repositories"
	"github.com/proctorhub/session-service/internal/services"
	"github.com/proctorhub/session-service/internal/utils"
)

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
}

func NewSessionHandler(sessionService services.SessionService, logger utils.Logger) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
	}
}

// CreateSession creates a new proctoring session
// @Summary Create session
// @Description Creates a new proctoring session in scheduled status
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body services.CreateSessionRequest true "Session data"
// @Success 201 {object} models.Session
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	session, err := h.sessionService.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// ListSessions lists sessions with optional status filter
// @Summary List sessions
// @Description Lists sessions, optionally filtered by status, ordered by creation time
// @Tags sessions
// @Produce json
// @Param status query string false "Session status filter"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} PaginatedResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	limit, offset := ParsePagination(c)
	filters := repositories.SessionFilters{
		Limit:     limit,
		Offset:    offset,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.SessionStatus(statusStr)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid status filter",
				Details: "unknown session status: " + statusStr,
			})
			return
		}
		filters.Status = &status
	}
	if from := c.Query("date_from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid date_from",
				Details: "expected RFC3339 timestamp",
			})
			return
		}
		filters.DateFrom = &t
	}
	if to := c.Query("date_to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid date_to",
				Details: "expected RFC3339 timestamp",
			})
			return
		}
		filters.DateTo = &t
	}

	sessions, total, err := h.sessionService.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:   sessions,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetSession retrieves a session by its external session ID
// @Summary Get session
// @Description Retrieves a session, optionally with its violations
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Param include_violations query bool false "Include violation records"
// @Success 200 {object} models.Session
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{session_id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "session_id")
	if sessionID == "" {
		return
	}

	var (
		session *models.Session
		err     error
	)
	if c.Query("include_violations") == "true" {
		session, err = h.sessionService.GetWithViolations(c.Request.Context(), sessionID)
	} else {
		session, err = h.sessionService.Get(c.Request.Context(), sessionID)
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// StartSession transitions a session into in_progress
// @Summary Start session
// @Description Marks the session as started; idempotent for already started sessions
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{session_id}/start [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "session_id")
	if sessionID == "" {
		return
	}

	h.LogRequest(c, "Starting session", "session_id", sessionID)

	session, err := h.sessionService.Start(c.Request.Context(), sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// EndSession completes a session and freezes its integrity score
// @Summary End session
// @Description Drains in-flight violation ingestion, then completes the session
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{session_id}/end [post]
func (h *SessionHandler) EndSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "session_id")
	if sessionID == "" {
		return
	}

	h.LogRequest(c, "Ending session", "session_id", sessionID)

	session, err := h.sessionService.End(c.Request.Context(), sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// TerminateSession force-terminates a session
// @Summary Terminate session
// @Description Immediately terminates the session without draining ingestion
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{session_id}/terminate [post]
func (h *SessionHandler) TerminateSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "session_id")
	if sessionID == "" {
		return
	}

	h.LogRequest(c, "Terminating session", "session_id", sessionID)

	session, err := h.sessionService.Terminate(c.Request.Context(), sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// SetSessionPaths records recording and report artifact paths
// @Summary Set artifact paths
// @Description Stores the video recording and/or report path for a session
// @Tags sessions
// @Accept json
// @Produce json
// @Param session_id path string true "Session ID"
// @Param paths body services.SetPathsRequest true "Artifact paths"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{session_id}/paths [put]
func (h *SessionHandler) SetSessionPaths(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "session_id")
	if sessionID == "" {
		return
	}

	var req services.SetPathsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.sessionService.SetPaths(c.Request.Context(), sessionID, &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Paths updated"})
}

// GetSessionStats returns the live counter and score snapshot
// @Summary Session stats
// @Description Returns violation counters and the current integrity score
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} services.SessionStats
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{session_id}/stats [get]
func (h *SessionHandler) GetSessionStats(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "session_id")
	if sessionID == "" {
		return
	}

	stats, err := h.sessionService.Stats(c.Request.Context(), sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
