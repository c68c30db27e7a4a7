package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/proctorhub/session-service/internal/models"
	"github.com/proctorhub/session-service/internal/repositories"
	"github.com/proctorhub/session-service/internal/services"
	"github.com/proctorhub/session-service/internal/utils"
)

type ViolationHandler struct {
	BaseHandler
	violationService services.ViolationService
	exportService    services.ExportService
}

func NewViolationHandler(
	violationService services.ViolationService,
	exportService services.ExportService,
	logger utils.Logger,
) *ViolationHandler {
	return &ViolationHandler{
		BaseHandler:      NewBaseHandler(logger),
		violationService: violationService,
		exportService:    exportService,
	}
}

// reportedBy reads the optional reported_by query param. An absent or
// unknown value maps to RoleNone, which records the violation with an
// unknown source unless the payload states one.
func reportedBy(c *gin.Context) models.ParticipantRole {
	role := models.ParticipantRole(c.Query("reported_by"))
	if !role.Valid() {
		return models.RoleNone
	}
	return role
}

// IngestViolation records a single violation against a session
// @Summary Ingest violation
// @Description Records a violation, recomputes counters and the integrity score
// @Tags violations
// @Accept json
// @Produce json
// @Param session_id path string true "Session ID"
// @Param reported_by query string false "Reporting role (candidate or interviewer)"
// @Param violation body services.IngestViolationRequest true "Violation data"
// @Success 201 {object} services.IngestResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{session_id}/violations [post]
func (h *ViolationHandler) IngestViolation(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "session_id")
	if sessionID == "" {
		return
	}

	var req services.IngestViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	result, err := h.violationService.Ingest(c.Request.Context(), sessionID, &req, reportedBy(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// IngestViolationsBulk records a batch of violations in one transaction
// @Summary Bulk ingest violations
// @Description Records a batch of violations atomically, then recomputes the score once
// @Tags violations
// @Accept json
// @Produce json
// @Param session_id path string true "Session ID"
// @Param reported_by query string false "Reporting role (candidate or interviewer)"
// @Param violations body []services.IngestViolationRequest true "Violation batch"
// @Success 201 {object} services.BatchIngestResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{session_id}/violations/bulk [post]
func (h *ViolationHandler) IngestViolationsBulk(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "session_id")
	if sessionID == "" {
		return
	}

	var reqs []*services.IngestViolationRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if len(reqs) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Empty violation batch",
		})
		return
	}

	result, err := h.violationService.IngestBatch(c.Request.Context(), sessionID, reqs, reportedBy(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ListViolations lists violations for a session
// @Summary List violations
// @Description Lists a session's violations with optional type/severity/resolved filters
// @Tags violations
// @Produce json
// @Param session_id path string true "Session ID"
// @Param type query string false "Violation type filter"
// @Param severity query string false "Severity filter"
// @Param resolved query bool false "Resolved filter"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} PaginatedResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{session_id}/violations [get]
func (h *ViolationHandler) ListViolations(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "session_id")
	if sessionID == "" {
		return
	}

	limit, offset := ParsePagination(c)
	filters := repositories.ViolationFilters{
		Limit:  limit,
		Offset: offset,
	}

	if typeStr := c.Query("type"); typeStr != "" {
		vt := models.ViolationType(typeStr)
		if !vt.Valid() {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid type filter",
				Details: "unknown violation type: " + typeStr,
			})
			return
		}
		filters.Type = &vt
	}
	if sevStr := c.Query("severity"); sevStr != "" {
		sev := models.ViolationSeverity(sevStr)
		if !sev.Valid() {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid severity filter",
				Details: "unknown severity: " + sevStr,
			})
			return
		}
		filters.Severity = &sev
	}
	if resolvedStr := c.Query("resolved"); resolvedStr != "" {
		resolved := resolvedStr == "true"
		filters.Resolved = &resolved
	}

	violations, total, err := h.violationService.List(c.Request.Context(), sessionID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:   violations,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetViolationSummary aggregates violations by type
// @Summary Violation summary
// @Description Returns per-type counts, average confidence and total duration
// @Tags violations
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{session_id}/violations/summary [get]
func (h *ViolationHandler) GetViolationSummary(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "session_id")
	if sessionID == "" {
		return
	}

	summary, err := h.violationService.Summary(c.Request.Context(), sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Violation summary",
		Data:    summary,
	})
}

// ExportViolations streams the session's violation report as an xlsx file
// @Summary Export violations
// @Description Builds an xlsx workbook with violation detail and a per-type summary
// @Tags violations
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param session_id path string true "Session ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{session_id}/violations/export [get]
func (h *ViolationHandler) ExportViolations(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "session_id")
	if sessionID == "" {
		return
	}

	h.LogRequest(c, "Exporting violations", "session_id", sessionID)

	data, err := h.exportService.ExportSessionViolations(c.Request.Context(), sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("violations_%s_%s.xlsx", sessionID, time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// ResolveViolation marks a violation as reviewed and resolved
// @Summary Resolve violation
// @Description Records the reviewer and optional notes on a violation
// @Tags violations
// @Accept json
// @Produce json
// @Param id path uint true "Violation ID"
// @Param review body services.ResolveViolationRequest true "Review data"
// @Success 200 {object} models.Violation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /violations/{id}/resolve [put]
func (h *ViolationHandler) ResolveViolation(c *gin.Context) {
	id := ParseUintIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.ResolveViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	violation, err := h.violationService.Resolve(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, violation)
}
