package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driveschool-api/internal/models"
	"github.com/noah-isme/driveschool-api/internal/service"
	appErrors "github.com/noah-isme/driveschool-api/pkg/errors"
	"github.com/noah-isme/driveschool-api/pkg/response"
)

// EnrollmentHandler exposes enrollment ledger endpoints.
type EnrollmentHandler struct {
	service        *service.EnrollmentService
	metrics        *service.MetricsService
	exportsEnabled bool
}

// NewEnrollmentHandler creates a new handler. metrics may be nil.
func NewEnrollmentHandler(svc *service.EnrollmentService, metrics *service.MetricsService, exportsEnabled bool) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc, metrics: metrics, exportsEnabled: exportsEnabled}
}

// Enroll godoc
// @Summary Enroll into a training session
// @Description Register the authenticated student into a session
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enroll-pts [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}

	// Students always enroll themselves. Only staff may enroll on
	// behalf of another account.
	if req.UserID == "" {
		req.UserID = claims.UserID
	}
	if req.UserID != claims.UserID && claims.Role != models.RoleAdmin {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "cannot enroll another student"))
		return
	}

	enrollment, err := h.service.Enroll(c.Request.Context(), req)
	if err != nil {
		h.observeEnrollError(err)
		response.Error(c, err)
		return
	}

	h.metrics.ObserveEnrollment("enrolled")
	response.Created(c, enrollment)
}

func (h *EnrollmentHandler) observeEnrollError(err error) {
	appErr := appErrors.FromError(err)
	switch appErr.Code {
	case appErrors.ErrSessionFull.Code:
		h.metrics.ObserveEnrollment("full")
	case appErrors.ErrConflict.Code:
		h.metrics.ObserveEnrollment("duplicate")
	}
}

// List godoc
// @Summary List all enrollments
// @Tags Enrollments
// @Produce json
// @Param session_id query string false "Session filter"
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enroll-pts [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter := models.EnrollmentFilter{
		SessionID: c.Query("session_id"),
		Status:    models.EnrollmentStatus(c.Query("status")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	enrollments, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Stats godoc
// @Summary Enrollment statistics
// @Description Aggregate enrollment counts per status
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enroll-pts/stats [get]
func (h *EnrollmentHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, stats, nil)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enroll-pts/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	enrollment, err := h.service.GetByIDFor(c.Request.Context(), c.Param("id"), *claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, enrollment, nil)
}

// ListByUser godoc
// @Summary List a user's enrollments
// @Tags Enrollments
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /enroll-pts/user/{userId} [get]
func (h *EnrollmentHandler) ListByUser(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.EnrollmentFilter{
		Status:    models.EnrollmentStatus(c.Query("status")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	enrollments, pagination, err := h.service.ListByUser(c.Request.Context(), c.Param("userId"), *claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// ListBySession godoc
// @Summary List a session's roster
// @Tags Enrollments
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enroll-pts/session/{sessionId} [get]
func (h *EnrollmentHandler) ListBySession(c *gin.Context) {
	roster, err := h.service.ListBySession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, roster, nil)
}

// ExportRoster godoc
// @Summary Export a session's roster
// @Description Download the roster as CSV or PDF
// @Tags Enrollments
// @Produce octet-stream
// @Param sessionId path string true "Session ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enroll-pts/session/{sessionId}/export [get]
func (h *EnrollmentHandler) ExportRoster(c *gin.Context) {
	if !h.exportsEnabled {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "roster exports are disabled"))
		return
	}

	export, err := h.service.ExportRoster(c.Request.Context(), c.Param("sessionId"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	c.Data(http.StatusOK, export.ContentType, export.Content)
}

// UpdateStatus godoc
// @Summary Update enrollment status
// @Description Record the attendance outcome
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.UpdateEnrollmentStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enroll-pts/{id} [patch]
func (h *EnrollmentHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateEnrollmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	enrollment, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Cancel godoc
// @Summary Cancel enrollment
// @Description Withdraw from a session and release the slot
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 204 "No Content"
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enroll-pts/{id} [delete]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), *claims); err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.ObserveEnrollment("cancelled")
	response.NoContent(c)
}
