package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/middleware"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
	"github.com/noah-isme/smart-attendance-api/pkg/response"
)

type attendanceViewService interface {
	SessionAttendance(ctx context.Context, sessionID string, claims *models.JWTClaims) (*models.SessionAttendance, bool, error)
	StudentHistory(ctx context.Context, studentID string) (*models.StudentHistory, bool, error)
}

type overrideService interface {
	MarkManual(ctx context.Context, teacherID string, req dto.OverrideRequest) (*models.OverrideResult, error)
}

// AttendanceHandler exposes ledger reads and teacher overrides.
type AttendanceHandler struct {
	views     attendanceViewService
	overrides overrideService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(views attendanceViewService, overrides overrideService) *AttendanceHandler {
	return &AttendanceHandler{views: views, overrides: overrides}
}

// Session godoc
// @Summary List attendance for a session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) Session(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	start := time.Now()
	view, cacheHit, err := h.views.SessionAttendance(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondWithMeta(c, view, cacheHit, start)
}

// Student godoc
// @Summary Attendance history for a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *AttendanceHandler) Student(c *gin.Context) {
	studentID := strings.TrimSpace(c.Param("id"))
	if studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student id is required"))
		return
	}
	start := time.Now()
	history, cacheHit, err := h.views.StudentHistory(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondWithMeta(c, history, cacheHit, start)
}

// Override godoc
// @Summary Mark students present manually
// @Description Records attendance without verification for the named session, or the teacher's latest session for the subject.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.OverrideRequest true "Override payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /overrides [post]
func (h *AttendanceHandler) Override(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.overrides.MarkManual(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func respondWithMeta(c *gin.Context, data interface{}, cacheHit bool, start time.Time) {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, data, nil, meta)
}
