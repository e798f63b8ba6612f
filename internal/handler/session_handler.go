package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
	"github.com/noah-isme/smart-attendance-api/pkg/response"
)

type sessionService interface {
	CreateSession(ctx context.Context, teacherID string, req dto.CreateSessionRequest) (*models.Session, error)
	StopSession(ctx context.Context, sessionID, teacherID string) (*models.Session, error)
	QRPayload(session *models.Session) (string, error)
}

type sessionNotifier interface {
	Poll(ctx context.Context, studentID string) (*models.NotifierSnapshot, error)
	PollTeacher(ctx context.Context, teacherID string) (*models.NotifierSnapshot, error)
}

type stageService interface {
	CurrentStage(ctx context.Context, sessionID, studentID string) (models.VerificationStage, error)
}

// SessionHandler manages attendance sessions.
type SessionHandler struct {
	sessions sessionService
	notifier sessionNotifier
	stages   stageService
	now      func() time.Time
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(sessions sessionService, notifier sessionNotifier, stages stageService) *SessionHandler {
	return &SessionHandler{sessions: sessions, notifier: notifier, stages: stages, now: time.Now}
}

// Create godoc
// @Summary Start an attendance session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.sessions.CreateSession(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := h.sessions.QRPayload(session)
	if err != nil {
		response.Error(c, err)
		return
	}
	expiresIn := int64(session.ExpiresAt.Sub(h.now()).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	response.Created(c, dto.CreateSessionResponse{Session: session, QRPayload: payload, ExpiresIn: expiresIn})
}

// Stop godoc
// @Summary Stop an attendance session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/stop [post]
func (h *SessionHandler) Stop(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	session, err := h.sessions.StopSession(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// Active godoc
// @Summary Poll the current attendance session
// @Description Students see the latest active session and their progress. Teachers see their own session with its QR payload.
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sessions/active [get]
func (h *SessionHandler) Active(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	ctx := c.Request.Context()

	switch claims.Role {
	case models.RoleTeacher:
		snap, err := h.notifier.PollTeacher(ctx, claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		resp := dto.ActiveSessionResponse{Active: snap.Active, Session: snap.Session}
		if snap.Session != nil {
			payload, err := h.sessions.QRPayload(snap.Session)
			if err != nil {
				response.Error(c, err)
				return
			}
			resp.QRPayload = payload
		}
		response.OK(c, resp)
	case models.RoleStudent:
		snap, err := h.notifier.Poll(ctx, claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, snap)
	default:
		snap, err := h.notifier.Poll(ctx, "")
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, snap)
	}
}

// Stage godoc
// @Summary Get a student's verification stage
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param student_id query string false "Student ID (staff only)"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/stage [get]
func (h *SessionHandler) Stage(c *gin.Context) {
	studentID, err := actingStudent(claimsFromContext(c), c.Query("student_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sessionID := c.Param("id")
	stage, err := h.stages.CurrentStage(c.Request.Context(), sessionID, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.StageResponse{SessionID: sessionID, StudentID: studentID, Stage: stage})
}
