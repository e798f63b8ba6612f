package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
	"github.com/noah-isme/smart-attendance-api/pkg/response"
)

type campusDirectory interface {
	Subjects(teacherID string) []string
	IsAssigned(teacherID, subject string) bool
	Students(subject string) []models.Student
	Classroom(id string) (models.GeoFence, bool)
}

// TeacherHandler exposes the campus directory to clients.
type TeacherHandler struct {
	directory campusDirectory
}

// NewTeacherHandler constructs a new TeacherHandler.
func NewTeacherHandler(directory campusDirectory) *TeacherHandler {
	return &TeacherHandler{directory: directory}
}

// Subjects godoc
// @Summary List the caller's assigned subjects
// @Tags Teachers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teachers/me/subjects [get]
func (h *TeacherHandler) Subjects(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	subjects := h.directory.Subjects(claims.UserID)
	if subjects == nil {
		subjects = []string{}
	}
	response.OK(c, dto.SubjectsResponse{TeacherID: claims.UserID, Subjects: subjects})
}

// Classroom godoc
// @Summary Get a classroom geofence
// @Tags Teachers
// @Produce json
// @Param id path string true "Classroom ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classrooms/{id} [get]
func (h *TeacherHandler) Classroom(c *gin.Context) {
	fence, ok := h.directory.Classroom(c.Param("id"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "classroom not found"))
		return
	}
	response.OK(c, fence)
}

// Students godoc
// @Summary List the students of one of the caller's subjects
// @Tags Teachers
// @Produce json
// @Param subject path string true "Subject name"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /subjects/{subject}/students [get]
func (h *TeacherHandler) Students(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	subject := strings.TrimSpace(c.Param("subject"))
	if !h.directory.IsAssigned(claims.UserID, subject) {
		response.Error(c, appErrors.WithDetails(appErrors.ErrSubjectNotAssigned, map[string]interface{}{"subject": subject}))
		return
	}
	students := h.directory.Students(subject)
	if students == nil {
		students = []models.Student{}
	}
	response.OK(c, dto.StudentsResponse{Subject: subject, Students: students})
}
