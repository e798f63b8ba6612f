package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
	"github.com/noah-isme/smart-attendance-api/pkg/response"
)

type faceTemplateService interface {
	Register(ctx context.Context, req dto.RegisterTemplateRequest) (*dto.TemplateResponse, error)
	Enrolled(ctx context.Context, studentID string) (bool, error)
}

// FaceHandler manages enrolled face templates.
type FaceHandler struct {
	service faceTemplateService
}

// NewFaceHandler constructs the handler.
func NewFaceHandler(service faceTemplateService) *FaceHandler {
	return &FaceHandler{service: service}
}

// Register godoc
// @Summary Enrol a student's reference face
// @Tags Faces
// @Accept json
// @Produce json
// @Param payload body dto.RegisterTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Router /faces/templates [post]
func (h *FaceHandler) Register(c *gin.Context) {
	var req dto.RegisterTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	studentID, err := actingStudent(claimsFromContext(c), req.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.StudentID = studentID
	resp, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Status godoc
// @Summary Check whether a student has an enrolled face
// @Tags Faces
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /faces/templates/{id} [get]
func (h *FaceHandler) Status(c *gin.Context) {
	studentID, err := actingStudent(claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	enrolled, err := h.service.Enrolled(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.TemplateResponse{StudentID: studentID, Enrolled: enrolled})
}
