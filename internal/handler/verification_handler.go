package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
	"github.com/noah-isme/smart-attendance-api/pkg/face"
	"github.com/noah-isme/smart-attendance-api/pkg/response"
)

type verificationService interface {
	VerifyQR(ctx context.Context, sessionID string, req dto.VerifyQRRequest) (*models.StageResult, error)
	VerifyLocation(ctx context.Context, sessionID, studentID string, point models.GeoPoint) (*models.StageResult, error)
	VerifyFace(ctx context.Context, sessionID, studentID string, image []byte) (*models.FaceResult, error)
}

// VerificationHandler exposes the three verification steps.
type VerificationHandler struct {
	service verificationService
}

// NewVerificationHandler constructs the handler.
func NewVerificationHandler(service verificationService) *VerificationHandler {
	return &VerificationHandler{service: service}
}

// QR godoc
// @Summary Submit the scanned session QR code
// @Tags Verification
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.VerifyQRRequest true "QR payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /sessions/{id}/verify/qr [post]
func (h *VerificationHandler) QR(c *gin.Context) {
	var req dto.VerifyQRRequest
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
	result, err := h.service.VerifyQR(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Location godoc
// @Summary Submit the device location
// @Tags Verification
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.VerifyLocationRequest true "Location payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions/{id}/verify/location [post]
func (h *VerificationHandler) Location(c *gin.Context) {
	var req dto.VerifyLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "latitude and longitude are required"))
		return
	}
	studentID, err := actingStudent(claimsFromContext(c), req.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	point := models.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude}
	result, err := h.service.VerifyLocation(c.Request.Context(), c.Param("id"), studentID, point)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Face godoc
// @Summary Submit a face capture
// @Description Compares the capture with the enrolled template and records attendance on success.
// @Tags Verification
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.VerifyFaceRequest true "Face payload"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sessions/{id}/verify/face [post]
func (h *VerificationHandler) Face(c *gin.Context) {
	var req dto.VerifyFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	studentID, err := actingStudent(claimsFromContext(c), req.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	image, err := face.DecodePayload(req.Image)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "image is not valid base64"))
		return
	}
	result, err := h.service.VerifyFace(c.Request.Context(), c.Param("id"), studentID, image)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Created {
		response.Created(c, result)
		return
	}
	response.OK(c, result)
}
