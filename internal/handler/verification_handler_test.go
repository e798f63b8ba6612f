package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
)

type verificationServiceMock struct {
	qr      dto.VerifyQRRequest
	point   models.GeoPoint
	image   []byte
	created bool
	err     error
}

func (m *verificationServiceMock) VerifyQR(ctx context.Context, sessionID string, req dto.VerifyQRRequest) (*models.StageResult, error) {
	m.qr = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.StageResult{SessionID: sessionID, StudentID: req.StudentID, Stage: models.StageLocationPending}, nil
}

func (m *verificationServiceMock) VerifyLocation(ctx context.Context, sessionID, studentID string, point models.GeoPoint) (*models.StageResult, error) {
	m.point = point
	if m.err != nil {
		return nil, m.err
	}
	return &models.StageResult{SessionID: sessionID, StudentID: studentID, Stage: models.StageFacePending}, nil
}

func (m *verificationServiceMock) VerifyFace(ctx context.Context, sessionID, studentID string, image []byte) (*models.FaceResult, error) {
	m.image = image
	if m.err != nil {
		return nil, m.err
	}
	return &models.FaceResult{Stage: models.StageComplete, Created: m.created, Record: &models.AttendanceRecord{SessionID: sessionID, StudentID: studentID}}, nil
}

var studentClaims = &models.JWTClaims{UserID: "1RV21CS001", Role: models.RoleStudent}

func withSessionParam(c *gin.Context) {
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
}

func TestVerificationHandlerQRUsesCallerIdentity(t *testing.T) {
	svc := &verificationServiceMock{}
	handler := NewVerificationHandler(svc)

	c, w := newTestContext(http.MethodPost, "/sessions/s-1/verify/qr", map[string]string{"submitted_session_id": "s-1"}, studentClaims)
	withSessionParam(c)
	handler.QR(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1RV21CS001", svc.qr.StudentID)

	c, w = newTestContext(http.MethodPost, "/sessions/s-1/verify/qr", map[string]string{"student_id": "1RV21CS002", "submitted_session_id": "s-1"}, studentClaims)
	withSessionParam(c)
	handler.QR(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestVerificationHandlerQRMapsDomainErrors(t *testing.T) {
	handler := NewVerificationHandler(&verificationServiceMock{err: appErrors.ErrTokenMismatch})
	c, w := newTestContext(http.MethodPost, "/sessions/s-1/verify/qr", map[string]string{"submitted_session_id": "other"}, studentClaims)
	withSessionParam(c)
	handler.QR(c)
	require.Equal(t, http.StatusConflict, w.Code)

	handler = NewVerificationHandler(&verificationServiceMock{err: appErrors.ErrSessionEnded})
	c, w = newTestContext(http.MethodPost, "/sessions/s-1/verify/qr", map[string]string{"submitted_session_id": "s-1"}, studentClaims)
	withSessionParam(c)
	handler.QR(c)
	require.Equal(t, http.StatusGone, w.Code)
}

func TestVerificationHandlerLocation(t *testing.T) {
	svc := &verificationServiceMock{}
	handler := NewVerificationHandler(svc)

	c, w := newTestContext(http.MethodPost, "/sessions/s-1/verify/location", map[string]interface{}{"latitude": 12.9345, "longitude": 77.605}, studentClaims)
	withSessionParam(c)
	handler.Location(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12.9345, svc.point.Latitude)

	c, w = newTestContext(http.MethodPost, "/sessions/s-1/verify/location", map[string]interface{}{"latitude": 12.9345}, studentClaims)
	withSessionParam(c)
	handler.Location(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	handler = NewVerificationHandler(&verificationServiceMock{err: appErrors.ErrGeofenceViolation})
	c, w = newTestContext(http.MethodPost, "/sessions/s-1/verify/location", map[string]interface{}{"latitude": 0.0, "longitude": 0.0}, studentClaims)
	withSessionParam(c)
	handler.Location(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestVerificationHandlerFace(t *testing.T) {
	svc := &verificationServiceMock{created: true}
	handler := NewVerificationHandler(svc)
	image := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	c, w := newTestContext(http.MethodPost, "/sessions/s-1/verify/face", map[string]string{"image": "data:image/jpeg;base64," + image}, studentClaims)
	withSessionParam(c)
	handler.Face(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []byte("jpeg-bytes"), svc.image)

	svc.created = false
	c, w = newTestContext(http.MethodPost, "/sessions/s-1/verify/face", map[string]string{"image": image}, studentClaims)
	withSessionParam(c)
	handler.Face(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newTestContext(http.MethodPost, "/sessions/s-1/verify/face", map[string]string{"image": "%%%"}, studentClaims)
	withSessionParam(c)
	handler.Face(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	handler = NewVerificationHandler(&verificationServiceMock{err: appErrors.ErrFaceEngineDown})
	c, w = newTestContext(http.MethodPost, "/sessions/s-1/verify/face", map[string]string{"image": image}, studentClaims)
	withSessionParam(c)
	handler.Face(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
