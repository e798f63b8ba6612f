package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/middleware"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
)

type attendanceViewMock struct {
	hit bool
}

func (m *attendanceViewMock) SessionAttendance(ctx context.Context, sessionID string, claims *models.JWTClaims) (*models.SessionAttendance, bool, error) {
	if claims.UserID != "T001" {
		return nil, false, appErrors.ErrNotOwner
	}
	return &models.SessionAttendance{Session: testSession(), Records: []models.AttendanceRecord{}}, m.hit, nil
}

func (m *attendanceViewMock) StudentHistory(ctx context.Context, studentID string) (*models.StudentHistory, bool, error) {
	return &models.StudentHistory{StudentID: studentID, Records: []models.AttendanceRecord{}}, false, nil
}

type overrideMock struct {
	teacherID string
	req       dto.OverrideRequest
}

func (m *overrideMock) MarkManual(ctx context.Context, teacherID string, req dto.OverrideRequest) (*models.OverrideResult, error) {
	m.teacherID = teacherID
	m.req = req
	if req.Subject == "Biology" {
		return nil, appErrors.ErrSubjectNotAssigned
	}
	return &models.OverrideResult{SessionID: "s-1", Created: req.StudentIDs, Skipped: []string{}}, nil
}

func TestAttendanceHandlerSessionReportsCacheHit(t *testing.T) {
	handler := NewAttendanceHandler(&attendanceViewMock{hit: true}, &overrideMock{})

	c, w := newTestContext(http.MethodGet, "/sessions/s-1/attendance", nil, teacherClaims)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	middleware.WithResponseMeta()(c)
	handler.Session(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Contains(t, w.Body.String(), `"cache_hit":true`)

	c, w = newTestContext(http.MethodGet, "/sessions/s-1/attendance", nil, &models.JWTClaims{UserID: "T002", Role: models.RoleTeacher})
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.Session(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAttendanceHandlerStudentHistory(t *testing.T) {
	handler := NewAttendanceHandler(&attendanceViewMock{}, &overrideMock{})

	c, w := newTestContext(http.MethodGet, "/students/1RV21CS001/attendance", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "1RV21CS001"}}
	handler.Student(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1RV21CS001", decodeData(t, w)["student_id"])
}

func TestAttendanceHandlerOverride(t *testing.T) {
	svc := &overrideMock{}
	handler := NewAttendanceHandler(&attendanceViewMock{}, svc)

	c, w := newTestContext(http.MethodPost, "/overrides", dto.OverrideRequest{Subject: "Computer Networks", StudentIDs: []string{"A", "B"}}, teacherClaims)
	handler.Override(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T001", svc.teacherID)
	assert.Equal(t, []string{"A", "B"}, svc.req.StudentIDs)

	c, w = newTestContext(http.MethodPost, "/overrides", dto.OverrideRequest{Subject: "Biology", StudentIDs: []string{"A"}}, teacherClaims)
	handler.Override(c)
	require.Equal(t, http.StatusForbidden, w.Code)

	c, w = newTestContext(http.MethodPost, "/overrides", dto.OverrideRequest{Subject: "Computer Networks"}, nil)
	handler.Override(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
