package dto

import (
	"time"

	"github.com/noah-isme/smart-attendance-api/internal/models"
)

// CreateSessionRequest opens an attendance session for one subject.
type CreateSessionRequest struct {
	Subject     string `json:"subject" validate:"required,max=200"`
	ClassroomID string `json:"classroom_id" validate:"omitempty,max=64"`
}

// CreateSessionResponse carries the session and the payload rendered as a QR code.
type CreateSessionResponse struct {
	Session   *models.Session `json:"session"`
	QRPayload string          `json:"qr_payload"`
	ExpiresIn int64           `json:"expires_in_seconds"`
}

// ActiveSessionResponse is returned by the active-session lookup.
type ActiveSessionResponse struct {
	Active    bool            `json:"active"`
	Session   *models.Session `json:"session,omitempty"`
	QRPayload string          `json:"qr_payload,omitempty"`
}

// VerifyQRRequest submits the scanned QR contents. Either the raw session id
// or the signed payload is accepted.
type VerifyQRRequest struct {
	StudentID          string `json:"student_id" validate:"required,max=64"`
	SubmittedSessionID string `json:"submitted_session_id" validate:"required_without=QRPayload,max=128"`
	QRPayload          string `json:"qr_payload" validate:"required_without=SubmittedSessionID,max=512"`
}

// VerifyLocationRequest submits the device position.
type VerifyLocationRequest struct {
	StudentID string   `json:"student_id" validate:"required,max=64"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

// VerifyFaceRequest submits a captured image as base64 or a data URL.
type VerifyFaceRequest struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	Image     string `json:"image" validate:"required"`
}

// RegisterTemplateRequest enrols a student's reference face image.
type RegisterTemplateRequest struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	Image     string `json:"image" validate:"required"`
}

// OverrideRequest marks students present manually.
type OverrideRequest struct {
	Subject    string   `json:"subject" validate:"required,max=200"`
	StudentIDs []string `json:"student_ids" validate:"required,min=1,max=500,dive,required,max=64"`
	SessionID  string   `json:"session_id" validate:"omitempty,max=128"`
}

// StageResponse reports a student's position in the pipeline.
type StageResponse struct {
	SessionID string                   `json:"session_id"`
	StudentID string                   `json:"student_id"`
	Stage     models.VerificationStage `json:"stage"`
}

// SubjectsResponse lists a teacher's subjects.
type SubjectsResponse struct {
	TeacherID string   `json:"teacher_id"`
	Subjects  []string `json:"subjects"`
}

// StudentsResponse lists the students a teacher can mark for a subject.
type StudentsResponse struct {
	Subject  string           `json:"subject"`
	Students []models.Student `json:"students"`
}

// TemplateResponse confirms an enrolment.
type TemplateResponse struct {
	StudentID  string    `json:"student_id"`
	Enrolled   bool      `json:"enrolled"`
	RecordedAt time.Time `json:"recorded_at"`
}
