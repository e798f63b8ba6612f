package models

import "time"

// VerificationStage is the position of a student in the three-proof pipeline.
type VerificationStage string

const (
	StageQRPending       VerificationStage = "QR_PENDING"
	StageLocationPending VerificationStage = "LOCATION_PENDING"
	StageFacePending     VerificationStage = "FACE_PENDING"
	StageComplete        VerificationStage = "COMPLETE"
)

// Rank orders stages so transitions can be checked as strictly forward.
func (s VerificationStage) Rank() int {
	switch s {
	case StageQRPending:
		return 0
	case StageLocationPending:
		return 1
	case StageFacePending:
		return 2
	case StageComplete:
		return 3
	default:
		return -1
	}
}

// VerificationAttempt is the transient progress of one student within one session.
type VerificationAttempt struct {
	SessionID string            `json:"session_id"`
	StudentID string            `json:"student_id"`
	Stage     VerificationStage `json:"stage"`
	Location  *GeoPoint         `json:"location,omitempty"`
	DistanceM *float64          `json:"distance_m,omitempty"`
	FaceScore *float64          `json:"face_score,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// StageResult is returned by each pipeline step.
type StageResult struct {
	SessionID string            `json:"session_id"`
	StudentID string            `json:"student_id"`
	Stage     VerificationStage `json:"stage"`
	DistanceM *float64          `json:"distance_m,omitempty"`
	RadiusM   *float64          `json:"radius_m,omitempty"`
}

// FaceResult is returned by a successful face step.
type FaceResult struct {
	Stage     VerificationStage `json:"stage"`
	Record    *AttendanceRecord `json:"record"`
	Score     *float64          `json:"score,omitempty"`
	Threshold float64           `json:"threshold"`
	Created   bool              `json:"created"`
}
