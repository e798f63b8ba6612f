package models

import "time"

// SessionStatus represents the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusStopped SessionStatus = "stopped"
	SessionStatusExpired SessionStatus = "expired"
)

// Terminal reports whether the status can no longer change.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusStopped || s == SessionStatusExpired
}

// Session is a time-bounded attendance window for one subject owned by one teacher.
type Session struct {
	ID          string        `db:"id" json:"session_id"`
	Subject     string        `db:"subject" json:"subject"`
	TeacherID   string        `db:"teacher_id" json:"teacher_id"`
	ClassroomID string        `db:"classroom_id" json:"classroom_id"`
	Status      SessionStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	ExpiresAt   time.Time     `db:"expires_at" json:"expires_at"`
	EndedAt     *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
}

// ExpiredAt reports whether an active session has outlived its expiry at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return s.Status == SessionStatusActive && now.After(s.ExpiresAt)
}

// EffectiveStatus returns the status after applying lazy expiry at now.
func (s *Session) EffectiveStatus(now time.Time) SessionStatus {
	if s.ExpiredAt(now) {
		return SessionStatusExpired
	}
	return s.Status
}

// EndTime is when the session stopped accepting verification.
func (s *Session) EndTime() time.Time {
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	return s.ExpiresAt
}

// NotifierSnapshot is what a polling client sees about the current session.
type NotifierSnapshot struct {
	Active  bool              `json:"active"`
	Session *Session          `json:"session,omitempty"`
	Stage   VerificationStage `json:"stage,omitempty"`
	Marked  bool              `json:"marked"`
}
