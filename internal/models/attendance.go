package models

import "time"

// AttendanceFlags records which proofs backed an attendance record.
type AttendanceFlags struct {
	QR        bool `db:"qr_match" json:"qr"`
	Location  bool `db:"location_match" json:"location"`
	Face      bool `db:"face_match" json:"face"`
	ByTeacher bool `db:"by_teacher" json:"by_teacher"`
}

var (
	// VerifiedFlags marks a record produced by the full verification pipeline.
	VerifiedFlags = AttendanceFlags{QR: true, Location: true, Face: true}
	// ManualFlags marks a record created by a teacher override.
	ManualFlags = AttendanceFlags{ByTeacher: true}
)

// AttendanceRecord is an immutable ledger entry keyed by (session, student).
type AttendanceRecord struct {
	SessionID string    `db:"session_id" json:"session_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Subject   string    `db:"subject" json:"subject"`
	Timestamp time.Time `db:"recorded_at" json:"timestamp"`
	AttendanceFlags
}

// AttendanceSummary is the live presence statistic for a session.
type AttendanceSummary struct {
	Present    int     `json:"present"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// SessionAttendance is the teacher's view of one session.
type SessionAttendance struct {
	Session *Session           `json:"session"`
	Records []AttendanceRecord `json:"records"`
	AttendanceSummary
}

// StudentHistory lists a student's records across sessions, newest first.
type StudentHistory struct {
	StudentID    string             `json:"student_id"`
	TotalRecords int                `json:"total_records"`
	Verified     int                `json:"verified"`
	Manual       int                `json:"manual"`
	Records      []AttendanceRecord `json:"records"`
}

// OverrideResult reports which students gained a record and which already had one.
type OverrideResult struct {
	SessionID string   `json:"session_id"`
	Created   []string `json:"created"`
	Skipped   []string `json:"skipped"`
	Unknown   []string `json:"unknown"`
}
