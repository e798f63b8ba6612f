package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS attendance_sessions (
    id UUID PRIMARY KEY,
    subject TEXT NOT NULL,
    teacher_id TEXT NOT NULL,
    classroom_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('active', 'stopped', 'expired')),
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    ended_at TIMESTAMPTZ NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS attendance_sessions_one_active_per_teacher
    ON attendance_sessions (teacher_id) WHERE status = 'active'`,
	`CREATE INDEX IF NOT EXISTS attendance_sessions_teacher_subject_idx
    ON attendance_sessions (teacher_id, subject, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
    session_id UUID NOT NULL REFERENCES attendance_sessions (id),
    student_id TEXT NOT NULL,
    subject TEXT NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL,
    qr_match BOOLEAN NOT NULL DEFAULT FALSE,
    location_match BOOLEAN NOT NULL DEFAULT FALSE,
    face_match BOOLEAN NOT NULL DEFAULT FALSE,
    by_teacher BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (session_id, student_id)
)`,
	`CREATE INDEX IF NOT EXISTS attendance_records_student_idx
    ON attendance_records (student_id, recorded_at DESC)`,
}

// EnsureSchema creates the attendance tables and indexes when missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
