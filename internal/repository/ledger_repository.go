package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/smart-attendance-api/internal/models"
)

const recordColumns = `session_id, student_id, subject, recorded_at, qr_match, location_match, face_match, by_teacher`

// LedgerRepository stores attendance records in PostgreSQL.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// InsertIfAbsent writes the record unless one exists for the same session and
// student. The stored record is returned either way; created reports which.
func (r *LedgerRepository) InsertIfAbsent(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	query := `INSERT INTO attendance_records (` + recordColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id, student_id) DO NOTHING
RETURNING ` + recordColumns
	var stored models.AttendanceRecord
	err := r.db.QueryRowxContext(ctx, query,
		record.SessionID, record.StudentID, record.Subject, record.Timestamp,
		record.QR, record.Location, record.Face, record.ByTeacher,
	).StructScan(&stored)
	if err == nil {
		return &stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert attendance record: %w", err)
	}

	existing, err := r.Find(ctx, record.SessionID, record.StudentID)
	if err != nil {
		return nil, false, fmt.Errorf("load existing attendance record: %w", err)
	}
	return existing, false, nil
}

// Find returns the record for a session and student or sql.ErrNoRows.
func (r *LedgerRepository) Find(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE session_id = $1 AND student_id = $2`
	if err := r.db.GetContext(ctx, &record, query, sessionID, studentID); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListBySession returns a session's records oldest first.
func (r *LedgerRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	records := []models.AttendanceRecord{}
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE session_id = $1 ORDER BY recorded_at ASC, student_id ASC`
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return records, nil
}

// CountBySession counts a session's records.
func (r *LedgerRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM attendance_records WHERE session_id = $1`, sessionID); err != nil {
		return 0, fmt.Errorf("count attendance records: %w", err)
	}
	return count, nil
}

// ListByStudent returns a student's records newest first.
func (r *LedgerRepository) ListByStudent(ctx context.Context, studentID string) ([]models.AttendanceRecord, error) {
	records := []models.AttendanceRecord{}
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE student_id = $1 ORDER BY recorded_at DESC`
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return records, nil
}
