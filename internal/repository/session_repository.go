package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/smart-attendance-api/internal/models"
)

const sessionColumns = `id, subject, teacher_id, classroom_id, status, created_at, expires_at, ended_at`

// SessionRepository persists attendance sessions in PostgreSQL.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create expires the teacher's stale active session, then inserts the new one,
// returning the ids it expired. The partial unique index on active sessions
// makes the insert a compare-and-set.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session, now time.Time) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create session: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var expired []string
	if err := tx.SelectContext(ctx, &expired, `UPDATE attendance_sessions SET status = 'expired', ended_at = expires_at
WHERE teacher_id = $1 AND status = 'active' AND expires_at < $2
RETURNING id`, session.TeacherID, now); err != nil {
		return nil, fmt.Errorf("expire stale sessions: %w", err)
	}

	var id string
	err = tx.QueryRowxContext(ctx, `INSERT INTO attendance_sessions (id, subject, teacher_id, classroom_id, status, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (teacher_id) WHERE status = 'active' DO NOTHING
RETURNING id`,
		session.ID, session.Subject, session.TeacherID, session.ClassroomID, session.Status, session.CreatedAt, session.ExpiresAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActiveSessionExists
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create session: %w", err)
	}
	return expired, nil
}

// FindByID returns the session or sql.ErrNoRows.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE id = $1`
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindActiveByTeacher returns the teacher's active session without applying expiry.
func (r *SessionRepository) FindActiveByTeacher(ctx context.Context, teacherID string) (*models.Session, error) {
	var session models.Session
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE teacher_id = $1 AND status = 'active'
ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &session, query, teacherID); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindLatestActive returns the most recently created session still active at now.
func (r *SessionRepository) FindLatestActive(ctx context.Context, now time.Time) (*models.Session, error) {
	var session models.Session
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE status = 'active' AND expires_at >= $1
ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &session, query, now); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindLatestByTeacherSubject returns the teacher's newest session for a subject in any state.
func (r *SessionRepository) FindLatestByTeacherSubject(ctx context.Context, teacherID, subject string) (*models.Session, error) {
	var session models.Session
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE teacher_id = $1 AND subject = $2
ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &session, query, teacherID, subject); err != nil {
		return nil, err
	}
	return &session, nil
}

// End moves an active session to a terminal status. It reports false when the
// session was already terminal.
func (r *SessionRepository) End(ctx context.Context, id string, status models.SessionStatus, endedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE attendance_sessions SET status = $2, ended_at = $3 WHERE id = $1 AND status = 'active'`, id, status, endedAt)
	if err != nil {
		return false, fmt.Errorf("end session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("end session rows: %w", err)
	}
	return affected > 0, nil
}

// ExpireDue marks every active session past its expiry as expired and returns their ids.
func (r *SessionRepository) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	query := `UPDATE attendance_sessions SET status = 'expired', ended_at = expires_at
WHERE status = 'active' AND expires_at < $1 RETURNING id`
	if err := r.db.SelectContext(ctx, &ids, query, now); err != nil {
		return nil, fmt.Errorf("expire due sessions: %w", err)
	}
	return ids, nil
}
