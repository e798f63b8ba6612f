package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-attendance-api/internal/models"
)

func newSQLMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var sessionRowColumns = []string{"id", "subject", "teacher_id", "classroom_id", "status", "created_at", "expires_at", "ended_at"}

func sampleSession(now time.Time) *models.Session {
	return &models.Session{
		ID:          "3b0c9f4e-5d2a-4c55-9c1e-7a8f00000001",
		Subject:     "Computer Networks",
		TeacherID:   "T001",
		ClassroomID: "main",
		Status:      models.SessionStatusActive,
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}
}

func TestSessionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	now := time.Now().UTC()
	session := sampleSession(now)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE attendance_sessions SET status = 'expired'.*RETURNING id").
		WithArgs("T001", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stale-1"))
	mock.ExpectQuery("INSERT INTO attendance_sessions").
		WithArgs(session.ID, session.Subject, "T001", "main", models.SessionStatusActive, session.CreatedAt, session.ExpiresAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(session.ID))
	mock.ExpectCommit()

	expired, err := repo.Create(context.Background(), session, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale-1"}, expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreateConflict(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE attendance_sessions").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO attendance_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), sampleSession(now), now)
	assert.ErrorIs(t, err, ErrActiveSessionExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(sessionRowColumns).
		AddRow("s-1", "Computer Networks", "T001", "main", "stopped", now, now.Add(10*time.Minute), now.Add(time.Minute))
	mock.ExpectQuery(`FROM attendance_sessions WHERE id = \$1`).WithArgs("s-1").WillReturnRows(rows)

	session, err := repo.FindByID(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusStopped, session.Status)
	require.NotNil(t, session.EndedAt)

	mock.ExpectQuery(`FROM attendance_sessions WHERE id = \$1`).WithArgs("missing").WillReturnRows(sqlmock.NewRows(sessionRowColumns))
	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryEndAndExpire(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE attendance_sessions SET status = \$2, ended_at = \$3 WHERE id = \$1 AND status = 'active'`).
		WithArgs("s-1", models.SessionStatusStopped, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ended, err := repo.End(context.Background(), "s-1", models.SessionStatusStopped, now)
	require.NoError(t, err)
	assert.True(t, ended)

	mock.ExpectQuery(`UPDATE attendance_sessions SET status = 'expired'.*RETURNING id`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s-2").AddRow("s-3"))
	ids, err := repo.ExpireDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-2", "s-3"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemorySessionRepositoryOneActivePerTeacher(t *testing.T) {
	repo := NewMemorySessionRepository()
	now := time.Now().UTC()
	first := sampleSession(now)
	_, err := repo.Create(context.Background(), first, now)
	require.NoError(t, err)

	second := sampleSession(now)
	second.ID = "second"
	_, err = repo.Create(context.Background(), second, now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrActiveSessionExists)

	// Once the first has lapsed the slot frees up and the old one is reported as expired.
	expired, err := repo.Create(context.Background(), second, now.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, expired)
	old, err := repo.FindByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusExpired, old.Status)

	latest, err := repo.FindLatestByTeacherSubject(context.Background(), "T001", "Computer Networks")
	require.NoError(t, err)
	assert.Equal(t, "second", latest.ID)
}

func TestMemorySessionRepositoryEndIsTerminal(t *testing.T) {
	repo := NewMemorySessionRepository()
	now := time.Now().UTC()
	session := sampleSession(now)
	_, err := repo.Create(context.Background(), session, now)
	require.NoError(t, err)

	ended, err := repo.End(context.Background(), session.ID, models.SessionStatusStopped, now)
	require.NoError(t, err)
	assert.True(t, ended)

	ended, err = repo.End(context.Background(), session.ID, models.SessionStatusExpired, now)
	require.NoError(t, err)
	assert.False(t, ended)

	ids, err := repo.ExpireDue(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = repo.FindLatestActive(context.Background(), now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
