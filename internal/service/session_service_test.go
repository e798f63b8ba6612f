package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	"github.com/noah-isme/smart-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
)

func TestSessionServiceCreateAndLookup(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	session := f.openSession(t, "T001", "Computer Networks")
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, "main", session.ClassroomID)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), session.ExpiresAt)

	active, err := f.sessions.GetActiveSession(ctx, "T001")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, session.ID, active.ID)

	latest, err := f.sessions.GetActiveSession(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, session.ID, latest.ID)

	none, err := f.sessions.GetActiveSession(ctx, "T002")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSessionServiceRejectsUnassignedSubject(t *testing.T) {
	f := newAttendanceFixture(t)

	_, err := f.sessions.CreateSession(context.Background(), "T001", dto.CreateSessionRequest{Subject: "Web Technology Lab"})
	requireCode(t, err, appErrors.ErrSubjectNotAssigned)

	_, err = f.sessions.CreateSession(context.Background(), "T001", dto.CreateSessionRequest{Subject: ""})
	requireCode(t, err, appErrors.ErrValidation)

	_, err = f.sessions.CreateSession(context.Background(), "T001", dto.CreateSessionRequest{Subject: "Computer Networks", ClassroomID: "lab-9"})
	requireCode(t, err, appErrors.ErrValidation)

	active, err := f.sessions.GetActiveSession(context.Background(), "T001")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestSessionServiceSecondCreateConflicts(t *testing.T) {
	f := newAttendanceFixture(t)
	first := f.openSession(t, "T001", "Computer Networks")

	_, err := f.sessions.CreateSession(context.Background(), "T001", dto.CreateSessionRequest{Subject: "Theory of Computation"})
	requireCode(t, err, appErrors.ErrSessionAlreadyActive)
	assert.Equal(t, first.ID, appErrors.FromError(err).Details["session_id"])

	// Other teachers are unaffected.
	f.openSession(t, "T002", "Web Technology Lab")
}

func TestSessionServiceConcurrentCreateHasOneWinner(t *testing.T) {
	f := newAttendanceFixture(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sessions.CreateSession(context.Background(), "T001", dto.CreateSessionRequest{Subject: "Computer Networks"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
				return
			}
			if appErrors.FromError(err).Code == appErrors.ErrSessionAlreadyActive.Code {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 19, conflicts)
}

func TestSessionServiceExpiryBoundary(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")

	f.clock.Advance(599 * time.Second)
	_, err := f.sessions.ValidateActive(ctx, session.ID)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Second)
	_, err = f.sessions.ValidateActive(ctx, session.ID)
	requireCode(t, err, appErrors.ErrSessionEnded)

	active, err := f.sessions.GetActiveSession(ctx, "T001")
	require.NoError(t, err)
	assert.Nil(t, active)

	stored, err := f.sessions.Lookup(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusExpired, stored.Status)
	require.NotNil(t, stored.EndedAt)
	assert.Equal(t, session.ExpiresAt, *stored.EndedAt)

	next := f.openSession(t, "T001", "Theory of Computation")
	assert.NotEqual(t, session.ID, next.ID)
}

func TestSessionServiceCreateReplacesLapsedSession(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")
	require.NoError(t, f.attempts.Save(ctx, &models.VerificationAttempt{SessionID: session.ID, StudentID: "X", Stage: models.StageFacePending}, time.Hour))

	f.clock.Advance(11 * time.Minute)
	f.openSession(t, "T001", "Computer Networks")

	attempt, err := f.attempts.Get(ctx, session.ID, "X")
	require.NoError(t, err)
	assert.Nil(t, attempt)
}

// lateActiveView hides the teacher's active session, as a replica that read
// before another request lapsed it would.
type lateActiveView struct {
	*repository.MemorySessionRepository
}

func (lateActiveView) FindActiveByTeacher(ctx context.Context, teacherID string) (*models.Session, error) {
	return nil, sql.ErrNoRows
}

func TestSessionServiceCreatePublishesSessionsLapsedDuringInsert(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")
	require.NoError(t, f.attempts.Save(ctx, &models.VerificationAttempt{SessionID: session.ID, StudentID: "X", Stage: models.StageFacePending}, time.Hour))

	metrics := NewMetricsService()
	sessions := NewSessionService(lateActiveView{f.sessionRepo}, f.registry, f.signer, metrics, nil, nil, SessionServiceConfig{Now: f.clock.Now})
	sessions.SetPublisher(NewEventService(nil, f.attempts, nil, metrics, nil))

	f.clock.Advance(11 * time.Minute)
	_, err := sessions.CreateSession(ctx, "T001", dto.CreateSessionRequest{Subject: "Computer Networks"})
	require.NoError(t, err)

	old, err := f.sessionRepo.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusExpired, old.Status)
	attempt, err := f.attempts.Get(ctx, session.ID, "X")
	require.NoError(t, err)
	assert.Nil(t, attempt)
}

func TestSessionServiceStop(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")

	_, err := f.sessions.StopSession(ctx, session.ID, "T002")
	requireCode(t, err, appErrors.ErrNotOwner)

	f.clock.Advance(time.Minute)
	stopped, err := f.sessions.StopSession(ctx, session.ID, "T001")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusStopped, stopped.Status)
	require.NotNil(t, stopped.EndedAt)
	assert.Equal(t, f.clock.Now(), *stopped.EndedAt)

	again, err := f.sessions.StopSession(ctx, session.ID, "T001")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusStopped, again.Status)

	_, err = f.sessions.ValidateActive(ctx, session.ID)
	requireCode(t, err, appErrors.ErrSessionEnded)

	_, err = f.sessions.StopSession(ctx, "missing", "T001")
	requireCode(t, err, appErrors.ErrInvalidSession)
}

func TestSessionServiceStopAfterExpiryKeepsExpired(t *testing.T) {
	f := newAttendanceFixture(t)
	session := f.openSession(t, "T001", "Computer Networks")

	f.clock.Advance(20 * time.Minute)
	stopped, err := f.sessions.StopSession(context.Background(), session.ID, "T001")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusExpired, stopped.Status)
}

func TestSessionServiceSweepExpired(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	first := f.openSession(t, "T001", "Computer Networks")
	f.openSession(t, "T002", "Web Technology Lab")
	require.NoError(t, f.attempts.Save(ctx, &models.VerificationAttempt{SessionID: first.ID, StudentID: "X", Stage: models.StageLocationPending}, time.Hour))

	n, err := f.sessions.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(10*time.Minute + time.Second)
	n, err = f.sessions.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	attempt, err := f.attempts.Get(ctx, first.ID, "X")
	require.NoError(t, err)
	assert.Nil(t, attempt)
}

func TestSessionServiceQRPayloadNamesSession(t *testing.T) {
	f := newAttendanceFixture(t)
	session := f.openSession(t, "T001", "Computer Networks")

	payload, err := f.sessions.QRPayload(session)
	require.NoError(t, err)
	id, expiresAt, err := f.signer.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, session.ID, id)
	assert.Equal(t, session.ExpiresAt.Unix(), expiresAt.Unix())
}

func TestSessionServiceMalformedIDIsInvalidSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	f := newAttendanceFixture(t)
	sessions := NewSessionService(repository.NewSessionRepository(sqlxDB), f.registry, f.signer, NewMetricsService(), nil, nil, SessionServiceConfig{Now: f.clock.Now})
	ledger := NewLedgerService(repository.NewLedgerRepository(sqlxDB), NewMetricsService(), nil, f.clock.Now)
	verify := NewVerificationService(sessions, f.attempts, f.templates, f.scorer, ledger, f.registry, f.signer, NewMetricsService(), nil, VerificationConfig{Threshold: 0.8, Now: f.clock.Now})
	overrides := NewOverrideService(sessions, ledger, f.registry, NewMetricsService(), nil, nil, 15*time.Minute, f.clock.Now)
	ctx := context.Background()

	_, err = sessions.ValidateActive(ctx, "abc")
	requireCode(t, err, appErrors.ErrInvalidSession)
	_, err = sessions.StopSession(ctx, "abc", "T001")
	requireCode(t, err, appErrors.ErrInvalidSession)
	_, err = verify.VerifyQR(ctx, "abc", dto.VerifyQRRequest{StudentID: "A", SubmittedSessionID: "abc"})
	requireCode(t, err, appErrors.ErrInvalidSession)
	_, err = verify.CurrentStage(ctx, "abc", "A")
	requireCode(t, err, appErrors.ErrInvalidSession)
	_, err = overrides.MarkManual(ctx, "T001", dto.OverrideRequest{Subject: "Computer Networks", StudentIDs: []string{"A"}, SessionID: "abc"})
	requireCode(t, err, appErrors.ErrNoTargetSession)

	// Nothing was sent to postgres, so no uuid cast could fail there.
	assert.NoError(t, mock.ExpectationsWereMet())
}
