package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	"github.com/noah-isme/smart-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
	"github.com/noah-isme/smart-attendance-api/pkg/qrtoken"
	"github.com/noah-isme/smart-attendance-api/pkg/storage"
)

var classroomCenter = models.GeoPoint{Latitude: 12.934533, Longitude: 77.605000}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubScorer struct {
	mu      sync.Mutex
	score   float64
	err     error
	onScore func()
	calls   int
}

func (s *stubScorer) Similarity(ctx context.Context, probe, template []byte) (float64, error) {
	s.mu.Lock()
	s.calls++
	hook := s.onScore
	score, err := s.score, s.err
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return score, err
}

func (s *stubScorer) set(score float64, err error) {
	s.mu.Lock()
	s.score, s.err = score, err
	s.mu.Unlock()
}

type attendanceFixture struct {
	clock       *fakeClock
	registry    *SubjectRegistry
	sessionRepo *repository.MemorySessionRepository
	ledgerRepo  *repository.MemoryLedgerRepository
	attempts    *repository.MemoryAttemptStore
	templates   *repository.TemplateRepository
	scorer      *stubScorer
	signer      *qrtoken.Signer

	sessions  *SessionService
	ledger    *LedgerService
	verify    *VerificationService
	overrides *OverrideService
	notifier  *NotifierService
	views     *AttendanceViewService
}

func newAttendanceFixture(t *testing.T) *attendanceFixture {
	t.Helper()
	f := &attendanceFixture{
		clock: newFakeClock(),
		registry: NewSubjectRegistry(map[string][]string{
			"T001": {"Computer Networks", "Theory of Computation"},
			"T002": {"Web Technology Lab"},
		}, []models.GeoFence{{ClassroomID: "main", Name: "Main Block", Center: classroomCenter, RadiusM: 50}},
			"main", map[string]int{"Web Technology Lab": 3}, 30),
		sessionRepo: repository.NewMemorySessionRepository(),
		ledgerRepo:  repository.NewMemoryLedgerRepository(),
		attempts:    repository.NewMemoryAttemptStore(),
		scorer:      &stubScorer{score: 0.92},
	}

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f.templates = repository.NewTemplateRepository(blobs)

	f.signer, err = qrtoken.NewSigner("test-secret", f.clock.Now)
	require.NoError(t, err)

	metrics := NewMetricsService()
	events := NewEventService(nil, f.attempts, nil, metrics, nil)

	f.sessions = NewSessionService(f.sessionRepo, f.registry, f.signer, metrics, nil, nil, SessionServiceConfig{TTL: 10 * time.Minute, Now: f.clock.Now})
	f.sessions.SetPublisher(events)
	f.ledger = NewLedgerService(f.ledgerRepo, metrics, nil, f.clock.Now)
	f.ledger.SetPublisher(events)
	f.verify = NewVerificationService(f.sessions, f.attempts, f.templates, f.scorer, f.ledger, f.registry, f.signer, metrics, nil, VerificationConfig{Threshold: 0.80, Now: f.clock.Now})
	f.overrides = NewOverrideService(f.sessions, f.ledger, f.registry, metrics, nil, nil, 15*time.Minute, f.clock.Now)
	f.notifier = NewNotifierService(f.sessions, f.verify)
	f.views = NewAttendanceViewService(f.sessions, f.ledger, f.registry, nil, nil, time.Minute)
	return f
}

func (f *attendanceFixture) openSession(t *testing.T, teacherID, subject string) *models.Session {
	t.Helper()
	session, err := f.sessions.CreateSession(context.Background(), teacherID, dto.CreateSessionRequest{Subject: subject})
	require.NoError(t, err)
	return session
}

func (f *attendanceFixture) enroll(t *testing.T, studentID string) {
	t.Helper()
	require.NoError(t, f.templates.Save(context.Background(), studentID, testPNG(t)))
}

// passToFace moves a student through the QR and location steps.
func (f *attendanceFixture) passToFace(t *testing.T, session *models.Session, studentID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.verify.VerifyQR(ctx, session.ID, dto.VerifyQRRequest{StudentID: studentID, SubmittedSessionID: session.ID})
	require.NoError(t, err)
	_, err = f.verify.VerifyLocation(ctx, session.ID, studentID, classroomCenter)
	require.NoError(t, err)
}

func requireCode(t *testing.T, err error, expected *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, expected.Code, appErrors.FromError(err).Code)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x*8 + y)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
