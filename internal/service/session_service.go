package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	"github.com/noah-isme/smart-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
)

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session, now time.Time) ([]string, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindActiveByTeacher(ctx context.Context, teacherID string) (*models.Session, error)
	FindLatestActive(ctx context.Context, now time.Time) (*models.Session, error)
	FindLatestByTeacherSubject(ctx context.Context, teacherID, subject string) (*models.Session, error)
	End(ctx context.Context, id string, status models.SessionStatus, endedAt time.Time) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) ([]string, error)
}

type subjectAssignments interface {
	IsAssigned(teacherID, subject string) bool
	Classroom(id string) (models.GeoFence, bool)
	DefaultClassroomID() string
}

type qrPayloadSigner interface {
	Generate(sessionID string, expiresAt time.Time) (string, error)
}

// SessionEndedPublisher is notified once per session that leaves the active state.
type SessionEndedPublisher interface {
	SessionEnded(ctx context.Context, sessionID string, status models.SessionStatus)
}

// SessionServiceConfig tunes session lifetime.
type SessionServiceConfig struct {
	TTL time.Duration
	Now func() time.Time
}

// SessionService owns the session lifecycle: create, stop, lazy expiry and lookup.
type SessionService struct {
	repo      sessionRepository
	registry  subjectAssignments
	signer    qrPayloadSigner
	publisher SessionEndedPublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	ttl       time.Duration
	now       func() time.Time
}

// NewSessionService constructs the session service.
func NewSessionService(repo sessionRepository, registry subjectAssignments, signer qrPayloadSigner, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg SessionServiceConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionService{
		repo:      repo,
		registry:  registry,
		signer:    signer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		ttl:       cfg.TTL,
		now:       cfg.Now,
	}
}

// SetPublisher registers the listener for session end events.
func (s *SessionService) SetPublisher(p SessionEndedPublisher) {
	s.publisher = p
}

// TTL is the configured session lifetime.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// CreateSession opens a new active session for a subject assigned to the teacher.
func (s *SessionService) CreateSession(ctx context.Context, teacherID string, req dto.CreateSessionRequest) (*models.Session, error) {
	req.Subject = strings.TrimSpace(req.Subject)
	req.ClassroomID = strings.TrimSpace(req.ClassroomID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if !s.registry.IsAssigned(teacherID, req.Subject) {
		return nil, appErrors.WithDetails(appErrors.ErrSubjectNotAssigned, map[string]interface{}{"subject": req.Subject})
	}

	classroomID := req.ClassroomID
	if classroomID == "" {
		classroomID = s.registry.DefaultClassroomID()
	}
	if _, ok := s.registry.Classroom(classroomID); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown classroom")
	}

	// Settles a lapsed session first so its end event fires before the new one opens.
	existing, err := s.GetActiveSession(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, alreadyActive(existing)
	}

	now := s.now().UTC()
	session := &models.Session{
		ID:          uuid.NewString(),
		Subject:     req.Subject,
		TeacherID:   teacherID,
		ClassroomID: classroomID,
		Status:      models.SessionStatusActive,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	expired, err := s.repo.Create(ctx, session, now)
	if err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			if existing, _ := s.repo.FindActiveByTeacher(ctx, teacherID); existing != nil {
				return nil, alreadyActive(existing)
			}
			return nil, appErrors.Clone(appErrors.ErrSessionAlreadyActive, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	// A concurrent request may have lapsed a session between the check above and the insert.
	for _, id := range expired {
		s.ended(ctx, id, models.SessionStatusExpired)
	}

	s.metrics.SessionCreated()
	s.logger.Info("attendance session created",
		zap.String("session_id", session.ID),
		zap.String("teacher_id", teacherID),
		zap.String("subject", session.Subject),
		zap.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

func alreadyActive(existing *models.Session) error {
	return appErrors.WithDetails(appErrors.ErrSessionAlreadyActive, map[string]interface{}{
		"session_id": existing.ID,
		"subject":    existing.Subject,
		"expires_at": existing.ExpiresAt,
	})
}

// StopSession ends an active session early. Stopping an ended session is a no-op.
func (s *SessionService) StopSession(ctx context.Context, sessionID, teacherID string) (*models.Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrNotOwner, "")
	}
	if session.Status.Terminal() {
		return session, nil
	}

	now := s.now().UTC()
	status, endedAt := models.SessionStatusStopped, now
	if session.ExpiredAt(now) {
		status, endedAt = models.SessionStatusExpired, session.ExpiresAt
	}
	if err := s.end(ctx, session, status, endedAt); err != nil {
		return nil, err
	}
	return session, nil
}

// GetActiveSession returns the teacher's active session, or the most recent
// active session when teacherID is empty. It returns nil when none is active.
func (s *SessionService) GetActiveSession(ctx context.Context, teacherID string) (*models.Session, error) {
	now := s.now().UTC()
	var (
		session *models.Session
		err     error
	)
	if teacherID == "" {
		session, err = s.repo.FindLatestActive(ctx, now)
	} else {
		session, err = s.repo.FindActiveByTeacher(ctx, teacherID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}
	if session.ExpiredAt(now) {
		if err := s.end(ctx, session, models.SessionStatusExpired, session.ExpiresAt); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return session, nil
}

// ValidateActive returns the session if it is still accepting verification.
func (s *SessionService) ValidateActive(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.Lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, appErrors.WithDetails(appErrors.ErrSessionEnded, map[string]interface{}{
			"session_id": session.ID,
			"status":     session.Status,
		})
	}
	return session, nil
}

// Lookup loads a session in any state, applying lazy expiry first.
func (s *SessionService) Lookup(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ExpiredAt(s.now().UTC()) {
		if err := s.end(ctx, session, models.SessionStatusExpired, session.ExpiresAt); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// LatestForSubject returns the teacher's most recent session for subject, or nil.
func (s *SessionService) LatestForSubject(ctx context.Context, teacherID, subject string) (*models.Session, error) {
	session, err := s.repo.FindLatestByTeacherSubject(ctx, teacherID, subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.ExpiredAt(s.now().UTC()) {
		if err := s.end(ctx, session, models.SessionStatusExpired, session.ExpiresAt); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// QRPayload renders the signed payload students scan for this session.
func (s *SessionService) QRPayload(session *models.Session) (string, error) {
	if s.signer == nil {
		return session.ID, nil
	}
	payload, err := s.signer.Generate(session.ID, session.ExpiresAt)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign qr payload")
	}
	return payload, nil
}

// SweepExpired transitions every overdue active session to expired.
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.repo.ExpireDue(ctx, s.now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire sessions")
	}
	for _, id := range ids {
		s.ended(ctx, id, models.SessionStatusExpired)
	}
	return len(ids), nil
}

func (s *SessionService) load(ctx context.Context, sessionID string) (*models.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidSession, "session id is required")
	}
	if !validSessionID(sessionID) {
		return nil, appErrors.Clone(appErrors.ErrInvalidSession, "")
	}
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidSession, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// end applies a terminal transition. Only the caller that wins the guarded
// update publishes the event; losers reload the stored state.
func (s *SessionService) end(ctx context.Context, session *models.Session, status models.SessionStatus, endedAt time.Time) error {
	changed, err := s.repo.End(ctx, session.ID, status, endedAt)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	if !changed {
		current, err := s.load(ctx, session.ID)
		if err != nil {
			return err
		}
		*session = *current
		return nil
	}
	session.Status = status
	session.EndedAt = &endedAt
	s.ended(ctx, session.ID, status)
	return nil
}

func (s *SessionService) ended(ctx context.Context, sessionID string, status models.SessionStatus) {
	s.metrics.SessionEnded(status)
	s.logger.Info("attendance session ended", zap.String("session_id", sessionID), zap.String("status", string(status)))
	if s.publisher != nil {
		s.publisher.SessionEnded(ctx, sessionID, status)
	}
}

// validSessionID reports whether id has the shape of an issued session id.
// Session ids are UUIDs and the postgres columns are typed accordingly.
func validSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
