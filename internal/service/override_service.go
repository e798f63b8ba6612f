package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
)

type overrideSessions interface {
	Lookup(ctx context.Context, sessionID string) (*models.Session, error)
	LatestForSubject(ctx context.Context, teacherID, subject string) (*models.Session, error)
}

type overrideLedger interface {
	Record(ctx context.Context, sessionID, studentID, subject string, flags models.AttendanceFlags) (*models.AttendanceRecord, bool, error)
}

type subjectChecker interface {
	IsAssigned(teacherID, subject string) bool
	KnownStudent(subject, studentID string) bool
}

// OverrideService lets a teacher mark students present without the pipeline.
type OverrideService struct {
	sessions  overrideSessions
	ledger    overrideLedger
	registry  subjectChecker
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	grace     time.Duration
	now       func() time.Time
}

// NewOverrideService constructs the override service. Sessions that ended
// within grace still accept overrides.
func NewOverrideService(sessions overrideSessions, ledger overrideLedger, registry subjectChecker, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, grace time.Duration, now func() time.Time) *OverrideService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if grace < 0 {
		grace = 0
	}
	if now == nil {
		now = time.Now
	}
	return &OverrideService{
		sessions:  sessions,
		ledger:    ledger,
		registry:  registry,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		grace:     grace,
		now:       now,
	}
}

// MarkManual records the listed students as present. Students that already
// have a record are reported as skipped and their record is left untouched.
// Ids missing from the subject's roster are reported as unknown and not written.
func (s *OverrideService) MarkManual(ctx context.Context, teacherID string, req dto.OverrideRequest) (*models.OverrideResult, error) {
	req.Subject = strings.TrimSpace(req.Subject)
	for i := range req.StudentIDs {
		req.StudentIDs[i] = strings.TrimSpace(req.StudentIDs[i])
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	if !s.registry.IsAssigned(teacherID, req.Subject) {
		return nil, appErrors.WithDetails(appErrors.ErrSubjectNotAssigned, map[string]interface{}{"subject": req.Subject})
	}

	session, err := s.resolveTarget(ctx, teacherID, req.Subject, strings.TrimSpace(req.SessionID))
	if err != nil {
		return nil, err
	}

	result := &models.OverrideResult{SessionID: session.ID, Created: []string{}, Skipped: []string{}, Unknown: []string{}}
	seen := make(map[string]struct{}, len(req.StudentIDs))
	for _, studentID := range req.StudentIDs {
		if _, dup := seen[studentID]; dup {
			continue
		}
		seen[studentID] = struct{}{}
		if !s.registry.KnownStudent(session.Subject, studentID) {
			result.Unknown = append(result.Unknown, studentID)
			continue
		}

		_, created, err := s.ledger.Record(ctx, session.ID, studentID, session.Subject, models.ManualFlags)
		if err != nil {
			s.logger.Error("override interrupted",
				zap.String("session_id", session.ID),
				zap.Strings("created", result.Created),
				zap.Error(err),
			)
			return nil, err
		}
		if created {
			result.Created = append(result.Created, studentID)
		} else {
			result.Skipped = append(result.Skipped, studentID)
		}
	}

	s.metrics.OverrideProcessed(len(result.Created), len(result.Skipped))
	s.logger.Info("manual attendance override",
		zap.String("session_id", session.ID),
		zap.String("teacher_id", teacherID),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Strings("unknown", result.Unknown),
	)
	return result, nil
}

// resolveTarget picks the session an override applies to: the explicit one
// if given, otherwise the teacher's latest session for the subject. Either
// must be active or have ended within the grace window.
func (s *OverrideService) resolveTarget(ctx context.Context, teacherID, subject, sessionID string) (*models.Session, error) {
	var (
		session *models.Session
		err     error
	)
	if sessionID != "" {
		session, err = s.sessions.Lookup(ctx, sessionID)
		if err != nil {
			if appErrors.FromError(err).Code == appErrors.ErrInvalidSession.Code {
				return nil, appErrors.Clone(appErrors.ErrNoTargetSession, "")
			}
			return nil, err
		}
		if session.TeacherID != teacherID {
			return nil, appErrors.Clone(appErrors.ErrNotOwner, "")
		}
		if session.Subject != subject {
			return nil, appErrors.Clone(appErrors.ErrValidation, "session belongs to a different subject")
		}
	} else {
		session, err = s.sessions.LatestForSubject(ctx, teacherID, subject)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, appErrors.Clone(appErrors.ErrNoTargetSession, "")
		}
	}

	if session.Status.Terminal() && s.now().UTC().Sub(session.EndTime()) > s.grace {
		return nil, appErrors.WithDetails(appErrors.ErrNoTargetSession, map[string]interface{}{
			"session_id": session.ID,
			"ended_at":   session.EndTime(),
		})
	}
	return session, nil
}
