package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	"github.com/noah-isme/smart-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
	"github.com/noah-isme/smart-attendance-api/pkg/face"
	"github.com/noah-isme/smart-attendance-api/pkg/qrtoken"
)

type activeSessionValidator interface {
	ValidateActive(ctx context.Context, sessionID string) (*models.Session, error)
}

type attemptStore interface {
	Get(ctx context.Context, sessionID, studentID string) (*models.VerificationAttempt, error)
	Save(ctx context.Context, attempt *models.VerificationAttempt, ttl time.Duration) error
}

type templateReader interface {
	Get(ctx context.Context, studentID string) ([]byte, error)
}

type similarityScorer interface {
	Similarity(ctx context.Context, probe, template []byte) (float64, error)
}

type attendanceWriter interface {
	Record(ctx context.Context, sessionID, studentID, subject string, flags models.AttendanceFlags) (*models.AttendanceRecord, bool, error)
	Find(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error)
}

type classroomFences interface {
	Classroom(id string) (models.GeoFence, bool)
}

type qrPayloadParser interface {
	Parse(payload string) (string, time.Time, error)
}

// VerificationConfig tunes the pipeline.
type VerificationConfig struct {
	Threshold float64
	Now       func() time.Time
}

// VerificationService drives a student through QR, location and face checks.
// Each step re-validates the session, and the ledger write is preceded by a
// final validation so nothing is recorded after a session ends.
type VerificationService struct {
	sessions  activeSessionValidator
	attempts  attemptStore
	templates templateReader
	scorer    similarityScorer
	ledger    attendanceWriter
	fences    classroomFences
	parser    qrPayloadParser
	metrics   *MetricsService
	logger    *zap.Logger
	threshold float64
	now       func() time.Time
}

// NewVerificationService constructs the pipeline.
func NewVerificationService(
	sessions activeSessionValidator,
	attempts attemptStore,
	templates templateReader,
	scorer similarityScorer,
	ledger attendanceWriter,
	fences classroomFences,
	parser qrPayloadParser,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg VerificationConfig,
) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = 0.80
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &VerificationService{
		sessions:  sessions,
		attempts:  attempts,
		templates: templates,
		scorer:    scorer,
		ledger:    ledger,
		fences:    fences,
		parser:    parser,
		metrics:   metrics,
		logger:    logger,
		threshold: cfg.Threshold,
		now:       cfg.Now,
	}
}

// Threshold is the minimum similarity accepted by the face step.
func (s *VerificationService) Threshold() float64 {
	return s.threshold
}

// CurrentStage reports where the student is in the pipeline for a session.
func (s *VerificationService) CurrentStage(ctx context.Context, sessionID, studentID string) (models.VerificationStage, error) {
	if !validSessionID(sessionID) {
		return "", appErrors.Clone(appErrors.ErrInvalidSession, "")
	}
	record, err := s.ledger.Find(ctx, sessionID, studentID)
	if err != nil {
		return "", err
	}
	if record != nil {
		return models.StageComplete, nil
	}
	attempt, err := s.attempts.Get(ctx, sessionID, studentID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load verification progress")
	}
	if attempt == nil {
		return models.StageQRPending, nil
	}
	return attempt.Stage, nil
}

// VerifyQR checks that the scanned QR names the session being verified.
func (s *VerificationService) VerifyQR(ctx context.Context, sessionID string, req dto.VerifyQRRequest) (*models.StageResult, error) {
	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}

	session, err := s.sessions.ValidateActive(ctx, sessionID)
	if err != nil {
		s.metrics.VerificationStep(models.StageQRPending, OutcomeRejected)
		return nil, err
	}

	submitted, err := s.submittedSessionID(session.ID, req)
	if err != nil {
		s.metrics.VerificationStep(models.StageQRPending, OutcomeRejected)
		return nil, err
	}
	if submitted != session.ID {
		s.metrics.VerificationStep(models.StageQRPending, OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrTokenMismatch, "")
	}

	stage, err := s.CurrentStage(ctx, session.ID, studentID)
	if err != nil {
		return nil, err
	}
	if stage.Rank() > models.StageQRPending.Rank() {
		return s.result(session.ID, studentID, stage), nil
	}

	if err := s.save(ctx, session, &models.VerificationAttempt{
		SessionID: session.ID,
		StudentID: studentID,
		Stage:     models.StageLocationPending,
	}); err != nil {
		return nil, err
	}
	s.metrics.VerificationStep(models.StageQRPending, OutcomeAccepted)
	return s.result(session.ID, studentID, models.StageLocationPending), nil
}

// submittedSessionID extracts the session named by the scan. An expired payload
// only ends the attempt when it names the session being verified; a stale code
// from another session is a mismatch.
func (s *VerificationService) submittedSessionID(sessionID string, req dto.VerifyQRRequest) (string, error) {
	payload := strings.TrimSpace(req.QRPayload)
	if payload == "" || s.parser == nil {
		if id := strings.TrimSpace(req.SubmittedSessionID); id != "" {
			return id, nil
		}
		return payload, nil
	}
	id, _, err := s.parser.Parse(payload)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, qrtoken.ErrExpired) && id == sessionID:
		return "", appErrors.WithDetails(appErrors.ErrSessionEnded, map[string]interface{}{"session_id": id})
	default:
		return "", appErrors.WrapAs(appErrors.ErrTokenMismatch, err)
	}
}

// VerifyLocation checks the device position against the classroom geofence.
func (s *VerificationService) VerifyLocation(ctx context.Context, sessionID, studentID string, point models.GeoPoint) (*models.StageResult, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if !point.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "latitude or longitude out of range")
	}

	session, err := s.sessions.ValidateActive(ctx, sessionID)
	if err != nil {
		s.metrics.VerificationStep(models.StageLocationPending, OutcomeRejected)
		return nil, err
	}
	if err := s.requireStage(ctx, session.ID, studentID, models.StageLocationPending); err != nil {
		return nil, err
	}

	fence, ok := s.fences.Classroom(session.ClassroomID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, "classroom geofence is not configured")
	}
	inside, distance := Contains(fence, point)
	distance = round1(distance)
	radius := fence.RadiusM
	if !inside {
		s.metrics.VerificationStep(models.StageLocationPending, OutcomeRejected)
		s.logger.Info("location outside geofence",
			zap.String("session_id", session.ID),
			zap.String("student_id", studentID),
			zap.Float64("distance_m", distance),
		)
		return nil, appErrors.WithDetails(appErrors.ErrGeofenceViolation, map[string]interface{}{
			"distance_m": distance,
			"radius_m":   radius,
		})
	}

	if err := s.save(ctx, session, &models.VerificationAttempt{
		SessionID: session.ID,
		StudentID: studentID,
		Stage:     models.StageFacePending,
		Location:  &point,
		DistanceM: &distance,
	}); err != nil {
		return nil, err
	}
	s.metrics.VerificationStep(models.StageLocationPending, OutcomeAccepted)
	result := s.result(session.ID, studentID, models.StageFacePending)
	result.DistanceM = &distance
	result.RadiusM = &radius
	return result, nil
}

// VerifyFace compares a capture with the enrolled template and, on success,
// writes the ledger record.
func (s *VerificationService) VerifyFace(ctx context.Context, sessionID, studentID string, image []byte) (*models.FaceResult, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if len(image) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image is required")
	}

	session, err := s.sessions.ValidateActive(ctx, sessionID)
	if err != nil {
		s.metrics.VerificationStep(models.StageFacePending, OutcomeRejected)
		return nil, err
	}

	existing, err := s.ledger.Find(ctx, session.ID, studentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &models.FaceResult{Stage: models.StageComplete, Record: existing, Threshold: s.threshold}, nil
	}
	if err := s.requireStage(ctx, session.ID, studentID, models.StageFacePending); err != nil {
		return nil, err
	}

	template, err := s.templates.Get(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrTemplateNotFound) {
			return nil, appErrors.WithDetails(appErrors.ErrNoEnrolledTemplate, map[string]interface{}{"student_id": studentID})
		}
		s.metrics.VerificationStep(models.StageFacePending, OutcomeError)
		return nil, appErrors.WrapAs(appErrors.ErrTemplateStoreDown, err)
	}

	start := time.Now()
	score, err := s.scorer.Similarity(ctx, image, template)
	if err != nil {
		if errors.Is(err, face.ErrBadTemplate) {
			s.metrics.VerificationStep(models.StageFacePending, OutcomeError)
			s.logger.Warn("stored face template unusable", zap.String("student_id", studentID), zap.Error(err))
			return nil, appErrors.WrapAs(appErrors.ErrTemplateStoreDown, err)
		}
		if errors.Is(err, face.ErrUndecodable) {
			s.metrics.VerificationStep(models.StageFacePending, OutcomeRejected)
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "image could not be decoded")
		}
		s.metrics.VerificationStep(models.StageFacePending, OutcomeError)
		s.logger.Warn("face engine failed", zap.String("session_id", session.ID), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrFaceEngineDown, err)
	}
	s.metrics.FaceCompared(score, time.Since(start))

	if score < s.threshold {
		s.metrics.VerificationStep(models.StageFacePending, OutcomeRejected)
		attempt := &models.VerificationAttempt{SessionID: session.ID, StudentID: studentID, Stage: models.StageFacePending, FaceScore: &score}
		if prev, _ := s.attempts.Get(ctx, session.ID, studentID); prev != nil {
			attempt.Location, attempt.DistanceM = prev.Location, prev.DistanceM
		}
		if err := s.save(ctx, session, attempt); err != nil {
			s.logger.Warn("failed to store face attempt", zap.Error(err))
		}
		return nil, appErrors.WithDetails(appErrors.ErrFaceMismatch, map[string]interface{}{
			"score":     round2(score),
			"threshold": s.threshold,
		})
	}

	// The session may have ended while the engine was scoring.
	if session, err = s.sessions.ValidateActive(ctx, session.ID); err != nil {
		s.metrics.VerificationStep(models.StageFacePending, OutcomeRejected)
		return nil, err
	}

	record, created, err := s.ledger.Record(ctx, session.ID, studentID, session.Subject, models.VerifiedFlags)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, session, &models.VerificationAttempt{
		SessionID: session.ID,
		StudentID: studentID,
		Stage:     models.StageComplete,
		FaceScore: &score,
	}); err != nil {
		s.logger.Warn("failed to store completed attempt", zap.Error(err))
	}
	s.metrics.VerificationStep(models.StageFacePending, OutcomeAccepted)
	return &models.FaceResult{
		Stage:     models.StageComplete,
		Record:    record,
		Score:     &score,
		Threshold: s.threshold,
		Created:   created,
	}, nil
}

func (s *VerificationService) requireStage(ctx context.Context, sessionID, studentID string, expected models.VerificationStage) error {
	current, err := s.CurrentStage(ctx, sessionID, studentID)
	if err != nil {
		return err
	}
	if current != expected {
		s.metrics.VerificationStep(expected, OutcomeRejected)
		return appErrors.WithDetails(appErrors.ErrStageOrderViolation, map[string]interface{}{
			"current_stage":  current,
			"expected_stage": expected,
		})
	}
	return nil
}

// save keeps progress until shortly after the session would expire.
func (s *VerificationService) save(ctx context.Context, session *models.Session, attempt *models.VerificationAttempt) error {
	attempt.UpdatedAt = s.now().UTC()
	ttl := session.ExpiresAt.Sub(attempt.UpdatedAt) + time.Minute
	if ttl < time.Minute {
		ttl = time.Minute
	}
	if err := s.attempts.Save(ctx, attempt, ttl); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification progress")
	}
	return nil
}

func (s *VerificationService) result(sessionID, studentID string, stage models.VerificationStage) *models.StageResult {
	return &models.StageResult{SessionID: sessionID, StudentID: studentID, Stage: stage}
}
