package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/smart-attendance-api/internal/models"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
)

type ledgerRepository interface {
	InsertIfAbsent(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error)
	Find(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.AttendanceRecord, error)
}

// RecordCreatedPublisher is notified after a new ledger record is written.
type RecordCreatedPublisher interface {
	RecordCreated(ctx context.Context, record models.AttendanceRecord)
}

// LedgerService is the single writer of attendance records.
type LedgerService struct {
	repo      ledgerRepository
	publisher RecordCreatedPublisher
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewLedgerService constructs the ledger service.
func NewLedgerService(repo ledgerRepository, metrics *MetricsService, logger *zap.Logger, now func() time.Time) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &LedgerService{repo: repo, metrics: metrics, logger: logger, now: now}
}

// SetPublisher registers the listener for record events.
func (s *LedgerService) SetPublisher(p RecordCreatedPublisher) {
	s.publisher = p
}

// Record inserts a record if the student has none for the session. When one
// exists it is returned unchanged with created=false.
func (s *LedgerService) Record(ctx context.Context, sessionID, studentID, subject string, flags models.AttendanceFlags) (*models.AttendanceRecord, bool, error) {
	studentID = strings.TrimSpace(studentID)
	if sessionID == "" || studentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "session id and student id are required")
	}
	record := &models.AttendanceRecord{
		SessionID:       sessionID,
		StudentID:       studentID,
		Subject:         subject,
		Timestamp:       s.now().UTC(),
		AttendanceFlags: flags,
	}
	stored, created, err := s.repo.InsertIfAbsent(ctx, record)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	if created {
		s.metrics.RecordCreated(stored.ByTeacher)
		s.logger.Info("attendance recorded",
			zap.String("session_id", sessionID),
			zap.String("student_id", studentID),
			zap.Bool("by_teacher", stored.ByTeacher),
		)
		if s.publisher != nil {
			s.publisher.RecordCreated(ctx, *stored)
		}
	}
	return stored, created, nil
}

// Find returns the student's record for a session, or nil.
func (s *LedgerService) Find(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error) {
	record, err := s.repo.Find(ctx, sessionID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return record, nil
}

// Query lists a session's records in insertion order.
func (s *LedgerService) Query(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	records, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return records, nil
}

// Aggregate computes present/total for a session against the roster size.
func (s *LedgerService) Aggregate(ctx context.Context, sessionID string, rosterSize int) (models.AttendanceSummary, error) {
	present, err := s.repo.CountBySession(ctx, sessionID)
	if err != nil {
		return models.AttendanceSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendance")
	}
	return Summarize(present, rosterSize), nil
}

// Summarize returns the percentage rounded to one decimal, and 0 for an empty roster.
func Summarize(present, total int) models.AttendanceSummary {
	summary := models.AttendanceSummary{Present: present, Total: total}
	if total > 0 {
		summary.Percentage = round1(float64(present) / float64(total) * 100)
	}
	return summary
}

// History lists a student's records across sessions, newest first.
func (s *LedgerService) History(ctx context.Context, studentID string) (*models.StudentHistory, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	records, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	history := &models.StudentHistory{StudentID: studentID, Records: records}
	if history.Records == nil {
		history.Records = []models.AttendanceRecord{}
	}
	for _, r := range history.Records {
		history.TotalRecords++
		if r.ByTeacher {
			history.Manual++
		} else if r.QR && r.Location && r.Face {
			history.Verified++
		}
	}
	return history, nil
}
