package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/smart-attendance-api/internal/models"
	"github.com/noah-isme/smart-attendance-api/pkg/jobs"
)

const (
	EventRecordCreated = "attendance.recorded"
	EventSessionEnded  = "session.ended"
)

type attemptPurger interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

type sessionEndedPayload struct {
	SessionID string
	Status    models.SessionStatus
}

// EventService fans attendance events out to background handlers on a job
// queue. If the queue is missing or full the handler runs inline.
type EventService struct {
	queue    *jobs.Queue
	attempts attemptPurger
	cache    cacheInvalidator
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewEventService registers the event handlers on queue. queue may be nil.
func NewEventService(queue *jobs.Queue, attempts attemptPurger, cache cacheInvalidator, metrics *MetricsService, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &EventService{queue: queue, attempts: attempts, cache: cache, metrics: metrics, logger: logger}
	if queue != nil {
		queue.Handle(EventRecordCreated, s.handleRecordCreated)
		queue.Handle(EventSessionEnded, s.handleSessionEnded)
	}
	return s
}

// RecordCreated implements RecordCreatedPublisher.
func (s *EventService) RecordCreated(ctx context.Context, record models.AttendanceRecord) {
	s.dispatch(ctx, jobs.Job{Type: EventRecordCreated, Payload: record}, s.handleRecordCreated)
}

// SessionEnded implements SessionEndedPublisher.
func (s *EventService) SessionEnded(ctx context.Context, sessionID string, status models.SessionStatus) {
	s.dispatch(ctx, jobs.Job{Type: EventSessionEnded, Payload: sessionEndedPayload{SessionID: sessionID, Status: status}}, s.handleSessionEnded)
}

func (s *EventService) dispatch(ctx context.Context, job jobs.Job, inline jobs.Handler) {
	if s.queue != nil {
		err := s.queue.Enqueue(job)
		if err == nil {
			return
		}
		s.logger.Warn("event queue unavailable, handling inline", zap.String("type", job.Type), zap.Error(err))
	}
	// Detached so request cancellation does not abort cleanup.
	if err := inline(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error("event handler failed", zap.String("type", job.Type), zap.Error(err))
	}
}

func (s *EventService) handleRecordCreated(ctx context.Context, job jobs.Job) error {
	record, ok := job.Payload.(models.AttendanceRecord)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, SessionAttendanceKey(record.SessionID), StudentHistoryKey(record.StudentID)); err != nil {
			return err
		}
	}
	s.metrics.EventProcessed(job.Type)
	return nil
}

func (s *EventService) handleSessionEnded(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(sessionEndedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	if s.attempts != nil {
		if err := s.attempts.DeleteSession(ctx, payload.SessionID); err != nil {
			return err
		}
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, SessionAttendanceKey(payload.SessionID)); err != nil {
			return err
		}
	}
	s.metrics.EventProcessed(job.Type)
	s.logger.Debug("session cleanup done", zap.String("session_id", payload.SessionID), zap.String("status", string(payload.Status)))
	return nil
}
