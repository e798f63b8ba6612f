package service

import (
	"context"

	"github.com/noah-isme/smart-attendance-api/internal/models"
)

type activeSessionFinder interface {
	GetActiveSession(ctx context.Context, teacherID string) (*models.Session, error)
}

type stageReader interface {
	CurrentStage(ctx context.Context, sessionID, studentID string) (models.VerificationStage, error)
}

// NotifierService answers client polls about the current session.
type NotifierService struct {
	sessions activeSessionFinder
	stages   stageReader
}

func NewNotifierService(sessions activeSessionFinder, stages stageReader) *NotifierService {
	return &NotifierService{sessions: sessions, stages: stages}
}

// Poll returns the latest active session and, when studentID is set, the
// student's progress in it. The session id is stable for the session's life.
func (s *NotifierService) Poll(ctx context.Context, studentID string) (*models.NotifierSnapshot, error) {
	session, err := s.sessions.GetActiveSession(ctx, "")
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, session, studentID)
}

// PollTeacher returns the teacher's own active session.
func (s *NotifierService) PollTeacher(ctx context.Context, teacherID string) (*models.NotifierSnapshot, error) {
	session, err := s.sessions.GetActiveSession(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, session, "")
}

func (s *NotifierService) snapshot(ctx context.Context, session *models.Session, studentID string) (*models.NotifierSnapshot, error) {
	if session == nil {
		return &models.NotifierSnapshot{Active: false}, nil
	}
	snap := &models.NotifierSnapshot{Active: true, Session: session}
	if studentID == "" {
		return snap, nil
	}
	stage, err := s.stages.CurrentStage(ctx, session.ID, studentID)
	if err != nil {
		return nil, err
	}
	snap.Stage = stage
	snap.Marked = stage == models.StageComplete
	return snap, nil
}
