package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/smart-attendance-api/internal/models"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
)

type sessionLookup interface {
	Lookup(ctx context.Context, sessionID string) (*models.Session, error)
}

type ledgerReader interface {
	Query(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
	Aggregate(ctx context.Context, sessionID string, rosterSize int) (models.AttendanceSummary, error)
	History(ctx context.Context, studentID string) (*models.StudentHistory, error)
}

type rosterSizer interface {
	RosterSize(subject string) int
}

// AttendanceViewService assembles the read views over the ledger and caches them.
type AttendanceViewService struct {
	sessions sessionLookup
	ledger   ledgerReader
	rosters  rosterSizer
	cache    *CacheService
	logger   *zap.Logger
	ttl      time.Duration
}

func NewAttendanceViewService(sessions sessionLookup, ledger ledgerReader, rosters rosterSizer, cache *CacheService, logger *zap.Logger, ttl time.Duration) *AttendanceViewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceViewService{sessions: sessions, ledger: ledger, rosters: rosters, cache: cache, logger: logger, ttl: ttl}
}

// SessionAttendance returns the records and live summary of a session. Teachers
// may only view their own sessions. The bool reports a cache hit.
func (s *AttendanceViewService) SessionAttendance(ctx context.Context, sessionID string, claims *models.JWTClaims) (*models.SessionAttendance, bool, error) {
	session, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if claims == nil {
		return nil, false, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if claims.Role != models.RoleAdmin && session.TeacherID != claims.UserID {
		return nil, false, appErrors.Clone(appErrors.ErrNotOwner, "")
	}

	key := SessionAttendanceKey(session.ID)
	var cached models.SessionAttendance
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		cached.Session = session
		return &cached, true, nil
	}

	view := &models.SessionAttendance{Session: session}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := s.ledger.Query(gctx, session.ID)
		view.Records = records
		return err
	})
	g.Go(func() error {
		summary, err := s.ledger.Aggregate(gctx, session.ID, s.rosters.RosterSize(session.Subject))
		view.AttendanceSummary = summary
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	_ = s.cache.Set(ctx, key, view, s.ttl)
	return view, false, nil
}

// StudentHistory returns a student's records across sessions.
func (s *AttendanceViewService) StudentHistory(ctx context.Context, studentID string) (*models.StudentHistory, bool, error) {
	key := StudentHistoryKey(studentID)
	var cached models.StudentHistory
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}
	history, err := s.ledger.History(ctx, studentID)
	if err != nil {
		return nil, false, err
	}
	_ = s.cache.Set(ctx, key, history, s.ttl)
	return history, false, nil
}
