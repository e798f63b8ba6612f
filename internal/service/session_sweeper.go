package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type expiredSessionSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// SessionSweeper periodically expires overdue sessions so their end events
// fire even when nobody touches them.
type SessionSweeper struct {
	cron     *cron.Cron
	sessions expiredSessionSweeper
	logger   *zap.Logger
	timeout  time.Duration
}

// NewSessionSweeper schedules the sweep with a standard cron spec or "@every" descriptor.
func NewSessionSweeper(sessions expiredSessionSweeper, schedule string, logger *zap.Logger) (*SessionSweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLog := cronLogger{logger: logger.Sugar()}
	s := &SessionSweeper{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		sessions: sessions,
		logger:   logger,
		timeout:  30 * time.Second,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SessionSweeper) Start() {
	s.cron.Start()
	s.logger.Info("session sweeper started")
}

// Stop waits for a running sweep or for ctx to end.
func (s *SessionSweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep runs one pass and returns the number of sessions expired.
func (s *SessionSweeper) Sweep(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.sessions.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		s.logger.Info("expired overdue sessions", zap.Int("count", n))
	}
	return n
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
