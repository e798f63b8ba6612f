package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/smart-attendance-api/internal/models"
)

// MemorySessionRepository keeps sessions in process memory. It mirrors
// SessionRepository and returns sql.ErrNoRows for misses.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	order    []string
}

// NewMemorySessionRepository constructs an empty store.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]*models.Session)}
}

// Create inserts the session unless the teacher already owns an unexpired
// active one. It returns the ids of lapsed sessions it expired on the way.
func (r *MemorySessionRepository) Create(ctx context.Context, session *models.Session, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lapsed []*models.Session
	for _, existing := range r.sessions {
		if existing.TeacherID != session.TeacherID || existing.Status != models.SessionStatusActive {
			continue
		}
		if !existing.ExpiredAt(now) {
			return nil, ErrActiveSessionExists
		}
		lapsed = append(lapsed, existing)
	}

	expired := make([]string, 0, len(lapsed))
	for _, existing := range lapsed {
		expire(existing)
		expired = append(expired, existing.ID)
	}
	copied := *session
	r.sessions[session.ID] = &copied
	r.order = append(r.order, session.ID)
	return expired, nil
}

// FindByID returns a copy of the session.
func (r *MemorySessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *session
	return &copied, nil
}

// FindActiveByTeacher returns the teacher's active session without applying expiry.
func (r *MemorySessionRepository) FindActiveByTeacher(ctx context.Context, teacherID string) (*models.Session, error) {
	return r.latest(func(s *models.Session) bool {
		return s.TeacherID == teacherID && s.Status == models.SessionStatusActive
	})
}

// FindLatestActive returns the newest session still active at now.
func (r *MemorySessionRepository) FindLatestActive(ctx context.Context, now time.Time) (*models.Session, error) {
	return r.latest(func(s *models.Session) bool {
		return s.Status == models.SessionStatusActive && !now.After(s.ExpiresAt)
	})
}

// FindLatestByTeacherSubject returns the teacher's newest session for subject.
func (r *MemorySessionRepository) FindLatestByTeacherSubject(ctx context.Context, teacherID, subject string) (*models.Session, error) {
	return r.latest(func(s *models.Session) bool {
		return s.TeacherID == teacherID && s.Subject == subject
	})
}

// End moves an active session to a terminal status.
func (r *MemorySessionRepository) End(ctx context.Context, id string, status models.SessionStatus, endedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.Status != models.SessionStatusActive {
		return false, nil
	}
	session.Status = status
	ended := endedAt
	session.EndedAt = &ended
	return true, nil
}

// ExpireDue marks overdue active sessions expired.
func (r *MemorySessionRepository) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, id := range r.order {
		session := r.sessions[id]
		if session.ExpiredAt(now) {
			expire(session)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// latest scans newest first; order is append-only so creation order holds.
func (r *MemorySessionRepository) latest(match func(*models.Session) bool) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		session := r.sessions[r.order[i]]
		if match(session) {
			copied := *session
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func expire(session *models.Session) {
	session.Status = models.SessionStatusExpired
	ended := session.ExpiresAt
	session.EndedAt = &ended
}
