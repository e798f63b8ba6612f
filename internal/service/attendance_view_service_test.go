package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (r *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (r *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.entries[key] = data
	r.mu.Unlock()
	return nil
}

func (r *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		delete(r.entries, key)
		r.deleted = append(r.deleted, key)
	}
	return nil
}

func TestAttendanceViewSessionAttendance(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T002", "Web Technology Lab")
	_, err := f.overrides.MarkManual(ctx, "T002", dto.OverrideRequest{Subject: "Web Technology Lab", StudentIDs: []string{"A", "B"}})
	require.NoError(t, err)

	view, hit, err := f.views.SessionAttendance(ctx, session.ID, &models.JWTClaims{UserID: "T002", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, view.Records, 2)
	assert.Equal(t, models.AttendanceSummary{Present: 2, Total: 3, Percentage: 66.7}, view.AttendanceSummary)

	_, _, err = f.views.SessionAttendance(ctx, session.ID, &models.JWTClaims{UserID: "T001", Role: models.RoleTeacher})
	requireCode(t, err, appErrors.ErrNotOwner)

	_, _, err = f.views.SessionAttendance(ctx, session.ID, &models.JWTClaims{UserID: "root", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, _, err = f.views.SessionAttendance(ctx, "missing", &models.JWTClaims{UserID: "T002", Role: models.RoleTeacher})
	requireCode(t, err, appErrors.ErrInvalidSession)
}

func TestAttendanceViewUsesCacheAndEventsInvalidate(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	views := NewAttendanceViewService(f.sessions, f.ledger, f.registry, cache, nil, time.Minute)
	events := NewEventService(nil, f.attempts, cache, nil, nil)
	f.ledger.SetPublisher(events)

	session := f.openSession(t, "T001", "Computer Networks")
	claims := &models.JWTClaims{UserID: "T001", Role: models.RoleTeacher}

	_, hit, err := views.SessionAttendance(ctx, session.ID, claims)
	require.NoError(t, err)
	assert.False(t, hit)

	cached, hit, err := views.SessionAttendance(ctx, session.ID, claims)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, session.ID, cached.Session.ID)

	_, err = f.overrides.MarkManual(ctx, "T001", dto.OverrideRequest{Subject: "Computer Networks", StudentIDs: []string{"A"}})
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, SessionAttendanceKey(session.ID))
	assert.Contains(t, repo.deleted, StudentHistoryKey("A"))

	fresh, hit, err := views.SessionAttendance(ctx, session.ID, claims)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, fresh.Present)

	history, hit, err := views.StudentHistory(ctx, "A")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, history.Manual)
	_, hit, err = views.StudentHistory(ctx, "A")
	require.NoError(t, err)
	assert.True(t, hit)
}
