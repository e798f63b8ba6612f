package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-attendance-api/internal/models"
	"github.com/noah-isme/smart-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
)

func TestSummarize(t *testing.T) {
	cases := []struct {
		present, total int
		expected       float64
	}{
		{0, 0, 0},
		{0, 30, 0},
		{1, 3, 33.3},
		{2, 3, 66.7},
		{1, 30, 3.3},
		{30, 30, 100},
	}
	for _, tc := range cases {
		summary := Summarize(tc.present, tc.total)
		assert.Equal(t, tc.expected, summary.Percentage, "%d/%d", tc.present, tc.total)
		assert.Equal(t, tc.present, summary.Present)
		assert.Equal(t, tc.total, summary.Total)
	}
}

type recordingPublisher struct {
	records []models.AttendanceRecord
}

func (p *recordingPublisher) RecordCreated(ctx context.Context, record models.AttendanceRecord) {
	p.records = append(p.records, record)
}

func TestLedgerRecordIsInsertIfAbsent(t *testing.T) {
	clock := newFakeClock()
	publisher := &recordingPublisher{}
	svc := NewLedgerService(repository.NewMemoryLedgerRepository(), nil, nil, clock.Now)
	svc.SetPublisher(publisher)
	ctx := context.Background()

	first, created, err := svc.Record(ctx, "s-1", "A", "Computer Networks", models.VerifiedFlags)
	require.NoError(t, err)
	assert.True(t, created)

	clock.Advance(time.Minute)
	second, created, err := svc.Record(ctx, "s-1", "A", "Computer Networks", models.ManualFlags)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Timestamp, second.Timestamp)
	assert.Equal(t, models.VerifiedFlags, second.AttendanceFlags)

	require.Len(t, publisher.records, 1)

	_, _, err = svc.Record(ctx, "s-1", "", "Computer Networks", models.ManualFlags)
	requireCode(t, err, appErrors.ErrValidation)
}

func TestLedgerHistory(t *testing.T) {
	clock := newFakeClock()
	svc := NewLedgerService(repository.NewMemoryLedgerRepository(), nil, nil, clock.Now)
	ctx := context.Background()

	_, _, err := svc.Record(ctx, "s-1", "A", "Computer Networks", models.VerifiedFlags)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, _, err = svc.Record(ctx, "s-2", "A", "Theory of Computation", models.ManualFlags)
	require.NoError(t, err)

	history, err := svc.History(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, history.TotalRecords)
	assert.Equal(t, 1, history.Verified)
	assert.Equal(t, 1, history.Manual)
	assert.Equal(t, "s-2", history.Records[0].SessionID)

	empty, err := svc.History(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty.Records)
	assert.Zero(t, empty.TotalRecords)
}

type failingLedgerRepo struct {
	repository.MemoryLedgerRepository
}

func (*failingLedgerRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	return 0, errors.New("db down")
}

func TestLedgerAggregateError(t *testing.T) {
	svc := NewLedgerService(&failingLedgerRepo{}, nil, nil, nil)
	_, err := svc.Aggregate(context.Background(), "s-1", 30)
	requireCode(t, err, appErrors.ErrInternal)
}
