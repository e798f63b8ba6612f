package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/models"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
	"github.com/noah-isme/smart-attendance-api/pkg/face"
)

// ~100 m north of the classroom center.
var outsidePoint = models.GeoPoint{Latitude: 12.935433, Longitude: 77.605000}

func TestVerificationFullPipeline(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")
	f.enroll(t, "1RV21CS001")

	qr, err := f.verify.VerifyQR(ctx, session.ID, dto.VerifyQRRequest{StudentID: "1RV21CS001", SubmittedSessionID: session.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StageLocationPending, qr.Stage)

	loc, err := f.verify.VerifyLocation(ctx, session.ID, "1RV21CS001", classroomCenter)
	require.NoError(t, err)
	assert.Equal(t, models.StageFacePending, loc.Stage)
	require.NotNil(t, loc.DistanceM)
	assert.Zero(t, *loc.DistanceM)
	assert.Equal(t, 50.0, *loc.RadiusM)

	result, err := f.verify.VerifyFace(ctx, session.ID, "1RV21CS001", testPNG(t))
	require.NoError(t, err)
	assert.Equal(t, models.StageComplete, result.Stage)
	assert.True(t, result.Created)
	require.NotNil(t, result.Record)
	assert.Equal(t, models.VerifiedFlags, result.Record.AttendanceFlags)
	assert.Equal(t, "Computer Networks", result.Record.Subject)
	assert.Equal(t, 0.92, *result.Score)

	records, err := f.ledger.Query(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)

	summary, err := f.ledger.Aggregate(ctx, session.ID, f.registry.RosterSize(session.Subject))
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceSummary{Present: 1, Total: 30, Percentage: 3.3}, summary)

	stage, err := f.verify.CurrentStage(ctx, session.ID, "1RV21CS001")
	require.NoError(t, err)
	assert.Equal(t, models.StageComplete, stage)
}

func TestVerificationQRChecks(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")

	_, err := f.verify.VerifyQR(ctx, session.ID, dto.VerifyQRRequest{StudentID: "A", SubmittedSessionID: "other"})
	requireCode(t, err, appErrors.ErrTokenMismatch)

	_, err = f.verify.VerifyQR(ctx, session.ID, dto.VerifyQRRequest{StudentID: "A", QRPayload: "tampered.payload.value"})
	requireCode(t, err, appErrors.ErrTokenMismatch)

	_, err = f.verify.VerifyQR(ctx, "missing", dto.VerifyQRRequest{StudentID: "A", SubmittedSessionID: "missing"})
	requireCode(t, err, appErrors.ErrInvalidSession)

	_, err = f.verify.VerifyQR(ctx, session.ID, dto.VerifyQRRequest{SubmittedSessionID: session.ID})
	requireCode(t, err, appErrors.ErrValidation)

	payload, err := f.sessions.QRPayload(session)
	require.NoError(t, err)
	result, err := f.verify.VerifyQR(ctx, session.ID, dto.VerifyQRRequest{StudentID: "A", QRPayload: payload})
	require.NoError(t, err)
	assert.Equal(t, models.StageLocationPending, result.Stage)

	// Re-scanning never moves a student backwards.
	_, err = f.verify.VerifyLocation(ctx, session.ID, "A", classroomCenter)
	require.NoError(t, err)
	result, err = f.verify.VerifyQR(ctx, session.ID, dto.VerifyQRRequest{StudentID: "A", QRPayload: payload})
	require.NoError(t, err)
	assert.Equal(t, models.StageFacePending, result.Stage)

	// A lapsed code from an earlier session is a mismatch, not the end of the new one.
	_, err = f.sessions.StopSession(ctx, session.ID, "T001")
	require.NoError(t, err)
	f.clock.Advance(11 * time.Minute)
	next := f.openSession(t, "T001", "Computer Networks")
	_, err = f.verify.VerifyQR(ctx, next.ID, dto.VerifyQRRequest{StudentID: "B", QRPayload: payload})
	requireCode(t, err, appErrors.ErrTokenMismatch)
}

func TestVerificationQRExpiredPayloadEndsOwnSession(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")

	expired, err := f.signer.Generate(session.ID, f.clock.Now().Add(-time.Second))
	require.NoError(t, err)
	_, err = f.verify.VerifyQR(ctx, session.ID, dto.VerifyQRRequest{StudentID: "A", QRPayload: expired})
	requireCode(t, err, appErrors.ErrSessionEnded)
}

func TestVerificationStageOrder(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")
	f.enroll(t, "A")

	_, err := f.verify.VerifyLocation(ctx, session.ID, "A", classroomCenter)
	requireCode(t, err, appErrors.ErrStageOrderViolation)
	assert.Equal(t, models.StageQRPending, appErrors.FromError(err).Details["current_stage"])

	_, err = f.verify.VerifyFace(ctx, session.ID, "A", testPNG(t))
	requireCode(t, err, appErrors.ErrStageOrderViolation)

	f.passToFace(t, session, "A")
	_, err = f.verify.VerifyFace(ctx, session.ID, "A", testPNG(t))
	require.NoError(t, err)

	_, err = f.verify.VerifyLocation(ctx, session.ID, "A", classroomCenter)
	requireCode(t, err, appErrors.ErrStageOrderViolation)
}

func TestVerificationGeofenceRejectsAndAllowsRetry(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")
	_, err := f.verify.VerifyQR(ctx, session.ID, dto.VerifyQRRequest{StudentID: "A", SubmittedSessionID: session.ID})
	require.NoError(t, err)

	_, err = f.verify.VerifyLocation(ctx, session.ID, "A", outsidePoint)
	requireCode(t, err, appErrors.ErrGeofenceViolation)
	distance, ok := appErrors.FromError(err).Details["distance_m"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 100, distance, 1)

	_, err = f.verify.VerifyLocation(ctx, session.ID, "A", models.GeoPoint{Latitude: 91, Longitude: 0})
	requireCode(t, err, appErrors.ErrValidation)

	stage, err := f.verify.CurrentStage(ctx, session.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, models.StageLocationPending, stage)

	result, err := f.verify.VerifyLocation(ctx, session.ID, "A", classroomCenter)
	require.NoError(t, err)
	assert.Equal(t, models.StageFacePending, result.Stage)
}

func TestVerificationFaceMismatchThenSuccess(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")
	f.enroll(t, "A")
	f.passToFace(t, session, "A")

	f.scorer.set(0.5, nil)
	_, err := f.verify.VerifyFace(ctx, session.ID, "A", testPNG(t))
	requireCode(t, err, appErrors.ErrFaceMismatch)
	assert.Equal(t, 0.5, appErrors.FromError(err).Details["score"])

	stage, err := f.verify.CurrentStage(ctx, session.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, models.StageFacePending, stage)

	f.scorer.set(0.80, nil)
	result, err := f.verify.VerifyFace(ctx, session.ID, "A", testPNG(t))
	require.NoError(t, err)
	assert.True(t, result.Created)
}

func TestVerificationFaceFailures(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")
	f.passToFace(t, session, "A")

	_, err := f.verify.VerifyFace(ctx, session.ID, "A", testPNG(t))
	requireCode(t, err, appErrors.ErrNoEnrolledTemplate)

	f.enroll(t, "A")
	f.scorer.set(0, face.ErrUndecodable)
	_, err = f.verify.VerifyFace(ctx, session.ID, "A", []byte("not an image"))
	requireCode(t, err, appErrors.ErrValidation)

	f.scorer.set(0, fmt.Errorf("%w: png: invalid format", face.ErrBadTemplate))
	_, err = f.verify.VerifyFace(ctx, session.ID, "A", testPNG(t))
	requireCode(t, err, appErrors.ErrTemplateStoreDown)
	assert.True(t, appErrors.FromError(err).Retryable)

	f.scorer.set(0, errors.New("connection refused"))
	_, err = f.verify.VerifyFace(ctx, session.ID, "A", testPNG(t))
	requireCode(t, err, appErrors.ErrFaceEngineDown)
	assert.True(t, appErrors.FromError(err).Retryable)

	_, err = f.verify.VerifyFace(ctx, session.ID, "A", nil)
	requireCode(t, err, appErrors.ErrValidation)

	count, err := f.ledgerRepo.CountBySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestVerificationAfterStopFails(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")
	f.enroll(t, "A")
	f.passToFace(t, session, "A")

	_, err := f.sessions.StopSession(ctx, session.ID, "T001")
	require.NoError(t, err)

	_, err = f.verify.VerifyFace(ctx, session.ID, "A", testPNG(t))
	requireCode(t, err, appErrors.ErrSessionEnded)

	_, err = f.verify.VerifyQR(ctx, session.ID, dto.VerifyQRRequest{StudentID: "B", SubmittedSessionID: session.ID})
	requireCode(t, err, appErrors.ErrSessionEnded)

	count, err := f.ledgerRepo.CountBySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestVerificationStopDuringScoringWritesNothing(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")
	f.enroll(t, "A")
	f.passToFace(t, session, "A")

	f.scorer.onScore = func() {
		_, err := f.sessions.StopSession(ctx, session.ID, "T001")
		assert.NoError(t, err)
	}
	_, err := f.verify.VerifyFace(ctx, session.ID, "A", testPNG(t))
	requireCode(t, err, appErrors.ErrSessionEnded)

	record, err := f.ledger.Find(ctx, session.ID, "A")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestVerificationFaceIsIdempotent(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	session := f.openSession(t, "T001", "Computer Networks")
	f.enroll(t, "A")
	f.passToFace(t, session, "A")

	first, err := f.verify.VerifyFace(ctx, session.ID, "A", testPNG(t))
	require.NoError(t, err)
	second, err := f.verify.VerifyFace(ctx, session.ID, "A", testPNG(t))
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Record.Timestamp, second.Record.Timestamp)
	assert.Equal(t, 1, f.scorer.calls)
}
