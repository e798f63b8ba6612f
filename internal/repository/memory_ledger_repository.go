package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/noah-isme/smart-attendance-api/internal/models"
)

type ledgerKey struct {
	sessionID string
	studentID string
}

// MemoryLedgerRepository is the in-process ledger. The mutex makes
// InsertIfAbsent atomic per (session, student).
type MemoryLedgerRepository struct {
	mu        sync.RWMutex
	records   map[ledgerKey]models.AttendanceRecord
	bySession map[string][]ledgerKey
}

// NewMemoryLedgerRepository constructs an empty ledger.
func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		records:   make(map[ledgerKey]models.AttendanceRecord),
		bySession: make(map[string][]ledgerKey),
	}
}

// InsertIfAbsent stores the record unless one already exists.
func (r *MemoryLedgerRepository) InsertIfAbsent(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	key := ledgerKey{sessionID: record.SessionID, studentID: record.StudentID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[key]; ok {
		return &existing, false, nil
	}
	r.records[key] = *record
	r.bySession[record.SessionID] = append(r.bySession[record.SessionID], key)
	stored := *record
	return &stored, true, nil
}

// Find returns the record or sql.ErrNoRows.
func (r *MemoryLedgerRepository) Find(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[ledgerKey{sessionID: sessionID, studentID: studentID}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &record, nil
}

// ListBySession returns records oldest first.
func (r *MemoryLedgerRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	r.mu.RLock()
	keys := r.bySession[sessionID]
	records := make([]models.AttendanceRecord, 0, len(keys))
	for _, key := range keys {
		records = append(records, r.records[key])
	}
	r.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].StudentID < records[j].StudentID
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

// CountBySession counts a session's records.
func (r *MemoryLedgerRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession[sessionID]), nil
}

// ListByStudent returns a student's records newest first.
func (r *MemoryLedgerRepository) ListByStudent(ctx context.Context, studentID string) ([]models.AttendanceRecord, error) {
	r.mu.RLock()
	records := make([]models.AttendanceRecord, 0)
	for key, record := range r.records {
		if key.studentID == studentID {
			records = append(records, record)
		}
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].SessionID < records[j].SessionID
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}
