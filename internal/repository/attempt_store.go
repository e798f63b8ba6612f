package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/smart-attendance-api/internal/models"
)

// MemoryAttemptStore holds verification progress per session in process memory.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]models.VerificationAttempt
}

// NewMemoryAttemptStore constructs an empty store.
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{sessions: make(map[string]map[string]models.VerificationAttempt)}
}

// Get returns the attempt or nil when the student has not started.
func (s *MemoryAttemptStore) Get(ctx context.Context, sessionID, studentID string) (*models.VerificationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.sessions[sessionID][studentID]
	if !ok {
		return nil, nil
	}
	return &attempt, nil
}

// Save stores the attempt. ttl is ignored; attempts die with DeleteSession.
func (s *MemoryAttemptStore) Save(ctx context.Context, attempt *models.VerificationAttempt, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.sessions[attempt.SessionID]
	if !ok {
		bucket = make(map[string]models.VerificationAttempt)
		s.sessions[attempt.SessionID] = bucket
	}
	bucket[attempt.StudentID] = *attempt
	return nil
}

// DeleteSession drops every attempt of the session.
func (s *MemoryAttemptStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// RedisAttemptStore shares verification progress between API replicas using
// one hash per session.
type RedisAttemptStore struct {
	client *redis.Client
	prefix string
}

// NewRedisAttemptStore constructs the store.
func NewRedisAttemptStore(client *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{client: client, prefix: "attendance:attempts:"}
}

func (s *RedisAttemptStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Get returns the attempt or nil when absent.
func (s *RedisAttemptStore) Get(ctx context.Context, sessionID, studentID string) (*models.VerificationAttempt, error) {
	raw, err := s.client.HGet(ctx, s.key(sessionID), studentID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis hget attempt: %w", err)
	}
	var attempt models.VerificationAttempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return nil, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return &attempt, nil
}

// Save writes the attempt and refreshes the hash expiry to ttl.
func (s *RedisAttemptStore) Save(ctx context.Context, attempt *models.VerificationAttempt, ttl time.Duration) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	key := s.key(attempt.SessionID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, attempt.StudentID, payload)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save attempt: %w", err)
	}
	return nil
}

// DeleteSession drops the session hash.
func (s *RedisAttemptStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete attempts: %w", err)
	}
	return nil
}
