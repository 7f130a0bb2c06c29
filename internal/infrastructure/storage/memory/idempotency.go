package memory

import (
	"context"
	"sync"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/idempotency"
)

type idempotencyRecord struct {
	operation   string
	requestHash string
	status      idempotency.Status
	replay      idempotency.Replay
	updatedAt   time.Time
	expiresAt   time.Time
}

// IdempotencyStore is an in-memory idempotency.Store.
type IdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*idempotencyRecord
	now     func() time.Time
}

// NewIdempotencyStore creates a store whose keys expire after ttl.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		ttl:     ttl,
		records: make(map[string]*idempotencyRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *IdempotencyStore) AcquireKey(_ context.Context, key, operation, requestHash string) (*idempotency.Replay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[key]
	if !ok || now.After(rec.expiresAt) {
		s.records[key] = &idempotencyRecord{
			operation:   operation,
			requestHash: requestHash,
			status:      idempotency.StatusPending,
			updatedAt:   now,
			expiresAt:   now.Add(s.ttl),
		}
		return nil, nil
	}

	if rec.operation != operation || rec.requestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", rec.operation).
			WithDetail("request_operation", operation)
	}

	switch rec.status {
	case idempotency.StatusSuccess, idempotency.StatusFailed:
		replay := rec.replay
		return idempotency.NormalizeReplay(&replay), nil
	default:
		// A pending key untouched for a minute belongs to a crashed request.
		if now.Sub(rec.updatedAt) > time.Minute {
			rec.updatedAt = now
			return nil, nil
		}
		return nil, apperror.NewIdempotencyConflict(key)
	}
}

func (s *IdempotencyStore) CompleteKey(_ context.Context, key string, statusCode int, contentType string, body []byte) error {
	s.finish(key, idempotency.StatusSuccess, statusCode, contentType, body)
	return nil
}

func (s *IdempotencyStore) FailKey(_ context.Context, key string, statusCode int, contentType string, body []byte) error {
	s.finish(key, idempotency.StatusFailed, statusCode, contentType, body)
	return nil
}

func (s *IdempotencyStore) ReleaseKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *IdempotencyStore) finish(key string, status idempotency.Status, statusCode int, contentType string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return
	}
	rec.status = status
	rec.replay = idempotency.Replay{
		StatusCode:  statusCode,
		ContentType: contentType,
		Body:        append([]byte(nil), body...),
	}
	rec.updatedAt = s.now()
}

// CleanupExpired drops expired keys and returns how many.
func (s *IdempotencyStore) CleanupExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for k, rec := range s.records {
		if now.After(rec.expiresAt) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}
