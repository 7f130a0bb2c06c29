// Package idempotency defines the key store that lets a mutating request be
// retried without being applied twice.
package idempotency

import (
	"context"
)

// Status represents the state of an idempotent request.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Replay is a cached HTTP response.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store manages idempotency keys.
//
// AcquireKey returns (nil, nil) when the caller now owns key, a Replay when
// the request already finished, and an apperror when key is in flight or was
// used for a different request.
type Store interface {
	AcquireKey(ctx context.Context, key, operation, requestHash string) (*Replay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	// ReleaseKey forgets a key whose request hit a server error, so it may be retried.
	ReleaseKey(ctx context.Context, key string) error
}

// NormalizeReplay fills defaults for records stored without status or type.
func NormalizeReplay(r *Replay) *Replay {
	if r.StatusCode == 0 {
		r.StatusCode = 200
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return r
}
