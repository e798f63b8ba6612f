// Package face scores a probe image against an enrolled template.
//
// The scoring model is pluggable: LocalEngine compares normalised grayscale
// thumbnails, RemoteEngine delegates to a face recognition microservice.
// Scores are cosine-similarity-like values in [0, 1].
package face

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrUndecodable marks input that is not a supported image.
var ErrUndecodable = errors.New("image could not be decoded")

// ErrBadTemplate marks a stored template that cannot be used for comparison.
var ErrBadTemplate = errors.New("stored template is unusable")

// Engine computes the similarity between a probe image and an enrolled template.
type Engine interface {
	Similarity(ctx context.Context, probe, template []byte) (float64, error)
}

// Dispatcher bounds how many similarity computations run at once so slow
// scoring cannot starve the rest of the API.
type Dispatcher struct {
	engine  Engine
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewDispatcher wraps engine with a concurrency limit and a per-call timeout.
func NewDispatcher(engine Engine, maxConcurrent int, timeout time.Duration) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Dispatcher{engine: engine, sem: semaphore.NewWeighted(int64(maxConcurrent)), timeout: timeout}
}

type result struct {
	score float64
	err   error
}

// Similarity waits for a free slot, then scores on a separate goroutine. The
// slot is held until the engine returns even if the caller gives up first.
func (d *Dispatcher) Similarity(ctx context.Context, probe, template []byte) (float64, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("wait for face slot: %w", err)
	}

	done := make(chan result, 1)
	go func() {
		defer d.sem.Release(1)
		score, err := d.engine.Similarity(ctx, probe, template)
		done <- result{score: score, err: err}
	}()

	select {
	case r := <-done:
		return r.score, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("face similarity: %w", ctx.Err())
	}
}
