package adapter

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState represents the state of the availability breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"    // normal operation
	BreakerOpen     BreakerState = "open"      // failing, rejecting calls
	BreakerHalfOpen BreakerState = "half_open" // probing with limited calls
)

// ErrBreakerOpen is returned when the breaker rejects a call outright.
var ErrBreakerOpen = errors.New("adapter breaker is open")

// BreakerConfig configures the availability breaker.
type BreakerConfig struct {
	FailureThreshold    int           // consecutive failures to open
	SuccessThreshold    int           // successes in half-open to close
	OpenTimeout         time.Duration // how long to stay open before half-open
	HalfOpenMaxRequests int           // max concurrent probes in half-open
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// Breaker wraps a ModelAdapter with circuit-breaker availability tracking.
// Its Available probe answers from local state only, satisfying the
// cheap-probe requirement of the adapter contract.
type Breaker struct {
	mu       sync.Mutex
	inner    ModelAdapter
	cfg      BreakerConfig
	state    BreakerState
	failures int
	succs    int
	halfOpen int
	openedAt time.Time
}

// NewBreaker wraps adapter a with availability tracking.
func NewBreaker(a ModelAdapter, cfg BreakerConfig) *Breaker {
	return &Breaker{inner: a, cfg: cfg, state: BreakerClosed}
}

// ID implements ModelAdapter.
func (b *Breaker) ID() string { return b.inner.ID() }

// State returns the current breaker state, advancing open→half-open when
// the open timeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state
}

// Available implements ModelAdapter. Open means unavailable.
func (b *Breaker) Available() bool {
	return b.State() != BreakerOpen && b.inner.Available()
}

// Complete implements ModelAdapter, recording the outcome.
func (b *Breaker) Complete(ctx context.Context, prompt, sessionID string) (string, error) {
	if err := b.admit(); err != nil {
		return "", err
	}
	out, err := b.inner.Complete(ctx, prompt, sessionID)
	b.record(err == nil)
	return out, err
}

// CompleteStream implements ModelAdapter. The stream open counts as the
// admission; a stream error is recorded by the consumer via RecordFailure.
func (b *Breaker) CompleteStream(ctx context.Context, prompt, sessionID string) (*ChunkStream, error) {
	if err := b.admit(); err != nil {
		return nil, err
	}
	stream, err := b.inner.CompleteStream(ctx, prompt, sessionID)
	if err != nil {
		b.record(false)
		return nil, err
	}
	b.record(true)
	return stream, nil
}

// RecordFailure lets consumers report a failure discovered after admission,
// e.g. mid-stream transport errors.
func (b *Breaker) RecordFailure() { b.record(false) }

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()

	switch b.state {
	case BreakerOpen:
		return ErrBreakerOpen
	case BreakerHalfOpen:
		if b.halfOpen >= b.cfg.HalfOpenMaxRequests {
			return ErrBreakerOpen
		}
		b.halfOpen++
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failures = 0
		if b.state == BreakerHalfOpen {
			b.succs++
			if b.succs >= b.cfg.SuccessThreshold {
				b.transitionLocked(BreakerClosed)
			}
		}
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.transitionLocked(BreakerOpen)
	}
}

func (b *Breaker) advanceLocked() {
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cfg.OpenTimeout {
		b.transitionLocked(BreakerHalfOpen)
	}
}

func (b *Breaker) transitionLocked(next BreakerState) {
	b.state = next
	switch next {
	case BreakerOpen:
		b.openedAt = time.Now()
	case BreakerHalfOpen:
		b.halfOpen = 0
		b.succs = 0
	case BreakerClosed:
		b.failures = 0
		b.succs = 0
		b.halfOpen = 0
	}
}
