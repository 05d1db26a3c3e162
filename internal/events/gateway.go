// Package events is the gateway between the engine and its consumers:
// it publishes per-request progress, result and error events, and accepts
// stop/pause/resume commands with synchronous acknowledgment. Every
// subscription is scoped to one request and torn down when that request
// reaches a terminal state.
package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a gateway event.
type EventType string

const (
	EventStrategySelected    EventType = "strategy_selected"
	EventModelChunk          EventType = "model_chunk"
	EventModelCompleted      EventType = "model_completed"
	EventModelFailed         EventType = "model_failed"
	EventStageStarted        EventType = "stage_started"
	EventStageCompleted      EventType = "stage_completed"
	EventSynthesisFallback   EventType = "synthesis_fallback"
	EventSynthesizedResponse EventType = "synthesized_response"
	EventRequestStopped      EventType = "request_stopped"
	EventRequestPaused       EventType = "request_paused"
	EventRequestResumed      EventType = "request_resumed"
	EventRequestFailed       EventType = "request_failed"
	EventStatsSnapshot       EventType = "stats_snapshot"
)

// Event is one gateway event. Within a request, events are published in
// production order; no ordering holds across requests.
type Event struct {
	ID        string      `json:"id"`
	RequestID string      `json:"request_id"`
	ModelID   string      `json:"model_id,omitempty"`
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent builds an event for a request.
func NewEvent(requestID string, t EventType, payload interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		RequestID: requestID,
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// WithModel tags the event with a model ID and returns it.
func (e *Event) WithModel(modelID string) *Event {
	e.ModelID = modelID
	return e
}

// ErrUnknownRequest is the ack for a command naming a request the gateway
// is not tracking.
var ErrUnknownRequest = errors.New("unknown request")

// ErrAlreadyStopped is the ack for stopping a request twice.
var ErrAlreadyStopped = errors.New("request already stopped")

// Config tunes gateway delivery.
type Config struct {
	// BufferSize is the per-subscriber channel buffer.
	BufferSize int `yaml:"buffer_size"`
	// PublishTimeout bounds the wait on a slow subscriber before dropping.
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{BufferSize: 256, PublishTimeout: 10 * time.Millisecond}
}

// Metrics tracks gateway delivery statistics.
type Metrics struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

type subscriber struct {
	ch     chan *Event
	closed bool
	mu     sync.Mutex
}

func (s *subscriber) trySend(e *Event, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.ch <- e:
		return true
	case <-timer.C:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// requestHub is the per-request control block.
type requestHub struct {
	subs    []*subscriber
	cancel  func()
	paused  bool
	stopped bool
}

// Gateway publishes events and accepts commands.
type Gateway struct {
	mu       sync.RWMutex
	cfg      Config
	hubs     map[string]*requestHub
	metrics  Metrics
	closed   bool
}

// NewGateway creates a gateway.
func NewGateway(cfg Config) *Gateway {
	if cfg.BufferSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Gateway{cfg: cfg, hubs: make(map[string]*requestHub)}
}

// Track registers a request with its unit-cancel function. Commands for
// untracked requests are rejected.
func (g *Gateway) Track(requestID string, cancel func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if hub, ok := g.hubs[requestID]; ok {
		hub.cancel = cancel
		return
	}
	g.hubs[requestID] = &requestHub{cancel: cancel}
}

// Subscribe returns a channel of events for one request. The channel is
// closed when the request reaches a terminal state.
func (g *Gateway) Subscribe(requestID string) <-chan *Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		ch := make(chan *Event)
		close(ch)
		return ch
	}

	hub, ok := g.hubs[requestID]
	if !ok {
		hub = &requestHub{}
		g.hubs[requestID] = hub
	}
	sub := &subscriber{ch: make(chan *Event, g.cfg.BufferSize)}
	hub.subs = append(hub.subs, sub)
	return sub.ch
}

// Publish delivers an event to the subscribers of its request. Slow
// subscribers drop events rather than blocking the engine.
func (g *Gateway) Publish(e *Event) {
	if e == nil {
		return
	}

	g.mu.RLock()
	hub, ok := g.hubs[e.RequestID]
	var subs []*subscriber
	if ok {
		subs = append(subs, hub.subs...)
	}
	g.mu.RUnlock()

	atomic.AddInt64(&g.metrics.Published, 1)
	for _, sub := range subs {
		if sub.trySend(e, g.cfg.PublishTimeout) {
			atomic.AddInt64(&g.metrics.Delivered, 1)
		} else {
			atomic.AddInt64(&g.metrics.Dropped, 1)
		}
	}
}

// Stop aborts all in-flight work for a request. The returned error is the
// synchronous acknowledgment: nil means the stop was applied.
func (g *Gateway) Stop(requestID string) error {
	g.mu.Lock()
	hub, ok := g.hubs[requestID]
	if !ok {
		g.mu.Unlock()
		return ErrUnknownRequest
	}
	if hub.stopped {
		g.mu.Unlock()
		return ErrAlreadyStopped
	}
	hub.stopped = true
	cancel := hub.cancel
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.Publish(NewEvent(requestID, EventRequestStopped, nil))
	return nil
}

// Pause records the advisory paused state. In-flight calls are not
// interrupted.
func (g *Gateway) Pause(requestID string) error {
	return g.setPaused(requestID, true, EventRequestPaused)
}

// Resume clears the advisory paused state.
func (g *Gateway) Resume(requestID string) error {
	return g.setPaused(requestID, false, EventRequestResumed)
}

func (g *Gateway) setPaused(requestID string, paused bool, t EventType) error {
	g.mu.Lock()
	hub, ok := g.hubs[requestID]
	if !ok {
		g.mu.Unlock()
		return ErrUnknownRequest
	}
	hub.paused = paused
	g.mu.Unlock()

	g.Publish(NewEvent(requestID, t, nil))
	return nil
}

// Paused reports the advisory paused state.
func (g *Gateway) Paused(requestID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	hub, ok := g.hubs[requestID]
	return ok && hub.paused
}

// Stopped reports whether Stop was acknowledged for the request.
func (g *Gateway) Stopped(requestID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	hub, ok := g.hubs[requestID]
	return ok && hub.stopped
}

// Finish tears down a request: subscribers are closed and the control
// block is dropped. Called once the request reaches a terminal state,
// after the final event has been published.
func (g *Gateway) Finish(requestID string) {
	g.mu.Lock()
	hub, ok := g.hubs[requestID]
	if ok {
		delete(g.hubs, requestID)
	}
	g.mu.Unlock()

	if !ok {
		return
	}
	for _, sub := range hub.subs {
		sub.close()
	}
}

// Snapshot returns current delivery metrics.
func (g *Gateway) Snapshot() Metrics {
	return Metrics{
		Published: atomic.LoadInt64(&g.metrics.Published),
		Delivered: atomic.LoadInt64(&g.metrics.Delivered),
		Dropped:   atomic.LoadInt64(&g.metrics.Dropped),
	}
}

// Close tears down every tracked request.
func (g *Gateway) Close() {
	g.mu.Lock()
	hubs := g.hubs
	g.hubs = make(map[string]*requestHub)
	g.closed = true
	g.mu.Unlock()

	for _, hub := range hubs {
		for _, sub := range hub.subs {
			sub.close()
		}
	}
}
