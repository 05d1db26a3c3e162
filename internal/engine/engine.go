// Package engine is the top-level orchestration service: it validates a
// request, analyzes it, plans execution, runs the plan, synthesizes the
// survivors into one answer, and feeds outcomes back into the performance
// ledger. Callers get exactly one of a response or a typed error.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omarpiose00/NeuronVault-sub003/internal/adapter"
	"github.com/omarpiose00/NeuronVault-sub003/internal/analyzer"
	"github.com/omarpiose00/NeuronVault-sub003/internal/cache"
	"github.com/omarpiose00/NeuronVault-sub003/internal/coordinator"
	"github.com/omarpiose00/NeuronVault-sub003/internal/events"
	"github.com/omarpiose00/NeuronVault-sub003/internal/ledger"
	"github.com/omarpiose00/NeuronVault-sub003/internal/meta"
	"github.com/omarpiose00/NeuronVault-sub003/internal/metrics"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
	"github.com/omarpiose00/NeuronVault-sub003/internal/selector"
	"github.com/omarpiose00/NeuronVault-sub003/internal/synthesis"
)

// Config tunes engine-level behavior.
type Config struct {
	// CacheEnabled toggles the response cache for identical requests.
	CacheEnabled bool `yaml:"cache_enabled"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{CacheEnabled: true}
}

// Deps collects the engine's collaborators, all injected.
type Deps struct {
	Analyzer    *analyzer.Analyzer
	Selector    *selector.Selector
	Coordinator *coordinator.Coordinator
	Synthesis   *synthesis.Engine
	Ledger      *ledger.Ledger
	Meta        *meta.Orchestrator
	Gateway     *events.Gateway
	Cache       *cache.ResponseCache
	Registry    *adapter.Registry
	Metrics     *metrics.Metrics
	Logger      *logrus.Logger
}

// Engine orchestrates requests end to end.
type Engine struct {
	cfg  Config
	deps Deps
}

// New creates an engine.
func New(cfg Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	return &Engine{cfg: cfg, deps: deps}
}

// Orchestrate runs one request through the full pipeline. Identical
// requests within the cache TTL are served from cache without any model
// call; concurrent identical misses compute once.
func (e *Engine) Orchestrate(ctx context.Context, req *models.Request) (*models.SynthesizedResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	normalize(req)

	if !e.cfg.CacheEnabled || e.deps.Cache == nil {
		return e.run(ctx, req)
	}

	key := cache.Key(req)
	if resp, ok := e.deps.Cache.Get(key); ok {
		e.deps.Metrics.ObserveCache(true)
		return resp, nil
	}
	e.deps.Metrics.ObserveCache(false)

	return e.deps.Cache.Do(key, func() (*models.SynthesizedResponse, error) {
		return e.run(ctx, req)
	})
}

// run is the uncached pipeline.
func (e *Engine) run(ctx context.Context, req *models.Request) (*models.SynthesizedResponse, error) {
	log := e.deps.Logger.WithFields(logrus.Fields{"request": req.ID, "session": req.SessionID})
	start := time.Now()

	analysis := e.deps.Analyzer.Analyze(req.Prompt, req.History)

	plan, err := e.deps.Selector.Plan(req, analysis)
	if err != nil {
		e.deps.Metrics.ObserveRequest("none", models.ErrorKind(err), time.Since(start))
		return nil, err
	}

	e.deps.Gateway.Publish(events.NewEvent(req.ID, events.EventStrategySelected, map[string]interface{}{
		"strategy":  plan.Strategy,
		"models":    plan.Models,
		"weights":   plan.Weights,
		"reasoning": plan.Reasoning,
	}))

	outcome, execErr := e.deps.Coordinator.Execute(ctx, req, plan)
	if outcome != nil {
		e.recordModelOutcomes(outcome.Results)
	}

	if execErr != nil {
		e.deps.Ledger.RecordStrategyOutcome(plan.Strategy, models.Outcome{
			Success:   false,
			LatencyMS: float64(time.Since(start).Milliseconds()),
		})
		e.deps.Gateway.Publish(events.NewEvent(req.ID, events.EventRequestFailed, map[string]interface{}{
			"kind":  models.ErrorKind(execErr),
			"error": execErr.Error(),
		}))
		e.deps.Gateway.Finish(req.ID)
		e.deps.Metrics.ObserveRequest(string(plan.Strategy), models.ErrorKind(execErr), time.Since(start))
		log.WithError(execErr).Warn("orchestration failed")
		return nil, execErr
	}

	// A stop acknowledged during execution suppresses synthesis entirely.
	if e.deps.Gateway.Stopped(req.ID) {
		e.deps.Gateway.Finish(req.ID)
		e.deps.Metrics.ObserveRequest(string(plan.Strategy), models.KindRequestStopped, time.Since(start))
		return nil, &models.RequestStoppedError{RequestID: req.ID}
	}

	resp := e.deps.Synthesis.Synthesize(ctx, synthesis.Input{
		Request:    req,
		Plan:       plan,
		Results:    outcome.Results,
		Consensus:  outcome.Consensus,
		SubResults: outcome.SubResults,
	})
	resp.Elapsed = time.Since(start)

	e.deps.Gateway.Publish(events.NewEvent(req.ID, events.EventSynthesizedResponse, resp))
	e.deps.Gateway.Finish(req.ID)

	e.deps.Ledger.RecordStrategyOutcome(plan.Strategy, models.Outcome{
		Success:   true,
		LatencyMS: float64(resp.Elapsed.Milliseconds()),
		Quality:   resp.Quality.Overall,
	})
	e.deps.Metrics.ObserveRequest(string(plan.Strategy), "ok", resp.Elapsed)
	e.deps.Metrics.ObserveQuality(resp.Quality.Overall)
	e.deps.Metrics.SetEventsDropped(e.deps.Gateway.Snapshot().Dropped)

	log.WithFields(logrus.Fields{
		"strategy": plan.Strategy,
		"quality":  resp.Quality.Overall,
		"elapsed":  resp.Elapsed,
	}).Info("request synthesized")
	return resp, nil
}

// Recommend returns the meta-orchestrator's explainable recommendation
// without executing anything.
func (e *Engine) Recommend(ctx context.Context, req *models.Request) (*models.Decision, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	normalize(req)
	return e.deps.Meta.Recommend(ctx, req)
}

// Stop aborts a running request. The returned error is the acknowledgment.
func (e *Engine) Stop(requestID string) error { return e.deps.Gateway.Stop(requestID) }

// Pause records the advisory paused state for a request.
func (e *Engine) Pause(requestID string) error { return e.deps.Gateway.Pause(requestID) }

// Resume clears the advisory paused state.
func (e *Engine) Resume(requestID string) error { return e.deps.Gateway.Resume(requestID) }

// Subscribe returns the event channel for one request.
func (e *Engine) Subscribe(requestID string) <-chan *events.Event {
	return e.deps.Gateway.Subscribe(requestID)
}

// Stats is a point-in-time operational snapshot.
type Stats struct {
	Models          map[string]models.ModelProfile          `json:"models"`
	Strategies      map[models.StrategyID]StrategyStats     `json:"strategies"`
	AvailableModels []string                                `json:"available_models"`
	Gateway         events.Metrics                          `json:"gateway"`
	Cache           cache.Metrics                           `json:"cache"`
	Patterns        []models.LearningPattern                `json:"patterns,omitempty"`
	Timestamp       time.Time                               `json:"timestamp"`
}

// StrategyStats summarizes one strategy's history.
type StrategyStats struct {
	Uses        int     `json:"uses"`
	SuccessRate float64 `json:"success_rate"`
	Quality     float64 `json:"quality"`
}

// Stats assembles the operational snapshot.
func (e *Engine) Stats() Stats {
	s := Stats{
		Models:          e.deps.Ledger.Snapshot(),
		Strategies:      make(map[models.StrategyID]StrategyStats, len(models.AllStrategies())),
		AvailableModels: e.deps.Registry.Available(),
		Gateway:         e.deps.Gateway.Snapshot(),
		Timestamp:       time.Now(),
	}
	for _, id := range models.AllStrategies() {
		s.Strategies[id] = StrategyStats{
			Uses:        e.deps.Ledger.StrategyUses(id),
			SuccessRate: e.deps.Ledger.StrategySuccessRate(id),
			Quality:     e.deps.Ledger.StrategyQuality(id),
		}
	}
	if e.deps.Cache != nil {
		s.Cache = e.deps.Cache.Snapshot()
	}
	if e.deps.Meta != nil {
		s.Patterns = e.deps.Meta.Patterns()
	}
	return s
}

// recordModelOutcomes feeds dispatched results into the ledger. Skipped
// stages never ran, so they carry no signal.
func (e *Engine) recordModelOutcomes(results []*models.ModelResult) {
	for _, r := range results {
		if r.Status == models.ResultSkipped || r.Status == models.ResultAbandoned {
			continue
		}
		e.deps.Ledger.RecordModelOutcome(r.ModelID, models.Outcome{
			Success:   r.Succeeded(),
			LatencyMS: float64(r.Elapsed.Milliseconds()),
			Quality:   r.Confidence,
		})
		e.deps.Metrics.ObserveModelCall(r.ModelID, string(r.Status), r.Elapsed)
	}
}

func validate(req *models.Request) error {
	if req == nil {
		return &models.ValidationError{Field: "request", Reason: "missing"}
	}
	if len(req.Prompt) == 0 {
		return &models.ValidationError{Field: "prompt", Reason: "must not be empty"}
	}
	if len(req.EnabledModelIDs()) == 0 {
		return &models.ValidationError{Field: "enabled_models", Reason: "at least one model must be enabled"}
	}
	return nil
}

func normalize(req *models.Request) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if req.Mode == "" {
		req.Mode = models.ModeDefault
	}
}
