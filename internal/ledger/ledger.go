// Package ledger keeps rolling per-model and per-strategy performance
// metrics. An update appends an outcome to a bounded history and refolds
// the EWMA over that history in timestamp order, so applying two outcomes
// in either order yields the same state. Reads hand out copies; the ledger
// only informs ranking heuristics, never correctness.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
)

// Config tunes the ledger's smoothing and history bounds.
type Config struct {
	// Alpha is the EWMA learning rate for latency and quality.
	Alpha float64 `yaml:"alpha"`
	// MaxOutcomes bounds outcome history per model and per strategy;
	// oldest entries drop first.
	MaxOutcomes int `yaml:"max_outcomes"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Alpha: 0.2, MaxOutcomes: 50}
}

// strategyStats is the per-strategy rolling record.
type strategyStats struct {
	outcomes    []models.Outcome
	latencyEWMA float64
	qualityEWMA float64
}

// Ledger is the rolling performance store.
type Ledger struct {
	mu         sync.RWMutex
	cfg        Config
	profiles   map[string]*models.ModelProfile
	strategies map[models.StrategyID]*strategyStats
}

// New creates a ledger with the given config.
func New(cfg Config) *Ledger {
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = DefaultConfig().Alpha
	}
	if cfg.MaxOutcomes <= 0 {
		cfg.MaxOutcomes = DefaultConfig().MaxOutcomes
	}
	return &Ledger{
		cfg:        cfg,
		profiles:   make(map[string]*models.ModelProfile),
		strategies: make(map[models.StrategyID]*strategyStats),
	}
}

// SeedProfile registers a model with static capability scores. Existing
// dynamic state is preserved when the model is already known.
func (l *Ledger) SeedProfile(modelID string, capabilities map[models.TaskCategory]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.profiles[modelID]; ok {
		p.Capabilities = cloneCaps(capabilities)
		return
	}
	l.profiles[modelID] = &models.ModelProfile{
		ModelID:      modelID,
		Capabilities: cloneCaps(capabilities),
		Reliability:  1.0,
		QualityEWMA:  0.5,
		UpdatedAt:    time.Now(),
	}
}

// RecordModelOutcome appends one call result to a model's history and
// refolds its rolling metrics. Unknown models are seeded on first use.
func (l *Ledger) RecordModelOutcome(modelID string, out models.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.profiles[modelID]
	if !ok {
		p = &models.ModelProfile{
			ModelID:      modelID,
			Capabilities: map[models.TaskCategory]float64{models.CategoryGeneral: 0.5},
			Reliability:  1.0,
			QualityEWMA:  0.5,
		}
		l.profiles[modelID] = p
	}

	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}
	p.Outcomes = appendBounded(p.Outcomes, out, l.cfg.MaxOutcomes)

	p.TotalCalls++
	if out.Success {
		p.Successes++
	}
	p.Reliability = float64(p.Successes) / float64(p.TotalCalls)
	p.LatencyEWMA, p.QualityEWMA = refold(p.Outcomes, l.cfg.Alpha)
	p.UpdatedAt = time.Now()
}

// RecordStrategyOutcome appends one strategy run to its history and
// refolds the rolling metrics.
func (l *Ledger) RecordStrategyOutcome(id models.StrategyID, out models.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.strategies[id]
	if !ok {
		s = &strategyStats{}
		l.strategies[id] = s
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}
	s.outcomes = appendBounded(s.outcomes, out, l.cfg.MaxOutcomes)
	s.latencyEWMA, s.qualityEWMA = refold(s.outcomes, l.cfg.Alpha)
}

// ResetProfile clears a model's dynamic metrics. Explicit operator action;
// the static capabilities survive.
func (l *Ledger) ResetProfile(modelID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.profiles[modelID]
	if !ok {
		return
	}
	p.LatencyEWMA = 0
	p.QualityEWMA = 0.5
	p.Reliability = 1.0
	p.TotalCalls = 0
	p.Successes = 0
	p.Outcomes = nil
	p.UpdatedAt = time.Now()
}

// Profile returns a copy of one model's profile.
func (l *Ledger) Profile(modelID string) (models.ModelProfile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[modelID]
	if !ok {
		return models.ModelProfile{}, false
	}
	return copyProfile(p), true
}

// Snapshot returns copies of all model profiles keyed by model ID.
func (l *Ledger) Snapshot() map[string]models.ModelProfile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := make(map[string]models.ModelProfile, len(l.profiles))
	for id, p := range l.profiles {
		snap[id] = copyProfile(p)
	}
	return snap
}

// StrategySuccessRate returns the historical success ratio for a strategy.
// Unused strategies report a neutral 0.5 so new strategies are not starved.
func (l *Ledger) StrategySuccessRate(id models.StrategyID) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.strategies[id]
	if !ok || len(s.outcomes) == 0 {
		return 0.5
	}
	succ := 0
	for _, o := range s.outcomes {
		if o.Success {
			succ++
		}
	}
	return float64(succ) / float64(len(s.outcomes))
}

// StrategyQuality returns the EWMA quality for a strategy.
func (l *Ledger) StrategyQuality(id models.StrategyID) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.strategies[id]
	if !ok || len(s.outcomes) == 0 {
		return 0.5
	}
	return s.qualityEWMA
}

// StrategyUses returns how many times a strategy has run.
func (l *Ledger) StrategyUses(id models.StrategyID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.strategies[id]
	if !ok {
		return 0
	}
	return len(s.outcomes)
}

// appendBounded inserts an outcome keeping the history sorted by timestamp
// and bounded, dropping the oldest entry on overflow.
func appendBounded(hist []models.Outcome, out models.Outcome, max int) []models.Outcome {
	hist = append(hist, out)
	sort.SliceStable(hist, func(i, j int) bool {
		return hist[i].Timestamp.Before(hist[j].Timestamp)
	})
	if len(hist) > max {
		hist = hist[len(hist)-max:]
	}
	return hist
}

// refold recomputes the latency and quality EWMA over a timestamp-ordered
// history. Folding from a fixed order is what makes updates commutative.
func refold(hist []models.Outcome, alpha float64) (latency, quality float64) {
	first := true
	for _, o := range hist {
		if !o.Success {
			continue
		}
		if first {
			latency = o.LatencyMS
			quality = o.Quality
			first = false
			continue
		}
		latency = alpha*o.LatencyMS + (1-alpha)*latency
		quality = alpha*o.Quality + (1-alpha)*quality
	}
	if first {
		quality = 0.5
	}
	return latency, quality
}

func cloneCaps(caps map[models.TaskCategory]float64) map[models.TaskCategory]float64 {
	out := make(map[models.TaskCategory]float64, len(caps))
	for k, v := range caps {
		out[k] = v
	}
	return out
}

func copyProfile(p *models.ModelProfile) models.ModelProfile {
	cp := *p
	cp.Capabilities = cloneCaps(p.Capabilities)
	cp.Outcomes = append([]models.Outcome(nil), p.Outcomes...)
	return cp
}
