// Package meta wraps analysis and selection into explainable, cacheable,
// persisted recommendations. Every decision carries its reasoning trail
// and a confidence gate; learned per-category patterns can override the
// rule-based defaults once enough samples accumulate.
package meta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omarpiose00/NeuronVault-sub003/internal/adapter"
	"github.com/omarpiose00/NeuronVault-sub003/internal/ledger"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
	"github.com/omarpiose00/NeuronVault-sub003/internal/selector"
	"github.com/omarpiose00/NeuronVault-sub003/internal/storage"
)

// Analyzer is the analysis dependency. The production analyzer never
// fails; the interface exists so unreachability degrades instead of
// surfacing.
type Analyzer interface {
	Analyze(prompt string, history []string) (models.ContextAnalysis, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(prompt string, history []string) (models.ContextAnalysis, error)

// Analyze implements Analyzer.
func (f AnalyzerFunc) Analyze(prompt string, history []string) (models.ContextAnalysis, error) {
	return f(prompt, history)
}

// Config tunes the meta-orchestrator.
type Config struct {
	// AutoApplyThreshold gates auto_apply on decision confidence.
	AutoApplyThreshold float64 `yaml:"auto_apply_threshold"`
	// MaxDecisions bounds the in-memory decision log.
	MaxDecisions int `yaml:"max_decisions"`
	// CacheSize bounds the identical-prompt decision cache (FIFO evicted).
	CacheSize int `yaml:"cache_size"`
	// PatternMinSamples is how many decisions a category needs before its
	// learned pattern may override defaults.
	PatternMinSamples int `yaml:"pattern_min_samples"`
	// ExpertPenalty is subtracted from confidence for expert-mode tasks.
	ExpertPenalty float64 `yaml:"expert_penalty"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AutoApplyThreshold: 0.8,
		MaxDecisions:       500,
		CacheSize:          128,
		PatternMinSamples:  5,
		ExpertPenalty:      0.1,
	}
}

// Orchestrator produces recommendations.
type Orchestrator struct {
	mu        sync.Mutex
	cfg       Config
	analyzer  Analyzer
	selector  *selector.Selector
	registry  *adapter.Registry
	ledger    *ledger.Ledger
	store     storage.Store
	logger    *logrus.Logger
	decisions []*models.Decision
	patterns  map[models.TaskCategory]*models.LearningPattern
	cache     map[string]*models.Decision
	cacheFIFO []string
}

// New creates a meta-orchestrator. Persisted patterns are loaded eagerly;
// a missing or corrupt store is treated as empty state.
func New(cfg Config, an Analyzer, sel *selector.Selector, reg *adapter.Registry, led *ledger.Ledger, store storage.Store, logger *logrus.Logger) *Orchestrator {
	if cfg.AutoApplyThreshold == 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	o := &Orchestrator{
		cfg:      cfg,
		analyzer: an,
		selector: sel,
		registry: reg,
		ledger:   led,
		store:    store,
		logger:   logger,
		patterns: make(map[models.TaskCategory]*models.LearningPattern),
		cache:    make(map[string]*models.Decision),
	}
	o.loadPatterns()
	return o
}

// Recommend produces one explainable recommendation for the request.
// Identical prompts within the cache window return the cached decision.
func (o *Orchestrator) Recommend(ctx context.Context, req *models.Request) (*models.Decision, error) {
	fp := fingerprint(req)

	o.mu.Lock()
	if cached, ok := o.cache[fp]; ok {
		o.mu.Unlock()
		return cached, nil
	}
	o.mu.Unlock()

	tree := []string{"analyzing prompt"}
	analysis, degraded := o.analyze(req)
	if degraded {
		tree = append(tree, "analyzer unreachable: rule-based fallback, confidence scaled by 0.8")
	}
	tree = append(tree, fmt.Sprintf("category=%s complexity=%s", analysis.Category, analysis.Complexity))

	plan, err := o.selector.Plan(req, analysis)
	if err != nil {
		return nil, err
	}
	tree = append(tree, fmt.Sprintf("strategy=%s models=%v", plan.Strategy, plan.Models))

	confidence := o.confidence(req, analysis, plan)
	if degraded {
		confidence *= 0.8
	}

	strategy := plan.Strategy
	if pat, ok := o.pattern(analysis.Category); ok && pat.Samples >= o.cfg.PatternMinSamples {
		if pat.AvgConfidence > confidence && pat.BestStrategy != "" {
			strategy = pat.BestStrategy
			tree = append(tree, fmt.Sprintf("learned pattern for %s overrides strategy to %s (%d samples)",
				analysis.Category, strategy, pat.Samples))
		}
	}

	decision := &models.Decision{
		ID:          uuid.New().String(),
		Fingerprint: fp,
		Analysis:    analysis,
		Strategy:    strategy,
		Models:      plan.Models,
		Weights:     plan.Weights,
		Confidence:  confidence,
		AutoApply:   confidence >= o.cfg.AutoApplyThreshold,
		Reasoning:   plan.Reasoning,
		Tree:        tree,
		Timestamp:   time.Now(),
	}

	o.record(ctx, decision)
	return decision, nil
}

// analyze runs the analyzer, downgrading unreachability to the rule-based
// fallback. Never raises.
func (o *Orchestrator) analyze(req *models.Request) (models.ContextAnalysis, bool) {
	analysis, err := o.analyzer.Analyze(req.Prompt, req.History)
	if err == nil {
		return analysis, false
	}

	o.logger.WithError(&models.AnalyzerUnavailableError{Cause: err}).Warn("falling back to rule-based analysis")
	return fallbackAnalysis(req.Prompt), true
}

// fallbackAnalysis is the rule-based degradation: length-only complexity,
// general category.
func fallbackAnalysis(prompt string) models.ContextAnalysis {
	complexity := models.ComplexityLow
	score := 0.3
	if len(prompt) > 300 {
		complexity, score = models.ComplexityHigh, 0.7
	} else if len(prompt) > 80 {
		complexity, score = models.ComplexityMedium, 0.5
	}
	return models.ContextAnalysis{
		Category:        models.CategoryGeneral,
		Complexity:      complexity,
		ComplexityScore: score,
		Confidence:      0.5,
	}
}

// confidence blends the selection score, the fraction of recommended
// models actually available, and the strategy's historical success rate,
// minus a penalty for expert-grade work.
func (o *Orchestrator) confidence(req *models.Request, analysis models.ContextAnalysis, plan *models.ExecutionPlan) float64 {
	scores := o.selector.ScoreStrategies(analysis)
	selection := scores[plan.Strategy]

	available := o.registry.Available()
	availSet := make(map[string]struct{}, len(available))
	for _, id := range available {
		availSet[id] = struct{}{}
	}
	hit := 0
	for _, id := range plan.Models {
		if _, ok := availSet[id]; ok {
			hit++
		}
	}
	availFrac := 0.0
	if len(plan.Models) > 0 {
		availFrac = float64(hit) / float64(len(plan.Models))
	}

	conf := 0.5*selection + 0.2*availFrac + 0.3*o.ledger.StrategySuccessRate(plan.Strategy)

	if req.Mode == models.ModeExpert || (analysis.Complexity == models.ComplexityHigh && analysis.DeepReasoning) {
		conf -= o.cfg.ExpertPenalty
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

// record appends the decision to the bounded log, caches it, persists it,
// and folds it into the category's learning pattern.
func (o *Orchestrator) record(ctx context.Context, d *models.Decision) {
	o.mu.Lock()
	o.decisions = append(o.decisions, d)
	if len(o.decisions) > o.cfg.MaxDecisions {
		o.decisions = o.decisions[len(o.decisions)-o.cfg.MaxDecisions:]
	}

	if _, ok := o.cache[d.Fingerprint]; !ok {
		for len(o.cacheFIFO) >= o.cfg.CacheSize {
			oldest := o.cacheFIFO[0]
			o.cacheFIFO = o.cacheFIFO[1:]
			delete(o.cache, oldest)
		}
		o.cache[d.Fingerprint] = d
		o.cacheFIFO = append(o.cacheFIFO, d.Fingerprint)
	}

	pat := o.foldPatternLocked(d)
	o.mu.Unlock()

	o.persist(ctx, d, pat)
}

// foldPatternLocked updates the per-category aggregate.
func (o *Orchestrator) foldPatternLocked(d *models.Decision) *models.LearningPattern {
	cat := d.Analysis.Category
	pat, ok := o.patterns[cat]
	if !ok {
		pat = &models.LearningPattern{Category: cat, ModelWeights: make(map[string]float64)}
		o.patterns[cat] = pat
	}

	n := float64(pat.Samples)
	pat.Samples++
	pat.AvgConfidence = (pat.AvgConfidence*n + d.Confidence) / float64(pat.Samples)
	// Best strategy follows the highest-confidence decision seen so far.
	if pat.BestStrategy == "" || d.Confidence >= pat.AvgConfidence {
		pat.BestStrategy = d.Strategy
	}
	for id, w := range d.Weights {
		pat.ModelWeights[id] = (pat.ModelWeights[id]*n + w) / float64(pat.Samples)
	}
	pat.UpdatedAt = time.Now()

	cp := *pat
	cp.ModelWeights = make(map[string]float64, len(pat.ModelWeights))
	for k, v := range pat.ModelWeights {
		cp.ModelWeights[k] = v
	}
	return &cp
}

func (o *Orchestrator) persist(ctx context.Context, d *models.Decision, pat *models.LearningPattern) {
	if o.store == nil {
		return
	}
	if data, err := json.Marshal(d); err == nil {
		if err := o.store.Set(ctx, "decision:"+d.ID, data); err != nil {
			o.logger.WithError(err).Warn("decision persist failed")
		}
	}
	if pat != nil {
		if data, err := json.Marshal(pat); err == nil {
			if err := o.store.Set(ctx, "pattern:"+string(pat.Category), data); err != nil {
				o.logger.WithError(err).Warn("pattern persist failed")
			}
		}
	}
}

// loadPatterns restores per-category aggregates. Corrupt entries are
// skipped: absence of state is never fatal.
func (o *Orchestrator) loadPatterns() {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := o.store.ListPrefix(ctx, "pattern:")
	if err != nil {
		o.logger.WithError(err).Warn("pattern load failed, starting empty")
		return
	}
	for key, data := range entries {
		var pat models.LearningPattern
		if err := json.Unmarshal(data, &pat); err != nil {
			o.logger.WithField("key", key).Warn("corrupt pattern skipped")
			continue
		}
		o.patterns[pat.Category] = &pat
	}
}

func (o *Orchestrator) pattern(cat models.TaskCategory) (*models.LearningPattern, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	pat, ok := o.patterns[cat]
	if !ok {
		return nil, false
	}
	cp := *pat
	return &cp, true
}

// Decisions returns a copy of the in-memory decision log, newest last.
func (o *Orchestrator) Decisions() []*models.Decision {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*models.Decision(nil), o.decisions...)
}

// Patterns returns copies of all learned patterns sorted by category.
func (o *Orchestrator) Patterns() []models.LearningPattern {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.LearningPattern, 0, len(o.patterns))
	for _, p := range o.patterns {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// fingerprint hashes the prompt and enabled model set.
func fingerprint(req *models.Request) string {
	enabled := req.EnabledModelIDs()
	sort.Strings(enabled)
	h := sha256.New()
	h.Write([]byte(req.Prompt))
	for _, id := range enabled {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
