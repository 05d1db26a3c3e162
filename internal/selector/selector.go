// Package selector turns a context analysis plus ledger state into an
// execution plan: which strategy to run, which models to fan out to, and
// how to weight their contributions. Selection is deterministic for a
// fixed (analysis, ledger, profiles) input.
package selector

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omarpiose00/NeuronVault-sub003/internal/ledger"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
)

// Config tunes selection behavior.
type Config struct {
	// RuleWeight blends the rule-table score against ledger history.
	RuleWeight float64 `yaml:"rule_weight"`
	// InclusionThreshold keeps adding models beyond the floor while their
	// score exceeds this value.
	InclusionThreshold float64 `yaml:"inclusion_threshold"`
	// TimeoutBudget is the hard wall-clock budget per plan.
	TimeoutBudget time.Duration `yaml:"timeout_budget"`
	// PerCallTimeout bounds each individual model call.
	PerCallTimeout time.Duration `yaml:"per_call_timeout"`
	// EarlyCompletion is the racing completion fraction.
	EarlyCompletion float64 `yaml:"early_completion"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RuleWeight:         0.8,
		InclusionThreshold: 0.7,
		TimeoutBudget:      2 * time.Minute,
		PerCallTimeout:     30 * time.Second,
		EarlyCompletion:    0.8,
	}
}

// Selector builds execution plans.
type Selector struct {
	cfg    Config
	ledger *ledger.Ledger
	logger *logrus.Logger
}

// New creates a selector reading from the given ledger.
func New(cfg Config, led *ledger.Ledger, logger *logrus.Logger) *Selector {
	if cfg.RuleWeight == 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Selector{cfg: cfg, ledger: led, logger: logger}
}

// Plan selects a strategy, model subset and weight map for the request.
// Returns NoAvailableModelsError when no model is enabled.
func (s *Selector) Plan(req *models.Request, analysis models.ContextAnalysis) (*models.ExecutionPlan, error) {
	enabled := req.EnabledModelIDs()
	sort.Strings(enabled)
	if len(enabled) == 0 {
		return nil, &models.NoAvailableModelsError{RequestID: req.ID}
	}

	strategy, reasoning := s.pickStrategy(req, analysis)
	ranked := s.rankModels(enabled, analysis)
	chosen := s.selectTopK(ranked, req.Mode)
	weights := s.weigh(chosen, req.WeightOverrides)

	modelIDs := make([]string, len(chosen))
	for i, m := range chosen {
		modelIDs[i] = m.id
	}

	plan := &models.ExecutionPlan{
		RequestID:       req.ID,
		Strategy:        strategy,
		Models:          modelIDs,
		Weights:         weights,
		TimeoutBudget:   s.cfg.TimeoutBudget,
		PerCallTimeout:  s.cfg.PerCallTimeout,
		EarlyCompletion: s.cfg.EarlyCompletion,
		Reasoning:       reasoning,
	}

	s.logger.WithFields(logrus.Fields{
		"request":  req.ID,
		"strategy": strategy,
		"models":   modelIDs,
	}).Info("execution plan built")

	return plan, nil
}

// ScoreStrategies exposes the blended per-strategy scores for the given
// analysis; the meta-orchestrator reuses these for its confidence blend.
func (s *Selector) ScoreStrategies(analysis models.ContextAnalysis) map[models.StrategyID]float64 {
	scores := make(map[models.StrategyID]float64, len(models.AllStrategies()))
	for _, id := range models.AllStrategies() {
		rule := ruleScore(id, analysis)
		hist := s.ledger.StrategySuccessRate(id)
		scores[id] = s.cfg.RuleWeight*rule + (1-s.cfg.RuleWeight)*hist
	}
	return scores
}

func (s *Selector) pickStrategy(req *models.Request, analysis models.ContextAnalysis) (models.StrategyID, string) {
	if req.StrategyOverride != "" {
		return req.StrategyOverride, "caller override"
	}

	scores := s.ScoreStrategies(analysis)
	best := models.AllStrategies()[0]
	bestScore := math.Inf(-1)
	// Stable iteration order keeps selection deterministic.
	for _, id := range models.AllStrategies() {
		if scores[id] > bestScore {
			best, bestScore = id, scores[id]
		}
	}

	return best, describeChoice(best, analysis)
}

// ruleScore is the static rule table keyed on the analysis feature vector.
func ruleScore(id models.StrategyID, a models.ContextAnalysis) float64 {
	var score float64
	switch id {
	case models.StrategyRacing:
		score = 0.45
		score += 0.4 * a.Urgency
		if a.Complexity == models.ComplexityLow {
			score += 0.2
		}
		if a.MultiPerspective {
			score -= 0.3
		}
		if a.Complexity == models.ComplexityHigh {
			score -= 0.15
		}
	case models.StrategyConsensus:
		score = 0.4
		if a.MultiPerspective {
			score += 0.35
		}
		if a.Category == models.CategoryAnalysis || a.Category == models.CategoryReasoning {
			score += 0.15
		}
		if a.Complexity == models.ComplexityHigh {
			score += 0.1
		}
		score -= 0.2 * a.Urgency
	case models.StrategyCascading:
		score = 0.3
		if a.DeepReasoning {
			score += 0.3
		}
		if a.Complexity == models.ComplexityHigh {
			score += 0.15
		}
		if a.Category == models.CategoryMath || a.Category == models.CategoryCoding {
			score += 0.1
		}
		score -= 0.3 * a.Urgency
	case models.StrategyDiversity:
		score = 0.3
		if a.NeedsCreativity {
			score += 0.35
		}
		if a.MultiPerspective {
			score += 0.2
		}
		if a.Category == models.CategoryCreative {
			score += 0.1
		}
	case models.StrategyHybrid:
		score = 0.3
		if a.Complexity == models.ComplexityHigh && a.MultiPerspective {
			score += 0.35
		}
		if a.NeedsSynthesis {
			score += 0.15
		}
		score -= 0.25 * a.Urgency
	case models.StrategySequential:
		score = 0.25
		if a.Complexity == models.ComplexityLow && a.Category == models.CategoryConversation {
			score += 0.2
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func describeChoice(id models.StrategyID, a models.ContextAnalysis) string {
	switch id {
	case models.StrategyRacing:
		return "fastest acceptable answer wins; urgency outweighs breadth"
	case models.StrategyConsensus:
		return "multiple viewpoints requested; agreement across models matters"
	case models.StrategyCascading:
		return "deep reasoning benefits from staged refinement"
	case models.StrategyDiversity:
		return "creative spread across perspective variants"
	case models.StrategyHybrid:
		return "high complexity with multiple perspectives; combining disciplines"
	default:
		return "simple sequential execution fits a " + string(a.Complexity) + " prompt"
	}
}

type scoredModel struct {
	id      string
	score   float64
	latency float64
}

// rankModels blends static per-category capability (dominant) with
// reliability×quality (secondary), tie-breaking on lower latency.
func (s *Selector) rankModels(enabled []string, analysis models.ContextAnalysis) []scoredModel {
	snap := s.ledger.Snapshot()
	ranked := make([]scoredModel, 0, len(enabled))

	for _, id := range enabled {
		p, ok := snap[id]
		if !ok {
			// Never seen by the ledger: neutral dynamic metrics.
			p = models.ModelProfile{
				ModelID:      id,
				Capabilities: map[models.TaskCategory]float64{models.CategoryGeneral: 0.5},
				Reliability:  1.0,
				QualityEWMA:  0.5,
			}
		}
		score := 0.7*p.Capability(analysis.Category) + 0.3*(p.Reliability*p.QualityEWMA)
		ranked = append(ranked, scoredModel{id: id, score: score, latency: p.LatencyEWMA})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].latency != ranked[j].latency {
			return ranked[i].latency < ranked[j].latency
		}
		return ranked[i].id < ranked[j].id
	})
	return ranked
}

// selectTopK picks K models by mode (2 simple, 3 default, 4 expert),
// always keeping the top two scorers when available and only extending
// past the floor while the candidate scores above the inclusion threshold.
func (s *Selector) selectTopK(ranked []scoredModel, mode models.Mode) []scoredModel {
	k := 3
	switch mode {
	case models.ModeSimple:
		k = 2
	case models.ModeExpert:
		k = 4
	}
	if k > len(ranked) {
		k = len(ranked)
	}

	floor := 2
	if floor > len(ranked) {
		floor = len(ranked)
	}

	chosen := ranked[:floor]
	for i := floor; i < k; i++ {
		if ranked[i].score <= s.cfg.InclusionThreshold {
			break
		}
		chosen = ranked[:i+1]
	}
	return chosen
}

// weigh normalizes scores to a weight map summing to 1.0, honoring caller
// overrides for models present in the selection.
func (s *Selector) weigh(chosen []scoredModel, overrides map[string]float64) map[string]float64 {
	weights := make(map[string]float64, len(chosen))

	var total float64
	for _, m := range chosen {
		w := m.score
		if ov, ok := overrides[m.id]; ok && ov > 0 {
			w = ov
		}
		weights[m.id] = w
		total += w
	}

	if total <= 0 {
		// Degenerate scores: split evenly.
		even := 1.0 / float64(len(chosen))
		for _, m := range chosen {
			weights[m.id] = even
		}
		return weights
	}

	for id, w := range weights {
		weights[id] = w / total
	}
	return weights
}
