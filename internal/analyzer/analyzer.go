// Package analyzer classifies a prompt into the feature vector that gates
// strategy selection. It is pure keyword/pattern heuristics over the
// prompt text: no network, no model calls, cheap enough to run on every
// request.
package analyzer

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
)

// Config tunes the analyzer's scoring thresholds.
type Config struct {
	// HighComplexity is the score at or above which a prompt is "high".
	HighComplexity float64 `yaml:"high_complexity"`
	// MediumComplexity is the score at or above which a prompt is "medium".
	MediumComplexity float64 `yaml:"medium_complexity"`
	// KeywordBoost is added to the complexity score per matched pattern.
	KeywordBoost float64 `yaml:"keyword_boost"`
	// HistoryConfidenceCap bounds the history-based confidence multiplier.
	HistoryConfidenceCap float64 `yaml:"history_confidence_cap"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HighComplexity:       0.65,
		MediumComplexity:     0.4,
		KeywordBoost:         0.15,
		HistoryConfidenceCap: 1.3,
	}
}

// Analyzer derives a ContextAnalysis from a prompt.
type Analyzer struct {
	cfg    Config
	logger *logrus.Logger
}

// New creates an analyzer.
func New(cfg Config, logger *logrus.Logger) *Analyzer {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.HighComplexity == 0 {
		cfg = DefaultConfig()
	}
	return &Analyzer{cfg: cfg, logger: logger}
}

var categoryKeywords = map[models.TaskCategory][]string{
	models.CategoryReasoning: {
		"why", "reason", "logic", "deduce", "infer", "prove", "argument",
		"determinism", "free will", "philosophy", "ethical", "implication",
	},
	models.CategoryCreative: {
		"write a story", "poem", "creative", "imagine", "fiction", "brainstorm",
		"invent", "lyrics", "metaphor",
	},
	models.CategoryCoding: {
		"code", "function", "bug", "compile", "refactor", "api", "golang",
		"python", "javascript", "stack trace", "implement", "unit test",
	},
	models.CategoryMath: {
		"calculate", "equation", "integral", "derivative", "probability",
		"theorem", "solve for", "matrix", "sum of",
	},
	models.CategoryConversation: {
		"hello", "hi ", "how are you", "thanks", "chat", "tell me about yourself",
	},
	models.CategoryAnalysis: {
		"analyze", "compare", "contrast", "evaluate", "assess", "pros and cons",
		"trade-off", "tradeoff", "review", "summarize", "versus", " vs ",
	},
}

var complexityKeywords = []string{
	"compare", "contrast", "analyze", "evaluate", "multiple perspectives",
	"trade-off", "tradeoff", "implications", "prove", "derive", "architect",
	"design a", "step by step", "in depth", "comprehensive", " vs ", "versus",
}

var urgencyKeywords = []string{
	"urgent", "asap", "immediately", "quickly", "right now", "briefly",
	"short answer", "one sentence", "tl;dr",
}

var multiPerspectiveKeywords = []string{
	"perspectives", "viewpoints", "points of view", "compare", "debate",
	"pros and cons", "both sides", "different angles",
}

var deepReasoningKeywords = []string{
	"why", "prove", "explain in depth", "first principles", "step by step",
	"reason through", "rigorous",
}

var synthesisKeywords = []string{
	"summarize", "combine", "synthesize", "merge", "overall", "conclusion",
	"bring together",
}

var creativityKeywords = []string{
	"creative", "imagine", "story", "poem", "novel", "original", "brainstorm",
}

// Analyze classifies a prompt. An empty prompt yields the lowest-confidence
// general default rather than an error.
func (a *Analyzer) Analyze(prompt string, history []string) models.ContextAnalysis {
	lower := strings.ToLower(prompt)

	if strings.TrimSpace(lower) == "" {
		return models.ContextAnalysis{
			Category:   models.CategoryGeneral,
			Complexity: models.ComplexityLow,
			Confidence: 0.1,
		}
	}

	category, categoryHits := a.classify(lower)
	score := a.complexityScore(lower)

	analysis := models.ContextAnalysis{
		Category:         category,
		Complexity:       a.bucket(score),
		ComplexityScore:  score,
		Urgency:          matchRatio(lower, urgencyKeywords, 0.5),
		MultiPerspective: matchAny(lower, multiPerspectiveKeywords),
		DeepReasoning:    matchAny(lower, deepReasoningKeywords),
		NeedsSynthesis:   matchAny(lower, synthesisKeywords),
		NeedsCreativity:  matchAny(lower, creativityKeywords),
		Confidence:       a.confidence(categoryHits, len(history)),
	}

	a.logger.WithFields(logrus.Fields{
		"category":   analysis.Category,
		"complexity": analysis.Complexity,
		"confidence": analysis.Confidence,
	}).Debug("prompt analyzed")

	return analysis
}

// classify scores every category's keyword table and returns the winner
// with its hit count. No hits falls back to general.
func (a *Analyzer) classify(lower string) (models.TaskCategory, int) {
	best := models.CategoryGeneral
	bestHits := 0
	for _, cat := range models.AllCategories() {
		hits := 0
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = cat, hits
		}
	}
	return best, bestHits
}

// complexityScore starts from prompt length and adds a boost per matched
// complexity pattern.
func (a *Analyzer) complexityScore(lower string) float64 {
	n := len([]rune(lower))
	var score float64
	switch {
	case n < 40:
		score = 0.2
	case n < 120:
		score = 0.4
	case n < 400:
		score = 0.6
	default:
		score = 0.8
	}

	for _, kw := range complexityKeywords {
		if strings.Contains(lower, kw) {
			score += a.cfg.KeywordBoost
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (a *Analyzer) bucket(score float64) models.Complexity {
	switch {
	case score >= a.cfg.HighComplexity:
		return models.ComplexityHigh
	case score >= a.cfg.MediumComplexity:
		return models.ComplexityMedium
	default:
		return models.ComplexityLow
	}
}

// confidence grows with category signal strength and session history,
// the latter under a bounded multiplier.
func (a *Analyzer) confidence(categoryHits, historyLen int) float64 {
	base := 0.4 + 0.15*float64(categoryHits)
	if base > 0.85 {
		base = 0.85
	}

	mult := 1.0 + 0.05*float64(historyLen)
	if mult > a.cfg.HistoryConfidenceCap {
		mult = a.cfg.HistoryConfidenceCap
	}

	conf := base * mult
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}

func matchAny(s string, kws []string) bool {
	for _, kw := range kws {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// matchRatio returns step per hit, capped at 1.0.
func matchRatio(s string, kws []string, step float64) float64 {
	var score float64
	for _, kw := range kws {
		if strings.Contains(s, kw) {
			score += step
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
