package models

import "time"

// TaskCategory classifies what kind of work a prompt is asking for.
type TaskCategory string

const (
	CategoryReasoning    TaskCategory = "reasoning"
	CategoryCreative     TaskCategory = "creative"
	CategoryCoding       TaskCategory = "coding"
	CategoryMath         TaskCategory = "math"
	CategoryConversation TaskCategory = "conversation"
	CategoryAnalysis     TaskCategory = "analysis"
	CategoryGeneral      TaskCategory = "general"
)

// AllCategories lists every task category in a stable order.
func AllCategories() []TaskCategory {
	return []TaskCategory{
		CategoryReasoning, CategoryCreative, CategoryCoding,
		CategoryMath, CategoryConversation, CategoryAnalysis, CategoryGeneral,
	}
}

// Complexity buckets a prompt by how demanding it is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Mode controls how many models a plan selects.
type Mode string

const (
	ModeSimple  Mode = "simple"
	ModeDefault Mode = "default"
	ModeExpert  Mode = "expert"
)

// StrategyID identifies a named execution strategy.
type StrategyID string

const (
	StrategyRacing     StrategyID = "racing"
	StrategyConsensus  StrategyID = "weighted_consensus"
	StrategyCascading  StrategyID = "adaptive_cascading"
	StrategyDiversity  StrategyID = "diversity_sampling"
	StrategyHybrid     StrategyID = "hybrid_synthesis"
	StrategySequential StrategyID = "sequential"
)

// AllStrategies lists every strategy in a stable order.
func AllStrategies() []StrategyID {
	return []StrategyID{
		StrategyRacing, StrategyConsensus, StrategyCascading,
		StrategyDiversity, StrategyHybrid, StrategySequential,
	}
}

// Request is one orchestration request. Immutable once accepted.
type Request struct {
	ID               string                `json:"id"`
	SessionID        string                `json:"session_id"`
	Prompt           string                `json:"prompt"`
	EnabledModels    map[string]bool       `json:"enabled_models"`
	WeightOverrides  map[string]float64    `json:"weight_overrides,omitempty"`
	StrategyOverride StrategyID            `json:"strategy_override,omitempty"`
	Mode             Mode                  `json:"mode,omitempty"`
	History          []string              `json:"history,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

// EnabledModelIDs returns the IDs of all enabled models in sorted-insertion order.
func (r *Request) EnabledModelIDs() []string {
	ids := make([]string, 0, len(r.EnabledModels))
	for id, on := range r.EnabledModels {
		if on {
			ids = append(ids, id)
		}
	}
	return ids
}

// ContextAnalysis is the feature vector the analyzer derives from a prompt.
type ContextAnalysis struct {
	Category         TaskCategory `json:"category"`
	Complexity       Complexity   `json:"complexity"`
	ComplexityScore  float64      `json:"complexity_score"`
	Urgency          float64      `json:"urgency"`
	MultiPerspective bool         `json:"multi_perspective"`
	DeepReasoning    bool         `json:"deep_reasoning"`
	NeedsSynthesis   bool         `json:"needs_synthesis"`
	NeedsCreativity  bool         `json:"needs_creativity"`
	Confidence       float64      `json:"confidence"`
}

// ModelProfile holds static capability scores and rolling dynamic metrics
// for one model. Created at startup, updated after every call, never deleted.
type ModelProfile struct {
	ModelID      string                   `json:"model_id"`
	Capabilities map[TaskCategory]float64 `json:"capabilities"`
	LatencyEWMA  float64                  `json:"latency_ewma_ms"`
	QualityEWMA  float64                  `json:"quality_ewma"`
	Reliability  float64                  `json:"reliability"`
	TotalCalls   int                      `json:"total_calls"`
	Successes    int                      `json:"successes"`
	Outcomes     []Outcome                `json:"outcomes,omitempty"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// Capability returns the static capability score for a category,
// falling back to the general score.
func (p *ModelProfile) Capability(cat TaskCategory) float64 {
	if s, ok := p.Capabilities[cat]; ok {
		return s
	}
	return p.Capabilities[CategoryGeneral]
}

// StrategyProfile is the static, read-only description of a strategy.
type StrategyProfile struct {
	ID          StrategyID     `json:"id"`
	Description string         `json:"description"`
	GoodFor     []TaskCategory `json:"good_for"`
	Parallel    bool           `json:"parallel"`
}

// Outcome is one recorded model or strategy result fed to the ledger.
type Outcome struct {
	Success   bool      `json:"success"`
	LatencyMS float64   `json:"latency_ms"`
	Quality   float64   `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionPlan is the per-request execution decision. Discarded after completion.
type ExecutionPlan struct {
	RequestID       string             `json:"request_id"`
	Strategy        StrategyID         `json:"strategy"`
	Models          []string           `json:"models"`
	Weights         map[string]float64 `json:"weights"`
	TimeoutBudget   time.Duration      `json:"timeout_budget"`
	PerCallTimeout  time.Duration      `json:"per_call_timeout"`
	EarlyCompletion float64            `json:"early_completion"`
	Reasoning       string             `json:"reasoning,omitempty"`
}

// ResultStatus is the terminal status of one model call.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultTimedOut  ResultStatus = "timed_out"
	ResultSkipped   ResultStatus = "skipped"
	ResultAbandoned ResultStatus = "abandoned"
)

// ModelResult is one model's contribution to a request.
type ModelResult struct {
	ModelID    string        `json:"model_id"`
	Content    string        `json:"content"`
	ChunkTimes []time.Time   `json:"chunk_times,omitempty"`
	Confidence float64       `json:"confidence"`
	Novelty    float64       `json:"novelty,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Status     ResultStatus  `json:"status"`
	Err        string        `json:"error,omitempty"`
}

// Succeeded reports whether the result carries usable content.
func (r *ModelResult) Succeeded() bool {
	return r.Status == ResultCompleted && r.Content != ""
}

// ConsensusData carries clustering evidence from the consensus strategy
// into synthesis.
type ConsensusData struct {
	ClusterModels []string `json:"cluster_models"`
	Agreements    []string `json:"agreements,omitempty"`
	Disagreements []string `json:"disagreements,omitempty"`
	AgreementRate float64  `json:"agreement_rate"`
}

// QualityMetrics is the post-hoc quality breakdown of a synthesized answer.
type QualityMetrics struct {
	SourceConfidence float64 `json:"source_confidence"`
	Completeness     float64 `json:"completeness"`
	Coherence        float64 `json:"coherence"`
	Uniqueness       float64 `json:"uniqueness"`
	Overall          float64 `json:"overall"`
}

// SynthesizedResponse is the engine's final answer for one request.
type SynthesizedResponse struct {
	RequestID    string             `json:"request_id"`
	Text         string             `json:"text"`
	Contributors map[string]float64 `json:"contributors"`
	Strategy     StrategyID         `json:"strategy"`
	Quality      QualityMetrics     `json:"quality"`
	FallbackUsed bool               `json:"fallback_used"`
	PartialFails []string           `json:"partial_failures,omitempty"`
	Elapsed      time.Duration      `json:"elapsed"`
	CachedAt     *time.Time         `json:"cached_at,omitempty"`
}

// Decision is one persisted meta-orchestrator recommendation.
type Decision struct {
	ID          string             `json:"id"`
	Fingerprint string             `json:"fingerprint"`
	Analysis    ContextAnalysis    `json:"analysis"`
	Strategy    StrategyID         `json:"strategy"`
	Models      []string           `json:"models"`
	Weights     map[string]float64 `json:"weights"`
	Confidence  float64            `json:"confidence"`
	AutoApply   bool               `json:"auto_apply"`
	Reasoning   string             `json:"reasoning"`
	Tree        []string           `json:"decision_tree"`
	Timestamp   time.Time          `json:"timestamp"`
}

// LearningPattern aggregates decisions per category once enough samples exist.
type LearningPattern struct {
	Category      TaskCategory       `json:"category"`
	Samples       int                `json:"samples"`
	BestStrategy  StrategyID         `json:"best_strategy"`
	AvgConfidence float64            `json:"avg_confidence"`
	ModelWeights  map[string]float64 `json:"model_weights"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
