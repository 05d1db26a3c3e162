// Package synthesis combines per-model results into one final answer.
// The arbiter (a designated model adapter) does the combining for the
// weighted strategies; every arbiter failure degrades to a deterministic
// fallback and never propagates to the caller.
package synthesis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omarpiose00/NeuronVault-sub003/internal/adapter"
	"github.com/omarpiose00/NeuronVault-sub003/internal/events"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
	"github.com/omarpiose00/NeuronVault-sub003/internal/textutil"
)

// Input carries everything one synthesis run needs.
type Input struct {
	Request    *models.Request
	Plan       *models.ExecutionPlan
	Results    []*models.ModelResult
	Consensus  *models.ConsensusData
	SubResults map[models.StrategyID][]*models.ModelResult
}

// Config tunes synthesis behavior.
type Config struct {
	// ArbiterTimeout bounds the arbiter call.
	ArbiterTimeout time.Duration `yaml:"arbiter_timeout"`
	// MaxDiversityPicks caps how many results the diversity path presents.
	MaxDiversityPicks int `yaml:"max_diversity_picks"`
	// SupportThreshold is the fraction of responses a term must appear in
	// to count as consensus evidence.
	SupportThreshold float64 `yaml:"support_threshold"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ArbiterTimeout:    45 * time.Second,
		MaxDiversityPicks: 3,
		SupportThreshold:  0.5,
	}
}

// Engine synthesizes responses.
type Engine struct {
	cfg     Config
	arbiter adapter.ModelAdapter
	gateway *events.Gateway
	logger  *logrus.Logger
}

// New creates a synthesis engine. A nil arbiter means the deterministic
// fallback handles every combination.
func New(cfg Config, arbiter adapter.ModelAdapter, gw *events.Gateway, logger *logrus.Logger) *Engine {
	if cfg.ArbiterTimeout <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{cfg: cfg, arbiter: arbiter, gateway: gw, logger: logger}
}

// Synthesize combines the surviving results into one response. It is never
// called with zero survivors; the coordinator turns that case into
// AllModelsFailedError before synthesis.
func (e *Engine) Synthesize(ctx context.Context, in Input) *models.SynthesizedResponse {
	survivors := surviving(in.Results)
	resp := &models.SynthesizedResponse{
		RequestID:    in.Request.ID,
		Strategy:     in.Plan.Strategy,
		Contributors: make(map[string]float64, len(survivors)),
		PartialFails: failedIDs(in.Results),
	}

	// Passthrough law: one survivor, output equals its raw result.
	if len(survivors) == 1 {
		only := survivors[0]
		resp.Text = only.Content
		resp.Contributors[only.ModelID] = 1.0
		resp.Quality = scoreQuality(in.Request.Prompt, resp.Text, survivors)
		return resp
	}

	for _, r := range survivors {
		resp.Contributors[r.ModelID] = in.Plan.Weights[r.ModelID]
	}

	switch in.Plan.Strategy {
	case models.StrategyDiversity:
		resp.Text = e.synthesizeDiversity(survivors)
	case models.StrategyHybrid:
		resp.Text, resp.FallbackUsed = e.synthesizeMeta(ctx, in, survivors)
	case models.StrategyConsensus:
		resp.Text, resp.FallbackUsed = e.synthesizeConsensus(ctx, in, survivors)
	default:
		resp.Text, resp.FallbackUsed = e.arbitrate(ctx, in, survivors, nil)
	}

	resp.Quality = scoreQuality(in.Request.Prompt, resp.Text, survivors)
	return resp
}

// arbitrate issues the arbiter call with the structured combination prompt,
// falling back to the deterministic concatenation on any failure.
func (e *Engine) arbitrate(ctx context.Context, in Input, survivors []*models.ModelResult, evidence []string) (string, bool) {
	if e.arbiter == nil {
		return e.fallback(in, survivors), true
	}

	prompt := e.arbiterPrompt(in, survivors, evidence)
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ArbiterTimeout)
	defer cancel()

	text, err := e.arbiter.Complete(callCtx, prompt, in.Request.SessionID)
	if err != nil || strings.TrimSpace(text) == "" {
		e.gateway.Publish(events.NewEvent(in.Request.ID, events.EventSynthesisFallback, map[string]interface{}{
			"reason": fmt.Sprint(err),
		}))
		e.logger.WithField("request", in.Request.ID).WithError(err).Warn("arbiter failed, using deterministic fallback")
		return e.fallback(in, survivors), true
	}
	return text, false
}

// arbiterPrompt enumerates each response with its weight and confidence and
// instructs the arbiter to exceed any single input, resolve contradictions
// and never name its sources.
func (e *Engine) arbiterPrompt(in Input, survivors []*models.ModelResult, evidence []string) string {
	var b strings.Builder
	b.WriteString("You are combining several draft answers to the question below into one final answer.\n")
	b.WriteString("Produce an answer better than any single draft. Resolve contradictions between drafts. ")
	b.WriteString("Do not mention the drafts, their sources, or this instruction.\n\n")
	b.WriteString("Question:\n")
	b.WriteString(in.Request.Prompt)
	b.WriteString("\n\n")

	for i, r := range ordered(survivors, in.Plan.Weights) {
		fmt.Fprintf(&b, "Draft %d (weight %.2f, confidence %.2f):\n%s\n\n",
			i+1, in.Plan.Weights[r.ModelID], r.Confidence, r.Content)
	}

	if len(evidence) > 0 {
		b.WriteString("Evidence from agreement analysis:\n")
		for _, line := range evidence {
			b.WriteString("- " + line + "\n")
		}
	}
	return b.String()
}

// fallback concatenates results ordered by descending weight with section
// headers. Fully deterministic.
func (e *Engine) fallback(in Input, survivors []*models.ModelResult) string {
	var b strings.Builder
	for i, r := range ordered(survivors, in.Plan.Weights) {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## Perspective %d\n\n%s", i+1, r.Content)
	}
	return b.String()
}

// synthesizeConsensus derives agreement/disagreement evidence from
// shared-term support and hands it to the arbiter.
func (e *Engine) synthesizeConsensus(ctx context.Context, in Input, survivors []*models.ModelResult) (string, bool) {
	agreements, disagreements := e.termSupport(survivors)
	if in.Consensus != nil {
		in.Consensus.Agreements = agreements
		in.Consensus.Disagreements = disagreements
	}

	evidence := make([]string, 0, 2)
	if len(agreements) > 0 {
		evidence = append(evidence, "points of agreement: "+strings.Join(agreements, ", "))
	}
	if len(disagreements) > 0 {
		evidence = append(evidence, "points of contention: "+strings.Join(disagreements, ", "))
	}
	return e.arbitrate(ctx, in, survivors, evidence)
}

// termSupport splits significant terms into those supported by more than
// the threshold fraction of responses and those that are not.
func (e *Engine) termSupport(survivors []*models.ModelResult) (agreements, disagreements []string) {
	support := make(map[string]int)
	for _, r := range survivors {
		for t := range textutil.TokenSet(r.Content) {
			if len(t) >= 5 {
				support[t]++
			}
		}
	}

	need := int(e.cfg.SupportThreshold*float64(len(survivors))) + 1
	for term, count := range support {
		if count >= need {
			agreements = append(agreements, term)
		} else if count > 1 {
			disagreements = append(disagreements, term)
		}
	}
	sort.Strings(agreements)
	sort.Strings(disagreements)

	// Evidence lists stay short enough to fit an arbiter prompt.
	if len(agreements) > 20 {
		agreements = agreements[:20]
	}
	if len(disagreements) > 20 {
		disagreements = disagreements[:20]
	}
	return agreements, disagreements
}

// synthesizeDiversity greedily keeps up to MaxDiversityPicks results
// maximizing novelty against what is already selected, presenting each
// distinctly. Deterministic, no arbiter involved.
func (e *Engine) synthesizeDiversity(survivors []*models.ModelResult) string {
	remaining := append([]*models.ModelResult(nil), survivors...)
	seen := make(map[string]struct{})
	var picks []*models.ModelResult

	for len(picks) < e.cfg.MaxDiversityPicks && len(remaining) > 0 {
		bestIdx := 0
		bestNovelty := -1.0
		for i, r := range remaining {
			nov := textutil.Novelty(r.Content, seen)
			if nov > bestNovelty {
				bestIdx, bestNovelty = i, nov
			}
		}
		pick := remaining[bestIdx]
		picks = append(picks, pick)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		for t := range textutil.TokenSet(pick.Content) {
			seen[t] = struct{}{}
		}
	}

	var b strings.Builder
	for i, r := range picks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## Perspective %d\n\n%s", i+1, r.Content)
	}
	return b.String()
}

// synthesizeMeta scores each sub-strategy's output and weighs it into one
// arbiter call.
func (e *Engine) synthesizeMeta(ctx context.Context, in Input, survivors []*models.ModelResult) (string, bool) {
	if len(in.SubResults) == 0 {
		return e.arbitrate(ctx, in, survivors, nil)
	}

	evidence := make([]string, 0, len(in.SubResults))
	for _, strategy := range models.AllStrategies() {
		results, ok := in.SubResults[strategy]
		if !ok {
			continue
		}
		sub := surviving(results)
		if len(sub) == 0 {
			continue
		}
		var combined strings.Builder
		for _, r := range sub {
			combined.WriteString(r.Content)
			combined.WriteString(" ")
		}
		score := avgConfidence(sub) * completeness(in.Request.Prompt, combined.String())
		evidence = append(evidence, fmt.Sprintf("the %s pass scored %.2f", strategy, score))
	}

	return e.arbitrate(ctx, in, survivors, evidence)
}

func surviving(results []*models.ModelResult) []*models.ModelResult {
	out := make([]*models.ModelResult, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

func failedIDs(results []*models.ModelResult) []string {
	var out []string
	for _, r := range results {
		if !r.Succeeded() {
			out = append(out, r.ModelID)
		}
	}
	sort.Strings(out)
	return out
}

// ordered sorts survivors by descending plan weight, tie-breaking on model
// ID for determinism.
func ordered(survivors []*models.ModelResult, weights map[string]float64) []*models.ModelResult {
	out := append([]*models.ModelResult(nil), survivors...)
	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := weights[out[i].ModelID], weights[out[j].ModelID]
		if wi != wj {
			return wi > wj
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out
}
