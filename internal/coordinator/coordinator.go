// Package coordinator runs an execution plan against the selected model
// adapters under one hard wall-clock budget. Each strategy is a distinct
// concurrency discipline; all calls of one plan are cancellable as a unit
// through the plan context registered with the event gateway.
package coordinator

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omarpiose00/NeuronVault-sub003/internal/adapter"
	"github.com/omarpiose00/NeuronVault-sub003/internal/events"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
)

// Config tunes coordinator behavior beyond what the plan carries.
type Config struct {
	// ExcerptRunes bounds the previous-stage excerpt injected into a
	// cascading stage prompt.
	ExcerptRunes int `yaml:"excerpt_runes"`
	// Perspectives are the framings used by diversity sampling.
	Perspectives []string `yaml:"perspectives"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ExcerptRunes: 1200,
		Perspectives: []string{
			"analytical", "creative", "practical", "skeptical", "big-picture",
		},
	}
}

// Outcome is what one plan execution produced.
type Outcome struct {
	Results   []*models.ModelResult
	Consensus *models.ConsensusData
	// SubResults groups results per sub-strategy for hybrid synthesis.
	SubResults map[models.StrategyID][]*models.ModelResult
}

// Coordinator executes plans.
type Coordinator struct {
	cfg      Config
	registry *adapter.Registry
	gateway  *events.Gateway
	logger   *logrus.Logger
}

// New creates a coordinator.
func New(cfg Config, reg *adapter.Registry, gw *events.Gateway, logger *logrus.Logger) *Coordinator {
	if cfg.ExcerptRunes <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{cfg: cfg, registry: reg, gateway: gw, logger: logger}
}

// Execute runs the plan's strategy. Partial failure is not an error:
// synthesis proceeds on survivors. Only every model failing is terminal.
func (c *Coordinator) Execute(ctx context.Context, req *models.Request, plan *models.ExecutionPlan) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, plan.TimeoutBudget)
	defer cancel()
	c.gateway.Track(req.ID, cancel)

	var (
		out *Outcome
		err error
	)
	switch plan.Strategy {
	case models.StrategyRacing:
		out, err = c.runRacing(ctx, req, plan, plan.Models)
	case models.StrategyConsensus:
		out, err = c.runConsensus(ctx, req, plan, plan.Models)
	case models.StrategyCascading:
		out, err = c.runCascade(ctx, req, plan, plan.Models, true)
	case models.StrategySequential:
		out, err = c.runCascade(ctx, req, plan, plan.Models, false)
	case models.StrategyDiversity:
		out, err = c.runDiversity(ctx, req, plan, plan.Models)
	case models.StrategyHybrid:
		out, err = c.runHybrid(ctx, req, plan)
	default:
		out, err = c.runRacing(ctx, req, plan, plan.Models)
	}
	if err != nil {
		return nil, err
	}

	if !anySucceeded(out.Results) {
		failures := make(map[string]string, len(out.Results))
		for _, r := range out.Results {
			failures[r.ModelID] = r.Err
		}
		for _, id := range plan.Models {
			if _, ok := failures[id]; !ok {
				failures[id] = "not dispatched before budget expired"
			}
		}
		return out, &models.AllModelsFailedError{RequestID: req.ID, Failures: failures}
	}
	return out, nil
}

// callModel performs one adapter call under its individual timeout,
// streaming chunks through the gateway. Errors are absorbed into the
// returned result; they never escalate from here.
func (c *Coordinator) callModel(ctx context.Context, req *models.Request, plan *models.ExecutionPlan, modelID, prompt string) *models.ModelResult {
	start := time.Now()
	result := &models.ModelResult{ModelID: modelID}

	a, ok := c.registry.Get(modelID)
	if !ok || !a.Available() {
		result.Status = models.ResultFailed
		result.Err = (&models.ModelUnavailableError{ModelID: modelID, Cause: errors.New("adapter not available")}).Error()
		c.gateway.Publish(events.NewEvent(req.ID, events.EventModelFailed, result.Err).WithModel(modelID))
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, plan.PerCallTimeout)
	defer cancel()

	stream, err := a.CompleteStream(callCtx, prompt, req.SessionID)
	if err != nil {
		return c.failResult(req, result, callCtx, err, start)
	}

	var content []byte
	for {
		select {
		case <-callCtx.Done():
			return c.failResult(req, result, callCtx, callCtx.Err(), start)
		case err := <-stream.Err:
			return c.failResult(req, result, callCtx, err, start)
		case chunk, open := <-stream.C:
			if !open {
				result.Content = string(content)
				result.Elapsed = time.Since(start)
				result.Status = models.ResultCompleted
				result.Confidence = contentConfidence(result.Content)
				c.gateway.Publish(events.NewEvent(req.ID, events.EventModelCompleted, map[string]interface{}{
					"elapsed_ms": result.Elapsed.Milliseconds(),
					"confidence": result.Confidence,
				}).WithModel(modelID))
				return result
			}
			content = append(content, chunk.Content...)
			result.ChunkTimes = append(result.ChunkTimes, chunk.Timestamp)
			c.gateway.Publish(events.NewEvent(req.ID, events.EventModelChunk, map[string]interface{}{
				"content": chunk.Content,
				"index":   chunk.Index,
			}).WithModel(modelID))
		}
	}
}

func (c *Coordinator) failResult(req *models.Request, result *models.ModelResult, callCtx context.Context, err error, start time.Time) *models.ModelResult {
	result.Elapsed = time.Since(start)
	if errors.Is(err, context.DeadlineExceeded) && callCtx.Err() != nil {
		result.Status = models.ResultTimedOut
		result.Err = (&models.ModelTimeoutError{ModelID: result.ModelID, Budget: result.Elapsed.Round(time.Millisecond).String()}).Error()
	} else {
		result.Status = models.ResultFailed
		result.Err = (&models.ModelUnavailableError{ModelID: result.ModelID, Cause: err}).Error()
	}
	c.gateway.Publish(events.NewEvent(req.ID, events.EventModelFailed, result.Err).WithModel(result.ModelID))
	c.logger.WithFields(logrus.Fields{
		"request": req.ID,
		"model":   result.ModelID,
		"status":  result.Status,
	}).Warn("model call failed")
	return result
}

// contentConfidence is the cheap per-result confidence heuristic: longer,
// structured answers score higher, bounded to [0.3, 0.9].
func contentConfidence(content string) float64 {
	if content == "" {
		return 0
	}
	conf := 0.5 + float64(len(content))/2000.0*0.4
	if conf > 0.9 {
		conf = 0.9
	}
	if conf < 0.3 {
		conf = 0.3
	}
	return conf
}

func anySucceeded(results []*models.ModelResult) bool {
	for _, r := range results {
		if r.Succeeded() {
			return true
		}
	}
	return false
}

func successes(results []*models.ModelResult) []*models.ModelResult {
	out := make([]*models.ModelResult, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

// completionThreshold is the number of non-error results racing needs:
// ⌈fraction×N⌉, never more than N.
func completionThreshold(n int, fraction float64) int {
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	need := int(math.Ceil(fraction * float64(n)))
	if need < 1 {
		need = 1
	}
	if need > n {
		need = n
	}
	return need
}
