package coordinator

import (
	"context"
	"sync"

	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
)

// runRacing dispatches every selected model concurrently and completes as
// soon as ⌈fraction×N⌉ non-error results have arrived, all models have
// finished, or the budget expires. Stragglers are cancelled and their late
// results dropped.
func (c *Coordinator) runRacing(ctx context.Context, req *models.Request, plan *models.ExecutionPlan, modelIDs []string) (*Outcome, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	need := completionThreshold(len(modelIDs), plan.EarlyCompletion)
	resultCh := make(chan *models.ModelResult, len(modelIDs))

	var wg sync.WaitGroup
	for _, id := range modelIDs {
		wg.Add(1)
		go func(modelID string) {
			defer wg.Done()
			resultCh <- c.callModel(raceCtx, req, plan, modelID, req.Prompt)
		}(id)
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var results []*models.ModelResult
	arrived := 0
	for result := range resultCh {
		results = append(results, result)
		if result.Succeeded() {
			arrived++
		}
		if arrived >= need {
			// Threshold met: abandon stragglers. Anything still in flight
			// observes the cancelled context and its result is dropped.
			cancel()
			break
		}
	}

	return &Outcome{Results: results}, nil
}
