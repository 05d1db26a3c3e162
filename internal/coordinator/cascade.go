package coordinator

import (
	"context"

	"github.com/omarpiose00/NeuronVault-sub003/internal/events"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
	"github.com/omarpiose00/NeuronVault-sub003/internal/textutil"
)

// runCascade invokes models sequentially in plan order (the selector ranks
// by historical score). With augmentation on, each stage's prompt carries a
// bounded excerpt of the previous successful stage's output; a stage whose
// timeout elapses is skipped and the cascade continues from the last
// successful output. Stage k+1 never starts before stage k resolves.
func (c *Coordinator) runCascade(ctx context.Context, req *models.Request, plan *models.ExecutionPlan, modelIDs []string, augment bool) (*Outcome, error) {
	var (
		results  []*models.ModelResult
		lastGood string
	)

	for stage, modelID := range modelIDs {
		select {
		case <-ctx.Done():
			// Budget exhausted: remaining stages are skipped, not failed.
			results = append(results, &models.ModelResult{
				ModelID: modelID,
				Status:  models.ResultSkipped,
				Err:     "plan budget exhausted",
			})
			continue
		default:
		}

		c.gateway.Publish(events.NewEvent(req.ID, events.EventStageStarted, map[string]interface{}{
			"stage": stage,
		}).WithModel(modelID))

		prompt := req.Prompt
		if augment && lastGood != "" {
			prompt = req.Prompt +
				"\n\nRefine and improve on this earlier draft:\n" +
				textutil.Truncate(lastGood, c.cfg.ExcerptRunes)
		}

		result := c.callModel(ctx, req, plan, modelID, prompt)
		if result.Status == models.ResultTimedOut {
			// Stage timeout skips the stage; the cascade carries on with
			// the last successful output.
			result.Status = models.ResultSkipped
		}
		if result.Succeeded() {
			lastGood = result.Content
		}
		results = append(results, result)

		c.gateway.Publish(events.NewEvent(req.ID, events.EventStageCompleted, map[string]interface{}{
			"stage":  stage,
			"status": result.Status,
		}).WithModel(modelID))
	}

	return &Outcome{Results: results}, nil
}
