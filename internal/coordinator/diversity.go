package coordinator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
	"github.com/omarpiose00/NeuronVault-sub003/internal/textutil"
)

// runDiversity generates perspective-framed prompt variants and dispatches
// them round-robin across the selected models, each call independent. Every
// result carries a novelty score measured against the tokens its siblings
// had already produced when it arrived.
func (c *Coordinator) runDiversity(ctx context.Context, req *models.Request, plan *models.ExecutionPlan, modelIDs []string) (*Outcome, error) {
	perspectives := c.cfg.Perspectives
	n := len(modelIDs)
	if n > len(perspectives) {
		n = len(perspectives)
	}

	var (
		mu      sync.Mutex
		results []*models.ModelResult
		seen    = make(map[string]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		modelID := modelIDs[i%len(modelIDs)]
		prompt := fmt.Sprintf("Answer from a %s perspective.\n\n%s", perspectives[i], req.Prompt)
		g.Go(func() error {
			result := c.callModel(gctx, req, plan, modelID, prompt)

			mu.Lock()
			if result.Succeeded() {
				result.Novelty = textutil.Novelty(result.Content, seen)
				for t := range textutil.TokenSet(result.Content) {
					seen[t] = struct{}{}
				}
			}
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return &Outcome{Results: results}, nil
}
