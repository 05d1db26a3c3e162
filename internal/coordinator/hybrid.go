package coordinator

import (
	"context"
	"sync"

	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
)

// runHybrid partitions the selected models round-robin into three groups
// and runs racing, weighted consensus and diversity sampling concurrently,
// one discipline per group. All three outputs feed meta-synthesis.
func (c *Coordinator) runHybrid(ctx context.Context, req *models.Request, plan *models.ExecutionPlan) (*Outcome, error) {
	groups := [3][]string{}
	for i, id := range plan.Models {
		groups[i%3] = append(groups[i%3], id)
	}

	subStrategies := [3]models.StrategyID{
		models.StrategyRacing,
		models.StrategyConsensus,
		models.StrategyDiversity,
	}

	type subOutcome struct {
		strategy models.StrategyID
		outcome  *Outcome
	}

	var wg sync.WaitGroup
	subCh := make(chan subOutcome, 3)

	for i, group := range groups {
		if len(group) == 0 {
			continue
		}
		strategy := subStrategies[i]
		modelIDs := group
		wg.Add(1)
		go func() {
			defer wg.Done()
			var (
				out *Outcome
				err error
			)
			switch strategy {
			case models.StrategyRacing:
				out, err = c.runRacing(ctx, req, plan, modelIDs)
			case models.StrategyConsensus:
				out, err = c.runConsensus(ctx, req, plan, modelIDs)
			default:
				out, err = c.runDiversity(ctx, req, plan, modelIDs)
			}
			if err != nil || out == nil {
				out = &Outcome{}
			}
			subCh <- subOutcome{strategy: strategy, outcome: out}
		}()
	}

	wg.Wait()
	close(subCh)

	combined := &Outcome{SubResults: make(map[models.StrategyID][]*models.ModelResult, 3)}
	for sub := range subCh {
		combined.Results = append(combined.Results, sub.outcome.Results...)
		combined.SubResults[sub.strategy] = sub.outcome.Results
		if sub.outcome.Consensus != nil {
			combined.Consensus = sub.outcome.Consensus
		}
	}
	return combined, nil
}
