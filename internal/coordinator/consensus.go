package coordinator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/omarpiose00/NeuronVault-sub003/internal/events"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
	"github.com/omarpiose00/NeuronVault-sub003/internal/textutil"
)

// similarityThreshold is the pairwise token-Jaccard floor for two results
// to land in the same consensus cluster.
const similarityThreshold = 0.75

// runConsensus dispatches every model concurrently with no early cutoff,
// then clusters the successful results by pairwise token-Jaccard
// similarity. The largest cluster becomes the consensus group.
func (c *Coordinator) runConsensus(ctx context.Context, req *models.Request, plan *models.ExecutionPlan, modelIDs []string) (*Outcome, error) {
	var (
		mu       sync.Mutex
		results  []*models.ModelResult
		totalLen int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range modelIDs {
		modelID := id
		g.Go(func() error {
			result := c.callModel(gctx, req, plan, modelID, req.Prompt)
			mu.Lock()
			results = append(results, result)
			totalLen += len(result.Content)
			// Live weight estimate: this model's share of the content
			// produced so far. The final weights stay with the plan.
			share := 0.0
			if totalLen > 0 {
				share = float64(len(result.Content)) / float64(totalLen)
			}
			mu.Unlock()
			c.gateway.Publish(events.NewEvent(req.ID, events.EventStageCompleted, map[string]interface{}{
				"weight_estimate": share,
			}).WithModel(modelID))
			return nil
		})
	}
	// Worker errors are absorbed into results; the group only propagates
	// context cancellation.
	_ = g.Wait()

	survivors := successes(results)
	outcome := &Outcome{Results: results}
	if len(survivors) == 0 {
		return outcome, nil
	}

	cluster := largestCluster(survivors, plan.Weights)
	clusterIDs := make([]string, len(cluster))
	for i, r := range cluster {
		clusterIDs[i] = r.ModelID
	}
	outcome.Consensus = &models.ConsensusData{
		ClusterModels: clusterIDs,
		AgreementRate: float64(len(cluster)) / float64(len(survivors)),
	}
	return outcome, nil
}

// largestCluster groups results by single-linkage token-Jaccard at the
// similarity threshold and returns the largest group, breaking size ties
// by higher total plan weight.
func largestCluster(results []*models.ModelResult, weights map[string]float64) []*models.ModelResult {
	n := len(results)
	sets := make([]map[string]struct{}, n)
	for i, r := range results {
		sets[i] = textutil.TokenSet(r.Content)
	}

	// Union-find over pairwise similarity edges.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if textutil.Jaccard(sets[i], sets[j]) >= similarityThreshold {
				parent[find(i)] = find(j)
			}
		}
	}

	groups := make(map[int][]*models.ModelResult)
	for i, r := range results {
		root := find(i)
		groups[root] = append(groups[root], r)
	}

	var best []*models.ModelResult
	bestWeight := -1.0
	for _, group := range groups {
		w := 0.0
		for _, r := range group {
			w += weights[r.ModelID]
		}
		if len(group) > len(best) || (len(group) == len(best) && w > bestWeight) {
			best = group
			bestWeight = w
		}
	}
	return best
}
