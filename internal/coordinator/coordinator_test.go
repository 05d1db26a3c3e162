package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omarpiose00/NeuronVault-sub003/internal/adapter"
	"github.com/omarpiose00/NeuronVault-sub003/internal/events"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestCoordinator(t *testing.T, adapters ...*adapter.MockAdapter) (*Coordinator, *events.Gateway) {
	t.Helper()
	reg := adapter.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, reg.Register(a))
	}
	gw := events.NewGateway(events.DefaultConfig())
	t.Cleanup(gw.Close)
	return New(DefaultConfig(), reg, gw, nil), gw
}

func testPlan(strategy models.StrategyID, modelIDs ...string) *models.ExecutionPlan {
	weights := make(map[string]float64, len(modelIDs))
	for _, id := range modelIDs {
		weights[id] = 1.0 / float64(len(modelIDs))
	}
	return &models.ExecutionPlan{
		RequestID:       "r1",
		Strategy:        strategy,
		Models:          modelIDs,
		Weights:         weights,
		TimeoutBudget:   2 * time.Second,
		PerCallTimeout:  500 * time.Millisecond,
		EarlyCompletion: 0.8,
	}
}

func testRequest(prompt string) *models.Request {
	return &models.Request{ID: "r1", SessionID: "s1", Prompt: prompt}
}

func TestRacingWaitsForCeilOfFractionTimesN(t *testing.T) {
	c, _ := newTestCoordinator(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "answer one"},
		&adapter.MockAdapter{ModelID: "m2", Response: "answer two"},
		&adapter.MockAdapter{ModelID: "m3", Response: "answer three"},
	)

	// ⌈0.8×3⌉ = 3: every model must land.
	out, err := c.Execute(context.Background(), testRequest("q"), testPlan(models.StrategyRacing, "m1", "m2", "m3"))
	require.NoError(t, err)

	succeeded := 0
	for _, r := range out.Results {
		if r.Succeeded() {
			succeeded++
		}
	}
	assert.Equal(t, 3, succeeded)
}

func TestRacingCancelsStragglersOnceThresholdMet(t *testing.T) {
	slow := &adapter.MockAdapter{ModelID: "m3", Response: "late", Delay: 5 * time.Second}
	c, _ := newTestCoordinator(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "fast one"},
		&adapter.MockAdapter{ModelID: "m2", Response: "fast two"},
		slow,
	)

	plan := testPlan(models.StrategyRacing, "m1", "m2", "m3")
	plan.EarlyCompletion = 0.5 // ⌈0.5×3⌉ = 2

	start := time.Now()
	out, err := c.Execute(context.Background(), testRequest("q"), plan)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	succeeded := 0
	for _, r := range out.Results {
		if r.Succeeded() {
			succeeded++
		}
	}
	assert.GreaterOrEqual(t, succeeded, 2)
}

func TestCompletionThreshold(t *testing.T) {
	assert.Equal(t, 3, completionThreshold(3, 0.8))
	assert.Equal(t, 2, completionThreshold(3, 0.5))
	assert.Equal(t, 1, completionThreshold(1, 0.8))
	assert.Equal(t, 4, completionThreshold(4, 1.0))
	// Out-of-range fractions fall back to all of them.
	assert.Equal(t, 3, completionThreshold(3, 0))
	assert.Equal(t, 3, completionThreshold(3, 1.5))
}

func TestAllModelsFailingIsTerminal(t *testing.T) {
	c, _ := newTestCoordinator(t,
		&adapter.MockAdapter{ModelID: "m1", Err: errors.New("overloaded")},
		&adapter.MockAdapter{ModelID: "m2", Down: true},
	)

	out, err := c.Execute(context.Background(), testRequest("q"), testPlan(models.StrategyRacing, "m1", "m2"))

	var target *models.AllModelsFailedError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "r1", target.RequestID)
	assert.Len(t, target.Failures, 2)
	assert.Contains(t, target.Failures["m1"], "overloaded")
	require.NotNil(t, out)
	for _, r := range out.Results {
		assert.False(t, r.Succeeded())
	}
}

func TestPartialFailureIsNotAnError(t *testing.T) {
	c, _ := newTestCoordinator(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "good answer"},
		&adapter.MockAdapter{ModelID: "m2", Err: errors.New("boom")},
	)

	plan := testPlan(models.StrategyConsensus, "m1", "m2")
	out, err := c.Execute(context.Background(), testRequest("q"), plan)

	require.NoError(t, err)
	assert.Len(t, out.Results, 2)
}

func TestCascadeRunsSequentiallyInPlanOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	responder := func(id, text string) *adapter.MockAdapter {
		return &adapter.MockAdapter{ModelID: id, Respond: func(string) string {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return text
		}}
	}
	c, _ := newTestCoordinator(t,
		responder("m1", "first draft"),
		responder("m2", "second draft"),
		responder("m3", "third draft"),
	)

	out, err := c.Execute(context.Background(), testRequest("q"), testPlan(models.StrategyCascading, "m1", "m2", "m3"))
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "m2", "m3"}, order)
	require.Len(t, out.Results, 3)
	assert.Equal(t, "m1", out.Results[0].ModelID)
	assert.Equal(t, "m3", out.Results[2].ModelID)
}

func TestCascadeAugmentsWithPreviousStageExcerpt(t *testing.T) {
	var mu sync.Mutex
	prompts := make(map[string]string)
	capture := func(id, text string) *adapter.MockAdapter {
		return &adapter.MockAdapter{ModelID: id, Respond: func(p string) string {
			mu.Lock()
			prompts[id] = p
			mu.Unlock()
			return text
		}}
	}
	c, _ := newTestCoordinator(t, capture("m1", "the first stage output"), capture("m2", "refined"))

	_, err := c.Execute(context.Background(), testRequest("original question"), testPlan(models.StrategyCascading, "m1", "m2"))
	require.NoError(t, err)

	assert.Equal(t, "original question", prompts["m1"])
	assert.Contains(t, prompts["m2"], "original question")
	assert.Contains(t, prompts["m2"], "Refine and improve on this earlier draft:")
	assert.Contains(t, prompts["m2"], "the first stage output")
}

func TestSequentialStrategySkipsAugmentation(t *testing.T) {
	var mu sync.Mutex
	prompts := make(map[string]string)
	capture := func(id, text string) *adapter.MockAdapter {
		return &adapter.MockAdapter{ModelID: id, Respond: func(p string) string {
			mu.Lock()
			prompts[id] = p
			mu.Unlock()
			return text
		}}
	}
	c, _ := newTestCoordinator(t, capture("m1", "one"), capture("m2", "two"))

	_, err := c.Execute(context.Background(), testRequest("plain question"), testPlan(models.StrategySequential, "m1", "m2"))
	require.NoError(t, err)

	assert.Equal(t, "plain question", prompts["m1"])
	assert.Equal(t, "plain question", prompts["m2"])
}

func TestCascadeStageTimeoutIsSkippedNotFatal(t *testing.T) {
	c, _ := newTestCoordinator(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "stalled", Delay: 5 * time.Second},
		&adapter.MockAdapter{ModelID: "m2", Response: "recovered answer"},
	)

	plan := testPlan(models.StrategyCascading, "m1", "m2")
	plan.PerCallTimeout = 30 * time.Millisecond

	out, err := c.Execute(context.Background(), testRequest("q"), plan)
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.Equal(t, models.ResultSkipped, out.Results[0].Status)
	assert.True(t, out.Results[1].Succeeded())
}

func TestCascadeBudgetExhaustionSkipsRemainingStages(t *testing.T) {
	c, _ := newTestCoordinator(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "late", Delay: 5 * time.Second},
		&adapter.MockAdapter{ModelID: "m2", Response: "never runs"},
	)

	plan := testPlan(models.StrategyCascading, "m1", "m2")
	plan.TimeoutBudget = 50 * time.Millisecond

	out, err := c.Execute(context.Background(), testRequest("q"), plan)

	var target *models.AllModelsFailedError
	require.ErrorAs(t, err, &target)
	require.Len(t, out.Results, 2)
	assert.Equal(t, models.ResultSkipped, out.Results[0].Status)
	assert.Equal(t, models.ResultSkipped, out.Results[1].Status)
	assert.Equal(t, "plan budget exhausted", out.Results[1].Err)
}

func TestConsensusClustersAgreeingResults(t *testing.T) {
	agreed := "the quick brown fox jumps over the lazy dog near the river bank"
	c, _ := newTestCoordinator(t,
		&adapter.MockAdapter{ModelID: "m1", Response: agreed},
		&adapter.MockAdapter{ModelID: "m2", Response: agreed},
		&adapter.MockAdapter{ModelID: "m3", Response: "an entirely unrelated statement regarding submarine navigation"},
	)

	out, err := c.Execute(context.Background(), testRequest("q"), testPlan(models.StrategyConsensus, "m1", "m2", "m3"))
	require.NoError(t, err)

	require.NotNil(t, out.Consensus)
	assert.ElementsMatch(t, []string{"m1", "m2"}, out.Consensus.ClusterModels)
	assert.InDelta(t, 2.0/3.0, out.Consensus.AgreementRate, 1e-9)
}

func TestDiversityFramesPerspectivesAndScoresNovelty(t *testing.T) {
	var mu sync.Mutex
	var prompts []string
	capture := func(id, text string) *adapter.MockAdapter {
		return &adapter.MockAdapter{ModelID: id, Respond: func(p string) string {
			mu.Lock()
			prompts = append(prompts, p)
			mu.Unlock()
			return text
		}}
	}
	c, _ := newTestCoordinator(t,
		capture("m1", "glaciers shape valleys slowly"),
		capture("m2", "rivers carve canyons quickly"),
	)

	out, err := c.Execute(context.Background(), testRequest("how does erosion work"), testPlan(models.StrategyDiversity, "m1", "m2"))
	require.NoError(t, err)

	require.Len(t, prompts, 2)
	for _, p := range prompts {
		assert.Contains(t, p, "perspective.")
		assert.Contains(t, p, "how does erosion work")
	}
	require.Len(t, out.Results, 2)

	// Whichever arrived first saw an empty sibling set.
	novelties := []float64{out.Results[0].Novelty, out.Results[1].Novelty}
	assert.Contains(t, novelties, 1.0)
}

func TestDiversityIsBoundedByPerspectiveCount(t *testing.T) {
	adapters := make([]*adapter.MockAdapter, 7)
	for i := range adapters {
		adapters[i] = &adapter.MockAdapter{ModelID: string(rune('a' + i)), Response: "answer " + strings.Repeat("x", i+1)}
	}
	c, _ := newTestCoordinator(t, adapters...)

	ids := make([]string, len(adapters))
	for i, a := range adapters {
		ids[i] = a.ModelID
	}
	out, err := c.Execute(context.Background(), testRequest("q"), testPlan(models.StrategyDiversity, ids...))
	require.NoError(t, err)

	assert.Len(t, out.Results, len(DefaultConfig().Perspectives))
}

func TestHybridPartitionsIntoThreeDisciplines(t *testing.T) {
	c, _ := newTestCoordinator(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "racing answer"},
		&adapter.MockAdapter{ModelID: "m2", Response: "consensus answer"},
		&adapter.MockAdapter{ModelID: "m3", Response: "diverse answer"},
	)

	out, err := c.Execute(context.Background(), testRequest("q"), testPlan(models.StrategyHybrid, "m1", "m2", "m3"))
	require.NoError(t, err)

	assert.Len(t, out.Results, 3)
	assert.Len(t, out.SubResults, 3)
	assert.Len(t, out.SubResults[models.StrategyRacing], 1)
	assert.Len(t, out.SubResults[models.StrategyConsensus], 1)
	assert.Len(t, out.SubResults[models.StrategyDiversity], 1)
}

func TestStreamingChunksReachSubscribers(t *testing.T) {
	c, gw := newTestCoordinator(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "abcdef", ChunkSize: 2},
	)

	ch := gw.Subscribe("r1")
	plan := testPlan(models.StrategyRacing, "m1")

	_, err := c.Execute(context.Background(), testRequest("q"), plan)
	require.NoError(t, err)
	gw.Finish("r1")

	chunks := 0
	completed := 0
	for ev := range ch {
		switch ev.Type {
		case events.EventModelChunk:
			chunks++
		case events.EventModelCompleted:
			completed++
		}
	}
	assert.Equal(t, 3, chunks)
	assert.Equal(t, 1, completed)
}
