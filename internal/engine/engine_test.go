package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarpiose00/NeuronVault-sub003/internal/adapter"
	"github.com/omarpiose00/NeuronVault-sub003/internal/analyzer"
	"github.com/omarpiose00/NeuronVault-sub003/internal/cache"
	"github.com/omarpiose00/NeuronVault-sub003/internal/coordinator"
	"github.com/omarpiose00/NeuronVault-sub003/internal/events"
	"github.com/omarpiose00/NeuronVault-sub003/internal/ledger"
	"github.com/omarpiose00/NeuronVault-sub003/internal/meta"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
	"github.com/omarpiose00/NeuronVault-sub003/internal/selector"
	"github.com/omarpiose00/NeuronVault-sub003/internal/storage"
	"github.com/omarpiose00/NeuronVault-sub003/internal/synthesis"
)

type harness struct {
	engine   *Engine
	gateway  *events.Gateway
	ledger   *ledger.Ledger
	adapters map[string]*adapter.MockAdapter
}

func newHarness(t *testing.T, mocks ...*adapter.MockAdapter) *harness {
	t.Helper()

	reg := adapter.NewRegistry()
	adapters := make(map[string]*adapter.MockAdapter, len(mocks))
	led := ledger.New(ledger.DefaultConfig())
	for _, m := range mocks {
		require.NoError(t, reg.Register(m))
		adapters[m.ModelID] = m
		led.SeedProfile(m.ModelID, map[models.TaskCategory]float64{models.CategoryGeneral: 0.7})
	}

	gw := events.NewGateway(events.DefaultConfig())
	t.Cleanup(gw.Close)

	an := analyzer.New(analyzer.DefaultConfig(), nil)
	sel := selector.New(selector.DefaultConfig(), led, nil)
	coord := coordinator.New(coordinator.DefaultConfig(), reg, gw, nil)
	synth := synthesis.New(synthesis.DefaultConfig(), nil, gw, nil)
	metaOrch := meta.New(meta.DefaultConfig(), meta.AnalyzerFunc(func(p string, h []string) (models.ContextAnalysis, error) {
		return an.Analyze(p, h), nil
	}), sel, reg, led, storage.NewMemoryStore(), nil)

	eng := New(DefaultConfig(), Deps{
		Analyzer:    an,
		Selector:    sel,
		Coordinator: coord,
		Synthesis:   synth,
		Ledger:      led,
		Meta:        metaOrch,
		Gateway:     gw,
		Cache:       cache.New(cache.DefaultConfig()),
		Registry:    reg,
	})
	return &harness{engine: eng, gateway: gw, ledger: led, adapters: adapters}
}

func orchestrationRequest(prompt string, ids ...string) *models.Request {
	enabled := make(map[string]bool, len(ids))
	for _, id := range ids {
		enabled[id] = true
	}
	return &models.Request{Prompt: prompt, EnabledModels: enabled, SessionID: "s1"}
}

func TestValidationRejectsBadRequests(t *testing.T) {
	h := newHarness(t, &adapter.MockAdapter{ModelID: "m1", Response: "ok"})

	cases := []*models.Request{
		nil,
		{Prompt: "", EnabledModels: map[string]bool{"m1": true}},
		{Prompt: "hi", EnabledModels: nil},
		{Prompt: "hi", EnabledModels: map[string]bool{"m1": false}},
	}
	for _, req := range cases {
		resp, err := h.engine.Orchestrate(context.Background(), req)
		assert.Nil(t, resp)
		var target *models.ValidationError
		assert.ErrorAs(t, err, &target)
	}
	assert.Equal(t, int64(0), h.adapters["m1"].Calls())
}

func TestOrchestrateReturnsExactlyOneOfResponseOrError(t *testing.T) {
	h := newHarness(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "rivers erode their banks over centuries of flow"},
		&adapter.MockAdapter{ModelID: "m2", Response: "meanders form because of lateral erosion patterns"},
	)

	resp, err := h.engine.Orchestrate(context.Background(), orchestrationRequest("why do rivers meander", "m1", "m2"))
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.Text)
	assert.NotEmpty(t, resp.RequestID)
	assert.NotEmpty(t, resp.Contributors)
	assert.Greater(t, resp.Quality.Overall, 0.0)
}

func TestAllModelsFailingYieldsTypedErrorAndNoResponse(t *testing.T) {
	h := newHarness(t,
		&adapter.MockAdapter{ModelID: "m1", Err: errors.New("overloaded")},
		&adapter.MockAdapter{ModelID: "m2", Err: errors.New("unreachable")},
	)

	resp, err := h.engine.Orchestrate(context.Background(), orchestrationRequest("any prompt", "m1", "m2"))

	assert.Nil(t, resp)
	var target *models.AllModelsFailedError
	require.ErrorAs(t, err, &target)
	assert.Len(t, target.Failures, 2)
}

func TestIdenticalRequestIsServedFromCacheWithZeroModelCalls(t *testing.T) {
	h := newHarness(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "first answer body"},
		&adapter.MockAdapter{ModelID: "m2", Response: "second answer body"},
	)

	req := func() *models.Request { return orchestrationRequest("cache this exact prompt", "m1", "m2") }

	first, err := h.engine.Orchestrate(context.Background(), req())
	require.NoError(t, err)
	callsAfterFirst := h.adapters["m1"].Calls() + h.adapters["m2"].Calls()

	second, err := h.engine.Orchestrate(context.Background(), req())
	require.NoError(t, err)

	assert.Equal(t, first.Text, second.Text)
	assert.Same(t, first, second)
	assert.NotNil(t, second.CachedAt)
	assert.Equal(t, callsAfterFirst, h.adapters["m1"].Calls()+h.adapters["m2"].Calls())
}

func TestOrchestrationFeedsTheLedger(t *testing.T) {
	h := newHarness(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "a perfectly fine answer"},
		&adapter.MockAdapter{ModelID: "m2", Err: errors.New("flaky")},
	)

	_, err := h.engine.Orchestrate(context.Background(), orchestrationRequest("feed the ledger", "m1", "m2"))
	require.NoError(t, err)

	p1, ok := h.ledger.Profile("m1")
	require.True(t, ok)
	assert.Equal(t, 1, p1.Successes)

	p2, ok := h.ledger.Profile("m2")
	require.True(t, ok)
	assert.Equal(t, 1, p2.TotalCalls)
	assert.Equal(t, 0, p2.Successes)

	used := 0
	for _, id := range models.AllStrategies() {
		used += h.ledger.StrategyUses(id)
	}
	assert.Equal(t, 1, used)
}

func TestEventLifecycleEndsWithSynthesizedResponse(t *testing.T) {
	h := newHarness(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "the one answer"},
	)

	req := orchestrationRequest("observe the lifecycle", "m1")
	req.ID = "req-events"
	ch := h.engine.Subscribe("req-events")

	_, err := h.engine.Orchestrate(context.Background(), req)
	require.NoError(t, err)

	var types []events.EventType
	for ev := range ch {
		types = append(types, ev.Type)
	}

	require.NotEmpty(t, types)
	assert.Equal(t, events.EventStrategySelected, types[0])
	assert.Equal(t, events.EventSynthesizedResponse, types[len(types)-1])
}

func TestStopAcknowledgmentSemantics(t *testing.T) {
	h := newHarness(t, &adapter.MockAdapter{ModelID: "m1", Response: "x"})

	assert.ErrorIs(t, h.engine.Stop("ghost"), events.ErrUnknownRequest)

	h.gateway.Track("r1", func() {})
	require.NoError(t, h.engine.Stop("r1"))
	assert.ErrorIs(t, h.engine.Stop("r1"), events.ErrAlreadyStopped)
	h.gateway.Finish("r1")
}

func TestStopDuringExecutionSuppressesSynthesis(t *testing.T) {
	h := newHarness(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "slow answer", Delay: 300 * time.Millisecond},
	)

	req := orchestrationRequest("stoppable work", "m1")
	req.ID = "req-stop"

	done := make(chan struct{})
	var resp *models.SynthesizedResponse
	var err error
	go func() {
		defer close(done)
		resp, err = h.engine.Orchestrate(context.Background(), req)
	}()

	// Let the coordinator register the request, then stop it.
	require.Eventually(t, func() bool {
		return h.engine.Stop("req-stop") == nil
	}, time.Second, 10*time.Millisecond)

	<-done
	assert.Nil(t, resp)
	require.Error(t, err)
	kind := models.ErrorKind(err)
	assert.Contains(t, []string{models.KindRequestStopped, models.KindAllModelsFailed}, kind)
}

func TestStatsSnapshot(t *testing.T) {
	h := newHarness(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "statistics fodder"},
	)

	_, err := h.engine.Orchestrate(context.Background(), orchestrationRequest("fill the stats", "m1"))
	require.NoError(t, err)

	s := h.engine.Stats()
	assert.Contains(t, s.Models, "m1")
	assert.Equal(t, []string{"m1"}, s.AvailableModels)
	assert.Len(t, s.Strategies, len(models.AllStrategies()))
	assert.Greater(t, s.Gateway.Published, int64(0))
	assert.False(t, s.Timestamp.IsZero())
}

func TestRecommendDoesNotExecuteModels(t *testing.T) {
	h := newHarness(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "never called"},
		&adapter.MockAdapter{ModelID: "m2", Response: "never called"},
	)

	d, err := h.engine.Recommend(context.Background(), orchestrationRequest("just advise me", "m1", "m2"))
	require.NoError(t, err)
	assert.NotEmpty(t, d.Strategy)
	assert.Equal(t, int64(0), h.adapters["m1"].Calls()+h.adapters["m2"].Calls())
}
