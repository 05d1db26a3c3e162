package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarpiose00/NeuronVault-sub003/internal/adapter"
	"github.com/omarpiose00/NeuronVault-sub003/internal/analyzer"
	"github.com/omarpiose00/NeuronVault-sub003/internal/cache"
	"github.com/omarpiose00/NeuronVault-sub003/internal/coordinator"
	"github.com/omarpiose00/NeuronVault-sub003/internal/engine"
	"github.com/omarpiose00/NeuronVault-sub003/internal/events"
	"github.com/omarpiose00/NeuronVault-sub003/internal/ledger"
	"github.com/omarpiose00/NeuronVault-sub003/internal/meta"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
	"github.com/omarpiose00/NeuronVault-sub003/internal/selector"
	"github.com/omarpiose00/NeuronVault-sub003/internal/storage"
	"github.com/omarpiose00/NeuronVault-sub003/internal/synthesis"
)

func newTestServer(t *testing.T, mocks ...*adapter.MockAdapter) (*httptest.Server, *events.Gateway) {
	t.Helper()

	reg := adapter.NewRegistry()
	led := ledger.New(ledger.DefaultConfig())
	for _, m := range mocks {
		require.NoError(t, reg.Register(m))
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

	eng := engine.New(engine.DefaultConfig(), engine.Deps{
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

	srv := New(":0", eng, prometheus.NewRegistry(), nil)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts, gw
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestOrchestrateEndpoint(t *testing.T) {
	ts, _ := newTestServer(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "a useful answer from the ensemble"},
	)

	resp := postJSON(t, ts.URL+"/v1/orchestrate", models.Request{
		Prompt:        "tell me something useful",
		EnabledModels: map[string]bool{"m1": true},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.SynthesizedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "a useful answer from the ensemble", out.Text)
	assert.NotEmpty(t, out.RequestID)
}

func TestOrchestrateRejectsEmptyPrompt(t *testing.T) {
	ts, _ := newTestServer(t, &adapter.MockAdapter{ModelID: "m1", Response: "x"})

	resp := postJSON(t, ts.URL+"/v1/orchestrate", models.Request{
		Prompt:        "",
		EnabledModels: map[string]bool{"m1": true},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, models.KindValidation, body["kind"])
}

func TestOrchestrateMapsAllModelsFailedToBadGateway(t *testing.T) {
	ts, _ := newTestServer(t, &adapter.MockAdapter{ModelID: "m1", Down: true})

	resp := postJSON(t, ts.URL+"/v1/orchestrate", models.Request{
		Prompt:        "doomed request",
		EnabledModels: map[string]bool{"m1": true},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestRecommendEndpoint(t *testing.T) {
	ts, _ := newTestServer(t,
		&adapter.MockAdapter{ModelID: "m1", Response: "x"},
		&adapter.MockAdapter{ModelID: "m2", Response: "y"},
	)

	resp := postJSON(t, ts.URL+"/v1/recommend", models.Request{
		Prompt:        "compare two approaches from multiple perspectives",
		EnabledModels: map[string]bool{"m1": true, "m2": true},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var d models.Decision
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	assert.NotEmpty(t, d.Strategy)
	assert.NotEmpty(t, d.Tree)
}

func TestStopUnknownRequestIs404(t *testing.T) {
	ts, _ := newTestServer(t, &adapter.MockAdapter{ModelID: "m1", Response: "x"})

	resp := postJSON(t, ts.URL+"/v1/requests/ghost/stop", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStopTwiceIsConflict(t *testing.T) {
	ts, gw := newTestServer(t, &adapter.MockAdapter{ModelID: "m1", Response: "x"})
	gw.Track("r1", func() {})

	resp := postJSON(t, ts.URL+"/v1/requests/r1/stop", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/v1/requests/r1/stop", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	ts, gw := newTestServer(t, &adapter.MockAdapter{ModelID: "m1", Response: "x"})
	gw.Track("r1", func() {})

	resp := postJSON(t, ts.URL+"/v1/requests/r1/pause", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, gw.Paused("r1"))

	resp = postJSON(t, ts.URL+"/v1/requests/r1/resume", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, gw.Paused("r1"))
}

func TestStatsAndHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, &adapter.MockAdapter{ModelID: "m1", Response: "x"})

	resp, err := http.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Contains(t, stats, "strategies")
	assert.Contains(t, stats, "available_models")

	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	metrics, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestWebsocketStreamsRequestEvents(t *testing.T) {
	ts, gw := newTestServer(t, &adapter.MockAdapter{ModelID: "m1", Response: "streamed"})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/requests/ws-req/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the handler time to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	gw.Publish(events.NewEvent("ws-req", events.EventStrategySelected, "racing"))
	gw.Finish("ws-req")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventStrategySelected, ev.Type)
	assert.Equal(t, "ws-req", ev.RequestID)
}
