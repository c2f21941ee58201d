package api_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantedge/options-engine/internal/api"
	"github.com/quantedge/options-engine/internal/attribution"
	"github.com/quantedge/options-engine/internal/broker"
	"github.com/quantedge/options-engine/internal/engine"
	"github.com/quantedge/options-engine/internal/events"
	"github.com/quantedge/options-engine/internal/marketdata"
	"github.com/quantedge/options-engine/internal/notify"
	"github.com/quantedge/options-engine/internal/persist"
	"github.com/quantedge/options-engine/internal/position"
	"github.com/quantedge/options-engine/internal/regime"
	"github.com/quantedge/options-engine/internal/risk"
	"github.com/quantedge/options-engine/internal/strategy"
	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	server *api.Server
	engine *engine.Engine
	bus    *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	builder := marketdata.NewBuilder(logger, marketdata.DefaultConfig())
	paper := broker.NewPaper(logger, broker.DefaultPaperConfig(), builder)
	catalog := strategy.NewCatalog()
	feedback := strategy.NewFeedback(100)
	tracker := position.NewTracker(logger, position.DefaultConfig())
	riskMgr := risk.NewManager(logger, risk.DefaultConfig())
	attributor := attribution.NewAttributor(logger)
	bus := events.NewBus(logger)

	eng := engine.New(logger, engine.DefaultConfig(), engine.Deps{
		Market:   paper,
		Executor: paper,
		Classifiers: map[string]*regime.Classifier{
			"NIFTY":     regime.NewClassifier(logger, regime.DefaultConfig()),
			"BANKNIFTY": regime.NewClassifier(logger, regime.DefaultConfig()),
		},
		Catalog:    catalog,
		Selector:   strategy.NewSelector(logger, catalog, feedback),
		Feedback:   feedback,
		Risk:       riskMgr,
		Tracker:    tracker,
		Attributor: attributor,
		Store:      persist.Nop{},
		Notifier:   notify.NewLog(logger),
		Bus:        bus,
	})

	server := api.NewServer(logger, api.DefaultConfig(), eng, tracker, riskMgr, attributor, bus)
	return &fixture{server: server, engine: eng, bus: bus}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusReflectsEngine(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/status")
	assert.Equal(t, http.StatusNotFound, rec.Code, "status lives under /api/v1")

	rec = f.get(t, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status engine.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, int64(0), status.Cycle)
	assert.False(t, status.Paused)
}

func TestPauseResumeControls(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/v1/control/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.engine.Control().Paused())

	rec = f.post(t, "/api/v1/control/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.engine.Control().Paused())
}

func TestEmergencyStopControl(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/v1/control/emergency-stop", `{"reason":"flash crash"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	stopped, reason := f.engine.Control().Stopped()
	assert.True(t, stopped)
	assert.Equal(t, "flash crash", reason)
}

func TestEmergencyStopDefaultsReason(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/v1/control/emergency-stop", "")
	require.Equal(t, http.StatusOK, rec.Code)

	stopped, reason := f.engine.Control().Stopped()
	assert.True(t, stopped)
	assert.Equal(t, "operator request", reason)
}

func TestPositionsAndTradesStartEmpty(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/v1/positions")
	require.Equal(t, http.StatusOK, rec.Code)

	var positions []types.Position
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&positions))
	assert.Empty(t, positions)

	rec = f.get(t, "/api/v1/trades")
	require.Equal(t, http.StatusOK, rec.Code)

	var trades []types.Trade
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&trades))
	assert.Empty(t, trades)
}

func TestPerformanceEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/v1/performance")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap types.PerformanceSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, types.PeriodDaily, snap.Period)
	assert.Zero(t, snap.TotalTrades)

	rec = f.get(t, "/api/v1/performance?period=weekly")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, types.PeriodWeekly, snap.Period)
}

func TestRiskEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/v1/risk")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, false, body["locked"])
	assert.Equal(t, string(risk.BreakerClosed), body["breakerState"])
}

func TestMetricsFollowBusEvents(t *testing.T) {
	f := newFixture(t)

	f.bus.Publish(events.New(events.TypeCycle, f.engine.Status()))
	f.bus.Publish(events.New(events.TypeTrade, types.Trade{
		Strategy:    "iron_condor",
		RealizedPnL: decimal.NewFromInt(500),
	}))

	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "engine_cycles_total 1")
	assert.Contains(t, text, `engine_trades_total{outcome="win",strategy="iron_condor"} 1`)
}

func TestWebSocketStreamsBusEvents(t *testing.T) {
	f := newFixture(t)

	ts := httptest.NewServer(f.server.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration happens in the handler goroutine after the handshake
	// response, so wait for the client to land in the hub.
	require.Eventually(t, func() bool {
		return f.server.Hub().ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	f.bus.Publish(events.New(events.TypeRegime, map[string]string{"symbol": "NIFTY"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event events.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, events.TypeRegime, event.Type)
}
