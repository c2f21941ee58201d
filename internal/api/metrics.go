package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quantedge/options-engine/internal/engine"
	"github.com/quantedge/options-engine/internal/events"
	"github.com/quantedge/options-engine/internal/risk"
	"github.com/quantedge/options-engine/pkg/types"
)

// Metrics exposes engine activity to Prometheus. Counters follow the bus;
// gauges are set from the cycle status event so they always reflect the
// end-of-cycle view. The registry is owned here so multiple servers can
// coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	cycles        prometheus.Counter
	signals       *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	orders        *prometheus.CounterVec
	trades        *prometheus.CounterVec
	riskEvents    *prometheus.CounterVec
	openPositions prometheus.Gauge
	realizedPnL   prometheus.Gauge
	breakerOpen   prometheus.Gauge
}

// NewMetrics builds and registers the metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_cycles_total",
			Help: "Evaluation cycles completed.",
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_signals_total",
			Help: "Signals produced by the selector.",
		}, []string{"strategy"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_risk_decisions_total",
			Help: "Risk verdicts on signals, accepted or rejected.",
		}, []string{"strategy", "verdict"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Orders placed with the executor.",
		}, []string{"strategy"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_trades_total",
			Help: "Closed trades by outcome.",
		}, []string{"strategy", "outcome"}),
		riskEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_risk_events_total",
			Help: "Risk events by type.",
		}, []string{"type"}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Open positions at the end of the last cycle.",
		}),
		realizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_realized_pnl",
			Help: "Session realized P&L.",
		}),
		breakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_breaker_open",
			Help: "1 when the execution circuit breaker is not closed.",
		}),
	}

	m.registry.MustRegister(
		m.cycles, m.signals, m.decisions, m.orders, m.trades,
		m.riskEvents, m.openPositions, m.realizedPnL, m.breakerOpen,
	)
	return m
}

// Registry returns the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Attach subscribes the metric set to the bus.
func (m *Metrics) Attach(bus *events.Bus) {
	bus.Subscribe(m.observe,
		events.TypeCycle, events.TypeSignal, events.TypeDecision,
		events.TypeOrder, events.TypeTrade, events.TypeRisk,
		events.TypePerformance)
}

func (m *Metrics) observe(event events.Event) {
	switch event.Type {
	case events.TypeCycle:
		m.cycles.Inc()
		if status, ok := event.Payload.(engine.Status); ok {
			m.openPositions.Set(float64(status.OpenPositions))
			open := 0.0
			if status.BreakerState != risk.BreakerClosed {
				open = 1
			}
			m.breakerOpen.Set(open)
		}
	case events.TypeSignal:
		if sig, ok := event.Payload.(types.Signal); ok {
			m.signals.WithLabelValues(sig.Strategy).Inc()
		}
	case events.TypeDecision:
		if de, ok := event.Payload.(engine.DecisionEvent); ok {
			verdict := "rejected"
			if de.Decision.Accepted {
				verdict = "accepted"
			}
			m.decisions.WithLabelValues(de.Signal.Strategy, verdict).Inc()
		}
	case events.TypeOrder:
		if order, ok := event.Payload.(types.Order); ok {
			m.orders.WithLabelValues(order.Strategy).Inc()
		}
	case events.TypeTrade:
		if trade, ok := event.Payload.(types.Trade); ok {
			outcome := "loss"
			if trade.RealizedPnL.IsPositive() {
				outcome = "win"
			}
			m.trades.WithLabelValues(trade.Strategy, outcome).Inc()
		}
	case events.TypeRisk:
		if re, ok := event.Payload.(types.RiskEvent); ok {
			m.riskEvents.WithLabelValues(string(re.Type)).Inc()
		}
	case events.TypePerformance:
		if snap, ok := event.Payload.(types.PerformanceSnapshot); ok {
			pnl, _ := snap.RealizedPnL.Float64()
			m.realizedPnL.Set(pnl)
		}
	}
}
