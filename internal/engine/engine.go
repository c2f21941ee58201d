// Package engine runs the evaluation cycle: market snapshot, regime
// classification, strategy selection, risk gating, execution and
// bookkeeping. Cycles are discrete and non-overlapping; the caller
// triggers them and guarantees at most one runs at a time per account.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantedge/options-engine/internal/attribution"
	"github.com/quantedge/options-engine/internal/broker"
	"github.com/quantedge/options-engine/internal/events"
	"github.com/quantedge/options-engine/internal/notify"
	"github.com/quantedge/options-engine/internal/persist"
	"github.com/quantedge/options-engine/internal/position"
	"github.com/quantedge/options-engine/internal/regime"
	"github.com/quantedge/options-engine/internal/risk"
	"github.com/quantedge/options-engine/internal/strategy"
	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the engine's own knobs; component limits live with their
// packages.
type Config struct {
	Instruments   map[string]types.Instrument `json:"instruments"`
	FlattenOnStop bool                        `json:"flattenOnStop"`
	MaxRetries    int                         `json:"maxRetries"`
	RetryBackoff  time.Duration               `json:"retryBackoff"`
}

// DefaultConfig covers the two index underlyings.
func DefaultConfig() Config {
	return Config{
		Instruments: map[string]types.Instrument{
			"NIFTY":     {Symbol: "NIFTY", LotSize: 50, StrikeInterval: decimal.NewFromInt(50)},
			"BANKNIFTY": {Symbol: "BANKNIFTY", LotSize: 25, StrikeInterval: decimal.NewFromInt(100)},
		},
		FlattenOnStop: false,
		MaxRetries:    3,
		RetryBackoff:  time.Second,
	}
}

// Deps are the collaborators the engine drives.
type Deps struct {
	Market      broker.MarketData
	Executor    broker.Executor
	Classifiers map[string]*regime.Classifier // one per symbol, history is per underlying
	Catalog     *strategy.Catalog
	Selector    *strategy.Selector
	Feedback    *strategy.Feedback
	Risk        *risk.Manager
	Tracker     *position.Tracker
	Attributor  *attribution.Attributor
	Store       persist.Store
	Notifier    notify.Notifier
	Bus         *events.Bus
}

// DecisionEvent pairs a signal with the risk manager's verdict on it.
type DecisionEvent struct {
	Signal   types.Signal  `json:"signal"`
	Decision risk.Decision `json:"decision"`
}

// Status is the engine view exposed over the API.
type Status struct {
	Cycle         int64                        `json:"cycle"`
	LastCycleAt   time.Time                    `json:"lastCycleAt"`
	Paused        bool                         `json:"paused"`
	Stopped       bool                         `json:"stopped"`
	StopReason    string                       `json:"stopReason,omitempty"`
	Halted        bool                         `json:"halted"`
	RiskLocked    bool                         `json:"riskLocked"`
	BreakerState  risk.BreakerState            `json:"breakerState"`
	Regimes       map[string]types.RegimeState `json:"regimes"`
	OpenPositions int                          `json:"openPositions"`
}

// Engine owns one account's evaluation loop state. RunCycle is
// single-writer; mu covers the fields Status reads so API goroutines can
// poll a consistent view mid-cycle.
type Engine struct {
	logger  *zap.Logger
	config  Config
	deps    Deps
	control *Control

	mu          sync.RWMutex
	cycle       int64
	lastCycleAt time.Time
	regimes     map[string]types.RegimeState
	halted      bool
	haltErr     error

	// Cycle-goroutine-only state.
	lastReconcile time.Time
	applied       map[string]bool // fill order ids already applied
	snapshots     map[string]types.MarketSnapshot
	sessionStart  time.Time
}

// New wires an engine.
func New(logger *zap.Logger, config Config, deps Deps) *Engine {
	return &Engine{
		logger:       logger.Named("engine"),
		config:       config,
		deps:         deps,
		control:      NewControl(),
		applied:      make(map[string]bool),
		regimes:      make(map[string]types.RegimeState),
		snapshots:    make(map[string]types.MarketSnapshot),
		sessionStart: time.Now().UTC(),
	}
}

// Control returns the operator control block.
func (e *Engine) Control() *Control { return e.control }

// Status reports the current engine view.
func (e *Engine) Status() Status {
	stopped, reason := e.control.Stopped()

	e.mu.RLock()
	cycle := e.cycle
	lastCycleAt := e.lastCycleAt
	halted := e.halted
	regimes := make(map[string]types.RegimeState, len(e.regimes))
	for k, v := range e.regimes {
		regimes[k] = v
	}
	e.mu.RUnlock()

	return Status{
		Cycle:         cycle,
		LastCycleAt:   lastCycleAt,
		Paused:        e.control.Paused(),
		Stopped:       stopped,
		StopReason:    reason,
		Halted:        halted,
		RiskLocked:    e.deps.Risk.Locked(),
		BreakerState:  e.deps.Risk.Breaker().State(),
		Regimes:       regimes,
		OpenPositions: len(e.deps.Tracker.Open()),
	}
}

// RunCycle executes one evaluation cycle. It returns an error only on halt
// conditions; routine failures are logged and surfaced as risk events.
func (e *Engine) RunCycle(ctx context.Context) error {
	e.mu.Lock()
	if e.halted {
		err := e.haltErr
		e.mu.Unlock()
		return err
	}
	e.cycle++
	e.lastCycleAt = time.Now().UTC()
	cycle := e.cycle
	e.mu.Unlock()

	log := e.logger.With(zap.Int64("cycle", cycle))

	// Hard overrides come before anything else.
	if stopped, reason := e.control.Stopped(); stopped {
		return e.runStopped(ctx, log, reason)
	}
	if e.control.Paused() {
		log.Info("paused, skipping cycle")
		e.deps.Bus.Publish(events.New(events.TypeCycle, e.Status()))
		return nil
	}

	// Fills from orders whose submission timed out last cycle show up here.
	e.reconcileFills(ctx, log)

	e.refreshSnapshots(ctx, log)
	e.deps.Tracker.MarkToMarket(e.structurePrice)

	e.manageExits(ctx, log)
	e.enterPositions(ctx, log)

	e.reconcileFills(ctx, log)
	e.deps.Tracker.MarkToMarket(e.structurePrice)

	if err := e.deps.Tracker.CheckLedger(); err != nil {
		return e.halt(ctx, log, err)
	}

	e.drainRiskEvents(ctx, log)
	e.publishPerformance(ctx, log)
	e.deps.Bus.Publish(events.New(events.TypeCycle, e.Status()))

	return nil
}

// runStopped honors an emergency stop: no signal generation, optional
// flatten, fills still reconciled so the book stays true.
func (e *Engine) runStopped(ctx context.Context, log *zap.Logger, reason string) error {
	log.Warn("emergency stop active", zap.String("reason", reason))

	e.reconcileFills(ctx, log)
	e.refreshSnapshots(ctx, log)
	e.deps.Tracker.MarkToMarket(e.structurePrice)

	if e.config.FlattenOnStop {
		e.flatten(ctx, log)
		e.reconcileFills(ctx, log)
	}

	if err := e.deps.Tracker.CheckLedger(); err != nil {
		return e.halt(ctx, log, err)
	}
	e.deps.Bus.Publish(events.New(events.TypeEmergency, reason))
	return nil
}

// refreshSnapshots pulls market data and classifies the regime per symbol.
// A symbol whose data is unavailable is skipped for the cycle.
func (e *Engine) refreshSnapshots(ctx context.Context, log *zap.Logger) {
	for symbol := range e.config.Instruments {
		snap, err := e.deps.Market.GetSnapshot(ctx, symbol)
		if err != nil {
			if errors.Is(err, types.ErrDataUnavailable) {
				log.Warn("market data unavailable, skipping symbol",
					zap.String("symbol", symbol), zap.Error(err))
				delete(e.snapshots, symbol)
				continue
			}
			log.Error("snapshot failed", zap.String("symbol", symbol), zap.Error(err))
			delete(e.snapshots, symbol)
			continue
		}

		state := e.deps.Classifiers[symbol].Classify(snap)
		e.snapshots[symbol] = snap
		e.mu.Lock()
		e.regimes[symbol] = state
		e.mu.Unlock()
		e.deps.Bus.Publish(events.New(events.TypeRegime, map[string]any{
			"symbol": symbol,
			"state":  state,
		}))

		log.Info("regime classified",
			zap.String("symbol", symbol),
			zap.String("regime", string(state.Regime)),
			zap.Float64("confidence", state.Confidence))
	}
}

// structurePrice values an open position's structure under the current
// snapshot. Positions on symbols without fresh data keep their last mark.
func (e *Engine) structurePrice(symbol, strategyName string) (decimal.Decimal, bool) {
	snap, ok := e.snapshots[symbol]
	if !ok {
		return decimal.Zero, false
	}
	inst, ok := e.config.Instruments[symbol]
	if !ok {
		return decimal.Zero, false
	}
	premium, _, ok := e.deps.Catalog.Price(strategyName, snap, inst)
	return premium, ok
}

// manageExits closes positions that hit their strategy's profit target or
// stop, both expressed as fractions of the entry premium.
func (e *Engine) manageExits(ctx context.Context, log *zap.Logger) {
	for _, pos := range e.deps.Tracker.Open() {
		if stopped, _ := e.control.Stopped(); stopped {
			return
		}
		def, ok := e.deps.Catalog.Get(pos.Strategy)
		if !ok {
			continue
		}
		current, ok := e.structurePrice(pos.Symbol, pos.Strategy)
		if !ok || !pos.AvgEntryPrice.IsPositive() {
			continue
		}

		// Premium captured (short) or gained (long), per share.
		var pnlPerShare decimal.Decimal
		if pos.Quantity < 0 {
			pnlPerShare = pos.AvgEntryPrice.Sub(current)
		} else {
			pnlPerShare = current.Sub(pos.AvgEntryPrice)
		}
		gainFrac, _ := pnlPerShare.Div(pos.AvgEntryPrice).Float64()

		var reason string
		switch {
		case gainFrac >= def.TargetProfit:
			reason = "target"
		case gainFrac <= -def.StopLoss:
			reason = "stop"
		default:
			continue
		}

		log.Info("closing position",
			zap.String("symbol", pos.Symbol),
			zap.String("strategy", pos.Strategy),
			zap.String("reason", reason),
			zap.Float64("gainFrac", gainFrac))

		order := types.Order{
			ID:        uuid.NewString(),
			DedupKey:  uuid.NewString(),
			Symbol:    pos.Symbol,
			Strategy:  pos.Strategy,
			Bucket:    pos.Bucket,
			Type:      types.OrderTypeMarket,
			Quantity:  -pos.Quantity,
			Price:     current,
			Status:    types.StatusPending,
			CreatedAt: time.Now().UTC(),
		}
		e.submit(ctx, log, order)
	}
}

// enterPositions runs selection and risk gating per symbol and submits the
// accepted signals.
func (e *Engine) enterPositions(ctx context.Context, log *zap.Logger) {
	acct := risk.AccountState{
		OpenPositions:  e.deps.Tracker.Open(),
		RealizedPnL:    e.deps.Tracker.RealizedPnL(),
		UnrealizedPnL:  e.deps.Tracker.UnrealizedPnL(),
		BucketExposure: e.bucketRisk(),
	}

	for symbol, snap := range e.snapshots {
		if stopped, _ := e.control.Stopped(); stopped {
			// A fatal execution error earlier in the cycle stops entries
			// immediately.
			return
		}
		state, ok := e.regimes[symbol]
		if !ok {
			continue
		}
		inst := e.config.Instruments[symbol]

		signals := e.deps.Selector.Select(state, snap, inst, e.deps.Tracker.OpenCount)
		for _, sig := range signals {
			if stopped, _ := e.control.Stopped(); stopped {
				return
			}
			e.deps.Bus.Publish(events.New(events.TypeSignal, sig))
			if err := e.deps.Store.AppendSignal(ctx, sig); err != nil {
				log.Warn("persist signal failed", zap.Error(err))
			}

			decision := e.deps.Risk.ValidateAndSize(sig, acct, inst)
			e.deps.Bus.Publish(events.New(events.TypeDecision, DecisionEvent{
				Signal:   sig,
				Decision: decision,
			}))
			if !decision.Accepted {
				// Expected business outcome, not an error.
				log.Info("signal rejected",
					zap.String("strategy", sig.Strategy),
					zap.String("symbol", sig.Symbol),
					zap.String("reason", decision.Reason))
				continue
			}

			// Credit structures are held short; debit structures long.
			quantity := decision.Quantity
			if sig.NetPremium.IsPositive() {
				quantity = -quantity
			}
			order := types.Order{
				ID:        uuid.NewString(),
				DedupKey:  sig.ID,
				Symbol:    sig.Symbol,
				Strategy:  sig.Strategy,
				Bucket:    sig.Bucket,
				Type:      types.OrderTypeMarket,
				Quantity:  quantity,
				Price:     sig.NetPremium.Abs(),
				Status:    types.StatusPending,
				CreatedAt: time.Now().UTC(),
			}
			if e.submit(ctx, log, order) {
				// Refresh the account view so later signals in this cycle
				// see the new exposure.
				acct.OpenPositions = append(acct.OpenPositions, types.Position{
					Symbol:        order.Symbol,
					Strategy:      order.Strategy,
					Bucket:        order.Bucket,
					Quantity:      order.Quantity,
					AvgEntryPrice: order.Price,
					Status:        types.StatusOpen,
				})
				risked := sig.EntryPrice.Mul(decimal.NewFromInt(int64(decision.Quantity)))
				acct.BucketExposure[sig.Bucket] = acct.BucketExposure[sig.Bucket].Add(risked)
			}
		}
	}
}

// bucketRisk aggregates open capital at risk per allocation bucket. Each
// position's structure is re-priced for its max loss under the current
// snapshot; the fill premium is the fallback when no data is available,
// even though it understates credit structures.
func (e *Engine) bucketRisk() map[types.AllocationBucket]decimal.Decimal {
	out := make(map[types.AllocationBucket]decimal.Decimal)
	for _, pos := range e.deps.Tracker.Open() {
		perShare := pos.AvgEntryPrice
		if snap, ok := e.snapshots[pos.Symbol]; ok {
			if inst, found := e.config.Instruments[pos.Symbol]; found {
				if atRisk, priced := e.deps.Catalog.RiskPerShare(pos.Strategy, snap, inst); priced {
					perShare = atRisk
				}
			}
		}
		qty := pos.Quantity
		if qty < 0 {
			qty = -qty
		}
		out[pos.Bucket] = out[pos.Bucket].Add(perShare.Mul(decimal.NewFromInt(int64(qty))))
	}
	return out
}

// submit places an order through the circuit breaker with bounded retry.
// Only transient execution errors are retried; the final transient failure
// feeds the breaker. Fatal errors trigger an emergency stop.
func (e *Engine) submit(ctx context.Context, log *zap.Logger, order types.Order) bool {
	breaker := e.deps.Risk.Breaker()
	if !breaker.Allow() {
		e.deps.Risk.Emit(types.RiskEvent{
			Type:      types.RiskEventCircuitOpen,
			Severity:  types.SeverityCritical,
			Metric:    "circuit_breaker",
			Message:   fmt.Sprintf("execution suspended, order for %s/%s rejected", order.Symbol, order.Strategy),
			Timestamp: time.Now().UTC(),
		})
		log.Warn("circuit breaker rejecting order",
			zap.String("symbol", order.Symbol),
			zap.String("strategy", order.Strategy))
		return false
	}

	var lastErr error
	for attempt := 0; attempt < e.config.MaxRetries; attempt++ {
		if attempt > 0 && e.config.RetryBackoff > 0 {
			// Bounded exponential backoff, tracked as plain attempt state.
			time.Sleep(e.config.RetryBackoff << (attempt - 1))
		}

		id, err := e.deps.Executor.PlaceOrder(ctx, order)
		if err == nil {
			breaker.RecordSuccess()
			order.Status = types.StatusOpen
			e.deps.Bus.Publish(events.New(events.TypeOrder, order))
			log.Info("order placed",
				zap.String("orderId", id),
				zap.String("symbol", order.Symbol),
				zap.String("strategy", order.Strategy),
				zap.Int("quantity", order.Quantity))
			return true
		}
		lastErr = err
		if !errors.Is(err, types.ErrExecutionTransient) {
			break
		}
		log.Warn("transient execution failure",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	if errors.Is(lastErr, types.ErrExecutionTransient) {
		breaker.RecordFailure()
		log.Error("order failed after retries", zap.Error(lastErr))
		return false
	}

	// Fatal execution error: emergency stop for the session. The breaker
	// still gets the outcome, otherwise an admitted half-open probe would
	// never release its slot.
	breaker.RecordFailure()
	e.control.EmergencyStop(fmt.Sprintf("fatal execution error: %v", lastErr))
	e.deps.Risk.Emit(types.RiskEvent{
		Type:      types.RiskEventEmergencyStop,
		Severity:  types.SeverityEmergency,
		Metric:    "execution",
		Message:   fmt.Sprintf("fatal execution error: %v", lastErr),
		Timestamp: time.Now().UTC(),
	})
	if err := e.deps.Notifier.EmergencyStop(ctx, lastErr.Error()); err != nil {
		log.Warn("emergency stop notification failed", zap.Error(err))
	}
	log.Error("fatal execution error, emergency stop", zap.Error(lastErr))
	return false
}

// flatten submits closing orders for every open position.
func (e *Engine) flatten(ctx context.Context, log *zap.Logger) {
	for _, pos := range e.deps.Tracker.Open() {
		price := pos.CurrentPrice
		if current, ok := e.structurePrice(pos.Symbol, pos.Strategy); ok {
			price = current
		}
		e.submit(ctx, log, types.Order{
			ID:        uuid.NewString(),
			DedupKey:  uuid.NewString(),
			Symbol:    pos.Symbol,
			Strategy:  pos.Strategy,
			Bucket:    pos.Bucket,
			Type:      types.OrderTypeMarket,
			Quantity:  -pos.Quantity,
			Price:     price,
			Status:    types.StatusPending,
			CreatedAt: time.Now().UTC(),
		})
	}
}

// reconcileFills applies broker fills the tracker has not seen yet. Timed
// out submissions that actually filled are picked up here rather than
// assumed dead.
func (e *Engine) reconcileFills(ctx context.Context, log *zap.Logger) {
	since := e.lastReconcile.Add(-time.Minute)
	fills, err := e.deps.Executor.Fills(ctx, since)
	if err != nil {
		log.Error("fill reconciliation failed", zap.Error(err))
		return
	}
	e.lastReconcile = time.Now().UTC()

	for _, f := range fills {
		if e.applied[f.OrderID] {
			continue
		}
		e.applied[f.OrderID] = true

		trade := e.deps.Tracker.ApplyFill(position.Fill{
			Symbol:   f.Symbol,
			Strategy: f.Strategy,
			Bucket:   f.Bucket,
			Quantity: f.Quantity,
			Price:    f.Price,
			Time:     f.Time,
		})
		if trade == nil {
			continue
		}

		e.deps.Risk.RecordTrade(*trade)
		e.deps.Feedback.Record(trade.Strategy, trade.RealizedPnL.IsPositive())
		e.deps.Bus.Publish(events.New(events.TypeTrade, *trade))
		if err := e.deps.Store.AppendTrade(ctx, *trade); err != nil {
			log.Warn("persist trade failed", zap.Error(err))
		}
		if err := e.deps.Notifier.TradeExecuted(ctx, *trade); err != nil {
			log.Warn("trade notification failed", zap.Error(err))
		}
	}
}

// drainRiskEvents forwards pending risk events to persistence, the bus and
// the notifier.
func (e *Engine) drainRiskEvents(ctx context.Context, log *zap.Logger) {
	for {
		select {
		case event := <-e.deps.Risk.Events():
			e.deps.Bus.Publish(events.New(events.TypeRisk, event))
			if err := e.deps.Store.AppendRiskEvent(ctx, event); err != nil {
				log.Warn("persist risk event failed", zap.Error(err))
			}
			if err := e.deps.Notifier.RiskRaised(ctx, event); err != nil {
				log.Warn("risk notification failed", zap.Error(err))
			}
		default:
			return
		}
	}
}

// publishPerformance recomputes the session's attribution and journals it.
func (e *Engine) publishPerformance(ctx context.Context, log *zap.Logger) {
	now := time.Now().UTC()
	snap := e.deps.Attributor.Compute(types.PeriodDaily,
		e.sessionStart, now.Add(time.Second),
		e.deps.Tracker.Trades(), e.deps.Tracker.UnrealizedPnL())

	e.deps.Bus.Publish(events.New(events.TypePerformance, snap))
	if err := e.deps.Store.AppendPerformance(ctx, snap); err != nil {
		log.Warn("persist performance failed", zap.Error(err))
	}
}

// halt stops the engine permanently; the ledger needs external
// reconciliation before restart.
func (e *Engine) halt(ctx context.Context, log *zap.Logger, err error) error {
	haltErr := fmt.Errorf("engine halted: %w", err)
	e.mu.Lock()
	e.halted = true
	e.haltErr = haltErr
	e.mu.Unlock()

	e.deps.Risk.Emit(types.RiskEvent{
		Type:      types.RiskEventEmergencyStop,
		Severity:  types.SeverityEmergency,
		Metric:    "ledger",
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	})
	e.drainRiskEvents(ctx, log)
	if nerr := e.deps.Notifier.EmergencyStop(ctx, err.Error()); nerr != nil {
		log.Warn("halt notification failed", zap.Error(nerr))
	}
	log.Error("halting", zap.Error(err))
	return haltErr
}
