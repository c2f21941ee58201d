// Package risk validates signals against account limits and sizes the
// ones that pass. All checks short-circuit on the first failure and every
// decision carries the reason, so rejections are auditable business
// outcomes rather than errors.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config contains the account risk limits.
type Config struct {
	Capital          decimal.Decimal `json:"capital"`
	MaxDailyLossPct  float64         `json:"maxDailyLossPct"`  // session lockout threshold
	MaxOpenPositions int             `json:"maxOpenPositions"` // across both buckets
	MaxPositionPct   float64         `json:"maxPositionPct"`   // per-position notional cap
	ConservativePct  float64         `json:"conservativePct"`  // conservative bucket share
	AggressivePct    float64         `json:"aggressivePct"`    // aggressive bucket share
	KellyWindow      int             `json:"kellyWindow"`      // trailing trades for Kelly stats
	Breaker          BreakerConfig   `json:"breaker"`
}

// DefaultConfig returns the standard account limits.
func DefaultConfig() Config {
	return Config{
		Capital:          decimal.NewFromInt(1000000),
		MaxDailyLossPct:  0.03,
		MaxOpenPositions: 5,
		MaxPositionPct:   0.10,
		ConservativePct:  0.60,
		AggressivePct:    0.40,
		KellyWindow:      100,
		Breaker:          DefaultBreakerConfig(),
	}
}

// AccountState is the session-scoped account view passed into each
// validation. Explicit state, not ambient, so multiple accounts or
// backtest runs can evaluate independently.
type AccountState struct {
	OpenPositions []types.Position
	RealizedPnL   decimal.Decimal // session realized
	UnrealizedPnL decimal.Decimal // from the latest mark-to-market

	// BucketExposure is the open capital at risk per bucket, on the same
	// max-loss basis as Signal.EntryPrice. When nil, the premium notional
	// of OpenPositions is used instead, which understates credit
	// structures.
	BucketExposure map[types.AllocationBucket]decimal.Decimal
}

// Decision is the outcome of validate-and-size.
type Decision struct {
	Accepted bool   `json:"accepted"`
	Quantity int    `json:"quantity"` // units (lots x lot size), 0 when rejected
	Reason   string `json:"reason,omitempty"`
}

func rejected(reason string) Decision {
	return Decision{Reason: reason}
}

// Manager enforces the account risk limits. It owns the execution circuit
// breaker and the trailing trade stats that feed Kelly sizing. Mutations
// serialize on one lock; within a cycle all calls are sequential anyway.
type Manager struct {
	logger *zap.Logger
	config Config

	mu     sync.Mutex
	locked bool // session lockout after the daily loss limit
	stats  *TradeStats

	breaker *Breaker
	events  chan types.RiskEvent
}

// NewManager creates a risk manager with the given limits.
func NewManager(logger *zap.Logger, config Config) *Manager {
	return &Manager{
		logger:  logger.Named("risk"),
		config:  config,
		stats:   NewTradeStats(config.KellyWindow),
		breaker: NewBreaker(config.Breaker),
		events:  make(chan types.RiskEvent, 64),
	}
}

// ValidateAndSize runs the ordered limit checks against a signal and, if
// they pass, returns the Kelly-sized quantity in units. Checks short-circuit
// on the first failure.
func (m *Manager) ValidateAndSize(sig types.Signal, acct AccountState, inst types.Instrument) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 1. Daily loss lockout: realized plus unrealized against capital.
	sessionLoss := acct.RealizedPnL.Add(acct.UnrealizedPnL)
	limit := m.config.Capital.Mul(decimal.NewFromFloat(m.config.MaxDailyLossPct)).Neg()
	if m.locked || sessionLoss.LessThanOrEqual(limit) {
		if !m.locked {
			m.locked = true
			lossF, _ := sessionLoss.Float64()
			limitF, _ := limit.Float64()
			m.emit(types.RiskEvent{
				Type:      types.RiskEventLimitExceeded,
				Severity:  types.SeverityCritical,
				Metric:    "daily_loss",
				Value:     lossF,
				Threshold: limitF,
				Message:   "daily loss limit reached, trading locked for the session",
				Timestamp: time.Now().UTC(),
			})
			m.logger.Error("daily loss limit reached, locking session",
				zap.String("sessionPnL", sessionLoss.String()),
				zap.String("limit", limit.String()))
		}
		return rejected("daily loss limit reached")
	}

	// 2. Open position count.
	if len(acct.OpenPositions) >= m.config.MaxOpenPositions {
		return rejected(fmt.Sprintf("max open positions reached (%d)", m.config.MaxOpenPositions))
	}

	// 3. Size with bounded Kelly, then cap at the per-position fraction.
	// Down-size rather than reject; reject only when the size rounds to
	// zero lots.
	if !sig.EntryPrice.IsPositive() {
		return rejected("signal has no measurable capital at risk")
	}
	if inst.LotSize <= 0 {
		return rejected("instrument has no lot size")
	}

	fraction := math.Min(m.config.MaxPositionPct, m.stats.KellyFraction())
	if fraction <= 0 {
		return rejected("no positive edge in trailing trade stats")
	}

	budget := m.config.Capital.Mul(decimal.NewFromFloat(fraction))
	perLot := sig.EntryPrice.Mul(decimal.NewFromInt(int64(inst.LotSize)))
	lots := budget.Div(perLot).IntPart()
	if lots <= 0 {
		return rejected("sized quantity rounds to zero lots")
	}
	quantity := int(lots) * inst.LotSize
	notional := sig.EntryPrice.Mul(decimal.NewFromInt(int64(quantity)))

	// 4. Allocation bucket share, candidate and open exposure both on a
	// capital-at-risk basis.
	share := m.config.ConservativePct
	if sig.Bucket == types.BucketAggressive {
		share = m.config.AggressivePct
	}
	bucketCap := m.config.Capital.Mul(decimal.NewFromFloat(share))
	bucketExposure := notional
	if acct.BucketExposure != nil {
		bucketExposure = bucketExposure.Add(acct.BucketExposure[sig.Bucket])
	} else {
		for i := range acct.OpenPositions {
			if acct.OpenPositions[i].Bucket == sig.Bucket {
				bucketExposure = bucketExposure.Add(acct.OpenPositions[i].Notional())
			}
		}
	}
	if bucketExposure.GreaterThan(bucketCap) {
		return rejected(fmt.Sprintf("%s bucket allocation exceeded", sig.Bucket))
	}

	// 5. Correlation: same underlying counts as fully correlated without a
	// correlation matrix.
	for i := range acct.OpenPositions {
		if acct.OpenPositions[i].Symbol == sig.Symbol && acct.OpenPositions[i].Strategy == sig.Strategy {
			return rejected("correlated position already open for symbol and strategy")
		}
	}

	m.logger.Debug("signal accepted",
		zap.String("strategy", sig.Strategy),
		zap.Int("quantity", quantity),
		zap.String("notional", notional.String()),
		zap.Float64("fraction", fraction))

	return Decision{Accepted: true, Quantity: quantity}
}

// RecordTrade feeds a closed trade into the Kelly stats.
func (m *Manager) RecordTrade(trade types.Trade) {
	pnl, _ := trade.RealizedPnL.Float64()
	m.stats.Record(pnl)
}

// Locked reports whether the session lockout is active.
func (m *Manager) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// ResetSession clears the lockout at the start of a new trading day.
func (m *Manager) ResetSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = false
	m.logger.Info("session risk state reset")
}

// Breaker exposes the execution circuit breaker.
func (m *Manager) Breaker() *Breaker {
	return m.breaker
}

// Stats exposes the trailing trade statistics.
func (m *Manager) Stats() *TradeStats {
	return m.stats
}

// Config returns the configured limits.
func (m *Manager) Config() Config {
	return m.config
}

// Events returns the risk event stream.
func (m *Manager) Events() <-chan types.RiskEvent {
	return m.events
}

// Emit publishes a risk event, dropping it if no consumer keeps up.
func (m *Manager) Emit(event types.RiskEvent) {
	m.emit(event)
}

func (m *Manager) emit(event types.RiskEvent) {
	select {
	case m.events <- event:
	default:
		m.logger.Warn("risk event channel full, dropping event",
			zap.String("type", string(event.Type)))
	}
}
