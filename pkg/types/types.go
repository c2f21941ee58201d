// Package types provides shared type definitions for the options engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OptionType distinguishes calls and puts. Values follow the NSE
// option-chain convention (CE/PE).
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// LegSide represents buying or selling a leg.
type LegSide string

const (
	LegBuy  LegSide = "buy"
	LegSell LegSide = "sell"
)

// AllocationBucket is the capital bucket a strategy draws from.
type AllocationBucket string

const (
	BucketConservative AllocationBucket = "conservative"
	BucketAggressive   AllocationBucket = "aggressive"
)

// OrderType represents the type of order sent to the executor.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus represents the lifecycle state of an order or position.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusOpen      OrderStatus = "open"
	StatusClosed    OrderStatus = "closed"
	StatusCancelled OrderStatus = "cancelled"
)

// Regime is a discrete classification of current market behavior.
type Regime string

const (
	RegimeTrendingBull      Regime = "trending_bull"
	RegimeTrendingBear      Regime = "trending_bear"
	RegimeRangeBoundLowVol  Regime = "range_bound_low_vol"
	RegimeRangeBoundHighVol Regime = "range_bound_high_vol"
	RegimeBreakoutPending   Regime = "breakout_pending"
	RegimeHighVolEvent      Regime = "high_vol_event"
	RegimeLowVolCompression Regime = "low_vol_compression"
	RegimeTransitional      Regime = "transitional"
)

// Regimes lists every regime tag. The set is closed; classification and
// the strategy fit table are exhaustive over it.
var Regimes = []Regime{
	RegimeTrendingBull,
	RegimeTrendingBear,
	RegimeRangeBoundLowVol,
	RegimeRangeBoundHighVol,
	RegimeBreakoutPending,
	RegimeHighVolEvent,
	RegimeLowVolCompression,
	RegimeTransitional,
}

// RegimeState is a classified regime with its confidence. Derived from the
// latest snapshot every cycle, never persisted as authoritative state.
type RegimeState struct {
	Regime     Regime    `json:"regime"`
	Confidence float64   `json:"confidence"` // [0,1]
	ComputedAt time.Time `json:"computedAt"`
}

// Instrument describes a tradeable index options underlying.
type Instrument struct {
	Symbol         string          `json:"symbol"`
	LotSize        int             `json:"lotSize"`
	StrikeInterval decimal.Decimal `json:"strikeInterval"`
}

// MarketSnapshot is an immutable view of one underlying at a point in time.
// Produced once per evaluation cycle by the snapshot builder.
type MarketSnapshot struct {
	Symbol        string          `json:"symbol"`
	Spot          decimal.Decimal `json:"spot"`
	IV            float64         `json:"iv"`            // current implied vol, annualized %
	IVRank        float64         `json:"ivRank"`        // percentile of IV vs trailing window, [0,100]
	TrendStrength float64         `json:"trendStrength"` // [-1,1]
	RealizedVol   float64         `json:"realizedVol"`   // annualized
	Volume        int64           `json:"volume"`
	RangePosition float64         `json:"rangePosition"` // spot's position within the recent range, [0,1]
	Timestamp     time.Time       `json:"timestamp"`
}

// OptionLeg is a single strike/type/side component of a strategy structure.
type OptionLeg struct {
	Strike   decimal.Decimal `json:"strike"`
	Type     OptionType      `json:"type"`
	Side     LegSide         `json:"side"`
	Quantity int             `json:"quantity"` // lots
	Premium  decimal.Decimal `json:"premium"`  // estimated per-share premium
}

// Signal is a proposed trade produced by the selector. Transient: it is
// either accepted by the risk manager (becoming an order) or discarded.
type Signal struct {
	ID           string           `json:"id"`
	Strategy     string           `json:"strategy"`
	Bucket       AllocationBucket `json:"bucket"`
	Symbol       string           `json:"symbol"`
	Legs         []OptionLeg      `json:"legs"`
	Confidence   float64          `json:"confidence"`   // regime confidence x strategy fit
	SuggestedQty int              `json:"suggestedQty"` // lots, pre-risk-sizing
	// EntryPrice is the per-share capital at risk for one unit of the
	// structure (max loss for defined-risk spreads, net debit for long
	// premium). Risk sizing computes notional from it.
	EntryPrice decimal.Decimal `json:"entryPrice"`
	NetPremium decimal.Decimal `json:"netPremium"` // per share, positive = credit
	MaxProfit  decimal.Decimal `json:"maxProfit"`  // per share
	MaxLoss    decimal.Decimal `json:"maxLoss"`    // per share
	CreatedAt  time.Time       `json:"createdAt"`
}

// Order is a risk-approved instruction handed to the executor.
type Order struct {
	ID        string           `json:"id"`
	DedupKey  string           `json:"dedupKey"`
	Symbol    string           `json:"symbol"`
	Strategy  string           `json:"strategy"`
	Bucket    AllocationBucket `json:"bucket"`
	Type      OrderType        `json:"type"`
	Quantity  int              `json:"quantity"` // signed units
	Price     decimal.Decimal  `json:"price"`
	Status    OrderStatus      `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Position is live exposure for one symbol+strategy pair. Owned exclusively
// by the position tracker and mutated only through its operations.
type Position struct {
	Symbol        string           `json:"symbol"`
	Strategy      string           `json:"strategy"`
	Bucket        AllocationBucket `json:"bucket"`
	Quantity      int              `json:"quantity"` // signed units
	AvgEntryPrice decimal.Decimal  `json:"avgEntryPrice"`
	CurrentPrice  decimal.Decimal  `json:"currentPrice"`
	UnrealizedPnL decimal.Decimal  `json:"unrealizedPnl"`
	Status        OrderStatus      `json:"status"`
	OpenedAt      time.Time        `json:"openedAt"`
}

// Notional returns the capital committed to the position.
func (p *Position) Notional() decimal.Decimal {
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}
	return p.AvgEntryPrice.Mul(decimal.NewFromInt(int64(qty)))
}

// Trade is a closed-position record. Immutable once recorded.
type Trade struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Strategy    string           `json:"strategy"`
	Bucket      AllocationBucket `json:"bucket"`
	Quantity    int              `json:"quantity"`
	EntryPrice  decimal.Decimal  `json:"entryPrice"`
	ExitPrice   decimal.Decimal  `json:"exitPrice"`
	EntryTime   time.Time        `json:"entryTime"`
	ExitTime    time.Time        `json:"exitTime"`
	RealizedPnL decimal.Decimal  `json:"realizedPnl"`
	Commission  decimal.Decimal  `json:"commission"`
}

// RiskEventType categorizes risk events.
type RiskEventType string

const (
	RiskEventLimitExceeded RiskEventType = "limit_exceeded"
	RiskEventCircuitOpen   RiskEventType = "circuit_open"
	RiskEventEmergencyStop RiskEventType = "emergency_stop"
)

// RiskSeverity is the severity of a risk event.
type RiskSeverity string

const (
	SeverityWarning   RiskSeverity = "warning"
	SeverityCritical  RiskSeverity = "critical"
	SeverityEmergency RiskSeverity = "emergency"
)

// RiskEvent records a limit breach, breaker transition or emergency stop.
type RiskEvent struct {
	Type      RiskEventType `json:"type"`
	Severity  RiskSeverity  `json:"severity"`
	Metric    string        `json:"metric"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	Resolved  bool          `json:"resolved"`
}

// Period is a performance attribution window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// PerformanceSnapshot holds rolling metrics recomputed idempotently from
// the trade history for its period.
type PerformanceSnapshot struct {
	Period        Period          `json:"period"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	TotalTrades   int             `json:"totalTrades"`
	WinningTrades int             `json:"winningTrades"`
	LosingTrades  int             `json:"losingTrades"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	TotalPnL      decimal.Decimal `json:"totalPnl"`
	WinRate       float64         `json:"winRate"`
	ProfitFactor  float64         `json:"profitFactor"` // +Inf when no losses and at least one win
	SharpeRatio   float64         `json:"sharpeRatio"`
	MaxDrawdown   float64         `json:"maxDrawdown"` // fraction of peak capital, <= 0
	GeneratedAt   time.Time       `json:"generatedAt"`
}
