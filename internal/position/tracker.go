// Package position owns live position state: fills, weighted-average entry
// prices, realized trades and mark-to-market. All mutations go through the
// tracker; a Trade is immutable once recorded.
package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config sets trading frictions applied by the tracker.
type Config struct {
	// CommissionPerUnit is charged on the closed quantity when a trade is
	// realized.
	CommissionPerUnit decimal.Decimal `json:"commissionPerUnit"`
	// SlippagePct is the mark-to-market haircut applied against the
	// holder's favorable side, so paper performance is not overstated.
	SlippagePct float64 `json:"slippagePct"`
}

// DefaultConfig returns standard friction assumptions for index options.
func DefaultConfig() Config {
	return Config{
		CommissionPerUnit: decimal.NewFromFloat(0.05),
		SlippagePct:       0.0005,
	}
}

// Fill is an executed quantity at a price for a symbol+strategy pair.
// Quantity is signed: positive opens/extends, negative reduces/closes.
type Fill struct {
	Symbol   string
	Strategy string
	Bucket   types.AllocationBucket
	Quantity int
	Price    decimal.Decimal
	Time     time.Time
}

type key struct {
	symbol   string
	strategy string
}

// Tracker maintains open positions, the realized trade log and a fill
// ledger used to detect position/ledger drift.
type Tracker struct {
	logger *zap.Logger
	config Config

	mu        sync.RWMutex
	positions map[key]*types.Position
	trades    []types.Trade
	ledger    map[key]int // running sum of signed fill quantities
}

// NewTracker creates an empty tracker.
func NewTracker(logger *zap.Logger, config Config) *Tracker {
	return &Tracker{
		logger:    logger.Named("positions"),
		config:    config,
		positions: make(map[key]*types.Position),
		ledger:    make(map[key]int),
	}
}

// ApplyFill applies a signed fill. Opening or extending recomputes the
// weighted-average entry price; reducing realizes P&L on the closed
// quantity; reaching zero closes the position and returns the Trade.
func (t *Tracker) ApplyFill(fill Fill) *types.Trade {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fill.Quantity == 0 {
		return nil
	}
	k := key{symbol: fill.Symbol, strategy: fill.Strategy}
	t.ledger[k] += fill.Quantity

	pos, ok := t.positions[k]
	if !ok {
		t.positions[k] = &types.Position{
			Symbol:        fill.Symbol,
			Strategy:      fill.Strategy,
			Bucket:        fill.Bucket,
			Quantity:      fill.Quantity,
			AvgEntryPrice: fill.Price,
			CurrentPrice:  fill.Price,
			Status:        types.StatusOpen,
			OpenedAt:      fill.Time,
		}
		return nil
	}

	sameDirection := (pos.Quantity > 0) == (fill.Quantity > 0)
	if sameDirection {
		// Weighted-average entry across the combined quantity.
		oldQty := decimal.NewFromInt(int64(pos.Quantity))
		fillQty := decimal.NewFromInt(int64(fill.Quantity))
		total := oldQty.Add(fillQty)
		pos.AvgEntryPrice = oldQty.Mul(pos.AvgEntryPrice).
			Add(fillQty.Mul(fill.Price)).
			Div(total)
		pos.Quantity += fill.Quantity
		return nil
	}

	closed := min(abs(pos.Quantity), abs(fill.Quantity))
	trade := t.realizeLocked(pos, closed, fill.Price, fill.Time)

	remainder := pos.Quantity + fill.Quantity
	switch {
	case remainder == 0:
		delete(t.positions, k)
	case (remainder > 0) == (pos.Quantity > 0):
		// Partial close; entry price unchanged.
		pos.Quantity = remainder
	default:
		// The fill flipped the position; the excess opens fresh exposure
		// at the fill price.
		pos.Quantity = remainder
		pos.AvgEntryPrice = fill.Price
		pos.OpenedAt = fill.Time
	}

	return trade
}

// realizeLocked records a Trade for a closed quantity of pos.
func (t *Tracker) realizeLocked(pos *types.Position, closedQty int, exitPrice decimal.Decimal, exitTime time.Time) *types.Trade {
	qty := decimal.NewFromInt(int64(closedQty))
	commission := t.config.CommissionPerUnit.Mul(qty)

	var gross decimal.Decimal
	if pos.Quantity > 0 {
		gross = exitPrice.Sub(pos.AvgEntryPrice).Mul(qty)
	} else {
		gross = pos.AvgEntryPrice.Sub(exitPrice).Mul(qty)
	}

	trade := types.Trade{
		ID:          uuid.NewString(),
		Symbol:      pos.Symbol,
		Strategy:    pos.Strategy,
		Bucket:      pos.Bucket,
		Quantity:    closedQty,
		EntryPrice:  pos.AvgEntryPrice,
		ExitPrice:   exitPrice,
		EntryTime:   pos.OpenedAt,
		ExitTime:    exitTime,
		RealizedPnL: gross.Sub(commission),
		Commission:  commission,
	}
	t.trades = append(t.trades, trade)

	t.logger.Info("trade realized",
		zap.String("symbol", trade.Symbol),
		zap.String("strategy", trade.Strategy),
		zap.Int("quantity", trade.Quantity),
		zap.String("pnl", trade.RealizedPnL.String()))

	return &trade
}

// PriceFunc supplies the current per-share price of the structure held by
// a symbol+strategy position. Returning false leaves the previous mark.
type PriceFunc func(symbol, strategy string) (decimal.Decimal, bool)

// MarkToMarket revalues open positions at current prices with the slippage
// haircut against the holder's favorable side, and returns total unrealized
// P&L. Positions the price source cannot value keep their previous mark.
func (t *Tracker) MarkToMarket(price PriceFunc) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	slip := decimal.NewFromFloat(t.config.SlippagePct)
	total := decimal.Zero

	for _, pos := range t.positions {
		current, ok := price(pos.Symbol, pos.Strategy)
		if !ok {
			total = total.Add(pos.UnrealizedPnL)
			continue
		}

		var effective decimal.Decimal
		qty := decimal.NewFromInt(int64(abs(pos.Quantity)))
		if pos.Quantity > 0 {
			// A long exits by selling: haircut the bid.
			effective = current.Mul(decimal.NewFromInt(1).Sub(slip))
			pos.UnrealizedPnL = effective.Sub(pos.AvgEntryPrice).Mul(qty)
		} else {
			// A short exits by buying back: haircut the ask.
			effective = current.Mul(decimal.NewFromInt(1).Add(slip))
			pos.UnrealizedPnL = pos.AvgEntryPrice.Sub(effective).Mul(qty)
		}
		pos.CurrentPrice = current
		total = total.Add(pos.UnrealizedPnL)
	}

	return total
}

// CheckLedger verifies that every open position's quantity matches the
// running sum of its fills. A mismatch is an invariant violation: it is
// reported, never auto-corrected.
func (t *Tracker) CheckLedger() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for k, sum := range t.ledger {
		var have int
		if pos, ok := t.positions[k]; ok {
			have = pos.Quantity
		}
		if have != sum {
			return fmt.Errorf("%s/%s: position quantity %d, ledger sum %d: %w",
				k.symbol, k.strategy, have, sum, types.ErrLedgerMismatch)
		}
	}
	for k, pos := range t.positions {
		if _, ok := t.ledger[k]; !ok && pos.Quantity != 0 {
			return fmt.Errorf("%s/%s: position without ledger entries: %w",
				k.symbol, k.strategy, types.ErrLedgerMismatch)
		}
	}
	return nil
}

// Open returns copies of all open positions.
func (t *Tracker) Open() []types.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.Position, 0, len(t.positions))
	for _, pos := range t.positions {
		out = append(out, *pos)
	}
	return out
}

// OpenCount returns the number of open positions for a strategy.
func (t *Tracker) OpenCount(strategy string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, pos := range t.positions {
		if pos.Strategy == strategy {
			n++
		}
	}
	return n
}

// Trades returns a copy of the realized trade log.
func (t *Tracker) Trades() []types.Trade {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.Trade, len(t.trades))
	copy(out, t.trades)
	return out
}

// RealizedPnL returns the sum of realized P&L across all trades.
func (t *Tracker) RealizedPnL() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := decimal.Zero
	for i := range t.trades {
		total = total.Add(t.trades[i].RealizedPnL)
	}
	return total
}

// UnrealizedPnL returns the sum of unrealized P&L from the latest marks.
func (t *Tracker) UnrealizedPnL() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := decimal.Zero
	for _, pos := range t.positions {
		total = total.Add(pos.UnrealizedPnL)
	}
	return total
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
