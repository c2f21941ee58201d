// Package broker defines the external collaborator contracts: market data
// in, orders out. Implementations are swappable; the engine only sees these
// interfaces.
package broker

import (
	"context"
	"time"

	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
)

// MarketData supplies per-cycle snapshots for an underlying. Fails with
// types.ErrDataUnavailable when history is insufficient or the feed is
// down; the engine skips the symbol for that cycle.
type MarketData interface {
	GetSnapshot(ctx context.Context, symbol string) (types.MarketSnapshot, error)
}

// Fill is an execution report from the broker.
type Fill struct {
	OrderID  string           `json:"orderId"`
	DedupKey string           `json:"dedupKey"`
	Symbol   string           `json:"symbol"`
	Strategy string           `json:"strategy"`
	Bucket   types.AllocationBucket `json:"bucket"`
	Quantity int              `json:"quantity"` // signed units
	Price    decimal.Decimal  `json:"price"`
	Time     time.Time        `json:"time"`
}

// Executor places orders with the broker. PlaceOrder must be idempotent
// under retry: resubmitting an order with a dedup key the broker has
// already seen returns the original order id without a second fill. A
// timeout from PlaceOrder is not a guaranteed non-fill; callers reconcile
// through Fills on the next cycle.
type Executor interface {
	PlaceOrder(ctx context.Context, order types.Order) (string, error)
	Fills(ctx context.Context, since time.Time) ([]Fill, error)
}
