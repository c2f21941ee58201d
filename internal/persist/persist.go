// Package persist provides append-only sinks for the engine's records.
// The engine only writes; it never reads its own output back within a
// cycle, so every implementation is a one-way journal.
package persist

import (
	"context"

	"github.com/quantedge/options-engine/pkg/types"
)

// Store is the append-only record sink.
type Store interface {
	AppendTrade(ctx context.Context, trade types.Trade) error
	AppendSignal(ctx context.Context, signal types.Signal) error
	AppendRiskEvent(ctx context.Context, event types.RiskEvent) error
	AppendPerformance(ctx context.Context, snap types.PerformanceSnapshot) error
	Close() error
}

// Nop discards everything. Used when persistence is disabled.
type Nop struct{}

func (Nop) AppendTrade(context.Context, types.Trade) error                   { return nil }
func (Nop) AppendSignal(context.Context, types.Signal) error                 { return nil }
func (Nop) AppendRiskEvent(context.Context, types.RiskEvent) error           { return nil }
func (Nop) AppendPerformance(context.Context, types.PerformanceSnapshot) error { return nil }
func (Nop) Close() error                                                     { return nil }
