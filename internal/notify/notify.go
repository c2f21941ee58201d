// Package notify pushes one-way engine notifications (trades, risk events,
// emergency stops) to an external messaging layer.
package notify

import (
	"context"
	"fmt"

	"github.com/quantedge/options-engine/pkg/types"
	"go.uber.org/zap"
)

// Notifier is the one-way outbound message contract. Failures are logged
// by callers, never retried: a missed notification must not stall a cycle.
type Notifier interface {
	TradeExecuted(ctx context.Context, trade types.Trade) error
	RiskRaised(ctx context.Context, event types.RiskEvent) error
	EmergencyStop(ctx context.Context, reason string) error
}

// Log writes notifications to the structured log. The default when no
// messaging backend is configured.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log-backed notifier.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("notify")}
}

func (l *Log) TradeExecuted(_ context.Context, trade types.Trade) error {
	l.logger.Info("trade executed",
		zap.String("symbol", trade.Symbol),
		zap.String("strategy", trade.Strategy),
		zap.Int("quantity", trade.Quantity),
		zap.String("pnl", trade.RealizedPnL.String()))
	return nil
}

func (l *Log) RiskRaised(_ context.Context, event types.RiskEvent) error {
	l.logger.Warn("risk event",
		zap.String("type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("message", event.Message))
	return nil
}

func (l *Log) EmergencyStop(_ context.Context, reason string) error {
	l.logger.Error("emergency stop", zap.String("reason", reason))
	return nil
}

// Fanout forwards each notification to every notifier, returning the
// first error after all have been attempted.
type Fanout []Notifier

func (f Fanout) TradeExecuted(ctx context.Context, trade types.Trade) error {
	var firstErr error
	for _, n := range f {
		if err := n.TradeExecuted(ctx, trade); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify trade: %w", err)
		}
	}
	return firstErr
}

func (f Fanout) RiskRaised(ctx context.Context, event types.RiskEvent) error {
	var firstErr error
	for _, n := range f {
		if err := n.RiskRaised(ctx, event); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify risk: %w", err)
		}
	}
	return firstErr
}

func (f Fanout) EmergencyStop(ctx context.Context, reason string) error {
	var firstErr error
	for _, n := range f {
		if err := n.EmergencyStop(ctx, reason); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify emergency stop: %w", err)
		}
	}
	return firstErr
}
