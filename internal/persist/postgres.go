package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantedge/options-engine/pkg/types"
	"go.uber.org/zap"
)

// Postgres journals records into append-only tables via a pgx pool.
type Postgres struct {
	logger *zap.Logger
	pool   *pgxpool.Pool
}

// NewPostgres connects and ensures the journal tables exist.
func NewPostgres(ctx context.Context, logger *zap.Logger, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{
		logger: logger.Named("postgres"),
		pool:   pool,
	}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			bucket TEXT NOT NULL,
			quantity INT NOT NULL,
			entry_price NUMERIC NOT NULL,
			exit_price NUMERIC NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_time TIMESTAMPTZ NOT NULL,
			realized_pnl NUMERIC NOT NULL,
			commission NUMERIC NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			bucket TEXT NOT NULL,
			symbol TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			entry_price NUMERIC NOT NULL,
			max_loss NUMERIC NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS risk_events (
			id BIGSERIAL PRIMARY KEY,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			metric TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS performance (
			id BIGSERIAL PRIMARY KEY,
			period TEXT NOT NULL,
			period_start TIMESTAMPTZ NOT NULL,
			period_end TIMESTAMPTZ NOT NULL,
			total_trades INT NOT NULL,
			win_rate DOUBLE PRECISION NOT NULL,
			profit_factor DOUBLE PRECISION NOT NULL,
			sharpe_ratio DOUBLE PRECISION NOT NULL,
			max_drawdown DOUBLE PRECISION NOT NULL,
			realized_pnl NUMERIC NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) AppendTrade(ctx context.Context, trade types.Trade) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO trades (id, symbol, strategy, bucket, quantity, entry_price,
			exit_price, entry_time, exit_time, realized_pnl, commission)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		trade.ID, trade.Symbol, trade.Strategy, string(trade.Bucket), trade.Quantity,
		trade.EntryPrice, trade.ExitPrice, trade.EntryTime, trade.ExitTime,
		trade.RealizedPnL, trade.Commission)
	if err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

func (p *Postgres) AppendSignal(ctx context.Context, signal types.Signal) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO signals (id, strategy, bucket, symbol, confidence, entry_price,
			max_loss, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		signal.ID, signal.Strategy, string(signal.Bucket), signal.Symbol,
		signal.Confidence, signal.EntryPrice, signal.MaxLoss, signal.CreatedAt)
	if err != nil {
		return fmt.Errorf("append signal: %w", err)
	}
	return nil
}

func (p *Postgres) AppendRiskEvent(ctx context.Context, event types.RiskEvent) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO risk_events (type, severity, metric, value, threshold, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(event.Type), string(event.Severity), event.Metric,
		event.Value, event.Threshold, event.Message, event.Timestamp)
	if err != nil {
		return fmt.Errorf("append risk event: %w", err)
	}
	return nil
}

func (p *Postgres) AppendPerformance(ctx context.Context, snap types.PerformanceSnapshot) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO performance (period, period_start, period_end, total_trades,
			win_rate, profit_factor, sharpe_ratio, max_drawdown, realized_pnl, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(snap.Period), snap.Start, snap.End, snap.TotalTrades,
		snap.WinRate, snap.ProfitFactor, snap.SharpeRatio, snap.MaxDrawdown,
		snap.RealizedPnL, snap.GeneratedAt)
	if err != nil {
		return fmt.Errorf("append performance: %w", err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
