// Package config loads engine configuration from file and environment.
// Environment variables use the ENGINE_ prefix with underscores for
// nesting, e.g. ENGINE_RISK_MAXDAILYLOSSPCT=0.02.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantedge/options-engine/internal/broker"
	"github.com/quantedge/options-engine/internal/marketdata"
	"github.com/quantedge/options-engine/internal/position"
	"github.com/quantedge/options-engine/internal/regime"
	"github.com/quantedge/options-engine/internal/risk"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the full engine configuration. Decimal-valued limits are kept
// as floats here and converted when handed to the packages that own them.
type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`

	Engine struct {
		Symbols       []string `mapstructure:"symbols"`
		CycleSeconds  int      `mapstructure:"cycleSeconds"`
		FlattenOnStop bool     `mapstructure:"flattenOnStop"`
	} `mapstructure:"engine"`

	Risk struct {
		Capital          float64 `mapstructure:"capital"`
		MaxDailyLossPct  float64 `mapstructure:"maxDailyLossPct"`
		MaxOpenPositions int     `mapstructure:"maxOpenPositions"`
		MaxPositionPct   float64 `mapstructure:"maxPositionPct"`
		ConservativePct  float64 `mapstructure:"conservativePct"`
		AggressivePct    float64 `mapstructure:"aggressivePct"`
		KellyWindow      int     `mapstructure:"kellyWindow"`
		BreakerThreshold int     `mapstructure:"breakerThreshold"`
		BreakerCooldownS int     `mapstructure:"breakerCooldownSeconds"`
	} `mapstructure:"risk"`

	Position struct {
		CommissionPerUnit float64 `mapstructure:"commissionPerUnit"`
		SlippagePct       float64 `mapstructure:"slippagePct"`
	} `mapstructure:"position"`

	Persist struct {
		Backend     string `mapstructure:"backend"` // jsonl, postgres, none
		Dir         string `mapstructure:"dir"`
		PostgresDSN string `mapstructure:"postgresDsn"`
	} `mapstructure:"persist"`

	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID string `mapstructure:"chatId"`
	} `mapstructure:"telegram"`
}

// Load reads configuration from an optional file path, layering environment
// variables and defaults underneath.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("engine.symbols", []string{"NIFTY", "BANKNIFTY"})
	v.SetDefault("engine.cycleSeconds", 300)
	v.SetDefault("engine.flattenOnStop", false)

	rd := risk.DefaultConfig()
	capital, _ := rd.Capital.Float64()
	v.SetDefault("risk.capital", capital)
	v.SetDefault("risk.maxDailyLossPct", rd.MaxDailyLossPct)
	v.SetDefault("risk.maxOpenPositions", rd.MaxOpenPositions)
	v.SetDefault("risk.maxPositionPct", rd.MaxPositionPct)
	v.SetDefault("risk.conservativePct", rd.ConservativePct)
	v.SetDefault("risk.aggressivePct", rd.AggressivePct)
	v.SetDefault("risk.kellyWindow", rd.KellyWindow)
	v.SetDefault("risk.breakerThreshold", rd.Breaker.FailureThreshold)
	v.SetDefault("risk.breakerCooldownSeconds", int(rd.Breaker.Cooldown.Seconds()))

	pd := position.DefaultConfig()
	commission, _ := pd.CommissionPerUnit.Float64()
	v.SetDefault("position.commissionPerUnit", commission)
	v.SetDefault("position.slippagePct", pd.SlippagePct)

	v.SetDefault("persist.backend", "jsonl")
	v.SetDefault("persist.dir", "data/journal")
}

func (c *Config) validate() error {
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct >= 1 {
		return fmt.Errorf("risk.maxDailyLossPct must be in (0, 1), got %v", c.Risk.MaxDailyLossPct)
	}
	if c.Risk.ConservativePct+c.Risk.AggressivePct > 1.0001 {
		return fmt.Errorf("bucket shares exceed 100%%: %v + %v",
			c.Risk.ConservativePct, c.Risk.AggressivePct)
	}
	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("engine.symbols must not be empty")
	}
	switch c.Persist.Backend {
	case "jsonl", "postgres", "none":
	default:
		return fmt.Errorf("persist.backend must be jsonl, postgres or none, got %q", c.Persist.Backend)
	}
	return nil
}

// RiskConfig converts the loaded values into the risk package's config.
func (c *Config) RiskConfig() risk.Config {
	cfg := risk.DefaultConfig()
	cfg.Capital = decimal.NewFromFloat(c.Risk.Capital)
	cfg.MaxDailyLossPct = c.Risk.MaxDailyLossPct
	cfg.MaxOpenPositions = c.Risk.MaxOpenPositions
	cfg.MaxPositionPct = c.Risk.MaxPositionPct
	cfg.ConservativePct = c.Risk.ConservativePct
	cfg.AggressivePct = c.Risk.AggressivePct
	cfg.KellyWindow = c.Risk.KellyWindow
	cfg.Breaker.FailureThreshold = c.Risk.BreakerThreshold
	cfg.Breaker.Cooldown = time.Duration(c.Risk.BreakerCooldownS) * time.Second
	return cfg
}

// PositionConfig converts the loaded values into the tracker's config.
func (c *Config) PositionConfig() position.Config {
	return position.Config{
		CommissionPerUnit: decimal.NewFromFloat(c.Position.CommissionPerUnit),
		SlippagePct:       c.Position.SlippagePct,
	}
}

// RegimeConfig returns the classifier config.
func (c *Config) RegimeConfig() regime.Config {
	return regime.DefaultConfig()
}

// MarketDataConfig returns the snapshot builder config.
func (c *Config) MarketDataConfig() marketdata.Config {
	return marketdata.DefaultConfig()
}

// PaperConfig returns the simulated broker config.
func (c *Config) PaperConfig() broker.PaperConfig {
	return broker.DefaultPaperConfig()
}

// CycleInterval returns the evaluation cadence.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Engine.CycleSeconds) * time.Second
}
