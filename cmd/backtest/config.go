package backtest

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Strategy string    `envconfig:"STRATEGY" default:"momentum"`
	Symbols  string    `envconfig:"SYMBOLS" default:"BTC_USDT,ETH_USDT"`
	StartDt  time.Time `envconfig:"START_DATE" default:"2023-01-01T00:00:00Z"`
	EndDt    time.Time `envconfig:"END_DATE" default:"2026-01-01T00:00:00Z"`
	Workers  int       `envconfig:"WORKERS" default:"0"`

	InitialCapital string `envconfig:"INITIAL_CAPITAL" default:"100000"`
	RiskPerTrade   string `envconfig:"RISK_PER_TRADE" default:"0.02"`
	MaxPositions   int    `envconfig:"MAX_POSITIONS" default:"5"`
	AllowShort     bool   `envconfig:"ALLOW_SHORT" default:"false"`

	UseSectorAPI bool `envconfig:"USE_SECTOR_API" default:"false"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
