package model

import "github.com/shopspring/decimal"

// BacktestConfig is the immutable configuration of one run. It is
// supplied once and never mutated while the simulation executes.
type BacktestConfig struct {
	InitialCapital    decimal.Decimal // starting cash
	CommissionRate    decimal.Decimal // fraction of notional per leg
	SlippageBps       decimal.Decimal // adverse fill adjustment, basis points
	RiskPerTrade      decimal.Decimal // fraction of equity risked per entry
	MaxPositions      int             // concurrent open position cap
	MaxPortfolioRisk  decimal.Decimal // fraction of initial capital at risk across all positions
	AllowShort        bool
	MaxEntriesPerBar  int             // new entries admitted per timestep
	QuantityStep      decimal.Decimal // executed quantities are multiples of this
	MinConfidence     float64         // entry signals below this confidence are dropped
	MinHistoryBars    int             // bars required before indicators run for a symbol
	ScaleByConfidence bool            // scale sized quantity by signal confidence
}

// DefaultBacktestConfig mirrors a plain equities setup: whole-share
// steps, 10 bps commission per leg, 2 bps slippage, 2% risk per trade.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		InitialCapital:    decimal.NewFromInt(100_000),
		CommissionRate:    decimal.NewFromFloat(0.001),
		SlippageBps:       decimal.NewFromInt(2),
		RiskPerTrade:      decimal.NewFromFloat(0.02),
		MaxPositions:      5,
		MaxPortfolioRisk:  decimal.NewFromFloat(0.10),
		AllowShort:        false,
		MaxEntriesPerBar:  3,
		QuantityStep:      decimal.NewFromInt(1),
		MinConfidence:     0.3,
		MinHistoryBars:    30,
		ScaleByConfidence: false,
	}
}
