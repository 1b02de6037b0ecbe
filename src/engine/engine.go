// Package engine contains the two simulation drivers: the
// single-symbol bar-by-bar Engine and the multi-symbol
// PortfolioEngine. Both share the same ledger and executor and the
// same decide-on-close, fill-on-next-open protocol.
package engine

import (
	"errors"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"portfoliosim/src/executor"
	"portfoliosim/src/indicators"
	"portfoliosim/src/ledger"
	"portfoliosim/src/model"
	"portfoliosim/src/strategy"
)

// ErrInsufficientBars aborts a run before any state is touched.
var ErrInsufficientBars = errors.New("dataset must contain at least two bars")

// defaultHistoryWindow bounds the rolling history handed to strategies
// and indicator providers.
const defaultHistoryWindow = 250

// Result is what both engines hand back to callers: the trade log, the
// equity curve, and the final account state.
type Result struct {
	Trades         []model.Trade
	EquityCurve    []model.PortfolioSnapshot
	FinalCash      decimal.Decimal
	FinalPositions map[string]model.Position
}

// Engine replays one symbol's bars through a strategy. The per-bar
// protocol avoids lookahead: signals decided on bar t's close fill at
// bar t+1's open.
type Engine struct {
	cfg      model.BacktestConfig
	led      *ledger.Ledger
	strat    strategy.Strategy
	provider indicators.Provider

	historyWindow int
	pending       []model.Signal
	snapshots     []model.PortfolioSnapshot
}

func New(cfg model.BacktestConfig, strat strategy.Strategy, provider indicators.Provider) *Engine {
	exec := executor.New(cfg)
	return &Engine{
		cfg:           cfg,
		led:           ledger.New(cfg, exec),
		strat:         strat,
		provider:      provider,
		historyWindow: defaultHistoryWindow,
	}
}

// Run executes the simulation over the given bars, which must be
// time-sorted. Fewer than two bars is the one fatal condition.
func (e *Engine) Run(bars []model.Bar) (*Result, error) {
	if len(bars) < 2 {
		return nil, ErrInsufficientBars
	}

	symbol := bars[0].Symbol
	e.strat.Prepare(map[string][]model.Bar{symbol: bars})

	last := len(bars) - 1
	for t, bar := range bars {
		// 1. fill signals queued on the previous bar at this bar's open
		e.executePending(bar)

		// 2. snapshot post-execution state marked at this bar's close
		e.led.UpdatePositions(map[string]decimal.Decimal{symbol: bar.Close})
		e.recordSnapshot(bar)

		// 3. decide on this bar's close, queue for the next open
		if t < last {
			e.pending = e.queueSignals(bars, t)
		}
	}

	// 4. terminal liquidation at the last close, then correct the
	// final snapshot
	lastBar := bars[last]
	if _, held := e.led.Position(symbol); held {
		if _, err := e.led.ClosePosition(symbol, lastBar.Close, lastBar.Timestamp); err != nil {
			logger.WithError(err).WithField("symbol", symbol).Warn("Terminal liquidation failed")
		}
		e.snapshots[len(e.snapshots)-1] = model.PortfolioSnapshot{
			Timestamp: lastBar.Timestamp,
			Equity:    e.led.TotalEquity(nil),
			Cash:      e.led.Cash(),
		}
	}

	return &Result{
		Trades:         e.led.ClosedTrades(),
		EquityCurve:    e.snapshots,
		FinalCash:      e.led.Cash(),
		FinalPositions: e.led.Positions(),
	}, nil
}

func (e *Engine) executePending(bar model.Bar) {
	for _, sig := range e.pending {
		switch {
		case sig.IsEntry():
			e.executeEntry(sig, bar)
		case sig.IsExit():
			if _, held := e.led.Position(bar.Symbol); !held {
				continue
			}
			if _, err := e.led.ClosePosition(bar.Symbol, bar.Open, bar.Timestamp); err != nil {
				logger.WithError(err).WithField("symbol", bar.Symbol).Warn("Exit execution failed")
			}
		}
	}
	e.pending = nil
}

func (e *Engine) executeEntry(sig model.Signal, bar model.Bar) {
	side := model.SideLong
	if sig.Type == model.SignalEnterShort {
		side = model.SideShort
	}

	stop, _ := sig.StopLoss()
	target, _ := sig.Target()

	quantity := sig.Quantity
	if quantity.IsZero() {
		equity := e.led.TotalEquity(map[string]decimal.Decimal{bar.Symbol: bar.Open})
		quantity = e.led.CalculatePositionSize(bar.Open, stop, equity)
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return
	}

	riskAmount := decimal.Zero
	if !stop.IsZero() {
		riskAmount = bar.Open.Sub(stop).Abs().Mul(quantity)
	}

	if _, err := e.led.OpenPosition(bar.Symbol, side, quantity, bar.Open, bar.Timestamp, stop, target, riskAmount); err != nil {
		if ledger.IsAdmissionError(err) {
			logger.WithError(err).WithField("symbol", bar.Symbol).Debug("Entry rejected")
			return
		}
		logger.WithError(err).WithField("symbol", bar.Symbol).Warn("Entry failed")
	}
}

func (e *Engine) recordSnapshot(bar model.Bar) {
	prices := map[string]decimal.Decimal{bar.Symbol: bar.Close}
	e.snapshots = append(e.snapshots, model.PortfolioSnapshot{
		Timestamp: bar.Timestamp,
		Equity:    e.led.TotalEquity(prices),
		Cash:      e.led.Cash(),
	})
}

func (e *Engine) queueSignals(bars []model.Bar, t int) []model.Signal {
	bar := bars[t]

	start := t + 1 - e.historyWindow
	if start < 0 {
		start = 0
	}
	history := bars[start : t+1]

	var snapshot map[string]float64
	if e.provider != nil && len(history) >= e.cfg.MinHistoryBars {
		values, err := e.provider.Compute(bar.Symbol, history)
		if err != nil {
			logger.WithError(err).WithField("symbol", bar.Symbol).Debug("Indicator computation skipped")
		} else {
			snapshot = values
		}
	}

	var pos *model.Position
	if held, ok := e.led.Position(bar.Symbol); ok {
		copied := *held
		pos = &copied
	}

	ctx := strategy.Context{
		Symbol:     bar.Symbol,
		Bar:        bar,
		Position:   pos,
		Cash:       e.led.Cash(),
		Equity:     e.led.TotalEquity(map[string]decimal.Decimal{bar.Symbol: bar.Close}),
		Indicators: snapshot,
		History:    history,
	}

	return e.strat.OnBar(ctx)
}
