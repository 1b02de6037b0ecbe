package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"portfoliosim/src/executor"
	"portfoliosim/src/indicators"
	"portfoliosim/src/ledger"
	"portfoliosim/src/model"
	"portfoliosim/src/ranker"
	"portfoliosim/src/strategy"
)

// PortfolioEngine drives many symbols' bar streams over one shared
// capital pool. The simulation loop is single-threaded; the only
// parallel stage is per-symbol indicator computation, forked and
// joined inside one timestep.
type PortfolioEngine struct {
	cfg      model.BacktestConfig
	led      *ledger.Ledger
	rank     *ranker.Ranker
	strat    strategy.Strategy
	provider indicators.Provider

	workers       int
	historyWindow int

	history        map[string][]model.Bar
	lastClose      map[string]decimal.Decimal
	pendingEntries map[string]model.RankedSignal
	snapshots      []model.PortfolioSnapshot
}

func NewPortfolio(
	cfg model.BacktestConfig,
	strat strategy.Strategy,
	provider indicators.Provider,
	rnk *ranker.Ranker,
) *PortfolioEngine {
	exec := executor.New(cfg)
	return &PortfolioEngine{
		cfg:            cfg,
		led:            ledger.New(cfg, exec),
		rank:           rnk,
		strat:          strat,
		provider:       provider,
		historyWindow:  defaultHistoryWindow,
		history:        make(map[string][]model.Bar),
		lastClose:      make(map[string]decimal.Decimal),
		pendingEntries: make(map[string]model.RankedSignal),
	}
}

// SetWorkers overrides the indicator worker-pool size. Zero or
// negative restores the default (one worker per core). Worker count
// must never change simulation output, only wall-clock time.
func (p *PortfolioEngine) SetWorkers(n int) { p.workers = n }

// Run replays all symbols over the sorted union of their timestamps.
func (p *PortfolioEngine) Run(bars map[string][]model.Bar) (*Result, error) {
	timeline := buildTimeline(bars)
	if len(timeline) < 2 {
		return nil, ErrInsufficientBars
	}

	barAt := indexBars(bars)
	p.strat.Prepare(bars)

	final := len(timeline) - 1
	for ti, ts := range timeline {
		current := p.collectBars(barAt, ts)

		// 1. fill entries queued on the previous timestep at this
		// bar's open
		p.executePending(current)

		// 2. mark open positions, then resolve intrabar stop/target
		// touches against this bar's high/low
		p.led.UpdatePositions(p.lastClose)
		p.checkStopsAndTargets(current, ts)

		// 3. equity snapshot from post-execution state
		p.snapshots = append(p.snapshots, model.PortfolioSnapshot{
			Timestamp: ts,
			Equity:    p.led.TotalEquity(p.lastClose),
			Cash:      p.led.Cash(),
		})

		// 4. decide on close, queue for the next timestep
		if ti < final {
			p.generateAndQueue(current, ts)
		}
	}

	p.liquidateAll(timeline[final])

	return &Result{
		Trades:         p.led.ClosedTrades(),
		EquityCurve:    p.snapshots,
		FinalCash:      p.led.Cash(),
		FinalPositions: p.led.Positions(),
	}, nil
}

// collectBars pulls each symbol's bar at ts (if any) into the rolling
// history and refreshes the last-known closes.
func (p *PortfolioEngine) collectBars(barAt map[string]map[int64]model.Bar, ts time.Time) map[string]model.Bar {
	current := make(map[string]model.Bar)
	for sym, byTime := range barAt {
		bar, ok := byTime[ts.UnixNano()]
		if !ok {
			continue
		}
		current[sym] = bar
		p.history[sym] = append(p.history[sym], bar)
		p.lastClose[sym] = bar.Close
	}
	return current
}

func (p *PortfolioEngine) executePending(current map[string]model.Bar) {
	for _, sym := range sortedKeys(p.pendingEntries) {
		bar, ok := current[sym]
		if !ok {
			// symbol has no bar this timestep; fill on its next one
			continue
		}
		candidate := p.pendingEntries[sym]
		delete(p.pendingEntries, sym)
		p.executeEntry(candidate, bar)
	}
}

func (p *PortfolioEngine) executeEntry(c model.RankedSignal, bar model.Bar) {
	side := model.SideLong
	if c.Signal.Type == model.SignalEnterShort {
		side = model.SideShort
	}

	riskAmount := decimal.Zero
	if !c.StopLoss.IsZero() {
		riskAmount = bar.Open.Sub(c.StopLoss).Abs().Mul(c.Quantity)
	}

	if _, err := p.led.OpenPosition(bar.Symbol, side, c.Quantity, bar.Open, bar.Timestamp, c.StopLoss, c.Target, riskAmount); err != nil {
		if ledger.IsAdmissionError(err) {
			logger.WithError(err).WithField("symbol", bar.Symbol).Debug("Entry rejected")
			return
		}
		logger.WithError(err).WithField("symbol", bar.Symbol).Warn("Entry failed")
	}
}

// checkStopsAndTargets closes positions whose stop or target level was
// touched inside the current bar. When both levels are touched in the
// same bar the stop-loss always resolves first; OHLC alone cannot
// reveal the true intrabar path, and downstream trade counts depend on
// this tie-break staying deterministic.
func (p *PortfolioEngine) checkStopsAndTargets(current map[string]model.Bar, ts time.Time) {
	open := p.led.Positions()
	for _, sym := range sortedKeys(open) {
		bar, ok := current[sym]
		if !ok {
			continue
		}
		pos := open[sym]

		var exitPrice decimal.Decimal
		switch pos.Side {
		case model.SideLong:
			if pos.HasStopLoss() && bar.Low.LessThanOrEqual(pos.StopLoss) {
				exitPrice = pos.StopLoss
			} else if pos.HasTarget() && bar.High.GreaterThanOrEqual(pos.Target) {
				exitPrice = pos.Target
			}
		case model.SideShort:
			if pos.HasStopLoss() && bar.High.GreaterThanOrEqual(pos.StopLoss) {
				exitPrice = pos.StopLoss
			} else if pos.HasTarget() && bar.Low.LessThanOrEqual(pos.Target) {
				exitPrice = pos.Target
			}
		}

		if exitPrice.IsZero() {
			continue
		}
		if _, err := p.led.ClosePosition(sym, exitPrice, ts); err != nil {
			logger.WithError(err).WithField("symbol", sym).Warn("Stop/target exit failed")
		}
	}
}

// generateAndQueue runs the parallel indicator stage, asks the
// strategy for signals symbol by symbol, sizes and ranks the
// candidates, and queues the winners for the next timestep's open.
func (p *PortfolioEngine) generateAndQueue(current map[string]model.Bar, ts time.Time) {
	eligible := p.eligibleSymbols(current)
	if len(eligible) == 0 {
		return
	}

	snapshots := p.computeIndicators(eligible)

	equity := p.led.TotalEquity(p.lastClose)
	cash := p.led.Cash()

	var candidates []model.RankedSignal
	for _, sym := range eligible {
		values, ok := snapshots[sym]
		if !ok {
			// indicator computation failed; skip this symbol for this
			// timestep only
			continue
		}

		ctx := strategy.Context{
			Symbol:     sym,
			Bar:        current[sym],
			Cash:       cash,
			Equity:     equity,
			Indicators: values,
			History:    p.window(sym),
		}

		for _, sig := range p.strat.OnBar(ctx) {
			if !sig.IsEntry() {
				continue
			}
			if sig.Confidence() < p.cfg.MinConfidence {
				continue
			}
			if c, ok := p.buildCandidate(sig, current[sym], equity); ok {
				candidates = append(candidates, c)
			}
		}
	}

	if len(candidates) == 0 {
		return
	}

	ranked := p.rank.Rank(candidates, p.led.Positions())

	capacity := p.cfg.MaxPositions - p.led.OpenPositionCount() - len(p.pendingEntries)
	if capacity > p.cfg.MaxEntriesPerBar {
		capacity = p.cfg.MaxEntriesPerBar
	}

	for _, selected := range p.rank.SelectTopSignals(ranked, capacity) {
		p.pendingEntries[selected.Signal.Symbol] = selected
		logger.WithFields(map[string]interface{}{
			"symbol": selected.Signal.Symbol,
			"score":  selected.Score,
			"at":     ts,
		}).Debug("Entry queued")
	}
}

// buildCandidate sizes an entry signal off this bar's close. The
// second return value is false when sizing produces nothing tradable.
func (p *PortfolioEngine) buildCandidate(sig model.Signal, bar model.Bar, equity decimal.Decimal) (model.RankedSignal, bool) {
	entry := bar.Close
	stop, _ := sig.StopLoss()
	target, _ := sig.Target()

	quantity := sig.Quantity
	if quantity.IsZero() {
		quantity = p.led.CalculatePositionSize(entry, stop, equity)
	}

	if p.cfg.ScaleByConfidence {
		scaled := quantity.Mul(decimal.NewFromFloat(sig.Confidence()))
		// second application of the same rounding; it is idempotent
		quantity = ledger.FloorToStep(scaled, p.cfg.QuantityStep)
	}

	if quantity.LessThanOrEqual(decimal.Zero) {
		return model.RankedSignal{}, false
	}

	riskAmount := decimal.Zero
	if !stop.IsZero() {
		riskAmount = entry.Sub(stop).Abs().Mul(quantity)
	}

	return model.RankedSignal{
		Signal:     sig,
		EntryPrice: entry,
		StopLoss:   stop,
		Target:     target,
		Quantity:   quantity,
		RiskAmount: riskAmount,
	}, true
}

func (p *PortfolioEngine) eligibleSymbols(current map[string]model.Bar) []string {
	eligible := make([]string, 0, len(current))
	for sym := range current {
		if _, held := p.led.Position(sym); held {
			continue
		}
		if _, queued := p.pendingEntries[sym]; queued {
			continue
		}
		if len(p.history[sym]) < p.cfg.MinHistoryBars {
			continue
		}
		eligible = append(eligible, sym)
	}
	sort.Strings(eligible)
	return eligible
}

// window returns the bounded rolling history for one symbol. The
// returned slice is never written to again, so indicator workers can
// read it without synchronization.
func (p *PortfolioEngine) window(sym string) []model.Bar {
	hist := p.history[sym]
	if len(hist) > p.historyWindow {
		hist = hist[len(hist)-p.historyWindow:]
	}
	return hist
}

func (p *PortfolioEngine) liquidateAll(ts time.Time) {
	open := p.led.Positions()
	if len(open) == 0 {
		return
	}

	for _, sym := range sortedKeys(open) {
		price, ok := p.lastClose[sym]
		if !ok {
			price = open[sym].EntryPrice
		}
		if _, err := p.led.ClosePosition(sym, price, ts); err != nil {
			logger.WithError(err).WithField("symbol", sym).Warn("Terminal liquidation failed")
		}
	}

	// replace the final snapshot with the post-liquidation state
	p.snapshots[len(p.snapshots)-1] = model.PortfolioSnapshot{
		Timestamp: ts,
		Equity:    p.led.TotalEquity(p.lastClose),
		Cash:      p.led.Cash(),
	}
}

// buildTimeline returns the sorted union of all symbols' timestamps.
func buildTimeline(bars map[string][]model.Bar) []time.Time {
	seen := make(map[int64]time.Time)
	for _, series := range bars {
		for _, bar := range series {
			seen[bar.Timestamp.UnixNano()] = bar.Timestamp
		}
	}

	timeline := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		timeline = append(timeline, ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })
	return timeline
}

func indexBars(bars map[string][]model.Bar) map[string]map[int64]model.Bar {
	index := make(map[string]map[int64]model.Bar, len(bars))
	for sym, series := range bars {
		byTime := make(map[int64]model.Bar, len(series))
		for _, bar := range series {
			byTime[bar.Timestamp.UnixNano()] = bar
		}
		index[sym] = byTime
	}
	return index
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
