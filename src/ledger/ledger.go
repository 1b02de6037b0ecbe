// Package ledger owns the shared capital pool of a simulation: cash,
// the open position map, and the portfolio risk budget. It is the only
// component allowed to mutate any of them, and it is only ever driven
// from the single simulation goroutine.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"portfoliosim/src/executor"
	"portfoliosim/src/model"
)

// Admission errors. All of them are recoverable: the caller drops the
// candidate signal and the run continues.
var (
	ErrSymbolHeld       = errors.New("position already open for symbol")
	ErrMaxPositions     = errors.New("max concurrent positions reached")
	ErrRiskBudget       = errors.New("portfolio risk budget exceeded")
	ErrInsufficientCash = errors.New("insufficient cash")

	ErrNoPosition = errors.New("no open position for symbol")
)

// IsAdmissionError reports whether err is one of the recoverable
// admission rejections.
func IsAdmissionError(err error) bool {
	return errors.Is(err, ErrSymbolHeld) ||
		errors.Is(err, ErrMaxPositions) ||
		errors.Is(err, ErrRiskBudget) ||
		errors.Is(err, ErrInsufficientCash)
}

type Ledger struct {
	cfg  model.BacktestConfig
	exec *executor.Executor

	cash          decimal.Decimal
	positions     map[string]*model.Position
	portfolioRisk decimal.Decimal
	closedTrades  []model.Trade

	maxRisk decimal.Decimal // initial capital * max portfolio risk pct
}

func New(cfg model.BacktestConfig, exec *executor.Executor) *Ledger {
	return &Ledger{
		cfg:           cfg,
		exec:          exec,
		cash:          cfg.InitialCapital,
		positions:     make(map[string]*model.Position),
		portfolioRisk: decimal.Zero,
		maxRisk:       cfg.InitialCapital.Mul(cfg.MaxPortfolioRisk),
	}
}

// ---------------------------------------------------
// read side
// ---------------------------------------------------

func (l *Ledger) Cash() decimal.Decimal          { return l.cash }
func (l *Ledger) PortfolioRisk() decimal.Decimal { return l.portfolioRisk }
func (l *Ledger) OpenPositionCount() int         { return len(l.positions) }
func (l *Ledger) ClosedTrades() []model.Trade    { return l.closedTrades }

func (l *Ledger) Position(symbol string) (*model.Position, bool) {
	p, ok := l.positions[symbol]
	return p, ok
}

// Positions returns a copy of the open position map.
func (l *Ledger) Positions() map[string]model.Position {
	out := make(map[string]model.Position, len(l.positions))
	for sym, p := range l.positions {
		out[sym] = *p
	}
	return out
}

// TotalEquity computes cash plus the signed market value of every open
// position, marked at the given prices. Positions without a price fall
// back to their entry price. Pure; mutates nothing.
func (l *Ledger) TotalEquity(prices map[string]decimal.Decimal) decimal.Decimal {
	equity := l.cash
	for sym, pos := range l.positions {
		mark, ok := prices[sym]
		if !ok {
			mark = pos.EntryPrice
		}
		equity = equity.Add(pos.MarketValue(mark))
	}
	return equity
}

// ---------------------------------------------------
// admission and sizing
// ---------------------------------------------------

// CanOpenPosition runs the admission checks as one unit. It must be
// re-evaluated immediately before OpenPosition commits, because earlier
// executions in the same timestep may have consumed cash or risk.
func (l *Ledger) CanOpenPosition(symbol string, riskAmount decimal.Decimal) error {
	if _, held := l.positions[symbol]; held {
		return fmt.Errorf("%w: %s", ErrSymbolHeld, symbol)
	}
	if len(l.positions) >= l.cfg.MaxPositions {
		return fmt.Errorf("%w: %d", ErrMaxPositions, l.cfg.MaxPositions)
	}
	if l.portfolioRisk.Add(riskAmount).GreaterThan(l.maxRisk) {
		return fmt.Errorf("%w: current %s + new %s > cap %s",
			ErrRiskBudget, l.portfolioRisk.String(), riskAmount.String(), l.maxRisk.String())
	}
	if l.cash.LessThanOrEqual(decimal.Zero) {
		return ErrInsufficientCash
	}
	return nil
}

// FloorToStep rounds a quantity down to a multiple of step. It is
// idempotent, so confidence-scaled sizes can safely pass through it a
// second time.
func FloorToStep(quantity, step decimal.Decimal) decimal.Decimal {
	if step.LessThanOrEqual(decimal.Zero) {
		return quantity
	}
	return quantity.Div(step).Floor().Mul(step)
}

// CalculatePositionSize converts a risk budget into a quantity: equity
// times the per-trade risk fraction, divided by the per-unit risk
// |entry - stop|, capped so notional cannot exceed available cash, then
// floored to the configured step.
func (l *Ledger) CalculatePositionSize(entry, stop, equity decimal.Decimal) decimal.Decimal {
	riskPerUnit := entry.Sub(stop).Abs()
	if riskPerUnit.IsZero() || entry.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	budget := equity.Mul(l.cfg.RiskPerTrade)
	quantity := budget.Div(riskPerUnit)

	// cash cap: notional may not exceed what we can actually pay for
	maxAffordable := l.cash.Div(entry)
	if quantity.GreaterThan(maxAffordable) {
		quantity = maxAffordable
	}

	quantity = FloorToStep(quantity, l.cfg.QuantityStep)
	if quantity.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return quantity
}

// ---------------------------------------------------
// mutation
// ---------------------------------------------------

// OpenPosition re-validates admission, delegates fill math to the
// executor, and commits the cash/risk/position changes atomically from
// the caller's point of view. A short credits proceeds immediately,
// which models margin in the simplest possible way.
func (l *Ledger) OpenPosition(
	symbol string,
	side model.Side,
	quantity decimal.Decimal,
	basePrice decimal.Decimal,
	at time.Time,
	stopLoss decimal.Decimal,
	target decimal.Decimal,
	riskAmount decimal.Decimal,
) (*model.Position, error) {
	if err := l.CanOpenPosition(symbol, riskAmount); err != nil {
		return nil, err
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: zero quantity for %s", ErrInsufficientCash, symbol)
	}
	if side == model.SideShort && !l.cfg.AllowShort {
		return nil, fmt.Errorf("short selling disabled: %s", symbol)
	}

	pos, commission := l.exec.OpenPosition(symbol, side, quantity, basePrice, at, stopLoss, target, riskAmount)
	notional := pos.Quantity.Mul(pos.EntryPrice)

	if side == model.SideLong {
		cost := notional.Add(commission)
		if cost.GreaterThan(l.cash) {
			return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, cost.String(), l.cash.String())
		}
		l.cash = l.cash.Sub(cost)
	} else {
		l.cash = l.cash.Add(notional.Sub(commission))
	}

	l.positions[symbol] = &pos
	l.portfolioRisk = l.portfolioRisk.Add(riskAmount)

	logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"side":   side,
		"qty":    pos.Quantity.String(),
		"fill":   pos.EntryPrice.String(),
		"risk":   riskAmount.String(),
	}).Debug("Opened position")

	return &pos, nil
}

// ClosePosition converts the open position on symbol into a Trade at
// the given base price, reversing the entry's cash movement and
// releasing its risk allocation.
func (l *Ledger) ClosePosition(symbol string, basePrice decimal.Decimal, at time.Time) (model.Trade, error) {
	pos, ok := l.positions[symbol]
	if !ok {
		return model.Trade{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}

	trade := l.exec.ClosePosition(*pos, basePrice, at)
	notional := trade.Quantity.Mul(trade.ExitPrice)
	exitCommission := trade.Commission.Sub(pos.EntryCommission)

	if pos.Side == model.SideLong {
		l.cash = l.cash.Add(notional.Sub(exitCommission))
	} else {
		l.cash = l.cash.Sub(notional.Add(exitCommission))
	}

	l.portfolioRisk = l.portfolioRisk.Sub(pos.RiskAmount)
	if l.portfolioRisk.LessThan(decimal.Zero) {
		l.portfolioRisk = decimal.Zero
	}
	delete(l.positions, symbol)
	l.closedTrades = append(l.closedTrades, trade)

	logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"fill":   trade.ExitPrice.String(),
		"net":    trade.NetProfit.String(),
	}).Debug("Closed position")

	return trade, nil
}

// UpdatePositions refreshes each open position's excursion extremes at
// the given mark prices. Cash and risk are untouched.
func (l *Ledger) UpdatePositions(prices map[string]decimal.Decimal) {
	for sym, pos := range l.positions {
		mark, ok := prices[sym]
		if !ok {
			continue
		}
		pnl := pos.UnrealizedPnL(mark)
		if pnl.GreaterThan(pos.MaxFavorable) {
			pos.MaxFavorable = pnl
		}
		if pnl.LessThan(pos.MaxAdverse) {
			pos.MaxAdverse = pnl
		}
	}
}
