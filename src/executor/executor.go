// Package executor holds the pure fill math shared by the single-symbol
// engine and the portfolio engine: slippage, commission, and round-trip
// profit. It never touches cash or the position map; all ledger mutation
// happens in the caller.
package executor

import (
	"time"

	"github.com/shopspring/decimal"

	"portfoliosim/src/model"
)

var (
	bpsDenominator = decimal.NewFromInt(10_000)
	one            = decimal.NewFromInt(1)
)

type Executor struct {
	slippageBps    decimal.Decimal
	commissionRate decimal.Decimal
}

func New(cfg model.BacktestConfig) *Executor {
	return &Executor{
		slippageBps:    cfg.SlippageBps,
		commissionRate: cfg.CommissionRate,
	}
}

// ApplySlippage adjusts a base price adversely for the fill direction.
// A long entry and a short exit both buy, so they fill above the base
// price; a short entry and a long exit both sell, so they fill below.
// Magnitude is price * slippageBps / 10000. Zero slippage is a no-op.
func (e *Executor) ApplySlippage(price decimal.Decimal, side model.Side, isEntry bool) decimal.Decimal {
	if e.slippageBps.IsZero() {
		return price
	}

	fraction := e.slippageBps.Div(bpsDenominator)

	buying := (side == model.SideLong) == isEntry
	if buying {
		return price.Mul(one.Add(fraction))
	}
	return price.Mul(one.Sub(fraction))
}

// ComputeCommission returns |quantity * price| * rate, or zero when the
// configured rate is not positive.
func (e *Executor) ComputeCommission(quantity, price decimal.Decimal) decimal.Decimal {
	if e.commissionRate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return quantity.Mul(price).Abs().Mul(e.commissionRate)
}

// OpenPosition builds a Position from a requested entry. The returned
// commission has not been debited from anything; capital sufficiency is
// the ledger's responsibility, not checked here.
func (e *Executor) OpenPosition(
	symbol string,
	side model.Side,
	quantity decimal.Decimal,
	basePrice decimal.Decimal,
	entryTime time.Time,
	stopLoss decimal.Decimal,
	target decimal.Decimal,
	riskAmount decimal.Decimal,
) (model.Position, decimal.Decimal) {
	fill := e.ApplySlippage(basePrice, side, true)
	commission := e.ComputeCommission(quantity, fill)

	pos := model.Position{
		Symbol:          symbol,
		Side:            side,
		Quantity:        quantity,
		EntryPrice:      fill,
		EntryTime:       entryTime,
		EntryCommission: commission,
		StopLoss:        stopLoss,
		Target:          target,
		RiskAmount:      riskAmount,
	}

	return pos, commission
}

// ClosePosition converts an open position into a Trade at the given
// base exit price. Gross profit is direction * quantity * (fill -
// entry); net profit subtracts both legs' commissions.
func (e *Executor) ClosePosition(pos model.Position, basePrice decimal.Decimal, exitTime time.Time) model.Trade {
	fill := e.ApplySlippage(basePrice, pos.Side, false)
	exitCommission := e.ComputeCommission(pos.Quantity, fill)

	gross := pos.Side.Direction().Mul(pos.Quantity).Mul(fill.Sub(pos.EntryPrice))
	totalCommission := pos.EntryCommission.Add(exitCommission)

	return model.Trade{
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		Quantity:    pos.Quantity,
		EntryTime:   pos.EntryTime,
		EntryPrice:  pos.EntryPrice,
		ExitTime:    exitTime,
		ExitPrice:   fill,
		GrossProfit: gross,
		NetProfit:   gross.Sub(totalCommission),
		Commission:  totalCommission,
		Notes:       pos.Notes,
	}
}
