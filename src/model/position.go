package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Direction returns +1 for long and -1 for short, the sign used in all
// profit and mark-to-market arithmetic.
func (s Side) Direction() decimal.Decimal {
	if s == SideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Position is one open holding. At most one Position exists per symbol
// at a time; it is created by the ledger on entry and converted into a
// Trade on exit. StopLoss and Target use zero as "not set".
type Position struct {
	Symbol          string          `json:"symbol"`
	Side            Side            `json:"side"`
	Quantity        decimal.Decimal `json:"quantity"`
	EntryPrice      decimal.Decimal `json:"entry_price"` // post-slippage fill
	EntryTime       time.Time       `json:"entry_time"`
	EntryCommission decimal.Decimal `json:"entry_commission"`
	StopLoss        decimal.Decimal `json:"stop_loss,omitempty"`
	Target          decimal.Decimal `json:"target,omitempty"`
	RiskAmount      decimal.Decimal `json:"risk_amount"`
	MaxFavorable    decimal.Decimal `json:"max_favorable"` // best excursion since entry
	MaxAdverse      decimal.Decimal `json:"max_adverse"`   // worst excursion since entry
	Notes           string          `json:"notes,omitempty"`
}

func (p Position) HasStopLoss() bool { return !p.StopLoss.IsZero() }
func (p Position) HasTarget() bool   { return !p.Target.IsZero() }

// MarketValue is the signed mark-to-market value of the position at
// the given price: direction * quantity * price.
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Side.Direction().Mul(p.Quantity).Mul(price)
}

// UnrealizedPnL is the open profit at the given mark price, gross of
// commissions.
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return p.Side.Direction().Mul(p.Quantity).Mul(price.Sub(p.EntryPrice))
}
