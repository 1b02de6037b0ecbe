// Package strategy defines the contract the engines call into. The
// engines depend only on the Strategy interface; concrete strategies
// are interchangeable.
package strategy

import (
	"github.com/shopspring/decimal"

	"portfoliosim/src/model"
)

// Context is everything a strategy may look at on one bar: the bar
// itself, the open position on that symbol (nil when flat), account
// state, the indicator snapshot, and a bounded rolling history ending
// at the current bar. The history slice is read-only.
type Context struct {
	Symbol     string
	Bar        model.Bar
	Position   *model.Position
	Cash       decimal.Decimal
	Equity     decimal.Decimal
	Indicators map[string]float64
	History    []model.Bar
}

type Strategy interface {
	Name() string

	// Prepare is a one-time hook called with the full dataset before
	// the simulation starts.
	Prepare(bars map[string][]model.Bar)

	// OnBar inspects the context and returns zero or more signals. The
	// engine queues them for execution on the next bar's open.
	OnBar(ctx Context) []model.Signal
}
