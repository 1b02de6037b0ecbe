package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestRun is the persisted header of one completed backtest.
// Trades and snapshots reference it through RunID.
type BacktestRun struct {
	ID             string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Strategy       string          `gorm:"type:varchar(100);not null" json:"strategy"`
	Symbols        string          `gorm:"type:text;not null" json:"symbols"` // comma separated
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time"`
	InitialCapital decimal.Decimal `gorm:"type:double precision;not null" json:"initial_capital"`
	FinalEquity    decimal.Decimal `gorm:"type:double precision;not null" json:"final_equity"`
	FinalCash      decimal.Decimal `gorm:"type:double precision;not null" json:"final_cash"`
	TotalTrades    int             `json:"total_trades"`
	OpenPositions  int             `json:"open_positions"` // should be zero after terminal liquidation
	CreatedAt      time.Time       `json:"created_at"`
}

func (BacktestRun) TableName() string {
	return "backtest_runs"
}
