package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the permanent record of a completed round-trip. Immutable
// once created by the ledger.
type Trade struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	RunID       string          `gorm:"type:varchar(36);index" json:"run_id,omitempty"`
	Symbol      string          `gorm:"type:varchar(50);not null;index" json:"symbol"`
	Side        Side            `gorm:"type:varchar(10);not null" json:"side"`
	Quantity    decimal.Decimal `gorm:"type:double precision;not null" json:"quantity"`
	EntryTime   time.Time       `gorm:"not null" json:"entry_time"`
	EntryPrice  decimal.Decimal `gorm:"type:double precision;not null" json:"entry_price"`
	ExitTime    time.Time       `gorm:"not null" json:"exit_time"`
	ExitPrice   decimal.Decimal `gorm:"type:double precision;not null" json:"exit_price"`
	GrossProfit decimal.Decimal `gorm:"type:double precision;not null" json:"gross_profit"`
	NetProfit   decimal.Decimal `gorm:"type:double precision;not null" json:"net_profit"`
	Commission  decimal.Decimal `gorm:"type:double precision;not null" json:"commission"` // both legs
	Notes       string          `gorm:"type:text" json:"notes,omitempty"`
}

func (Trade) TableName() string {
	return "trades"
}

func (t Trade) IsWinner() bool { return t.NetProfit.GreaterThan(decimal.Zero) }
