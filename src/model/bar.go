package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is a single OHLCV observation for a symbol at a timestamp.
// Bars are externally supplied and never mutated by the engine.
type Bar struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `json:"symbol"    gorm:"type:varchar(50);not null;uniqueIndex:ux_bars_symbol_timestamp,priority:1;index:idx_bars_symbol_timestamp,priority:1"`
	Timestamp time.Time       `json:"timestamp" gorm:"not null;uniqueIndex:ux_bars_symbol_timestamp,priority:2;index:idx_bars_symbol_timestamp,priority:2"`
	Open      decimal.Decimal `json:"open"   gorm:"type:double precision;not null"`
	High      decimal.Decimal `json:"high"   gorm:"type:double precision;not null"`
	Low       decimal.Decimal `json:"low"    gorm:"type:double precision;not null"`
	Close     decimal.Decimal `json:"close"  gorm:"type:double precision;not null"`
	Volume    decimal.Decimal `json:"volume" gorm:"type:double precision;not null"`
}

func (Bar) TableName() string {
	return "bars"
}

func (b Bar) IsBullish() bool { return b.Close.GreaterThan(b.Open) }
func (b Bar) IsBearish() bool { return b.Close.LessThan(b.Open) }
