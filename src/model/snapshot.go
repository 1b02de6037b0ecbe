package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is one point of the equity curve, recorded once
// per simulated timestep after that step's executions.
type PortfolioSnapshot struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	RunID     string          `gorm:"type:varchar(36);index" json:"run_id,omitempty"`
	Timestamp time.Time       `gorm:"not null;index" json:"timestamp"`
	Equity    decimal.Decimal `gorm:"type:double precision;not null" json:"equity"`
	Cash      decimal.Decimal `gorm:"type:double precision;not null" json:"cash"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
