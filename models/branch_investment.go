package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BranchInvestment is the per-branch funding aggregate. One row per branch,
// created lazily on the first aggregation. Owned exclusively by the
// services.Aggregator; nothing else writes the derived fields.
type BranchInvestment struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	BranchID uint `gorm:"not null;uniqueIndex" json:"branch_id"`

	// Derived: sum of amount over completed investments for this branch.
	TotalInvested decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0.00" json:"total_invested"`
	// Derived: count of distinct owners with at least one completed investment.
	TotalInvestors int `gorm:"not null;default:0" json:"total_investors"`

	InvestmentLimit     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0.00" json:"investment_limit"`
	IsOpenForInvestment bool            `gorm:"not null;default:true" json:"is_open_for_investment"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Branch *Branch `gorm:"foreignKey:BranchID" json:"branch,omitempty"`
}

func (BranchInvestment) TableName() string {
	return "branch_investments"
}

// Remaining is the capacity still open for new funding, floored at zero.
func (b *BranchInvestment) Remaining() decimal.Decimal {
	r := b.InvestmentLimit.Sub(b.TotalInvested)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// ProgressPct is total_invested over investment_limit as a 0-100 percentage,
// capped at 100. Zero-limit branches report 0.
func (b *BranchInvestment) ProgressPct() float64 {
	if !b.InvestmentLimit.IsPositive() {
		return 0
	}
	pct, _ := b.TotalInvested.Div(b.InvestmentLimit).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	if pct > 100 {
		return 100
	}
	return pct
}
