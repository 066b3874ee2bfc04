package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TxTypePayment       = "payment"
	TxTypeRefund        = "refund"
	TxTypePartialRefund = "partial_refund" // reserved: refunds are full-amount only today
)

// InvestmentTransaction is the append-only audit trail: one row per attempted
// state change against an investment. Rows are written once and never mutated;
// they exist for dispute resolution and replay debugging, current state is
// always derived from the investments table.
type InvestmentTransaction struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	InvestmentID  uint            `gorm:"not null;index" json:"investment_id"`
	Type          string          `gorm:"type:varchar(16);not null" json:"type"`
	Amount        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	ExternalID    *string         `gorm:"type:varchar(191)" json:"external_id,omitempty"`
	Status        string          `gorm:"type:varchar(16);not null" json:"status"`
	FailureReason *string         `gorm:"type:text" json:"failure_reason,omitempty"`
	RawResponse   *string         `gorm:"type:text" json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (InvestmentTransaction) TableName() string {
	return "investment_transactions"
}
