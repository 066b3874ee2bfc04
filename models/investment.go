package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InvestmentStatus is the closed set of ledger entry states.
type InvestmentStatus string

const (
	StatusPending    InvestmentStatus = "pending"
	StatusProcessing InvestmentStatus = "processing"
	StatusCompleted  InvestmentStatus = "completed"
	StatusFailed     InvestmentStatus = "failed"
	StatusRefunded   InvestmentStatus = "refunded"
)

const (
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
)

// allowedTransitions is the full transition table. Anything not listed here is
// rejected; there are no silent no-ops at this layer.
var allowedTransitions = map[InvestmentStatus][]InvestmentStatus{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusRefunded},
	StatusFailed:     {},
	StatusRefunded:   {},
}

// CanTransition reports whether from -> to is an allowed lifecycle move.
func (s InvestmentStatus) CanTransition(to InvestmentStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further movement is possible out of s other
// than the completed -> refunded reversal.
func (s InvestmentStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusRefunded
}

func (s InvestmentStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

type Investment struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Reference string          `gorm:"type:varchar(32);not null;uniqueIndex" json:"reference"`
	UserID    uint            `gorm:"not null;index" json:"user_id"`
	BranchID  uint            `gorm:"not null;index" json:"branch_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency  string          `gorm:"type:varchar(3);not null;default:'GBP'" json:"currency"`

	PaymentMethod string           `gorm:"type:varchar(16);not null" json:"payment_method"`
	Status        InvestmentStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`

	// Card rail only.
	PaymentIntentID *string `gorm:"type:varchar(191);index" json:"payment_intent_id,omitempty"`

	// Bank rail only.
	BankDetails *string    `gorm:"type:text" json:"bank_details,omitempty"`
	ConfirmedBy *uint      `json:"confirmed_by,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ReceiptKey  *string    `gorm:"type:varchar(255)" json:"-"`

	// Stamped on the first transition into completed, never cleared.
	InvestedAt *time.Time `json:"invested_at,omitempty"`

	Notes     *string   `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Branch *Branch `gorm:"foreignKey:BranchID" json:"branch,omitempty"`
}

func (Investment) TableName() string {
	return "investments"
}

// Transition mutates the in-memory status after checking the transition table.
// Persisting the change is the caller's job, inside whatever transaction it holds.
func (inv *Investment) Transition(to InvestmentStatus) error {
	if !to.Valid() {
		return fmt.Errorf("unknown investment status %q", to)
	}
	if !inv.Status.CanTransition(to) {
		return fmt.Errorf("investment %s: illegal transition %s -> %s", inv.Reference, inv.Status, to)
	}
	inv.Status = to
	if to == StatusCompleted && inv.InvestedAt == nil {
		now := time.Now()
		inv.InvestedAt = &now
	}
	return nil
}

// ClearRailFields blanks whichever payment-rail metadata does not belong to the
// current payment method. Called when an admin edits payment_method so the
// one-rail-populated invariant keeps holding.
func (inv *Investment) ClearRailFields() {
	switch inv.PaymentMethod {
	case MethodCard:
		inv.BankDetails = nil
		inv.ConfirmedBy = nil
		inv.ConfirmedAt = nil
		inv.ReceiptKey = nil
	case MethodBankTransfer:
		inv.PaymentIntentID = nil
	}
}
