package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestInvestmentStatus_TransitionTable(t *testing.T) {
	all := []InvestmentStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusRefunded}
	allowed := map[InvestmentStatus]map[InvestmentStatus]bool{
		StatusPending:    {StatusProcessing: true, StatusCompleted: true, StatusFailed: true},
		StatusProcessing: {StatusCompleted: true, StatusFailed: true},
		StatusCompleted:  {StatusRefunded: true},
		StatusFailed:     {},
		StatusRefunded:   {},
	}

	for _, from := range all {
		for _, to := range all {
			got := from.CanTransition(to)
			want := allowed[from][to]
			if got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestInvestmentStatus_Terminal(t *testing.T) {
	if !StatusFailed.IsTerminal() || !StatusRefunded.IsTerminal() {
		t.Fatal("failed and refunded are terminal")
	}
	for _, s := range []InvestmentStatus{StatusPending, StatusProcessing, StatusCompleted} {
		if s.IsTerminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
}

func TestInvestmentStatus_Valid(t *testing.T) {
	for _, s := range []InvestmentStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusRefunded} {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if InvestmentStatus("cancelled").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}

func TestTransition_RejectsIllegalMove(t *testing.T) {
	inv := Investment{Reference: "INV-TEST", Status: StatusFailed}
	if err := inv.Transition(StatusCompleted); err == nil {
		t.Fatal("failed -> completed must be rejected")
	}
	if inv.Status != StatusFailed {
		t.Fatalf("rejected transition must not mutate status, got %s", inv.Status)
	}
	if err := inv.Transition(InvestmentStatus("cancelled")); err == nil {
		t.Fatal("unknown target status must be rejected")
	}
}

func TestTransition_StampsInvestedAtOnce(t *testing.T) {
	inv := Investment{Reference: "INV-TEST", Status: StatusPending}
	if err := inv.Transition(StatusCompleted); err != nil {
		t.Fatalf("pending -> completed: %v", err)
	}
	if inv.InvestedAt == nil {
		t.Fatal("invested_at must be stamped on completion")
	}
	first := *inv.InvestedAt

	// The stamp survives the refund reversal.
	time.Sleep(time.Millisecond)
	if err := inv.Transition(StatusRefunded); err != nil {
		t.Fatalf("completed -> refunded: %v", err)
	}
	if inv.InvestedAt == nil || !inv.InvestedAt.Equal(first) {
		t.Fatal("invested_at must never change after the first stamp")
	}
}

func TestClearRailFields(t *testing.T) {
	intent := "pi_123"
	details := "FPS ref"
	admin := uint(4)
	now := time.Now()
	receipt := "receipts/INV-1/slip.jpg"

	inv := Investment{
		PaymentMethod:   MethodCard,
		Amount:          decimal.NewFromInt(100),
		PaymentIntentID: &intent,
		BankDetails:     &details,
		ConfirmedBy:     &admin,
		ConfirmedAt:     &now,
		ReceiptKey:      &receipt,
	}
	inv.ClearRailFields()
	if inv.BankDetails != nil || inv.ConfirmedBy != nil || inv.ConfirmedAt != nil || inv.ReceiptKey != nil {
		t.Fatal("card investment must carry no bank-rail fields")
	}
	if inv.PaymentIntentID == nil {
		t.Fatal("card rail fields must survive")
	}

	inv.PaymentMethod = MethodBankTransfer
	inv.BankDetails = &details
	inv.ClearRailFields()
	if inv.PaymentIntentID != nil {
		t.Fatal("bank investment must carry no card-rail fields")
	}
	if inv.BankDetails == nil {
		t.Fatal("bank rail fields must survive")
	}
}
