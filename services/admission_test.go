package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/models"
)

func testLimits(t *testing.T) AdmissionLimits {
	t.Helper()
	return AdmissionLimits{Min: mustDecimal(t, "10"), Max: mustDecimal(t, "10000")}
}

func expectAdmissionError(t *testing.T, err error) *AdmissionError {
	t.Helper()
	var aerr *AdmissionError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AdmissionError, got %v", err)
	}
	return aerr
}

func TestCreateInvestment_Succeeds(t *testing.T) {
	db := openTestDB(t)
	branch := seedBranch(t, db, "Wellness Kandy", "1000")

	inv, err := NewAdmission(db, testLimits(t)).CreateInvestment(context.Background(), CreateInvestmentInput{
		UserID:        3,
		BranchID:      branch.ID,
		Amount:        mustDecimal(t, "250"),
		PaymentMethod: models.MethodCard,
		Notes:         "first tranche",
	})
	if err != nil {
		t.Fatalf("CreateInvestment: %v", err)
	}
	if inv.Status != models.StatusPending {
		t.Fatalf("new entry must be pending, got %s", inv.Status)
	}
	if !strings.HasPrefix(inv.Reference, "INV-") {
		t.Fatalf("unexpected reference %q", inv.Reference)
	}
	if inv.Currency != "GBP" {
		t.Fatalf("expected GBP default, got %s", inv.Currency)
	}
	if inv.Notes == nil || *inv.Notes != "first tranche" {
		t.Fatalf("notes not kept: %+v", inv.Notes)
	}
}

func TestCreateInvestment_AmountBounds(t *testing.T) {
	db := openTestDB(t)
	branch := seedBranch(t, db, "Wellness Kandy", "100000")
	adm := NewAdmission(db, testLimits(t))

	for _, amount := range []string{"-5", "0", "9.99", "10000.01"} {
		_, err := adm.CreateInvestment(context.Background(), CreateInvestmentInput{
			UserID: 1, BranchID: branch.ID, Amount: mustDecimal(t, amount), PaymentMethod: models.MethodCard,
		})
		expectAdmissionError(t, err)
	}

	// Boundary values are accepted.
	for _, amount := range []string{"10", "10000"} {
		if _, err := adm.CreateInvestment(context.Background(), CreateInvestmentInput{
			UserID: 1, BranchID: branch.ID, Amount: mustDecimal(t, amount), PaymentMethod: models.MethodCard,
		}); err != nil {
			t.Fatalf("boundary amount %s rejected: %v", amount, err)
		}
	}
}

func TestCreateInvestment_UnknownMethod(t *testing.T) {
	db := openTestDB(t)
	branch := seedBranch(t, db, "Wellness Kandy", "1000")

	_, err := NewAdmission(db, testLimits(t)).CreateInvestment(context.Background(), CreateInvestmentInput{
		UserID: 1, BranchID: branch.ID, Amount: mustDecimal(t, "100"), PaymentMethod: "cheque",
	})
	expectAdmissionError(t, err)
}

func TestCreateInvestment_BranchMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := NewAdmission(db, testLimits(t)).CreateInvestment(context.Background(), CreateInvestmentInput{
		UserID: 1, BranchID: 777, Amount: mustDecimal(t, "100"), PaymentMethod: models.MethodCard,
	})
	expectAdmissionError(t, err)
}

func TestCreateInvestment_BranchNotAcceptingWithoutFundingRow(t *testing.T) {
	db := openTestDB(t)
	branch := models.Branch{Name: "Wellness Badulla", Status: "Active"}
	if err := db.Create(&branch).Error; err != nil {
		t.Fatalf("create branch: %v", err)
	}

	_, err := NewAdmission(db, testLimits(t)).CreateInvestment(context.Background(), CreateInvestmentInput{
		UserID: 1, BranchID: branch.ID, Amount: mustDecimal(t, "100"), PaymentMethod: models.MethodCard,
	})
	aerr := expectAdmissionError(t, err)
	if !strings.Contains(aerr.Reason, "not accepting") {
		t.Fatalf("unexpected reason %q", aerr.Reason)
	}
}

func TestCreateInvestment_ClosedBranch(t *testing.T) {
	db := openTestDB(t)
	branch := seedBranch(t, db, "Wellness Kandy", "1000")
	if err := db.Model(&models.BranchInvestment{}).Where("branch_id = ?", branch.ID).
		Update("is_open_for_investment", false).Error; err != nil {
		t.Fatalf("close branch: %v", err)
	}

	_, err := NewAdmission(db, testLimits(t)).CreateInvestment(context.Background(), CreateInvestmentInput{
		UserID: 1, BranchID: branch.ID, Amount: mustDecimal(t, "100"), PaymentMethod: models.MethodCard,
	})
	expectAdmissionError(t, err)
}

func TestCreateInvestment_ExceedsRemainingCapacity(t *testing.T) {
	db := openTestDB(t)
	branch := seedBranch(t, db, "Wellness Kandy", "1000")
	seedInvestment(t, db, branch.ID, 1, "950", models.MethodCard, models.StatusCompleted)
	if _, err := NewAggregator(db, NopNotifier{}).Recalculate(context.Background(), branch.ID); err != nil {
		t.Fatalf("recalc: %v", err)
	}

	_, err := NewAdmission(db, testLimits(t)).CreateInvestment(context.Background(), CreateInvestmentInput{
		UserID: 2, BranchID: branch.ID, Amount: mustDecimal(t, "60"), PaymentMethod: models.MethodCard,
	})
	expectAdmissionError(t, err)

	// Nothing was created for the rejected request.
	var count int64
	if err := db.Model(&models.Investment{}).Where("user_id = ?", 2).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected admission must not create rows, found %d", count)
	}

	// The exact remaining amount still fits.
	if _, err := NewAdmission(db, testLimits(t)).CreateInvestment(context.Background(), CreateInvestmentInput{
		UserID: 2, BranchID: branch.ID, Amount: mustDecimal(t, "50"), PaymentMethod: models.MethodBankTransfer,
	}); err != nil {
		t.Fatalf("exact-fit amount rejected: %v", err)
	}
}

func TestCreateInvestment_CurrencyNormalized(t *testing.T) {
	db := openTestDB(t)
	branch := seedBranch(t, db, "Wellness Kandy", "1000")

	inv, err := NewAdmission(db, testLimits(t)).CreateInvestment(context.Background(), CreateInvestmentInput{
		UserID: 1, BranchID: branch.ID, Amount: mustDecimal(t, "100"),
		Currency: " gbp ", PaymentMethod: models.MethodBankTransfer,
	})
	if err != nil {
		t.Fatalf("CreateInvestment: %v", err)
	}
	if inv.Currency != "GBP" {
		t.Fatalf("expected normalized GBP, got %q", inv.Currency)
	}
}
