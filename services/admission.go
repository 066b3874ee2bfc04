package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/models"
	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/utils"
)

// AdmissionLimits are the configured per-investment amount bounds.
type AdmissionLimits struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// LimitsFromEnv reads INVESTMENT_MIN_AMOUNT / INVESTMENT_MAX_AMOUNT, defaulting
// to the 10-10,000 GBP product bounds.
func LimitsFromEnv() AdmissionLimits {
	limits := AdmissionLimits{
		Min: decimal.NewFromInt(10),
		Max: decimal.NewFromInt(10000),
	}
	if v := strings.TrimSpace(os.Getenv("INVESTMENT_MIN_AMOUNT")); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			limits.Min = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("INVESTMENT_MAX_AMOUNT")); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			limits.Max = d
		}
	}
	return limits
}

// Admission validates a proposed investment against amount bounds and the
// branch's remaining capacity, and creates the pending ledger entry. Every
// check is a hard rejection; nothing is created on failure.
type Admission struct {
	db     *gorm.DB
	limits AdmissionLimits
}

func NewAdmission(db *gorm.DB, limits AdmissionLimits) *Admission {
	return &Admission{db: db, limits: limits}
}

type CreateInvestmentInput struct {
	UserID        uint
	BranchID      uint
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	Notes         string
}

// CreateInvestment runs the admission checks in order and creates the entry in
// pending. The capacity check reads the current aggregate without taking the
// branch lock; a concurrent completion can therefore slip past it, which is
// accepted because the authoritative capacity check re-runs under the branch
// lock when the entry completes.
func (a *Admission) CreateInvestment(ctx context.Context, in CreateInvestmentInput) (*models.Investment, error) {
	if in.PaymentMethod != models.MethodCard && in.PaymentMethod != models.MethodBankTransfer {
		return nil, admissionErrf("payment method must be card or bank_transfer")
	}
	if !in.Amount.IsPositive() {
		return nil, admissionErrf("investment amount must be positive")
	}
	if in.Amount.LessThan(a.limits.Min) || in.Amount.GreaterThan(a.limits.Max) {
		return nil, admissionErrf("investment amount must be between %s and %s", a.limits.Min, a.limits.Max)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "GBP"
	}

	var branch models.Branch
	if err := a.db.WithContext(ctx).First(&branch, in.BranchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, admissionErrf("branch %d not found", in.BranchID)
		}
		return nil, fmt.Errorf("load branch: %w", err)
	}

	var agg models.BranchInvestment
	if err := a.db.WithContext(ctx).Where("branch_id = ?", in.BranchID).First(&agg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, admissionErrf("branch %s is not accepting investment", branch.Name)
		}
		return nil, fmt.Errorf("load branch aggregate: %w", err)
	}
	if !agg.IsOpenForInvestment {
		return nil, admissionErrf("branch %s is closed for investment", branch.Name)
	}
	if agg.TotalInvested.Add(in.Amount).GreaterThan(agg.InvestmentLimit) {
		return nil, admissionErrf("amount %s exceeds the remaining capacity of %s for branch %s",
			in.Amount, agg.Remaining(), branch.Name)
	}

	inv := models.Investment{
		Reference:     utils.GenerateReference(),
		UserID:        in.UserID,
		BranchID:      in.BranchID,
		Amount:        in.Amount,
		Currency:      currency,
		PaymentMethod: in.PaymentMethod,
		Status:        models.StatusPending,
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		inv.Notes = &notes
	}
	if err := a.db.WithContext(ctx).Create(&inv).Error; err != nil {
		return nil, fmt.Errorf("create investment: %w", err)
	}
	return &inv, nil
}
