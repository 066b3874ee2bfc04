package services

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/models"
)

// Aggregator owns the branch_investments rows. All recomputation happens under
// an exclusive lock on the branch aggregate row, so concurrent reconciliations
// against the same branch serialize here and cross-branch work never contends.
type Aggregator struct {
	db     *gorm.DB
	notify Notifier
}

func NewAggregator(db *gorm.DB, notify Notifier) *Aggregator {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Aggregator{db: db, notify: notify}
}

// lockForUpdate adds a SELECT ... FOR UPDATE clause on dialects that support
// it. SQLite serializes writers on its own and rejects the clause.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// lockBranchAggregate fetches the aggregate row for branchID with an exclusive
// row lock, creating it lazily if the branch has never been aggregated.
func lockBranchAggregate(tx *gorm.DB, branchID uint) (*models.BranchInvestment, error) {
	var agg models.BranchInvestment
	err := lockForUpdate(tx).Where("branch_id = ?", branchID).First(&agg).Error
	if err == nil {
		return &agg, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("lock branch aggregate: %w", err)
	}
	agg = models.BranchInvestment{
		BranchID:            branchID,
		TotalInvested:       decimal.Zero,
		TotalInvestors:      0,
		InvestmentLimit:     decimal.Zero,
		IsOpenForInvestment: true,
	}
	if err := tx.Create(&agg).Error; err != nil {
		return nil, fmt.Errorf("create branch aggregate: %w", err)
	}
	// Re-read under lock so a racing creator and we agree on one row.
	if err := lockForUpdate(tx).Where("branch_id = ?", branchID).First(&agg).Error; err != nil {
		return nil, fmt.Errorf("relock branch aggregate: %w", err)
	}
	return &agg, nil
}

// recomputeBranchTotals recalculates total_invested and total_investors from
// the authoritative set of completed investments and writes them back to the
// locked aggregate row. Recomputing from source rows instead of incrementing a
// cached counter keeps the operation idempotent and self-heals any prior drift.
// Returns true when this recompute is the one that exhausted capacity.
func recomputeBranchTotals(tx *gorm.DB, agg *models.BranchInvestment) (closedNow bool, err error) {
	var completed []models.Investment
	if err := tx.Select("amount", "user_id").
		Where("branch_id = ? AND status = ?", agg.BranchID, models.StatusCompleted).
		Find(&completed).Error; err != nil {
		return false, fmt.Errorf("load completed investments: %w", err)
	}

	total := decimal.Zero
	owners := make(map[uint]struct{}, len(completed))
	for _, inv := range completed {
		if inv.Amount.IsNegative() {
			return false, &InvariantViolation{BranchID: agg.BranchID, Detail: fmt.Sprintf("completed investment with negative amount %s", inv.Amount)}
		}
		total = total.Add(inv.Amount)
		owners[inv.UserID] = struct{}{}
	}
	if total.IsNegative() {
		return false, &InvariantViolation{BranchID: agg.BranchID, Detail: fmt.Sprintf("recomputed total %s is negative", total)}
	}

	agg.TotalInvested = total
	agg.TotalInvestors = len(owners)

	// Capacity check: the aggregator closes, only an admin reopens.
	if agg.InvestmentLimit.IsPositive() &&
		agg.TotalInvested.GreaterThanOrEqual(agg.InvestmentLimit) &&
		agg.IsOpenForInvestment {
		agg.IsOpenForInvestment = false
		closedNow = true
	}

	updates := map[string]interface{}{
		"total_invested":         agg.TotalInvested,
		"total_investors":        agg.TotalInvestors,
		"is_open_for_investment": agg.IsOpenForInvestment,
	}
	if err := tx.Model(&models.BranchInvestment{}).Where("id = ?", agg.ID).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("write branch aggregate: %w", err)
	}
	return closedNow, nil
}

// Recalculate recomputes one branch aggregate in its own transaction. Used by
// the admin resync path and by anything that changed completed rows outside
// the reconciliation engine.
func (a *Aggregator) Recalculate(ctx context.Context, branchID uint) (*models.BranchInvestment, error) {
	var agg *models.BranchInvestment
	var closedNow bool
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockBranchAggregate(tx, branchID)
		if err != nil {
			return err
		}
		closedNow, err = recomputeBranchTotals(tx, locked)
		if err != nil {
			return err
		}
		agg = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	if closedNow {
		log.Printf("[AGGREGATE] branch %d reached its investment limit, closed for funding", branchID)
		a.notify.Dispatch(Event{Type: EventBranchCapacityReached, BranchID: branchID})
	}
	return agg, nil
}

// Stats reads the aggregate row for a branch without touching it.
func (a *Aggregator) Stats(ctx context.Context, branchID uint) (*models.BranchInvestment, error) {
	var agg models.BranchInvestment
	if err := a.db.WithContext(ctx).Where("branch_id = ?", branchID).First(&agg).Error; err != nil {
		return nil, err
	}
	return &agg, nil
}
