package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/models"
)

const (
	EventTypeIntentSucceeded = "payment_intent.succeeded"
	EventTypeIntentFailed    = "payment_intent.payment_failed"

	reasonCapacityExhausted = "capacity_exhausted"
	reasonPaymentDeclined   = "payment_declined"
	reasonExpired           = "expired_before_payment"
)

// PendingExpiryWindowFromEnv reads PENDING_EXPIRY_HOURS (default 24) for the
// stale-pending sweep.
func PendingExpiryWindowFromEnv() time.Duration {
	if v := strings.TrimSpace(os.Getenv("PENDING_EXPIRY_HOURS")); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			return time.Duration(h) * time.Hour
		}
	}
	return 24 * time.Hour
}

// Reconciler turns trusted payment signals (webhook events, admin
// confirmations, retry actions) into at most one state transition and at most
// one aggregate update per signal, no matter how often the signal is replayed.
type Reconciler struct {
	db      *gorm.DB
	gateway CardGateway
	notify  Notifier
}

func NewReconciler(db *gorm.DB, gateway CardGateway, notify Notifier) *Reconciler {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Reconciler{db: db, gateway: gateway, notify: notify}
}

// HandleCardEvent reconciles a card webhook event. The event payload's status
// claim is not trusted: the authoritative intent status is re-fetched from the
// gateway before anything transitions. Replaying an event against an already
// terminal entry returns the entry unchanged with a nil error.
func (r *Reconciler) HandleCardEvent(ctx context.Context, eventType, intentID string) (*models.Investment, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, validationErrf("webhook event carries no payment intent id")
	}

	var inv models.Investment
	if err := r.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validationErrf("no investment for payment intent %s", intentID)
		}
		return nil, fmt.Errorf("lookup investment by intent: %w", err)
	}

	// Replay safety: the gateway delivers at-least-once and the admin retry
	// action re-triggers the same check. A terminal entry consistent with the
	// event is a successful no-op.
	if inv.Status == models.StatusCompleted ||
		(inv.Status.IsTerminal() && eventType == EventTypeIntentFailed) {
		return &inv, nil
	}
	if inv.Status.IsTerminal() {
		// failed/refunded entry receiving a success event: late signal after a
		// definitive outcome. Log loudly, change nothing.
		log.Printf("[RECONCILE] dropping %s for terminal investment %s (status=%s)", eventType, inv.Reference, inv.Status)
		return &inv, nil
	}

	return r.reconcileCard(ctx, inv.ID, intentID)
}

// RetryCardProcessing is the admin "retry processing" action: re-run the
// authoritative gateway check for a stuck card investment.
func (r *Reconciler) RetryCardProcessing(ctx context.Context, investmentID uint) (*models.Investment, error) {
	var inv models.Investment
	if err := r.db.WithContext(ctx).First(&inv, investmentID).Error; err != nil {
		return nil, err
	}
	if inv.PaymentMethod != models.MethodCard {
		return nil, validationErrf("investment %s is not a card payment", inv.Reference)
	}
	if inv.PaymentIntentID == nil || *inv.PaymentIntentID == "" {
		return nil, validationErrf("investment %s has no payment intent to check", inv.Reference)
	}
	if inv.Status == models.StatusCompleted || inv.Status.IsTerminal() {
		return &inv, nil
	}
	return r.reconcileCard(ctx, inv.ID, *inv.PaymentIntentID)
}

// reconcileCard fetches the authoritative intent status and applies the
// resulting transition. The gateway call happens before any row lock is taken
// so a slow processor never blocks other writers.
func (r *Reconciler) reconcileCard(ctx context.Context, investmentID uint, intentID string) (*models.Investment, error) {
	status, raw, err := r.gateway.GetIntentStatus(ctx, intentID)
	if err != nil {
		if isTransientGatewayErr(err) {
			// Transient: the webhook delivery mechanism retries. Do not guess
			// an outcome, leave the entry exactly where it was.
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		// Definitive gateway answer (unknown intent, rejected request).
		// Retrying the same call cannot change it, so the signal must not be
		// redelivered; the entry stays where it was for the admin retry path.
		return nil, fmt.Errorf("gateway check for intent %s: %w", intentID, err)
	}

	switch status {
	case IntentSucceeded:
		return r.applyCardOutcome(ctx, investmentID, models.StatusCompleted, intentID, raw)
	case IntentFailed:
		return r.applyCardOutcome(ctx, investmentID, models.StatusFailed, intentID, raw)
	case IntentProcessing:
		return r.markProcessing(ctx, investmentID)
	default: // requires_action: the payer has not finished, nothing to do yet.
		var inv models.Investment
		if err := r.db.WithContext(ctx).First(&inv, investmentID).Error; err != nil {
			return nil, err
		}
		return &inv, nil
	}
}

// markProcessing records that the card rail has an intent in flight. Only
// pending entries move; anything else is left alone.
func (r *Reconciler) markProcessing(ctx context.Context, investmentID uint) (*models.Investment, error) {
	var inv models.Investment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&inv, investmentID).Error; err != nil {
			return err
		}
		if inv.Status != models.StatusPending {
			return nil
		}
		if err := inv.Transition(models.StatusProcessing); err != nil {
			return validationErrf("%v", err)
		}
		return tx.Model(&models.Investment{}).Where("id = ?", inv.ID).
			Update("status", inv.Status).Error
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// applyCardOutcome performs the (transition + aggregate update) pair as one
// atomic unit under the investment row lock, then the branch row lock. A
// concurrent reconciliation of the same entry serializes here: the loser
// observes the already-applied state and no-ops.
func (r *Reconciler) applyCardOutcome(ctx context.Context, investmentID uint, target models.InvestmentStatus, intentID, raw string) (*models.Investment, error) {
	var inv models.Investment
	var events []Event

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&inv, investmentID).Error; err != nil {
			return err
		}
		if inv.Status == target {
			return nil // a concurrent attempt already applied this outcome
		}
		if inv.Status.IsTerminal() || inv.Status == models.StatusCompleted {
			log.Printf("[RECONCILE] investment %s already %s, ignoring %s outcome", inv.Reference, inv.Status, target)
			return nil
		}

		reason := ""
		if target == models.StatusCompleted {
			agg, err := lockBranchAggregate(tx, inv.BranchID)
			if err != nil {
				return err
			}
			if overCapacity(agg, inv) {
				// The money was captured but the branch filled up first. The
				// entry fails here; the refund is an operator follow-up driven
				// by the emitted event.
				target = models.StatusFailed
				reason = reasonCapacityExhausted
			}
			if err := r.finishTransition(tx, &inv, target, models.TxTypePayment, intentID, raw, reason); err != nil {
				return err
			}
			closedNow, err := recomputeBranchTotals(tx, agg)
			if err != nil {
				return err
			}
			events = r.outcomeEvents(&inv, reason, closedNow)
			return nil
		}

		reason = reasonPaymentDeclined
		if err := r.finishTransition(tx, &inv, target, models.TxTypePayment, intentID, raw, reason); err != nil {
			return err
		}
		events = r.outcomeEvents(&inv, reason, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		r.notify.Dispatch(ev)
	}
	return &inv, nil
}

// finishTransition applies the state machine move, stamps invested_at through
// the model, persists the entry and appends the audit row. Must run inside the
// caller's transaction with the investment row locked.
func (r *Reconciler) finishTransition(tx *gorm.DB, inv *models.Investment, target models.InvestmentStatus, txType, externalID, raw, reason string) error {
	if err := inv.Transition(target); err != nil {
		return validationErrf("%v", err)
	}
	updates := map[string]interface{}{
		"status":      inv.Status,
		"invested_at": inv.InvestedAt,
	}
	if err := tx.Model(&models.Investment{}).Where("id = ?", inv.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("persist transition: %w", err)
	}

	audit := models.InvestmentTransaction{
		InvestmentID: inv.ID,
		Type:         txType,
		Amount:       inv.Amount,
		Status:       string(target),
	}
	if externalID != "" {
		audit.ExternalID = &externalID
	}
	if raw != "" {
		audit.RawResponse = &raw
	}
	if reason != "" {
		audit.FailureReason = &reason
	}
	if err := tx.Create(&audit).Error; err != nil {
		return fmt.Errorf("append audit row: %w", err)
	}
	return nil
}

func (r *Reconciler) outcomeEvents(inv *models.Investment, reason string, closedNow bool) []Event {
	evs := make([]Event, 0, 2)
	switch inv.Status {
	case models.StatusCompleted:
		evs = append(evs, Event{Type: EventInvestmentCompleted, InvestmentID: inv.ID, Reference: inv.Reference, BranchID: inv.BranchID, UserID: inv.UserID})
	case models.StatusFailed:
		evs = append(evs, Event{Type: EventInvestmentFailed, InvestmentID: inv.ID, Reference: inv.Reference, BranchID: inv.BranchID, UserID: inv.UserID, Reason: reason})
	}
	if closedNow {
		evs = append(evs, Event{Type: EventBranchCapacityReached, BranchID: inv.BranchID})
	}
	return evs
}

// overCapacity checks, under the branch lock, whether completing inv would
// push the completed total past the configured limit. Entries admitted while
// another completion was in flight fail here instead of overfilling the branch.
func overCapacity(agg *models.BranchInvestment, inv models.Investment) bool {
	if !agg.InvestmentLimit.IsPositive() {
		return false
	}
	return agg.TotalInvested.Add(inv.Amount).GreaterThan(agg.InvestmentLimit)
}

// ConfirmBankTransfer applies an administrator's confirm/reject decision to a
// pending bank-transfer investment. Free-text details are mandatory either way.
func (r *Reconciler) ConfirmBankTransfer(ctx context.Context, investmentID uint, confirmed bool, details string, adminID uint) (*models.Investment, error) {
	details = strings.TrimSpace(details)
	if details == "" {
		return nil, validationErrf("confirmation details are required")
	}

	var inv models.Investment
	var events []Event

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&inv, investmentID).Error; err != nil {
			return err
		}
		if inv.PaymentMethod != models.MethodBankTransfer {
			return validationErrf("investment %s is not a bank transfer", inv.Reference)
		}
		if inv.Status != models.StatusPending {
			return validationErrf("investment %s is %s, only pending bank transfers can be confirmed", inv.Reference, inv.Status)
		}

		target := models.StatusFailed
		reason := "rejected_by_admin"
		var agg *models.BranchInvestment
		if confirmed {
			var err error
			agg, err = lockBranchAggregate(tx, inv.BranchID)
			if err != nil {
				return err
			}
			if overCapacity(agg, inv) {
				return validationErrf("branch %d has insufficient remaining capacity for %s %s", inv.BranchID, inv.Amount, inv.Currency)
			}
			target = models.StatusCompleted
			reason = ""
		}

		now := time.Now()
		bankUpdates := map[string]interface{}{
			"bank_details": details,
			"confirmed_by": adminID,
			"confirmed_at": now,
		}
		if err := tx.Model(&models.Investment{}).Where("id = ?", inv.ID).Updates(bankUpdates).Error; err != nil {
			return fmt.Errorf("persist confirmation metadata: %w", err)
		}
		inv.BankDetails = &details
		inv.ConfirmedBy = &adminID
		inv.ConfirmedAt = &now

		if err := r.finishTransition(tx, &inv, target, models.TxTypePayment, "", "", reason); err != nil {
			return err
		}

		closedNow := false
		if confirmed {
			var err error
			closedNow, err = recomputeBranchTotals(tx, agg)
			if err != nil {
				return err
			}
		}
		events = r.outcomeEvents(&inv, reason, closedNow)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		r.notify.Dispatch(ev)
	}
	return &inv, nil
}

// Refund reverses a completed investment. The reversed amount leaves the
// aggregate in the same atomic unit; a full branch stays closed afterwards
// until an administrator explicitly reopens it.
func (r *Reconciler) Refund(ctx context.Context, investmentID uint, adminID uint, reason string) (*models.Investment, error) {
	var inv models.Investment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&inv, investmentID).Error; err != nil {
			return err
		}
		if inv.Status != models.StatusCompleted {
			return validationErrf("investment %s is %s, only completed investments can be refunded", inv.Reference, inv.Status)
		}
		agg, err := lockBranchAggregate(tx, inv.BranchID)
		if err != nil {
			return err
		}
		if err := r.finishTransition(tx, &inv, models.StatusRefunded, models.TxTypeRefund, "", "", reason); err != nil {
			return err
		}
		if _, err := recomputeBranchTotals(tx, agg); err != nil {
			return err
		}
		log.Printf("[RECONCILE] refunded investment %s (admin=%d): %s", inv.Reference, adminID, reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Delete removes an investment. Deleting a completed entry is an implicit
// reversal: the aggregate is recomputed in the same transaction so it never
// counts a row that no longer exists.
func (r *Reconciler) Delete(ctx context.Context, investmentID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Investment
		if err := lockForUpdate(tx).First(&inv, investmentID).Error; err != nil {
			return err
		}
		wasCompleted := inv.Status == models.StatusCompleted
		var agg *models.BranchInvestment
		if wasCompleted {
			var err error
			agg, err = lockBranchAggregate(tx, inv.BranchID)
			if err != nil {
				return err
			}
		}
		if err := tx.Delete(&models.Investment{}, inv.ID).Error; err != nil {
			return fmt.Errorf("delete investment: %w", err)
		}
		if wasCompleted {
			if _, err := recomputeBranchTotals(tx, agg); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExpireStalePending fails card investments that never produced a payment
// intent outcome within the window. Entries that reached processing are
// skipped: a webhook for them may still be on its way.
func (r *Reconciler) ExpireStalePending(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window)
	var stale []models.Investment
	if err := r.db.WithContext(ctx).
		Where("payment_method = ? AND status = ? AND created_at < ?", models.MethodCard, models.StatusPending, cutoff).
		Find(&stale).Error; err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		id := stale[i].ID
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var inv models.Investment
			if err := lockForUpdate(tx).First(&inv, id).Error; err != nil {
				return err
			}
			if inv.Status != models.StatusPending {
				return nil // reconciled while we were sweeping
			}
			if err := r.finishTransition(tx, &inv, models.StatusFailed, models.TxTypePayment, "", "", reasonExpired); err != nil {
				return err
			}
			expired++
			return nil
		})
		if err != nil {
			log.Printf("[RECONCILE] expire sweep: investment %d: %v", id, err)
		}
	}
	return expired, nil
}
