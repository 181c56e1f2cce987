package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/services"
)

// ReconcileStalePaymentsTaskDef sweeps orders that have sat non-terminal
// longer than a threshold and resolves them from the platform's view:
// completed on chain means complete locally, cancelled means cancel.
// Scheduled as a recurring task; every resolution goes through the
// coordinator so the usual idempotency guards apply.
type ReconcileStalePaymentsTaskDef struct {
	Platform services.PiPlatform
	Payments *services.PaymentService
	Rewards  *services.RewardService
}

// TaskID returns the unique identifier for this task
func (t *ReconcileStalePaymentsTaskDef) TaskID() string {
	return "reconcile_stale_payments"
}

func (t *ReconcileStalePaymentsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	if t.Platform == nil || t.Payments == nil {
		return nil, fmt.Errorf("reconciliation dependencies not configured")
	}

	olderThanMinutes := 30.0
	if v, ok := task.Arguments["older_than_minutes"].(float64); ok && v > 0 {
		olderThanMinutes = v
	}
	cutoff := time.Now().Add(-time.Duration(olderThanMinutes) * time.Minute)

	var stale []models.PaymentOrder
	err := db.WithContext(ctx).
		Where("paid = ? AND cancelled = ? AND updated_at < ?", false, false, cutoff).
		Limit(100).
		Find(&stale).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale orders: %w", err)
	}

	completed := 0
	cancelled := 0
	skipped := 0
	failed := 0

	for i := range stale {
		if ctx.Err() != nil {
			break
		}
		order := &stale[i]

		payment, err := t.Platform.GetPayment(ctx, order.PaymentID)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				// Platform no longer knows the payment; nothing to resolve.
				skipped++
				continue
			}
			log.Printf("reconcile: platform lookup failed for %s: %v", order.PaymentID, err)
			failed++
			continue
		}

		switch {
		case payment.Transaction != nil && payment.Transaction.Verified:
			_, err = t.Payments.RecoverIncomplete(ctx, order.PaymentID,
				payment.Transaction.Txid, payment.Transaction.Link)
			if err != nil {
				log.Printf("reconcile: completion failed for %s: %v", order.PaymentID, err)
				failed++
			} else {
				completed++
			}
		case payment.Status.Cancelled || payment.Status.UserCancelled:
			_, err = t.Payments.Cancel(ctx, order.PaymentID, "resolved as cancelled during reconciliation")
			if err != nil {
				log.Printf("reconcile: cancel failed for %s: %v", order.PaymentID, err)
				failed++
			} else {
				cancelled++
			}
		default:
			// Still genuinely pending on the platform side
			skipped++
		}
	}

	rewardsRetried := 0
	if t.Rewards != nil {
		rewardsRetried, err = t.Rewards.RetryPending(ctx, time.Duration(olderThanMinutes)*time.Minute)
		if err != nil {
			log.Printf("reconcile: reward retry sweep failed: %v", err)
		}
	}

	return map[string]interface{}{
		"status":          "success",
		"orders_scanned":  len(stale),
		"completed":       completed,
		"cancelled":       cancelled,
		"skipped":         skipped,
		"failed":          failed,
		"rewards_retried": rewardsRetried,
	}, nil
}

// ReconcileStalePaymentsTask is the singleton instance; its dependencies
// are injected by DefineTasks.
var ReconcileStalePaymentsTask = &ReconcileStalePaymentsTaskDef{}
