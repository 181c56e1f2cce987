package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
)

// RewardService issues app-to-user payments at most once per reward key.
// The unique (user_id, reward_key) index is the idempotency guard: the
// second writer's insert fails and the prior issuance is returned instead.
type RewardService struct {
	db       *gorm.DB
	platform PiPlatform
	notifier Notifier
}

func NewRewardService(db *gorm.DB, platform PiPlatform, notifier Notifier) *RewardService {
	return &RewardService{db: db, platform: platform, notifier: notifier}
}

// Issue creates an A2U payment for the user unless one was already issued
// under the same reward key.
func (s *RewardService) Issue(ctx context.Context, user *models.User, rewardKey string, amount decimal.Decimal, rewardType models.LedgerTransactionType, memo string) (*models.RewardIssuance, error) {
	if !amount.IsPositive() {
		return nil, apperrors.Precondition("reward amount must be positive")
	}

	issuance := models.RewardIssuance{
		UserID:    user.ID,
		RewardKey: rewardKey,
		Amount:    amount,
		Type:      rewardType,
		Status:    models.RewardStatusPending,
		Memo:      memo,
	}
	if err := s.db.WithContext(ctx).Create(&issuance).Error; err != nil {
		if isDuplicateKey(err) {
			var existing models.RewardIssuance
			if ferr := s.db.WithContext(ctx).
				Where("user_id = ? AND reward_key = ?", user.ID, rewardKey).
				First(&existing).Error; ferr != nil {
				return nil, apperrors.Persistence(ferr, "load existing reward issuance")
			}
			return &existing, nil
		}
		return nil, apperrors.Persistence(err, "record reward issuance")
	}

	payment, err := s.platform.CreatePayment(ctx, A2UPaymentArgs{
		UID:    user.PiUID,
		Amount: amount,
		Memo:   memo,
		Metadata: map[string]interface{}{
			"reward_key": rewardKey,
			"type":       string(rewardType),
		},
	})
	if err != nil {
		// Leave the row pending; the reconciliation sweep retries it.
		return &issuance, err
	}

	updates := map[string]interface{}{
		"payment_id": payment.Identifier,
		"status":     models.RewardStatusIssued,
	}
	if err := s.db.WithContext(ctx).Model(&issuance).Updates(updates).Error; err != nil {
		return nil, apperrors.Persistence(err, "update reward issuance")
	}

	ledgerTx := models.LedgerTransaction{
		ID:          uuid.New().String(),
		UserID:      user.ID,
		PaymentID:   payment.Identifier,
		Type:        rewardType,
		Amount:      amount,
		Status:      models.LedgerStatusCompleted,
		Description: memo,
		Date:        time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&ledgerTx).Error; err != nil {
		log.Printf("ledger write failed for reward %s: %v", rewardKey, err)
	}

	s.notifier.Notify(ctx, user.ID, models.NotificationTypeRewardIssued,
		"Reward on its way",
		fmt.Sprintf("You earned %s Pi: %s", amount.String(), memo),
		"/transactions")

	return &issuance, nil
}

// RetryPending re-attempts platform submission for issuances stuck in
// pending, typically after a platform outage. Called by the worker.
func (s *RewardService) RetryPending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	var stuck []models.RewardIssuance
	err := s.db.WithContext(ctx).Preload("User").
		Where("status = ? AND updated_at < ?", models.RewardStatusPending, cutoff).
		Find(&stuck).Error
	if err != nil {
		return 0, apperrors.Persistence(err, "list pending reward issuances")
	}

	retried := 0
	for i := range stuck {
		issuance := &stuck[i]
		payment, err := s.platform.CreatePayment(ctx, A2UPaymentArgs{
			UID:    issuance.User.PiUID,
			Amount: issuance.Amount,
			Memo:   issuance.Memo,
			Metadata: map[string]interface{}{
				"reward_key": issuance.RewardKey,
				"type":       string(issuance.Type),
			},
		})
		if err != nil {
			log.Printf("reward retry failed for issuance %d: %v", issuance.ID, err)
			continue
		}

		updates := map[string]interface{}{
			"payment_id": payment.Identifier,
			"status":     models.RewardStatusIssued,
		}
		if err := s.db.WithContext(ctx).Model(issuance).Updates(updates).Error; err != nil {
			log.Printf("reward retry update failed for issuance %d: %v", issuance.ID, err)
			continue
		}
		retried++
	}
	return retried, nil
}
