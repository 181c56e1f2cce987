package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
)

// LedgerStore writes the user-facing ledger. Status transitions are
// conditional updates keyed on the prior status, so a ledger entry is
// completed or failed at most once.
type LedgerStore interface {
	Create(ctx context.Context, tx *models.LedgerTransaction) error
	MarkCompleted(ctx context.Context, paymentID, txid, explorerURL string) (int64, error)
	MarkFailed(ctx context.Context, paymentID string) (int64, error)
}

type GormLedgerStore struct {
	db *gorm.DB
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

func (s *GormLedgerStore) Create(ctx context.Context, tx *models.LedgerTransaction) error {
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		return apperrors.Persistence(err, "create ledger transaction")
	}
	return nil
}

func (s *GormLedgerStore) MarkCompleted(ctx context.Context, paymentID, txid, explorerURL string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.LedgerTransaction{}).
		Where("payment_id = ? AND status = ?", paymentID, models.LedgerStatusPending).
		Updates(map[string]interface{}{
			"status":             models.LedgerStatusCompleted,
			"txid":               txid,
			"block_explorer_url": explorerURL,
		})
	if res.Error != nil {
		return 0, apperrors.Persistence(res.Error, "complete ledger transaction")
	}
	return res.RowsAffected, nil
}

func (s *GormLedgerStore) MarkFailed(ctx context.Context, paymentID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.LedgerTransaction{}).
		Where("payment_id = ? AND status = ?", paymentID, models.LedgerStatusPending).
		Update("status", models.LedgerStatusFailed)
	if res.Error != nil {
		return 0, apperrors.Persistence(res.Error, "fail ledger transaction")
	}
	return res.RowsAffected, nil
}
