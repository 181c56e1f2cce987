package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
)

// ErrOrderNotFound is returned by order lookups when no row exists.
var ErrOrderNotFound = errors.New("payment order not found")

// OrderStore is the durable payment-order record. Every mutation is a
// conditional update: the WHERE clause re-checks the precondition and the
// affected-row count tells the caller whether it won or lost a race.
type OrderStore interface {
	FindByPaymentID(ctx context.Context, paymentID string) (*models.PaymentOrder, error)
	Insert(ctx context.Context, order *models.PaymentOrder) error
	MarkPaid(ctx context.Context, paymentID, txid string) (int64, error)
	MarkCancelled(ctx context.Context, paymentID string) (int64, error)
	// WithLock runs fn with the order row locked against concurrent
	// writers, so racing completions serialize before any external call.
	// The store handed to fn writes under the same lock; fn returning an
	// error discards its writes where the backend supports that.
	WithLock(ctx context.Context, paymentID string, fn func(locked OrderStore, order *models.PaymentOrder) error) error
}

type GormOrderStore struct {
	db *gorm.DB
}

func NewGormOrderStore(db *gorm.DB) *GormOrderStore {
	return &GormOrderStore{db: db}
}

func (s *GormOrderStore) FindByPaymentID(ctx context.Context, paymentID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, apperrors.Persistence(err, "find payment order")
	}
	return &order, nil
}

// Insert creates the order row. A duplicate-key failure means another
// request created it first; that surfaces as a Conflict so the caller can
// fall back to the existing row.
func (s *GormOrderStore) Insert(ctx context.Context, order *models.PaymentOrder) error {
	err := s.db.WithContext(ctx).Create(order).Error
	if err != nil {
		if isDuplicateKey(err) {
			return apperrors.Conflict("payment order %s already exists", order.PaymentID)
		}
		return apperrors.Persistence(err, "insert payment order")
	}
	return nil
}

// MarkPaid transitions a non-terminal order to paid. Zero rows affected
// means the order was already terminal when the update ran.
func (s *GormOrderStore) MarkPaid(ctx context.Context, paymentID, txid string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.PaymentOrder{}).
		Where("payment_id = ? AND paid = ? AND cancelled = ?", paymentID, false, false).
		Updates(map[string]interface{}{"paid": true, "txid": txid})
	if res.Error != nil {
		return 0, apperrors.Persistence(res.Error, "mark order paid")
	}
	return res.RowsAffected, nil
}

// MarkCancelled transitions a non-terminal order to cancelled.
func (s *GormOrderStore) MarkCancelled(ctx context.Context, paymentID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.PaymentOrder{}).
		Where("payment_id = ? AND paid = ? AND cancelled = ?", paymentID, false, false).
		Update("cancelled", true)
	if res.Error != nil {
		return 0, apperrors.Persistence(res.Error, "mark order cancelled")
	}
	return res.RowsAffected, nil
}

// WithLock wraps fn in a transaction holding SELECT ... FOR UPDATE on the
// order row. A concurrent WithLock on the same payment blocks until commit
// and then observes the winner's terminal state.
func (s *GormOrderStore) WithLock(ctx context.Context, paymentID string, fn func(OrderStore, *models.PaymentOrder) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.PaymentOrder
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("payment_id = ?", paymentID).
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return apperrors.Persistence(err, "lock payment order")
		}
		return fn(&GormOrderStore{db: tx}, &order)
	})
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Postgres unique violation surfaced without translation
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "SQLSTATE 23505")
}
