package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
)

// Notifier receives fire-and-forget user events. Implementations must
// absorb their own failures; the coordinator never checks them.
type Notifier interface {
	Notify(ctx context.Context, userID uint, typ models.NotificationType, title, description, link string)
}

// PaymentService drives a payment through the platform's two-phase
// approve/complete protocol. It is stateless: all payment state lives in
// the order store. Completion holds the order's row lock across the
// platform call and every transition is a conditional update, so
// concurrent requests and retries collapse into exactly-once side effects.
type PaymentService struct {
	orders     OrderStore
	ledger     LedgerStore
	platform   PiPlatform
	notifier   Notifier
	explorer   string
	strictMemo bool
}

func NewPaymentService(orders OrderStore, ledger LedgerStore, platform PiPlatform, notifier Notifier, explorerBaseURL string, strictMemo bool) *PaymentService {
	return &PaymentService{
		orders:     orders,
		ledger:     ledger,
		platform:   platform,
		notifier:   notifier,
		explorer:   explorerBaseURL,
		strictMemo: strictMemo,
	}
}

// Approve acknowledges a client-created payment with the platform and
// records the order. Re-invocation against an existing non-terminal order
// returns that order without calling the platform again.
func (s *PaymentService) Approve(ctx context.Context, userID uint, paymentID string, metadata map[string]interface{}) (*models.PaymentOrder, error) {
	existing, err := s.orders.FindByPaymentID(ctx, paymentID)
	if err != nil && !errors.Is(err, ErrOrderNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Terminal() {
			return nil, apperrors.Precondition("payment %s is already %s", paymentID, terminalWord(existing))
		}
		return existing, nil
	}

	payment, err := s.platform.ApprovePayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.Amount.IsPositive() {
		return nil, apperrors.Precondition("payment %s has non-positive amount", paymentID)
	}

	order := &models.PaymentOrder{
		PaymentID: paymentID,
		UserID:    userID,
		Amount:    payment.Amount,
		Memo:      payment.Memo,
		Metadata:  datatypes.JSONMap(metadata),
		Paid:      false,
		Cancelled: false,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		if apperrors.IsKind(err, apperrors.KindConflict) {
			// Lost the insert race; the winner's row is the order.
			return s.orders.FindByPaymentID(ctx, paymentID)
		}
		return nil, err
	}

	ledgerTx := &models.LedgerTransaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		PaymentID:   paymentID,
		Type:        models.LedgerTypeSent,
		Amount:      payment.Amount,
		Status:      models.LedgerStatusPending,
		Description: payment.Memo,
		Date:        time.Now(),
	}
	if err := s.ledger.Create(ctx, ledgerTx); err != nil {
		// The order is durable and the ledger row can be reconciled later;
		// surfacing the error here would make retries re-approve.
		log.Printf("ledger create failed for payment %s: %v", paymentID, err)
	}

	s.notifier.Notify(ctx, userID, models.NotificationTypePaymentApproved,
		"Payment approved",
		fmt.Sprintf("Your payment of %s Pi is awaiting blockchain confirmation.", payment.Amount.String()),
		"/transactions")

	return order, nil
}

// Complete finishes a payment after blockchain submission. Safe to retry:
// a repeat call with the same txid on a completed order is a no-op success,
// a different txid is a conflict. The order row stays locked from the
// precondition read through the platform call, so racing completions
// serialize and the platform is only ever told to complete once.
func (s *PaymentService) Complete(ctx context.Context, paymentID, txid string) (*models.PaymentOrder, error) {
	var result *models.PaymentOrder
	err := s.orders.WithLock(ctx, paymentID, func(locked OrderStore, order *models.PaymentOrder) error {
		if done, err := checkCompletable(order, txid); done != nil || err != nil {
			result = done
			return err
		}

		if err := s.verifyMemo(ctx, paymentID, txid); err != nil {
			return err
		}

		if _, err := s.platform.CompletePayment(ctx, paymentID, txid); err != nil {
			return err
		}

		settled, err := s.settle(ctx, locked, order, txid, s.explorerURL(txid))
		result = settled
		return err
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, apperrors.NotFound("no order for payment %s", paymentID)
		}
		return nil, err
	}
	return result, nil
}

// Cancel aborts a payment that has not been paid. Cancelling an
// already-cancelled order is a no-op.
func (s *PaymentService) Cancel(ctx context.Context, paymentID, reason string) (*models.PaymentOrder, error) {
	order, err := s.orders.FindByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, apperrors.NotFound("no order for payment %s", paymentID)
		}
		return nil, err
	}

	if order.Paid {
		return nil, apperrors.Precondition("payment %s is already paid", paymentID)
	}
	if order.Cancelled {
		return order, nil
	}

	if _, err := s.platform.CancelPayment(ctx, paymentID); err != nil {
		return nil, err
	}

	rows, err := s.orders.MarkCancelled(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// A concurrent writer reached a terminal state first.
		current, err := s.orders.FindByPaymentID(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		if current.Paid {
			return nil, apperrors.Precondition("payment %s is already paid", paymentID)
		}
		return current, nil
	}

	if _, err := s.ledger.MarkFailed(ctx, paymentID); err != nil {
		log.Printf("ledger fail update failed for payment %s: %v", paymentID, err)
	}

	order.Cancelled = true
	s.notifier.Notify(ctx, order.UserID, models.NotificationTypePaymentCancelled,
		"Payment cancelled",
		fmt.Sprintf("Your payment of %s Pi was cancelled: %s", order.Amount.String(), reason),
		"/transactions")

	return order, nil
}

// RecoverIncomplete reconciles a payment the platform reports as left over
// from an interrupted session. It refuses to fabricate orders: recovery
// without a matching approved order is rejected. The platform-supplied
// transaction link, when present, is preferred over the derived explorer
// URL on the ledger row.
func (s *PaymentService) RecoverIncomplete(ctx context.Context, paymentID, txid, txLink string) (*models.PaymentOrder, error) {
	explorerURL := txLink
	if explorerURL == "" {
		explorerURL = s.explorerURL(txid)
	}

	var result *models.PaymentOrder
	err := s.orders.WithLock(ctx, paymentID, func(locked OrderStore, order *models.PaymentOrder) error {
		if done, err := checkCompletable(order, txid); done != nil || err != nil {
			result = done
			return err
		}

		if err := s.verifyMemo(ctx, paymentID, txid); err != nil {
			return err
		}

		if _, err := s.platform.CompletePayment(ctx, paymentID, txid); err != nil {
			return err
		}

		settled, err := s.settle(ctx, locked, order, txid, explorerURL)
		result = settled
		return err
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, apperrors.NotFound("no matching order for incomplete payment %s", paymentID)
		}
		return nil, err
	}
	return result, nil
}

// settle applies the paid transition and its side effects through the
// locked store. The conditional update is the final guard: only the winner
// writes the ledger completion and emits the notification.
func (s *PaymentService) settle(ctx context.Context, orders OrderStore, order *models.PaymentOrder, txid, explorerURL string) (*models.PaymentOrder, error) {
	rows, err := orders.MarkPaid(ctx, order.PaymentID, txid)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		current, err := orders.FindByPaymentID(ctx, order.PaymentID)
		if err != nil {
			return nil, err
		}
		if current.Cancelled {
			return nil, apperrors.Precondition("payment %s was cancelled", order.PaymentID)
		}
		if current.Txid != nil && *current.Txid != txid {
			return nil, apperrors.Precondition("payment %s already completed with txid %s", order.PaymentID, *current.Txid)
		}
		// Lost the race to an identical completion: idempotent success.
		return current, nil
	}

	if _, err := s.ledger.MarkCompleted(ctx, order.PaymentID, txid, explorerURL); err != nil {
		log.Printf("ledger completion failed for payment %s: %v", order.PaymentID, err)
	}

	order.Paid = true
	order.Txid = &txid
	s.notifier.Notify(ctx, order.UserID, models.NotificationTypePaymentCompleted,
		"Payment completed",
		fmt.Sprintf("Your payment of %s Pi is confirmed on the blockchain.", order.Amount.String()),
		"/transactions")

	return order, nil
}

// checkCompletable enforces the Complete preconditions. It returns the
// order when the call is an idempotent repeat, an error when the state
// forbids completion, and (nil, nil) when completion should proceed.
func checkCompletable(order *models.PaymentOrder, txid string) (*models.PaymentOrder, error) {
	if order.Cancelled {
		return nil, apperrors.Precondition("payment %s was cancelled", order.PaymentID)
	}
	if order.Paid {
		if order.Txid != nil && *order.Txid == txid {
			return order, nil
		}
		prior := ""
		if order.Txid != nil {
			prior = *order.Txid
		}
		return nil, apperrors.Precondition("payment %s already completed with txid %s", order.PaymentID, prior)
	}
	return nil, nil
}

// verifyMemo checks that the blockchain transaction's memo names the
// payment. Lookup failures and mismatches only reject the completion in
// strict mode; otherwise the platform is trusted and the result is logged.
func (s *PaymentService) verifyMemo(ctx context.Context, paymentID, txid string) error {
	tx, err := s.platform.GetTransaction(ctx, txid)
	if err != nil {
		if s.strictMemo {
			return apperrors.Precondition("cannot verify txid %s for payment %s", txid, paymentID)
		}
		log.Printf("memo verification skipped for payment %s: %v", paymentID, err)
		return nil
	}
	if tx.Memo != paymentID {
		if s.strictMemo {
			return apperrors.Precondition("txid %s memo %q does not match payment %s", txid, tx.Memo, paymentID)
		}
		log.Printf("memo mismatch for payment %s: txid %s carries memo %q", paymentID, txid, tx.Memo)
	}
	return nil
}

func (s *PaymentService) explorerURL(txid string) string {
	return fmt.Sprintf("%s/%s", s.explorer, txid)
}

func terminalWord(order *models.PaymentOrder) string {
	if order.Paid {
		return "paid"
	}
	return "cancelled"
}
