package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/middleware"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/services"
)

type fakePlatform struct {
	payment *services.PlatformPayment
}

func (p *fakePlatform) Me(context.Context, string) (*services.PlatformUser, error) {
	return &services.PlatformUser{UID: "pi_uid", Username: "pioneer"}, nil
}

func (p *fakePlatform) GetPayment(context.Context, string) (*services.PlatformPayment, error) {
	return p.payment, nil
}

func (p *fakePlatform) ApprovePayment(context.Context, string) (*services.PlatformPayment, error) {
	return p.payment, nil
}

func (p *fakePlatform) CompletePayment(context.Context, string, string) (*services.PlatformPayment, error) {
	return p.payment, nil
}

func (p *fakePlatform) CancelPayment(context.Context, string) (*services.PlatformPayment, error) {
	return p.payment, nil
}

func (p *fakePlatform) CreatePayment(context.Context, services.A2UPaymentArgs) (*services.PlatformPayment, error) {
	return p.payment, nil
}

func (p *fakePlatform) GetTransaction(context.Context, string) (*services.HorizonTransaction, error) {
	return &services.HorizonTransaction{Memo: p.payment.Identifier}, nil
}

type fakeOrderStore struct {
	mu     sync.Mutex
	lockMu sync.Mutex
	orders map[string]*models.PaymentOrder
}

func (s *fakeOrderStore) FindByPaymentID(_ context.Context, paymentID string) (*models.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[paymentID]
	if !ok {
		return nil, services.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *fakeOrderStore) Insert(_ context.Context, order *models.PaymentOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.PaymentID]; ok {
		return apperrors.Conflict("exists")
	}
	copied := *order
	s.orders[order.PaymentID] = &copied
	return nil
}

func (s *fakeOrderStore) MarkPaid(_ context.Context, paymentID, txid string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[paymentID]
	if !ok || order.Paid || order.Cancelled {
		return 0, nil
	}
	order.Paid = true
	order.Txid = &txid
	return 1, nil
}

func (s *fakeOrderStore) MarkCancelled(_ context.Context, paymentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[paymentID]
	if !ok || order.Paid || order.Cancelled {
		return 0, nil
	}
	order.Cancelled = true
	return 1, nil
}

func (s *fakeOrderStore) WithLock(ctx context.Context, paymentID string, fn func(services.OrderStore, *models.PaymentOrder) error) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	order, err := s.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	return fn(s, order)
}

type fakeLedgerStore struct{}

func (fakeLedgerStore) Create(context.Context, *models.LedgerTransaction) error { return nil }
func (fakeLedgerStore) MarkCompleted(context.Context, string, string, string) (int64, error) {
	return 1, nil
}
func (fakeLedgerStore) MarkFailed(context.Context, string) (int64, error) { return 1, nil }

func newTestHandler() (*PaymentHandler, *fakeOrderStore) {
	platform := &fakePlatform{payment: &services.PlatformPayment{
		Identifier: "pay_1",
		Amount:     decimal.RequireFromString("5"),
		Memo:       "Test payment",
	}}
	orders := &fakeOrderStore{orders: make(map[string]*models.PaymentOrder)}
	svc := services.NewPaymentService(orders, fakeLedgerStore{}, platform, services.NoopNotifier{},
		"https://blockexplorer.minepi.com/tx", false)
	return NewPaymentHandler(svc), orders
}

func doRequest(t *testing.T, handler echo.HandlerFunc, body string, userID uint) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	e.HTTPErrorHandler = middleware.CustomErrorHandler

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != 0 {
		c.Set("userID", userID)
	}

	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestApproveHandlerValidatesPaymentID(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(t, h.Approve, `{"metadata":{}}`, 7)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestApproveHandlerCreatesOrder(t *testing.T) {
	h, orders := newTestHandler()

	rec := doRequest(t, h.Approve, `{"paymentId":"pay_1","metadata":{"source":"dashboard"}}`, 7)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool                `json:"success"`
		Order   models.PaymentOrder `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !resp.Success || resp.Order.PaymentID != "pay_1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if _, ok := orders.orders["pay_1"]; !ok {
		t.Fatal("order not persisted")
	}
}

func TestCompleteHandlerRequiresTxid(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(t, h.Complete, `{"paymentId":"pay_1"}`, 7)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing txid, got %d", rec.Code)
	}
}

func TestCompleteHandlerUnknownOrderIs404(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(t, h.Complete, `{"paymentId":"pay_ghost","txid":"tx_1"}`, 7)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCompleteHandlerConflictingTxidIs409(t *testing.T) {
	h, _ := newTestHandler()

	if rec := doRequest(t, h.Approve, `{"paymentId":"pay_1"}`, 7); rec.Code != http.StatusOK {
		t.Fatalf("approve failed: %d", rec.Code)
	}
	if rec := doRequest(t, h.Complete, `{"paymentId":"pay_1","txid":"tx_1"}`, 7); rec.Code != http.StatusOK {
		t.Fatalf("complete failed: %d", rec.Code)
	}

	rec := doRequest(t, h.Complete, `{"paymentId":"pay_1","txid":"tx_other"}`, 7)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for conflicting txid, got %d", rec.Code)
	}
}

func TestCancelHandlerAfterCompleteIs409(t *testing.T) {
	h, _ := newTestHandler()

	if rec := doRequest(t, h.Approve, `{"paymentId":"pay_1"}`, 7); rec.Code != http.StatusOK {
		t.Fatalf("approve failed: %d", rec.Code)
	}
	if rec := doRequest(t, h.Complete, `{"paymentId":"pay_1","txid":"tx_1"}`, 7); rec.Code != http.StatusOK {
		t.Fatalf("complete failed: %d", rec.Code)
	}

	rec := doRequest(t, h.Cancel, `{"paymentId":"pay_1","reason":"changed my mind"}`, 7)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestIncompleteHandlerUnknownOrderIs400(t *testing.T) {
	h, _ := newTestHandler()

	body := `{"payment":{"identifier":"pay_ghost","transaction":{"txid":"tx_1","_link":"https://example/tx_1"}}}`
	rec := doRequest(t, h.Incomplete, body, 0)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unmatched incomplete payment, got %d", rec.Code)
	}
}

func TestIncompleteHandlerResolvesKnownOrder(t *testing.T) {
	h, orders := newTestHandler()

	if rec := doRequest(t, h.Approve, `{"paymentId":"pay_1"}`, 7); rec.Code != http.StatusOK {
		t.Fatalf("approve failed: %d", rec.Code)
	}

	body := `{"payment":{"identifier":"pay_1","transaction":{"txid":"tx_1","_link":"https://example/tx_1"}}}`
	rec := doRequest(t, h.Incomplete, body, 0)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	order := orders.orders["pay_1"]
	if order == nil || !order.Paid {
		t.Fatalf("order should be settled by recovery: %+v", order)
	}
}
