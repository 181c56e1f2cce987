package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
)

type stubPlatform struct {
	mu sync.Mutex

	approvePayment *PlatformPayment
	approveErr     error
	completeErr    error
	cancelErr      error
	tx             *HorizonTransaction
	txErr          error

	// When set, CompletePayment blocks until the channel closes, holding
	// a completion in flight so tests can overlap a second caller.
	completeGate chan struct{}

	approveCalls  int
	completeCalls int
	cancelCalls   int
	txCalls       int
}

func (p *stubPlatform) Me(context.Context, string) (*PlatformUser, error) {
	return nil, nil
}

func (p *stubPlatform) GetPayment(context.Context, string) (*PlatformPayment, error) {
	return p.approvePayment, nil
}

func (p *stubPlatform) ApprovePayment(_ context.Context, paymentID string) (*PlatformPayment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.approveCalls++
	if p.approveErr != nil {
		return nil, p.approveErr
	}
	return p.approvePayment, nil
}

func (p *stubPlatform) CompletePayment(_ context.Context, paymentID, txid string) (*PlatformPayment, error) {
	p.mu.Lock()
	p.completeCalls++
	err := p.completeErr
	gate := p.completeGate
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return p.approvePayment, nil
}

func (p *stubPlatform) CancelPayment(_ context.Context, paymentID string) (*PlatformPayment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelCalls++
	if p.cancelErr != nil {
		return nil, p.cancelErr
	}
	return p.approvePayment, nil
}

func (p *stubPlatform) CreatePayment(context.Context, A2UPaymentArgs) (*PlatformPayment, error) {
	return p.approvePayment, nil
}

func (p *stubPlatform) GetTransaction(_ context.Context, txid string) (*HorizonTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txCalls++
	if p.txErr != nil {
		return nil, p.txErr
	}
	return p.tx, nil
}

// memOrderStore implements the conditional-update and row-lock contracts
// in memory. lockMu plays the role of the per-row FOR UPDATE lock; a
// single mutex is enough because each test works one payment at a time.
type memOrderStore struct {
	mu     sync.Mutex
	lockMu sync.Mutex
	orders map[string]*models.PaymentOrder
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]*models.PaymentOrder)}
}

func (s *memOrderStore) FindByPaymentID(_ context.Context, paymentID string) (*models.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[paymentID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *memOrderStore) Insert(_ context.Context, order *models.PaymentOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.PaymentID]; ok {
		return apperrors.Conflict("payment order %s already exists", order.PaymentID)
	}
	copied := *order
	s.orders[order.PaymentID] = &copied
	return nil
}

func (s *memOrderStore) MarkPaid(_ context.Context, paymentID, txid string) (int64, error) {
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

func (s *memOrderStore) MarkCancelled(_ context.Context, paymentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[paymentID]
	if !ok || order.Paid || order.Cancelled {
		return 0, nil
	}
	order.Cancelled = true
	return 1, nil
}

func (s *memOrderStore) WithLock(ctx context.Context, paymentID string, fn func(OrderStore, *models.PaymentOrder) error) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	order, err := s.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	return fn(s, order)
}

type memLedgerStore struct {
	mu        sync.Mutex
	created   []models.LedgerTransaction
	completed int
	failed    int
}

func (s *memLedgerStore) Create(_ context.Context, tx *models.LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, *tx)
	return nil
}

func (s *memLedgerStore) MarkCompleted(_ context.Context, paymentID, txid, explorerURL string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.created {
		if s.created[i].PaymentID == paymentID && s.created[i].Status == models.LedgerStatusPending {
			s.created[i].Status = models.LedgerStatusCompleted
			s.created[i].Txid = txid
			s.created[i].BlockExplorerURL = explorerURL
			s.completed++
			return 1, nil
		}
	}
	return 0, nil
}

func (s *memLedgerStore) MarkFailed(_ context.Context, paymentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.created {
		if s.created[i].PaymentID == paymentID && s.created[i].Status == models.LedgerStatusPending {
			s.created[i].Status = models.LedgerStatusFailed
			s.failed++
			return 1, nil
		}
	}
	return 0, nil
}

type countingNotifier struct {
	mu     sync.Mutex
	events []models.NotificationType
}

func (n *countingNotifier) Notify(_ context.Context, _ uint, typ models.NotificationType, _, _, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, typ)
}

func newTestService(platform *stubPlatform) (*PaymentService, *memOrderStore, *memLedgerStore, *countingNotifier) {
	orders := newMemOrderStore()
	ledger := &memLedgerStore{}
	notifier := &countingNotifier{}
	svc := NewPaymentService(orders, ledger, platform, notifier, "https://blockexplorer.minepi.com/tx", false)
	return svc, orders, ledger, notifier
}

func platformPayment(amount string) *PlatformPayment {
	return &PlatformPayment{
		Identifier: "pay_1",
		Amount:     decimal.RequireFromString(amount),
		Memo:       "Test payment",
	}
}

func TestApproveThenComplete(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("5"),
		tx:             &HorizonTransaction{Hash: "tx_abc", Memo: "pay_1"},
	}
	svc, orders, ledger, _ := newTestService(platform)
	ctx := context.Background()

	order, err := svc.Approve(ctx, 7, "pay_1", map[string]interface{}{"source": "dashboard"})
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if order.Paid || order.Cancelled {
		t.Fatalf("new order should be non-terminal, got paid=%v cancelled=%v", order.Paid, order.Cancelled)
	}
	if len(ledger.created) != 1 || ledger.created[0].Status != models.LedgerStatusPending {
		t.Fatalf("expected one pending ledger entry, got %+v", ledger.created)
	}

	completed, err := svc.Complete(ctx, "pay_1", "tx_abc")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !completed.Paid || completed.Cancelled {
		t.Fatalf("expected paid order, got paid=%v cancelled=%v", completed.Paid, completed.Cancelled)
	}
	if completed.Txid == nil || *completed.Txid != "tx_abc" {
		t.Fatalf("expected txid tx_abc, got %v", completed.Txid)
	}

	stored, _ := orders.FindByPaymentID(ctx, "pay_1")
	if !stored.Paid || stored.Cancelled {
		t.Fatalf("stored order not settled: %+v", stored)
	}
	if ledger.completed != 1 {
		t.Fatalf("expected one ledger completion, got %d", ledger.completed)
	}
	if !ledger.created[0].Amount.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("ledger amount mismatch: %s", ledger.created[0].Amount)
	}
}

func TestApproveIdempotentOnNonTerminalOrder(t *testing.T) {
	platform := &stubPlatform{approvePayment: platformPayment("5")}
	svc, _, _, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_1", nil); err != nil {
		t.Fatalf("first Approve failed: %v", err)
	}
	if _, err := svc.Approve(ctx, 7, "pay_1", nil); err != nil {
		t.Fatalf("second Approve failed: %v", err)
	}
	if platform.approveCalls != 1 {
		t.Fatalf("expected one platform approve call, got %d", platform.approveCalls)
	}
}

func TestApproveRejectsTerminalOrder(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("5"),
		tx:             &HorizonTransaction{Memo: "pay_1"},
	}
	svc, _, _, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_1", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, err := svc.Complete(ctx, "pay_1", "tx_abc"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	_, err := svc.Approve(ctx, 7, "pay_1", nil)
	if !apperrors.IsKind(err, apperrors.KindPrecondition) {
		t.Fatalf("expected precondition violation, got %v", err)
	}
}

func TestCompleteWithoutOrder(t *testing.T) {
	platform := &stubPlatform{}
	svc, orders, ledger, _ := newTestService(platform)

	_, err := svc.Complete(context.Background(), "pay_ghost", "tx_1")
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(orders.orders) != 0 {
		t.Fatal("no order should be fabricated")
	}
	if len(ledger.created) != 0 {
		t.Fatal("no ledger entry should be written")
	}
	if platform.completeCalls != 0 {
		t.Fatalf("platform should not be called, got %d calls", platform.completeCalls)
	}
}

func TestCompleteIdempotentSameTxid(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("5"),
		tx:             &HorizonTransaction{Memo: "pay_1"},
	}
	svc, _, ledger, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_1", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, err := svc.Complete(ctx, "pay_1", "tx_abc"); err != nil {
		t.Fatalf("first Complete failed: %v", err)
	}

	callsBefore := platform.completeCalls
	order, err := svc.Complete(ctx, "pay_1", "tx_abc")
	if err != nil {
		t.Fatalf("repeat Complete should succeed, got %v", err)
	}
	if !order.Paid {
		t.Fatal("repeat Complete should return the paid order")
	}
	if platform.completeCalls != callsBefore {
		t.Fatalf("repeat Complete must not call the platform again (%d -> %d)", callsBefore, platform.completeCalls)
	}
	if ledger.completed != 1 {
		t.Fatalf("expected exactly one ledger completion, got %d", ledger.completed)
	}
}

func TestCompleteConflictingTxid(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("5"),
		tx:             &HorizonTransaction{Memo: "pay_1"},
	}
	svc, _, _, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_1", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, err := svc.Complete(ctx, "pay_1", "tx_abc"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	_, err := svc.Complete(ctx, "pay_1", "tx_other")
	if !apperrors.IsKind(err, apperrors.KindPrecondition) {
		t.Fatalf("expected precondition violation for conflicting txid, got %v", err)
	}
}

func TestCancelThenCompleteRejected(t *testing.T) {
	platform := &stubPlatform{approvePayment: platformPayment("3")}
	svc, orders, ledger, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_2", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	order, err := svc.Cancel(ctx, "pay_2", "user abort")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if order.Paid || !order.Cancelled {
		t.Fatalf("expected cancelled order, got paid=%v cancelled=%v", order.Paid, order.Cancelled)
	}
	if ledger.failed != 1 {
		t.Fatalf("expected ledger entry marked failed, got %d", ledger.failed)
	}

	_, err = svc.Complete(ctx, "pay_2", "tx_xyz")
	if !apperrors.IsKind(err, apperrors.KindPrecondition) {
		t.Fatalf("expected precondition violation, got %v", err)
	}

	stored, _ := orders.FindByPaymentID(ctx, "pay_2")
	if stored.Paid {
		t.Fatal("cancelled order must never become paid")
	}
}

func TestCancelIdempotent(t *testing.T) {
	platform := &stubPlatform{approvePayment: platformPayment("3")}
	svc, _, _, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_2", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, err := svc.Cancel(ctx, "pay_2", "user abort"); err != nil {
		t.Fatalf("first Cancel failed: %v", err)
	}

	callsBefore := platform.cancelCalls
	order, err := svc.Cancel(ctx, "pay_2", "user abort again")
	if err != nil {
		t.Fatalf("repeat Cancel should succeed, got %v", err)
	}
	if !order.Cancelled {
		t.Fatal("repeat Cancel should return the cancelled order")
	}
	if platform.cancelCalls != callsBefore {
		t.Fatalf("repeat Cancel must not call the platform again")
	}
}

func TestCancelPaidOrderRejected(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("5"),
		tx:             &HorizonTransaction{Memo: "pay_1"},
	}
	svc, _, _, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_1", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, err := svc.Complete(ctx, "pay_1", "tx_abc"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	_, err := svc.Cancel(ctx, "pay_1", "too late")
	if !apperrors.IsKind(err, apperrors.KindPrecondition) {
		t.Fatalf("expected precondition violation, got %v", err)
	}
}

func TestRecoverIncompleteWithoutOrder(t *testing.T) {
	platform := &stubPlatform{}
	svc, orders, _, _ := newTestService(platform)

	_, err := svc.RecoverIncomplete(context.Background(), "pay_3", "tx_1", "")
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(orders.orders) != 0 {
		t.Fatal("recovery must not fabricate orders")
	}
	if platform.completeCalls != 0 {
		t.Fatal("platform must not be called for unknown orders")
	}
}

func TestRecoverIncompleteCompletesOrder(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("2"),
		tx:             &HorizonTransaction{Memo: "pay_5"},
	}
	svc, _, ledger, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 9, "pay_5", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	order, err := svc.RecoverIncomplete(ctx, "pay_5", "tx_rec", "https://example/tx_rec")
	if err != nil {
		t.Fatalf("RecoverIncomplete failed: %v", err)
	}
	if !order.Paid || order.Txid == nil || *order.Txid != "tx_rec" {
		t.Fatalf("expected recovered paid order, got %+v", order)
	}
	if ledger.completed != 1 {
		t.Fatalf("expected one ledger completion, got %d", ledger.completed)
	}
	// The platform-supplied link wins over the derived explorer URL.
	if got := ledger.created[0].BlockExplorerURL; got != "https://example/tx_rec" {
		t.Fatalf("expected platform transaction link on ledger row, got %q", got)
	}
}

func TestRecoverIncompleteDerivesExplorerURLWithoutLink(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("2"),
		tx:             &HorizonTransaction{Memo: "pay_6"},
	}
	svc, _, ledger, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 9, "pay_6", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, err := svc.RecoverIncomplete(ctx, "pay_6", "tx_rec", ""); err != nil {
		t.Fatalf("RecoverIncomplete failed: %v", err)
	}

	want := "https://blockexplorer.minepi.com/tx/tx_rec"
	if got := ledger.created[0].BlockExplorerURL; got != want {
		t.Fatalf("expected derived explorer URL %q, got %q", want, got)
	}
}

func TestStrictMemoMismatchRejectsCompletion(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("5"),
		tx:             &HorizonTransaction{Memo: "some_other_payment"},
	}
	orders := newMemOrderStore()
	ledger := &memLedgerStore{}
	svc := NewPaymentService(orders, ledger, platform, &countingNotifier{}, "https://blockexplorer.minepi.com/tx", true)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_1", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	_, err := svc.Complete(ctx, "pay_1", "tx_abc")
	if !apperrors.IsKind(err, apperrors.KindPrecondition) {
		t.Fatalf("strict mode should reject memo mismatch, got %v", err)
	}
	if platform.completeCalls != 0 {
		t.Fatal("platform complete must not run after memo rejection")
	}
}

func TestLenientMemoMismatchProceeds(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("5"),
		tx:             &HorizonTransaction{Memo: "some_other_payment"},
	}
	svc, _, _, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_1", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, err := svc.Complete(ctx, "pay_1", "tx_abc"); err != nil {
		t.Fatalf("lenient mode should proceed past memo mismatch, got %v", err)
	}
}

func TestPlatformFailureLeavesOrderUntouched(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("5"),
		tx:             &HorizonTransaction{Memo: "pay_1"},
		completeErr:    apperrors.TransientPlatform(nil, "platform down"),
	}
	svc, orders, ledger, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_1", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	_, err := svc.Complete(ctx, "pay_1", "tx_abc")
	if !apperrors.IsKind(err, apperrors.KindTransientPlatform) {
		t.Fatalf("expected transient platform error, got %v", err)
	}

	stored, _ := orders.FindByPaymentID(ctx, "pay_1")
	if stored.Paid || stored.Cancelled {
		t.Fatalf("order must stay non-terminal after platform failure: %+v", stored)
	}
	if ledger.completed != 0 {
		t.Fatal("ledger must not complete after platform failure")
	}

	// The retry succeeds once the platform recovers.
	platform.completeErr = nil
	if _, err := svc.Complete(ctx, "pay_1", "tx_abc"); err != nil {
		t.Fatalf("retry after recovery failed: %v", err)
	}
}

// raceOrderStore makes the first MarkPaid lose: another writer settles the
// order with the same txid just before the conditional update runs.
type raceOrderStore struct {
	*memOrderStore
	raced bool
}

func (s *raceOrderStore) MarkPaid(ctx context.Context, paymentID, txid string) (int64, error) {
	if !s.raced {
		s.raced = true
		s.memOrderStore.MarkPaid(ctx, paymentID, txid)
		return 0, nil
	}
	return s.memOrderStore.MarkPaid(ctx, paymentID, txid)
}

// WithLock hands fn the racing store so its MarkPaid override stays in
// the settle path.
func (s *raceOrderStore) WithLock(ctx context.Context, paymentID string, fn func(OrderStore, *models.PaymentOrder) error) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	order, err := s.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	return fn(s, order)
}

func TestLostRaceIsIdempotentSuccess(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("5"),
		tx:             &HorizonTransaction{Memo: "pay_4"},
	}
	orders := &raceOrderStore{memOrderStore: newMemOrderStore()}
	ledger := &memLedgerStore{}
	svc := NewPaymentService(orders, ledger, platform, &countingNotifier{}, "https://blockexplorer.minepi.com/tx", false)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_4", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	order, err := svc.Complete(ctx, "pay_4", "tx_1")
	if err != nil {
		t.Fatalf("losing the race must be a no-op success, got %v", err)
	}
	if !order.Paid || order.Txid == nil || *order.Txid != "tx_1" {
		t.Fatalf("loser should observe the winner's settled order, got %+v", order)
	}
	if ledger.completed != 0 {
		t.Fatalf("loser must not write a ledger completion, got %d", ledger.completed)
	}
}

func TestConcurrentCompletionsSettleOnce(t *testing.T) {
	platform := &stubPlatform{
		approvePayment: platformPayment("5"),
		tx:             &HorizonTransaction{Memo: "pay_4"},
		completeGate:   make(chan struct{}),
	}
	svc, orders, ledger, _ := newTestService(platform)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, 7, "pay_4", nil); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	// Hold the first completion inside the platform call while the second
	// arrives, so the two requests genuinely overlap.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Complete(ctx, "pay_4", "tx_1")
		}(i)
		time.Sleep(20 * time.Millisecond)
	}
	close(platform.completeGate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent Complete %d failed: %v", i, err)
		}
	}

	if platform.completeCalls != 1 {
		t.Fatalf("expected exactly one platform completion call, got %d", platform.completeCalls)
	}
	stored, _ := orders.FindByPaymentID(ctx, "pay_4")
	if !stored.Paid || stored.Txid == nil || *stored.Txid != "tx_1" {
		t.Fatalf("order not settled exactly once: %+v", stored)
	}
	if ledger.completed != 1 {
		t.Fatalf("expected exactly one ledger completion, got %d", ledger.completed)
	}
}
