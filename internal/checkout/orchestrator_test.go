package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-service/internal/commerce"
	"storefront-service/internal/gateway"
	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommerce scripts the commerce API for one test.
type fakeCommerce struct {
	confirmCalls int
	confirmResp  *commerce.CheckoutConfirmation
	confirmErr   error

	successCalls int
	successResp  *models.Order
	successErr   error

	failureCalls int
	failureResp  *models.Order
	failureErr   error
}

func (f *fakeCommerce) ConfirmCheckout(ctx context.Context, userID, addressID int64) (*commerce.CheckoutConfirmation, error) {
	f.confirmCalls++
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.confirmResp, nil
}

func (f *fakeCommerce) VerifyPaymentSuccess(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (*models.Order, error) {
	f.successCalls++
	if f.successErr != nil {
		return nil, f.successErr
	}
	return f.successResp, nil
}

func (f *fakeCommerce) VerifyPaymentFailure(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*models.Order, error) {
	f.failureCalls++
	if f.failureErr != nil {
		return nil, f.failureErr
	}
	return f.failureResp, nil
}

// fakeLedger is an in-memory checkout ledger.
type fakeLedger struct {
	nextID    int64
	attempts  map[int64]*models.CheckoutAttempt
	pending   []models.PendingVerification
	callbacks map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		attempts:  make(map[int64]*models.CheckoutAttempt),
		callbacks: make(map[string]string),
	}
}

func (f *fakeLedger) CreateAttempt(ctx context.Context, a *models.CheckoutAttempt) error {
	f.nextID++
	a.ID = f.nextID
	copied := *a
	f.attempts[a.ID] = &copied
	return nil
}

func (f *fakeLedger) AttachOrder(ctx context.Context, attemptID, orderID int64, gatewayOrderID string, amount int64) error {
	a := f.attempts[attemptID]
	a.OrderID = orderID
	a.GatewayOrderID = gatewayOrderID
	a.Amount = amount
	return nil
}

func (f *fakeLedger) SetOutcome(ctx context.Context, attemptID int64, outcome, reason string) error {
	a := f.attempts[attemptID]
	a.Outcome = outcome
	a.FailureReason = reason
	return nil
}

func (f *fakeLedger) AddPendingVerification(ctx context.Context, pv *models.PendingVerification) error {
	f.pending = append(f.pending, *pv)
	return nil
}

func (f *fakeLedger) IsCallbackProcessed(ctx context.Context, callbackID string) (bool, error) {
	_, ok := f.callbacks[callbackID]
	return ok, nil
}

func (f *fakeLedger) MarkCallbackProcessed(ctx context.Context, callbackID, kind string) error {
	f.callbacks[callbackID] = kind
	return nil
}

func paidConfirmation() *commerce.CheckoutConfirmation {
	return &commerce.CheckoutConfirmation{
		OrderID:        42,
		OrderNumber:    "ORD-42",
		Amount:         30000,
		GatewayOrderID: "gw_order_1",
		Email:          "buyer@example.com",
		Phone:          "5550001111",
	}
}

func newTestOrchestrator(fc *fakeCommerce, fl *fakeLedger) *Orchestrator {
	rec := NewReconciler(fc, fl)
	opener := gateway.NewProvider("key_test", "Storefront", "INR")
	return NewOrchestrator(fc, rec, opener, fl, nil, nil, 3*time.Second)
}

func cartWithTotal(total int64) *models.Cart {
	return &models.Cart{
		CartID:   1,
		UserID:   7,
		Items:    []models.CartItem{{CartItemID: 10, ProductID: 100, Quantity: 2, CurrentPrice: total / 2}},
		Subtotal: total,
		Total:    total,
	}
}

func TestPlaceOrderValidationBeforeNetwork(t *testing.T) {
	fc := &fakeCommerce{confirmResp: paidConfirmation()}
	o := newTestOrchestrator(fc, newFakeLedger())
	ctx := context.Background()

	_, err := o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: &models.Cart{}})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: nil})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 0, Cart: cartWithTotal(200)})
	assert.ErrorIs(t, err, ErrNoAddress)

	assert.Zero(t, fc.confirmCalls, "validation failures must never reach the network")
}

func TestPlaceOrderReentrancyGuard(t *testing.T) {
	fc := &fakeCommerce{confirmResp: paidConfirmation()}
	o := newTestOrchestrator(fc, newFakeLedger())
	ctx := context.Background()

	result, err := o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(30000)})
	require.NoError(t, err)
	assert.True(t, result.RequiresPayment)
	require.NotNil(t, result.WidgetParams)
	assert.Equal(t, "gw_order_1", result.WidgetParams.GatewayOrderID)
	assert.Equal(t, int64(30000), result.WidgetParams.Amount)

	// A double-click while awaiting payment is a no-op: no second
	// order-creation call.
	_, err = o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(30000)})
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.Equal(t, 1, fc.confirmCalls)
}

func TestZeroAmountOrderSkipsPayment(t *testing.T) {
	fc := &fakeCommerce{confirmResp: &commerce.CheckoutConfirmation{
		OrderID:     43,
		OrderNumber: "ORD-43",
		Amount:      0,
	}}
	fl := newFakeLedger()
	o := newTestOrchestrator(fc, fl)

	result, err := o.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(0)})
	require.NoError(t, err)

	assert.False(t, result.RequiresPayment)
	assert.Equal(t, "confirmed", result.Status.Outcome)
	assert.False(t, result.Status.RedirectAt.IsZero(), "confirmed checkouts schedule a redirect")
	assert.Equal(t, models.AttemptOutcomeConfirmed, fl.attempts[1].Outcome)
}

func TestCreationRejectionSurfacedVerbatim(t *testing.T) {
	fc := &fakeCommerce{confirmErr: &commerce.APIError{StatusCode: 409, Message: "stock changed for product 100"}}
	fl := newFakeLedger()
	o := newTestOrchestrator(fc, fl)

	result, err := o.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(200)})
	require.NoError(t, err)

	assert.Equal(t, "failed", result.Status.Outcome)
	assert.Equal(t, "stock changed for product 100", result.Status.FailureReason)
	assert.True(t, result.Status.Retryable)
	assert.Equal(t, models.AttemptOutcomeFailed, fl.attempts[1].Outcome)

	// The control is re-enabled: a fresh attempt may start.
	fc.confirmErr = nil
	fc.confirmResp = paidConfirmation()
	_, err = o.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(30000)})
	assert.NoError(t, err)
}

func TestDismissCancelsAndReenables(t *testing.T) {
	fc := &fakeCommerce{
		confirmResp: paidConfirmation(),
		failureResp: &models.Order{ID: 42, Status: models.OrderStatusCancelled},
	}
	fl := newFakeLedger()
	o := newTestOrchestrator(fc, fl)
	ctx := context.Background()

	_, err := o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(30000)})
	require.NoError(t, err)

	status, err := o.HandleGatewayDismiss(ctx, 7, "gw_order_1", "")
	require.NoError(t, err)

	assert.Equal(t, 1, fc.failureCalls)
	assert.Equal(t, "cancelled", status.Outcome)
	assert.True(t, status.Retryable)
	assert.True(t, status.RedirectAt.IsZero())
	assert.Equal(t, models.AttemptOutcomeCancelled, fl.attempts[1].Outcome)

	// Retrying creates a fresh order; the cancelled one is gone
	// server-side.
	_, err = o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(30000)})
	require.NoError(t, err)
	assert.Equal(t, 2, fc.confirmCalls)
}

func TestCompleteConfirmsAndSchedulesRedirect(t *testing.T) {
	fc := &fakeCommerce{
		confirmResp: paidConfirmation(),
		successResp: &models.Order{ID: 42, Status: models.OrderStatusConfirmed, Amount: 30000},
	}
	fl := newFakeLedger()
	o := newTestOrchestrator(fc, fl)
	ctx := context.Background()

	_, err := o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(30000)})
	require.NoError(t, err)

	status, err := o.HandleGatewayComplete(ctx, 7, "gw_order_1", "pay_1", "sig_ok")
	require.NoError(t, err)

	assert.Equal(t, "confirmed", status.Outcome)
	assert.False(t, status.RedirectAt.IsZero())
	assert.Equal(t, models.AttemptOutcomeConfirmed, fl.attempts[1].Outcome)

	// A theoretical double-fire of the gateway callback finds the
	// phase already terminal and is ignored.
	_, err = o.HandleGatewayComplete(ctx, 7, "gw_order_1", "pay_1", "sig_ok")
	assert.ErrorIs(t, err, ErrStaleCallback)
	assert.Equal(t, 1, fc.successCalls)
}

func TestRejectedSignatureIsNotConfirmed(t *testing.T) {
	fc := &fakeCommerce{
		confirmResp: paidConfirmation(),
		successErr:  &commerce.APIError{StatusCode: 400, Message: "signature mismatch"},
	}
	fl := newFakeLedger()
	o := newTestOrchestrator(fc, fl)
	ctx := context.Background()

	_, err := o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(30000)})
	require.NoError(t, err)

	// The gateway reported success, but the server is the sole source
	// of truth and it disagrees.
	status, err := o.HandleGatewayComplete(ctx, 7, "gw_order_1", "pay_1", "sig_bad")
	require.NoError(t, err)

	assert.Equal(t, "failed", status.Outcome)
	assert.Equal(t, "signature mismatch", status.FailureReason)
	assert.True(t, status.RedirectAt.IsZero(), "no redirect may be scheduled")
	assert.Equal(t, models.AttemptOutcomeFailed, fl.attempts[1].Outcome)
}

func TestVerificationNetworkErrorIsUnknownOutcome(t *testing.T) {
	fc := &fakeCommerce{
		confirmResp: paidConfirmation(),
		successErr:  errors.New("connection reset"),
	}
	fl := newFakeLedger()
	o := newTestOrchestrator(fc, fl)
	ctx := context.Background()

	_, err := o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(30000)})
	require.NoError(t, err)

	status, err := o.HandleGatewayComplete(ctx, 7, "gw_order_1", "pay_1", "sig_ok")
	require.NoError(t, err)

	// Distinct from both rejection and dismissal: the true outcome is
	// unknown, so the user is pointed at order status, not a retry.
	assert.Equal(t, "unknown", status.Outcome)
	assert.False(t, status.Retryable)
	assert.Equal(t, models.AttemptOutcomeUnknown, fl.attempts[1].Outcome)

	require.Len(t, fl.pending, 1)
	assert.Equal(t, int64(42), fl.pending[0].OrderID)
	assert.Equal(t, "gw_order_1", fl.pending[0].GatewayOrderID)
}

func TestCallbackSessionMatching(t *testing.T) {
	fc := &fakeCommerce{confirmResp: paidConfirmation()}
	o := newTestOrchestrator(fc, newFakeLedger())
	ctx := context.Background()

	// No session at all.
	_, err := o.HandleGatewayComplete(ctx, 7, "gw_order_1", "pay_1", "sig")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(30000)})
	require.NoError(t, err)

	// A callback for some other gateway order must not touch this
	// session.
	_, err = o.HandleGatewayComplete(ctx, 7, "gw_order_OTHER", "pay_1", "sig")
	assert.ErrorIs(t, err, ErrStaleCallback)
	assert.Zero(t, fc.successCalls)

	st, ok := o.Status(7)
	require.True(t, ok)
	assert.Equal(t, "AWAITING_PAYMENT", st.Phase)
}

func TestResetDiscardsOnlyTerminalSessions(t *testing.T) {
	fc := &fakeCommerce{confirmResp: paidConfirmation()}
	o := newTestOrchestrator(fc, newFakeLedger())
	ctx := context.Background()

	_, err := o.PlaceOrder(ctx, PlaceOrderRequest{UserID: 7, AddressID: 3, Cart: cartWithTotal(30000)})
	require.NoError(t, err)

	assert.ErrorIs(t, o.Reset(7), ErrCheckoutInProgress)

	fc.failureResp = &models.Order{ID: 42, Status: models.OrderStatusCancelled}
	_, err = o.HandleGatewayDismiss(ctx, 7, "gw_order_1", "")
	require.NoError(t, err)

	require.NoError(t, o.Reset(7))
	_, ok := o.Status(7)
	assert.False(t, ok)
}
