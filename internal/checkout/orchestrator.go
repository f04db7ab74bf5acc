package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront-service/internal/commerce"
	"storefront-service/internal/gateway"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrEmptyCart and ErrNoAddress are validation errors, caught
	// before any network call is issued.
	ErrEmptyCart = errors.New("cart is empty")
	ErrNoAddress = errors.New("no delivery address selected")

	// ErrCheckoutInProgress is the re-entrancy guard: a second place-
	// order trigger while a session is active is a no-op.
	ErrCheckoutInProgress = errors.New("a checkout attempt is already in progress")

	// ErrNoActiveSession and ErrStaleCallback reject gateway callbacks
	// that do not belong to the session currently on the machine.
	ErrNoActiveSession = errors.New("no active checkout session")
	ErrStaleCallback   = errors.New("gateway callback does not match the active session")
)

// verificationUnknownMsg is shown when the verification call itself
// failed: the true payment outcome is unknown, and retrying blindly
// could create a duplicate order against an already-charged payment.
const verificationUnknownMsg = "payment verification did not complete; check your order status before retrying"

// CommerceAPI is the slice of the commerce client the orchestrator
// needs directly.
type CommerceAPI interface {
	ConfirmCheckout(ctx context.Context, userID, addressID int64) (*commerce.CheckoutConfirmation, error)
}

// Opener hands out gateway sessions.
type Opener interface {
	Open(gatewayOrderID string, amount int64, description string, prefill gateway.Prefill) (*gateway.Session, error)
}

// Ledger is the local checkout-attempt audit store.
type Ledger interface {
	CreateAttempt(ctx context.Context, a *models.CheckoutAttempt) error
	AttachOrder(ctx context.Context, attemptID, orderID int64, gatewayOrderID string, amount int64) error
	SetOutcome(ctx context.Context, attemptID int64, outcome, reason string) error
	AddPendingVerification(ctx context.Context, pv *models.PendingVerification) error
}

// Locker extends the in-process phase guard across service instances.
type Locker interface {
	AcquireCheckoutLock(ctx context.Context, userID int64, ttl time.Duration) (bool, error)
	ReleaseCheckoutLock(ctx context.Context, userID int64) error
}

// EventSink publishes checkout lifecycle events.
type EventSink interface {
	PublishCheckoutConfirmed(ctx context.Context, event *models.CheckoutConfirmedEvent) error
	PublishCheckoutCancelled(ctx context.Context, event *models.CheckoutCancelledEvent) error
	PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error
	PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error
	PublishPaymentDismissed(ctx context.Context, event *models.PaymentDismissedEvent) error
}

// Orchestrator drives checkout attempts through the session state
// machine. Gateway callbacks are delivered into the same machine via
// HandleGatewayComplete/HandleGatewayDismiss, so the phase guard
// applies to them uniformly.
type Orchestrator struct {
	commerce   CommerceAPI
	reconciler *Reconciler
	opener     Opener
	ledger     Ledger
	locker     Locker
	events     EventSink
	logger     *zap.Logger

	redirectDelay time.Duration
	lockTTL       time.Duration

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewOrchestrator creates a checkout orchestrator. ledger, locker and
// events may be nil.
func NewOrchestrator(
	commerceAPI CommerceAPI,
	reconciler *Reconciler,
	opener Opener,
	ledger Ledger,
	locker Locker,
	events EventSink,
	redirectDelay time.Duration,
) *Orchestrator {
	return &Orchestrator{
		commerce:      commerceAPI,
		reconciler:    reconciler,
		opener:        opener,
		ledger:        ledger,
		locker:        locker,
		events:        events,
		logger:        util.GetLogger(),
		redirectDelay: redirectDelay,
		lockTTL:       5 * time.Minute,
		sessions:      make(map[int64]*Session),
	}
}

// PlaceOrderRequest is one press of "place order".
type PlaceOrderRequest struct {
	UserID    int64
	AddressID int64
	Cart      *models.Cart
}

// PlaceOrderResult tells the UI what happened and, when a payment step
// is required, what to open the widget with.
type PlaceOrderResult struct {
	Status          Status              `json:"status"`
	RequiresPayment bool                `json:"requires_payment"`
	WidgetParams    *gateway.OpenParams `json:"widget_params,omitempty"`
}

// PlaceOrder converts the current cart plus the selected address into
// an order. Validation failures and the re-entrancy guard return
// errors before any network call; everything past that point is
// reported through the result's Status.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "Orchestrator.PlaceOrder")
	defer span.End()

	if req.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if req.AddressID <= 0 {
		return nil, ErrNoAddress
	}

	o.mu.Lock()
	if existing, ok := o.sessions[req.UserID]; ok && existing.Phase().Active() {
		o.mu.Unlock()
		util.CheckoutRejectedReentry.Inc()
		return nil, ErrCheckoutInProgress
	}
	s := newSession(req.UserID, req.AddressID)
	if err := s.advance(PhaseOrderCreating); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.sessions[req.UserID] = s
	o.mu.Unlock()

	if o.locker != nil {
		acquired, err := o.locker.AcquireCheckoutLock(ctx, req.UserID, o.lockTTL)
		if err != nil {
			o.logger.Warn("Checkout lock unavailable, relying on in-process guard",
				zap.Int64("user_id", req.UserID), zap.Error(err))
		} else if !acquired {
			o.mu.Lock()
			delete(o.sessions, req.UserID)
			o.mu.Unlock()
			util.CheckoutRejectedReentry.Inc()
			return nil, ErrCheckoutInProgress
		}
	}

	util.CheckoutAttemptsTotal.Inc()

	attempt := &models.CheckoutAttempt{
		UserID:    req.UserID,
		AddressID: req.AddressID,
		Amount:    req.Cart.Total,
		Outcome:   models.AttemptOutcomeUnknown,
	}
	if o.ledger != nil {
		if err := o.ledger.CreateAttempt(ctx, attempt); err != nil {
			o.logger.Error("Failed to record checkout attempt", zap.Error(err))
		}
	}
	s.AttemptID = attempt.ID

	conf, err := o.commerce.ConfirmCheckout(ctx, req.UserID, req.AddressID)
	if err != nil {
		reason := err.Error()
		metricReason := "network"
		if apiErr := new(commerce.APIError); errors.As(err, &apiErr) {
			// The server's rejection reason is shown verbatim.
			reason = apiErr.Message
			metricReason = "rejected"
		}
		return o.failCreation(ctx, s, reason, metricReason), nil
	}

	o.mu.Lock()
	s.OrderID = conf.OrderID
	s.OrderNumber = conf.OrderNumber
	s.GatewayOrderID = conf.GatewayOrderID
	s.Amount = conf.Amount
	o.mu.Unlock()

	if o.ledger != nil && s.AttemptID != 0 {
		if err := o.ledger.AttachOrder(ctx, s.AttemptID, conf.OrderID, conf.GatewayOrderID, conf.Amount); err != nil {
			o.logger.Error("Failed to attach order to attempt", zap.Error(err))
		}
	}

	// No gateway session id means a zero-amount order: no payment
	// step, straight to confirmed.
	if conf.GatewayOrderID == "" {
		o.mu.Lock()
		st := o.confirmLocked(ctx, s, "", "")
		o.mu.Unlock()
		return &PlaceOrderResult{Status: st}, nil
	}

	widget, err := o.opener.Open(conf.GatewayOrderID, conf.Amount, "Order "+conf.OrderNumber, gateway.Prefill{
		Email:   conf.Email,
		Contact: conf.Phone,
	})
	if err != nil {
		return o.failCreation(ctx, s, err.Error(), "gateway_open"), nil
	}

	o.mu.Lock()
	if err := s.advance(PhaseAwaitingPayment); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	st := s.status()
	o.mu.Unlock()

	o.logger.Info("Awaiting payment",
		zap.Int64("user_id", req.UserID),
		zap.Int64("order_id", conf.OrderID),
		zap.String("gateway_order_id", conf.GatewayOrderID))

	return &PlaceOrderResult{
		Status:          st,
		RequiresPayment: true,
		WidgetParams:    &widget.Params,
	}, nil
}

// HandleGatewayComplete is the gateway's success callback delivered
// into the state machine. The session must still be awaiting payment
// and the callback must carry the session's gateway order id; a late
// or duplicate callback is rejected without side effects.
func (o *Orchestrator) HandleGatewayComplete(ctx context.Context, userID int64, gatewayOrderID, gatewayPaymentID, signature string) (Status, error) {
	ctx, span := util.StartSpan(ctx, "Orchestrator.HandleGatewayComplete")
	defer span.End()

	s, err := o.takeCallback(userID, gatewayOrderID)
	if err != nil {
		return Status{}, err
	}

	order, verr := o.reconciler.VerifySuccess(ctx, gatewayOrderID, gatewayPaymentID, signature)

	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case verr == nil:
		o.publishPaymentVerified(ctx, s, order, gatewayPaymentID)
		return o.confirmLocked(ctx, s, gatewayOrderID, gatewayPaymentID), nil

	case commerce.IsRejection(verr):
		// The gateway claimed success but the server disagreed. The
		// server is the sole source of truth: not confirmed, no
		// redirect, reason shown verbatim.
		apiErr := new(commerce.APIError)
		errors.As(verr, &apiErr)
		return o.terminateLocked(ctx, s, OutcomeFailed, apiErr.Message, "verification_rejected"), nil

	default:
		return o.unknownOutcomeLocked(ctx, s), nil
	}
}

// HandleGatewayDismiss is the gateway's dismissal callback: a user-
// initiated cancellation, not an error. The pending order is cancelled
// server-side via failure verification, and the attempt becomes
// retryable (a retry creates a fresh order; this one is gone).
func (o *Orchestrator) HandleGatewayDismiss(ctx context.Context, userID int64, gatewayOrderID, gatewayPaymentID string) (Status, error) {
	ctx, span := util.StartSpan(ctx, "Orchestrator.HandleGatewayDismiss")
	defer span.End()

	s, err := o.takeCallback(userID, gatewayOrderID)
	if err != nil {
		return Status{}, err
	}

	o.publishPaymentDismissed(ctx, s)

	order, verr := o.reconciler.VerifyFailure(ctx, gatewayOrderID, gatewayPaymentID)

	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case verr == nil:
		if order != nil && order.Status != models.OrderStatusCancelled {
			o.logger.Warn("Failure verification left order uncancelled",
				zap.Int64("order_id", s.OrderID),
				zap.String("status", order.Status))
		}
		return o.terminateLocked(ctx, s, OutcomeCancelled, "payment cancelled", ""), nil

	case commerce.IsRejection(verr):
		apiErr := new(commerce.APIError)
		errors.As(verr, &apiErr)
		return o.terminateLocked(ctx, s, OutcomeFailed, apiErr.Message, "cancellation_rejected"), nil

	default:
		return o.unknownOutcomeLocked(ctx, s), nil
	}
}

// Status returns the session view for a user, if any.
func (o *Orchestrator) Status(userID int64) (Status, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[userID]
	if !ok {
		return Status{}, false
	}
	return s.status(), true
}

// Reset discards a terminal session, e.g. when the user navigates
// away. An active session cannot be discarded.
func (o *Orchestrator) Reset(userID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[userID]
	if !ok {
		return nil
	}
	if s.Phase().Active() {
		return ErrCheckoutInProgress
	}
	delete(o.sessions, userID)
	return nil
}

// takeCallback validates a gateway callback against the active session
// and moves the machine to VERIFYING. Exactly one callback wins; a
// second one finds the phase already advanced and is rejected.
func (o *Orchestrator) takeCallback(userID int64, gatewayOrderID string) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[userID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	if s.GatewayOrderID == "" || s.GatewayOrderID != gatewayOrderID {
		util.GatewayDuplicateCallbacks.Inc()
		return nil, ErrStaleCallback
	}
	if s.Phase() != PhaseAwaitingPayment {
		util.GatewayDuplicateCallbacks.Inc()
		o.logger.Info("Ignoring late gateway callback",
			zap.Int64("user_id", userID),
			zap.String("gateway_order_id", gatewayOrderID),
			zap.String("phase", s.Phase().String()))
		return nil, ErrStaleCallback
	}
	if err := s.advance(PhaseVerifying); err != nil {
		return nil, err
	}
	return s, nil
}

// failCreation ends a session whose order creation was rejected.
func (o *Orchestrator) failCreation(ctx context.Context, s *Session, reason, metricReason string) *PlaceOrderResult {
	o.mu.Lock()
	st := o.terminateLocked(ctx, s, OutcomeFailed, reason, metricReason)
	o.mu.Unlock()
	return &PlaceOrderResult{Status: st}
}

// confirmLocked settles a session as confirmed and schedules the
// redirect. Caller holds o.mu.
func (o *Orchestrator) confirmLocked(ctx context.Context, s *Session, gatewayOrderID, gatewayPaymentID string) Status {
	if err := s.terminate(OutcomeConfirmed, ""); err != nil {
		o.logger.Error("Failed to confirm session", zap.Error(err))
		return s.status()
	}
	s.redirectAt = time.Now().Add(o.redirectDelay)

	util.CheckoutConfirmedTotal.Inc()
	o.recordOutcome(ctx, s, models.AttemptOutcomeConfirmed, "")
	o.releaseLock(ctx, s.UserID)

	if o.events != nil {
		event := &models.CheckoutConfirmedEvent{
			BaseEvent:        newBaseEvent(models.EventTypeCheckoutConfirmed),
			OrderID:          s.OrderID,
			UserID:           s.UserID,
			Amount:           s.Amount,
			GatewayOrderID:   gatewayOrderID,
			GatewayPaymentID: gatewayPaymentID,
		}
		if err := o.events.PublishCheckoutConfirmed(ctx, event); err != nil {
			o.logger.Error("Failed to publish CheckoutConfirmed event", zap.Error(err))
		}
	}

	o.logger.Info("Checkout confirmed",
		zap.Int64("user_id", s.UserID),
		zap.Int64("order_id", s.OrderID),
		zap.Time("redirect_at", s.redirectAt))
	return s.status()
}

// terminateLocked settles a session as cancelled or failed. Caller
// holds o.mu.
func (o *Orchestrator) terminateLocked(ctx context.Context, s *Session, outcome Outcome, reason, metricReason string) Status {
	if err := s.terminate(outcome, reason); err != nil {
		o.logger.Error("Failed to terminate session", zap.Error(err))
		return s.status()
	}

	switch outcome {
	case OutcomeCancelled:
		util.CheckoutCancelledTotal.Inc()
		o.recordOutcome(ctx, s, models.AttemptOutcomeCancelled, reason)
		if o.events != nil {
			event := &models.CheckoutCancelledEvent{
				BaseEvent:      newBaseEvent(models.EventTypeCheckoutCancelled),
				OrderID:        s.OrderID,
				UserID:         s.UserID,
				GatewayOrderID: s.GatewayOrderID,
				Reason:         reason,
			}
			if err := o.events.PublishCheckoutCancelled(ctx, event); err != nil {
				o.logger.Error("Failed to publish CheckoutCancelled event", zap.Error(err))
			}
		}
	default:
		util.CheckoutFailedTotal.WithLabelValues(metricReason).Inc()
		o.recordOutcome(ctx, s, models.AttemptOutcomeFailed, reason)
		if o.events != nil {
			event := &models.CheckoutFailedEvent{
				BaseEvent: newBaseEvent(models.EventTypeCheckoutFailed),
				UserID:    s.UserID,
				OrderID:   s.OrderID,
				Reason:    reason,
			}
			if err := o.events.PublishCheckoutFailed(ctx, event); err != nil {
				o.logger.Error("Failed to publish CheckoutFailed event", zap.Error(err))
			}
		}
	}

	o.releaseLock(ctx, s.UserID)

	o.logger.Warn("Checkout attempt ended",
		zap.Int64("user_id", s.UserID),
		zap.String("outcome", outcome.String()),
		zap.String("reason", reason))
	return s.status()
}

// unknownOutcomeLocked settles a session whose verification call
// failed in transit. The true payment outcome is unknown, so nothing
// is retried here; a pending-verification row hands the order to the
// background poll. Caller holds o.mu.
func (o *Orchestrator) unknownOutcomeLocked(ctx context.Context, s *Session) Status {
	if err := s.terminate(OutcomeUnknown, verificationUnknownMsg); err != nil {
		o.logger.Error("Failed to terminate session", zap.Error(err))
		return s.status()
	}

	util.CheckoutFailedTotal.WithLabelValues("verification_network").Inc()
	o.recordOutcome(ctx, s, models.AttemptOutcomeUnknown, verificationUnknownMsg)

	if o.ledger != nil && s.AttemptID != 0 {
		pv := &models.PendingVerification{
			AttemptID:      s.AttemptID,
			UserID:         s.UserID,
			OrderID:        s.OrderID,
			GatewayOrderID: s.GatewayOrderID,
		}
		if err := o.ledger.AddPendingVerification(ctx, pv); err != nil {
			o.logger.Error("Failed to record pending verification", zap.Error(err))
		}
	}

	o.releaseLock(ctx, s.UserID)

	o.logger.Error("Payment verification outcome unknown",
		zap.Int64("user_id", s.UserID),
		zap.Int64("order_id", s.OrderID),
		zap.String("gateway_order_id", s.GatewayOrderID))
	return s.status()
}

func (o *Orchestrator) recordOutcome(ctx context.Context, s *Session, outcome, reason string) {
	if o.ledger == nil || s.AttemptID == 0 {
		return
	}
	if err := o.ledger.SetOutcome(ctx, s.AttemptID, outcome, reason); err != nil {
		o.logger.Error("Failed to record attempt outcome", zap.Error(err))
	}
}

func (o *Orchestrator) releaseLock(ctx context.Context, userID int64) {
	if o.locker == nil {
		return
	}
	if err := o.locker.ReleaseCheckoutLock(ctx, userID); err != nil {
		o.logger.Warn("Failed to release checkout lock",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (o *Orchestrator) publishPaymentVerified(ctx context.Context, s *Session, order *models.Order, gatewayPaymentID string) {
	if o.events == nil {
		return
	}
	event := &models.PaymentVerifiedEvent{
		BaseEvent:        newBaseEvent(models.EventTypePaymentVerified),
		OrderID:          order.ID,
		GatewayOrderID:   s.GatewayOrderID,
		GatewayPaymentID: gatewayPaymentID,
		Amount:           order.Amount,
	}
	if err := o.events.PublishPaymentVerified(ctx, event); err != nil {
		o.logger.Error("Failed to publish PaymentVerified event", zap.Error(err))
	}
}

func (o *Orchestrator) publishPaymentDismissed(ctx context.Context, s *Session) {
	if o.events == nil {
		return
	}
	event := &models.PaymentDismissedEvent{
		BaseEvent:      newBaseEvent(models.EventTypePaymentDismissed),
		OrderID:        s.OrderID,
		GatewayOrderID: s.GatewayOrderID,
	}
	if err := o.events.PublishPaymentDismissed(ctx, event); err != nil {
		o.logger.Error("Failed to publish PaymentDismissed event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
