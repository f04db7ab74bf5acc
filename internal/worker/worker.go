package worker

import (
	"context"
	"time"

	"storefront-service/internal/checkout"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the slice of the store the worker needs.
type Ledger interface {
	ListPendingVerifications(ctx context.Context, limit int) ([]models.PendingVerification, error)
	DeletePendingVerification(ctx context.Context, id int64) error
	SetOutcome(ctx context.Context, attemptID int64, outcome, reason string) error
}

// OrderAPI reads the server's order projection.
type OrderAPI interface {
	GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error)
}

// ReconcileWorker resolves checkout attempts whose verification call
// failed in transit. It only ever reads the order projection; it never
// re-fires a verification, so no background retry can double-charge.
type ReconcileWorker struct {
	ledger   Ledger
	orders   OrderAPI
	events   checkout.EventSink
	interval time.Duration
	batch    int
	logger   *zap.Logger
	done     chan struct{}
}

// NewReconcileWorker creates a reconciliation worker. events may be
// nil.
func NewReconcileWorker(ledger Ledger, orders OrderAPI, events checkout.EventSink, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		ledger:   ledger,
		orders:   orders,
		events:   events,
		interval: interval,
		batch:    20,
		logger:   util.GetLogger(),
		done:     make(chan struct{}),
	}
}

// Start runs the reconciliation loop until the context is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconciliation worker",
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconciliation worker stopping")
			return ctx.Err()
		case <-w.done:
			return nil
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

// Stop stops the worker
func (w *ReconcileWorker) Stop() {
	close(w.done)
}

func (w *ReconcileWorker) reconcile(ctx context.Context) {
	pending, err := w.ledger.ListPendingVerifications(ctx, w.batch)
	if err != nil {
		w.logger.Error("Failed to list pending verifications", zap.Error(err))
		return
	}

	for _, pv := range pending {
		w.reconcileOne(ctx, pv)
	}
}

// reconcileOne polls the order projection for one unknown-outcome
// attempt and settles the ledger once the server has resolved it.
// Orders still pending server-side stay queued for the next tick.
func (w *ReconcileWorker) reconcileOne(ctx context.Context, pv models.PendingVerification) {
	order, err := w.orders.GetOrder(ctx, pv.UserID, pv.OrderID)
	if err != nil {
		w.logger.Warn("Order projection unavailable, will retry",
			zap.Int64("order_id", pv.OrderID),
			zap.Error(err))
		return
	}

	switch order.Status {
	case models.OrderStatusPaid, models.OrderStatusConfirmed,
		models.OrderStatusShipped, models.OrderStatusDelivered:
		w.settle(ctx, pv, models.AttemptOutcomeConfirmed, "")
		util.PendingVerificationsReconciled.WithLabelValues("confirmed").Inc()

		if w.events != nil {
			event := &models.CheckoutConfirmedEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeCheckoutConfirmed,
					Timestamp: time.Now(),
				},
				OrderID:        order.ID,
				UserID:         pv.UserID,
				Amount:         order.Amount,
				GatewayOrderID: pv.GatewayOrderID,
			}
			if err := w.events.PublishCheckoutConfirmed(ctx, event); err != nil {
				w.logger.Error("Failed to publish CheckoutConfirmed event", zap.Error(err))
			}
		}

		w.logger.Info("Reconciled unknown outcome as confirmed",
			zap.Int64("order_id", pv.OrderID))

	case models.OrderStatusCancelled:
		w.settle(ctx, pv, models.AttemptOutcomeCancelled, "order cancelled")
		util.PendingVerificationsReconciled.WithLabelValues("cancelled").Inc()

		if w.events != nil {
			event := &models.CheckoutCancelledEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeCheckoutCancelled,
					Timestamp: time.Now(),
				},
				OrderID:        order.ID,
				UserID:         pv.UserID,
				GatewayOrderID: pv.GatewayOrderID,
				Reason:         "reconciled after unknown verification outcome",
			}
			if err := w.events.PublishCheckoutCancelled(ctx, event); err != nil {
				w.logger.Error("Failed to publish CheckoutCancelled event", zap.Error(err))
			}
		}

		w.logger.Info("Reconciled unknown outcome as cancelled",
			zap.Int64("order_id", pv.OrderID))

	default:
		// Still unsettled server-side; keep it queued.
	}
}

func (w *ReconcileWorker) settle(ctx context.Context, pv models.PendingVerification, outcome, reason string) {
	if err := w.ledger.SetOutcome(ctx, pv.AttemptID, outcome, reason); err != nil {
		w.logger.Error("Failed to settle attempt outcome",
			zap.Int64("attempt_id", pv.AttemptID),
			zap.Error(err))
		return
	}
	if err := w.ledger.DeletePendingVerification(ctx, pv.ID); err != nil {
		w.logger.Error("Failed to remove pending verification",
			zap.Int64("id", pv.ID),
			zap.Error(err))
	}
}
