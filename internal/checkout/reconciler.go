package checkout

import (
	"context"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// VerifierAPI is the slice of the commerce client the reconciler
// needs.
type VerifierAPI interface {
	VerifyPaymentSuccess(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (*models.Order, error)
	VerifyPaymentFailure(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*models.Order, error)
}

// CallbackStore records gateway callbacks already reported, so a
// duplicate delivery is visible in the ledger.
type CallbackStore interface {
	IsCallbackProcessed(ctx context.Context, callbackID string) (bool, error)
	MarkCallbackProcessed(ctx context.Context, callbackID, kind string) error
}

// Reconciler turns a gateway callback into a server-verified order
// outcome. The client only reports which callback it observed; the
// authority for the charge lives server-side, which is what makes both
// verification calls safe to repeat for the same gateway order id.
type Reconciler struct {
	api    VerifierAPI
	store  CallbackStore
	logger *zap.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(api VerifierAPI, store CallbackStore) *Reconciler {
	return &Reconciler{
		api:    api,
		store:  store,
		logger: util.GetLogger(),
	}
}

// VerifySuccess reports the gateway's success callback. The server's
// answer is the sole source of truth: a rejection here means the
// payment is NOT confirmed, regardless of what the gateway claimed.
func (r *Reconciler) VerifySuccess(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (*models.Order, error) {
	callbackID := gatewayOrderID + ":" + gatewayPaymentID + ":success"
	r.noteDuplicate(ctx, callbackID)

	start := time.Now()
	order, err := r.api.VerifyPaymentSuccess(ctx, gatewayOrderID, gatewayPaymentID, signature)
	util.VerificationLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.VerificationsTotal.WithLabelValues("success", "error").Inc()
		return nil, err
	}

	util.VerificationsTotal.WithLabelValues("success", "ok").Inc()
	r.markProcessed(ctx, callbackID, "success")
	return order, nil
}

// VerifyFailure reports a dismissed gateway session so the server can
// cancel the pending order.
func (r *Reconciler) VerifyFailure(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*models.Order, error) {
	callbackID := gatewayOrderID + ":" + gatewayPaymentID + ":failure"
	r.noteDuplicate(ctx, callbackID)

	start := time.Now()
	order, err := r.api.VerifyPaymentFailure(ctx, gatewayOrderID, gatewayPaymentID)
	util.VerificationLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.VerificationsTotal.WithLabelValues("failure", "error").Inc()
		return nil, err
	}

	util.VerificationsTotal.WithLabelValues("failure", "ok").Inc()
	r.markProcessed(ctx, callbackID, "failure")
	return order, nil
}

// noteDuplicate logs when the same callback has been reported before.
// The call still proceeds: verification is idempotent server-side, and
// repeating it cannot double-charge or double-cancel.
func (r *Reconciler) noteDuplicate(ctx context.Context, callbackID string) {
	if r.store == nil {
		return
	}
	processed, err := r.store.IsCallbackProcessed(ctx, callbackID)
	if err != nil {
		r.logger.Warn("Failed to check processed callback", zap.Error(err))
		return
	}
	if processed {
		util.GatewayDuplicateCallbacks.Inc()
		r.logger.Info("Gateway callback already reported, verifying again",
			zap.String("callback_id", callbackID))
	}
}

func (r *Reconciler) markProcessed(ctx context.Context, callbackID, kind string) {
	if r.store == nil {
		return
	}
	if err := r.store.MarkCallbackProcessed(ctx, callbackID, kind); err != nil {
		r.logger.Warn("Failed to mark callback processed", zap.Error(err))
	}
}
