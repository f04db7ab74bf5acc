package worker

import (
	"context"
	"testing"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	pending  []models.PendingVerification
	outcomes map[int64]string
}

func newFakeLedger(pending ...models.PendingVerification) *fakeLedger {
	return &fakeLedger{pending: pending, outcomes: make(map[int64]string)}
}

func (f *fakeLedger) ListPendingVerifications(ctx context.Context, limit int) ([]models.PendingVerification, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeLedger) DeletePendingVerification(ctx context.Context, id int64) error {
	kept := f.pending[:0]
	for _, pv := range f.pending {
		if pv.ID != id {
			kept = append(kept, pv)
		}
	}
	f.pending = kept
	return nil
}

func (f *fakeLedger) SetOutcome(ctx context.Context, attemptID int64, outcome, reason string) error {
	f.outcomes[attemptID] = outcome
	return nil
}

type fakeOrders struct {
	orders map[int64]*models.Order
	err    error
}

func (f *fakeOrders) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.orders[orderID], nil
}

func pendingRow(id, attemptID, orderID int64) models.PendingVerification {
	return models.PendingVerification{
		ID:             id,
		AttemptID:      attemptID,
		UserID:         7,
		OrderID:        orderID,
		GatewayOrderID: "gw_order_1",
	}
}

func TestReconcileSettlesPaidOrderAsConfirmed(t *testing.T) {
	ledger := newFakeLedger(pendingRow(1, 11, 42))
	orders := &fakeOrders{orders: map[int64]*models.Order{
		42: {ID: 42, Status: models.OrderStatusPaid, Amount: 30000},
	}}
	w := NewReconcileWorker(ledger, orders, nil, 0)

	w.reconcile(context.Background())

	assert.Equal(t, models.AttemptOutcomeConfirmed, ledger.outcomes[11])
	assert.Empty(t, ledger.pending)
}

func TestReconcileSettlesCancelledOrder(t *testing.T) {
	ledger := newFakeLedger(pendingRow(1, 11, 42))
	orders := &fakeOrders{orders: map[int64]*models.Order{
		42: {ID: 42, Status: models.OrderStatusCancelled},
	}}
	w := NewReconcileWorker(ledger, orders, nil, 0)

	w.reconcile(context.Background())

	assert.Equal(t, models.AttemptOutcomeCancelled, ledger.outcomes[11])
	assert.Empty(t, ledger.pending)
}

func TestReconcileLeavesUnsettledOrderQueued(t *testing.T) {
	ledger := newFakeLedger(pendingRow(1, 11, 42))
	orders := &fakeOrders{orders: map[int64]*models.Order{
		42: {ID: 42, Status: models.OrderStatusPaymentPending},
	}}
	w := NewReconcileWorker(ledger, orders, nil, 0)

	w.reconcile(context.Background())

	assert.Empty(t, ledger.outcomes)
	require.Len(t, ledger.pending, 1)
}

func TestReconcileRetriesOnProjectionError(t *testing.T) {
	ledger := newFakeLedger(pendingRow(1, 11, 42))
	orders := &fakeOrders{err: assert.AnError}
	w := NewReconcileWorker(ledger, orders, nil, 0)

	w.reconcile(context.Background())

	// Nothing settled, nothing dropped.
	assert.Empty(t, ledger.outcomes)
	require.Len(t, ledger.pending, 1)
}
