package cart

import (
	"context"
	"errors"
	"testing"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI scripts commerce responses and counts round trips.
type fakeAPI struct {
	calls int
	cart  *models.Cart
	err   error
}

func (f *fakeAPI) respond() (*models.Cart, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

func (f *fakeAPI) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	return f.respond()
}

func (f *fakeAPI) AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	return f.respond()
}

func (f *fakeAPI) UpdateItemQuantity(ctx context.Context, userID, itemID int64, quantity int) (*models.Cart, error) {
	return f.respond()
}

func (f *fakeAPI) RemoveItem(ctx context.Context, userID, itemID int64) (*models.Cart, error) {
	return f.respond()
}

func (f *fakeAPI) ApplyCoupon(ctx context.Context, userID, couponID int64) (*models.Cart, error) {
	return f.respond()
}

func (f *fakeAPI) RemoveCoupon(ctx context.Context, userID int64) (*models.Cart, error) {
	return f.respond()
}

func (f *fakeAPI) ClearCart(ctx context.Context, userID int64) (*models.Cart, error) {
	return f.respond()
}

func serverCart(total, discount int64) *models.Cart {
	return &models.Cart{
		CartID:         1,
		UserID:         7,
		Items:          []models.CartItem{{CartItemID: 10, ProductID: 100, Quantity: 2, CurrentPrice: 100}},
		Subtotal:       total + discount,
		DiscountAmount: discount,
		Total:          total,
	}
}

func TestMirrorReplacedWholesale(t *testing.T) {
	api := &fakeAPI{cart: serverCart(200, 0)}
	m := NewMirror(7, api, nil)

	ctx := context.Background()
	c, err := m.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), c.Total)

	// The server's answer wins verbatim, including totals the client
	// could not have derived from the previous state.
	api.cart = serverCart(300, 50)
	c, err = m.AddItem(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(300), c.Total)
	assert.Equal(t, int64(50), c.DiscountAmount)

	snapshot, _ := m.Snapshot()
	assert.Equal(t, c, snapshot)
}

func TestSetQuantityRejectedBeforeNetwork(t *testing.T) {
	api := &fakeAPI{cart: serverCart(200, 0)}
	m := NewMirror(7, api, nil)

	_, err := m.SetQuantity(context.Background(), 10, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Zero(t, api.calls, "no network call may be issued for an invalid quantity")

	_, err = m.AddItem(context.Background(), 100, -1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Zero(t, api.calls)
}

func TestRejectedMutationLeavesMirrorUnchanged(t *testing.T) {
	api := &fakeAPI{cart: serverCart(200, 0)}
	m := NewMirror(7, api, nil)

	ctx := context.Background()
	_, err := m.Fetch(ctx)
	require.NoError(t, err)
	_, genBefore := m.Snapshot()

	api.err = errors.New("insufficient stock")
	_, err = m.SetQuantity(ctx, 10, 5)
	require.Error(t, err)

	snapshot, genAfter := m.Snapshot()
	assert.Equal(t, int64(200), snapshot.Total)
	assert.Equal(t, genBefore, genAfter, "a rejected mutation must not bump the generation")
}

func TestMutationInvalidatesGeneration(t *testing.T) {
	api := &fakeAPI{cart: serverCart(200, 0)}
	m := NewMirror(7, api, nil)

	ctx := context.Background()
	_, err := m.Fetch(ctx)
	require.NoError(t, err)
	_, gen1 := m.Snapshot()

	api.cart = serverCart(300, 0)
	_, err = m.SetQuantity(ctx, 10, 3)
	require.NoError(t, err)

	_, gen2 := m.Snapshot()
	assert.Greater(t, gen2, gen1, "every replacement must invalidate derived state")
}

func TestInvalidateDropsMirror(t *testing.T) {
	api := &fakeAPI{cart: serverCart(200, 0)}
	m := NewMirror(7, api, nil)

	ctx := context.Background()
	_, err := m.Fetch(ctx)
	require.NoError(t, err)

	m.Invalidate(ctx)
	snapshot, _ := m.Snapshot()
	assert.Nil(t, snapshot)

	// Next fetch goes back to the network.
	calls := api.calls
	_, err = m.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls+1, api.calls)
}

func TestRegistryReturnsSameMirrorPerUser(t *testing.T) {
	reg := NewRegistry(&fakeAPI{cart: serverCart(100, 0)}, nil)
	assert.Same(t, reg.For(1), reg.For(1))
	assert.NotSame(t, reg.For(1), reg.For(2))
}
