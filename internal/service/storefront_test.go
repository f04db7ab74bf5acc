package service

import (
	"context"
	"errors"
	"testing"

	"storefront-service/internal/cart"
	"storefront-service/internal/commerce"
	"storefront-service/internal/coupon"
	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend implements the cart and coupon slices of the commerce
// client.
type fakeBackend struct {
	cart      *models.Cart
	coupons   []models.Coupon
	couponErr error
	applyErr  error
}

func (f *fakeBackend) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	return f.cart, nil
}

func (f *fakeBackend) AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	return f.cart, nil
}

func (f *fakeBackend) UpdateItemQuantity(ctx context.Context, userID, itemID int64, quantity int) (*models.Cart, error) {
	return f.cart, nil
}

func (f *fakeBackend) RemoveItem(ctx context.Context, userID, itemID int64) (*models.Cart, error) {
	return f.cart, nil
}

func (f *fakeBackend) ApplyCoupon(ctx context.Context, userID, couponID int64) (*models.Cart, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	return f.cart, nil
}

func (f *fakeBackend) RemoveCoupon(ctx context.Context, userID int64) (*models.Cart, error) {
	return f.cart, nil
}

func (f *fakeBackend) ClearCart(ctx context.Context, userID int64) (*models.Cart, error) {
	return f.cart, nil
}

func (f *fakeBackend) EligibleCoupons(ctx context.Context, userID int64) ([]models.Coupon, error) {
	if f.couponErr != nil {
		return nil, f.couponErr
	}
	return f.coupons, nil
}

func newTestService(backend *fakeBackend) *StorefrontService {
	return NewStorefrontService(
		cart.NewRegistry(backend, nil),
		coupon.NewRegistry(backend),
		nil,
		nil,
	)
}

func TestMutationRefreshesEligibility(t *testing.T) {
	backend := &fakeBackend{
		cart: &models.Cart{
			CartID:   1,
			UserID:   7,
			Items:    []models.CartItem{{CartItemID: 10, ProductID: 100, Quantity: 1, CurrentPrice: 500}},
			Subtotal: 500,
			Total:    500,
		},
		coupons: []models.Coupon{{ID: 1, Code: "SAVE10", Type: models.CouponTypePercentage, DiscountValue: 10}},
	}
	s := newTestService(backend)

	view, err := s.AddItem(context.Background(), 7, 100, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(500), view.Cart.Total)
	require.Len(t, view.EligibleCoupons, 1)
	assert.Equal(t, "SAVE10", view.EligibleCoupons[0].Code)
}

func TestEligibilityFailureDegradesToEmptyList(t *testing.T) {
	backend := &fakeBackend{
		cart: &models.Cart{
			CartID: 1,
			UserID: 7,
			Items:  []models.CartItem{{CartItemID: 10, ProductID: 100, Quantity: 1, CurrentPrice: 500}},
		},
		couponErr: errors.New("eligibility endpoint down"),
	}
	s := newTestService(backend)

	// The cart operation succeeded; only the coupon list degrades.
	view, err := s.GetCart(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, view.Cart)
	assert.Empty(t, view.EligibleCoupons)
}

func TestApplyCouponRejectionSurfaced(t *testing.T) {
	backend := &fakeBackend{
		cart:     &models.Cart{CartID: 1, UserID: 7},
		applyErr: &commerce.APIError{StatusCode: 422, Message: "coupon requires a minimum order of 1000"},
	}
	s := newTestService(backend)

	_, err := s.ApplyCoupon(context.Background(), 7, 1)
	require.Error(t, err)

	apiErr := new(commerce.APIError)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "coupon requires a minimum order of 1000", apiErr.Message)
}
