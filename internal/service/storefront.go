package service

import (
	"context"

	"storefront-service/internal/cart"
	"storefront-service/internal/checkout"
	"storefront-service/internal/coupon"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// OrdersAPI reads order and shipment projections.
type OrdersAPI interface {
	GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error)
	TrackOrder(ctx context.Context, userID, orderID int64) (*models.Shipment, error)
}

// StorefrontService ties the cart mirror, the coupon resolver and the
// checkout orchestrator together for the HTTP layer.
type StorefrontService struct {
	carts        *cart.Registry
	coupons      *coupon.Registry
	orchestrator *checkout.Orchestrator
	orders       OrdersAPI
	logger       *zap.Logger
}

// NewStorefrontService creates the storefront service.
func NewStorefrontService(
	carts *cart.Registry,
	coupons *coupon.Registry,
	orchestrator *checkout.Orchestrator,
	orders OrdersAPI,
) *StorefrontService {
	return &StorefrontService{
		carts:        carts,
		coupons:      coupons,
		orchestrator: orchestrator,
		orders:       orders,
		logger:       util.GetLogger(),
	}
}

// CartView is the cart together with the coupons that currently
// qualify for it.
type CartView struct {
	Cart            *models.Cart    `json:"cart"`
	EligibleCoupons []models.Coupon `json:"eligible_coupons"`
}

// GetCart loads the cart and resolves coupon eligibility for it.
func (s *StorefrontService) GetCart(ctx context.Context, userID int64) (*CartView, error) {
	c, err := s.carts.For(userID).Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: c, EligibleCoupons: s.resolveEligibility(ctx, userID)}, nil
}

// AddItem adds a product to the cart.
func (s *StorefrontService) AddItem(ctx context.Context, userID, productID int64, quantity int) (*CartView, error) {
	c, err := s.carts.For(userID).AddItem(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: c, EligibleCoupons: s.resolveEligibility(ctx, userID)}, nil
}

// SetQuantity changes a cart item's quantity.
func (s *StorefrontService) SetQuantity(ctx context.Context, userID, itemID int64, quantity int) (*CartView, error) {
	c, err := s.carts.For(userID).SetQuantity(ctx, itemID, quantity)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: c, EligibleCoupons: s.resolveEligibility(ctx, userID)}, nil
}

// RemoveItem removes a cart item.
func (s *StorefrontService) RemoveItem(ctx context.Context, userID, itemID int64) (*CartView, error) {
	c, err := s.carts.For(userID).RemoveItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: c, EligibleCoupons: s.resolveEligibility(ctx, userID)}, nil
}

// ApplyCoupon applies a coupon. The server re-validates it, so the
// call can fail even for a coupon that was just listed as eligible;
// that rejection comes back as the error.
func (s *StorefrontService) ApplyCoupon(ctx context.Context, userID, couponID int64) (*CartView, error) {
	c, err := s.carts.For(userID).ApplyCoupon(ctx, couponID)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: c, EligibleCoupons: s.resolveEligibility(ctx, userID)}, nil
}

// RemoveCoupon removes the applied coupon.
func (s *StorefrontService) RemoveCoupon(ctx context.Context, userID int64) (*CartView, error) {
	c, err := s.carts.For(userID).RemoveCoupon(ctx)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: c, EligibleCoupons: s.resolveEligibility(ctx, userID)}, nil
}

// ClearCart empties the cart.
func (s *StorefrontService) ClearCart(ctx context.Context, userID int64) (*CartView, error) {
	c, err := s.carts.For(userID).Clear(ctx)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: c, EligibleCoupons: s.resolveEligibility(ctx, userID)}, nil
}

// PlaceOrder starts a checkout attempt from the current mirror state.
func (s *StorefrontService) PlaceOrder(ctx context.Context, userID, addressID int64) (*checkout.PlaceOrderResult, error) {
	snapshot, _ := s.carts.For(userID).Snapshot()
	result, err := s.orchestrator.PlaceOrder(ctx, checkout.PlaceOrderRequest{
		UserID:    userID,
		AddressID: addressID,
		Cart:      snapshot,
	})
	if err != nil {
		return nil, err
	}
	if result.Status.Confirmed() {
		// Zero-amount order: the server cart is already consumed.
		s.carts.For(userID).Invalidate(ctx)
	}
	return result, nil
}

// CompletePayment delivers the gateway's success callback.
func (s *StorefrontService) CompletePayment(ctx context.Context, userID int64, gatewayOrderID, gatewayPaymentID, signature string) (checkout.Status, error) {
	status, err := s.orchestrator.HandleGatewayComplete(ctx, userID, gatewayOrderID, gatewayPaymentID, signature)
	if err == nil && status.Confirmed() {
		// The order consumed the cart; drop the stale mirror.
		s.carts.For(userID).Invalidate(ctx)
	}
	return status, err
}

// DismissPayment delivers the gateway's dismissal callback.
func (s *StorefrontService) DismissPayment(ctx context.Context, userID int64, gatewayOrderID, gatewayPaymentID string) (checkout.Status, error) {
	return s.orchestrator.HandleGatewayDismiss(ctx, userID, gatewayOrderID, gatewayPaymentID)
}

// CheckoutStatus returns the current checkout session view.
func (s *StorefrontService) CheckoutStatus(userID int64) (checkout.Status, bool) {
	return s.orchestrator.Status(userID)
}

// ResetCheckout discards a terminal checkout session.
func (s *StorefrontService) ResetCheckout(userID int64) error {
	return s.orchestrator.Reset(userID)
}

// GetOrder fetches the order projection.
func (s *StorefrontService) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	return s.orders.GetOrder(ctx, userID, orderID)
}

// TrackOrder fetches the shipment projection.
func (s *StorefrontService) TrackOrder(ctx context.Context, userID, orderID int64) (*models.Shipment, error) {
	return s.orders.TrackOrder(ctx, userID, orderID)
}

// resolveEligibility re-resolves the coupon list for the mirror's
// current generation. Eligibility failures degrade to an empty list;
// the cart operation itself already succeeded.
func (s *StorefrontService) resolveEligibility(ctx context.Context, userID int64) []models.Coupon {
	_, generation := s.carts.For(userID).Snapshot()
	coupons, err := s.coupons.For(userID).Resolve(ctx, generation)
	if err != nil {
		s.logger.Warn("Coupon eligibility resolution failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil
	}
	return coupons
}
