package cart

import (
	"context"
	"errors"
	"sync"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// ErrInvalidQuantity is returned for quantity changes below 1, before
// any network call is made.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// API is the slice of the commerce client the mirror needs. Every
// mutation returns the authoritative new cart.
type API interface {
	GetCart(ctx context.Context, userID int64) (*models.Cart, error)
	AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, itemID int64, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID int64) (*models.Cart, error)
	ApplyCoupon(ctx context.Context, userID, couponID int64) (*models.Cart, error)
	RemoveCoupon(ctx context.Context, userID int64) (*models.Cart, error)
	ClearCart(ctx context.Context, userID int64) (*models.Cart, error)
}

// Cache persists cart snapshots between requests.
type Cache interface {
	GetCart(ctx context.Context, userID int64) (*models.Cart, error)
	SetCart(ctx context.Context, cart *models.Cart) error
	InvalidateCart(ctx context.Context, userID int64) error
}

// Mirror is the client-held copy of one user's server cart. It never
// computes totals locally: every mutation response replaces the whole
// value, and a rejected mutation leaves it untouched. The generation
// counter increments on every replacement so derived state (the
// eligible-coupon list) can detect staleness.
//
// Mutations are deliberately not serialized. Two rapid quantity
// clicks race, and whichever response lands last becomes the mirror;
// the server is authoritative and a later Fetch reconciles anything
// visible.
type Mirror struct {
	userID int64
	api    API
	cache  Cache
	logger *zap.Logger

	mu         sync.Mutex
	cart       *models.Cart
	generation uint64
}

// NewMirror creates a mirror for one user. cache may be nil.
func NewMirror(userID int64, api API, cache Cache) *Mirror {
	return &Mirror{
		userID: userID,
		api:    api,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Fetch loads the cart, preferring the snapshot cache, and replaces
// the mirror.
func (m *Mirror) Fetch(ctx context.Context) (*models.Cart, error) {
	if m.cache != nil {
		if cached, err := m.cache.GetCart(ctx, m.userID); err == nil && cached != nil {
			return m.replace(ctx, cached, false), nil
		}
	}

	cart, err := m.api.GetCart(ctx, m.userID)
	if err != nil {
		return nil, err
	}
	return m.replace(ctx, cart, true), nil
}

// AddItem adds a product to the cart.
func (m *Mirror) AddItem(ctx context.Context, productID int64, quantity int) (*models.Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	return m.mutate(ctx, "add_item", func() (*models.Cart, error) {
		return m.api.AddItem(ctx, m.userID, productID, quantity)
	})
}

// SetQuantity sets a cart item's quantity. Quantities below 1 are
// rejected here, before the network.
func (m *Mirror) SetQuantity(ctx context.Context, itemID int64, quantity int) (*models.Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	return m.mutate(ctx, "set_quantity", func() (*models.Cart, error) {
		return m.api.UpdateItemQuantity(ctx, m.userID, itemID, quantity)
	})
}

// RemoveItem removes a cart item.
func (m *Mirror) RemoveItem(ctx context.Context, itemID int64) (*models.Cart, error) {
	return m.mutate(ctx, "remove_item", func() (*models.Cart, error) {
		return m.api.RemoveItem(ctx, m.userID, itemID)
	})
}

// ApplyCoupon applies a coupon. The server re-validates eligibility,
// so this can be rejected even for a coupon the resolver just listed;
// the rejection is returned to the caller, never swallowed.
func (m *Mirror) ApplyCoupon(ctx context.Context, couponID int64) (*models.Cart, error) {
	return m.mutate(ctx, "apply_coupon", func() (*models.Cart, error) {
		return m.api.ApplyCoupon(ctx, m.userID, couponID)
	})
}

// RemoveCoupon removes the applied coupon.
func (m *Mirror) RemoveCoupon(ctx context.Context) (*models.Cart, error) {
	return m.mutate(ctx, "remove_coupon", func() (*models.Cart, error) {
		return m.api.RemoveCoupon(ctx, m.userID)
	})
}

// Clear empties the cart.
func (m *Mirror) Clear(ctx context.Context) (*models.Cart, error) {
	return m.mutate(ctx, "clear", func() (*models.Cart, error) {
		return m.api.ClearCart(ctx, m.userID)
	})
}

// Invalidate drops the mirror and its cached snapshot, forcing the
// next Fetch to the network. Used after a confirmed checkout consumes
// the server cart.
func (m *Mirror) Invalidate(ctx context.Context) {
	m.mu.Lock()
	m.cart = nil
	m.generation++
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.InvalidateCart(ctx, m.userID); err != nil {
			m.logger.Warn("Failed to drop cached cart snapshot",
				zap.Int64("user_id", m.userID),
				zap.Error(err))
		}
	}
}

// Snapshot returns the current cart and the generation it belongs to.
// The cart may be nil before the first Fetch.
func (m *Mirror) Snapshot() (*models.Cart, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cart, m.generation
}

// Generation returns the current mirror generation.
func (m *Mirror) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

func (m *Mirror) mutate(ctx context.Context, op string, call func() (*models.Cart, error)) (*models.Cart, error) {
	util.CartMutationsTotal.WithLabelValues(op).Inc()

	cart, err := call()
	if err != nil {
		util.CartMutationsRejected.WithLabelValues(op).Inc()
		m.logger.Warn("Cart mutation rejected",
			zap.String("op", op),
			zap.Int64("user_id", m.userID),
			zap.Error(err))
		return nil, err
	}

	return m.replace(ctx, cart, true), nil
}

// replace installs the server's cart as the new mirror and bumps the
// generation, invalidating any previously resolved coupon list.
func (m *Mirror) replace(ctx context.Context, cart *models.Cart, writeCache bool) *models.Cart {
	if cart.Total != cart.Subtotal-cart.DiscountAmount {
		m.logger.Warn("Server cart totals do not reconcile",
			zap.Int64("cart_id", cart.CartID),
			zap.Int64("subtotal", cart.Subtotal),
			zap.Int64("discount", cart.DiscountAmount),
			zap.Int64("total", cart.Total))
	}

	m.mu.Lock()
	m.cart = cart
	m.generation++
	m.mu.Unlock()

	if writeCache && m.cache != nil {
		if err := m.cache.SetCart(ctx, cart); err != nil {
			m.logger.Warn("Failed to cache cart snapshot",
				zap.Int64("user_id", m.userID),
				zap.Error(err))
		}
	}

	return cart
}

// Registry hands out one mirror per user.
type Registry struct {
	api   API
	cache Cache

	mu      sync.Mutex
	mirrors map[int64]*Mirror
}

// NewRegistry creates a mirror registry.
func NewRegistry(api API, cache Cache) *Registry {
	return &Registry{
		api:     api,
		cache:   cache,
		mirrors: make(map[int64]*Mirror),
	}
}

// For returns the mirror for a user, creating it on first use.
func (r *Registry) For(userID int64) *Mirror {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.mirrors[userID]; ok {
		return m
	}
	m := NewMirror(userID, r.api, r.cache)
	r.mirrors[userID] = m
	return m
}
