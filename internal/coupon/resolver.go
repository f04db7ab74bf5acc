package coupon

import (
	"context"
	"sync"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// API is the slice of the commerce client the resolver needs.
type API interface {
	EligibleCoupons(ctx context.Context, userID int64) ([]models.Coupon, error)
}

// Resolver computes which coupons qualify for one user's current cart.
// Resolutions can overlap: repeated quantity clicks each trigger a
// fresh resolution while earlier ones are still in flight, and
// completions arrive in no guaranteed order. Each dispatch therefore
// takes a monotonic sequence number, and a completion is discarded if
// a newer result has already been installed.
//
// The installed list is tagged with the cart-mirror generation it was
// resolved against; Eligible treats a list from any other generation
// as invalid.
type Resolver struct {
	userID int64
	api    API
	logger *zap.Logger

	mu         sync.Mutex
	nextSeq    uint64
	appliedSeq uint64
	eligible   []models.Coupon
	generation uint64
}

// NewResolver creates a resolver for one user.
func NewResolver(userID int64, api API) *Resolver {
	return &Resolver{
		userID: userID,
		api:    api,
		logger: util.GetLogger(),
	}
}

// Resolve asks the backend which coupons qualify for the cart state
// identified by generation. The returned list is whatever is installed
// when this resolution settles: its own result if still the newest,
// or the fresher list that beat it.
func (r *Resolver) Resolve(ctx context.Context, generation uint64) ([]models.Coupon, error) {
	r.mu.Lock()
	r.nextSeq++
	seq := r.nextSeq
	r.mu.Unlock()

	util.CouponResolutionsTotal.Inc()

	coupons, err := r.api.EligibleCoupons(ctx, r.userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if seq < r.appliedSeq {
		// A newer resolution already landed; this result is stale.
		util.CouponResolutionsStale.Inc()
		r.logger.Debug("Discarding stale coupon resolution",
			zap.Int64("user_id", r.userID),
			zap.Uint64("seq", seq),
			zap.Uint64("applied_seq", r.appliedSeq))
		return append([]models.Coupon(nil), r.eligible...), nil
	}

	r.appliedSeq = seq
	r.eligible = coupons
	r.generation = generation
	return append([]models.Coupon(nil), coupons...), nil
}

// Eligible returns the installed list if it was resolved against the
// given cart generation. A mirror replacement invalidates the list
// until the next Resolve completes.
func (r *Resolver) Eligible(generation uint64) ([]models.Coupon, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.appliedSeq == 0 || r.generation != generation {
		return nil, false
	}
	return append([]models.Coupon(nil), r.eligible...), true
}

// Registry hands out one resolver per user.
type Registry struct {
	api API

	mu        sync.Mutex
	resolvers map[int64]*Resolver
}

// NewRegistry creates a resolver registry.
func NewRegistry(api API) *Registry {
	return &Registry{
		api:       api,
		resolvers: make(map[int64]*Resolver),
	}
}

// For returns the resolver for a user, creating it on first use.
func (reg *Registry) For(userID int64) *Resolver {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.resolvers[userID]; ok {
		return r
	}
	r := NewResolver(userID, reg.api)
	reg.resolvers[userID] = r
	return r
}
