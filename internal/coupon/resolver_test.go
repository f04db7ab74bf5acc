package coupon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingAPI parks each eligibility call on a channel so tests can
// release completions in any order.
type blockingAPI struct {
	mu    sync.Mutex
	calls []chan []models.Coupon
}

func (b *blockingAPI) EligibleCoupons(ctx context.Context, userID int64) ([]models.Coupon, error) {
	ch := make(chan []models.Coupon)
	b.mu.Lock()
	b.calls = append(b.calls, ch)
	b.mu.Unlock()
	return <-ch, nil
}

func (b *blockingAPI) waitForCalls(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		b.mu.Lock()
		count := len(b.calls)
		b.mu.Unlock()
		if count >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d calls", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func (b *blockingAPI) release(i int, coupons []models.Coupon) {
	b.mu.Lock()
	ch := b.calls[i]
	b.mu.Unlock()
	ch <- coupons
}

func TestLastResolutionWins(t *testing.T) {
	api := &blockingAPI{}
	r := NewResolver(7, api)
	ctx := context.Background()

	// Quantity goes 2 -> 3 in quick succession: the resolution for the
	// older cart state (total 200) is still in flight when the one for
	// the newer state (total 300) completes.
	staleCoupons := []models.Coupon{{ID: 1, Code: "SAVE200", MinOrderAmount: 200}}
	freshCoupons := []models.Coupon{{ID: 2, Code: "SAVE300", MinOrderAmount: 300}}

	var wg sync.WaitGroup
	results := make([][]models.Coupon, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = r.Resolve(ctx, 1)
	}()
	api.waitForCalls(t, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = r.Resolve(ctx, 2)
	}()
	api.waitForCalls(t, 2)

	// The newer resolution completes first, the older one last.
	api.release(1, freshCoupons)
	time.Sleep(10 * time.Millisecond)
	api.release(0, staleCoupons)
	wg.Wait()

	// Completion order must not matter: only the result belonging to
	// the latest cart state populates the list.
	eligible, ok := r.Eligible(2)
	require.True(t, ok)
	assert.Equal(t, freshCoupons, eligible)
	assert.Equal(t, freshCoupons, results[0], "the stale completion returns the fresher installed list")
	assert.Equal(t, freshCoupons, results[1])
}

func TestEligibilityInvalidatedByCartGeneration(t *testing.T) {
	api := &blockingAPI{}
	r := NewResolver(7, api)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.Resolve(context.Background(), 5)
		require.NoError(t, err)
	}()
	api.waitForCalls(t, 1)
	api.release(0, []models.Coupon{{ID: 1, Code: "TEN"}})
	<-done

	_, ok := r.Eligible(5)
	assert.True(t, ok)

	// The cart mutated since: the list is invalid for the new state.
	_, ok = r.Eligible(6)
	assert.False(t, ok)
}

func TestEligibleEmptyBeforeFirstResolve(t *testing.T) {
	r := NewResolver(7, &blockingAPI{})
	_, ok := r.Eligible(0)
	assert.False(t, ok)
}

type failingAPI struct{}

func (failingAPI) EligibleCoupons(ctx context.Context, userID int64) ([]models.Coupon, error) {
	return nil, errors.New("upstream unavailable")
}

func TestResolveErrorKeepsInstalledList(t *testing.T) {
	api := &blockingAPI{}
	r := NewResolver(7, api)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Resolve(context.Background(), 1)
	}()
	api.waitForCalls(t, 1)
	api.release(0, []models.Coupon{{ID: 3, Code: "KEEP"}})
	<-done

	r.api = failingAPI{}
	_, err := r.Resolve(context.Background(), 1)
	require.Error(t, err)

	eligible, ok := r.Eligible(1)
	require.True(t, ok)
	assert.Len(t, eligible, 1)
}
