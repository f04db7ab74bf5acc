package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb     *redis.Client
	cartTTL time.Duration
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int, cartTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, cartTTL: cartTTL}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

// GetCart retrieves a cached cart snapshot. Returns (nil, nil) on a
// cache miss.
func (c *Client) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	payload, err := c.rdb.Get(ctx, cartKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := json.Unmarshal(payload, &cart); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached cart: %w", err)
	}
	return &cart, nil
}

// SetCart caches a cart snapshot with TTL
func (c *Client) SetCart(ctx context.Context, cart *models.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to marshal cart: %w", err)
	}
	return c.rdb.Set(ctx, cartKey(cart.UserID), payload, c.cartTTL).Err()
}

// InvalidateCart drops the cached snapshot for a user
func (c *Client) InvalidateCart(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, cartKey(userID)).Err()
}

// AcquireCheckoutLock takes the per-user checkout lock. The lock makes
// the single-active-attempt guard hold across service instances.
func (c *Client) AcquireCheckoutLock(ctx context.Context, userID int64, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("checkout:lock:%d", userID), "1", ttl).Result()
}

// ReleaseCheckoutLock releases the per-user checkout lock
func (c *Client) ReleaseCheckoutLock(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf("checkout:lock:%d", userID)).Err()
}
