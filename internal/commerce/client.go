package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is a rejection from the commerce API. Message carries the
// server's reason verbatim so handlers can surface it unchanged.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("commerce api: %s (status %d)", e.Message, e.StatusCode)
}

// IsRejection reports whether err is a server rejection, as opposed to
// a transport failure where the true outcome is unknown.
func IsRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// CheckoutConfirmation is the commerce API's response to order
// creation. GatewayOrderID is empty for zero-amount orders, which
// need no payment step.
type CheckoutConfirmation struct {
	OrderID        int64  `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	Amount         int64  `json:"amount"`
	GatewayOrderID string `json:"gateway_order_id,omitempty"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
}

// Client talks to the remote commerce API. All cart state lives
// server-side; responses are authoritative.
type Client struct {
	baseURL      string
	webhookToken string
	httpClient   *http.Client
}

// NewClient creates a commerce API client with an instrumented
// transport.
func NewClient(baseURL, webhookToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		webhookToken: webhookToken,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// GetCart fetches the user's cart.
func (c *Client) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	if err := c.do(ctx, http.MethodGet, "/cart", userID, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddItem adds a product to the cart and returns the new cart.
func (c *Client) AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	body := map[string]interface{}{"product_id": productID, "quantity": quantity}
	var cart models.Cart
	if err := c.do(ctx, http.MethodPost, "/cart/items", userID, body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// UpdateItemQuantity sets the quantity of a cart item and returns the
// new cart.
func (c *Client) UpdateItemQuantity(ctx context.Context, userID, itemID int64, quantity int) (*models.Cart, error) {
	body := map[string]interface{}{"quantity": quantity}
	var cart models.Cart
	path := fmt.Sprintf("/cart/items/%d", itemID)
	if err := c.do(ctx, http.MethodPut, path, userID, body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveItem removes a cart item and returns the new cart.
func (c *Client) RemoveItem(ctx context.Context, userID, itemID int64) (*models.Cart, error) {
	var cart models.Cart
	path := fmt.Sprintf("/cart/items/%d", itemID)
	if err := c.do(ctx, http.MethodDelete, path, userID, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// ApplyCoupon applies a coupon to the cart. The server re-validates
// eligibility, so this can fail even for a coupon that was just
// listed as eligible.
func (c *Client) ApplyCoupon(ctx context.Context, userID, couponID int64) (*models.Cart, error) {
	body := map[string]interface{}{"coupon_id": couponID}
	var cart models.Cart
	if err := c.do(ctx, http.MethodPost, "/cart/coupons", userID, body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveCoupon removes the applied coupon and returns the new cart.
func (c *Client) RemoveCoupon(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	if err := c.do(ctx, http.MethodDelete, "/cart/coupons", userID, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// ClearCart empties the cart and returns the new (empty) cart.
func (c *Client) ClearCart(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	if err := c.do(ctx, http.MethodDelete, "/cart", userID, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// EligibleCoupons lists the coupons that qualify for the cart's
// current state.
func (c *Client) EligibleCoupons(ctx context.Context, userID int64) ([]models.Coupon, error) {
	var coupons []models.Coupon
	if err := c.do(ctx, http.MethodGet, "/cart/coupons/eligible", userID, nil, &coupons); err != nil {
		return nil, err
	}
	return coupons, nil
}

// ConfirmCheckout converts the server cart into an order against the
// given delivery address.
func (c *Client) ConfirmCheckout(ctx context.Context, userID, addressID int64) (*CheckoutConfirmation, error) {
	path := "/cart/checkout/confirm?id=" + strconv.FormatInt(addressID, 10)
	var conf CheckoutConfirmation
	if err := c.do(ctx, http.MethodPost, path, userID, nil, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// VerifyPaymentSuccess reports the gateway's success callback to the
// server, which verifies the signature and settles the order. The
// server is the sole authority on whether the charge stands.
func (c *Client) VerifyPaymentSuccess(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (*models.Order, error) {
	q := url.Values{}
	q.Set("gatewayOrderId", gatewayOrderID)
	q.Set("gatewayPaymentId", gatewayPaymentID)
	q.Set("signature", signature)

	var order models.Order
	if err := c.doWebhook(ctx, "/payments/webhook/success?"+q.Encode(), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// VerifyPaymentFailure reports a dismissed or failed gateway session
// so the server can cancel the pending order.
func (c *Client) VerifyPaymentFailure(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*models.Order, error) {
	q := url.Values{}
	q.Set("gatewayOrderId", gatewayOrderID)
	q.Set("gatewayPaymentId", gatewayPaymentID)

	var order models.Order
	if err := c.doWebhook(ctx, "/payments/webhook/failure?"+q.Encode(), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder fetches the read-only order projection.
func (c *Client) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	var order models.Order
	path := fmt.Sprintf("/orders/%d", orderID)
	if err := c.do(ctx, http.MethodGet, path, userID, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// TrackOrder fetches the shipment projection for an order.
func (c *Client) TrackOrder(ctx context.Context, userID, orderID int64) (*models.Shipment, error) {
	var shipment models.Shipment
	path := fmt.Sprintf("/orders/%d/track", orderID)
	if err := c.do(ctx, http.MethodGet, path, userID, nil, &shipment); err != nil {
		return nil, err
	}
	return &shipment, nil
}

// metricPath collapses path parameters so the latency metric keeps a
// bounded label set.
func metricPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p != "" && strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' }) == -1 {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, method, path string, userID int64, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	return c.execute(req, path, out)
}

func (c *Client) doWebhook(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.webhookToken)
	return c.execute(req, path, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) execute(req *http.Request, endpoint string, out interface{}) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	util.CommerceRequestLatency.WithLabelValues(metricPath(endpoint)).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("commerce request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
