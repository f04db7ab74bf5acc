package models

import "time"

// CartItem represents a line in the server cart. Owned by the cart
// mirror; destroyed when removed or when the cart is cleared.
type CartItem struct {
	CartItemID    int64 `json:"cart_item_id"`
	ProductID     int64 `json:"product_id"`
	Quantity      int   `json:"quantity"`
	CurrentPrice  int64 `json:"current_price"`
	OriginalPrice int64 `json:"original_price,omitempty"`
}

// Cart is the server-authoritative cart. The client never recomputes
// its totals; every mutation response replaces the whole value.
type Cart struct {
	CartID            int64      `json:"cart_id"`
	UserID            int64      `json:"user_id"`
	Items             []CartItem `json:"items"`
	Subtotal          int64      `json:"subtotal"`
	DiscountAmount    int64      `json:"discount_amount"`
	Total             int64      `json:"total"`
	AppliedCouponID   int64      `json:"applied_coupon_id,omitempty"`
	AppliedCouponCode string     `json:"applied_coupon_code,omitempty"`
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Coupon discount types
const (
	CouponTypePercentage = "PERCENTAGE"
	CouponTypeFixed      = "FIXED"
)

// Coupon represents a discount coupon. Eligibility is not a field:
// it is membership in the resolver's last-returned list, which is
// invalidated the moment the cart changes.
type Coupon struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"`
	Type           string `json:"type"`
	DiscountValue  int64  `json:"discount_value"`
	MinOrderAmount int64  `json:"min_order_amount,omitempty"`
}

// Address is a delivery address, selected (not owned) per checkout
// attempt.
type Address struct {
	ID           int64  `json:"id"`
	FullName     string `json:"full_name"`
	PhoneNumber  string `json:"phone_number"`
	AddressLine1 string `json:"address_line1"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
	IsDefault    bool   `json:"is_default"`
}

// Order statuses (server-owned lifecycle; the client only observes)
const (
	OrderStatusCreated        = "CREATED"
	OrderStatusPaymentPending = "PAYMENT_PENDING"
	OrderStatusPaid           = "PAID"
	OrderStatusConfirmed      = "CONFIRMED"
	OrderStatusShipped        = "SHIPPED"
	OrderStatusDelivered      = "DELIVERED"
	OrderStatusCancelled      = "CANCELLED"
)

// Order is a read-only projection of the server order. The client
// never assigns Status; it triggers transitions through endpoints and
// observes the echoed result.
type Order struct {
	ID               int64     `json:"id"`
	OrderNumber      string    `json:"order_number"`
	UserID           int64     `json:"user_id"`
	Amount           int64     `json:"amount"`
	Status           string    `json:"status"`
	GatewayOrderID   string    `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string    `json:"gateway_payment_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Shipment is the tracking projection for a placed order.
type Shipment struct {
	OrderID     int64      `json:"order_id"`
	Carrier     string     `json:"carrier"`
	TrackingID  string     `json:"tracking_id"`
	Status      string     `json:"status"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Checkout attempt outcomes recorded in the local ledger.
const (
	AttemptOutcomeConfirmed = "CONFIRMED"
	AttemptOutcomeCancelled = "CANCELLED"
	AttemptOutcomeFailed    = "FAILED"
	AttemptOutcomeUnknown   = "UNKNOWN"
)

// CheckoutAttempt is one row of the local checkout ledger: a single
// press of "place order" and how it ended.
type CheckoutAttempt struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	AddressID      int64     `db:"address_id" json:"address_id"`
	OrderID        int64     `db:"order_id" json:"order_id,omitempty"`
	GatewayOrderID string    `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	Amount         int64     `db:"amount" json:"amount"`
	Outcome        string    `db:"outcome" json:"outcome"`
	FailureReason  string    `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// PendingVerification is an unknown-outcome verification awaiting the
// background reconciliation poll.
type PendingVerification struct {
	ID             int64     `db:"id"`
	AttemptID      int64     `db:"attempt_id"`
	UserID         int64     `db:"user_id"`
	OrderID        int64     `db:"order_id"`
	GatewayOrderID string    `db:"gateway_order_id"`
	CreatedAt      time.Time `db:"created_at"`
}

// ProcessedCallback records a gateway callback already acted on, for
// idempotent callback handling.
type ProcessedCallback struct {
	CallbackID  string    `db:"callback_id"`
	Kind        string    `db:"kind"`
	ProcessedAt time.Time `db:"processed_at"`
}
