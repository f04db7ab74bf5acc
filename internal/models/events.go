package models

import "time"

// Event types
const (
	EventTypeCheckoutConfirmed = "CHECKOUT_CONFIRMED"
	EventTypeCheckoutCancelled = "CHECKOUT_CANCELLED"
	EventTypeCheckoutFailed    = "CHECKOUT_FAILED"
	EventTypePaymentVerified   = "PAYMENT_VERIFIED"
	EventTypePaymentDismissed  = "PAYMENT_DISMISSED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckoutConfirmedEvent published when the server verifies the charge
// and the order reaches a confirmed terminal state.
type CheckoutConfirmedEvent struct {
	BaseEvent
	OrderID          int64  `json:"order_id"`
	UserID           int64  `json:"user_id"`
	Amount           int64  `json:"amount"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
}

// CheckoutCancelledEvent published when a checkout attempt ends in the
// retryable cancelled state (gateway dismissed or failure-verified).
type CheckoutCancelledEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	UserID         int64  `json:"user_id"`
	GatewayOrderID string `json:"gateway_order_id,omitempty"`
	Reason         string `json:"reason"`
}

// CheckoutFailedEvent published when order creation is rejected or the
// verification outcome is unknown.
type CheckoutFailedEvent struct {
	BaseEvent
	UserID  int64  `json:"user_id"`
	OrderID int64  `json:"order_id,omitempty"`
	Reason  string `json:"reason"`
}

// PaymentVerifiedEvent published after a successful webhook
// verification round trip.
type PaymentVerifiedEvent struct {
	BaseEvent
	OrderID          int64  `json:"order_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Amount           int64  `json:"amount"`
}

// PaymentDismissedEvent published when the user closed the gateway
// widget without paying.
type PaymentDismissedEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
}
