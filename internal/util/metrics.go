package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations by operation",
	}, []string{"op"})

	CartMutationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_rejected_total",
		Help: "Total number of cart mutations rejected by the commerce API",
	}, []string{"op"})

	CouponResolutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_resolutions_total",
		Help: "Total number of coupon eligibility resolutions dispatched",
	})

	CouponResolutionsStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_resolutions_stale_total",
		Help: "Total number of eligibility results discarded as stale",
	})

	CheckoutAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Total number of checkout attempts started",
	})

	CheckoutConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_confirmed_total",
		Help: "Total number of checkout attempts confirmed",
	})

	CheckoutCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_cancelled_total",
		Help: "Total number of checkout attempts cancelled by the user",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Total number of failed checkout attempts",
	}, []string{"reason"})

	CheckoutRejectedReentry = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_reentry_rejected_total",
		Help: "Total number of place-order triggers ignored by the phase guard",
	})

	GatewaySessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sessions_opened_total",
		Help: "Total number of payment gateway sessions opened",
	})

	GatewayDuplicateCallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_duplicate_callbacks_total",
		Help: "Total number of late or duplicate gateway callbacks ignored",
	})

	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Total number of payment verification calls by kind and outcome",
	}, []string{"kind", "outcome"})

	VerificationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_verification_latency_seconds",
		Help:    "Latency of payment verification round trips",
		Buckets: prometheus.DefBuckets,
	})

	PendingVerificationsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pending_verifications_reconciled_total",
		Help: "Total number of unknown-outcome verifications resolved by the background poll",
	}, []string{"outcome"})

	CommerceRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commerce_request_latency_seconds",
		Help:    "Latency of commerce API round trips",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
