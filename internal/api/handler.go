package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/cart"
	"storefront-service/internal/checkout"
	"storefront-service/internal/commerce"
	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	storefront *service.StorefrontService
}

// NewHandler creates a new HTTP handler
func NewHandler(storefront *service.StorefrontService) *Handler {
	return &Handler{
		storefront: storefront,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addItem)
		v1.PUT("/cart/items/:id", h.setQuantity)
		v1.DELETE("/cart/items/:id", h.removeItem)
		v1.DELETE("/cart", h.clearCart)
		v1.POST("/cart/coupons", h.applyCoupon)
		v1.DELETE("/cart/coupons", h.removeCoupon)

		v1.POST("/checkout", h.placeOrder)
		v1.GET("/checkout/status", h.checkoutStatus)
		v1.POST("/checkout/reset", h.resetCheckout)
		v1.POST("/checkout/payment/complete", h.paymentComplete)
		v1.POST("/checkout/payment/dismiss", h.paymentDismiss)

		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/track", h.trackOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// userID reads the authenticated user id set by the upstream gateway
func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid user identity"})
		return 0, false
	}
	return id, true
}

// respondError maps domain errors to HTTP responses. Commerce API
// rejections keep their status and verbatim message.
func respondError(c *gin.Context, err error) {
	var apiErr *commerce.APIError
	switch {
	case errors.As(err, &apiErr):
		c.JSON(apiErr.StatusCode, gin.H{"error": apiErr.Message})
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrNoAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, checkout.ErrCheckoutInProgress),
		errors.Is(err, checkout.ErrNoActiveSession),
		errors.Is(err, checkout.ErrStaleCallback):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream request failed", "details": err.Error()})
	}
}

func (h *Handler) getCart(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	view, err := h.storefront.GetCart(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type addItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

func (h *Handler) addItem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	view, err := h.storefront.AddItem(c.Request.Context(), uid, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func (h *Handler) setQuantity(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart item ID"})
		return
	}

	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	view, err := h.storefront.SetQuantity(c.Request.Context(), uid, itemID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeItem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart item ID"})
		return
	}

	view, err := h.storefront.RemoveItem(c.Request.Context(), uid, itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) clearCart(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	view, err := h.storefront.ClearCart(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type applyCouponRequest struct {
	CouponID int64 `json:"coupon_id" binding:"required"`
}

func (h *Handler) applyCoupon(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	view, err := h.storefront.ApplyCoupon(c.Request.Context(), uid, req.CouponID)
	if err != nil {
		// The coupon may have stopped qualifying since it was listed;
		// the server's rejection is surfaced, not swallowed.
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeCoupon(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	view, err := h.storefront.RemoveCoupon(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type placeOrderRequest struct {
	AddressID int64 `json:"address_id" binding:"required"`
}

func (h *Handler) placeOrder(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.storefront.PlaceOrder(c.Request.Context(), uid, req.AddressID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) checkoutStatus(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	status, found := h.storefront.CheckoutStatus(uid)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "No checkout session"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) resetCheckout(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	if err := h.storefront.ResetCheckout(uid); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type paymentCompleteRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

func (h *Handler) paymentComplete(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req paymentCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	status, err := h.storefront.CompletePayment(c.Request.Context(), uid,
		req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type paymentDismissRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id"`
}

func (h *Handler) paymentDismiss(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req paymentDismissRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	status, err := h.storefront.DismissPayment(c.Request.Context(), uid,
		req.GatewayOrderID, req.GatewayPaymentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) getOrder(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := h.storefront.GetOrder(c.Request.Context(), uid, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) trackOrder(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	shipment, err := h.storefront.TrackOrder(c.Request.Context(), uid, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shipment)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
