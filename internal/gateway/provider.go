package gateway

import (
	"fmt"
	"sync"

	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// Prefill pre-populates the payment widget's contact fields.
type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// OpenParams are the parameters the third-party widget is invoked
// with for one checkout attempt.
type OpenParams struct {
	Key            string  `json:"key"`
	Amount         int64   `json:"amount"`
	Currency       string  `json:"currency"`
	GatewayOrderID string  `json:"gateway_order_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Prefill        Prefill `json:"prefill"`
}

// Session is one opened gateway widget. Exactly one of the success or
// dismiss callbacks is honored for it; the orchestrator's phase guard
// and the gateway order id match reject a late duplicate.
type Session struct {
	GatewayOrderID string
	Params         OpenParams
}

// Provider hands out gateway sessions. The underlying widget library
// is loaded on demand, at most once per process lifetime; every later
// Open reuses it.
type Provider struct {
	keyID    string
	merchant string
	currency string
	logger   *zap.Logger

	loadOnce sync.Once
	loadErr  error
}

// NewProvider creates a gateway provider. Nothing is loaded until the
// first Open.
func NewProvider(keyID, merchant, currency string) *Provider {
	return &Provider{
		keyID:    keyID,
		merchant: merchant,
		currency: currency,
		logger:   util.GetLogger(),
	}
}

// Open loads the widget library if this is the first session, then
// builds the parameters the UI hands to the widget.
func (p *Provider) Open(gatewayOrderID string, amount int64, description string, prefill Prefill) (*Session, error) {
	p.loadOnce.Do(p.load)
	if p.loadErr != nil {
		return nil, p.loadErr
	}

	if gatewayOrderID == "" {
		return nil, fmt.Errorf("gateway order id is required")
	}

	util.GatewaySessionsOpened.Inc()
	p.logger.Info("Opening gateway session",
		zap.String("gateway_order_id", gatewayOrderID),
		zap.Int64("amount", amount))

	return &Session{
		GatewayOrderID: gatewayOrderID,
		Params: OpenParams{
			Key:            p.keyID,
			Amount:         amount,
			Currency:       p.currency,
			GatewayOrderID: gatewayOrderID,
			Name:           p.merchant,
			Description:    description,
			Prefill:        prefill,
		},
	}, nil
}

// load initializes the widget library. It runs once; a failure is
// remembered and returned by every subsequent Open.
func (p *Provider) load() {
	if p.keyID == "" {
		p.loadErr = fmt.Errorf("gateway key id is not configured")
		return
	}
	p.logger.Info("Payment gateway library loaded", zap.String("merchant", p.merchant))
}
