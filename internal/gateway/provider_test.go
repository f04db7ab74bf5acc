package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBuildsWidgetParams(t *testing.T) {
	p := NewProvider("key_test", "Storefront", "INR")

	s, err := p.Open("gw_order_1", 30000, "Order ORD-42", Prefill{
		Email:   "buyer@example.com",
		Contact: "5550001111",
	})
	require.NoError(t, err)

	assert.Equal(t, "gw_order_1", s.GatewayOrderID)
	assert.Equal(t, "key_test", s.Params.Key)
	assert.Equal(t, int64(30000), s.Params.Amount)
	assert.Equal(t, "INR", s.Params.Currency)
	assert.Equal(t, "Storefront", s.Params.Name)
	assert.Equal(t, "buyer@example.com", s.Params.Prefill.Email)
}

func TestOpenRequiresGatewayOrderID(t *testing.T) {
	p := NewProvider("key_test", "Storefront", "INR")

	_, err := p.Open("", 100, "", Prefill{})
	assert.Error(t, err)
}

func TestLoadFailureIsRemembered(t *testing.T) {
	p := NewProvider("", "Storefront", "INR")

	_, err := p.Open("gw_order_1", 100, "", Prefill{})
	require.Error(t, err)

	// The failed load is not retried; every later open sees the same
	// error.
	_, err2 := p.Open("gw_order_2", 200, "", Prefill{})
	assert.Equal(t, err.Error(), err2.Error())
}
