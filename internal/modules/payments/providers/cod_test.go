package providers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marchenet.tg/app/internal/modules/payments"
)

func TestCashOnDelivery(t *testing.T) {
	cod := NewCashOnDelivery()

	assert.Equal(t, "cod", cod.Method())
	assert.Equal(t, []string{"TG"}, cod.Countries())
	assert.Equal(t, 0, cod.Fee(100000))

	res, err := cod.Initiate(context.Background(), payments.InitiateRequest{AmountCents: 5000})
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPending, res.Status)
	assert.Empty(t, res.ProviderRef)
	assert.NotEmpty(t, res.Instructions)

	status, err := cod.Verify(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPending, status)

	_, err = cod.VerifyWebhook(http.Header{}, nil)
	assert.Error(t, err)
}

func TestCashOnDeliveryCustomCountries(t *testing.T) {
	cod := NewCashOnDelivery("TG", "BJ")
	assert.Equal(t, []string{"TG", "BJ"}, cod.Countries())
}
