package providers

import (
	"context"
	"errors"
	"net/http"

	"marchenet.tg/app/internal/modules/payments"
)

const MethodCashOnDelivery = "cod"

// CashOnDelivery is the no-op adapter: settlement happens manually at the
// door, there is no provider call, no fee, and no webhook.
type CashOnDelivery struct {
	countries []string
}

func NewCashOnDelivery(countries ...string) *CashOnDelivery {
	if len(countries) == 0 {
		countries = []string{"TG"}
	}
	return &CashOnDelivery{countries: countries}
}

func (c *CashOnDelivery) Method() string      { return MethodCashOnDelivery }
func (c *CashOnDelivery) Countries() []string { return c.countries }

func (c *CashOnDelivery) Fee(int) int { return 0 }

func (c *CashOnDelivery) Initiate(_ context.Context, _ payments.InitiateRequest) (payments.InitiateResult, error) {
	return payments.InitiateResult{
		Status:       payments.StatusPending,
		Instructions: "Pay the courier in cash on delivery.",
	}, nil
}

func (c *CashOnDelivery) Verify(_ context.Context, _ string) (string, error) {
	return payments.StatusPending, nil
}

func (c *CashOnDelivery) VerifyWebhook(http.Header, []byte) (payments.WebhookEvent, error) {
	return payments.WebhookEvent{}, errors.New("cash on delivery has no webhooks")
}
