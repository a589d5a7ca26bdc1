package payments

import (
	"context"
	"net/http"
	"sort"
)

type InitiateRequest struct {
	OrderID     string
	Reference   string // internal transaction reference, unique per attempt
	AmountCents int
	Currency    string
	Phone       string
}

type InitiateResult struct {
	ProviderRef  string
	Status       string // pending|processing|completed|failed
	RedirectURL  string
	Instructions string
	Raw          []byte // provider response verbatim, audit only
}

type WebhookEvent struct {
	EventID     string
	Type        string // payment.succeeded | payment.failed
	ProviderRef string
	AmountCents int
	Currency    string
	Reason      string
}

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// Provider is the integration boundary for one payment operator. Adapters
// own their credentials, request signing, fee schedule, and webhook
// signature scheme.
type Provider interface {
	Method() string
	Countries() []string

	// Fee computes the provider fee for an amount (percentage clamped to the
	// operator's min/max).
	Fee(amountCents int) int

	Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error)

	// Verify queries the provider for the current status of a transaction
	// (operator-triggered reconciliation).
	Verify(ctx context.Context, providerRef string) (string, error)

	// VerifyWebhook checks the inbound signature and normalizes the payload.
	// Must reject with an error before reading any business field.
	VerifyWebhook(header http.Header, body []byte) (WebhookEvent, error)
}

// Registry resolves payment methods to configured adapters.
type Registry struct {
	byMethod map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Method()] = p
	}
	return &Registry{byMethod: m}
}

func (r *Registry) Get(method string) (Provider, bool) {
	p, ok := r.byMethod[method]
	return p, ok
}

type MethodInfo struct {
	Method    string   `json:"method"`
	Countries []string `json:"countries"`
}

// MethodsForCountry filters the capability table down to adapters that are
// configured and serve the given country.
func (r *Registry) MethodsForCountry(country string) []MethodInfo {
	var out []MethodInfo
	for _, p := range r.byMethod {
		for _, cc := range p.Countries() {
			if cc == country {
				out = append(out, MethodInfo{Method: p.Method(), Countries: p.Countries()})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}
