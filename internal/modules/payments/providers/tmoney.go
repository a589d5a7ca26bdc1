package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"marchenet.tg/app/internal/modules/payments"
)

const MethodTMoney = "tmoney"

// TMoney integrates the Togocom T-Money push-payment API. Requests carry a
// bearer token; webhooks are signed with "t=<unix>,v1=<hmac>" over
// "<t>.<body>".
type TMoney struct {
	cfg    Config
	client *http.Client
}

func NewTMoney(cfg Config) *TMoney {
	return &TMoney{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (t *TMoney) Method() string      { return MethodTMoney }
func (t *TMoney) Countries() []string { return []string{"TG"} }

func (t *TMoney) Fee(amountCents int) int {
	return clampedFee(amountCents, t.cfg.FeeBps, t.cfg.FeeMinCents, t.cfg.FeeMaxCents)
}

type tmoneyPushRequest struct {
	Reference   string `json:"reference"`
	Amount      int    `json:"amount"`
	Currency    string `json:"currency"`
	Msisdn      string `json:"msisdn"`
	Description string `json:"description"`
}

type tmoneyPushResponse struct {
	TxnID      string `json:"txn_id"`
	Status     string `json:"status"`
	PaymentURL string `json:"payment_url"`
	Message    string `json:"message"`
}

func (t *TMoney) Initiate(ctx context.Context, req payments.InitiateRequest) (payments.InitiateResult, error) {
	body, err := json.Marshal(tmoneyPushRequest{
		Reference:   req.Reference,
		Amount:      req.AmountCents,
		Currency:    req.Currency,
		Msisdn:      req.Phone,
		Description: "Order " + req.OrderID,
	})
	if err != nil {
		return payments.InitiateResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/api/v1/push", bytes.NewReader(body))
	if err != nil {
		return payments.InitiateResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return payments.InitiateResult{}, fmt.Errorf("tmoney push: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return payments.InitiateResult{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return payments.InitiateResult{Raw: raw}, fmt.Errorf("tmoney push: http %d", resp.StatusCode)
	}

	var pr tmoneyPushResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return payments.InitiateResult{Raw: raw}, fmt.Errorf("tmoney push: bad response: %w", err)
	}
	if pr.TxnID == "" {
		return payments.InitiateResult{Raw: raw}, fmt.Errorf("tmoney push: missing txn_id")
	}

	return payments.InitiateResult{
		ProviderRef:  pr.TxnID,
		Status:       mapTMoneyStatus(pr.Status),
		RedirectURL:  pr.PaymentURL,
		Instructions: "Confirm the T-Money prompt on your phone.",
		Raw:          raw,
	}, nil
}

func (t *TMoney) Verify(ctx context.Context, providerRef string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.BaseURL+"/api/v1/transactions/"+providerRef, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("tmoney verify: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tmoney verify: http %d", resp.StatusCode)
	}

	var pr tmoneyPushResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return "", fmt.Errorf("tmoney verify: bad response: %w", err)
	}
	return mapTMoneyStatus(pr.Status), nil
}

const tmoneySignatureHeader = "X-TMoney-Signature"

type tmoneyWebhookPayload struct {
	ID       string `json:"id"`
	Event    string `json:"event"` // SUCCESS | FAILED
	TxnID    string `json:"txn_id"`
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
	Reason   string `json:"reason"`
}

func (t *TMoney) VerifyWebhook(header http.Header, body []byte) (payments.WebhookEvent, error) {
	sig := header.Get(tmoneySignatureHeader)
	if err := verifyTimestampedSig([]byte(t.cfg.WebhookSecret), sig, body); err != nil {
		return payments.WebhookEvent{}, err
	}

	var p tmoneyWebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("tmoney webhook: bad payload: %w", err)
	}
	if p.ID == "" || p.TxnID == "" {
		return payments.WebhookEvent{}, fmt.Errorf("tmoney webhook: missing id or txn_id")
	}

	ev := payments.WebhookEvent{
		EventID:     p.ID,
		ProviderRef: p.TxnID,
		AmountCents: p.Amount,
		Currency:    p.Currency,
		Reason:      p.Reason,
	}
	switch p.Event {
	case "SUCCESS":
		ev.Type = payments.EventPaymentSucceeded
	case "FAILED":
		ev.Type = payments.EventPaymentFailed
	default:
		return payments.WebhookEvent{}, fmt.Errorf("tmoney webhook: unknown event %q", p.Event)
	}
	return ev, nil
}

func mapTMoneyStatus(s string) string {
	switch s {
	case "SUCCESS":
		return payments.StatusCompleted
	case "FAILED", "EXPIRED":
		return payments.StatusFailed
	default:
		return payments.StatusProcessing
	}
}
