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

const MethodFlooz = "flooz"

// Flooz integrates the Moov Africa Flooz merchant API. Outbound requests are
// authenticated with an api key plus an HMAC of the body; webhooks carry the
// same body HMAC in X-Flooz-Signature.
type Flooz struct {
	cfg    Config
	client *http.Client
}

func NewFlooz(cfg Config) *Flooz {
	return &Flooz{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (f *Flooz) Method() string      { return MethodFlooz }
func (f *Flooz) Countries() []string { return []string{"TG", "BJ"} }

func (f *Flooz) Fee(amountCents int) int {
	return clampedFee(amountCents, f.cfg.FeeBps, f.cfg.FeeMinCents, f.cfg.FeeMaxCents)
}

type floozPaymentRequest struct {
	MerchantRef string `json:"merchant_ref"`
	Amount      int    `json:"amount"`
	Currency    string `json:"currency"`
	Subscriber  string `json:"subscriber"`
}

type floozPaymentResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	USSDCode      string `json:"ussd_code"`
	Message       string `json:"message"`
}

func (f *Flooz) Initiate(ctx context.Context, req payments.InitiateRequest) (payments.InitiateResult, error) {
	body, err := json.Marshal(floozPaymentRequest{
		MerchantRef: req.Reference,
		Amount:      req.AmountCents,
		Currency:    req.Currency,
		Subscriber:  req.Phone,
	})
	if err != nil {
		return payments.InitiateResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.BaseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return payments.InitiateResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", f.cfg.APIKey)
	httpReq.Header.Set("X-Flooz-Signature", computeBodySig([]byte(f.cfg.WebhookSecret), body))

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return payments.InitiateResult{}, fmt.Errorf("flooz payment: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return payments.InitiateResult{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return payments.InitiateResult{Raw: raw}, fmt.Errorf("flooz payment: http %d", resp.StatusCode)
	}

	var pr floozPaymentResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return payments.InitiateResult{Raw: raw}, fmt.Errorf("flooz payment: bad response: %w", err)
	}
	if pr.TransactionID == "" {
		return payments.InitiateResult{Raw: raw}, fmt.Errorf("flooz payment: missing transaction_id")
	}

	instructions := "Dial the USSD prompt to approve the payment."
	if pr.USSDCode != "" {
		instructions = "Dial " + pr.USSDCode + " to approve the payment."
	}

	return payments.InitiateResult{
		ProviderRef:  pr.TransactionID,
		Status:       mapFloozStatus(pr.Status),
		Instructions: instructions,
		Raw:          raw,
	}, nil
}

func (f *Flooz) Verify(ctx context.Context, providerRef string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.BaseURL+"/v1/payments/"+providerRef, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("X-API-Key", f.cfg.APIKey)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("flooz verify: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("flooz verify: http %d", resp.StatusCode)
	}

	var pr floozPaymentResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return "", fmt.Errorf("flooz verify: bad response: %w", err)
	}
	return mapFloozStatus(pr.Status), nil
}

const floozSignatureHeader = "X-Flooz-Signature"

type floozWebhookPayload struct {
	ID            string `json:"id"`
	Status        string `json:"status"` // SUCCESSFUL | FAILED
	TransactionID string `json:"transaction_id"`
	Amount        int    `json:"amount"`
	Currency      string `json:"currency"`
	Message       string `json:"message"`
}

func (f *Flooz) VerifyWebhook(header http.Header, body []byte) (payments.WebhookEvent, error) {
	sig := header.Get(floozSignatureHeader)
	if err := verifyBodySig([]byte(f.cfg.WebhookSecret), sig, body); err != nil {
		return payments.WebhookEvent{}, err
	}

	var p floozWebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("flooz webhook: bad payload: %w", err)
	}
	if p.ID == "" || p.TransactionID == "" {
		return payments.WebhookEvent{}, fmt.Errorf("flooz webhook: missing id or transaction_id")
	}

	ev := payments.WebhookEvent{
		EventID:     p.ID,
		ProviderRef: p.TransactionID,
		AmountCents: p.Amount,
		Currency:    p.Currency,
		Reason:      p.Message,
	}
	switch p.Status {
	case "SUCCESSFUL":
		ev.Type = payments.EventPaymentSucceeded
	case "FAILED", "CANCELLED":
		ev.Type = payments.EventPaymentFailed
	default:
		return payments.WebhookEvent{}, fmt.Errorf("flooz webhook: unknown status %q", p.Status)
	}
	return ev, nil
}

func mapFloozStatus(s string) string {
	switch s {
	case "SUCCESSFUL":
		return payments.StatusCompleted
	case "FAILED", "CANCELLED":
		return payments.StatusFailed
	default:
		return payments.StatusProcessing
	}
}
