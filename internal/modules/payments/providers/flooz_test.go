package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marchenet.tg/app/internal/modules/payments"
)

func testFlooz() *Flooz {
	return NewFlooz(Config{
		BaseURL:       "https://flooz.test",
		APIKey:        "fl_key",
		WebhookSecret: "fl_secret",
		Timeout:       5 * time.Second,
		FeeBps:        180,
		FeeMinCents:   100,
		FeeMaxCents:   200000,
	})
}

func signedFloozHeader(secret string, body []byte) http.Header {
	h := http.Header{}
	h.Set("X-Flooz-Signature", computeBodySig([]byte(secret), body))
	return h
}

func TestFloozVerifyWebhook(t *testing.T) {
	fl := testFlooz()

	t.Run("successful event", func(t *testing.T) {
		body := []byte(`{"id":"evt_1","status":"SUCCESSFUL","transaction_id":"ftx_7","amount":8000,"currency":"XOF"}`)
		ev, err := fl.VerifyWebhook(signedFloozHeader("fl_secret", body), body)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.EventID)
		assert.Equal(t, payments.EventPaymentSucceeded, ev.Type)
		assert.Equal(t, "ftx_7", ev.ProviderRef)
		assert.Equal(t, 8000, ev.AmountCents)
	})

	t.Run("cancelled maps to failed", func(t *testing.T) {
		body := []byte(`{"id":"evt_2","status":"CANCELLED","transaction_id":"ftx_7","message":"user cancelled"}`)
		ev, err := fl.VerifyWebhook(signedFloozHeader("fl_secret", body), body)
		require.NoError(t, err)
		assert.Equal(t, payments.EventPaymentFailed, ev.Type)
		assert.Equal(t, "user cancelled", ev.Reason)
	})

	t.Run("bad signature rejected", func(t *testing.T) {
		body := []byte(`{"id":"evt_3","status":"SUCCESSFUL","transaction_id":"ftx_7"}`)
		_, err := fl.VerifyWebhook(signedFloozHeader("wrong", body), body)
		assert.ErrorIs(t, err, ErrBadSignature)

		_, err = fl.VerifyWebhook(http.Header{}, body)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		body := []byte(`{"id":"evt_4","status":"MYSTERY","transaction_id":"ftx_7"}`)
		_, err := fl.VerifyWebhook(signedFloozHeader("fl_secret", body), body)
		assert.Error(t, err)
	})
}

func TestFloozInitiate(t *testing.T) {
	t.Run("signs the request body", func(t *testing.T) {
		var gotKey, gotSig string
		var gotBody []byte
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("X-API-Key")
			gotSig = r.Header.Get("X-Flooz-Signature")
			gotBody, _ = io.ReadAll(r.Body)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"transaction_id": "ftx_9",
				"status":         "PENDING",
				"ussd_code":      "*155*1#",
			})
		}))
		defer srv.Close()

		fl := testFlooz()
		fl.cfg.BaseURL = srv.URL

		res, err := fl.Initiate(context.Background(), payments.InitiateRequest{
			Reference:   "PAY-xyz",
			AmountCents: 8000,
			Currency:    "XOF",
			Phone:       "+22990000000",
		})
		require.NoError(t, err)
		assert.Equal(t, "fl_key", gotKey)
		assert.Equal(t, computeBodySig([]byte("fl_secret"), gotBody), gotSig)
		assert.Equal(t, "ftx_9", res.ProviderRef)
		assert.Equal(t, payments.StatusProcessing, res.Status)
		assert.Contains(t, res.Instructions, "*155*1#")
	})

	t.Run("missing transaction_id is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "PENDING"})
		}))
		defer srv.Close()

		fl := testFlooz()
		fl.cfg.BaseURL = srv.URL

		_, err := fl.Initiate(context.Background(), payments.InitiateRequest{Reference: "PAY-xyz"})
		assert.Error(t, err)
	})
}

func TestFloozCountries(t *testing.T) {
	assert.Equal(t, []string{"TG", "BJ"}, testFlooz().Countries())
}

func TestMapFloozStatus(t *testing.T) {
	assert.Equal(t, payments.StatusCompleted, mapFloozStatus("SUCCESSFUL"))
	assert.Equal(t, payments.StatusFailed, mapFloozStatus("FAILED"))
	assert.Equal(t, payments.StatusFailed, mapFloozStatus("CANCELLED"))
	assert.Equal(t, payments.StatusProcessing, mapFloozStatus("PENDING"))
}
