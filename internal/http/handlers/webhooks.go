package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"marchenet.tg/app/internal/modules/payments"
)

// webhookBodyLimit bounds provider callbacks; mobile-money payloads are tiny.
const webhookBodyLimit = 1 << 20

type WebhookHandler struct {
	Logger   *slog.Logger
	Registry *payments.Registry
	Service  *payments.WebhookService
}

func NewWebhookHandler(logger *slog.Logger, reg *payments.Registry, svc *payments.WebhookService) *WebhookHandler {
	return &WebhookHandler{Logger: logger, Registry: reg, Service: svc}
}

// Handle is POST /payments/webhook/:provider. Signature failures get 400
// before any state is touched; events whose reference resolves to nothing
// are acknowledged with 200 so the provider stops retrying; everything else
// that goes wrong returns 500 so the provider retries later.
func (h *WebhookHandler) Handle(c *gin.Context) {
	method := c.Param("provider")
	provider, ok := h.Registry.Get(method)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ev, err := provider.VerifyWebhook(c.Request.Header, body)
	if err != nil {
		h.Logger.LogAttrs(c.Request.Context(), slog.LevelWarn, "webhook_rejected",
			slog.String("provider", method),
			slog.Any("err", err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	if err := h.Service.Apply(c.Request.Context(), method, ev, body); err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": true})
			return
		}
		h.Logger.LogAttrs(c.Request.Context(), slog.LevelError, "webhook_apply_failed",
			slog.String("provider", method),
			slog.String("event_id", ev.EventID),
			slog.Any("err", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
