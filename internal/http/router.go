package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"marchenet.tg/app/internal/http/handlers"
	"marchenet.tg/app/internal/http/middleware"
)

type Deps struct {
	Logger    *slog.Logger
	Orders    *handlers.OrderHandler
	Payments  *handlers.PaymentHandler
	Webhooks  *handlers.WebhookHandler
	Inventory *handlers.InventoryHandler
}

func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.ErrorHandler(d.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider callbacks live outside /api; auth is the signature itself.
	r.POST("/payments/webhook/:provider", d.Webhooks.Handle)

	api := r.Group("/api")
	{
		api.POST("/orders", d.Orders.Create)
		api.GET("/orders", d.Orders.List)
		api.GET("/orders/:id", d.Orders.Get)
		api.GET("/orders/:id/events", d.Orders.Events)
		api.GET("/orders/:id/payments", d.Payments.ListByOrder)
		api.POST("/orders/:id/cancel", d.Orders.Cancel)
		api.PUT("/orders/:id/status", d.Orders.UpdateStatus)

		api.GET("/payments/methods", d.Payments.Methods)
		api.POST("/payments/initiate", d.Payments.Initiate)
		api.GET("/payments/:id", d.Payments.Get)
		api.POST("/payments/:id/refund", d.Payments.Refund)
		api.POST("/payments/:id/verify", d.Payments.Verify)

		api.GET("/inventory/:product_id", d.Inventory.Get)
		api.POST("/inventory/:product_id/adjust", d.Inventory.Adjust)
	}

	return r
}
