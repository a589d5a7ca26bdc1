package main

import (
	"log"
	"os"

	"log/slog"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"marchenet.tg/app/internal/config"
	apphttp "marchenet.tg/app/internal/http"
	"marchenet.tg/app/internal/http/handlers"
	"marchenet.tg/app/internal/modules/orders"
	"marchenet.tg/app/internal/modules/payments"
	"marchenet.tg/app/internal/modules/payments/providers"
)

func main() {
	// Load .env file (ignore error if not found - prod uses real env vars)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := gorm.Open(mysql.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	registry := payments.NewRegistry(buildProviders(cfg, logger)...)

	paymentSvc := payments.NewService(db, registry, logger)
	webhookSvc := payments.NewWebhookService(db, logger)
	refundSvc := payments.NewRefundService(db, logger)
	gateway := payments.NewGateway(registry, paymentSvc)

	shipping := orders.ShippingPolicy{
		HomeCountry:        cfg.Shipping.HomeCountry,
		DomesticCents:      cfg.Shipping.DomesticCents,
		InternationalCents: cfg.Shipping.InternationalCents,
		FreeThresholdCents: cfg.Shipping.FreeThresholdCents,
	}
	orderSvc := orders.NewService(db, logger, gateway, shipping, cfg.Currency)
	orderRepo := orders.NewRepo(db)

	r := apphttp.NewRouter(apphttp.Deps{
		Logger:    logger,
		Orders:    handlers.NewOrderHandler(logger, orderSvc, orderRepo),
		Payments:  handlers.NewPaymentHandler(logger, paymentSvc, refundSvc, registry, orderRepo),
		Webhooks:  handlers.NewWebhookHandler(logger, registry, webhookSvc),
		Inventory: handlers.NewInventoryHandler(logger, db),
	})

	logger.Info("listening", "addr", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// buildProviders registers cash on delivery unconditionally and each mobile
// money operator only when its credentials are present.
func buildProviders(cfg config.Config, logger *slog.Logger) []payments.Provider {
	out := []payments.Provider{providers.NewCashOnDelivery()}

	if cfg.TMoney.Configured() {
		out = append(out, providers.NewTMoney(providerConfig(cfg.TMoney)))
	} else {
		logger.Warn("tmoney not configured, adapter disabled")
	}
	if cfg.Flooz.Configured() {
		out = append(out, providers.NewFlooz(providerConfig(cfg.Flooz)))
	} else {
		logger.Warn("flooz not configured, adapter disabled")
	}
	return out
}

func providerConfig(p config.ProviderConfig) providers.Config {
	return providers.Config{
		BaseURL:       p.BaseURL,
		APIKey:        p.APIKey,
		WebhookSecret: p.WebhookSecret,
		Timeout:       p.Timeout,
		FeeBps:        p.FeeBps,
		FeeMinCents:   p.FeeMinCents,
		FeeMaxCents:   p.FeeMaxCents,
	}
}
