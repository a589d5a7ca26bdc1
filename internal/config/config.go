package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ProviderConfig carries one payment operator's credentials and fee
// schedule. An adapter is only registered when its credentials are set.
type ProviderConfig struct {
	BaseURL       string        `envconfig:"BASE_URL"`
	APIKey        string        `envconfig:"API_KEY"`
	WebhookSecret string        `envconfig:"WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"10s"`

	// Fee: percentage in basis points, clamped to [FeeMinCents, FeeMaxCents].
	FeeBps      int `envconfig:"FEE_BPS"`
	FeeMinCents int `envconfig:"FEE_MIN_CENTS"`
	FeeMaxCents int `envconfig:"FEE_MAX_CENTS"`
}

func (p ProviderConfig) Configured() bool {
	return p.BaseURL != "" && p.APIKey != "" && p.WebhookSecret != ""
}

type ShippingConfig struct {
	HomeCountry        string `envconfig:"HOME_COUNTRY" default:"TG"`
	DomesticCents      int    `envconfig:"DOMESTIC_CENTS" default:"1500"`
	InternationalCents int    `envconfig:"INTERNATIONAL_CENTS" default:"6000"`
	FreeThresholdCents int    `envconfig:"FREE_THRESHOLD_CENTS" default:"50000"`
}

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	DBDSN    string `envconfig:"DB_DSN" required:"true"`
	Currency string `envconfig:"CURRENCY" default:"XOF"`

	Shipping ShippingConfig `envconfig:"SHIPPING"`

	TMoney ProviderConfig `envconfig:"TMONEY"`
	Flooz  ProviderConfig `envconfig:"FLOOZ"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("APP", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.TMoney.FeeBps == 0 {
		cfg.TMoney.FeeBps = 150
		cfg.TMoney.FeeMinCents = 100
		cfg.TMoney.FeeMaxCents = 150000
	}
	if cfg.Flooz.FeeBps == 0 {
		cfg.Flooz.FeeBps = 180
		cfg.Flooz.FeeMinCents = 100
		cfg.Flooz.FeeMaxCents = 200000
	}
	return cfg, nil
}
