package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/loppilove/waitlist-api/internal/log"
	"github.com/loppilove/waitlist-api/pkg/circuitbreaker"
	"github.com/loppilove/waitlist-api/pkg/marketing"
	"github.com/loppilove/waitlist-api/pkg/retry"
)

type MarketingConfig struct {
	APIKey            string        `env:"BREVO_API_KEY"`
	ListID            int64         `env:"BREVO_LIST_ID"`
	BaseURL           string        `env:"BREVO_BASE_URL"            envDefault:"https://api.brevo.com"`
	Timeout           time.Duration `env:"BREVO_TIMEOUT"             envDefault:"5s"`
	RequestsPerSecond float64       `env:"BREVO_REQUESTS_PER_SECOND" envDefault:"5"`
	MaxAttempts       int           `env:"BREVO_MAX_ATTEMPTS"        envDefault:"3"`
}

func LoadMarketingConfig() (*MarketingConfig, error) {
	var cfg MarketingConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse marketing env: %w", err)
	}
	cfg.APIKey = sanitizeEnv(cfg.APIKey)
	return &cfg, nil
}

func (mc *MarketingConfig) IsConfigured() bool {
	return mc != nil && strings.TrimSpace(mc.APIKey) != "" && mc.ListID > 0
}

// NewMarketingClientOrNil returns nil when Brevo is not configured, in which
// case contact sync is skipped.
func NewMarketingClientOrNil(logger *log.Logger, mc *MarketingConfig, brand string) marketing.Client {
	if !mc.IsConfigured() {
		logger.Warn("Marketing sync is not configured (BREVO_API_KEY, BREVO_LIST_ID); contacts will not be synced")
		return nil
	}

	client := marketing.NewBrevoClient(marketing.BrevoConfig{
		APIKey:            mc.APIKey,
		ListID:            mc.ListID,
		BaseURL:           mc.BaseURL,
		Brand:             brand,
		Timeout:           mc.Timeout,
		RequestsPerSecond: mc.RequestsPerSecond,
		MaxAttempts:       mc.MaxAttempts,
		Breaker: circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			SuccessThreshold: 1,
			IsFailure:        retry.IsRetryable,
			OnStateChange: func(from, to circuitbreaker.CircuitState) {
				logger.Warn("Marketing circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		}),
	})

	logger.Info("Marketing sync configured", "provider", "brevo", "list_id", mc.ListID)
	return client
}
