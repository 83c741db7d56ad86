package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/loppilove/waitlist-api/internal/models"
	"github.com/loppilove/waitlist-api/pkg/constants"
)

const (
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
)

type WaitlistConfig struct {
	RateLimitRequests int           `env:"WAITLIST_RATE_LIMIT_REQUESTS" envDefault:"10"`
	RateLimitWindow   time.Duration `env:"WAITLIST_RATE_LIMIT_WINDOW"   envDefault:"1m"`
	Brand             string        `env:"WAITLIST_BRAND"               envDefault:"loppi-love"`

	Store            string `env:"WAITLIST_STORE"            envDefault:"postgres"`
	DynamoDBTable    string `env:"WAITLIST_DYNAMODB_TABLE"   envDefault:"waitlist_users"`
	DynamoDBEndpoint string `env:"WAITLIST_DYNAMODB_ENDPOINT"`
	AWSRegion        string `env:"AWS_REGION"`

	SyncWorkers       int           `env:"WAITLIST_SYNC_WORKERS"        envDefault:"2"`
	SyncQueueSize     int           `env:"WAITLIST_SYNC_QUEUE_SIZE"     envDefault:"256"`
	SyncTimeout       time.Duration `env:"WAITLIST_SYNC_TIMEOUT"        envDefault:"10s"`
	DuplicateCacheTTL time.Duration `env:"WAITLIST_DUPLICATE_CACHE_TTL" envDefault:"24h"`
}

func LoadWaitlistConfig() (*WaitlistConfig, error) {
	var cfg WaitlistConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse waitlist env: %w", err)
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	switch cfg.Store {
	case "":
		cfg.Store = StorePostgres
	case StorePostgres, StoreDynamoDB:
	default:
		return nil, fmt.Errorf("unsupported WAITLIST_STORE %q (allowed: %s, %s)", cfg.Store, StorePostgres, StoreDynamoDB)
	}

	if cfg.RateLimitRequests < 1 {
		cfg.RateLimitRequests = constants.DefaultWaitlistRateLimitRequests
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = constants.DefaultRateLimitWindow()
	}
	if strings.TrimSpace(cfg.Brand) == "" {
		cfg.Brand = constants.DefaultBrand
	}
	if strings.TrimSpace(cfg.DynamoDBTable) == "" {
		cfg.DynamoDBTable = models.WaitlistTableName
	}

	return &cfg, nil
}

func (c *WaitlistConfig) UsesDynamoDB() bool {
	return c.Store == StoreDynamoDB
}
