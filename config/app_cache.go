package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/loppilove/waitlist-api/internal/log"
	pkgredis "github.com/loppilove/waitlist-api/pkg/redis"
)

// Cache backs the duplicate-email cache and, through GetClient, the Redis
// rate limiters.
type Cache interface {
	// Get returns ("", nil) when a key is not found.
	Get(ctx context.Context, key string) (string, error)
	// Set uses ttl=0 for no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

var ErrCacheNotConfigured = errors.New("cache host is not configured")

type CacheConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// NewCacheConfig never fails: an unreadable REDIS_DB selects db 0 and the
// rest of the group is still read.
func NewCacheConfig() *CacheConfig {
	cc := &CacheConfig{}
	if err := env.Parse(cc); err != nil {
		cc = &CacheConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     os.Getenv("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
		}
	}

	cc.Host = sanitizeEnv(strings.TrimSpace(cc.Host))
	cc.Password = sanitizeEnv(cc.Password)
	if cc.Port = strings.TrimSpace(cc.Port); cc.Port == "" {
		cc.Port = "6379"
	}
	if cc.DB < 0 {
		cc.DB = 0
	}
	return cc
}

func (cc *CacheConfig) IsConfigured() bool {
	return cc.Host != ""
}

func (cc *CacheConfig) NewCache(logger *log.Logger) (Cache, error) {
	if !cc.IsConfigured() {
		return nil, ErrCacheNotConfigured
	}

	cache, err := pkgredis.NewRedisCache(&pkgredis.Config{
		Host:     cc.Host,
		Port:     cc.Port,
		Password: cc.Password,
		DB:       cc.DB,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Redis cache connected", "addr", cc.Host+":"+cc.Port, "db", cc.DB)
	return cache, nil
}

// NewCacheOrNil degrades to no cache: rate limiting falls back to memory and
// duplicate checks go straight to the store.
func (cc *CacheConfig) NewCacheOrNil(logger *log.Logger) Cache {
	if !cc.IsConfigured() {
		logger.Info("REDIS_HOST not set; running without Redis")
		return nil
	}

	cache, err := cc.NewCache(logger)
	if err != nil {
		logger.Error("Redis unavailable; running without it", "error", err)
		return nil
	}

	return cache
}

func CloseCache(cache Cache, logger *log.Logger) error {
	if cache == nil {
		return nil
	}

	if err := cache.Close(); err != nil {
		logger.Error("Failed to close cache", "error", err)
		return err
	}

	logger.Info("Cache connection closed")
	return nil
}
