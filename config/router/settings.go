package router

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

const defaultMaxBodyBytes = 64 << 10

// HTTPSettings are the environment-driven knobs of the HTTP layer. They are
// read once, when the router is created.
type HTTPSettings struct {
	Port           string   `env:"APP_PORT"               envDefault:"8080"`
	GinMode        string   `env:"GIN_MODE"`
	AppEnv         string   `env:"APP_ENV"`
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGIN"`
	MaxBodyBytes   int64    `env:"MAX_REQUEST_BODY_BYTES" envDefault:"65536"`
	MetricsEnabled bool     `env:"METRICS_ENABLED"        envDefault:"true"`

	// HSTSEnabled overrides the production-only default when set.
	HSTSEnabled           *bool `env:"HSTS_ENABLED"`
	HSTSMaxAge            int64 `env:"HSTS_MAX_AGE"            envDefault:"31536000"`
	HSTSIncludeSubdomains bool  `env:"HSTS_INCLUDE_SUBDOMAINS" envDefault:"true"`
}

func DefaultHTTPSettings() HTTPSettings {
	return HTTPSettings{
		Port:                  "8080",
		MaxBodyBytes:          defaultMaxBodyBytes,
		MetricsEnabled:        true,
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
	}
}

func LoadHTTPSettings() (HTTPSettings, error) {
	var s HTTPSettings
	if err := env.Parse(&s); err != nil {
		return DefaultHTTPSettings(), fmt.Errorf("failed to parse HTTP settings: %w", err)
	}

	s.AppEnv = strings.ToLower(strings.TrimSpace(s.AppEnv))
	s.TrustedProxies = cleanList(s.TrustedProxies)
	s.AllowedOrigins = cleanList(s.AllowedOrigins)
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = defaultMaxBodyBytes
	}
	if s.HSTSMaxAge <= 0 {
		s.HSTSMaxAge = 31536000
	}
	return s, nil
}

func (s HTTPSettings) addr() string {
	return ":" + s.Port
}

// trustedProxyCIDRs returns nil when no proxy is trusted, in which case
// ClientIP() is the socket peer. "*" trusts every hop.
func (s HTTPSettings) trustedProxyCIDRs() []string {
	for _, p := range s.TrustedProxies {
		if p == "*" {
			return []string{"0.0.0.0/0", "::/0"}
		}
	}
	return s.TrustedProxies
}

func (s HTTPSettings) originAllowed(origin string) bool {
	for _, allowed := range s.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s HTTPSettings) hstsEnabled() bool {
	if s.HSTSEnabled != nil {
		return *s.HSTSEnabled
	}
	return s.AppEnv == "production" || s.AppEnv == "prod"
}

func (s HTTPSettings) hstsValue() string {
	value := fmt.Sprintf("max-age=%d", s.HSTSMaxAge)
	if s.HSTSIncludeSubdomains {
		value += "; includeSubDomains"
	}
	return value
}

func cleanList(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
