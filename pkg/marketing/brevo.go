package marketing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/loppilove/waitlist-api/pkg/circuitbreaker"
	"github.com/loppilove/waitlist-api/pkg/retry"
	"golang.org/x/time/rate"
)

const (
	DefaultBrevoBaseURL = "https://api.brevo.com"
	contactsPath        = "/v3/contacts"
)

type BrevoConfig struct {
	APIKey  string
	ListID  int64
	BaseURL string
	Brand   string

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxAttempts       int
	RetryBaseDelay    time.Duration

	// Breaker overrides the default breaker (5 failures, 60s recovery).
	Breaker circuitbreaker.CircuitBreaker
}

type contactRequest struct {
	Email         string            `json:"email"`
	Attributes    map[string]string `json:"attributes"`
	ListIDs       []int64           `json:"listIds"`
	UpdateEnabled bool              `json:"updateEnabled"`
}

// BrevoClient upserts contacts through the Brevo v3 contacts API.
type BrevoClient struct {
	http    *resty.Client
	listID  int64
	brand   string
	apiKey  string
	limiter *rate.Limiter
	retry   retry.Policy
	breaker circuitbreaker.CircuitBreaker
}

func NewBrevoClient(cfg BrevoConfig) *BrevoClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBrevoBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 250 * time.Millisecond
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			SuccessThreshold: 1,
			IsFailure:        retry.IsRetryable,
		})
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("accept", "application/json").
		SetHeader("content-type", "application/json")

	return &BrevoClient{
		http:    client,
		listID:  cfg.ListID,
		brand:   cfg.Brand,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		retry: retry.NewExponentialBackoff(&retry.Config{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    5 * time.Second,
			Multiplier:  2,
		}),
		breaker: breaker,
	}
}

func (c *BrevoClient) IsConfigured() bool {
	return c != nil && c.apiKey != "" && c.listID > 0
}

// UpsertContact creates or updates the contact on the configured list.
// A 400 from Brevo means the contact already exists and counts as success.
func (c *BrevoClient) UpsertContact(ctx context.Context, email, source string) SyncResult {
	if !c.IsConfigured() {
		return SyncResult{Success: false, Error: NotConfiguredMessage}
	}

	body := contactRequest{
		Email: email,
		Attributes: map[string]string{
			"BRAND":  c.brand,
			"SOURCE": source,
		},
		ListIDs:       []int64{c.listID},
		UpdateEnabled: true,
	}

	var status int
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Call(func() error {
			code, err := c.post(ctx, body)
			status = code
			return err
		})
	})

	if err != nil {
		return SyncResult{Success: false, StatusCode: status, Error: describe(err)}
	}
	return SyncResult{Success: true, StatusCode: status}
}

func (c *BrevoClient) post(ctx context.Context, body contactRequest) (int, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("api-key", c.apiKey).
		SetBody(body).
		Post(contactsPath)
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		return 0, retry.Retryable(fmt.Errorf("brevo request: %w", err))
	}

	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300, code == http.StatusBadRequest:
		return code, nil
	case code == http.StatusTooManyRequests, code >= 500:
		return code, retry.Retryable(&statusError{code: code, body: resp.String()})
	default:
		return code, &statusError{code: code, body: resp.String()}
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	body := strings.TrimSpace(e.body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("brevo responded %d", e.code)
	}
	return fmt.Sprintf("brevo responded %d: %s", e.code, body)
}

func describe(err error) string {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return "brevo unavailable: " + circuitbreaker.ErrCircuitOpen.Error()
	}
	var maxErr *retry.MaxRetriesExceededError
	if errors.As(err, &maxErr) {
		return fmt.Sprintf("%s after %d attempts", maxErr.LastError.Error(), maxErr.MaxAttempts)
	}
	return err.Error()
}
