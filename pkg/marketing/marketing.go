// Package marketing pushes waitlist contacts to an email-marketing provider.
package marketing

import "context"

const NotConfiguredMessage = "marketing sync not configured"

// SyncResult is the outcome of one upsert. Failures are reported here rather
// than as errors so callers can log and move on.
type SyncResult struct {
	Success    bool
	StatusCode int
	Error      string
}

//go:generate mockgen -source=marketing.go -destination=mock_marketing.go -package=marketing

type Client interface {
	UpsertContact(ctx context.Context, email, source string) SyncResult
	IsConfigured() bool
}
