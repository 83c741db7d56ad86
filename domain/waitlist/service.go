package waitlist

import (
	"context"
	"strings"
	"time"

	"github.com/loppilove/waitlist-api/internal/log"
	"github.com/loppilove/waitlist-api/internal/models"
	"github.com/loppilove/waitlist-api/pkg/constants"
	apperrors "github.com/loppilove/waitlist-api/pkg/errors"
	"github.com/loppilove/waitlist-api/pkg/ratelimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultDuplicateCacheTTL = 24 * time.Hour

	duplicateCachePrefix = "waitlist:exists:"
	unknownClient        = "unknown"
)

var tracer = otel.Tracer("github.com/loppilove/waitlist-api/domain/waitlist")

type WaitlistService interface {
	// Submit runs one landing-page submission through rate limiting,
	// validation, deduplication and persistence, then queues the contact
	// sync. Duplicates are reported as success with AlreadyExists set.
	Submit(ctx context.Context, cmd SubmitCommand) (*SubmitResult, error)
}

type ContactSyncer interface {
	Dispatch(email, source string)
}

// DuplicateCache remembers emails known to be stored. Get returns "" on a miss.
type DuplicateCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type ServiceConfig struct {
	Limiter           ratelimit.RateLimiter // nil disables the per-client limit
	Cache             DuplicateCache        // optional
	Syncer            ContactSyncer         // optional
	Metrics           *Metrics              // optional
	Clock             func() time.Time
	Brand             string
	DuplicateCacheTTL time.Duration
}

type waitlistService struct {
	logger     *log.Logger
	repository WaitlistRepository
	limiter    ratelimit.RateLimiter
	cache      DuplicateCache
	syncer     ContactSyncer
	metrics    *Metrics
	clock      func() time.Time
	brand      string
	cacheTTL   time.Duration
}

func NewWaitlistService(logger *log.Logger, repository WaitlistRepository, cfg ServiceConfig) WaitlistService {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if strings.TrimSpace(cfg.Brand) == "" {
		cfg.Brand = constants.DefaultBrand
	}
	if cfg.DuplicateCacheTTL <= 0 {
		cfg.DuplicateCacheTTL = DefaultDuplicateCacheTTL
	}

	return &waitlistService{
		logger:     logger,
		repository: repository,
		limiter:    cfg.Limiter,
		cache:      cfg.Cache,
		syncer:     cfg.Syncer,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
		brand:      cfg.Brand,
		cacheTTL:   cfg.DuplicateCacheTTL,
	}
}

func (s *waitlistService) Submit(ctx context.Context, cmd SubmitCommand) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "waitlist.Submit")
	defer span.End()

	logger := log.GetLoggerInstanceFromContext(ctx, s.logger)

	outcome := func(name string) {
		span.SetAttributes(attribute.String("waitlist.outcome", name))
		s.metrics.observeSubmission(name)
	}

	client := strings.TrimSpace(cmd.ClientIdentifier)
	if client == "" {
		client = unknownClient
	}

	if s.limiter != nil {
		limited, err := s.limiter.IsLimited(client)
		switch {
		case err != nil:
			logger.Error("Waitlist rate limiter unavailable, allowing request", "client", client, "error", err)
		case limited:
			logger.Warn("Waitlist rate limit exceeded", "client", client)
			outcome(outcomeRateLimited)
			return nil, apperrors.NewRateLimitExceededError(MessageTooManyRequests, nil)
		}
	}

	email, err := NormalizeEmail(cmd.Email)
	if err != nil {
		logger.Info("Rejected waitlist submission", "violations", apperrors.FormatValidationErrors(err, &emailInput{}))
		outcome(outcomeInvalid)
		return nil, apperrors.NewInvalidRequestError(MessageInvalidEmail, err)
	}

	source := NormalizeSource(cmd.Source)
	redacted := log.RedactEmail(email)
	span.SetAttributes(attribute.String("waitlist.source", source))

	exists, err := s.isKnown(ctx, logger, email)
	if err != nil {
		logger.Error("Failed to check for existing waitlist entry", "email", redacted, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "duplicate check failed")
		outcome(outcomeError)
		return nil, err
	}
	if exists {
		logger.Info("Waitlist submission for existing entry", "email", redacted)
		outcome(outcomeDuplicate)
		return alreadyJoinedResult(), nil
	}

	entry := &models.WaitlistEntry{
		Email:      email,
		Source:     source,
		Brand:      s.brand,
		Subscribed: true,
		CreatedAt:  s.clock().UTC(),
	}

	created, err := s.repository.CreateIfAbsent(ctx, entry)
	if err != nil {
		logger.Error("Failed to store waitlist entry", "email", redacted, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		outcome(outcomeError)
		return nil, err
	}

	s.remember(ctx, logger, email)

	if !created {
		logger.Info("Concurrent waitlist submission already stored", "email", redacted)
		outcome(outcomeDuplicate)
		return alreadyJoinedResult(), nil
	}

	logger.Info("Waitlist entry created", "email", redacted, "source", source)
	outcome(outcomeCreated)

	if s.syncer != nil {
		s.syncer.Dispatch(email, source)
	}

	return welcomeResult(), nil
}

// isKnown consults the positive cache before the store. Cache failures are
// logged and ignored.
func (s *waitlistService) isKnown(ctx context.Context, logger *log.Logger, email string) (bool, error) {
	if s.cache != nil {
		value, err := s.cache.Get(ctx, duplicateCachePrefix+email)
		if err != nil {
			logger.Warn("Duplicate cache lookup failed", "error", err)
		} else if value != "" {
			return true, nil
		}
	}

	exists, err := s.repository.ExistsByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if exists {
		s.remember(ctx, logger, email)
	}
	return exists, nil
}

func (s *waitlistService) remember(ctx context.Context, logger *log.Logger, email string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, duplicateCachePrefix+email, "1", s.cacheTTL); err != nil {
		logger.Warn("Duplicate cache write failed", "error", err)
	}
}
