package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

type CircuitState int

const (
	Closed CircuitState = iota
	Open
	// HalfOpen lets trial calls through to probe recovery.
	HalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls and opens the circuit after repeated failures.
type CircuitBreaker interface {
	Call(func() error) error
	State() CircuitState
	Reset()
}

type Config struct {
	FailureThreshold int           // consecutive failures before opening
	RecoveryTimeout  time.Duration // time spent open before a trial call
	SuccessThreshold int           // trial successes needed to close again

	// IsFailure decides whether an error counts against the breaker.
	// Nil counts every non-nil error.
	IsFailure func(error) bool

	OnStateChange func(from, to CircuitState)
	Clock         func() time.Time
}

func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 1,
	}
}

type circuitBreaker struct {
	config      Config
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
	nextAttempt time.Time
	mutex       sync.RWMutex
}

// NewCircuitBreaker returns a circuit breaker and applies defaults for zero fields.
func NewCircuitBreaker(config *Config) CircuitBreaker {
	return newCircuitBreaker(config)
}

func newCircuitBreaker(config *Config) *circuitBreaker {
	cfg := *DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &circuitBreaker{config: cfg, state: Closed}
}

func (cb *circuitBreaker) Call(fn func() error) error {
	cb.mutex.Lock()
	allowed := cb.shouldAllowRequest()
	cb.mutex.Unlock()

	if !allowed {
		return ErrCircuitOpen
	}

	// fn runs without the lock held.
	err := fn()

	cb.mutex.Lock()
	if err != nil && cb.countsAsFailure(err) {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
	cb.mutex.Unlock()

	return err
}

func (cb *circuitBreaker) State() CircuitState {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

func (cb *circuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.transition(Closed)
	cb.failures = 0
	cb.successes = 0
}

func (cb *circuitBreaker) shouldAllowRequest() bool {
	if cb.state == Open && !cb.config.Clock().Before(cb.nextAttempt) {
		cb.transition(HalfOpen)
		cb.successes = 0
	}
	return cb.state != Open
}

func (cb *circuitBreaker) countsAsFailure(err error) bool {
	if cb.config.IsFailure == nil {
		return true
	}
	return cb.config.IsFailure(err)
}

func (cb *circuitBreaker) recordFailure() {
	now := cb.config.Clock()
	cb.failures++
	cb.lastFailure = now

	switch cb.state {
	case Closed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.nextAttempt = now.Add(cb.config.RecoveryTimeout)
			cb.transition(Open)
		}
	case HalfOpen:
		cb.nextAttempt = now.Add(cb.config.RecoveryTimeout)
		cb.transition(Open)
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.failures = 0

	if cb.state == HalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.successes = 0
			cb.transition(Closed)
		}
	}
}

// transition must be called with the mutex held. The hook runs inline and
// must not call back into the breaker.
func (cb *circuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

type CircuitBreakerMetrics struct {
	State        CircuitState
	FailureCount int
	SuccessCount int
	LastFailure  time.Time
	NextAttempt  time.Time
}

func (cb *circuitBreaker) GetMetrics() CircuitBreakerMetrics {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	return CircuitBreakerMetrics{
		State:        cb.state,
		FailureCount: cb.failures,
		SuccessCount: cb.successes,
		LastFailure:  cb.lastFailure,
		NextAttempt:  cb.nextAttempt,
	}
}
