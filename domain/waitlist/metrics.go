package waitlist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeCreated     = "created"
	outcomeDuplicate   = "duplicate"
	outcomeInvalid     = "invalid"
	outcomeRateLimited = "rate_limited"
	outcomeError       = "error"

	syncSuccess = "success"
	syncFailure = "failure"
	syncDropped = "dropped"
	syncSkipped = "skipped"
)

// Metrics is safe to use as a nil pointer, which records nothing.
type Metrics struct {
	submissions *prometheus.CounterVec
	syncs       *prometheus.CounterVec
}

// NewMetrics registers the waitlist collectors on reg. A nil reg yields
// working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waitlist_submissions_total",
			Help: "Waitlist submissions by outcome.",
		}, []string{"outcome"}),
		syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waitlist_sync_total",
			Help: "Marketing contact syncs by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) observeSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSync(result string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(result).Inc()
}
