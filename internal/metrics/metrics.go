package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hunterwarburton/taxassist/internal/core"
)

// Query outcomes.
const (
	OutcomeAnswered  = "answered"
	OutcomeNoContext = "no_context"
	OutcomeFailed    = "failed"
	OutcomeInvalid   = "invalid"
)

// Recorder counts queries per channel and outcome and observes latency.
type Recorder struct {
	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder registers the query metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxassist_queries_total",
			Help: "Questions handled, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taxassist_query_duration_seconds",
			Help:    "Time to answer a question, by channel.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"channel"}),
	}
	reg.MustRegister(r.queries, r.duration)
	return r
}

// Outcome classifies an answer.
func Outcome(a core.Answer) string {
	switch {
	case a.Success:
		return OutcomeAnswered
	case a.Error != "":
		return OutcomeFailed
	default:
		return OutcomeNoContext
	}
}

// Observe records one answered query. A nil Recorder is a no-op.
func (r *Recorder) Observe(channel string, a core.Answer, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.queries.WithLabelValues(channel, Outcome(a)).Inc()
	r.duration.WithLabelValues(channel).Observe(elapsed.Seconds())
}

// Invalid records a query rejected before the pipeline ran.
func (r *Recorder) Invalid(channel string) {
	if r == nil {
		return
	}
	r.queries.WithLabelValues(channel, OutcomeInvalid).Inc()
}
