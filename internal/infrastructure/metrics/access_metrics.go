package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ueckoken/kagi/internal/core/domain/verification"
	"github.com/ueckoken/kagi/internal/core/ports"
)

// AccessMetrics implements ports.AccessMetrics with prometheus collectors.
type AccessMetrics struct {
	verifications    *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	iterations       *prometheus.CounterVec
	authorityLatency *prometheus.HistogramVec
}

var _ ports.AccessMetrics = (*AccessMetrics)(nil)

// NewAccessMetrics creates the collectors and registers them with reg.
func NewAccessMetrics(reg prometheus.Registerer) (*AccessMetrics, error) {
	m := &AccessMetrics{
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kagi_verifications_total",
				Help: "Card verifications by outcome and source",
			},
			[]string{"status", "source"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kagi_cache_lookups_total",
				Help: "Verification cache lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kagi_door_transitions_total",
				Help: "Door actuations by action (unlock, lock, failed)",
			},
			[]string{"action"},
		),
		iterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kagi_presentations_total",
				Help: "Card presentations handled by the door loop by outcome",
			},
			[]string{"outcome"},
		),
		authorityLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kagi_authority_request_duration_seconds",
				Help:    "Card authority request latencies in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
			},
			[]string{"status"},
		),
	}
	for _, c := range []prometheus.Collector{m.verifications, m.cacheLookups, m.transitions, m.iterations, m.authorityLatency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *AccessMetrics) ObserveVerification(res verification.Result) {
	m.verifications.WithLabelValues(string(res.Status), string(res.Source)).Inc()
}

func (m *AccessMetrics) ObserveCacheLookup(result string) {
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *AccessMetrics) ObserveTransition(action string) {
	m.transitions.WithLabelValues(action).Inc()
}

func (m *AccessMetrics) ObserveIteration(outcome string) {
	m.iterations.WithLabelValues(outcome).Inc()
}

func (m *AccessMetrics) ObserveAuthorityRequest(outcome string, d time.Duration) {
	m.authorityLatency.WithLabelValues(outcome).Observe(d.Seconds())
}
