package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the visitor registry.
type Metrics struct {
	VisitsTotal            prometheus.Counter
	SignRejections         *prometheus.CounterVec
	RewardsPaid            prometheus.Counter
	RewardTransferFailures prometheus.Counter
	RewardsSkipped         prometheus.Counter
	SignLatency            prometheus.Histogram
}

// NewWithRegisterer registers the registry metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VisitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "visitorbook_visits_total",
			Help: "Total number of successful registrations",
		}),
		SignRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visitorbook_sign_rejections_total",
			Help: "Total number of rejected sign calls by reason",
		}, []string{"reason"}), // reason: "insufficient_payment", "already_visited", "not_initialized"
		RewardsPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "visitorbook_rewards_paid_total",
			Help: "Total number of fee rewards paid back to visitors",
		}),
		RewardTransferFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "visitorbook_reward_transfer_failures_total",
			Help: "Total number of reward transfers that failed after registration",
		}),
		RewardsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "visitorbook_rewards_skipped_total",
			Help: "Total number of registrations with no reward because the balance was below the fee",
		}),
		SignLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "visitorbook_sign_duration_seconds",
			Help:    "Duration of sign calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncVisits() {
	if m != nil {
		m.VisitsTotal.Inc()
	}
}

// IncSignRejection records a sign call rejected before registration.
func (m *Metrics) IncSignRejection(reason string) {
	if m != nil {
		m.SignRejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncRewardsPaid() {
	if m != nil {
		m.RewardsPaid.Inc()
	}
}

func (m *Metrics) IncRewardTransferFailures() {
	if m != nil {
		m.RewardTransferFailures.Inc()
	}
}

func (m *Metrics) IncRewardsSkipped() {
	if m != nil {
		m.RewardsSkipped.Inc()
	}
}

// ObserveSignLatency records the duration of a sign call.
func (m *Metrics) ObserveSignLatency(d time.Duration) {
	if m != nil {
		m.SignLatency.Observe(d.Seconds())
	}
}
