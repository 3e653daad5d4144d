// Package metrics exposes Prometheus counters for quiz sessions and point transactions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quiz"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	submissions    *prometheus.CounterVec
	chatEvents     *prometheus.CounterVec
	sessions       *prometheus.CounterVec
	rewards        prometheus.Counter
	rewardedPoints prometheus.Counter
	spends         *prometheus.CounterVec
	spentPoints    prometheus.Counter
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "submissions_total",
			Help:      "Answer submissions by outcome (correct, incorrect, duplicate, rejected).",
		}, []string{"outcome"}),
		chatEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "events_total",
			Help:      "Chat events published by type.",
		}, []string{"type"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session phase transitions by target phase.",
		}, []string{"phase"}),
		rewards: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "points",
			Name:      "rewards_total",
			Help:      "REWARD transactions created.",
		}),
		rewardedPoints: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "points",
			Name:      "rewarded_points_total",
			Help:      "Points awarded through REWARD transactions.",
		}),
		spends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "points",
			Name:      "spend_attempts_total",
			Help:      "Spend attempts by outcome.",
		}, []string{"outcome"}),
		spentPoints: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "points",
			Name:      "spent_points_total",
			Help:      "Points spent through USE transactions.",
		}),
	}
}

func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ChatEvent(eventType string) {
	if m == nil {
		return
	}
	m.chatEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Transition(phase string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(phase).Inc()
}

func (m *Metrics) Reward(amount int) {
	if m == nil {
		return
	}
	m.rewards.Inc()
	m.rewardedPoints.Add(float64(amount))
}

func (m *Metrics) Spend(outcome string, amount int) {
	if m == nil {
		return
	}
	m.spends.WithLabelValues(outcome).Inc()
	if amount > 0 {
		m.spentPoints.Add(float64(amount))
	}
}

// Handler serves the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
