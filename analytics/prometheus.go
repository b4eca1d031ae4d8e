package analytics

import (
	"github.com/prometheus/client_golang/prometheus"

	"reputationkit/core"
)

// PrometheusHook exports committed events as prometheus counters.
type PrometheusHook struct {
	events       *prometheus.CounterVec
	points       *prometheus.CounterVec
	spent        prometheus.Counter
	badges       *prometheus.CounterVec
	levelUps     prometheus.Counter
	streakResets prometheus.Counter
	referrals    prometheus.Counter
}

// NewPrometheusHook registers the collectors on reg.
func NewPrometheusHook(reg prometheus.Registerer, namespace string) (*PrometheusHook, error) {
	if namespace == "" {
		namespace = "reputation"
	}
	h := &PrometheusHook{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total", Help: "Committed domain events by type.",
		}, []string{"type"}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "points_awarded_total", Help: "Points awarded by action.",
		}, []string{"action"}),
		spent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "points_spent_total", Help: "Points spent from balances.",
		}),
		badges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "badges_awarded_total", Help: "Badges awarded by name.",
		}, []string{"badge"}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "level_ups_total", Help: "Level-up events.",
		}),
		streakResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "streak_resets_total", Help: "Streaks broken and restarted.",
		}),
		referrals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "referrals_credited_total", Help: "Referrals credited to referrers.",
		}),
	}
	for _, c := range []prometheus.Collector{h.events, h.points, h.spent, h.badges, h.levelUps, h.streakResets, h.referrals} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *PrometheusHook) OnEvent(e core.Event) {
	h.events.WithLabelValues(string(e.Type)).Inc()
	switch e.Type {
	case core.EventPointsAdded:
		if e.Delta > 0 {
			h.points.WithLabelValues(string(e.Action)).Add(float64(e.Delta))
		}
	case core.EventPointsSpent:
		h.spent.Add(float64(e.Delta))
	case core.EventBadgeAwarded:
		h.badges.WithLabelValues(e.Badge).Inc()
	case core.EventLevelUp:
		h.levelUps.Inc()
	case core.EventStreakUpdated:
		if e.Metadata["transition"] == string(core.StreakReset) {
			h.streakResets.Inc()
		}
	case core.EventReferralCredited:
		h.referrals.Inc()
	}
}
