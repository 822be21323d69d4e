package sim

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/runesim/kaun/models"
)

const (
	statusLabel = "status"
)

var (
	kaunTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kaun_ticks_total",
		Help: "The total number of completed ticks.",
	})

	kaunTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kaun_tick_duration_seconds",
		Help:    "The wall-clock duration of a tick.",
		Buckets: prometheus.DefBuckets,
	})

	kaunContactEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kaun_contact_edges",
		Help: "The number of contact edges found in the latest tick.",
	})

	kaunLiveAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kaun_live_agents",
		Help: "The number of agents still moving and contactable.",
	})

	kaunAgentsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kaun_agents_by_status",
		Help: "The number of agents per health status.",
	}, []string{statusLabel})

	kaunHealthUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaun_health_updates_total",
		Help: "The total number of applied health updates.",
	}, []string{statusLabel})
)

func instrumentTick(d time.Duration) {
	kaunTicksTotal.Inc()
	kaunTickDuration.Observe(d.Seconds())
}

func instrumentContactEdges(count int) {
	kaunContactEdges.Set(float64(count))
}

func instrumentLiveAgents(count int) {
	kaunLiveAgents.Set(float64(count))
}

func instrumentAgentStatuses(agents []models.AgentSnapshot) {
	counts := map[models.HealthStatus]int{
		models.HealthSusceptible: 0,
		models.HealthExposed:     0,
		models.HealthInfectious:  0,
		models.HealthRecovered:   0,
		models.HealthDead:        0,
	}
	for _, a := range agents {
		counts[a.Status]++
	}

	for status, count := range counts {
		kaunAgentsByStatus.
			With(prometheus.Labels{statusLabel: string(status)}).
			Set(float64(count))
	}
}

func instrumentCountHealthUpdate(status models.HealthStatus) {
	kaunHealthUpdatesTotal.
		With(prometheus.Labels{statusLabel: string(status)}).
		Inc()
}
