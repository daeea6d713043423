package orabridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the collectors an Env updates.
type Metrics struct {
	TasksSubmitted *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksRunning   prometheus.Gauge
	BlockingTime   *prometheus.HistogramVec
	BusyRejections *prometheus.CounterVec
	LobBytes       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		TasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orabridge",
			Name:      "tasks_submitted_total",
			Help:      "Tasks handed to the scheduler, by kind.",
		}, []string{"kind"}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orabridge",
			Name:      "tasks_completed_total",
			Help:      "Tasks that reached DONE, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		TasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orabridge",
			Name:      "tasks_running",
			Help:      "Blocking bodies currently running on workers.",
		}),
		BlockingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orabridge",
			Name:      "blocking_seconds",
			Help:      "Time spent in blocking bodies, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"kind"}),
		BusyRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orabridge",
			Name:      "busy_rejections_total",
			Help:      "Calls rejected because their object was busy.",
		}, []string{"object"}),
		LobBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orabridge",
			Name:      "lob_bytes_total",
			Help:      "Bytes transferred by LOB reads and writes.",
		}, []string{"direction"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.TasksSubmitted, m.TasksCompleted, m.TasksRunning,
		m.BlockingTime, m.BusyRejections, m.LobBytes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
