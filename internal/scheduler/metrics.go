package scheduler

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomePanic    = "panic"
	outcomeRejected = "rejected"
)

type metrics struct {
	tasks      *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmhost",
			Subsystem: "scheduler",
			Name:      "tasks_total",
			Help:      "Tasks by operation and outcome",
		}, []string{"op", "outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "llmhost",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker",
		}),
	}
	for _, c := range []prometheus.Collector{m.tasks, m.queueDepth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
