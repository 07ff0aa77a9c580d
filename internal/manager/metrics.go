package manager

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	modelsLoaded       prometheus.Gauge
	contextsLive       prometheus.Gauge
	generationsTotal   *prometheus.CounterVec
	generatedTokens    prometheus.Counter
	generationDuration prometheus.Histogram
}

// Generation outcomes used as the "outcome" label.
const (
	outcomeStop   = "stop"   // end-of-generation token sampled
	outcomeLength = "length" // token budget exhausted
	outcomeError  = "error"
)

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		modelsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "llmhost",
			Subsystem: "manager",
			Name:      "models_loaded",
			Help:      "Models currently loaded",
		}),
		contextsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "llmhost",
			Subsystem: "manager",
			Name:      "contexts_live",
			Help:      "Decoding contexts currently allocated",
		}),
		generationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmhost",
			Subsystem: "manager",
			Name:      "generations_total",
			Help:      "Generation requests by outcome",
		}, []string{"outcome"}),
		generatedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llmhost",
			Subsystem: "manager",
			Name:      "generated_tokens_total",
			Help:      "Tokens produced by successful generations",
		}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "llmhost",
			Subsystem: "manager",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of generation requests",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
	for _, c := range []prometheus.Collector{
		m.modelsLoaded, m.contextsLive, m.generationsTotal, m.generatedTokens, m.generationDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
