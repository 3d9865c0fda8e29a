package syncstate

import "github.com/prometheus/client_golang/prometheus"

type schedulerMetrics struct {
	pushes    *prometheus.CounterVec
	pulls     *prometheus.CounterVec
	coalesced prometheus.Counter
	latency   prometheus.Histogram
}

func newSchedulerMetrics() schedulerMetrics {
	return schedulerMetrics{
		pushes: registerOrExisting(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sync",
			Subsystem: "remote",
			Name:      "pushes_total",
			Help:      "Outbound snapshot pushes by result.",
		}, []string{"result"})),
		pulls: registerOrExisting(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sync",
			Subsystem: "remote",
			Name:      "pulls_total",
			Help:      "Inbound snapshot pulls by result (merged, absent, corrupt, failed).",
		}, []string{"result"})),
		coalesced: registerOrExisting(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync",
			Subsystem: "debounce",
			Name:      "coalesced_total",
			Help:      "Mutations folded into an already scheduled push.",
		})),
		latency: registerOrExisting(prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sync",
			Subsystem: "remote",
			Name:      "push_seconds",
			Help:      "Time spent upserting a snapshot to the remote store.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		})),
	}
}

func registerOrExisting[C prometheus.Collector](c C) C {
	if err := prometheus.Register(c); err != nil {
		if regErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return regErr.ExistingCollector.(C)
		}
	}
	return c
}
