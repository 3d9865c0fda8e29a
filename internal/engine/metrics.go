package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	mutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "mutations_total",
		Help:      "Progress mutations by operation and outcome (applied, noop, rejected).",
	}, []string{"op", "result"})

	xpAwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "xp_awarded_total",
		Help:      "XP credited by local mutations and reward claims.",
	})

	rewardClaims = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "reward_claims_total",
		Help:      "Successful reward claims by cadence.",
	}, []string{"cadence"})

	localWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "local_write_failures_total",
		Help:      "Local store writes that failed and were left for the next mutation.",
	})
)

func init() {
	prometheus.MustRegister(mutationsTotal, xpAwarded, rewardClaims, localWriteFailures)
}
