package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"memewars/internal/battle"
)

var (
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memewars",
		Name:      "operations_total",
		Help:      "Battle operations by name and outcome code.",
	}, []string{"op", "code"})

	operationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "memewars",
		Name:      "operation_duration_seconds",
		Help:      "Latency of battle operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	payouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memewars",
		Name:      "payout_units_total",
		Help:      "Units paid out to accounts, by kind.",
	}, []string{"kind"})

	pendingForwards = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "memewars",
		Name:      "yield_forwards_pending",
		Help:      "Yield forwards still waiting for a successful delegation.",
	})
)

// Observe records one operation. Call it deferred with the named error result.
func Observe(op string, started time.Time, err error) {
	code := "ok"
	if err != nil {
		code = battle.CodeOf(err)
	}
	operations.WithLabelValues(op, code).Inc()
	operationSeconds.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func AddPayout(kind string, amount uint64) {
	payouts.WithLabelValues(kind).Add(float64(amount))
}

func SetPendingForwards(n int) {
	pendingForwards.Set(float64(n))
}
