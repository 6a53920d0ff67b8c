package nat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposed by the nat package: tier distribution and STUN RTT,
// grounded in the corpus's client_golang-based socket gauges.
var (
	tierGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "acip",
		Subsystem: "nat",
		Name:      "quality_tier",
		Help:      "1 for the most recently detected NAT quality tier, 0 for the others (0=best .. 4=worst).",
	}, []string{"tier"})

	stunRTT = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "acip",
		Subsystem: "nat",
		Name:      "stun_rtt_seconds",
		Help:      "Round-trip latency of STUN binding requests.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(tierGauge, stunRTT)
}

func observeTier(tier int) {
	for i := 0; i <= 4; i++ {
		tierGauge.WithLabelValues(tierLabel(i)).Set(0)
	}
	tierGauge.WithLabelValues(tierLabel(tier)).Set(1)
}

func tierLabel(tier int) string {
	switch tier {
	case 0:
		return "0"
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "4"
	}
}

func observeSTUNRTT(d time.Duration) {
	stunRTT.Observe(d.Seconds())
}
