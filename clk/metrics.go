package clk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hwEnables = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clkctl_hw_enables_total",
		Help: "Number of times a clock was switched on in hardware",
	}, []string{"clock"})

	hwDisables = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clkctl_hw_disables_total",
		Help: "Number of times a clock was switched off in hardware",
	}, []string{"clock"})

	rateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clkctl_rate_changes_total",
		Help: "Rate change requests by clock and outcome",
	}, []string{"clock", "result"})

	rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clkctl_rollbacks_total",
		Help: "Nodes restored after a failed rate change",
	})

	timeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clkctl_hw_timeouts_total",
		Help: "Hardware handshakes that did not complete in time",
	}, []string{"clock", "kind"})

	clockRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clkctl_clock_rate_hz",
		Help: "Current rate of each clock",
	}, []string{"clock"})

	vddCorner = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clkctl_vdd_corner",
		Help: "Applied corner of each voltage class, 0 = none",
	}, []string{"class"})

	supplyTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clkctl_supply_transitions_total",
		Help: "Supply on/off transitions",
	}, []string{"supply", "state"})

	setRateSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clkctl_set_rate_seconds",
		Help:    "Time taken by SetRate, including hardware handshakes",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
	})
)
