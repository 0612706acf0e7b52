// Package metrics exposes the state loop's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Raudi1/opendbc/carstate"
	"github.com/Raudi1/opendbc/platform"
)

// Loop counters and histograms, partitioned by platform name.

var (
	// Cycle
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "loop",
		Name:      "cycles_total",
		Help:      "Total normalizer cycles",
	}, []string{"platform"})

	CycleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "carstate",
		Subsystem: "loop",
		Name:      "cycle_duration_seconds",
		Help:      "Snapshot plus normalize duration per cycle",
		Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
	}, []string{"platform"})

	CycleOverruns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "loop",
		Name:      "overruns_total",
		Help:      "Cycles that took longer than the control period",
	}, []string{"platform"})

	// Signal health
	MessageStale = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "carstate",
		Subsystem: "signals",
		Name:      "message_stale",
		Help:      "1 while a subscribed message is missing or stale",
	}, []string{"bus", "message"})

	MessageStaleCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "signals",
		Name:      "stale_cycles_total",
		Help:      "Cycles in which a subscribed message was missing or stale",
	}, []string{"bus", "message"})

	SteerFaultCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "signals",
		Name:      "steer_fault_cycles_total",
		Help:      "Cycles per steering fault class",
	}, []string{"class"})

	VEgo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "carstate",
		Subsystem: "signals",
		Name:      "v_ego_mps",
		Help:      "Filtered vehicle speed",
	}, []string{"platform"})

	// CAN transport
	RxFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "can",
		Name:      "rx_frames_total",
		Help:      "Frames received, before subscription filtering",
	}, []string{"bus"})

	RxFramesAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "can",
		Name:      "rx_frames_accepted_total",
		Help:      "Frames that updated a subscribed message",
	}, []string{"bus"})

	RxErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "can",
		Name:      "rx_errors_total",
		Help:      "Receive errors per bus",
	}, []string{"bus"})

	TxFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "can",
		Name:      "tx_frames_total",
		Help:      "Carryover frames echoed",
	}, []string{"message"})

	EchoSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "can",
		Name:      "echo_suppressed_total",
		Help:      "Carryover echoes skipped because the source message was stale",
	}, []string{"message"})

	// Identification
	Identifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "platform",
		Name:      "identifications_total",
		Help:      "Identification attempts by method and outcome",
	}, []string{"method", "outcome"})

	// Recorder
	RecorderWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "recorder",
		Name:      "writes_total",
		Help:      "Rows written by table",
	}, []string{"table"})

	RecorderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carstate",
		Subsystem: "recorder",
		Name:      "errors_total",
		Help:      "Failed recorder writes by table",
	}, []string{"table"})
)

// Identification outcomes.
const (
	OutcomeUnique    = "unique"
	OutcomeAmbiguous = "ambiguous"
	OutcomeNone      = "none"
	OutcomeBadVIN    = "invalid_vin"
)

// ObserveCycle records one normalizer cycle. stale is the list returned by
// carstate.StaleMessages for the same frames.
func ObserveCycle(platformName string, cs carstate.CarState, stale []string, took, period time.Duration) {
	CyclesTotal.WithLabelValues(platformName).Inc()
	CycleLatency.WithLabelValues(platformName).Observe(took.Seconds())
	if period > 0 && took > period {
		CycleOverruns.WithLabelValues(platformName).Inc()
	}
	VEgo.WithLabelValues(platformName).Set(cs.VEgo)
	SteerFaultCycles.WithLabelValues(cs.SteerFault.String()).Inc()

	isStale := make(map[string]bool, len(stale))
	for _, s := range stale {
		isStale[s] = true
	}
	for bus, specs := range carstate.Subscriptions() {
		for _, spec := range specs {
			key := bus.String() + "/" + spec.Name
			if isStale[key] {
				MessageStale.WithLabelValues(bus.String(), spec.Name).Set(1)
				MessageStaleCycles.WithLabelValues(bus.String(), spec.Name).Inc()
			} else {
				MessageStale.WithLabelValues(bus.String(), spec.Name).Set(0)
			}
		}
	}
}

// ObserveIdentification counts one identification attempt and returns the
// outcome label it used.
func ObserveIdentification(res platform.Result) string {
	outcome := Outcome(res)
	Identifications.WithLabelValues(res.Method.String(), outcome).Inc()
	return outcome
}

// Outcome classifies an identification result.
func Outcome(res platform.Result) string {
	switch {
	case res.Err != nil:
		return OutcomeBadVIN
	case len(res.Candidates) == 1:
		return OutcomeUnique
	case len(res.Candidates) > 1:
		return OutcomeAmbiguous
	default:
		return OutcomeNone
	}
}
