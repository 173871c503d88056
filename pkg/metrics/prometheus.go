package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "regimedesk"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks          *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
	events         *prometheus.CounterVec
	spineAppends   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	relayForwarded *prometheus.CounterVec
	downtime       *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New registers the recorder's collectors with the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Observations processed, by sequence guard result",
			},
			[]string{"asset", "result"},
		),
		fetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Failed price fetches",
			},
			[]string{"asset"},
		),
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regime_events_total",
				Help:      "Regime events emitted",
			},
			[]string{"kind"},
		),
		spineAppends: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spine_appends_total",
				Help:      "Envelopes appended to the event spine",
			},
			[]string{"event_type"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		relayForwarded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_forwarded_total",
				Help:      "Envelopes forwarded by the relay",
			},
			[]string{"sink"},
		),
		downtime: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watchdog_downtime_total",
				Help:      "Downtime events emitted by the watchdog",
			},
			[]string{"reason"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_price",
				Help:      "Last accepted price for an asset",
			},
			[]string{"asset"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordTick(asset string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	r.ticks.WithLabelValues(asset, result).Inc()
}

func (r *Recorder) RecordFetchError(asset string) {
	r.fetchErrors.WithLabelValues(asset).Inc()
}

func (r *Recorder) RecordEvent(kind string) {
	r.events.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordSpineAppend(eventType string) {
	r.spineAppends.WithLabelValues(eventType).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordRelayForwarded(sink string, n int) {
	r.relayForwarded.WithLabelValues(sink).Add(float64(n))
}

func (r *Recorder) RecordDowntime(reason string) {
	r.downtime.WithLabelValues(reason).Inc()
}

// RecordLastPrice records the last price for an asset.
func (r *Recorder) RecordLastPrice(asset string, price float64) {
	r.lastPrice.WithLabelValues(asset).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
