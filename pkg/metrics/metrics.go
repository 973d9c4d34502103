package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes pipeline counters on /metrics. It implements
// tracker.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	reportsProcessed   prometheus.Counter
	matchFailures      prometheus.Counter
	unpredictable      *prometheus.CounterVec
	predictions        prometheus.Counter
	arrivalDepartures  prometheus.Counter
	processingDuration prometheus.Histogram
	predictableGauge   prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		reportsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "transitx_avl_reports_processed_total",
			Help: "AVL reports accepted by the pipeline.",
		}),
		matchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "transitx_match_failures_total",
			Help: "Reports for which no valid spatial/temporal match was found.",
		}),
		unpredictable: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transitx_vehicles_made_unpredictable_total",
			Help: "Vehicles made unpredictable, by reason.",
		}, []string{"reason"}),
		predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "transitx_predictions_generated_total",
			Help: "Stop predictions generated.",
		}),
		arrivalDepartures: factory.NewCounter(prometheus.CounterOpts{
			Name: "transitx_arrival_departures_generated_total",
			Help: "Arrival/departure records generated.",
		}),
		processingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transitx_report_processing_seconds",
			Help:    "Wall time spent processing one AVL report.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		predictableGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transitx_predictable_vehicles",
			Help: "Vehicles currently predictable.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReportProcessed() {
	m.reportsProcessed.Inc()
}

func (m *Metrics) MatchFailed() {
	m.matchFailures.Inc()
}

func (m *Metrics) VehicleMadeUnpredictable(reason string) {
	m.unpredictable.WithLabelValues(reason).Inc()
}

func (m *Metrics) PredictionsGenerated(count int) {
	m.predictions.Add(float64(count))
}

func (m *Metrics) ArrivalDeparturesGenerated(count int) {
	m.arrivalDepartures.Add(float64(count))
}

func (m *Metrics) ObserveProcessing(d time.Duration) {
	m.processingDuration.Observe(d.Seconds())
}

func (m *Metrics) SetPredictableVehicles(n int) {
	m.predictableGauge.Set(float64(n))
}
