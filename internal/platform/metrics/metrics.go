package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure kinds reported by IncPackageFailure.
const (
	FailureInvalidInput = "invalid_input"
	FailureInitialize   = "initialize"
	FailureRun          = "run"
)

// Metrics holds the Prometheus collectors of the packaging service.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	segmentsPackaged  *prometheus.CounterVec
	packageFailures   *prometheus.CounterVec
	bytesIn           prometheus.Counter
	bytesOut          prometheus.Counter
	packageDuration   *prometheus.HistogramVec
	streamsEndedTotal prometheus.Counter
	activeStreams     prometheus.Gauge
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livepkg_requests_total",
			Help: "Total number of HTTP requests received",
		}, []string{"method"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livepkg_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}, []string{"code"}),
		segmentsPackaged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livepkg_segments_packaged_total",
			Help: "Total number of segments successfully packaged",
		}, []string{"format", "track"}),
		packageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livepkg_package_failures_total",
			Help: "Total number of failed packaging calls by failure kind",
		}, []string{"kind"}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livepkg_input_bytes_total",
			Help: "Total input bytes (init and media) handed to the packager",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livepkg_output_bytes_total",
			Help: "Total output bytes (init and media) produced by the packager",
		}),
		packageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livepkg_package_duration_seconds",
			Help:    "Time spent in one packaging call",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"format"}),
		streamsEndedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livepkg_streams_ended_total",
			Help: "Total number of streams ended",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livepkg_active_streams",
			Help: "Number of streams that are not ended",
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.segmentsPackaged,
		m.packageFailures,
		m.bytesIn,
		m.bytesOut,
		m.packageDuration,
		m.streamsEndedTotal,
		m.activeStreams,
	)
	return m
}

// IncRequests counts one HTTP request.
func (m *Metrics) IncRequests(method string) {
	m.requestsTotal.WithLabelValues(method).Inc()
}

// IncErrors counts one HTTP error response.
func (m *Metrics) IncErrors(code int) {
	m.errorsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObservePackaged records a successful packaging call.
func (m *Metrics) ObservePackaged(format, track string, bytesIn, bytesOut int, elapsed time.Duration) {
	m.segmentsPackaged.WithLabelValues(format, track).Inc()
	m.bytesIn.Add(float64(bytesIn))
	m.bytesOut.Add(float64(bytesOut))
	m.packageDuration.WithLabelValues(format).Observe(elapsed.Seconds())
}

// IncPackageFailure counts a failed packaging call of the given kind.
func (m *Metrics) IncPackageFailure(kind string) {
	m.packageFailures.WithLabelValues(kind).Inc()
}

// IncStreamsEnded increments the streams ended counter.
func (m *Metrics) IncStreamsEnded() {
	m.streamsEndedTotal.Inc()
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves the registry.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
