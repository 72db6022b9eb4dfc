// Package metrics exposes Prometheus collectors for the analysis service.
// Collectors live on their own registry so tests and multiple servers in one
// process do not collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "audioinsight"

type Metrics struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	Decodes          *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	AudioDuration    prometheus.Histogram
	UploadBytes      prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Analyze requests by HTTP method and outcome.",
		}, []string{"method", "outcome"}),
		Decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_attempts_total",
			Help:      "Decode attempts by decoder and whether they succeeded.",
		}, []string{"decoder", "success"}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time spent decoding and analyzing one upload.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		AudioDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_duration_seconds",
			Help:      "Decoded length of analyzed uploads.",
			Buckets:   []float64{5, 15, 30, 60, 120, 180, 240, 300},
		}),
		UploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_bytes",
			Help:      "Size of uploaded audio files.",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 8),
		}),
	}

	m.registry.MustRegister(
		m.Requests,
		m.Decodes,
		m.AnalysisDuration,
		m.AudioDuration,
		m.UploadBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, outcome string) {
	m.Requests.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveUpload(size int) {
	m.UploadBytes.Observe(float64(size))
}

func (m *Metrics) ObserveDecode(decoder string, ok bool) {
	m.Decodes.WithLabelValues(decoder, strconv.FormatBool(ok)).Inc()
}

func (m *Metrics) ObserveAnalysis(outcome string, elapsed time.Duration) {
	m.AnalysisDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAudioDuration(seconds float64) {
	m.AudioDuration.Observe(seconds)
}
