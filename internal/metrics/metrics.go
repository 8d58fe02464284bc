package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scribed"

// API request metrics (incremented by the transcription server's router).
var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Total API requests processed.",
	}, []string{"method", "path", "status_code"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "API request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	UploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upload_bytes",
		Help:      "Size of uploaded request bodies in bytes.",
		Buckets:   prometheus.ExponentialBuckets(1024, 8, 8), // 1KB → 2GB
	})
)

// Pipeline counters (incremented directly by the coordinator).
var (
	TranscriptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcriptions_total",
		Help:      "Transcription attempts by outcome.",
	}, []string{"status"})

	TranscriptionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transcription_duration_seconds",
		Help:      "End-to-end transcription processing time in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms → ~3.4min
	})

	DiarizationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "diarizations_total",
		Help:      "Diarization attempts per method.",
	}, []string{"method", "status"})

	ModelLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_loads_total",
		Help:      "Model load attempts by outcome.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		UploadBytes,
		TranscriptionsTotal,
		TranscriptionDuration,
		DiarizationsTotal,
		ModelLoadsTotal,
	)
}

// ObserveRequest records one API request handled by the transcription server.
func ObserveRequest(method, path string, status int, duration time.Duration, bodyBytes int) {
	RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if bodyBytes > 0 {
		UploadBytes.Observe(float64(bodyBytes))
	}
}

// InstrumentHandler returns middleware for the admin listener that records
// request metrics. It uses chi's route pattern as the path label to avoid
// cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		ObserveRequest(r.Method, pattern, sw.status, time.Since(start), 0)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
