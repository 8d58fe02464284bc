package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ServerStats provides the collector access to live server state.
type ServerStats interface {
	RequestsServed() int64
	AverageProcessingMs() float64
	ActiveConnections() int
}

// ModelStats provides the collector access to model-store state.
type ModelStats interface {
	Available() []string
	IsLoaded() bool
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	server ServerStats
	models ModelStats

	requestsServed  *prometheus.Desc
	avgProcessingMs *prometheus.Desc
	activeConns     *prometheus.Desc
	modelsAvailable *prometheus.Desc
	modelLoaded     *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Either argument may be nil (metrics will report 0).
func NewCollector(server ServerStats, models ModelStats) *Collector {
	return &Collector{
		server: server,
		models: models,
		requestsServed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_served"),
			"Successful transcription requests since startup.",
			nil, nil,
		),
		avgProcessingMs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "avg_processing_ms"),
			"Mean end-to-end processing time per served request.",
			nil, nil,
		),
		activeConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_connections"),
			"Open client connections on the transcription listener.",
			nil, nil,
		),
		modelsAvailable: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "model", "available"),
			"Models discovered in the models directory.",
			nil, nil,
		),
		modelLoaded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "model", "loaded"),
			"Whether the selected model is resident in memory (0 or 1).",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requestsServed
	ch <- c.avgProcessingMs
	ch <- c.activeConns
	ch <- c.modelsAvailable
	ch <- c.modelLoaded
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.server != nil {
		ch <- prometheus.MustNewConstMetric(c.requestsServed, prometheus.CounterValue, float64(c.server.RequestsServed()))
		ch <- prometheus.MustNewConstMetric(c.avgProcessingMs, prometheus.GaugeValue, c.server.AverageProcessingMs())
		ch <- prometheus.MustNewConstMetric(c.activeConns, prometheus.GaugeValue, float64(c.server.ActiveConnections()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.requestsServed, prometheus.CounterValue, 0)
		ch <- prometheus.MustNewConstMetric(c.avgProcessingMs, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.activeConns, prometheus.GaugeValue, 0)
	}

	if c.models != nil {
		ch <- prometheus.MustNewConstMetric(c.modelsAvailable, prometheus.GaugeValue, float64(len(c.models.Available())))
		loaded := 0.0
		if c.models.IsLoaded() {
			loaded = 1
		}
		ch <- prometheus.MustNewConstMetric(c.modelLoaded, prometheus.GaugeValue, loaded)
	} else {
		ch <- prometheus.MustNewConstMetric(c.modelsAvailable, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.modelLoaded, prometheus.GaugeValue, 0)
	}
}
