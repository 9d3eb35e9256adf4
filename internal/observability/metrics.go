package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// estimation service.
type Metrics struct {
	// Upstream solar API metrics.
	SolarRequests *prometheus.CounterVec   // labels: endpoint={insights,layers,raster}, outcome={success,error}
	SolarRetries  *prometheus.CounterVec   // labels: endpoint
	SolarDuration *prometheus.HistogramVec // labels: endpoint
	SolarCache    *prometheus.CounterVec   // labels: endpoint, result={hit,miss,bypass}
	RateLimitWait prometheus.Histogram

	// Raster decode and render metrics.
	DecodeDuration prometheus.Histogram
	RenderDuration *prometheus.HistogramVec // labels: kind
	LayerBuilds    *prometheus.CounterVec   // labels: kind, outcome={success,error}

	// Session and export metrics.
	SessionUpdates   *prometheus.CounterVec // labels: field
	ActiveLayer      *prometheus.GaugeVec   // labels: kind; 1 on the displayed layer
	StaleDiscards    prometheus.Counter
	ReportsGenerated prometheus.Counter
	EstimatesSent    prometheus.Counter
	ExportEnabled    prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec   // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec   // labels: result={hit,miss}
	GeocodeDuration prometheus.Histogram
	GeocodeEnabled  prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		SolarRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_potential",
			Name:      "api_requests_total",
			Help:      "Solar API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		SolarRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_potential",
			Name:      "api_retries_total",
			Help:      "Solar API retries after 429/503 responses.",
		}, []string{"endpoint"}),
		SolarDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "solar_potential",
			Name:      "api_duration_seconds",
			Help:      "Solar API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		SolarCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_potential",
			Name:      "api_cache_total",
			Help:      "Solar API cache lookups by endpoint and result.",
		}, []string{"endpoint", "result"}),
		RateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "solar_potential",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent queued behind the upstream dispatch interval.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "solar_potential",
			Name:      "raster_decode_duration_seconds",
			Help:      "Duration of a single raster decode.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "solar_potential",
			Name:      "layer_render_duration_seconds",
			Help:      "Duration of rendering all frames of a layer.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"kind"}),
		LayerBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_potential",
			Name:      "layer_builds_total",
			Help:      "Layer builds by kind and outcome.",
		}, []string{"kind", "outcome"}),
		SessionUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_potential",
			Name:      "session_updates_total",
			Help:      "Session state updates by field.",
		}, []string{"field"}),
		ActiveLayer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "solar_potential",
			Name:      "active_layer",
			Help:      "1 for the layer kind currently on display, 0 otherwise.",
		}, []string{"kind"}),
		StaleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_potential",
			Name:      "stale_results_discarded_total",
			Help:      "Results dropped because a newer request superseded them.",
		}),
		ReportsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_potential",
			Name:      "reports_generated_total",
			Help:      "Financial reports generated.",
		}),
		EstimatesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_potential",
			Name:      "estimates_published_total",
			Help:      "Estimate summaries published to the export topic.",
		}),
		ExportEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solar_potential",
			Name:      "export_enabled",
			Help:      "1 when Kafka estimate export is enabled, 0 otherwise.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_potential",
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_potential",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "solar_potential",
			Name:      "geocode_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solar_potential",
			Name:      "geocode_enabled",
			Help:      "1 when address geocoding is enabled, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.SolarRequests,
		m.SolarRetries,
		m.SolarDuration,
		m.SolarCache,
		m.RateLimitWait,
		m.DecodeDuration,
		m.RenderDuration,
		m.LayerBuilds,
		m.SessionUpdates,
		m.ActiveLayer,
		m.StaleDiscards,
		m.ReportsGenerated,
		m.EstimatesSent,
		m.ExportEnabled,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeDuration,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		SolarRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_potential", Name: "api_requests_total"}, []string{"endpoint", "outcome"}),
		SolarRetries:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_potential", Name: "api_retries_total"}, []string{"endpoint"}),
		SolarDuration:    prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "solar_potential", Name: "api_duration_seconds"}, []string{"endpoint"}),
		SolarCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_potential", Name: "api_cache_total"}, []string{"endpoint", "result"}),
		RateLimitWait:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "solar_potential", Name: "rate_limit_wait_seconds"}),
		DecodeDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "solar_potential", Name: "raster_decode_duration_seconds"}),
		RenderDuration:   prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "solar_potential", Name: "layer_render_duration_seconds"}, []string{"kind"}),
		LayerBuilds:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_potential", Name: "layer_builds_total"}, []string{"kind", "outcome"}),
		SessionUpdates:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_potential", Name: "session_updates_total"}, []string{"field"}),
		ActiveLayer:      prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "solar_potential", Name: "active_layer"}, []string{"kind"}),
		StaleDiscards:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "solar_potential", Name: "stale_results_discarded_total"}),
		ReportsGenerated: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "solar_potential", Name: "reports_generated_total"}),
		EstimatesSent:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "solar_potential", Name: "estimates_published_total"}),
		ExportEnabled:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "solar_potential", Name: "export_enabled"}),
		GeocodeRequests:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_potential", Name: "geocode_requests_total"}, []string{"outcome"}),
		GeocodeCache:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_potential", Name: "geocode_cache_total"}, []string{"result"}),
		GeocodeDuration:  prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "solar_potential", Name: "geocode_duration_seconds"}),
		GeocodeEnabled:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "solar_potential", Name: "geocode_enabled"}),
	}
}
