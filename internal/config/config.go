package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Solar insights API configuration.
	SolarAPIKey       string
	SolarBaseURL      string
	SolarTimeout      time.Duration
	RequiredQuality   string
	LayerRadiusMeters float64

	// Upstream request discipline: minimum gap between dispatches plus
	// retry behavior for 429/503 responses.
	RequestInterval  time.Duration
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryMaxAttempts int

	InsightsCacheSize int
	RasterCacheSize   int

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Defaults seeding a fresh session's financial parameters.
	DefaultMonthlyBill        float64
	DefaultEnergyCostPerKwh   float64
	DefaultPanelCapacityWatts float64

	// Kafka estimate export (feature-flagged).
	ExportEnabled bool
	KafkaBrokers  []string
	KafkaTopic    string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is folded in first when
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	solarTimeout, err := parseDuration("SOLAR_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	requestInterval, err := parseDuration("REQUEST_INTERVAL", 200*time.Millisecond)
	if err != nil {
		return nil, err
	}
	retryBase, err := parseDuration("RETRY_BASE_DELAY", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	retryMax, err := parseDuration("RETRY_MAX_DELAY", 8*time.Second)
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	retryAttempts, err := parseInt("RETRY_MAX_ATTEMPTS", 4, 1, 10)
	if err != nil {
		return nil, err
	}
	insightsCache, err := parseInt("INSIGHTS_CACHE_SIZE", 100, 1, 100000)
	if err != nil {
		return nil, err
	}
	rasterCache, err := parseInt("RASTER_CACHE_SIZE", 50, 1, 100000)
	if err != nil {
		return nil, err
	}
	mapboxCache, err := parseInt("MAPBOX_CACHE_SIZE", 1000, 1, 1000000)
	if err != nil {
		return nil, err
	}

	radius, err := parseFloat("LAYER_RADIUS_METERS", 50, 1, 500)
	if err != nil {
		return nil, err
	}
	monthlyBill, err := parseFloat("DEFAULT_MONTHLY_BILL", 300, 0.01, 1e6)
	if err != nil {
		return nil, err
	}
	energyCost, err := parseFloat("DEFAULT_ENERGY_COST_PER_KWH", 0.31, 0.001, 100)
	if err != nil {
		return nil, err
	}
	panelCapacity, err := parseFloat("DEFAULT_PANEL_CAPACITY_WATTS", 400, 1, 10000)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SolarAPIKey:       os.Getenv("SOLAR_API_KEY"),
		SolarBaseURL:      envOrDefault("SOLAR_BASE_URL", "https://solar.googleapis.com/v1"),
		SolarTimeout:      solarTimeout,
		RequiredQuality:   envOrDefault("REQUIRED_QUALITY", "LOW"),
		LayerRadiusMeters: radius,

		RequestInterval:  requestInterval,
		RetryBaseDelay:   retryBase,
		RetryMaxDelay:    retryMax,
		RetryMaxAttempts: retryAttempts,

		InsightsCacheSize: insightsCache,
		RasterCacheSize:   rasterCache,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCache,

		DefaultMonthlyBill:        monthlyBill,
		DefaultEnergyCostPerKwh:   energyCost,
		DefaultPanelCapacityWatts: panelCapacity,

		ExportEnabled: os.Getenv("EXPORT_ENABLED") == "true",
		KafkaBrokers:  parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:    envOrDefault("KAFKA_TOPIC", "solar-estimates"),
	}

	if cfg.SolarAPIKey == "" {
		return nil, errors.New("SOLAR_API_KEY is required")
	}
	switch cfg.RequiredQuality {
	case "LOW", "MEDIUM", "HIGH":
	default:
		return nil, fmt.Errorf("invalid REQUIRED_QUALITY %q", cfg.RequiredQuality)
	}
	if cfg.RetryBaseDelay > cfg.RetryMaxDelay {
		return nil, errors.New("RETRY_BASE_DELAY exceeds RETRY_MAX_DELAY")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.ExportEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("EXPORT_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("EXPORT_ENABLED is true but KAFKA_TOPIC is empty")
		}
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseInt(key string, def, minVal, maxVal int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minVal || n > maxVal {
		return 0, fmt.Errorf("invalid %s: %q (want %d..%d)", key, s, minVal, maxVal)
	}
	return n, nil
}

func parseFloat(key string, def, minVal, maxVal float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < minVal || f > maxVal {
		return 0, fmt.Errorf("invalid %s: %q (want %g..%g)", key, s, minVal, maxVal)
	}
	return f, nil
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
