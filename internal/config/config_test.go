package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey      = "AIza-test-key"
	testMapboxToken = "pk.test-token"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SOLAR_API_KEY", testAPIKey)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, testAPIKey, cfg.SolarAPIKey)
	assert.Equal(t, "https://solar.googleapis.com/v1", cfg.SolarBaseURL)
	assert.Equal(t, 30*time.Second, cfg.SolarTimeout)
	assert.Equal(t, "LOW", cfg.RequiredQuality)
	assert.Equal(t, 50.0, cfg.LayerRadiusMeters)

	assert.Equal(t, 200*time.Millisecond, cfg.RequestInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 8*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 4, cfg.RetryMaxAttempts)
	assert.Equal(t, 100, cfg.InsightsCacheSize)
	assert.Equal(t, 50, cfg.RasterCacheSize)

	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)

	assert.Equal(t, 300.0, cfg.DefaultMonthlyBill)
	assert.Equal(t, 0.31, cfg.DefaultEnergyCostPerKwh)
	assert.Equal(t, 400.0, cfg.DefaultPanelCapacityWatts)

	assert.False(t, cfg.ExportEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "solar-estimates", cfg.KafkaTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("SOLAR_API_KEY", testAPIKey)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("SOLAR_BASE_URL", "http://localhost:9999/v1")
	t.Setenv("SOLAR_TIMEOUT", "10s")
	t.Setenv("REQUIRED_QUALITY", "HIGH")
	t.Setenv("LAYER_RADIUS_METERS", "100")
	t.Setenv("REQUEST_INTERVAL", "50ms")
	t.Setenv("RETRY_BASE_DELAY", "1s")
	t.Setenv("RETRY_MAX_DELAY", "16s")
	t.Setenv("RETRY_MAX_ATTEMPTS", "6")
	t.Setenv("INSIGHTS_CACHE_SIZE", "10")
	t.Setenv("RASTER_CACHE_SIZE", "20")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("DEFAULT_MONTHLY_BILL", "150")
	t.Setenv("EXPORT_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "estimates")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://localhost:9999/v1", cfg.SolarBaseURL)
	assert.Equal(t, 10*time.Second, cfg.SolarTimeout)
	assert.Equal(t, "HIGH", cfg.RequiredQuality)
	assert.Equal(t, 100.0, cfg.LayerRadiusMeters)
	assert.Equal(t, 50*time.Millisecond, cfg.RequestInterval)
	assert.Equal(t, 1*time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 16*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 6, cfg.RetryMaxAttempts)
	assert.Equal(t, 10, cfg.InsightsCacheSize)
	assert.Equal(t, 20, cfg.RasterCacheSize)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.Equal(t, 150.0, cfg.DefaultMonthlyBill)
	assert.True(t, cfg.ExportEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "estimates", cfg.KafkaTopic)
}

func TestLoad_MissingAPIKey(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOLAR_API_KEY")
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SOLAR_API_KEY", testAPIKey)
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeRequestInterval(t *testing.T) {
	t.Setenv("SOLAR_API_KEY", testAPIKey)
	t.Setenv("REQUEST_INTERVAL", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_INTERVAL")
}

func TestLoad_InvalidQuality(t *testing.T) {
	t.Setenv("SOLAR_API_KEY", testAPIKey)
	t.Setenv("REQUIRED_QUALITY", "ULTRA")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUIRED_QUALITY")
}

func TestLoad_RetryDelaysInverted(t *testing.T) {
	t.Setenv("SOLAR_API_KEY", testAPIKey)
	t.Setenv("RETRY_BASE_DELAY", "10s")
	t.Setenv("RETRY_MAX_DELAY", "1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_BASE_DELAY")
}

func TestLoad_InvalidRetryAttempts(t *testing.T) {
	t.Setenv("SOLAR_API_KEY", testAPIKey)
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_MAX_ATTEMPTS")
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("SOLAR_API_KEY", testAPIKey)
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxTokenImpliesEnabled(t *testing.T) {
	t.Setenv("SOLAR_API_KEY", testAPIKey)
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("SOLAR_API_KEY", testAPIKey)
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_ExportEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("SOLAR_API_KEY", testAPIKey)
	t.Setenv("EXPORT_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}
