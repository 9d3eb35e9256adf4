package solarapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/observability"
)

const (
	testAPIKey        = "test-key"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	clock := clockwork.NewRealClock()
	return &Client{
		apiKey:          testAPIKey,
		baseURL:         baseURL,
		requiredQuality: "LOW",
		httpClient:      &http.Client{Timeout: 5 * time.Second},
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:         testMetrics(),
		clock:           clock,
		limiter:         newLimiter(clock, 0),
		baseDelay:       time.Millisecond,
		maxDelay:        4 * time.Millisecond,
		maxAttempts:     3,
	}
}

func insightsPayload() map[string]any {
	return map[string]any{
		"name":           "buildings/abc123",
		"center":         map[string]float64{"latitude": 37.4449, "longitude": -122.1394},
		"imageryQuality": "HIGH",
		"imageryDate":    map[string]int{"year": 2024, "month": 6, "day": 1},
		"solarPotential": map[string]any{
			"maxArrayPanelsCount": 120,
			"panelCapacityWatts":  400,
			"solarPanelConfigs": []map[string]any{
				{"panelsCount": 4, "yearlyEnergyDcKwh": 2000},
				{"panelsCount": 8, "yearlyEnergyDcKwh": 3900},
			},
		},
	}
}

func TestClient_BuildingInsights_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/buildingInsights", r.URL.Path)
		assert.Equal(t, "37.444900,-122.139400", r.URL.Query().Get("location"))
		assert.Equal(t, "LOW", r.URL.Query().Get("requiredQuality"))
		assert.Equal(t, testAPIKey, r.URL.Query().Get("key"))

		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(insightsPayload()))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	insights, err := c.BuildingInsights(context.Background(), domain.LatLng{Lat: 37.4449, Lng: -122.1394})
	require.NoError(t, err)

	assert.Equal(t, "buildings/abc123", insights.Name)
	assert.Equal(t, "HIGH", insights.ImageryQuality)
	assert.Equal(t, 400.0, insights.SolarPotential.PanelCapacityWatts)
	require.Len(t, insights.SolarPotential.SolarPanelConfigs, 2)
	assert.Equal(t, 3900.0, insights.SolarPotential.SolarPanelConfigs[1].YearlyEnergyDcKwh)
}

func TestClient_BuildingInsights_NoConfigs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		payload := insightsPayload()
		payload["solarPotential"] = map[string]any{"solarPanelConfigs": []any{}}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.BuildingInsights(context.Background(), domain.LatLng{Lat: 37.4449, Lng: -122.1394})
	require.ErrorIs(t, err, domain.ErrNoConfigurations)
}

func TestClient_RetriesTransientStatuses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Header().Set(headerContentType, contentTypeJSON)
			require.NoError(t, json.NewEncoder(w).Encode(insightsPayload()))
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.BuildingInsights(context.Background(), domain.LatLng{Lat: 37.4449, Lng: -122.1394})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.BuildingInsights(context.Background(), domain.LatLng{Lat: 37.4449, Lng: -122.1394})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "stops at the attempt cap")
}

func TestClient_NonTransientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid location","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.BuildingInsights(context.Background(), domain.LatLng{Lat: 91, Lng: 0})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.Equal(t, "Invalid location", apiErr.Message)
	assert.Equal(t, "INVALID_ARGUMENT", apiErr.Status)
}

func TestClient_NotFoundIsDataUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.BuildingInsights(context.Background(), domain.LatLng{Lat: 0, Lng: 0})
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestClient_DataLayers_Success(t *testing.T) {
	shadeURLs := make([]string, 12)
	for i := range shadeURLs {
		shadeURLs[i] = "https://example.com/shade" + string(rune('A'+i))
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dataLayers", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("radius"))

		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"imageryQuality":  "MEDIUM",
			"imageryDate":     map[string]int{"year": 2023, "month": 8, "day": 15},
			"maskUrl":         "https://example.com/mask",
			"dsmUrl":          "https://example.com/dsm",
			"rgbUrl":          "https://example.com/rgb",
			"annualFluxUrl":   "https://example.com/annual",
			"monthlyFluxUrl":  "https://example.com/monthly",
			"hourlyShadeUrls": shadeURLs,
		}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	manifest, err := c.DataLayers(context.Background(), domain.LatLng{Lat: 37.4449, Lng: -122.1394}, 50)
	require.NoError(t, err)

	assert.Equal(t, "MEDIUM", manifest.ImageryQuality)
	assert.Equal(t, 2023, manifest.ImageryDate.Year)
	assert.Equal(t, "https://example.com/mask", manifest.Sources.MaskURL)
	assert.Equal(t, "https://example.com/monthly", manifest.Sources.MonthlyFluxURL)
	assert.Len(t, manifest.Sources.HourlyShadeURLs, 12)
}

func TestClient_FetchRaster_AppendsKey(t *testing.T) {
	payload := []byte{0x49, 0x49, 0x2A, 0x00}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAPIKey, r.URL.Query().Get("key"))
		assert.Equal(t, "abc", r.URL.Query().Get("id"))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	buf, err := c.FetchRaster(context.Background(), srv.URL+"/raster?id=abc")
	require.NoError(t, err)
	assert.Equal(t, payload, buf)
}

func TestLimiter_SpacesDispatches(t *testing.T) {
	interval := 20 * time.Millisecond
	l := newLimiter(clockwork.NewRealClock(), interval)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := l.wait(context.Background())
		require.NoError(t, err)
	}
	// First dispatch is immediate, the next two queue behind it.
	assert.GreaterOrEqual(t, time.Since(start), 2*interval)
}

func TestLimiter_QueuedWaitIsCancelable(t *testing.T) {
	l := newLimiter(clockwork.NewRealClock(), time.Hour)
	_, err := l.wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLimiter_ZeroIntervalNeverBlocks(t *testing.T) {
	l := newLimiter(clockwork.NewRealClock(), 0)
	for i := 0; i < 100; i++ {
		d, err := l.wait(context.Background())
		require.NoError(t, err)
		assert.Zero(t, d)
	}
}
