// Package solarapi is the HTTP client for the building-insights and
// data-layers endpoints of the upstream solar coverage API, plus the raster
// downloads they point at. All outgoing requests share one dispatch queue
// and the 429/503 retry policy.
package solarapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/helioscope/solar-potential/internal/config"
	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/layers"
	"github.com/helioscope/solar-potential/internal/observability"
)

// API is the surface the rest of the service consumes. CachedClient wraps a
// Client with memoization; both satisfy this.
type API interface {
	BuildingInsights(ctx context.Context, loc domain.LatLng) (domain.BuildingInsights, error)
	DataLayers(ctx context.Context, loc domain.LatLng, radiusMeters float64) (DataLayers, error)
	FetchRaster(ctx context.Context, rasterURL string) ([]byte, error)
}

// DataLayers is the per-location raster manifest: one URL per layer kind
// plus the imagery metadata the UI surfaces alongside the overlays.
type DataLayers struct {
	ImageryQuality string
	ImageryDate    domain.Date
	Sources        layers.Sources
}

// Client calls the solar API over HTTP.
type Client struct {
	apiKey          string
	baseURL         string
	requiredQuality string
	httpClient      *http.Client
	logger          *slog.Logger
	metrics         *observability.Metrics
	clock           clockwork.Clock

	limiter     *limiter
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
}

// NewClient creates a solar API client from the service configuration.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	clock := clockwork.NewRealClock()
	return &Client{
		apiKey:          cfg.SolarAPIKey,
		baseURL:         cfg.SolarBaseURL,
		requiredQuality: cfg.RequiredQuality,
		httpClient:      &http.Client{Timeout: cfg.SolarTimeout},
		logger:          logger,
		metrics:         metrics,
		clock:           clock,
		limiter:         newLimiter(clock, cfg.RequestInterval),
		baseDelay:       cfg.RetryBaseDelay,
		maxDelay:        cfg.RetryMaxDelay,
		maxAttempts:     cfg.RetryMaxAttempts,
	}
}

// BuildingInsights fetches the closest building's solar metadata.
func (c *Client) BuildingInsights(ctx context.Context, loc domain.LatLng) (domain.BuildingInsights, error) {
	params := url.Values{
		"location":        {fmt.Sprintf("%.6f,%.6f", loc.Lat, loc.Lng)},
		"requiredQuality": {c.requiredQuality},
		"key":             {c.apiKey},
	}
	body, err := c.do(ctx, "insights", c.baseURL+"/buildingInsights?"+params.Encode())
	if err != nil {
		return domain.BuildingInsights{}, err
	}

	var insights domain.BuildingInsights
	if err := json.Unmarshal(body, &insights); err != nil {
		return domain.BuildingInsights{}, fmt.Errorf("decode building insights: %w", err)
	}
	if len(insights.SolarPotential.SolarPanelConfigs) == 0 {
		return domain.BuildingInsights{}, fmt.Errorf("building %q: %w", insights.Name, domain.ErrNoConfigurations)
	}
	return insights, nil
}

// DataLayers fetches the raster manifest covering a radius around a location.
func (c *Client) DataLayers(ctx context.Context, loc domain.LatLng, radiusMeters float64) (DataLayers, error) {
	params := url.Values{
		"location": {fmt.Sprintf("%.6f,%.6f", loc.Lat, loc.Lng)},
		"radius":   {fmt.Sprintf("%g", radiusMeters)},
		"key":      {c.apiKey},
	}
	body, err := c.do(ctx, "layers", c.baseURL+"/dataLayers?"+params.Encode())
	if err != nil {
		return DataLayers{}, err
	}

	var resp dataLayersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return DataLayers{}, fmt.Errorf("decode data layers: %w", err)
	}
	return DataLayers{
		ImageryQuality: resp.ImageryQuality,
		ImageryDate:    resp.ImageryDate,
		Sources: layers.Sources{
			MaskURL:         resp.MaskURL,
			DSMURL:          resp.DSMURL,
			RGBURL:          resp.RGBURL,
			AnnualFluxURL:   resp.AnnualFluxURL,
			MonthlyFluxURL:  resp.MonthlyFluxURL,
			HourlyShadeURLs: resp.HourlyShadeURLs,
		},
	}, nil
}

// FetchRaster downloads one raster buffer, appending the API key. Satisfies
// layers.RasterFetcher.
func (c *Client) FetchRaster(ctx context.Context, rasterURL string) ([]byte, error) {
	u, err := url.Parse(rasterURL)
	if err != nil {
		return nil, fmt.Errorf("raster url: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	return c.do(ctx, "raster", u.String())
}

// do issues one GET with rate limiting and the shared retry policy: 429 and
// 503 responses back off and retry up to the attempt cap, every other
// non-200 status surfaces immediately as a structured domain.APIError.
func (c *Client) do(ctx context.Context, endpoint, fullURL string) ([]byte, error) {
	delay := c.baseDelay
	for attempt := 1; ; attempt++ {
		waited, err := c.limiter.wait(ctx)
		if err != nil {
			return nil, err
		}
		c.metrics.RateLimitWait.Observe(waited.Seconds())

		body, retryable, err := c.doOnce(ctx, endpoint, fullURL)
		if err == nil {
			c.metrics.SolarRequests.WithLabelValues(endpoint, "success").Inc()
			return body, nil
		}
		if !retryable || attempt >= c.maxAttempts {
			c.metrics.SolarRequests.WithLabelValues(endpoint, "error").Inc()
			return nil, err
		}

		c.metrics.SolarRetries.WithLabelValues(endpoint).Inc()
		sleep := jitter(delay)
		c.logger.Warn("solar api retry",
			"endpoint", endpoint, "attempt", attempt, "delay", sleep, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(sleep):
		}
		delay = nextDelay(delay, c.maxDelay)
	}
}

// doOnce performs a single HTTP round trip. retryable is true only for the
// transient 429/503 statuses.
func (c *Client) doOnce(ctx context.Context, endpoint, fullURL string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.SolarDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%s response body: %w", endpoint, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return raw, false, nil
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return nil, true, apiError(resp.StatusCode, raw)
	case http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: %s", domain.ErrDataUnavailable, apiError(resp.StatusCode, raw))
	default:
		return nil, false, apiError(resp.StatusCode, raw)
	}
}

// apiError parses the upstream {"error": {code, message, status}} payload,
// falling back to the raw body when it is not in that shape.
func apiError(statusCode int, body []byte) *domain.APIError {
	var wrapper struct {
		Error domain.APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Code != 0 {
		return &wrapper.Error
	}
	return &domain.APIError{
		Code:    statusCode,
		Message: string(body),
		Status:  http.StatusText(statusCode),
	}
}

// jitter randomizes a delay to between 50% and 100% of its nominal value so
// concurrent retries spread out.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func nextDelay(current, maxDelay time.Duration) time.Duration {
	next := current * 2
	if next > maxDelay {
		return maxDelay
	}
	return next
}

// Solar API response types.

type dataLayersResponse struct {
	ImageryQuality  string      `json:"imageryQuality"`
	ImageryDate     domain.Date `json:"imageryDate"`
	MaskURL         string      `json:"maskUrl"`
	DSMURL          string      `json:"dsmUrl"`
	RGBURL          string      `json:"rgbUrl"`
	AnnualFluxURL   string      `json:"annualFluxUrl"`
	MonthlyFluxURL  string      `json:"monthlyFluxUrl"`
	HourlyShadeURLs []string    `json:"hourlyShadeUrls"`
}
