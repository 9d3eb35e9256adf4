package solarapi

import (
	"context"
	"fmt"

	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/lru"
	"github.com/helioscope/solar-potential/internal/observability"
)

// CachedClient wraps an API with in-memory LRU memoization. Only successful
// responses are cached, so a failed lookup is retried on the next call, and
// Invalidate gives an explicit user retry a way past a cached success.
type CachedClient struct {
	inner    API
	insights *lru.Cache[domain.BuildingInsights]
	manifest *lru.Cache[DataLayers]
	rasters  *lru.Cache[[]byte]
	metrics  *observability.Metrics
}

// NewCachedClient creates a memoizing decorator around a solar API client.
// metadataEntries sizes the insights and manifest caches, rasterEntries the
// raster buffer cache.
func NewCachedClient(inner API, metadataEntries, rasterEntries int, metrics *observability.Metrics) *CachedClient {
	return &CachedClient{
		inner:    inner,
		insights: lru.New[domain.BuildingInsights](metadataEntries),
		manifest: lru.New[DataLayers](metadataEntries),
		rasters:  lru.New[[]byte](rasterEntries),
		metrics:  metrics,
	}
}

func (c *CachedClient) BuildingInsights(ctx context.Context, loc domain.LatLng) (domain.BuildingInsights, error) {
	key := locationKey(loc)
	if v, ok := c.insights.Get(key); ok {
		c.metrics.SolarCache.WithLabelValues("insights", "hit").Inc()
		return v, nil
	}
	c.metrics.SolarCache.WithLabelValues("insights", "miss").Inc()

	v, err := c.inner.BuildingInsights(ctx, loc)
	if err != nil {
		return v, err
	}
	c.insights.Put(key, v)
	return v, nil
}

func (c *CachedClient) DataLayers(ctx context.Context, loc domain.LatLng, radiusMeters float64) (DataLayers, error) {
	key := fmt.Sprintf("%s|%g", locationKey(loc), radiusMeters)
	if v, ok := c.manifest.Get(key); ok {
		c.metrics.SolarCache.WithLabelValues("layers", "hit").Inc()
		return v, nil
	}
	c.metrics.SolarCache.WithLabelValues("layers", "miss").Inc()

	v, err := c.inner.DataLayers(ctx, loc, radiusMeters)
	if err != nil {
		return v, err
	}
	c.manifest.Put(key, v)
	return v, nil
}

func (c *CachedClient) FetchRaster(ctx context.Context, rasterURL string) ([]byte, error) {
	if v, ok := c.rasters.Get(rasterURL); ok {
		c.metrics.SolarCache.WithLabelValues("raster", "hit").Inc()
		return v, nil
	}
	c.metrics.SolarCache.WithLabelValues("raster", "miss").Inc()

	v, err := c.inner.FetchRaster(ctx, rasterURL)
	if err != nil {
		return nil, err
	}
	c.rasters.Put(rasterURL, v)
	return v, nil
}

// Invalidate drops the cached insights and manifests for one location. The
// raster cache is left alone: its URLs are content-addressed by the upstream
// manifest, so stale entries age out on their own.
func (c *CachedClient) Invalidate(loc domain.LatLng) {
	prefix := locationKey(loc)
	c.insights.DeletePrefix(prefix)
	c.manifest.DeletePrefix(prefix)
	c.metrics.SolarCache.WithLabelValues("insights", "bypass").Inc()
}

func locationKey(loc domain.LatLng) string {
	return fmt.Sprintf("%.6f,%.6f", loc.Lat, loc.Lng)
}
