// Package layers turns decoded geocoded rasters into displayable map
// overlay images: one raster image per time slice, color-mapped through a
// palette, with "no data" pixels left transparent.
package layers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/geotiff"
)

// Kind identifies the semantic layer being rendered. The render path
// switches exhaustively over these; adding a kind without teaching Render
// about it is a compile-visible change, not a silent fallthrough.
type Kind string

const (
	KindMask        Kind = "mask"
	KindDSM         Kind = "dsm"
	KindRGB         Kind = "rgb"
	KindAnnualFlux  Kind = "annualFlux"
	KindMonthlyFlux Kind = "monthlyFlux"
	KindHourlyShade Kind = "hourlyShade"
)

// Kinds lists every layer kind in display order.
var Kinds = []Kind{KindMask, KindDSM, KindRGB, KindAnnualFlux, KindMonthlyFlux, KindHourlyShade}

// ParseKind validates a layer kind string.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown layer kind %q", s)
}

// FrameCount returns how many time-slice images the kind renders.
func (k Kind) FrameCount() int {
	switch k {
	case KindMonthlyFlux:
		return 12
	case KindHourlyShade:
		return 24
	default:
		return 1
	}
}

// Sources holds the per-kind raster URLs from a data-layers API response.
type Sources struct {
	MaskURL         string
	DSMURL          string
	RGBURL          string
	AnnualFluxURL   string
	MonthlyFluxURL  string
	HourlyShadeURLs []string
}

// RasterFetcher downloads one raster buffer. The solar API client satisfies
// this; tests substitute a stub.
type RasterFetcher interface {
	FetchRaster(ctx context.Context, url string) ([]byte, error)
}

// DurationObserver records elapsed seconds for one decode. Prometheus
// histograms satisfy it.
type DurationObserver interface {
	Observe(float64)
}

// Layer wraps the decoded rasters for one kind at one location. Built once
// per (location, kind) pair and never mutated; re-rendering with different
// options produces new images, not an edit of the layer.
type Layer struct {
	Kind    Kind
	Bounds  domain.Bounds
	Palette Palette

	// data holds the layer's rasters: a single element for most kinds,
	// twelve (one per month) for hourly shade.
	data []*geotiff.Raster
	// mask is the roof mask raster for kinds that support roof-only
	// rendering; nil otherwise.
	mask *geotiff.Raster
}

// Build downloads and decodes every raster source a kind needs, concurrently,
// and assembles the Layer. No partial layers: a single failed source fails
// the build. Missing URLs mean the API has no coverage at this location and
// fail with domain.ErrDataUnavailable; sources whose dimensions disagree
// fail with domain.ErrRender. An optional observer receives per-raster
// decode durations.
func Build(ctx context.Context, kind Kind, sources Sources, fetch RasterFetcher, obs ...DurationObserver) (*Layer, error) {
	var o DurationObserver
	if len(obs) > 0 {
		o = obs[0]
	}

	switch kind {
	case KindMask:
		data, err := fetchOne(ctx, fetch, sources.MaskURL, o)
		if err != nil {
			return nil, err
		}
		return &Layer{Kind: kind, Bounds: data.Bounds, Palette: maskPalette(), data: []*geotiff.Raster{data}}, nil

	case KindDSM:
		data, err := fetchOne(ctx, fetch, sources.DSMURL, o)
		if err != nil {
			return nil, err
		}
		low, high := validRange(data.Bands[0], data.NoData)
		return &Layer{Kind: kind, Bounds: data.Bounds, Palette: dsmPalette(low, high), data: []*geotiff.Raster{data}}, nil

	case KindRGB:
		data, err := fetchOne(ctx, fetch, sources.RGBURL, o)
		if err != nil {
			return nil, err
		}
		if len(data.Bands) < 3 {
			return nil, fmt.Errorf("%w: rgb layer has %d bands", domain.ErrRender, len(data.Bands))
		}
		return &Layer{Kind: kind, Bounds: data.Bounds, data: []*geotiff.Raster{data}}, nil

	case KindAnnualFlux:
		data, mask, err := fetchWithMask(ctx, fetch, sources.AnnualFluxURL, sources.MaskURL, o)
		if err != nil {
			return nil, err
		}
		return &Layer{Kind: kind, Bounds: data.Bounds, Palette: annualFluxPalette(), data: []*geotiff.Raster{data}, mask: mask}, nil

	case KindMonthlyFlux:
		data, mask, err := fetchWithMask(ctx, fetch, sources.MonthlyFluxURL, sources.MaskURL, o)
		if err != nil {
			return nil, err
		}
		if len(data.Bands) != 12 {
			return nil, fmt.Errorf("%w: monthly flux has %d bands, want 12", domain.ErrRender, len(data.Bands))
		}
		return &Layer{Kind: kind, Bounds: data.Bounds, Palette: monthlyFluxPalette(), data: []*geotiff.Raster{data}, mask: mask}, nil

	case KindHourlyShade:
		return buildHourlyShade(ctx, sources, fetch, o)

	default:
		return nil, fmt.Errorf("unknown layer kind %q", kind)
	}
}

// buildHourlyShade downloads the mask and all twelve monthly shade rasters
// in parallel; the layer is only usable once every month has arrived.
func buildHourlyShade(ctx context.Context, sources Sources, fetch RasterFetcher, o DurationObserver) (*Layer, error) {
	if len(sources.HourlyShadeURLs) != 12 {
		return nil, fmt.Errorf("%w: %d hourly shade sources", domain.ErrDataUnavailable, len(sources.HourlyShadeURLs))
	}

	months := make([]*geotiff.Raster, 12)
	var mask *geotiff.Raster

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mask, err = fetchOne(gctx, fetch, sources.MaskURL, o)
		return err
	})
	for i := range sources.HourlyShadeURLs {
		g.Go(func() error {
			r, err := fetchOne(gctx, fetch, sources.HourlyShadeURLs[i], o)
			if err != nil {
				return err
			}
			if len(r.Bands) != 24 {
				return fmt.Errorf("%w: shade month %d has %d bands, want 24", domain.ErrRender, i, len(r.Bands))
			}
			months[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, m := range months {
		if m.Width != mask.Width || m.Height != mask.Height {
			return nil, fmt.Errorf("%w: shade month %d is %dx%d, mask is %dx%d",
				domain.ErrRender, i, m.Width, m.Height, mask.Width, mask.Height)
		}
	}

	return &Layer{
		Kind:    KindHourlyShade,
		Bounds:  months[0].Bounds,
		Palette: hourlyShadePalette(),
		data:    months,
		mask:    mask,
	}, nil
}

func fetchOne(ctx context.Context, fetch RasterFetcher, url string, o DurationObserver) (*geotiff.Raster, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: layer source missing", domain.ErrDataUnavailable)
	}
	buf, err := fetch.FetchRaster(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch raster: %w", err)
	}

	start := time.Now()
	r, err := geotiff.Decode(buf)
	if o != nil {
		o.Observe(time.Since(start).Seconds())
	}
	return r, err
}

// fetchWithMask downloads a data raster and the roof mask concurrently and
// verifies they share dimensions.
func fetchWithMask(ctx context.Context, fetch RasterFetcher, dataURL, maskURL string, o DurationObserver) (*geotiff.Raster, *geotiff.Raster, error) {
	var data, mask *geotiff.Raster

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data, err = fetchOne(gctx, fetch, dataURL, o)
		return err
	})
	g.Go(func() error {
		var err error
		mask, err = fetchOne(gctx, fetch, maskURL, o)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if data.Width != mask.Width || data.Height != mask.Height {
		return nil, nil, fmt.Errorf("%w: data is %dx%d, mask is %dx%d",
			domain.ErrRender, data.Width, data.Height, mask.Width, mask.Height)
	}
	return data, mask, nil
}

// validRange scans a band for its min/max over non-sentinel pixels.
func validRange(band []float64, noData float64) (low, high float64) {
	first := true
	for _, v := range band {
		if v == noData {
			continue
		}
		if first {
			low, high = v, v
			first = false
			continue
		}
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}
	return low, high
}
