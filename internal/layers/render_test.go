package layers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/geotiff"
)

// stubFetcher serves rasters from memory, recording how often each URL is hit.
type stubFetcher struct {
	rasters map[string][]byte
	hits    map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{rasters: map[string][]byte{}, hits: map[string]int{}}
}

func (f *stubFetcher) add(t *testing.T, url string, bands [][]float64, w, h int, st geotiff.SampleType) {
	t.Helper()
	nodata := float64(domain.NoDataSentinel)
	buf, err := geotiff.Encode(bands, w, h, geotiff.EncodeOptions{
		EPSG:       4326,
		OriginX:    8.0,
		OriginY:    50.0,
		ScaleX:     0.001,
		ScaleY:     0.001,
		SampleType: st,
		NoData:     &nodata,
	})
	require.NoError(t, err)
	f.rasters[url] = buf
}

func (f *stubFetcher) FetchRaster(_ context.Context, url string) ([]byte, error) {
	f.hits[url]++
	buf, ok := f.rasters[url]
	if !ok {
		return nil, errors.New("no such raster")
	}
	return buf, nil
}

func alphaAt(img image.Image, x, y int) uint32 {
	_, _, _, a := img.At(x, y).RGBA()
	return a
}

func TestBuild_MaskLayer(t *testing.T) {
	fetch := newStubFetcher()
	fetch.add(t, "mask", [][]float64{{1, 0, 1, domain.NoDataSentinel}}, 2, 2, geotiff.SampleUint8)

	layer, err := Build(context.Background(), KindMask, Sources{MaskURL: "mask"}, fetch)
	require.NoError(t, err)
	assert.Equal(t, KindMask, layer.Kind)
	assert.InDelta(t, 50.0, layer.Bounds.North, 1e-9)

	frames, err := layer.Render(RenderOptions{})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	// Roof pixels take the second palette color, background the first,
	// sentinel stays transparent.
	assert.NotZero(t, alphaAt(frames[0], 0, 0))
	assert.NotZero(t, alphaAt(frames[0], 1, 0))
	assert.Zero(t, alphaAt(frames[0], 1, 1))
}

func TestBuild_MissingSourceIsDataUnavailable(t *testing.T) {
	fetch := newStubFetcher()

	_, err := Build(context.Background(), KindAnnualFlux, Sources{}, fetch)
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestBuild_MismatchedMaskDimensions(t *testing.T) {
	fetch := newStubFetcher()
	fetch.add(t, "flux", [][]float64{{900, 1200, 400, 1700}}, 2, 2, geotiff.SampleFloat32)
	fetch.add(t, "mask", [][]float64{{1, 0, 1, 0, 1, 0}}, 3, 2, geotiff.SampleUint8)

	_, err := Build(context.Background(), KindAnnualFlux, Sources{AnnualFluxURL: "flux", MaskURL: "mask"}, fetch)
	require.ErrorIs(t, err, domain.ErrRender)
}

func TestRender_AnnualFluxRoofOnly(t *testing.T) {
	fetch := newStubFetcher()
	fetch.add(t, "flux", [][]float64{{900, 1200, domain.NoDataSentinel, 1700}}, 2, 2, geotiff.SampleFloat32)
	fetch.add(t, "mask", [][]float64{{1, 0, 1, 1}}, 2, 2, geotiff.SampleUint8)

	layer, err := Build(context.Background(), KindAnnualFlux, Sources{AnnualFluxURL: "flux", MaskURL: "mask"}, fetch)
	require.NoError(t, err)

	// Full render: everything except the sentinel is colored.
	frames, err := layer.Render(RenderOptions{})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.NotZero(t, alphaAt(frames[0], 0, 0))
	assert.NotZero(t, alphaAt(frames[0], 1, 0))
	assert.Zero(t, alphaAt(frames[0], 0, 1), "sentinel must never be colored")

	// Roof-only: the off-roof pixel goes transparent too.
	frames, err = layer.Render(RenderOptions{RoofOnly: true})
	require.NoError(t, err)
	assert.NotZero(t, alphaAt(frames[0], 0, 0))
	assert.Zero(t, alphaAt(frames[0], 1, 0))
	assert.Zero(t, alphaAt(frames[0], 0, 1))
}

func TestRender_MonthlyFluxAlwaysTwelveFrames(t *testing.T) {
	fetch := newStubFetcher()
	bands := make([][]float64, 12)
	for m := range bands {
		bands[m] = []float64{float64(m * 10), float64(m * 15), 50, 180}
	}
	fetch.add(t, "monthly", bands, 2, 2, geotiff.SampleFloat32)
	fetch.add(t, "mask", [][]float64{{1, 1, 0, 1}}, 2, 2, geotiff.SampleUint8)

	layer, err := Build(context.Background(), KindMonthlyFlux, Sources{MonthlyFluxURL: "monthly", MaskURL: "mask"}, fetch)
	require.NoError(t, err)

	// Whichever month is on display, all twelve frames come back.
	for _, month := range []int{0, 5, 11} {
		frames, err := layer.Render(RenderOptions{Month: month})
		require.NoError(t, err)
		assert.Len(t, frames, 12)
	}
}

func TestRender_HourlyShadeBits(t *testing.T) {
	fetch := newStubFetcher()
	fetch.add(t, "mask", [][]float64{{1, 1, 1, 0}}, 2, 2, geotiff.SampleUint8)

	// Month 6 (July): pixel 0 is sunny on day 15 at hour 0 only; pixel 1 is
	// never sunny; pixel 2 is the sentinel.
	day15 := float64(int32(1) << 14)
	for m := 0; m < 12; m++ {
		bands := make([][]float64, 24)
		for h := range bands {
			if m == 6 && h == 0 {
				bands[h] = []float64{day15, 0, domain.NoDataSentinel, day15}
			} else {
				bands[h] = []float64{0, 0, domain.NoDataSentinel, 0}
			}
		}
		fetch.add(t, fmt.Sprintf("shade-%d", m), bands, 2, 2, geotiff.SampleInt32)
	}

	urls := make([]string, 12)
	for m := range urls {
		urls[m] = fmt.Sprintf("shade-%d", m)
	}

	layer, err := Build(context.Background(), KindHourlyShade, Sources{MaskURL: "mask", HourlyShadeURLs: urls}, fetch)
	require.NoError(t, err)

	frames, err := layer.Render(RenderOptions{Month: 6, Day: 15})
	require.NoError(t, err)
	require.Len(t, frames, 24)

	sunny := layer.Palette.Colors[len(layer.Palette.Colors)-1]
	shaded := layer.Palette.Colors[0]

	r, g, b, a := frames[0].At(0, 0).RGBA()
	assert.Equal(t, uint32(0xFFFF), a)
	assert.Equal(t, uint32(sunny.R)*0x101, r)
	assert.Equal(t, uint32(sunny.G)*0x101, g)
	assert.Equal(t, uint32(sunny.B)*0x101, b)

	r, _, _, a = frames[0].At(1, 0).RGBA()
	assert.Equal(t, uint32(0xFFFF), a)
	assert.Equal(t, uint32(shaded.R)*0x101, r)

	// Sentinel pixels stay transparent in every hour frame.
	for h := 0; h < 24; h++ {
		assert.Zero(t, alphaAt(frames[h], 0, 1), "hour %d", h)
	}

	// A different day has no bit set for pixel 0.
	frames, err = layer.Render(RenderOptions{Month: 6, Day: 16})
	require.NoError(t, err)
	r, _, _, _ = frames[0].At(0, 0).RGBA()
	assert.Equal(t, uint32(shaded.R)*0x101, r)

	// Roof-only blanks the off-roof pixel even when it is sunny.
	frames, err = layer.Render(RenderOptions{Month: 6, Day: 15, RoofOnly: true})
	require.NoError(t, err)
	assert.Zero(t, alphaAt(frames[0], 1, 1))
}

func TestRender_HourlyShadeRangeChecks(t *testing.T) {
	layer := &Layer{Kind: KindHourlyShade}

	_, err := layer.Render(RenderOptions{Month: 12, Day: 1})
	require.ErrorIs(t, err, domain.ErrRender)

	_, err = layer.Render(RenderOptions{Month: 0, Day: 0})
	require.ErrorIs(t, err, domain.ErrRender)

	_, err = layer.Render(RenderOptions{Month: 0, Day: 32})
	require.ErrorIs(t, err, domain.ErrRender)
}

func TestRender_RGBDirect(t *testing.T) {
	fetch := newStubFetcher()
	fetch.add(t, "rgb", [][]float64{
		{255, 0, 0, 10},
		{0, 255, 0, 20},
		{0, 0, 255, 30},
	}, 2, 2, geotiff.SampleUint8)

	layer, err := Build(context.Background(), KindRGB, Sources{RGBURL: "rgb"}, fetch)
	require.NoError(t, err)

	frames, err := layer.Render(RenderOptions{})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	r, g, b, a := frames[0].At(0, 0).RGBA()
	assert.Equal(t, uint32(0xFFFF), r)
	assert.Zero(t, g)
	assert.Zero(t, b)
	assert.Equal(t, uint32(0xFFFF), a)
}

func TestRender_DSMStretchesToValidRange(t *testing.T) {
	fetch := newStubFetcher()
	fetch.add(t, "dsm", [][]float64{{100, 150, 200, domain.NoDataSentinel}}, 2, 2, geotiff.SampleFloat32)

	layer, err := Build(context.Background(), KindDSM, Sources{DSMURL: "dsm"}, fetch)
	require.NoError(t, err)

	// The sentinel is excluded from the stretch, not treated as -9999m.
	assert.Equal(t, 100.0, layer.Palette.Min)
	assert.Equal(t, 200.0, layer.Palette.Max)

	frames, err := layer.Render(RenderOptions{})
	require.NoError(t, err)
	assert.Zero(t, alphaAt(frames[0], 1, 1))
}

func TestPalette_At(t *testing.T) {
	p := Palette{Colors: parseColors(ironColors), Min: 0, Max: 100}

	assert.Equal(t, p.Colors[0], p.At(-50), "clamps below the domain")
	assert.Equal(t, p.Colors[0], p.At(0))
	assert.Equal(t, p.Colors[2], p.At(50))
	assert.Equal(t, p.Colors[4], p.At(100))
	assert.Equal(t, p.Colors[4], p.At(900), "clamps above the domain")
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("thermal")
	require.Error(t, err)
}
