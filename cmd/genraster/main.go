// Command genraster writes a synthetic set of solar data layer GeoTIFFs for
// local development and decoder benchmarks: a roof mask, a surface model, an
// aerial RGB image, annual and monthly flux rasters, and twelve hourly shade
// rasters. The rasters use the same sample formats and nodata sentinel the
// real API serves, so the full decode and render path can run offline.
//
// Usage:
//
//	go run ./cmd/genraster -out testdata/rasters -width 64 -height 64 -seed 7
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/geotiff"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for generated GeoTIFFs")
	width := flag.Int("width", 64, "raster width in pixels")
	height := flag.Int("height", 64, "raster height in pixels")
	seed := flag.Int64("seed", 1, "random seed for reproducible output")
	originLat := flag.Float64("lat", 37.4449, "north edge latitude")
	originLng := flag.Float64("lng", -122.1394, "west edge longitude")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *width <= 0 || *height <= 0 {
		return fmt.Errorf("raster dimensions must be positive")
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	g := generator{
		w:   *width,
		h:   *height,
		rng: rng,
		opts: geotiff.EncodeOptions{
			EPSG:    4326,
			OriginX: *originLng,
			OriginY: *originLat,
			ScaleX:  0.00001,
			ScaleY:  0.00001,
		},
	}

	mask := g.roofMask()

	files := []struct {
		name  string
		bands [][]float64
		st    geotiff.SampleType
	}{
		{"mask.tif", [][]float64{mask}, geotiff.SampleUint8},
		{"dsm.tif", [][]float64{g.surfaceModel(mask)}, geotiff.SampleFloat32},
		{"rgb.tif", g.aerial(mask), geotiff.SampleUint8},
		{"annual_flux.tif", [][]float64{g.flux(mask, 1800)}, geotiff.SampleFloat32},
		{"monthly_flux.tif", g.monthlyFlux(mask), geotiff.SampleFloat32},
	}
	for m := 0; m < 12; m++ {
		files = append(files, struct {
			name  string
			bands [][]float64
			st    geotiff.SampleType
		}{fmt.Sprintf("hourly_shade_%02d.tif", m), g.hourlyShade(mask), geotiff.SampleInt32})
	}

	for _, f := range files {
		opts := g.opts
		opts.SampleType = f.st
		if f.st != geotiff.SampleUint8 {
			nodata := float64(domain.NoDataSentinel)
			opts.NoData = &nodata
		}
		buf, err := geotiff.Encode(f.bands, g.w, g.h, opts)
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.name, err)
		}
		path := filepath.Join(*out, f.name)
		if err := os.WriteFile(path, buf, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
		log.Printf("wrote %s (%d bands, %dx%d, %d bytes)", path, len(f.bands), g.w, g.h, len(buf))
	}
	return nil
}

type generator struct {
	w, h int
	rng  *rand.Rand
	opts geotiff.EncodeOptions
}

// roofMask carves an elliptical "roof" out of the frame center.
func (g *generator) roofMask() []float64 {
	mask := make([]float64, g.w*g.h)
	cx, cy := float64(g.w)/2, float64(g.h)/2
	rx, ry := float64(g.w)*0.35, float64(g.h)*0.3
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			dx := (float64(x) - cx) / rx
			dy := (float64(y) - cy) / ry
			if dx*dx+dy*dy <= 1 {
				mask[y*g.w+x] = 1
			}
		}
	}
	return mask
}

// surfaceModel ramps elevation across the roof with a ridge line down the
// middle; everything off-roof is ground level plus noise.
func (g *generator) surfaceModel(mask []float64) []float64 {
	const ground = 12.0
	dsm := make([]float64, len(mask))
	cy := float64(g.h) / 2
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			i := y*g.w + x
			if mask[i] == 0 {
				dsm[i] = ground + g.rng.Float64()*0.3
				continue
			}
			ridge := 1 - math.Abs(float64(y)-cy)/cy
			dsm[i] = ground + 3 + 4*ridge + g.rng.Float64()*0.1
		}
	}
	return dsm
}

func (g *generator) aerial(mask []float64) [][]float64 {
	r := make([]float64, len(mask))
	gr := make([]float64, len(mask))
	b := make([]float64, len(mask))
	for i := range mask {
		if mask[i] > 0 {
			// Roof shingles: warm grays.
			v := 110 + g.rng.Float64()*40
			r[i], gr[i], b[i] = v+10, v, v-10
		} else {
			// Lawn and pavement.
			v := g.rng.Float64()
			r[i], gr[i], b[i] = 60+v*30, 120+v*40, 60+v*20
		}
	}
	return [][]float64{r, gr, b}
}

// flux produces a south-facing gradient peaking at max, with nodata off-roof
// so renders exercise the sentinel path.
func (g *generator) flux(mask []float64, max float64) []float64 {
	out := make([]float64, len(mask))
	for y := 0; y < g.h; y++ {
		south := float64(y) / float64(g.h-1)
		for x := 0; x < g.w; x++ {
			i := y*g.w + x
			if mask[i] == 0 {
				out[i] = domain.NoDataSentinel
				continue
			}
			out[i] = max * (0.45 + 0.55*south) * (0.9 + 0.1*g.rng.Float64())
		}
	}
	return out
}

// monthlyFlux scales the annual shape by a seasonal curve peaking in June.
func (g *generator) monthlyFlux(mask []float64) [][]float64 {
	annual := g.flux(mask, 200)
	bands := make([][]float64, 12)
	for m := 0; m < 12; m++ {
		season := 0.55 + 0.45*math.Sin(math.Pi*float64(m+1)/12)
		band := make([]float64, len(annual))
		for i, v := range annual {
			if v == domain.NoDataSentinel {
				band[i] = v
			} else {
				band[i] = v * season
			}
		}
		bands[m] = band
	}
	return bands
}

// hourlyShade packs one random-but-plausible bitmask per hour band: midday
// hours are mostly sunny, dawn and dusk mostly shaded.
func (g *generator) hourlyShade(mask []float64) [][]float64 {
	bands := make([][]float64, 24)
	for hour := 0; hour < 24; hour++ {
		sunny := 1 - math.Abs(float64(hour)-12.5)/12.5
		band := make([]float64, len(mask))
		for i := range mask {
			if mask[i] == 0 {
				band[i] = domain.NoDataSentinel
				continue
			}
			var bits int32
			for day := 0; day < 31; day++ {
				if g.rng.Float64() < sunny {
					bits |= 1 << day
				}
			}
			band[i] = float64(bits)
		}
		bands[hour] = band
	}
	return bands
}
