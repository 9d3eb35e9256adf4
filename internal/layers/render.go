package layers

import (
	"fmt"
	"image"
	"image/color"

	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/geotiff"
)

// RenderOptions select how a layer's frames are produced. Month and Day only
// matter for hourly shade (which month raster and which day bit to read);
// RoofOnly blanks pixels outside the roof mask for the kinds that carry one.
type RenderOptions struct {
	RoofOnly bool
	// Month is a 0-based calendar month index (0=Jan .. 11=Dec).
	Month int
	// Day is a 1-based day of month, selecting a bit position in the
	// hourly shade bitfield.
	Day int
}

// Render produces the layer's displayable images, one per time slice:
// a single frame for mask/dsm/rgb/annualFlux, twelve for monthlyFlux
// (always all twelve, whichever month is on display), and twenty-four
// hourly frames for hourlyShade. Rendering is pure: the same layer and
// options always produce the same images.
func (l *Layer) Render(opts RenderOptions) ([]image.Image, error) {
	switch l.Kind {
	case KindMask:
		return []image.Image{l.renderBand(l.data[0].Bands[0], l.data[0], nil)}, nil

	case KindDSM:
		return []image.Image{l.renderBand(l.data[0].Bands[0], l.data[0], nil)}, nil

	case KindRGB:
		return []image.Image{l.renderRGB()}, nil

	case KindAnnualFlux:
		return []image.Image{l.renderBand(l.data[0].Bands[0], l.data[0], l.roofMask(opts))}, nil

	case KindMonthlyFlux:
		frames := make([]image.Image, 12)
		for m := 0; m < 12; m++ {
			frames[m] = l.renderBand(l.data[0].Bands[m], l.data[0], l.roofMask(opts))
		}
		return frames, nil

	case KindHourlyShade:
		return l.renderHourlyShade(opts)

	default:
		return nil, fmt.Errorf("unknown layer kind %q", l.Kind)
	}
}

// roofMask returns the mask band for roof-only rendering, or nil when the
// option is off.
func (l *Layer) roofMask(opts RenderOptions) []float64 {
	if !opts.RoofOnly || l.mask == nil {
		return nil
	}
	return l.mask.Bands[0]
}

// renderBand color-maps one band through the layer palette. Sentinel pixels
// and pixels outside the roof mask are fully transparent, never colored.
func (l *Layer) renderBand(band []float64, r *geotiff.Raster, mask []float64) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i, v := range band {
		if r.IsNoData(v) {
			continue
		}
		if mask != nil && mask[i] != 1 {
			continue
		}
		img.SetNRGBA(i%r.Width, i/r.Width, l.Palette.At(v))
	}
	return img
}

// renderRGB assembles the three-band true-color image directly, no palette
// and no masking.
func (l *Layer) renderRGB() image.Image {
	r := l.data[0]
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i := 0; i < r.Width*r.Height; i++ {
		img.SetNRGBA(i%r.Width, i/r.Width, color.NRGBA{
			R: clampByte(r.Bands[0][i]),
			G: clampByte(r.Bands[1][i]),
			B: clampByte(r.Bands[2][i]),
			A: 0xFF,
		})
	}
	return img
}

// renderHourlyShade produces 24 frames for one (month, day): band h holds
// hour h, and bit day-1 of each pixel's 32-bit value tells whether the sun
// reaches that spot. Bit 31 is reserved, so the -9999 sentinel (which has
// bit 31 set) can never collide with a valid day/hour reading.
func (l *Layer) renderHourlyShade(opts RenderOptions) ([]image.Image, error) {
	if opts.Month < 0 || opts.Month > 11 {
		return nil, fmt.Errorf("%w: month %d out of range", domain.ErrRender, opts.Month)
	}
	if opts.Day < 1 || opts.Day > 31 {
		return nil, fmt.Errorf("%w: day %d out of range", domain.ErrRender, opts.Day)
	}

	r := l.data[opts.Month]
	mask := l.roofMask(opts)
	bit := uint(opts.Day - 1)

	frames := make([]image.Image, 24)
	for hour := 0; hour < 24; hour++ {
		band := r.Bands[hour]
		img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
		for i, v := range band {
			if r.IsNoData(v) {
				continue
			}
			if mask != nil && mask[i] != 1 {
				continue
			}
			sunny := (int32(v)>>bit)&1 == 1
			val := 0.0
			if sunny {
				val = 1.0
			}
			img.SetNRGBA(i%r.Width, i/r.Width, l.Palette.At(val))
		}
		frames[hour] = img
	}
	return frames, nil
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
