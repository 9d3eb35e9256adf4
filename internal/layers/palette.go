package layers

import (
	"image/color"
	"math"
)

// Palettes for the individual layer kinds. Flux layers use fixed domains so
// colors are comparable across locations; the surface model stretches to the
// data it covers.
var (
	binaryColors   = []string{"212121", "B3E5FC"}
	rainbowColors  = []string{"3949AB", "81D4FA", "66BB6A", "FFE082", "E53935"}
	ironColors     = []string{"00000A", "91009C", "E64616", "FEB400", "FFFFF6"}
	sunlightColors = []string{"212121", "FFCA28"}
)

const (
	annualFluxMaxKwhPerKw  = 1800
	monthlyFluxMaxKwhPerKw = 200
)

// Palette maps a numeric range onto an ordered list of colors. Min and Max
// double as the legend endpoints.
type Palette struct {
	Colors []color.NRGBA
	Min    float64
	Max    float64
}

// At color-maps one value: normalize to [0,1], clamp, and pick the nearest
// color index. Sentinel filtering happens before this is called; every value
// reaching At is colored.
func (p Palette) At(v float64) color.NRGBA {
	n := 0.0
	if p.Max > p.Min {
		n = (v - p.Min) / (p.Max - p.Min)
	}
	n = math.Max(0, math.Min(1, n))
	idx := int(math.Round(n * float64(len(p.Colors)-1)))
	return p.Colors[idx]
}

func maskPalette() Palette {
	return Palette{Colors: parseColors(binaryColors), Min: 0, Max: 1}
}

func dsmPalette(low, high float64) Palette {
	return Palette{Colors: parseColors(rainbowColors), Min: low, Max: high}
}

func annualFluxPalette() Palette {
	return Palette{Colors: parseColors(ironColors), Min: 0, Max: annualFluxMaxKwhPerKw}
}

func monthlyFluxPalette() Palette {
	return Palette{Colors: parseColors(ironColors), Min: 0, Max: monthlyFluxMaxKwhPerKw}
}

func hourlyShadePalette() Palette {
	return Palette{Colors: parseColors(sunlightColors), Min: 0, Max: 1}
}

func parseColors(hex []string) []color.NRGBA {
	out := make([]color.NRGBA, len(hex))
	for i, h := range hex {
		out[i] = color.NRGBA{
			R: hexByte(h[0:2]),
			G: hexByte(h[2:4]),
			B: hexByte(h[4:6]),
			A: 0xFF,
		}
	}
	return out
}

func hexByte(s string) uint8 {
	var v uint8
	for i := 0; i < 2; i++ {
		v <<= 4
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			v |= c - '0'
		case c >= 'a' && c <= 'f':
			v |= c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v |= c - 'A' + 10
		}
	}
	return v
}
