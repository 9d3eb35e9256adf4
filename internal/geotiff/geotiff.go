// Package geotiff decodes geocoded TIFF rasters into numeric bands with a
// WGS-84 bounding box.
//
// The decoder handles the subset of the format the solar data-layer API
// serves: little- or big-endian baseline TIFF, strip or tile layout, chunky
// (pixel-interleaved) planar configuration, uncompressed, LZW, or Deflate
// segments, and 8/16/32-bit integer or 32/64-bit float samples. Bands are
// returned at native resolution; only the bounding box is reprojected, by
// running the raster's corner coordinates through the embedded coordinate
// reference system.
//
// A minimal uncompressed encoder is included for fixture generation; it is
// not a general TIFF writer.
package geotiff

import (
	"github.com/helioscope/solar-potential/internal/domain"
)

// Raster is a decoded geocoded raster: a 2D grid of one or more numeric
// bands plus the geographic box the grid covers. Immutable once decoded.
type Raster struct {
	Width  int
	Height int
	// Bands holds one plane per band, each of length Width*Height in
	// row-major order, as float64 regardless of the source sample type.
	Bands  [][]float64
	Bounds domain.Bounds
	// NoData is the sentinel marking invalid pixels, -9999 unless the
	// file declares otherwise. Consumers must never treat it as a sample.
	NoData float64
}

// Value returns the sample for a band at pixel (x, y).
func (r *Raster) Value(band, x, y int) float64 {
	return r.Bands[band][y*r.Width+x]
}

// IsNoData reports whether v is this raster's "no data" sentinel.
func (r *Raster) IsNoData(v float64) bool {
	return v == r.NoData
}
