package geotiff

import (
	"fmt"
	"math"

	"github.com/wroge/wgs84"

	"github.com/helioscope/solar-potential/internal/domain"
)

// GeoTIFF key IDs.
const (
	keyModelType      = 1024
	keyGeographicType = 2048
	keyProjectedCS    = 3072
)

const (
	modelTypeProjected  = 1
	modelTypeGeographic = 2

	epsgWGS84 = 4326
)

// geoKeys is the parsed GeoKeyDirectory.
type geoKeys struct {
	modelType     int
	geographicCRS int
	projectedCRS  int
}

// parseGeoKeys reads the GeoKeyDirectory tag. Only inline SHORT values are
// needed for the keys the solar layers carry.
func (d *decoder) parseGeoKeys() (geoKeys, error) {
	dir := d.uintTagAll(tagGeoKeyDirectory)
	if len(dir) < 4 {
		return geoKeys{}, fmt.Errorf("%w: missing geo key directory", domain.ErrFormat)
	}
	numKeys := int(dir[3])
	if len(dir) < 4+numKeys*4 {
		return geoKeys{}, fmt.Errorf("%w: truncated geo key directory", domain.ErrFormat)
	}

	var keys geoKeys
	for i := 0; i < numKeys; i++ {
		entry := dir[4+i*4 : 4+(i+1)*4]
		keyID, location, value := entry[0], entry[1], entry[3]
		if location != 0 {
			continue // value stored in another tag; none of our keys use that
		}
		switch keyID {
		case keyModelType:
			keys.modelType = int(value)
		case keyGeographicType:
			keys.geographicCRS = int(value)
		case keyProjectedCS:
			keys.projectedCRS = int(value)
		}
	}
	return keys, nil
}

// geoBounds derives the WGS-84 bounding box from the tiepoint/pixel-scale
// metadata and the embedded coordinate reference system. All four corners
// are transformed so rotated projections still produce an enclosing box.
func (d *decoder) geoBounds(width, height int) (domain.Bounds, error) {
	scale := d.doubleTagAll(tagModelPixelScale)
	tie := d.doubleTagAll(tagModelTiepoint)
	if len(scale) < 2 || len(tie) < 6 {
		return domain.Bounds{}, fmt.Errorf("%w: missing georeferencing tags", domain.ErrFormat)
	}

	keys, err := d.parseGeoKeys()
	if err != nil {
		return domain.Bounds{}, err
	}

	toLonLat, err := lonLatTransform(keys)
	if err != nil {
		return domain.Bounds{}, err
	}

	// Model coordinates of pixel (col, row), from the raster-to-model tie
	// point (i, j) -> (x, y) and the per-axis pixel scale. Model Y decreases
	// as rows increase.
	modelX := func(col float64) float64 { return tie[3] + (col-tie[0])*scale[0] }
	modelY := func(row float64) float64 { return tie[4] - (row-tie[1])*scale[1] }

	corners := [4][2]float64{
		{modelX(0), modelY(0)},
		{modelX(float64(width)), modelY(0)},
		{modelX(0), modelY(float64(height))},
		{modelX(float64(width)), modelY(float64(height))},
	}

	b := domain.Bounds{North: math.Inf(-1), South: math.Inf(1), East: math.Inf(-1), West: math.Inf(1)}
	for _, c := range corners {
		lon, lat, _ := toLonLat(c[0], c[1], 0)
		if math.IsNaN(lon) || math.IsNaN(lat) {
			return domain.Bounds{}, fmt.Errorf("%w: corner transform produced NaN", domain.ErrProjection)
		}
		b.North = math.Max(b.North, lat)
		b.South = math.Min(b.South, lat)
		b.East = math.Max(b.East, lon)
		b.West = math.Min(b.West, lon)
	}
	return b, nil
}

// lonLatTransform builds the model-space to WGS-84 lon/lat transform for the
// file's CRS. Geographic rasters already carry degrees and pass through.
func lonLatTransform(keys geoKeys) (wgs84.Func, error) {
	identity := func(a, b, c float64) (float64, float64, float64) { return a, b, c }

	switch keys.modelType {
	case modelTypeGeographic:
		if keys.geographicCRS != 0 && keys.geographicCRS != epsgWGS84 {
			return nil, fmt.Errorf("%w: geographic CRS EPSG:%d", domain.ErrProjection, keys.geographicCRS)
		}
		return identity, nil

	case modelTypeProjected:
		crs := projectedCRS(keys.projectedCRS)
		if crs == nil {
			return nil, fmt.Errorf("%w: projected CRS EPSG:%d", domain.ErrProjection, keys.projectedCRS)
		}
		return wgs84.Transform(crs, wgs84.LonLat()), nil

	default:
		return nil, fmt.Errorf("%w: model type %d", domain.ErrProjection, keys.modelType)
	}
}

// projectedCRS resolves an EPSG code to a coordinate reference system. The
// solar API serves UTM rasters, which are handled explicitly; anything else
// goes through the EPSG registry and may come back nil.
func projectedCRS(code int) wgs84.CoordinateReferenceSystem {
	switch {
	case code >= 32601 && code <= 32660:
		return wgs84.UTM(float64(code-32600), true)
	case code >= 32701 && code <= 32760:
		return wgs84.UTM(float64(code-32700), false)
	case code == 0:
		return nil
	default:
		return wgs84.EPSG().Code(code)
	}
}
