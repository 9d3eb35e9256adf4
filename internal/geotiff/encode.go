package geotiff

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// SampleType selects the on-disk sample encoding for Encode.
type SampleType int

const (
	SampleUint8 SampleType = iota
	SampleInt32
	SampleFloat32
)

// EncodeOptions describe the georeferencing and sample layout of an encoded
// raster. OriginX/OriginY are the model coordinates of the top-left corner;
// for EPSG 4326 they are degrees, for UTM codes they are meters.
type EncodeOptions struct {
	EPSG       int
	OriginX    float64
	OriginY    float64
	ScaleX     float64
	ScaleY     float64
	SampleType SampleType
	// NoData, when set, is written as the GDAL nodata tag.
	NoData *float64
}

// Encode writes bands as a little-endian, uncompressed, single-strip
// GeoTIFF. It exists for fixture generation (cmd/genraster) and decoder
// tests, not as a general-purpose TIFF writer.
func Encode(bands [][]float64, width, height int, opts EncodeOptions) ([]byte, error) {
	if len(bands) == 0 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("encode: empty raster")
	}
	for i, b := range bands {
		if len(b) != width*height {
			return nil, fmt.Errorf("encode: band %d has %d samples, want %d", i, len(b), width*height)
		}
	}
	if opts.ScaleX <= 0 || opts.ScaleY <= 0 {
		return nil, fmt.Errorf("encode: pixel scale must be positive")
	}

	spp := len(bands)
	bits, format := sampleTypeLayout(opts.SampleType)

	pixels := encodeSamples(bands, width, height, opts.SampleType)

	modelType := uint64(modelTypeProjected)
	if opts.EPSG == epsgWGS84 {
		modelType = modelTypeGeographic
	}
	geoDir := []uint64{
		1, 1, 0, 2, // version header, 2 keys
		keyModelType, 0, 1, modelType,
	}
	if modelType == modelTypeGeographic {
		geoDir = append(geoDir, keyGeographicType, 0, 1, uint64(opts.EPSG))
	} else {
		geoDir = append(geoDir, keyProjectedCS, 0, 1, uint64(opts.EPSG))
	}

	bitsVals := make([]uint64, spp)
	formatVals := make([]uint64, spp)
	for i := 0; i < spp; i++ {
		bitsVals[i] = uint64(bits)
		formatVals[i] = uint64(format)
	}

	w := &ifdWriter{order: binary.LittleEndian}
	w.addUints(tagImageWidth, 4, uint64(width))
	w.addUints(tagImageLength, 4, uint64(height))
	w.addUints(tagBitsPerSample, 3, bitsVals...)
	w.addUints(tagCompression, 3, compressionNone)
	w.addUints(262, 3, 1) // PhotometricInterpretation: BlackIsZero
	w.addUints(tagStripOffsets, 4, 0) // patched once the layout is known
	w.addUints(tagSamplesPerPixel, 3, uint64(spp))
	w.addUints(tagRowsPerStrip, 4, uint64(height))
	w.addUints(tagStripByteCounts, 4, uint64(len(pixels)))
	w.addUints(tagPlanarConfig, 3, 1)
	w.addUints(tagSampleFormat, 3, formatVals...)
	w.addDoubles(tagModelPixelScale, opts.ScaleX, opts.ScaleY, 0)
	w.addDoubles(tagModelTiepoint, 0, 0, 0, opts.OriginX, opts.OriginY, 0)
	w.addUints(tagGeoKeyDirectory, 3, geoDir...)
	if opts.NoData != nil {
		w.addASCII(tagGDALNoData, strconv.FormatFloat(*opts.NoData, 'f', -1, 64))
	}

	return w.assemble(pixels), nil
}

func sampleTypeLayout(st SampleType) (bits, format int) {
	switch st {
	case SampleUint8:
		return 8, sampleFormatUint
	case SampleInt32:
		return 32, sampleFormatInt
	default:
		return 32, sampleFormatFloat
	}
}

// encodeSamples interleaves bands into chunky pixel order.
func encodeSamples(bands [][]float64, width, height int, st SampleType) []byte {
	spp := len(bands)
	order := binary.LittleEndian

	var out []byte
	switch st {
	case SampleUint8:
		out = make([]byte, width*height*spp)
		for i := 0; i < width*height; i++ {
			for b := 0; b < spp; b++ {
				out[i*spp+b] = byte(uint8(bands[b][i]))
			}
		}
	case SampleInt32:
		out = make([]byte, width*height*spp*4)
		for i := 0; i < width*height; i++ {
			for b := 0; b < spp; b++ {
				order.PutUint32(out[(i*spp+b)*4:], uint32(int32(bands[b][i])))
			}
		}
	default:
		out = make([]byte, width*height*spp*4)
		for i := 0; i < width*height; i++ {
			for b := 0; b < spp; b++ {
				order.PutUint32(out[(i*spp+b)*4:], math.Float32bits(float32(bands[b][i])))
			}
		}
	}
	return out
}

// ifdWriter accumulates IFD entries and lays out the file:
// header, IFD, external values, pixel data.
type ifdWriter struct {
	order   binary.ByteOrder
	entries []ifdEntry
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte // encoded value bytes
}

func (w *ifdWriter) addUints(tag uint16, typ uint16, vals ...uint64) {
	size := fieldTypeSize[typ]
	data := make([]byte, int(size)*len(vals))
	for i, v := range vals {
		switch typ {
		case 3:
			w.order.PutUint16(data[i*2:], uint16(v))
		case 4:
			w.order.PutUint32(data[i*4:], uint32(v))
		}
	}
	w.entries = append(w.entries, ifdEntry{tag: tag, typ: typ, count: uint32(len(vals)), data: data})
}

func (w *ifdWriter) addDoubles(tag uint16, vals ...float64) {
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		w.order.PutUint64(data[i*8:], math.Float64bits(v))
	}
	w.entries = append(w.entries, ifdEntry{tag: tag, typ: 12, count: uint32(len(vals)), data: data})
}

func (w *ifdWriter) addASCII(tag uint16, s string) {
	data := append([]byte(s), 0)
	w.entries = append(w.entries, ifdEntry{tag: tag, typ: 2, count: uint32(len(data)), data: data})
}

// assemble writes the final buffer and patches the strip offset.
func (w *ifdWriter) assemble(pixels []byte) []byte {
	sort.Slice(w.entries, func(i, j int) bool { return w.entries[i].tag < w.entries[j].tag })

	n := len(w.entries)
	ifdStart := 8
	ifdSize := 2 + n*12 + 4
	externalStart := ifdStart + ifdSize

	// Place external values for entries that do not fit inline.
	external := 0
	offsets := make([]int, n)
	for i, e := range w.entries {
		if len(e.data) > 4 {
			offsets[i] = externalStart + external
			external += len(e.data)
			if external%2 == 1 {
				external++ // keep word alignment
			}
		}
	}
	pixelStart := externalStart + external

	// Patch the strip offset now that pixel placement is known.
	for i := range w.entries {
		if w.entries[i].tag == tagStripOffsets {
			w.order.PutUint32(w.entries[i].data, uint32(pixelStart))
		}
	}

	buf := make([]byte, pixelStart+len(pixels))
	buf[0], buf[1] = 'I', 'I'
	w.order.PutUint16(buf[2:], 42)
	w.order.PutUint32(buf[4:], uint32(ifdStart))

	w.order.PutUint16(buf[ifdStart:], uint16(n))
	for i, e := range w.entries {
		entry := buf[ifdStart+2+i*12:]
		w.order.PutUint16(entry[0:], e.tag)
		w.order.PutUint16(entry[2:], e.typ)
		w.order.PutUint32(entry[4:], e.count)
		if len(e.data) > 4 {
			w.order.PutUint32(entry[8:], uint32(offsets[i]))
			copy(buf[offsets[i]:], e.data)
		} else {
			copy(entry[8:12], e.data)
		}
	}
	// Next-IFD pointer stays zero: single-image file.

	copy(buf[pixelStart:], pixels)
	return buf
}
