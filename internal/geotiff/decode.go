package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	tifflzw "golang.org/x/image/tiff/lzw"

	"github.com/helioscope/solar-potential/internal/domain"
)

// TIFF tag IDs used by the decoder.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGeoDoubleParams = 34736
	tagGDALNoData      = 42113
)

const (
	compressionNone      = 1
	compressionLZW       = 5
	compressionDeflate   = 8
	compressionOldDeflate = 32946

	predictorNone       = 1
	predictorHorizontal = 2

	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

// field is one parsed IFD entry.
type field struct {
	typ   uint16
	count uint32
	// raw holds the field's value bytes, already resolved through the
	// offset indirection when the value did not fit inline.
	raw []byte
}

type decoder struct {
	buf   []byte
	order binary.ByteOrder
	ifd   map[uint16]field
}

// Decode parses a geocoded raster buffer. It fails with domain.ErrFormat
// when the buffer is not well-formed TIFF and domain.ErrProjection when the
// embedded coordinate system cannot be converted to latitude/longitude.
// Decode is a pure function of the buffer; fetching it is the caller's job.
func Decode(buf []byte) (*Raster, error) {
	d, err := newDecoder(buf)
	if err != nil {
		return nil, err
	}

	width := int(d.uintTag(tagImageWidth, 0))
	height := int(d.uintTag(tagImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image dimensions %dx%d", domain.ErrFormat, width, height)
	}

	samplesPerPixel := int(d.uintTag(tagSamplesPerPixel, 1))
	if samplesPerPixel < 1 {
		return nil, fmt.Errorf("%w: samples per pixel %d", domain.ErrFormat, samplesPerPixel)
	}
	if planar := d.uintTag(tagPlanarConfig, 1); planar != 1 {
		return nil, fmt.Errorf("%w: planar configuration %d not supported", domain.ErrFormat, planar)
	}

	bits, format, err := d.sampleLayout(samplesPerPixel)
	if err != nil {
		return nil, err
	}

	samples, err := d.readSamples(width, height, samplesPerPixel, bits, format)
	if err != nil {
		return nil, err
	}

	bounds, err := d.geoBounds(width, height)
	if err != nil {
		return nil, err
	}

	bands := make([][]float64, samplesPerPixel)
	for b := range bands {
		plane := make([]float64, width*height)
		for i := range plane {
			plane[i] = samples[i*samplesPerPixel+b]
		}
		bands[b] = plane
	}

	return &Raster{
		Width:  width,
		Height: height,
		Bands:  bands,
		Bounds: bounds,
		NoData: d.noDataValue(),
	}, nil
}

func newDecoder(buf []byte) (*decoder, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("%w: truncated header", domain.ErrFormat)
	}

	var order binary.ByteOrder
	switch {
	case buf[0] == 'I' && buf[1] == 'I':
		order = binary.LittleEndian
	case buf[0] == 'M' && buf[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order mark %q", domain.ErrFormat, buf[:2])
	}
	if order.Uint16(buf[2:4]) != 42 {
		return nil, fmt.Errorf("%w: bad magic number", domain.ErrFormat)
	}

	d := &decoder{buf: buf, order: order}
	if err := d.parseIFD(order.Uint32(buf[4:8])); err != nil {
		return nil, err
	}
	return d, nil
}

// fieldTypeSize maps TIFF field types to their byte widths.
var fieldTypeSize = map[uint16]uint32{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8,
}

func (d *decoder) parseIFD(offset uint32) error {
	if int(offset)+2 > len(d.buf) {
		return fmt.Errorf("%w: IFD offset out of range", domain.ErrFormat)
	}
	count := int(d.order.Uint16(d.buf[offset : offset+2]))
	base := int(offset) + 2
	if base+count*12 > len(d.buf) {
		return fmt.Errorf("%w: truncated IFD", domain.ErrFormat)
	}

	d.ifd = make(map[uint16]field, count)
	for i := 0; i < count; i++ {
		entry := d.buf[base+i*12 : base+(i+1)*12]
		tag := d.order.Uint16(entry[0:2])
		typ := d.order.Uint16(entry[2:4])
		n := d.order.Uint32(entry[4:8])

		size, ok := fieldTypeSize[typ]
		if !ok {
			continue // unknown field type, skip per the TIFF spec
		}
		total := size * n

		var raw []byte
		if total <= 4 {
			raw = entry[8 : 8+total]
		} else {
			valOff := d.order.Uint32(entry[8:12])
			if int(valOff)+int(total) > len(d.buf) {
				return fmt.Errorf("%w: tag %d value out of range", domain.ErrFormat, tag)
			}
			raw = d.buf[valOff : valOff+total]
		}
		d.ifd[tag] = field{typ: typ, count: n, raw: raw}
	}
	return nil
}

// uintTag returns the first value of an unsigned integer tag, or def when
// the tag is absent.
func (d *decoder) uintTag(tag uint16, def uint64) uint64 {
	vals := d.uintTagAll(tag)
	if len(vals) == 0 {
		return def
	}
	return vals[0]
}

func (d *decoder) uintTagAll(tag uint16) []uint64 {
	f, ok := d.ifd[tag]
	if !ok {
		return nil
	}
	vals := make([]uint64, 0, f.count)
	for i := uint32(0); i < f.count; i++ {
		switch f.typ {
		case 1, 6, 7: // BYTE family
			vals = append(vals, uint64(f.raw[i]))
		case 3, 8: // SHORT family
			vals = append(vals, uint64(d.order.Uint16(f.raw[i*2:])))
		case 4, 9: // LONG family
			vals = append(vals, uint64(d.order.Uint32(f.raw[i*4:])))
		default:
			return nil
		}
	}
	return vals
}

func (d *decoder) doubleTagAll(tag uint16) []float64 {
	f, ok := d.ifd[tag]
	if !ok || f.typ != 12 {
		return nil
	}
	vals := make([]float64, 0, f.count)
	for i := uint32(0); i < f.count; i++ {
		bits := d.order.Uint64(f.raw[i*8:])
		vals = append(vals, math.Float64frombits(bits))
	}
	return vals
}

func (d *decoder) asciiTag(tag uint16) string {
	f, ok := d.ifd[tag]
	if !ok || f.typ != 2 {
		return ""
	}
	return strings.TrimRight(string(f.raw), "\x00")
}

// sampleLayout validates bits-per-sample and sample-format across bands.
// Mixed layouts within one file are rejected.
func (d *decoder) sampleLayout(samplesPerPixel int) (bits int, format int, err error) {
	bitsVals := d.uintTagAll(tagBitsPerSample)
	if len(bitsVals) == 0 {
		bitsVals = []uint64{1}
	}
	formatVals := d.uintTagAll(tagSampleFormat)
	if len(formatVals) == 0 {
		formatVals = []uint64{sampleFormatUint}
	}

	for _, v := range bitsVals[1:] {
		if v != bitsVals[0] {
			return 0, 0, fmt.Errorf("%w: mixed bits per sample", domain.ErrFormat)
		}
	}
	for _, v := range formatVals[1:] {
		if v != formatVals[0] {
			return 0, 0, fmt.Errorf("%w: mixed sample formats", domain.ErrFormat)
		}
	}

	bits = int(bitsVals[0])
	format = int(formatVals[0])

	switch format {
	case sampleFormatUint, sampleFormatInt:
		if bits != 8 && bits != 16 && bits != 32 {
			return 0, 0, fmt.Errorf("%w: %d-bit integer samples not supported", domain.ErrFormat, bits)
		}
	case sampleFormatFloat:
		if bits != 32 && bits != 64 {
			return 0, 0, fmt.Errorf("%w: %d-bit float samples not supported", domain.ErrFormat, bits)
		}
	default:
		return 0, 0, fmt.Errorf("%w: sample format %d not supported", domain.ErrFormat, format)
	}
	return bits, format, nil
}

// segment describes one strip or tile: where its decompressed samples land
// in the image grid.
type segment struct {
	offset, byteCount uint64
	x0, y0, w, h      int // image-space placement
	rowSamples        int // samples per stored row (tiles are padded)
}

func (d *decoder) segments(width, height int) ([]segment, error) {
	if _, tiled := d.ifd[tagTileOffsets]; tiled {
		tw := int(d.uintTag(tagTileWidth, 0))
		th := int(d.uintTag(tagTileLength, 0))
		if tw <= 0 || th <= 0 {
			return nil, fmt.Errorf("%w: bad tile dimensions", domain.ErrFormat)
		}
		offsets := d.uintTagAll(tagTileOffsets)
		counts := d.uintTagAll(tagTileByteCounts)
		across := (width + tw - 1) / tw
		down := (height + th - 1) / th
		if len(offsets) < across*down || len(counts) < across*down {
			return nil, fmt.Errorf("%w: missing tile offsets", domain.ErrFormat)
		}

		segs := make([]segment, 0, across*down)
		for ty := 0; ty < down; ty++ {
			for tx := 0; tx < across; tx++ {
				i := ty*across + tx
				segs = append(segs, segment{
					offset:     offsets[i],
					byteCount:  counts[i],
					x0:         tx * tw,
					y0:         ty * th,
					w:          min(tw, width-tx*tw),
					h:          min(th, height-ty*th),
					rowSamples: tw,
				})
			}
		}
		return segs, nil
	}

	offsets := d.uintTagAll(tagStripOffsets)
	counts := d.uintTagAll(tagStripByteCounts)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, fmt.Errorf("%w: missing strip offsets", domain.ErrFormat)
	}
	rowsPerStrip := int(d.uintTag(tagRowsPerStrip, uint64(height)))
	if rowsPerStrip <= 0 {
		rowsPerStrip = height
	}

	segs := make([]segment, 0, len(offsets))
	for i := range offsets {
		y0 := i * rowsPerStrip
		if y0 >= height {
			break
		}
		segs = append(segs, segment{
			offset:     offsets[i],
			byteCount:  counts[i],
			x0:         0,
			y0:         y0,
			w:          width,
			h:          min(rowsPerStrip, height-y0),
			rowSamples: width,
		})
	}
	return segs, nil
}

// readSamples decompresses every strip/tile and assembles the interleaved
// sample plane for the whole image.
func (d *decoder) readSamples(width, height, spp, bits, format int) ([]float64, error) {
	segs, err := d.segments(width, height)
	if err != nil {
		return nil, err
	}

	compression := d.uintTag(tagCompression, compressionNone)
	predictor := d.uintTag(tagPredictor, predictorNone)
	if predictor == predictorHorizontal && format == sampleFormatFloat {
		return nil, fmt.Errorf("%w: horizontal predictor on float samples", domain.ErrFormat)
	}
	if predictor != predictorNone && predictor != predictorHorizontal {
		return nil, fmt.Errorf("%w: predictor %d not supported", domain.ErrFormat, predictor)
	}

	bytesPer := bits / 8
	samples := make([]float64, width*height*spp)

	for _, seg := range segs {
		if int(seg.offset)+int(seg.byteCount) > len(d.buf) {
			return nil, fmt.Errorf("%w: segment out of range", domain.ErrFormat)
		}
		data, err := decompress(d.buf[seg.offset:seg.offset+seg.byteCount], compression)
		if err != nil {
			return nil, err
		}

		need := seg.rowSamples * seg.h * spp * bytesPer
		if len(data) < need {
			return nil, fmt.Errorf("%w: segment has %d bytes, need %d", domain.ErrFormat, len(data), need)
		}

		if predictor == predictorHorizontal {
			d.undoHorizontalPredictor(data, seg.rowSamples, seg.h, spp, bytesPer)
		}

		for row := 0; row < seg.h; row++ {
			for col := 0; col < seg.w; col++ {
				for b := 0; b < spp; b++ {
					src := ((row*seg.rowSamples + col) * spp + b) * bytesPer
					dst := ((seg.y0+row)*width + seg.x0 + col) * spp + b
					samples[dst] = d.sampleValue(data[src:], bits, format)
				}
			}
		}
	}
	return samples, nil
}

func decompress(data []byte, compression uint64) ([]byte, error) {
	switch compression {
	case compressionNone:
		return data, nil
	case compressionLZW:
		r := tifflzw.NewReader(bytes.NewReader(data), tifflzw.MSB, 8)
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: lzw: %v", domain.ErrFormat, err)
		}
		return out, nil
	case compressionDeflate, compressionOldDeflate:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: deflate: %v", domain.ErrFormat, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: deflate: %v", domain.ErrFormat, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: compression %d not supported", domain.ErrFormat, compression)
	}
}

// undoHorizontalPredictor reverses per-row horizontal differencing in place.
func (d *decoder) undoHorizontalPredictor(data []byte, rowSamples, rows, spp, bytesPer int) {
	rowBytes := rowSamples * spp * bytesPer
	for row := 0; row < rows; row++ {
		rowBuf := data[row*rowBytes : (row+1)*rowBytes]
		switch bytesPer {
		case 1:
			for i := spp; i < len(rowBuf); i++ {
				rowBuf[i] += rowBuf[i-spp]
			}
		case 2:
			for i := spp * 2; i+1 < len(rowBuf); i += 2 {
				v := d.order.Uint16(rowBuf[i:]) + d.order.Uint16(rowBuf[i-spp*2:])
				d.order.PutUint16(rowBuf[i:], v)
			}
		case 4:
			for i := spp * 4; i+3 < len(rowBuf); i += 4 {
				v := d.order.Uint32(rowBuf[i:]) + d.order.Uint32(rowBuf[i-spp*4:])
				d.order.PutUint32(rowBuf[i:], v)
			}
		}
	}
}

func (d *decoder) sampleValue(raw []byte, bits, format int) float64 {
	switch format {
	case sampleFormatUint:
		switch bits {
		case 8:
			return float64(raw[0])
		case 16:
			return float64(d.order.Uint16(raw))
		default:
			return float64(d.order.Uint32(raw))
		}
	case sampleFormatInt:
		switch bits {
		case 8:
			return float64(int8(raw[0]))
		case 16:
			return float64(int16(d.order.Uint16(raw)))
		default:
			return float64(int32(d.order.Uint32(raw)))
		}
	default: // float
		if bits == 32 {
			return float64(math.Float32frombits(d.order.Uint32(raw)))
		}
		return math.Float64frombits(d.order.Uint64(raw))
	}
}

// noDataValue parses the GDAL nodata tag, defaulting to the API's -9999.
func (d *decoder) noDataValue() float64 {
	s := strings.TrimSpace(d.asciiTag(tagGDALNoData))
	if s == "" {
		return domain.NoDataSentinel
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return domain.NoDataSentinel
	}
	return v
}
