package worker

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// PadBlock expands a materialized block of shape s up to the declared
// chunk shape c, filling the padding with fill. Per §8's chunk-padding
// invariant, the original data occupies [0:s_i) of every axis; values
// beyond the read extent on any axis are fill.
func PadBlock(values []float64, s, c []int, fill float64) []float64 {
	if sameShape(s, c) {
		return values
	}
	total := 1
	for _, n := range c {
		total *= n
	}
	out := make([]float64, total)
	for i := range out {
		out[i] = fill
	}
	copyBlock(values, out, s, c, 0, 0, 0)
	return out
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// copyBlock recursively copies the s-shaped source into the top-left
// (lowest-index) corner of the c-shaped destination, both assumed
// row-major.
func copyBlock(src, dst []float64, s, c []int, axis int, srcOffset, dstOffset int) {
	if axis == len(s)-1 {
		copy(dst[dstOffset:dstOffset+s[axis]], src[srcOffset:srcOffset+s[axis]])
		return
	}
	srcStride := strideOf(s, axis)
	dstStride := strideOf(c, axis)
	for i := 0; i < s[axis]; i++ {
		copyBlock(src, dst, s, c, axis+1, srcOffset+i*srcStride, dstOffset+i*dstStride)
	}
}

func strideOf(shape []int, axis int) int {
	stride := 1
	for _, n := range shape[axis+1:] {
		stride *= n
	}
	return stride
}

// Encode serializes a row-major block of float64 values into the byte
// layout its declared dtype uses.
func Encode(values []float64, dtype string) []byte {
	buf := new(bytes.Buffer)
	switch dtype {
	case "float32", "<f4":
		for _, v := range values {
			binary.Write(buf, binary.LittleEndian, float32(v))
		}
	case "int32", "<i4":
		for _, v := range values {
			binary.Write(buf, binary.LittleEndian, int32(v))
		}
	case "int64", "<i8":
		for _, v := range values {
			binary.Write(buf, binary.LittleEndian, int64(v))
		}
	default: // float64, "<f8"
		for _, v := range values {
			binary.Write(buf, binary.LittleEndian, math.Float64bits(v))
		}
	}
	return buf.Bytes()
}

// Compressor compresses and decompresses materialized chunk bytes before
// they're cached (§4.7 step 3). Descriptor returns the zarr ".zarray"
// "compressor" value describing the bytes Compress produces, so the
// advertised codec never drifts from what's actually stored.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Descriptor() any
}

// DefaultCompressor uses stdlib zlib, which is wire-compatible with
// numcodecs' "zlib" codec (both are RFC 1950 zlib streams). No example in
// the retrieval pack wires a dedicated array-chunk compression library
// (e.g. blosc), so this stays on the standard library; see DESIGN.md.
type DefaultCompressor struct{}

func (DefaultCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (DefaultCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("worker: decompress chunk: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("worker: decompress chunk: %w", err)
	}
	return out, nil
}

// Descriptor reports the numcodecs-compatible config for the zlib codec
// this compressor emits.
func (DefaultCompressor) Descriptor() any {
	return map[string]any{"id": "zlib", "level": 6}
}

// Filter transforms a materialized block's values before they're encoded
// and compressed, mirroring how Compressor is abstracted (§4.7 step 3;
// upstream's `zarr_utils.encode_chunk`: "for f in filters: chunk =
// f.encode(chunk)").
type Filter interface {
	Encode(values []float64) []float64
}

// FilterFor resolves one declared filter config (as stored under a
// variable's "_filters" attribute and mirrored verbatim into its .zarray
// descriptor) to the concrete codec that must run over the chunk's values.
// An unrecognized id is an error rather than a silent skip: applying fewer
// filters than declared would desync the cached bytes from what .zarray
// advertises.
func FilterFor(config map[string]any) (Filter, error) {
	id, _ := config["id"].(string)
	switch id {
	case "delta":
		return deltaFilter{}, nil
	default:
		return nil, fmt.Errorf("worker: unsupported filter id %q", id)
	}
}

// deltaFilter mirrors numcodecs' Delta codec: each value becomes the
// difference from its predecessor, with the first value stored as-is.
type deltaFilter struct{}

func (deltaFilter) Encode(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}
