// Package zarr builds the consolidated zarr v2 descriptor (.zmetadata,
// .zgroup, .zattrs, .zarray) a chunk-store dataset is served through, per
// §4.7 step 3.
package zarr

import (
	"fmt"

	"github.com/freva-nextgen/databrowser/internal/dataset"
)

// Group is the top-level descriptor: its own group/attrs files plus one
// Array per variable.
type Group struct {
	Attrs  map[string]any   `json:"attrs"`
	Arrays map[string]Array `json:"arrays"`
}

// Array is one variable's .zarray + .zattrs pair.
type Array struct {
	ZArray ZArray         `json:"zarray"`
	ZAttrs map[string]any `json:"zattrs"`
}

// ZArray is the zarr v2 array metadata document.
type ZArray struct {
	Shape      []int  `json:"shape"`
	Chunks     []int  `json:"chunks"`
	Dtype      string `json:"dtype"`
	Compressor any    `json:"compressor"`
	Filters    []any  `json:"filters"`
	FillValue  any    `json:"fill_value"`
	Order      string `json:"order"`
	ZarrFormat int    `json:"zarr_format"`
}

// Build derives the descriptor for an opened dataset. compressor is the
// zarr codec config actually used to compress each array's chunk bytes
// (a Compressor's Descriptor(), in the worker pool's case) and is stamped
// into every array's .zarray unless the variable names one explicitly
// under "_compressor" — so what a client reads here always matches the
// bytes a chunk request later hands it (§4.7 step 3).
func Build(ds dataset.Dataset, compressor any) Group {
	g := Group{
		Attrs:  ds.Attrs,
		Arrays: make(map[string]Array, len(ds.Variables)),
	}
	for name, v := range ds.Variables {
		g.Arrays[name] = buildArray(v, compressor)
	}
	return g
}

func buildArray(v dataset.Variable, compressor any) Array {
	zattrs := make(map[string]any, len(v.Attrs)+1)
	for k, val := range v.Attrs {
		if k == "_FillValue" {
			continue
		}
		zattrs[k] = val
	}
	zattrs["_ARRAY_DIMENSIONS"] = v.Dims

	if m, ok := v.Attrs["_compressor"].(map[string]any); ok {
		compressor = m
	}
	var filters []any
	if f, ok := v.Attrs["_filters"].([]any); ok {
		filters = f
	}

	return Array{
		ZArray: ZArray{
			Shape:      v.Shape,
			Chunks:     v.Chunks,
			Dtype:      v.Dtype,
			Compressor: compressor,
			Filters:    filters,
			FillValue:  fillValueFor(v),
			Order:      "C",
			ZarrFormat: 2,
		},
		ZAttrs: zattrs,
	}
}

// fillValueFor returns the variable's declared _FillValue attribute, or a
// dtype-appropriate zero when unset.
func fillValueFor(v dataset.Variable) any {
	if fv, ok := v.Attrs["_FillValue"]; ok {
		return fv
	}
	switch v.Dtype {
	case "float32", "float64", "<f4", "<f8":
		return "NaN"
	default:
		return 0
	}
}

// ConsolidatedFormat is the version this package writes into every
// .zmetadata payload's "zarr_consolidated_format" field.
const ConsolidatedFormat = 1

// Consolidated renders g as the consolidated zarr v2 form a client reads at
// ".zmetadata": a flat map of slash-joined metadata-file keys (".zgroup",
// ".zattrs", "{var}/.zarray", "{var}/.zattrs"), not this package's internal
// nested Group shape. Mirrors the upstream `create_zmetadata`/
// `jsonify_zmetadata` wire format byte-for-byte in key structure.
func Consolidated(g Group) map[string]any {
	metadata := make(map[string]any, 2+2*len(g.Arrays))
	metadata[".zgroup"] = map[string]int{"zarr_format": 2}
	metadata[".zattrs"] = g.Attrs
	for name, arr := range g.Arrays {
		metadata[name+"/.zarray"] = arr.ZArray
		metadata[name+"/.zattrs"] = arr.ZAttrs
	}
	return map[string]any{
		"zarr_consolidated_format": ConsolidatedFormat,
		"metadata":                 metadata,
	}
}

// ChunkID renders a zarr block-index tuple ("i.j.k") from integer indices.
func ChunkID(indices []int) string {
	s := ""
	for i, idx := range indices {
		if i > 0 {
			s += "."
		}
		s += fmt.Sprintf("%d", idx)
	}
	return s
}

// ParseChunkID parses a dot-joined block-index tuple back into integers.
func ParseChunkID(chunkID string) ([]int, error) {
	var indices []int
	start := 0
	for i := 0; i <= len(chunkID); i++ {
		if i == len(chunkID) || chunkID[i] == '.' {
			var n int
			if _, err := fmt.Sscanf(chunkID[start:i], "%d", &n); err != nil {
				return nil, fmt.Errorf("zarr: invalid chunk id %q: %w", chunkID, err)
			}
			indices = append(indices, n)
			start = i + 1
		}
	}
	return indices, nil
}
