// Package dataset defines the pluggable interface the worker pool opens
// source data through (§4.7 step 2). Concrete openers (NetCDF, GRIB, Zarr
// passthrough, ...) are out of scope; this package only fixes the shape a
// worker needs to build a zarr descriptor and materialize chunks.
package dataset

import "context"

// Variable describes one named array within a dataset: its shape, storage
// dtype, dimension names, attributes, and native chunk tuple.
type Variable struct {
	Name   string
	Shape  []int
	Chunks []int
	Dtype  string
	Dims   []string
	Attrs  map[string]any
}

// Dataset is the handle a worker holds after opening a uri: top-level
// attributes plus one Variable per named array.
type Dataset struct {
	Attrs     map[string]any
	Variables map[string]Variable
	Reader    BlockReader
}

// BlockReader materializes one chunk's raw values given its block indices,
// returning them as a flat slice in row-major order together with the
// shape actually read (which may be smaller than the declared chunk shape
// at an edge block, per §8's chunk-padding invariant).
type BlockReader interface {
	ReadBlock(ctx context.Context, variable string, blockIndices []int) (values []float64, shape []int, err error)
}

// OpenFunc opens a uri and returns its Dataset handle. The worker pool
// takes one as a dependency so the materialization pipeline is agnostic to
// the concrete file format.
type OpenFunc func(ctx context.Context, uri string) (Dataset, error)
