package worker

import (
	"context"
	"testing"

	"github.com/freva-nextgen/databrowser/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadBlockFillsEdgeChunk(t *testing.T) {
	// A 2x3 declared chunk, but only a 1x2 block was actually read (an edge
	// block at the end of a dataset axis).
	src := []float64{1, 2}
	padded := PadBlock(src, []int{1, 2}, []int{2, 3}, -1)

	assert.Equal(t, []float64{
		1, 2, -1,
		-1, -1, -1,
	}, padded)
}

func TestPadBlockFullSizeIsUnchanged(t *testing.T) {
	src := []float64{1, 2, 3, 4}
	padded := PadBlock(src, []int{2, 2}, []int{2, 2}, -1)
	assert.Equal(t, src, padded)
}

func TestCompressDecompressRoundtrip(t *testing.T) {
	c := DefaultCompressor{}
	original := Encode([]float64{1, 2, 3.5, -4}, "float64")

	compressed, err := c.Compress(original)
	require.NoError(t, err)

	decompressed, err := c.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestDefaultCompressorDescriptorMatchesCodecItEmits(t *testing.T) {
	c := DefaultCompressor{}
	assert.Equal(t, map[string]any{"id": "zlib", "level": 6}, c.Descriptor())
}

func TestDeltaFilterEncodesSuccessiveDifferences(t *testing.T) {
	f, err := FilterFor(map[string]any{"id": "delta"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1, 1}, f.Encode([]float64{1, 2, 3, 4, 5}))
}

func TestFilterForRejectsUnknownID(t *testing.T) {
	_, err := FilterFor(map[string]any{"id": "shuffle"})
	assert.Error(t, err)
}

func TestAggregateMergesMatchingGroupsAndKeepsOthersSeparate(t *testing.T) {
	dsA := dataset.Dataset{Attrs: map[string]any{"id": "a"}}
	dsB := dataset.Dataset{Attrs: map[string]any{"id": "b"}}
	dsC := dataset.Dataset{Attrs: map[string]any{"id": "c"}}

	keyOf := func(ds dataset.Dataset) GroupKey {
		id := ds.Attrs["id"].(string)
		if id == "a" || id == "b" {
			return "mergeable"
		}
		return GroupKey(id)
	}

	merge := func(group []dataset.Dataset) (dataset.Dataset, bool) {
		if len(group) < 2 {
			return dataset.Dataset{}, false
		}
		return dataset.Dataset{Attrs: map[string]any{"id": "merged"}}, true
	}

	out, err := Aggregate(context.Background(), []dataset.Dataset{dsA, dsB, dsC}, keyOf, merge)
	require.NoError(t, err)
	require.Len(t, out, 2)

	var ids []string
	for _, ds := range out {
		ids = append(ids, ds.Attrs["id"].(string))
	}
	assert.Contains(t, ids, "merged")
	assert.Contains(t, ids, "c")
}
