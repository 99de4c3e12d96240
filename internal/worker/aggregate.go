package worker

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/freva-nextgen/databrowser/internal/dataset"
)

// GroupKey identifies datasets that share frozen (non-time) dimensions and
// coordinate names, and so are eligible to merge/concatenate (§4.7
// Aggregation).
type GroupKey string

// Grouper derives a GroupKey for a dataset; callers supply this, since only
// they know which dims/coords are "frozen" for their corpus.
type Grouper func(dataset.Dataset) GroupKey

// Merger merges the datasets in one group along the time dimension. It
// returns the merged result, or ok=false when the group's members don't
// share concatenable coordinates, in which case Aggregate keeps them
// unmerged.
type Merger func(group []dataset.Dataset) (merged dataset.Dataset, ok bool)

// clamp bounds the aggregation pool size to [1, 2*NumCPU-1], capped by the
// number of groups actually present (§4.7).
func clamp(n int) int {
	max := 2*runtime.NumCPU() - 1
	if max < 1 {
		max = 1
	}
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

// Aggregate groups datasets by key, merges each group concurrently on a
// bounded pool, and returns the merged result for each group that merges
// and the group's original members, unchanged, for each group that does
// not.
func Aggregate(ctx context.Context, datasets []dataset.Dataset, keyOf Grouper, merge Merger) ([]dataset.Dataset, error) {
	groups := make(map[GroupKey][]dataset.Dataset)
	var order []GroupKey
	for _, ds := range datasets {
		k := keyOf(ds)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], ds)
	}

	results := make([][]dataset.Dataset, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(clamp(len(order)))

	for i, k := range order {
		i, k := i, k
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			members := groups[k]
			merged, ok := merge(members)
			if ok {
				results[i] = []dataset.Dataset{merged}
			} else {
				results[i] = members
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []dataset.Dataset
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
