// Package worker is the materialization pipeline's process-parallel
// consumer: it opens datasets, builds their zarr descriptor, and
// materializes individual chunks on demand (§4.7).
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freva-nextgen/databrowser/internal/bus"
	"github.com/freva-nextgen/databrowser/internal/cache"
	"github.com/freva-nextgen/databrowser/internal/dataset"
	"github.com/freva-nextgen/databrowser/internal/zarr"
)

// Pool consumes data-portal messages and drives the open/materialize state
// machine described in §4.7.
type Pool struct {
	sub   *bus.Subscriber
	cache *cache.Cache
	open  dataset.OpenFunc
	comp  Compressor

	mu       sync.Mutex
	datasets map[string]dataset.Dataset // in-process handle cache, uuid -> opened dataset
}

// NewPool builds a worker bound to sub, backed by cache and opening
// datasets with open. comp compresses materialized chunk bytes before
// they're cached; DefaultCompressor is used if comp is nil.
func NewPool(sub *bus.Subscriber, c *cache.Cache, open dataset.OpenFunc, comp Compressor) *Pool {
	if comp == nil {
		comp = DefaultCompressor{}
	}
	return &Pool{
		sub:      sub,
		cache:    c,
		open:     open,
		comp:     comp,
		datasets: make(map[string]dataset.Dataset),
	}
}

// Run blocks consuming messages until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	for {
		env, err := p.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("worker: failed to read next bus message")
			continue
		}
		switch {
		case env.Uri != nil:
			p.handleURI(ctx, *env.Uri)
		case env.Chunk != nil:
			p.handleChunk(ctx, *env.Chunk)
		}
	}
}

func (p *Pool) handleURI(ctx context.Context, msg bus.URIMessage) {
	status, ok, err := p.cache.LoadStatusOf(ctx, msg.UUID)
	if err != nil {
		log.Warn().Err(err).Str("uuid", msg.UUID).Msg("worker: load status read failed")
	}
	if ok && status.State != cache.StateWaiting {
		return // already in progress, done, or failed; don't re-run
	}
	if err := p.cache.SetLoadStatus(ctx, msg.UUID, cache.LoadStatus{State: cache.StateInProgress, URI: msg.Path}); err != nil {
		log.Warn().Err(err).Str("uuid", msg.UUID).Msg("worker: failed to mark in-progress")
	}

	ds, err := p.open(ctx, msg.Path)
	if err != nil {
		p.fail(ctx, msg.UUID, err)
		return
	}

	group := zarr.Build(ds, p.comp.Descriptor())
	meta, err := json.Marshal(zarr.Consolidated(group))
	if err != nil {
		p.fail(ctx, msg.UUID, err)
		return
	}

	p.mu.Lock()
	p.datasets[msg.UUID] = ds
	p.mu.Unlock()

	objURL := fmt.Sprintf("/api/freva-nextgen/data-portal/zarr/%s.zarr", msg.UUID)
	if err := p.cache.SetLoadStatus(ctx, msg.UUID, cache.LoadStatus{
		State:  cache.StateOK,
		Meta:   meta,
		ObjURL: objURL,
		URI:    msg.Path,
	}); err != nil {
		log.Warn().Err(err).Str("uuid", msg.UUID).Msg("worker: failed to persist OK status")
	}
}

func (p *Pool) fail(ctx context.Context, uuid string, cause error) {
	log.Error().Err(cause).Str("uuid", uuid).Msg("worker: open_dataset failed")
	if err := p.cache.SetLoadStatus(ctx, uuid, cache.LoadStatus{State: cache.StateFailed, Reason: cause.Error()}); err != nil {
		log.Warn().Err(err).Str("uuid", uuid).Msg("worker: failed to persist FAILED status")
	}
}

// datasetFor returns the uuid's opened dataset, preferring the in-process
// handle but falling back to re-opening it from its recorded source uri
// (§4.7: "load the worker-local or re-materialized dataset"). This is what
// makes chunk requests safe to route to a worker replica other than the one
// that ran open_dataset.
func (p *Pool) datasetFor(ctx context.Context, uuid string) (dataset.Dataset, error) {
	p.mu.Lock()
	ds, ok := p.datasets[uuid]
	p.mu.Unlock()
	if ok {
		return ds, nil
	}

	status, ok, err := p.cache.LoadStatusOf(ctx, uuid)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("worker: load status lookup for re-materialization: %w", err)
	}
	if !ok || status.URI == "" {
		return dataset.Dataset{}, fmt.Errorf("worker: no recorded source uri for uuid %q", uuid)
	}

	ds, err = p.open(ctx, status.URI)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("worker: re-materialize dataset from %q: %w", status.URI, err)
	}

	p.mu.Lock()
	p.datasets[uuid] = ds
	p.mu.Unlock()
	log.Info().Str("uuid", uuid).Str("uri", status.URI).Msg("worker: re-materialized dataset for chunk request on a different worker")
	return ds, nil
}

func (p *Pool) handleChunk(ctx context.Context, msg bus.ChunkMessage) {
	ds, err := p.datasetFor(ctx, msg.UUID)
	if err != nil {
		log.Warn().Err(err).Str("uuid", msg.UUID).Msg("worker: could not obtain dataset for chunk request")
		return
	}
	v, ok := ds.Variables[msg.Variable]
	if !ok {
		log.Warn().Str("uuid", msg.UUID).Str("variable", msg.Variable).Msg("worker: unknown variable")
		return
	}

	indices, err := zarr.ParseChunkID(msg.Chunk)
	if err != nil {
		log.Warn().Err(err).Msg("worker: bad chunk id")
		return
	}

	values, shape, err := ds.Reader.ReadBlock(ctx, msg.Variable, indices)
	if err != nil {
		log.Warn().Err(err).Str("uuid", msg.UUID).Str("chunk", msg.Chunk).Msg("worker: failed to read block")
		return
	}

	padded := PadBlock(values, shape, v.Chunks, fillValue(v))
	if raw, ok := v.Attrs["_filters"].([]any); ok {
		for _, f := range raw {
			config, ok := f.(map[string]any)
			if !ok {
				log.Warn().Str("uuid", msg.UUID).Str("variable", msg.Variable).Msg("worker: malformed filter config")
				return
			}
			filter, err := FilterFor(config)
			if err != nil {
				log.Warn().Err(err).Str("uuid", msg.UUID).Str("variable", msg.Variable).Msg("worker: failed to resolve declared filter")
				return
			}
			padded = filter.Encode(padded)
		}
	}

	encoded, err := p.comp.Compress(Encode(padded, v.Dtype))
	if err != nil {
		log.Warn().Err(err).Msg("worker: compression failed")
		return
	}
	if err := p.cache.SetChunk(ctx, msg.UUID, msg.Variable, msg.Chunk, encoded); err != nil {
		log.Warn().Err(err).Msg("worker: failed to cache chunk")
	}
}

func fillValue(v dataset.Variable) float64 {
	if fv, ok := v.Attrs["_FillValue"].(float64); ok {
		return fv
	}
	return 0
}
