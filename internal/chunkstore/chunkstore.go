// Package chunkstore implements the Chunk-Store Front-End (component G,
// §4.6): the `/load/{flavour}` materialization trigger and the zarr-key
// endpoints a client reads the resulting store through.
package chunkstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/freva-nextgen/databrowser/internal/cache"
	"github.com/freva-nextgen/databrowser/internal/catalog"
	"github.com/freva-nextgen/databrowser/internal/query"
	"github.com/freva-nextgen/databrowser/internal/search"
	"github.com/google/uuid"
)

// ErrUUIDUnknown is returned when a zarr key is requested for a uuid the
// cache has never observed a load-status record for.
var ErrUUIDUnknown = errors.New("chunkstore: uuid not observed")

// ErrJobFailed is returned when the uuid's materialization job ended in
// the FAILED state.
var ErrJobFailed = errors.New("chunkstore: materialization failed")

// ErrChunkTimeout is returned when a requested chunk never appears in the
// cache within the bounded wait.
var ErrChunkTimeout = errors.New("chunkstore: chunk materialization timed out")

// Publisher is the subset of bus.Bus the front-end needs.
type Publisher interface {
	PublishURI(ctx context.Context, path, uuid string) error
	PublishChunk(ctx context.Context, uuid, variable, chunk string) error
}

// CacheClient is the subset of cache.Cache the front-end reads from.
type CacheClient interface {
	LoadStatusOf(ctx context.Context, uuid string) (cache.LoadStatus, bool, error)
	WaitForLoadStatus(ctx context.Context, uuid string, timeout time.Duration) (cache.LoadStatus, bool, error)
	Chunk(ctx context.Context, uuid, variable, chunkID string) ([]byte, bool, error)
}

// chunkMaterializeTimeout bounds how long a chunk-key request waits for a
// freshly published chunk message to land in the cache (§4.6 item: poll the
// cache up to a bounded timeout).
const chunkMaterializeTimeout = 20 * time.Second

// Store wires the Search Facade, the pub/sub bus, and the shared cache into
// the materialization trigger and zarr key endpoints.
type Store struct {
	facade       *search.Facade
	publisher    Publisher
	cache        CacheClient
	proxyBaseURL string
}

// New builds a Store. proxyBaseURL is prefixed to every streamed zarr URL
// (§4.6 item 2), e.g. "https://api.example.org/api/freva-nextgen/data-portal".
func New(facade *search.Facade, publisher Publisher, cacheClient CacheClient, proxyBaseURL string) *Store {
	return &Store{facade: facade, publisher: publisher, cache: cacheClient, proxyBaseURL: proxyBaseURL}
}

// Load implements `GET /load/{flavour}` (§4.6 item 1-3): enumerate matching
// uris (uniq_key forced to uri), publish a materialization job per uri, and
// stream back the proxy zarr URL for each. When catalogueType is "intake"
// the URLs are wrapped in the intake envelope instead of emitted one per
// line.
func (s *Store) Load(ctx context.Context, in query.Input, catalogueType string, w io.Writer) error {
	if catalogueType == "intake" {
		return s.loadIntake(ctx, in, w)
	}

	bw := bufio.NewWriter(w)
	defer bw.Flush()
	return s.facade.Uris(ctx, in, func(uri string) error {
		proxyURL, err := s.triggerLoad(ctx, uri)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(bw, proxyURL)
		return err
	})
}

func (s *Store) loadIntake(ctx context.Context, in query.Input, w io.Writer) error {
	header := s.facade.BuildIntakeHeader(in.Flavour, catalog.UniqKeyURI)
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(headerJSON[:len(headerJSON)-1]); err != nil {
		return err
	}
	if _, err := bw.WriteString(`,"catalog_dict":[`); err != nil {
		return err
	}

	first := true
	err = s.facade.Uris(ctx, in, func(uri string) error {
		proxyURL, err := s.triggerLoad(ctx, uri)
		if err != nil {
			return err
		}
		if !first {
			bw.WriteByte(',')
		}
		first = false
		entry, err := json.Marshal(map[string]string{"uri": uri, "zarr_url": proxyURL})
		if err != nil {
			return err
		}
		_, err = bw.Write(entry)
		return err
	})
	if err != nil {
		return err
	}

	if _, err := bw.WriteString("]}"); err != nil {
		return err
	}
	return bw.Flush()
}

// triggerLoad computes uri's deterministic job uuid, publishes the
// materialization request, and returns the proxy URL the client should poll
// (§4.6 item 2).
func (s *Store) triggerLoad(ctx context.Context, uri string) (string, error) {
	jobUUID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(uri)).String()
	if err := s.publisher.PublishURI(ctx, uri, jobUUID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/zarr/%s.zarr", s.proxyBaseURL, jobUUID), nil
}

// loadedMeta unmarshals the consolidated zarr descriptor the worker pool
// stored under status.Meta (zarr_consolidated_format 1: a flat map keyed by
// slash-joined metadata-file paths), so the metadata-key handlers can pick
// individual keys out of it without re-decoding each one.
type loadedMeta struct {
	Metadata map[string]json.RawMessage `json:"metadata"`
}

// statusFor fetches and validates the load status for uuid, translating the
// job state into the error table §4.6 expects callers to see.
func (s *Store) statusFor(ctx context.Context, uuid string) (cache.LoadStatus, error) {
	status, ok, err := s.cache.LoadStatusOf(ctx, uuid)
	if err != nil {
		return cache.LoadStatus{}, err
	}
	if !ok {
		return cache.LoadStatus{}, ErrUUIDUnknown
	}
	if status.State == cache.StateFailed {
		return status, fmt.Errorf("%w: %s", ErrJobFailed, status.Reason)
	}
	return status, nil
}

func (s *Store) meta(ctx context.Context, uuid string) (loadedMeta, error) {
	status, err := s.statusFor(ctx, uuid)
	if err != nil {
		return loadedMeta{}, err
	}
	var m loadedMeta
	if err := json.Unmarshal(status.Meta, &m); err != nil {
		return loadedMeta{}, fmt.Errorf("chunkstore: decode stored metadata: %w", err)
	}
	return m, nil
}

// ZMetadata serves `.zmetadata` (§4.6): the full consolidated descriptor.
func (s *Store) ZMetadata(ctx context.Context, uuid string) ([]byte, error) {
	status, err := s.statusFor(ctx, uuid)
	if err != nil {
		return nil, err
	}
	return status.Meta, nil
}

// metaKey picks one slash-joined key (".zgroup", ".zattrs", "{var}/.zarray",
// "{var}/.zattrs") out of uuid's consolidated metadata.
func (s *Store) metaKey(ctx context.Context, uuid, key string) ([]byte, error) {
	m, err := s.meta(ctx, uuid)
	if err != nil {
		return nil, err
	}
	raw, ok := m.Metadata[key]
	if !ok {
		return nil, fmt.Errorf("chunkstore: unknown metadata key %q", key)
	}
	return raw, nil
}

// ZGroup serves the top-level `.zgroup` key: the zarr format marker every
// consolidated group carries.
func (s *Store) ZGroup(ctx context.Context, uuid string) ([]byte, error) {
	return s.metaKey(ctx, uuid, ".zgroup")
}

// ZAttrs serves the top-level `.zattrs` key.
func (s *Store) ZAttrs(ctx context.Context, uuid string) ([]byte, error) {
	return s.metaKey(ctx, uuid, ".zattrs")
}

// VariableZArray serves `{var}/.zarray`.
func (s *Store) VariableZArray(ctx context.Context, uuid, variable string) ([]byte, error) {
	return s.metaKey(ctx, uuid, variable+"/.zarray")
}

// VariableZAttrs serves `{var}/.zattrs`.
func (s *Store) VariableZAttrs(ctx context.Context, uuid, variable string) ([]byte, error) {
	return s.metaKey(ctx, uuid, variable+"/.zattrs")
}

// Chunk serves `{var}/{chunk_id}` (§4.6): if the bytes aren't cached yet,
// publish a chunk request and poll until they appear or the bounded
// timeout elapses.
func (s *Store) Chunk(ctx context.Context, uuid, variable, chunkID string) ([]byte, error) {
	if _, err := s.statusFor(ctx, uuid); err != nil {
		return nil, err
	}
	if data, ok, err := s.cache.Chunk(ctx, uuid, variable, chunkID); err != nil {
		return nil, err
	} else if ok {
		return data, nil
	}

	if err := s.publisher.PublishChunk(ctx, uuid, variable, chunkID); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(chunkMaterializeTimeout)
	const pollInterval = 200 * time.Millisecond
	for {
		data, ok, err := s.cache.Chunk(ctx, uuid, variable, chunkID)
		if err != nil {
			return nil, err
		}
		if ok {
			return data, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrChunkTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Status implements `GET .../status?timeout=<s>` (§4.6): poll the cache and
// report the job's terminal state, or ErrUUIDUnknown if it was never
// observed.
func (s *Store) Status(ctx context.Context, uuid string, timeout time.Duration) (cache.LoadStatus, error) {
	status, ok, err := s.cache.WaitForLoadStatus(ctx, uuid, timeout)
	if err != nil {
		return cache.LoadStatus{}, err
	}
	if !ok {
		return cache.LoadStatus{}, ErrUUIDUnknown
	}
	return status, nil
}
