package chunkstore

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freva-nextgen/databrowser/internal/cache"
	"github.com/freva-nextgen/databrowser/internal/flavour"
	"github.com/freva-nextgen/databrowser/internal/query"
	"github.com/freva-nextgen/databrowser/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSolr serves a single page of canned docs regardless of query, enough
// to exercise Load's uri enumeration.
func fakeSolr(t *testing.T, docs []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"response":       map[string]any{"numFound": len(docs), "docs": docs},
			"facet_counts":   map[string]any{"facet_fields": map[string][]any{}},
			"nextCursorMark": "*",
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

type fakePublisher struct {
	uris   []string
	chunks []string
	err    error
}

func (p *fakePublisher) PublishURI(ctx context.Context, path, uuid string) error {
	if p.err != nil {
		return p.err
	}
	p.uris = append(p.uris, path+"|"+uuid)
	return nil
}

func (p *fakePublisher) PublishChunk(ctx context.Context, uuid, variable, chunk string) error {
	if p.err != nil {
		return p.err
	}
	p.chunks = append(p.chunks, uuid+"/"+variable+"/"+chunk)
	return nil
}

type fakeCache struct {
	status map[string]cache.LoadStatus
	chunks map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{status: map[string]cache.LoadStatus{}, chunks: map[string][]byte{}}
}

func (c *fakeCache) LoadStatusOf(ctx context.Context, uuid string) (cache.LoadStatus, bool, error) {
	s, ok := c.status[uuid]
	return s, ok, nil
}

func (c *fakeCache) WaitForLoadStatus(ctx context.Context, uuid string, timeout time.Duration) (cache.LoadStatus, bool, error) {
	s, ok := c.status[uuid]
	return s, ok, nil
}

func (c *fakeCache) Chunk(ctx context.Context, uuid, variable, chunkID string) ([]byte, bool, error) {
	data, ok := c.chunks[uuid+"/"+variable+"/"+chunkID]
	return data, ok, nil
}

func TestLoadPublishesOneJobPerURIAndStreamsProxyURLs(t *testing.T) {
	srv := fakeSolr(t, []map[string]any{{"uri": "/a.nc"}, {"uri": "/b.nc"}})
	defer srv.Close()

	facade := search.NewFacade(search.NewClient(srv.URL, srv.URL), flavour.New(), nil)
	pub := &fakePublisher{}
	store := New(facade, pub, newFakeCache(), "https://example.org/api/freva-nextgen/data-portal")

	var buf bytes.Buffer
	require.NoError(t, store.Load(context.Background(), query.Input{Flavour: flavour.Freva}, "", &buf))

	assert.Len(t, pub.uris, 2)
	assert.Contains(t, buf.String(), "https://example.org/api/freva-nextgen/data-portal/zarr/")
	assert.Contains(t, buf.String(), ".zarr")
}

func TestLoadIntakeWrapsProxyURLsInCatalogueEnvelope(t *testing.T) {
	srv := fakeSolr(t, []map[string]any{{"uri": "/a.nc", "file": "/a.nc"}})
	defer srv.Close()

	facade := search.NewFacade(search.NewClient(srv.URL, srv.URL), flavour.New(), nil)
	store := New(facade, &fakePublisher{}, newFakeCache(), "https://example.org/data-portal")

	var buf bytes.Buffer
	require.NoError(t, store.Load(context.Background(), query.Input{Flavour: flavour.Freva}, "intake", &buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	entries, ok := decoded["catalog_dict"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "/a.nc", entry["uri"])
	assert.Contains(t, entry["zarr_url"], "/data-portal/zarr/")
}

func TestStatusForUnknownUUIDReturnsErrUUIDUnknown(t *testing.T) {
	store := New(nil, &fakePublisher{}, newFakeCache(), "")
	_, err := store.statusFor(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUUIDUnknown)
}

func TestStatusForFailedJobReturnsErrJobFailed(t *testing.T) {
	c := newFakeCache()
	c.status["job-1"] = cache.LoadStatus{State: cache.StateFailed, Reason: "backend unreachable"}
	store := New(nil, &fakePublisher{}, c, "")

	_, err := store.statusFor(context.Background(), "job-1")
	assert.ErrorIs(t, err, ErrJobFailed)
	assert.ErrorContains(t, err, "backend unreachable")
}

// sampleMeta builds a consolidated .zmetadata payload matching what
// zarr.Consolidated emits: zarr_consolidated_format 1, slash-joined keys.
func sampleMeta(t *testing.T) []byte {
	t.Helper()
	meta, err := json.Marshal(map[string]any{
		"zarr_consolidated_format": 1,
		"metadata": map[string]any{
			".zgroup":     map[string]any{"zarr_format": 2},
			".zattrs":     map[string]any{"title": "demo"},
			"tas/.zarray": map[string]any{"shape": []int{10}},
			"tas/.zattrs": map[string]any{"units": "K"},
		},
	})
	require.NoError(t, err)
	return meta
}

func TestZMetadataZGroupZAttrsAndVariableKeysFromStoredMeta(t *testing.T) {
	c := newFakeCache()
	c.status["job-1"] = cache.LoadStatus{State: cache.StateOK, Meta: sampleMeta(t)}
	store := New(nil, &fakePublisher{}, c, "")
	ctx := context.Background()

	raw, err := store.ZMetadata(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, sampleMeta(t), raw)

	group, err := store.ZGroup(ctx, "job-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"zarr_format":2}`, string(group))

	attrs, err := store.ZAttrs(ctx, "job-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"demo"}`, string(attrs))

	zarray, err := store.VariableZArray(ctx, "job-1", "tas")
	require.NoError(t, err)
	assert.JSONEq(t, `{"shape":[10]}`, string(zarray))

	zattrs, err := store.VariableZAttrs(ctx, "job-1", "tas")
	require.NoError(t, err)
	assert.JSONEq(t, `{"units":"K"}`, string(zattrs))

	_, err = store.VariableZArray(ctx, "job-1", "unknown")
	assert.ErrorContains(t, err, "unknown metadata key")
}

func TestChunkReturnsCachedBytesWithoutPublishing(t *testing.T) {
	c := newFakeCache()
	c.status["job-1"] = cache.LoadStatus{State: cache.StateOK, Meta: sampleMeta(t)}
	c.chunks["job-1/tas/0.0.0"] = []byte("cached-bytes")
	pub := &fakePublisher{}
	store := New(nil, pub, c, "")

	data, err := store.Chunk(context.Background(), "job-1", "tas", "0.0.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached-bytes"), data)
	assert.Empty(t, pub.chunks)
}

func TestChunkPublishesAndPollsUntilTimeout(t *testing.T) {
	c := newFakeCache()
	c.status["job-1"] = cache.LoadStatus{State: cache.StateOK, Meta: sampleMeta(t)}
	pub := &fakePublisher{}
	store := New(nil, pub, c, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := store.Chunk(ctx, "job-1", "tas", "0.0.0")
	assert.Error(t, err)
	assert.Len(t, pub.chunks, 1)
}

func TestStatusUnknownUUID(t *testing.T) {
	store := New(nil, &fakePublisher{}, newFakeCache(), "")
	_, err := store.Status(context.Background(), "missing", time.Second)
	assert.ErrorIs(t, err, ErrUUIDUnknown)
}
