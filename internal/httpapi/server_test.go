package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freva-nextgen/databrowser/internal/authgate"
	"github.com/freva-nextgen/databrowser/internal/cache"
	"github.com/freva-nextgen/databrowser/internal/chunkstore"
	"github.com/freva-nextgen/databrowser/internal/flavour"
	"github.com/freva-nextgen/databrowser/internal/search"
)

// fakeSolr serves a single page of canned docs/facets, same shape as
// search's own facade_test.go fake.
func fakeSolr(t *testing.T, docs []map[string]any, facets map[string][]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"response":       map[string]any{"numFound": len(docs), "docs": docs},
			"facet_counts":   map[string]any{"facet_fields": facets},
			"nextCursorMark": "*",
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

// fakeOIDCProvider serves a minimal discovery document and empty JWKS, so
// Gate.ensureInitialized succeeds; verifying a real token still fails
// (no signing key), which is enough to exercise the 401 "missing/invalid
// token" path without a live provider.
func fakeOIDCProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/auth",
			"token_endpoint":         srv.URL + "/token",
			"userinfo_endpoint":      srv.URL + "/userinfo",
			"jwks_uri":               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"keys": []any{}})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, docs []map[string]any, chunks *chunkstore.Store) *Server {
	t.Helper()
	srv := fakeSolr(t, docs, nil)
	t.Cleanup(srv.Close)

	facade := search.NewFacade(search.NewClient(srv.URL, srv.URL), flavour.New(), nil)
	gate := authgate.New(fakeOIDCProvider(t).URL, "client-id", "")
	return New(facade, flavour.New(), nil, gate, chunks)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOverviewReportsUserFlavour(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/freva-nextgen/databrowser/overview", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Flavours []struct {
			Flavour       string `json:"flavour"`
			IsUserFlavour bool   `json:"is_user_flavour"`
		} `json:"flavours"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	var sawUser bool
	for _, f := range body.Flavours {
		if f.Flavour == "user" {
			sawUser = true
			assert.True(t, f.IsUserFlavour)
		} else {
			assert.False(t, f.IsUserFlavour)
		}
	}
	assert.True(t, sawUser)
}

func TestDataSearchStreamsTextLines(t *testing.T) {
	s := newTestServer(t, []map[string]any{{"uri": "/a.nc"}, {"uri": "/b.nc"}}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/freva-nextgen/databrowser/data-search/freva/uri", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/a.nc")
	assert.Contains(t, rec.Body.String(), "/b.nc")
}

func TestDataSearchUnknownFlavourIs422(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/freva-nextgen/databrowser/data-search/bogus/file", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMetadataSearchReturnsJSON(t *testing.T) {
	s := newTestServer(t, []map[string]any{{"file": "/a.nc"}}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/freva-nextgen/databrowser/metadata-search/freva/file", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["total_count"])
}

func TestExtendedSearchHonorsMaxResults(t *testing.T) {
	s := newTestServer(t, []map[string]any{{"file": "/a.nc"}}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/freva-nextgen/databrowser/extended-search/freva/file?max-results=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIntakeCatalogueEmptyIs404(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/freva-nextgen/databrowser/intake-catalogue/freva/file", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIntakeCatalogueTooLargeIs413(t *testing.T) {
	s := newTestServer(t, []map[string]any{{"file": "/a.nc"}, {"file": "/b.nc"}}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/freva-nextgen/databrowser/intake-catalogue/freva/file?max-results=1", nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCountEndpoint(t *testing.T) {
	s := newTestServer(t, []map[string]any{{"file": "/a.nc"}}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/freva-nextgen/databrowser/count/freva/file", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["total_count"])
}

func TestUserDataRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/freva-nextgen/databrowser/userdata", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/freva-nextgen/databrowser/userdata", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoadRouteRequiresAuth(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/freva-nextgen/databrowser/load/freva", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthStatusUnreachableDiscoveryIs503(t *testing.T) {
	s := New(search.NewFacade(search.NewClient("", ""), flavour.New(), nil), flavour.New(), nil,
		authgate.New("http://127.0.0.1:1", "client-id", ""), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/freva-nextgen/auth/v2/status", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestZarrRoutesAnswer503WhenChunkStoreDisabled(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	// Call the handler directly, bypassing the Auth Gate middleware, since
	// this test targets requireChunkStore, not authentication.
	s.handleLoad(rec, httptest.NewRequest(http.MethodGet, "/api/freva-nextgen/databrowser/load/freva", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, zarrStreamDisabled+"\n", rec.Body.String())
}

// fakePublisher and fakeCache satisfy chunkstore's Publisher/CacheClient
// interfaces with an in-memory map, letting the zarr routes be exercised
// without a live Redis/Kafka pair.
type fakePublisher struct{}

func (fakePublisher) PublishURI(ctx context.Context, path, uuid string) error { return nil }
func (fakePublisher) PublishChunk(ctx context.Context, uuid, variable, chunk string) error {
	return nil
}

type fakeZarrCache struct {
	statuses map[string]cache.LoadStatus
}

func (c *fakeZarrCache) LoadStatusOf(ctx context.Context, uuid string) (cache.LoadStatus, bool, error) {
	s, ok := c.statuses[uuid]
	return s, ok, nil
}

func (c *fakeZarrCache) WaitForLoadStatus(ctx context.Context, uuid string, timeout time.Duration) (cache.LoadStatus, bool, error) {
	s, ok := c.statuses[uuid]
	return s, ok, nil
}

func (c *fakeZarrCache) Chunk(ctx context.Context, uuid, variable, chunkID string) ([]byte, bool, error) {
	return nil, false, nil
}

// TestZarrKeyHandlersStripDotZarrSuffix calls the handlers directly
// (bypassing the Auth Gate, which has no provider configured in this
// test) to prove the {uuidDotZarr} wildcard's suffix is stripped
// before reaching chunkstore.
func TestZarrKeyHandlersStripDotZarrSuffix(t *testing.T) {
	fc := &fakeZarrCache{statuses: map[string]cache.LoadStatus{
		"abc123": {State: cache.StateOK, Meta: []byte(`{"zarr_consolidated_format":1,"metadata":{".zattrs":{"title":"demo"}}}`)},
	}}
	facade := search.NewFacade(search.NewClient("", ""), flavour.New(), nil)
	chunks := chunkstore.New(facade, fakePublisher{}, fc, "http://localhost/api/freva-nextgen/data-portal")
	s := New(facade, flavour.New(), nil, authgate.New("", "", ""), chunks)

	req := httptest.NewRequest(http.MethodGet, "/zarr/abc123.zarr/.zattrs", nil)
	req.SetPathValue("uuidDotZarr", "abc123.zarr")
	rec := httptest.NewRecorder()
	s.handleZAttrs(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var attrs map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attrs))
	assert.Equal(t, "demo", attrs["title"])
}

func TestZarrKeyHandlerUnknownUUIDIs404(t *testing.T) {
	fc := &fakeZarrCache{statuses: map[string]cache.LoadStatus{}}
	facade := search.NewFacade(search.NewClient("", ""), flavour.New(), nil)
	chunks := chunkstore.New(facade, fakePublisher{}, fc, "http://localhost")
	s := New(facade, flavour.New(), nil, authgate.New("", "", ""), chunks)

	req := httptest.NewRequest(http.MethodGet, "/zarr/missing.zarr/.zattrs", nil)
	req.SetPathValue("uuidDotZarr", "missing.zarr")
	rec := httptest.NewRecorder()
	s.handleZAttrs(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
