// Package search is the Search Facade (component C, §4.3): the HTTP
// client over the external Solr-like index, and the five high-level
// operations the databrowser API exposes.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/freva-nextgen/databrowser/internal/query"
)

// ErrUpstreamUnavailable indicates the backend index could not be reached.
var ErrUpstreamUnavailable = errors.New("search: backend index unavailable")

// Client wraps a plain net/http.Client for the two index shards (latest
// and historical). No dedicated Solr client library appears anywhere in
// the retrieval pack, so this stays on net/http; see DESIGN.md.
type Client struct {
	httpClient    *http.Client
	latestURL     string
	historicalURL string
}

// NewClient builds a Client targeting the given shard base URLs.
func NewClient(latestURL, historicalURL string) *Client {
	return &Client{
		httpClient:    http.DefaultClient,
		latestURL:     latestURL,
		historicalURL: historicalURL,
	}
}

func (c *Client) baseURL(shard query.Shard) string {
	if shard == query.ShardHistorical {
		return c.historicalURL
	}
	return c.latestURL
}

// solrResponse is the subset of a Solr-style select response this client
// consumes.
type solrResponse struct {
	Response struct {
		NumFound int              `json:"numFound"`
		Docs     []map[string]any `json:"docs"`
	} `json:"response"`
	FacetCounts struct {
		FacetFields map[string][]any `json:"facet_fields"`
	} `json:"facet_counts"`
	NextCursorMark string `json:"nextCursorMark"`
}

// selectDocs issues one GET against shard's /select endpoint with params
// and decodes the response. Connection failures are remapped to
// ErrUpstreamUnavailable (§4.3 error table).
func (c *Client) selectDocs(ctx context.Context, shard query.Shard, params url.Values) (*solrResponse, error) {
	reqURL := c.baseURL(shard) + "/select?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: backend returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var out solrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search: decode backend response: %w", err)
	}
	return &out, nil
}

// deleteByQuery issues the index-side half of a user-data delete (§4.4).
func (c *Client) deleteByQuery(ctx context.Context, shard query.Shard, luceneQuery string) error {
	form := url.Values{"commit": {"true"}}
	reqURL := c.baseURL(shard) + "/update?" + form.Encode()
	body := fmt.Sprintf(`{"delete": {"query": %q}}`, luceneQuery)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: backend returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	return nil
}

// Exists reports whether the latest shard already holds a document
// matching luceneQuery, via a rows=0 select (§4.4 dedup step).
func (c *Client) Exists(ctx context.Context, luceneQuery string) (bool, error) {
	params := url.Values{"q": {luceneQuery}, "rows": {"0"}}
	resp, err := c.selectDocs(ctx, query.ShardLatest, params)
	if err != nil {
		return false, err
	}
	return resp.Response.NumFound > 0, nil
}

// AddDocs is the exported form of addDocs, for the User-Data Ingestor
// (§4.4), which lives outside this package.
func (c *Client) AddDocs(ctx context.Context, shard query.Shard, docs []map[string]any) error {
	return c.addDocs(ctx, shard, docs)
}

// DeleteByQuery is the exported form of deleteByQuery, for the User-Data
// Ingestor's delete operation (§4.4).
func (c *Client) DeleteByQuery(ctx context.Context, shard query.Shard, luceneQuery string) error {
	return c.deleteByQuery(ctx, shard, luceneQuery)
}

// addDocs writes records to the index with commit=true&overwrite=false, as
// the ingestor's batch write requires (§4.4).
func (c *Client) addDocs(ctx context.Context, shard query.Shard, docs []map[string]any) error {
	payload, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	form := url.Values{"commit": {"true"}, "overwrite": {"false"}}
	reqURL := c.baseURL(shard) + "/update?" + form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: backend returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	return nil
}
