package search

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/freva-nextgen/databrowser/internal/catalog"
	"github.com/freva-nextgen/databrowser/internal/flavour"
	"github.com/freva-nextgen/databrowser/internal/query"
	"github.com/freva-nextgen/databrowser/internal/recorder"
)

// batchSize is the cursor-mark pagination batch size every streaming
// operation uses (§4.3 item 3).
const batchSize = 150

// ErrNoRows is returned by IntakeCatalogue when the query matches nothing.
var ErrNoRows = errors.New("search: no matching records")

// ErrTooLarge is returned by IntakeCatalogue when the match count exceeds
// the caller-supplied max_results.
var ErrTooLarge = errors.New("search: result too large for max_results")

// Facade implements the Search Facade's five operations over a Client.
type Facade struct {
	client     *Client
	translator *flavour.Translator
	recorder   *recorder.Recorder
}

// NewFacade builds a Facade. rec may be nil to disable search-query
// recording (useful in tests).
func NewFacade(client *Client, translator *flavour.Translator, rec *recorder.Recorder) *Facade {
	return &Facade{client: client, translator: translator, recorder: rec}
}

// FlavourOverview describes one flavour's name and visible facets.
type FlavourOverview struct {
	Flavour flavour.Name `json:"flavour"`
	Facets  []string     `json:"facets"`
}

// cordexOnlyCanonical lists the canonical facets only the cordex flavour
// surfaces (§4.1).
var cordexOnlyCanonical = map[string]struct{}{"rcm_name": {}, "rcm_version": {}, "driving_model": {}}

// Overview implements §4.3 item 1: a static listing of flavours and each
// flavour's visible facets, excluding cordex-only keys everywhere but
// cordex itself.
func (f *Facade) Overview() []FlavourOverview {
	out := make([]FlavourOverview, 0, len(flavour.All))
	for _, name := range flavour.All {
		var facets []string
		for _, canonical := range catalog.CanonicalFacets {
			if _, cordexOnly := cordexOnlyCanonical[canonical]; cordexOnly && name != flavour.Cordex {
				continue
			}
			facets = append(facets, f.translator.Forward(name, canonical))
		}
		sort.Strings(facets)
		out = append(out, FlavourOverview{Flavour: name, Facets: facets})
	}
	return out
}

// FacetCount is one (value, count) pair within a facet's histogram.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// MetadataResult is the shape §4.3 item 2 returns.
type MetadataResult struct {
	TotalCount    int                     `json:"total_count"`
	Facets        map[string][]FacetCount `json:"facets"`
	FacetMapping  map[string]string       `json:"facet_mapping"`
	PrimaryFacets []string                `json:"primary_facets"`
	SearchResults []map[string]any        `json:"search_results,omitempty"`
}

// MetadataSearch implements §4.3 item 2. maxResults=0 disables records but
// still returns facet counts.
func (f *Facade) MetadataSearch(ctx context.Context, in query.Input, requestedFacets []string, maxResults int) (MetadataResult, error) {
	compiled, err := query.Compile(in, f.translator)
	if err != nil {
		return MetadataResult{}, err
	}

	facetFields := requestedFacets
	if len(facetFields) == 0 {
		facetFields = f.translator.PrimaryFacets(in.Flavour)
	}

	params := baseParams(compiled)
	params.Set("rows", strconv.Itoa(maxResults))
	params.Set("facet", "true")
	params.Set("facet.mincount", "1")
	for _, name := range facetFields {
		params.Add("facet.field", name)
	}

	resp, err := f.client.selectDocs(ctx, compiled.Shard, params)
	if err != nil {
		return MetadataResult{}, err
	}

	result := MetadataResult{
		TotalCount:    resp.Response.NumFound,
		Facets:        decodeFacetCounts(resp.FacetCounts.FacetFields),
		FacetMapping:  mappingFor(f.translator, in.Flavour, facetFields),
		PrimaryFacets: f.translator.PrimaryFacets(in.Flavour),
	}
	if maxResults > 0 {
		result.SearchResults = resp.Response.Docs
	}

	f.record(in, compiled)
	return result, nil
}

// decodeFacetCounts converts Solr's flattened [value, count, value, count,
// ...] facet.field encoding into FacetCount pairs.
func decodeFacetCounts(raw map[string][]any) map[string][]FacetCount {
	out := make(map[string][]FacetCount, len(raw))
	for name, flat := range raw {
		var counts []FacetCount
		for i := 0; i+1 < len(flat); i += 2 {
			value, _ := flat[i].(string)
			count := toInt(flat[i+1])
			counts = append(counts, FacetCount{Value: value, Count: count})
		}
		out[name] = counts
	}
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

func mappingFor(tr *flavour.Translator, f flavour.Name, fields []string) map[string]string {
	m := make(map[string]string, len(fields))
	for _, name := range fields {
		m[tr.Backward(f, name)] = name
	}
	return m
}

// DataSearch implements §4.3 item 3: stream one uniqKey value per line,
// paginating the backend's cursor mark until it stops advancing (§8's
// cursor-termination invariant).
func (f *Facade) DataSearch(ctx context.Context, in query.Input, uniqKey catalog.UniqKey, w io.Writer) error {
	compiled, err := query.Compile(in, f.translator)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	err = f.iterateUniqValues(ctx, compiled, uniqKey, func(value string) error {
		_, err := fmt.Fprintln(bw, value)
		return err
	}, func() error {
		if err := bw.Flush(); err != nil {
			return err
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		return err
	}

	f.record(in, compiled)
	return nil
}

// Uris implements the uri enumeration the Chunk-Store Front-End's
// `/load/{flavour}` endpoint needs (§4.6 item 1): every matching record's
// uri, in the same cursor-mark order DataSearch uses, forced to uniqKey=uri.
func (f *Facade) Uris(ctx context.Context, in query.Input, fn func(uri string) error) error {
	compiled, err := query.Compile(in, f.translator)
	if err != nil {
		return err
	}
	if err := f.iterateUniqValues(ctx, compiled, catalog.UniqKeyURI, fn, nil); err != nil {
		return err
	}
	f.record(in, compiled)
	return nil
}

// iterateUniqValues pages through compiled with the shared cursor-mark
// protocol, invoking fn per value and flush after every backend page.
func (f *Facade) iterateUniqValues(ctx context.Context, compiled query.Compiled, uniqKey catalog.UniqKey, fn func(value string) error, flush func() error) error {
	cursor := "*"
	for {
		params := baseParams(compiled)
		params.Set("rows", strconv.Itoa(batchSize))
		params.Set("sort", string(uniqKey)+" desc")
		params.Set("cursorMark", cursor)

		resp, err := f.client.selectDocs(ctx, compiled.Shard, params)
		if err != nil {
			return err
		}
		for _, doc := range resp.Response.Docs {
			value, _ := doc[string(uniqKey)].(string)
			if err := fn(value); err != nil {
				return err
			}
		}
		if flush != nil {
			if err := flush(); err != nil {
				return err
			}
		}
		if resp.NextCursorMark == "" || resp.NextCursorMark == cursor {
			break
		}
		cursor = resp.NextCursorMark
	}
	return nil
}

// Count implements §4.3 item 5.
type CountResult struct {
	TotalCount int                     `json:"total_count"`
	Facets     map[string][]FacetCount `json:"facets,omitempty"`
}

func (f *Facade) Count(ctx context.Context, in query.Input, detail bool) (CountResult, error) {
	compiled, err := query.Compile(in, f.translator)
	if err != nil {
		return CountResult{}, err
	}
	params := baseParams(compiled)
	params.Set("rows", "0")
	if detail {
		params.Set("facet", "true")
		params.Set("facet.mincount", "1")
		for _, name := range f.translator.PrimaryFacets(in.Flavour) {
			params.Add("facet.field", name)
		}
	}
	resp, err := f.client.selectDocs(ctx, compiled.Shard, params)
	if err != nil {
		return CountResult{}, err
	}
	result := CountResult{TotalCount: resp.Response.NumFound}
	if detail {
		result.Facets = decodeFacetCounts(resp.FacetCounts.FacetFields)
	}
	f.record(in, compiled)
	return result, nil
}

func baseParams(compiled query.Compiled) url.Values {
	params := url.Values{}
	params["q"] = compiled.Params["q"]
	params["fq"] = compiled.Params["fq"]
	return params
}

// record fires the Result Recorder after a successful search (§4.3).
func (f *Facade) record(in query.Input, compiled query.Compiled) {
	if f.recorder == nil {
		return
	}
	f.recorder.Record(map[string]any{"flavour": in.Flavour}, compiled.Params)
}
