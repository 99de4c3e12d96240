// Package ingest implements the User-Data Ingestor (component E, §4.4):
// validating, normalizing, deduplicating, and dual-writing caller-supplied
// records to the backend index and the document store.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/freva-nextgen/databrowser/internal/catalog"
	"github.com/freva-nextgen/databrowser/internal/query"
	"github.com/rs/zerolog/log"
)

// requiredFields lists the facets every incoming record must carry (§4.4).
var requiredFields = []string{"file", "variable", "time", "time_frequency"}

// batchSize is the ingestor's write batch size (§4.4).
const batchSize = 150

// Index is the subset of search.Client the ingestor writes through.
type Index interface {
	Exists(ctx context.Context, luceneQuery string) (bool, error)
	AddDocs(ctx context.Context, shard query.Shard, docs []map[string]any) error
	DeleteByQuery(ctx context.Context, shard query.Shard, luceneQuery string) error
}

// DocStore is the subset of docstore.Store the ingestor dual-writes to.
type DocStore interface {
	UpsertUserRecord(ctx context.Context, file, uri string, payload any) error
	DeleteUserRecordsMatching(ctx context.Context, match map[string]string) (int64, error)
}

// Ingestor implements add/delete over a backend index and document store.
type Ingestor struct {
	index Index
	doc   DocStore
}

// New builds an Ingestor.
func New(index Index, doc DocStore) *Ingestor {
	return &Ingestor{index: index, doc: doc}
}

// ErrAllInvalid is returned when every submitted record fails validation.
var ErrAllInvalid = fmt.Errorf("ingest: no record carried the required fields %v", requiredFields)

// Summary reports the outcome of an Add call.
type Summary struct {
	Submitted int `json:"submitted"`
	Invalid   int `json:"invalid"`
	Duplicate int `json:"duplicate"`
	Ingested  int `json:"ingested"`
}

// String renders a human-readable one-line summary, matching the teacher's
// `fmt.Sprintf` summary-string convention for batch operations.
func (s Summary) String() string {
	return fmt.Sprintf("submitted %d, invalid %d, duplicate %d, ingested %d", s.Submitted, s.Invalid, s.Duplicate, s.Ingested)
}

// Add implements §4.4's `add(user, records, extra_facets)`: validate,
// normalize, deduplicate against the latest shard, then batch dual-write
// the survivors to the index and the document store.
func (i *Ingestor) Add(ctx context.Context, user string, records []map[string]any, extraFacets map[string]string) (Summary, error) {
	summary := Summary{Submitted: len(records)}

	normalized := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		norm, ok := normalize(rec, user, extraFacets)
		if !ok {
			summary.Invalid++
			log.Warn().Interface("record", rec).Msg("ingest: skipping record missing required fields")
			continue
		}
		normalized = append(normalized, norm)
	}
	if len(normalized) == 0 {
		return summary, ErrAllInvalid
	}

	survivors := make([]map[string]any, 0, len(normalized))
	for _, rec := range normalized {
		dup, err := i.isDuplicate(ctx, rec)
		if err != nil {
			return summary, err
		}
		if dup {
			summary.Duplicate++
			continue
		}
		survivors = append(survivors, rec)
	}

	for start := 0; start < len(survivors); start += batchSize {
		end := start + batchSize
		if end > len(survivors) {
			end = len(survivors)
		}
		batch := survivors[start:end]
		if err := i.index.AddDocs(ctx, query.ShardLatest, batch); err != nil {
			log.Warn().Err(err).Msg("ingest: index write failed for batch")
		}
		for _, rec := range batch {
			file, _ := rec["file"].(string)
			uri, _ := rec["uri"].(string)
			if err := i.doc.UpsertUserRecord(ctx, file, uri, rec); err != nil {
				log.Warn().Err(err).Str("file", file).Msg("ingest: document-store upsert failed")
				continue
			}
			summary.Ingested++
		}
	}

	return summary, nil
}

// isDuplicate performs the one-row `uri:"…" OR file:"…"` dedup lookup
// against the latest shard (§4.4).
func (i *Ingestor) isDuplicate(ctx context.Context, rec map[string]any) (bool, error) {
	file, _ := rec["file"].(string)
	uri, _ := rec["uri"].(string)
	luceneQuery := fmt.Sprintf(`uri:"%s" OR file:"%s"`, catalog.EscapeLucene(uri), catalog.EscapeLucene(file))
	return i.index.Exists(ctx, luceneQuery)
}

// normalize validates a raw record against requiredFields, then applies the
// uri-fallback, user/fs_type/extra_facets merge, and lowercase rule (§4.4).
// Every value is lowercased except file and uri.
func normalize(rec map[string]any, user string, extraFacets map[string]string) (map[string]any, bool) {
	for _, field := range requiredFields {
		v, ok := rec[field]
		if !ok {
			return nil, false
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return nil, false
		}
	}

	out := make(map[string]any, len(rec)+len(extraFacets)+2)
	for k, v := range rec {
		out[strings.ToLower(k)] = lowercaseExceptFileURI(k, v)
	}

	if uri, ok := out["uri"]; !ok || uri == "" {
		out["uri"] = out["file"]
	}
	out["user"] = strings.ToLower(user)
	if _, ok := out["fs_type"]; !ok {
		out["fs_type"] = catalog.FSTypeDefault
	}
	for k, v := range extraFacets {
		out[strings.ToLower(k)] = strings.ToLower(v)
	}

	return out, true
}

func lowercaseExceptFileURI(key string, v any) any {
	if key == "file" || key == "uri" {
		return v
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	return strings.ToLower(s)
}

// Delete implements §4.4's `delete(user, search_keys)`: forces the user
// scope to the caller, composes a Lucene query AND-joining the search
// keys, and deletes from both the index and the document store.
func (i *Ingestor) Delete(ctx context.Context, user string, searchKeys map[string]string) (int64, error) {
	keys := make(map[string]string, len(searchKeys)+1)
	for k, v := range searchKeys {
		if strings.EqualFold(k, "file") {
			keys[k] = v
			continue
		}
		keys[strings.ToLower(k)] = strings.ToLower(v)
	}
	keys["user"] = user

	luceneQuery := composeLuceneAnd(keys)
	if err := i.index.DeleteByQuery(ctx, query.ShardLatest, luceneQuery); err != nil {
		log.Warn().Err(err).Msg("ingest: index delete-by-query failed")
	}

	n, err := i.doc.DeleteUserRecordsMatching(ctx, keys)
	if err != nil {
		log.Warn().Err(err).Msg("ingest: document-store delete failed")
		return n, err
	}
	return n, nil
}

// composeLuceneAnd builds a deterministic `k:v AND k:v ...` Lucene query,
// sorting keys so repeated calls with the same map produce the same query.
func composeLuceneAnd(keys map[string]string) string {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	clauses := make([]string, 0, len(names))
	for _, name := range names {
		clauses = append(clauses, fmt.Sprintf(`%s:"%s"`, name, catalog.EscapeLucene(keys[name])))
	}
	return strings.Join(clauses, " AND ")
}
