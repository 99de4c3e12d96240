package ingest

import (
	"context"
	"testing"

	"github.com/freva-nextgen/databrowser/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	existing map[string]bool
	added    [][]map[string]any
	deleted  []string
}

func (f *fakeIndex) Exists(ctx context.Context, luceneQuery string) (bool, error) {
	return f.existing[luceneQuery], nil
}

func (f *fakeIndex) AddDocs(ctx context.Context, shard query.Shard, docs []map[string]any) error {
	f.added = append(f.added, docs)
	return nil
}

func (f *fakeIndex) DeleteByQuery(ctx context.Context, shard query.Shard, luceneQuery string) error {
	f.deleted = append(f.deleted, luceneQuery)
	return nil
}

type fakeDocStore struct {
	upserted []map[string]any
	deleteN  int64
	match    map[string]string
}

func (f *fakeDocStore) UpsertUserRecord(ctx context.Context, file, uri string, payload any) error {
	f.upserted = append(f.upserted, payload.(map[string]any))
	return nil
}

func (f *fakeDocStore) DeleteUserRecordsMatching(ctx context.Context, match map[string]string) (int64, error) {
	f.match = match
	return f.deleteN, nil
}

func TestAddSkipsInvalidRecords(t *testing.T) {
	idx := &fakeIndex{existing: map[string]bool{}}
	doc := &fakeDocStore{}
	ing := New(idx, doc)

	records := []map[string]any{
		{"file": "/a.nc", "variable": "tas", "time": "2020", "time_frequency": "mon"},
		{"file": "/b.nc"}, // missing required fields
	}
	summary, err := ing.Add(context.Background(), "alice", records, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Submitted)
	assert.Equal(t, 1, summary.Invalid)
	assert.Equal(t, 1, summary.Ingested)
	require.Len(t, doc.upserted, 1)
	assert.Equal(t, "alice", doc.upserted[0]["user"])
	assert.Equal(t, "posix", doc.upserted[0]["fs_type"])
	assert.Equal(t, "/a.nc", doc.upserted[0]["uri"])
}

func TestAddAllInvalidReturnsError(t *testing.T) {
	ing := New(&fakeIndex{}, &fakeDocStore{})
	_, err := ing.Add(context.Background(), "alice", []map[string]any{{"file": "/a.nc"}}, nil)
	assert.ErrorIs(t, err, ErrAllInvalid)
}

func TestAddDropsDuplicates(t *testing.T) {
	idx := &fakeIndex{existing: map[string]bool{`uri:"\/a.nc" OR file:"\/a.nc"`: true}}
	doc := &fakeDocStore{}
	ing := New(idx, doc)

	records := []map[string]any{
		{"file": "/a.nc", "variable": "tas", "time": "2020", "time_frequency": "mon"},
	}
	summary, err := ing.Add(context.Background(), "alice", records, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Duplicate)
	assert.Equal(t, 0, summary.Ingested)
	assert.Empty(t, doc.upserted)
}

func TestAddLowercasesValuesExceptFileAndURI(t *testing.T) {
	idx := &fakeIndex{existing: map[string]bool{}}
	doc := &fakeDocStore{}
	ing := New(idx, doc)

	records := []map[string]any{
		{"file": "/Mixed/Case.nc", "variable": "TAS", "time": "2020", "time_frequency": "MON"},
	}
	_, err := ing.Add(context.Background(), "Alice", records, map[string]string{"Project": "CMIP6"})
	require.NoError(t, err)
	require.Len(t, doc.upserted, 1)
	rec := doc.upserted[0]
	assert.Equal(t, "/Mixed/Case.nc", rec["file"])
	assert.Equal(t, "tas", rec["variable"])
	assert.Equal(t, "mon", rec["time_frequency"])
	assert.Equal(t, "alice", rec["user"])
	assert.Equal(t, "cmip6", rec["project"])
}

func TestDeleteForcesUserAndComposesLuceneQuery(t *testing.T) {
	idx := &fakeIndex{}
	doc := &fakeDocStore{deleteN: 3}
	ing := New(idx, doc)

	n, err := ing.Delete(context.Background(), "alice", map[string]string{"Project": "CMIP6", "file": "/Keep/Case.nc"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.Len(t, idx.deleted, 1)
	assert.Contains(t, idx.deleted[0], `user:"alice"`)
	assert.Contains(t, idx.deleted[0], `project:"cmip6"`)
	assert.Contains(t, idx.deleted[0], `file:"\/Keep\/Case.nc"`)
	assert.Equal(t, "alice", doc.match["user"])
}
