package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists the two JSONB-backed collections the databrowser needs:
// search_queries (§4.3, write-only audit trail) and userdata (§4.4, the
// ingested-record mirror of the index).
type Store struct {
	pool *pgxpool.Pool
}

// New creates the store and ensures its schema exists.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS search_queries (
			id BIGSERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS userdata_records (
			file TEXT NOT NULL,
			uri TEXT NOT NULL,
			payload JSONB NOT NULL,
			PRIMARY KEY (file, uri)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("docstore: init schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// RecordSearchQuery appends one entry to search_queries. Callers invoke this
// fire-and-forget after a successful search (§4.3); errors are the caller's
// to log and swallow.
func (s *Store) RecordSearchQuery(ctx context.Context, metadata, query any) error {
	payload, err := json.Marshal(map[string]any{"metadata": metadata, "query": query})
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_queries (recorded_at, payload) VALUES ($1, $2)`,
		time.Now().UTC(), payload,
	)
	return err
}

// LookupUserRecord performs the 1-row dedupe lookup of §4.4: does a record
// already exist for this file or uri?
func (s *Store) LookupUserRecord(ctx context.Context, file, uri string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM userdata_records WHERE file = $1 OR uri = $2)`,
		file, uri,
	).Scan(&exists)
	return exists, err
}

// UpsertUserRecord inserts or replaces the document-store mirror of one
// ingested record, keyed by (file, uri) per §4.4.
func (s *Store) UpsertUserRecord(ctx context.Context, file, uri string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO userdata_records (file, uri, payload) VALUES ($1, $2, $3)
		 ON CONFLICT (file, uri) DO UPDATE SET payload = EXCLUDED.payload`,
		file, uri, data,
	)
	return err
}

// DeleteUserRecordsMatching removes every userdata row whose JSONB payload
// contains all of match (a subset comparison via Postgres's JSONB
// containment operator), mirroring the index's delete-by-query (§4.4). It
// returns the number of rows removed.
func (s *Store) DeleteUserRecordsMatching(ctx context.Context, match map[string]string) (int64, error) {
	if len(match) == 0 {
		return 0, errors.New("docstore: refusing to delete with an empty match set")
	}
	data, err := json.Marshal(match)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM userdata_records WHERE payload @> $1::jsonb`,
		data,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUserRecords reports how many userdata rows exist, for tests and
// diagnostics.
func (s *Store) CountUserRecords(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM userdata_records`).Scan(&n)
	return n, err
}
