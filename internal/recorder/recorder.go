// Package recorder implements the Result Recorder (component D, §4.3):
// fire-and-forget audit logging of successful searches to the document
// store, decoupled from the request that triggered them.
package recorder

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Store is the subset of the document store the recorder needs.
type Store interface {
	RecordSearchQuery(ctx context.Context, metadata, query any) error
}

// Recorder records search queries without blocking the request that
// triggered them.
type Recorder struct {
	store Store
}

// New builds a Recorder over store. A nil store makes Record a no-op,
// which is convenient for tests and for the `zarr-stream`-only deployment
// mode that skips the document store entirely.
func New(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record schedules an asynchronous write of {metadata, query} to the
// search_queries collection. It returns immediately; the caller's request
// is never held up by the document store (§4.3, §5).
func (r *Recorder) Record(metadata, query any) {
	if r == nil || r.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.store.RecordSearchQuery(ctx, metadata, query); err != nil {
			log.Warn().Err(err).Msg("recorder: failed to record search query")
		}
	}()
}
