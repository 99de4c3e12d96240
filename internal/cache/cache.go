// Package cache wraps the Redis instance shared between the HTTP surface
// and the worker pool: load-status records and raw chunk bytes, keyed per
// §6's cache key layout.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// LoadState is the state machine a materialization job progresses through
// (§4.7): WAITING -> IN_PROGRESS -> OK or FAILED.
type LoadState string

const (
	StateWaiting    LoadState = "WAITING"
	StateInProgress LoadState = "IN_PROGRESS"
	StateOK         LoadState = "OK"
	StateFailed     LoadState = "FAILED"
)

// statusTTL and chunkTTL are the SETEX lifetimes §6 assigns to the two key
// families.
const (
	statusTTL = 3600 * time.Second
	chunkTTL  = 360 * time.Second
)

// LoadStatus is the value stored under the bare uuid key: the job's state
// plus, once OK, the serialized zarr descriptor and proxy URL a chunk-store
// request needs to serve metadata keys (§4.7 step 4).
type LoadStatus struct {
	State  LoadState       `json:"state"`
	Reason string          `json:"reason,omitempty"`
	Meta   json.RawMessage `json:"meta,omitempty"`
	ObjURL string          `json:"obj_url,omitempty"`
	// URI is the source path the job opened, carried in the status record
	// so any worker process (not just the one that ran open_dataset) can
	// re-materialize the dataset for a chunk request (§4.7).
	URI string `json:"uri,omitempty"`
}

// Cache is a thin typed wrapper over a redis.UniversalClient.
type Cache struct {
	client redis.UniversalClient
}

// New connects to addr and pings it once before returning.
func New(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping %s: %w", addr, err)
	}
	return &Cache{client: client}, nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// SetLoadStatus persists the status record under uuid with the standard
// 3600s TTL (§6).
func (c *Cache) SetLoadStatus(ctx context.Context, uuid string, status LoadStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return c.client.SetEx(ctx, uuid, data, statusTTL).Err()
}

// LoadStatusOf returns the status record for uuid, or ok=false if it has
// expired or was never written.
func (c *Cache) LoadStatusOf(ctx context.Context, uuid string) (LoadStatus, bool, error) {
	val, err := c.client.Get(ctx, uuid).Result()
	if err == redis.Nil {
		return LoadStatus{}, false, nil
	}
	if err != nil {
		return LoadStatus{}, false, err
	}
	var status LoadStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return LoadStatus{}, false, err
	}
	return status, true, nil
}

// chunkKey builds the <uuid>-<var>-<chunk_id> key §6 specifies for raw
// chunk bytes.
func chunkKey(uuid, variable, chunkID string) string {
	return fmt.Sprintf("%s-%s-%s", uuid, variable, chunkID)
}

// SetChunk stores one encoded chunk's bytes with the standard 360s TTL.
func (c *Cache) SetChunk(ctx context.Context, uuid, variable, chunkID string, data []byte) error {
	return c.client.SetEx(ctx, chunkKey(uuid, variable, chunkID), data, chunkTTL).Err()
}

// Chunk returns the raw bytes for one chunk, or ok=false if absent.
func (c *Cache) Chunk(ctx context.Context, uuid, variable, chunkID string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, chunkKey(uuid, variable, chunkID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// WaitForLoadStatus polls LoadStatusOf until the job leaves WAITING/
// IN_PROGRESS, the context is cancelled, or timeout elapses, backing the
// `status?timeout=<s>` endpoint (§4.6).
func (c *Cache) WaitForLoadStatus(ctx context.Context, uuid string, timeout time.Duration) (LoadStatus, bool, error) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 200 * time.Millisecond
	for {
		status, ok, err := c.LoadStatusOf(ctx, uuid)
		if err != nil {
			return LoadStatus{}, false, err
		}
		if ok && status.State != StateWaiting && status.State != StateInProgress {
			return status, true, nil
		}
		if time.Now().After(deadline) {
			return status, ok, nil
		}
		select {
		case <-ctx.Done():
			return LoadStatus{}, false, ctx.Err()
		case <-time.After(pollInterval):
			log.Debug().Str("uuid", uuid).Msg("chunkstore: polling load status")
		}
	}
}
