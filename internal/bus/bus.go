// Package bus is the pub/sub abstraction carrying the chunk-store
// materialization pipeline's messages over the data-portal channel (§4.6,
// §6), backed by kafka-go.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// URIMessage asks a worker to open a dataset and compute its zarr
// description (§6).
type URIMessage struct {
	Path string `json:"path"`
	UUID string `json:"uuid"`
}

// ChunkMessage asks a worker to materialize one chunk of an already-opened
// dataset (§6).
type ChunkMessage struct {
	UUID     string `json:"uuid"`
	Variable string `json:"variable"`
	Chunk    string `json:"chunk"`
}

// Envelope is the wire shape of every data-portal message: exactly one of
// Uri or Chunk is set.
type Envelope struct {
	Uri   *URIMessage   `json:"uri,omitempty"`
	Chunk *ChunkMessage `json:"chunk,omitempty"`
}

// Bus publishes to and consumes from the data-portal topic.
type Bus struct {
	brokers []string
	topic   string
	writer  *kafka.Writer
}

// New constructs a Bus with a writer ready for publishing. Readers are
// created per-subscriber via Subscribe, each joining the consumer group it
// names.
func New(brokers []string, topic string) *Bus {
	return &Bus{
		brokers: brokers,
		topic:   topic,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishURI announces a materialization job for uri/uuid, triggering the
// worker pool's open_dataset step.
func (b *Bus) PublishURI(ctx context.Context, path, uuid string) error {
	return b.publish(ctx, Envelope{Uri: &URIMessage{Path: path, UUID: uuid}})
}

// PublishChunk requests materialization of one chunk of an already loaded
// dataset.
func (b *Bus) PublishChunk(ctx context.Context, uuid, variable, chunk string) error {
	return b.publish(ctx, Envelope{Chunk: &ChunkMessage{UUID: uuid, Variable: variable, Chunk: chunk}})
}

func (b *Bus) publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{Value: payload})
}

// Close shuts down the publisher's writer.
func (b *Bus) Close() error {
	return b.writer.Close()
}

// Subscriber consumes data-portal messages as a member of a consumer group;
// subscribers sharing a group ID (as every databrowser-worker replica does)
// each see a disjoint partition of the traffic.
type Subscriber struct {
	reader *kafka.Reader
}

// Subscribe opens a reader for groupID against the bus's topic.
func (b *Bus) Subscribe(groupID string) *Subscriber {
	return &Subscriber{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		GroupID:  groupID,
		Topic:    b.topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})}
}

// Next blocks for the next message and decodes it into an Envelope.
func (s *Subscriber) Next(ctx context.Context) (Envelope, error) {
	msg, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return Envelope{}, fmt.Errorf("bus: decode message: %w", err)
	}
	if err := s.reader.CommitMessages(ctx, msg); err != nil {
		return Envelope{}, fmt.Errorf("bus: commit message: %w", err)
	}
	return env, nil
}

// Close shuts down the subscriber's reader.
func (s *Subscriber) Close() error {
	return s.reader.Close()
}
