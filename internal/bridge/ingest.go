package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"github.com/tidwall/gjson"

	"github.com/dshills/memento/internal/event"
)

// MessageReader reads records from a broker. *kafka.Reader satisfies it.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// NewReader returns a consumer-group reader for topic on brokers.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Ingest queues external records on a bus as Custom events.
//
// A record value must be a JSON object with a "type" string; its "fields"
// object, if any, becomes Custom.Fields. Canonical types are refused so
// that game payloads are only ever produced in-process. Records published
// by this process's own Mirror are skipped.
type Ingest struct {
	reader MessageReader
	bus    *event.Bus
	logger *slog.Logger

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewIngest creates an ingest feeding bus from r.
func NewIngest(r MessageReader, bus *event.Bus, logger *slog.Logger) *Ingest {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ingest{
		reader: r,
		bus:    bus,
		logger: logger.With("component", "bridge.ingest"),
	}
}

// Run reads until ctx is cancelled, then closes the reader.
func (in *Ingest) Run(ctx context.Context) error {
	defer in.reader.Close()

	for {
		msg, err := in.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read record: %w", err)
		}
		in.accept(msg)
	}
}

// Stats returns the number of accepted and rejected records.
func (in *Ingest) Stats() (accepted, rejected uint64) {
	return in.accepted.Load(), in.rejected.Load()
}

func (in *Ingest) accept(msg kafka.Message) {
	ev, err := decodeRecord(msg)
	if err != nil {
		in.rejected.Add(1)
		in.logger.Warn("record rejected", "offset", msg.Offset, "error", err)
		return
	}
	if !in.bus.Publish(ev) {
		in.rejected.Add(1)
		return
	}
	in.accepted.Add(1)
}

func decodeRecord(msg kafka.Message) (event.Event, error) {
	if !gjson.ValidBytes(msg.Value) {
		return event.Event{}, errors.New("value is not JSON")
	}
	doc := gjson.ParseBytes(msg.Value)

	for _, h := range msg.Headers {
		if h.Key == "event-id" {
			return event.Event{}, errors.New("record was mirrored from a bus")
		}
	}

	typ := event.Type(doc.Get("type").String())
	if typ == "" {
		return event.Event{}, errors.New("missing type")
	}
	if event.IsCanonical(typ) {
		return event.Event{}, fmt.Errorf("canonical type %s not accepted", typ)
	}

	var fields map[string]any
	if f := doc.Get("fields"); f.IsObject() {
		if m, ok := f.Value().(map[string]any); ok {
			fields = m
		}
	}

	return event.Of(event.Custom{Kind: typ, Fields: fields}, event.WithSource("kafka")), nil
}
