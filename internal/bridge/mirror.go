package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dshills/memento/internal/event"
)

// SubscriberID is the bus subscriber id used by the mirror.
const SubscriberID = "KafkaMirror"

// Mirror errors.
var (
	// ErrMirrorClosed indicates Run was called after Close.
	ErrMirrorClosed = errors.New("mirror closed")

	// ErrMirrorRunning indicates Run was called twice.
	ErrMirrorRunning = errors.New("mirror already running")
)

// MessageWriter writes records to a broker. *kafka.Writer satisfies it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MirrorOptions configures a Mirror.
type MirrorOptions struct {
	// Types are mirrored. Empty mirrors every canonical type.
	Types []event.Type

	// Buffer is the number of records held while the writer is busy.
	Buffer int

	// BatchSize is the most records written in one call.
	BatchSize int

	// FlushInterval bounds how long a partial batch waits.
	FlushInterval time.Duration

	// CloseTimeout bounds the final flush when Run stops.
	CloseTimeout time.Duration

	Logger *slog.Logger
}

func (o MirrorOptions) withDefaults() MirrorOptions {
	if len(o.Types) == 0 {
		o.Types = event.CanonicalTypes()
	}
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 250 * time.Millisecond
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// MirrorStats counts mirror activity.
type MirrorStats struct {
	Queued  uint64 `json:"queued"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Mirror copies bus events to a MessageWriter.
type Mirror struct {
	writer     MessageWriter
	opts       MirrorOptions
	records    chan kafka.Message
	subscriber *event.Subscriber
	logger     *slog.Logger

	mu        sync.Mutex
	started   bool
	isClosed  bool
	closeOnce sync.Once
	closed    chan struct{}
	runDone   chan struct{}

	queued  atomic.Uint64
	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewWriter returns a Kafka writer for topic on brokers.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewMirror creates a mirror writing to w.
func NewMirror(w MessageWriter, opts MirrorOptions) *Mirror {
	opts = opts.withDefaults()
	return &Mirror{
		writer:  w,
		opts:    opts,
		records: make(chan kafka.Message, opts.Buffer),
		logger:  opts.Logger.With("component", "bridge.mirror"),
		closed:  make(chan struct{}),
		runDone: make(chan struct{}),
	}
}

// Attach subscribes the mirror to bus at low priority.
func (m *Mirror) Attach(bus *event.Bus) error {
	m.subscriber = event.NewSubscriber(bus, SubscriberID)
	for _, t := range m.opts.Types {
		if err := m.subscriber.Subscribe(t, event.HandlerFunc(m.Handle), event.PriorityLow); err != nil {
			m.subscriber.Close()
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	m.logger.Info("mirror attached", "types", len(m.opts.Types))
	return nil
}

// Handle encodes ev and queues it. It never blocks; records are dropped
// when the buffer is full.
func (m *Mirror) Handle(ev event.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type(), err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Type()),
		Value: value,
		Time:  ev.CreatedAt(),
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(ev.ID())},
			{Key: "source", Value: []byte(ev.Source())},
		},
	}

	select {
	case <-m.closed:
		m.dropped.Add(1)
		return nil
	default:
	}

	select {
	case m.records <- msg:
		m.queued.Add(1)
	default:
		m.dropped.Add(1)
		m.logger.Warn("mirror buffer full, record dropped", "type", ev.Type(), "id", ev.ID())
	}
	return nil
}

// Run writes queued records in batches until ctx is cancelled or Close is
// called, then flushes what remains.
func (m *Mirror) Run(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.isClosed:
		m.mu.Unlock()
		return ErrMirrorClosed
	case m.started:
		m.mu.Unlock()
		return ErrMirrorRunning
	}
	m.started = true
	m.mu.Unlock()
	defer close(m.runDone)

	ticker := time.NewTicker(m.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Message, 0, m.opts.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := m.writer.WriteMessages(ctx, batch...); err != nil {
			m.failed.Add(uint64(len(batch)))
			m.logger.Error("mirror write failed", "records", len(batch), "error", err)
		} else {
			m.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case msg := <-m.records:
			batch = append(batch, msg)
			if len(batch) >= m.opts.BatchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)

		case <-ctx.Done():
			m.drainInto(&batch)
			m.finalFlush(flush)
			return nil

		case <-m.closed:
			m.drainInto(&batch)
			m.finalFlush(flush)
			return nil
		}
	}
}

// finalFlush runs flush under CloseTimeout so an unreachable broker cannot
// hold shutdown.
func (m *Mirror) finalFlush(flush func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.CloseTimeout)
	defer cancel()
	flush(ctx)
}

// drainInto moves every buffered record into batch.
func (m *Mirror) drainInto(batch *[]kafka.Message) {
	for {
		select {
		case msg := <-m.records:
			*batch = append(*batch, msg)
		default:
			return
		}
	}
}

// Stats returns mirror counters.
func (m *Mirror) Stats() MirrorStats {
	return MirrorStats{
		Queued:  m.queued.Load(),
		Written: m.written.Load(),
		Dropped: m.dropped.Load(),
		Failed:  m.failed.Load(),
	}
}

// Close detaches from the bus, waits for Run to flush, and closes the writer.
func (m *Mirror) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.subscriber != nil {
			m.subscriber.Close()
		}

		m.mu.Lock()
		m.isClosed = true
		started := m.started
		m.mu.Unlock()

		close(m.closed)
		if started {
			<-m.runDone
		}
		err = m.writer.Close()
	})
	return err
}
