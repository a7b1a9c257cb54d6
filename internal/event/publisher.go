package event

// Publisher stamps a source on every event it creates and publishes to a bus.
type Publisher struct {
	bus    *Bus
	source string
}

// NewPublisher creates a new Publisher wrapping the given bus.
// The source parameter identifies where events originate (e.g. "game", "script").
func NewPublisher(bus *Bus, source string) *Publisher {
	return &Publisher{
		bus:    bus,
		source: source,
	}
}

// Source returns the publisher's source name.
func (p *Publisher) Source() string {
	return p.source
}

// Emit queues an event carrying payload for the next drain.
func (p *Publisher) Emit(payload Payload, opts ...Option) bool {
	return p.bus.Publish(Of(payload, p.withSource(opts)...))
}

// EmitNow dispatches an event carrying payload immediately.
func (p *Publisher) EmitNow(payload Payload, opts ...Option) {
	p.bus.PublishImmediate(Of(payload, p.withSource(opts)...))
}

// Error dispatches an Error event immediately.
func (p *Publisher) Error(code, message string) {
	p.EmitNow(Error{Code: code, Message: message, Source: p.source})
}

func (p *Publisher) withSource(opts []Option) []Option {
	return append([]Option{WithSource(p.source)}, opts...)
}
