package event

// DefaultSubscriberPriority is used when Subscribe is called without WithSubscriberPriority.
const DefaultSubscriberPriority = PriorityNormal

// SubscriptionConfig holds the configuration for a subscription.
type SubscriptionConfig struct {
	// ID identifies the subscriber. Empty means generate one from the event type.
	ID string

	// Priority determines dispatch order; lower runs first.
	Priority Priority
}

// DefaultSubscriptionConfig returns the default subscription configuration.
func DefaultSubscriptionConfig() SubscriptionConfig {
	return SubscriptionConfig{
		Priority: DefaultSubscriberPriority,
	}
}

// SubscriptionOption is a function that configures a subscription.
type SubscriptionOption func(*SubscriptionConfig)

// WithID sets the subscriber id. Subscribing twice with the same id for the
// same type replaces the earlier entry.
func WithID(id string) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.ID = id
	}
}

// WithSubscriberPriority sets the dispatch priority. Lower values run first;
// subscribers with equal priority run in registration order.
func WithSubscriberPriority(p Priority) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Priority = p
	}
}

// subscription is an immutable registry entry. The registry replaces entries
// rather than mutating them, so a dispatch snapshot never changes underneath
// the handlers it is running.
type subscription struct {
	id       string
	typ      Type
	handler  Handler
	priority Priority
	active   bool
}

// withActive returns a copy of s with the active flag set.
func (s *subscription) withActive(active bool) *subscription {
	c := *s
	c.active = active
	return &c
}

// SubscriptionInfo describes a registered subscription for diagnostics.
type SubscriptionInfo struct {
	ID       string
	Type     Type
	Priority Priority
	Active   bool
}

func (s *subscription) info() SubscriptionInfo {
	return SubscriptionInfo{
		ID:       s.id,
		Type:     s.typ,
		Priority: s.priority,
		Active:   s.active,
	}
}
