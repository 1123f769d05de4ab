package appliance

import (
	"errors"
)

// DefaultHeadlineReadings are the environmental keys whose change triggers
// environmental callbacks: PM2.5 and PM10.
var DefaultHeadlineReadings = []string{"pm25", "pm10"}

// Drop reasons reported to the Observer.
const (
	dropInvalidEncoding = "invalid_encoding"
	dropMalformed       = "malformed"
	dropMissingType     = "missing_type"
	dropQueueFull       = "queue_full"
	dropStaleConnection = "stale_connection"
)

// MessageCallback receives every decoded message after the snapshot has
// been updated.
type MessageCallback func(topic string, msg Message)

// EnvironmentalCallback receives the full set of environmental readings
// after a headline reading changed.
type EnvironmentalCallback func(readings map[string]string)

// Normalizer routes decoded messages into the Store and notifies callbacks.
//
// Handle must only be called from one goroutine at a time; the Device's
// event loop is that goroutine.
type Normalizer struct {
	store    *Store
	headline []string
	logger   Logger
	observer Observer

	messageSubs       *subscribers[MessageCallback]
	environmentalSubs *subscribers[EnvironmentalCallback]
}

// NewNormalizer creates a normalizer writing into store. A nil headline
// slice uses DefaultHeadlineReadings.
func NewNormalizer(store *Store, headline []string) *Normalizer {
	if len(headline) == 0 {
		headline = DefaultHeadlineReadings
	}
	return &Normalizer{
		store:             store,
		headline:          headline,
		logger:            noopLogger{},
		observer:          noopObserver{},
		messageSubs:       newSubscribers[MessageCallback](),
		environmentalSubs: newSubscribers[EnvironmentalCallback](),
	}
}

// SetLogger sets the logger for the normalizer.
func (n *Normalizer) SetLogger(logger Logger) {
	n.logger = logger
}

// SetObserver sets the metrics observer for the normalizer.
func (n *Normalizer) SetObserver(observer Observer) {
	n.observer = observer
}

// AddMessageCallback registers a callback for every decoded message.
//
// The returned ID is the subscription's identity: registering the same
// function twice yields two IDs and two invocations per message. Keep the
// ID to unregister.
func (n *Normalizer) AddMessageCallback(cb MessageCallback) SubscriptionID {
	return n.messageSubs.add(cb)
}

// RemoveMessageCallback unregisters a message callback.
func (n *Normalizer) RemoveMessageCallback(id SubscriptionID) {
	n.messageSubs.remove(id)
}

// AddEnvironmentalCallback registers a callback for headline reading changes.
// Identity is the returned ID, as for AddMessageCallback.
func (n *Normalizer) AddEnvironmentalCallback(cb EnvironmentalCallback) SubscriptionID {
	return n.environmentalSubs.add(cb)
}

// RemoveEnvironmentalCallback unregisters an environmental callback.
func (n *Normalizer) RemoveEnvironmentalCallback(id SubscriptionID) {
	n.environmentalSubs.remove(id)
}

// Handle decodes one payload, applies it to the Store and notifies callbacks.
//
// A payload that cannot be decoded is dropped with a warning and the Store
// is left untouched.
//
// Returns:
//   - Message: The decoded message, nil if dropped
//   - error: A *ProtocolError if the payload was dropped
func (n *Normalizer) Handle(topic string, payload []byte) (Message, error) {
	msg, err := DecodeMessage(payload)
	if err != nil {
		n.observer.MessageDropped(dropReason(err))
		n.logger.Warn("dropping undecodable message",
			"topic", topic,
			"size", len(payload),
			"error", err,
		)
		return nil, &ProtocolError{Topic: topic, Err: err}
	}

	n.observer.MessageReceived(string(msg.Type()))

	switch m := msg.(type) {
	case CurrentState:
		n.store.mergeOperational(m.Fields)
	case StateChange:
		n.store.mergeOperational(m.Fields)
	case EnvironmentalData:
		if n.store.mergeEnvironmental(m.Readings, n.headline) {
			n.notifyEnvironmental(n.store.EnvironmentalReadings())
		}
	case CurrentFaults:
		n.store.mergeFaults(m.Fields)
	default:
		n.logger.Debug("passthrough message", "topic", topic, "msg", msg.Type())
	}

	n.notifyMessage(topic, msg)
	return msg, nil
}

func (n *Normalizer) notifyMessage(topic string, msg Message) {
	for _, cb := range n.messageSubs.snapshot() {
		n.invoke("message", func() { cb(topic, msg) })
	}
}

func (n *Normalizer) notifyEnvironmental(readings map[string]string) {
	for _, cb := range n.environmentalSubs.snapshot() {
		// Each callback gets its own copy so one cannot alter what the next sees.
		copied := make(map[string]string, len(readings))
		for k, v := range readings {
			copied[k] = v
		}
		n.invoke("environmental", func() { cb(copied) })
	}
}

// invoke runs one callback, recovering a panic so the remaining callbacks
// still run.
func (n *Normalizer) invoke(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("callback panic recovered", "callback", kind, "panic", r)
		}
	}()
	fn()
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidEncoding):
		return dropInvalidEncoding
	case errors.Is(err, ErrMissingMessageType):
		return dropMissingType
	default:
		return dropMalformed
	}
}
