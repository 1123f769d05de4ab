package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe registers a handler for messages on the specified topic filter.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "438/+/status/current"
//   - # (multi-level): "438/AB1-EU-HKA0001A/#"
//
// The handler is called on paho's goroutine for each received message.
// A nil handler routes the filter to Options.OnMessage; every message is
// then delivered exactly once even when filters overlap.
//
// Parameters:
//   - topic: The topic filter to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback function invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	return c.SubscribeMultiple([]string{topic}, qos, handler)
}

// SubscribeMultiple subscribes every filter at the same QoS in a single
// SUBSCRIBE packet. The broker grants all filters or the call fails.
//
// An appliance session subscribes its whole status tree this way before
// requesting state, so no retained reply can arrive on a half-subscribed
// connection.
func (c *Client) SubscribeMultiple(topics []string, qos byte, handler MessageHandler) error {
	if len(topics) == 0 {
		return ErrInvalidTopic
	}
	filters := make(map[string]byte, len(topics))
	for _, topic := range topics {
		if topic == "" {
			return ErrInvalidTopic
		}
		filters[topic] = qos
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil && c.opts.OnMessage == nil {
		return fmt.Errorf("%w: handler cannot be nil without a default handler", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	var callback pahomqtt.MessageHandler
	if handler != nil {
		callback = c.wrapHandler(handler)
	}

	return wait(c.client.SubscribeMultiple(filters, callback), ErrSubscribeFailed)
}
