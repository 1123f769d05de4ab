// Package mqtt is the transport adapter between airlink and an appliance's
// MQTT broker.
//
// This package manages:
//   - A single broker connection per Client (no automatic reconnection)
//   - Plain TCP connections to the broker on the appliance's own network
//   - TLS WebSocket tunnels to a remote broker with authorizer headers
//   - Message publishing and topic subscriptions
//   - Connect and connection-lost callbacks from paho's network goroutines
//
// # Architecture
//
// A Client has no policy. It is opened once, used, and closed. Choosing a
// transport, retrying and falling back are the caller's job; a fresh Client
// is created for every attempt.
//
//	appliance.ConnectionManager → mqtt.Client → paho → broker
//
// Callbacks (OnConnectionLost and message handlers) run on paho's goroutines,
// never on the caller's. Consumers must hand them off to their own loop.
//
// # Security Considerations
//
//   - Cloud tunnels always negotiate TLS 1.2+ (wss://)
//   - Authorizer tokens travel in HTTP upgrade headers, never in the URL
//   - Credentials are never logged
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, mqtt.Options{
//	    Name:      "local",
//	    BrokerURL: "tcp://192.168.1.40:1883",
//	    ClientID:  uuid.NewString(),
//	    Username:  serial,
//	    Password:  credential,
//	    OnConnectionLost: func(err error) { events <- lost{err} },
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{ProductType: "438", Serial: serial}
//	err = client.Subscribe(topics.All(), 1, handler)
package mqtt
