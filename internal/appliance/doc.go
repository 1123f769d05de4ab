// Package appliance maintains a live connection to one networked appliance
// and keeps a normalised snapshot of its state.
//
// The appliance speaks JSON over MQTT and is reachable over two independent
// transports: a broker on the local network and a remote broker behind an
// authenticated WebSocket tunnel. The package picks between them according
// to a policy, retries with restraint and moves back to the preferred
// transport once it becomes reachable again.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                               Device                                  │
//	│                                                                       │
//	│  ┌────────────────┐   events   ┌────────────┐     ┌───────────────┐  │
//	│  │    Manager     │──────────▶│   bridge   │────▶│  Normalizer   │  │
//	│  │ (connection.go)│            │ (bridge.go)│     │(normalizer.go)│  │
//	│  │                │◀───────────│ event loop │     │               │  │
//	│  │ • policy order │  conn lost └────────────┘     │ • decode      │  │
//	│  │ • backoff gate │                               │ • route by msg│  │
//	│  │ • reclaim      │                               └───────┬───────┘  │
//	│  └───────┬────────┘                                       │          │
//	│          │ Dial                                           ▼          │
//	│          ▼                                        ┌───────────────┐  │
//	│  ┌────────────────┐                               │     Store     │  │
//	│  │  Dialer/Conn   │◀── commands.go (SendCommand)  │   (state.go)  │  │
//	│  │ (transport.go) │                               └───────────────┘  │
//	│  └────────────────┘                                                   │
//	└──────────────────────────────────────────────────────────────────────┘
//
// # Threading
//
// Transport callbacks arrive on the MQTT client's goroutines. They are never
// processed inline: messages and connection-lost notifications are posted to
// a single event loop, which is the only writer of the State Store. Connect
// attempts run on the caller's goroutine and are serialised by a per-device
// mutex.
//
// # Usage
//
//	dev, err := appliance.New(appliance.Options{
//	    Profile: profile,
//	    Logger:  log.With("component", "appliance"),
//	})
//	if err != nil {
//	    return err
//	}
//
//	go dev.Run(ctx) // event loop and supervisor
//
//	if err := dev.SetFanSpeed(ctx, 4); err != nil {
//	    return err // ErrNotConnected while disconnected
//	}
package appliance
