// Package api implements the local HTTP REST API and WebSocket event stream
// for one appliance.
//
// This package provides:
//   - REST endpoints for state, faults, connection status and commands
//   - A read endpoint for the event journal
//   - A WebSocket hub relaying appliance callbacks to subscribed clients
//   - Prometheus exposition on /metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
//	HTTP client ──► chi router ──► handlers ──► appliance.Device
//	                                   │                │
//	                                   ▼                │ message / environment /
//	                           journal.Repository       │ status callbacks
//	                                                    ▼
//	WebSocket client ◄──────────────── Hub ◄──── Broadcast
//
// Event channels on the stream:
//   - device.message: every decoded message (topic, type, document)
//   - device.environment: headline environmental changes
//   - device.connection: connection status transitions
//
// # Graceful Degradation
//
// The server runs while the appliance is unreachable: reads return the last
// known state and commands fail with 503.
package api
