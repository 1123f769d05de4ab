// Package appliancetest provides an in-process transport for tests of
// packages built on top of appliance.Device.
package appliancetest

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/airlink/internal/appliance"
)

// ErrUnreachable is returned by Dial for transports marked unreachable.
var ErrUnreachable = errors.New("appliancetest: transport unreachable")

// Publish is one message published by the device.
type Publish struct {
	Topic   string
	Payload []byte
}

// Dialer is an appliance.Dialer whose connections live in memory.
// The zero value is unusable; use NewDialer.
type Dialer struct {
	mu        sync.Mutex
	reachable map[appliance.Transport]bool
	current   *Conn
}

// NewDialer returns a dialer that can reach the given transports.
func NewDialer(reachable ...appliance.Transport) *Dialer {
	d := &Dialer{reachable: make(map[appliance.Transport]bool)}
	for _, t := range reachable {
		d.reachable[t] = true
	}
	return d
}

// Dial implements appliance.Dialer.
func (d *Dialer) Dial(_ context.Context, t appliance.Transport, h appliance.Handlers) (appliance.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.reachable[t] {
		return nil, &appliance.TransportError{Transport: t, Err: ErrUnreachable}
	}
	d.current = &Conn{transport: t, handlers: h}
	return d.current, nil
}

// SetReachable changes whether later dials of t succeed.
func (d *Dialer) SetReachable(t appliance.Transport, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reachable[t] = ok
}

// Conn returns the most recently dialled connection, or nil.
func (d *Dialer) Conn() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Conn is an in-memory appliance.Conn.
type Conn struct {
	transport appliance.Transport
	handlers  appliance.Handlers

	mu        sync.Mutex
	closed    bool
	published []Publish
	topics    []string
}

// Transport returns the transport the connection was dialled on.
func (c *Conn) Transport() appliance.Transport { return c.transport }

// Subscribe implements appliance.Conn.
func (c *Conn) Subscribe(topics []string, _ byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topics...)
	return nil
}

// Publish implements appliance.Conn.
func (c *Conn) Publish(topic string, payload []byte, _ byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return appliance.ErrNotConnected
	}
	c.published = append(c.published, Publish{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

// HealthCheck implements appliance.Conn.
func (c *Conn) HealthCheck(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return appliance.ErrNotConnected
	}
	return nil
}

// Close implements appliance.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Deliver hands an inbound message to the device as if the broker sent it.
func (c *Conn) Deliver(topic, payload string) {
	c.handlers.OnMessage(topic, []byte(payload))
}

// Drop simulates an unplanned connection loss.
func (c *Conn) Drop() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.handlers.OnConnectionLost(errors.New("appliancetest: connection dropped"))
}

// Published returns a copy of everything published so far.
func (c *Conn) Published() []Publish {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Publish(nil), c.published...)
}

// Subscriptions returns the topics subscribed so far.
func (c *Conn) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.topics...)
}
