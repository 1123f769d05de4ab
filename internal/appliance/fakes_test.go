package appliance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errUnreachable = errors.New("unreachable")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type published struct {
	topic   string
	payload []byte
}

// fakeConn records subscriptions and publishes.
type fakeConn struct {
	transport Transport
	handlers  Handlers

	mu            sync.Mutex
	subscriptions []string
	published     []published
	closed        bool
	publishErr    error
}

func (c *fakeConn) Subscribe(topics []string, _ byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions = append(c.subscriptions, topics...)
	return nil
}

func (c *fakeConn) Publish(topic string, payload []byte, _ byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{topic: topic, payload: payload})
	return nil
}

func (c *fakeConn) HealthCheck(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotConnected
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) publishes() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]published, len(c.published))
	copy(out, c.published)
	return out
}

// deliver simulates an incoming message on the transport goroutine.
func (c *fakeConn) deliver(topic string, payload string) {
	c.handlers.OnMessage(topic, []byte(payload))
}

// drop simulates an unplanned connection loss.
func (c *fakeConn) drop() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.handlers.OnConnectionLost(errors.New("connection reset"))
}

// fakeDialer succeeds for reachable transports and records every attempt.
type fakeDialer struct {
	mu        sync.Mutex
	reachable map[Transport]bool
	attempts  []Transport
	conns     []*fakeConn
}

func newFakeDialer(reachable ...Transport) *fakeDialer {
	d := &fakeDialer{reachable: make(map[Transport]bool)}
	for _, t := range reachable {
		d.reachable[t] = true
	}
	return d
}

func (d *fakeDialer) Dial(_ context.Context, t Transport, h Handlers) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, t)
	if !d.reachable[t] {
		return nil, &TransportError{Transport: t, Err: errUnreachable}
	}
	conn := &fakeConn{transport: t, handlers: h}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) setReachable(t Transport, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reachable[t] = ok
}

func (d *fakeDialer) takeAttempts() []Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.attempts
	d.attempts = nil
	return out
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// testProfile has both transports configured.
func testProfile(policy Policy) Profile {
	return Profile{
		Serial:          "AB1-EU-HKA0001A",
		ProductType:     "438",
		LocalHost:       "192.168.1.40",
		LocalCredential: "local-secret",
		CloudHost:       "iot.example.com",
		CloudCredential: `{"clientId":"c","customAuthorizerName":"a","tokenValue":"v","tokenSignature":"s"}`,
		Policy:          policy,
	}
}

func newTestManager(t *testing.T, profile Profile, dialer Dialer, clock *fakeClock) *Manager {
	t.Helper()
	return NewManager(ManagerConfig{
		Profile: profile,
		Dialer:  dialer,
		QoS:     1,
		Now:     clock.Now,
	})
}

func equalTransports(a, b []Transport) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// eventually polls cond until it holds or the timeout expires.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
