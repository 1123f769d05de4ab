package appliance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/airlink/internal/infrastructure/mqtt"
)

// Default connection timers.
const (
	DefaultReconnectBackoff = 30 * time.Second
	DefaultReclaimInterval  = 300 * time.Second
	DefaultConnectTimeout   = 10 * time.Second
)

// ManagerConfig configures a Manager. Zero durations use the defaults.
type ManagerConfig struct {
	Profile          Profile
	Dialer           Dialer
	QoS              byte
	ReconnectBackoff time.Duration
	ReclaimInterval  time.Duration
	ConnectTimeout   time.Duration

	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time
}

// ConnectionInfo is a read-only view of the connection state.
type ConnectionInfo struct {
	Status             Status    `json:"status"`
	Policy             Policy    `json:"policy"`
	Preferred          Transport `json:"preferred"`
	Fallback           bool      `json:"fallback"`
	LastAttempt        time.Time `json:"last_attempt,omitzero"`
	LastPreferredRetry time.Time `json:"last_preferred_retry,omitzero"`
}

// statusChange is passed to the Manager's status hook.
type statusChange struct {
	previous Status
	current  Status
	fallback bool
}

// Manager decides which transport to use and owns the live connection.
//
// Connect is a single evaluation step: it may do nothing (backoff), reclaim
// the preferred transport, or walk the policy's sequence. It never loops;
// something outside calls it again later.
//
// Thread Safety:
//   - Connect, Disconnect and ForceReconnect are serialised.
//   - Status and Info may be called from any goroutine at any time.
type Manager struct {
	profile   Profile
	dialer    Dialer
	topics    mqtt.Topics
	qos       byte
	preferred Transport

	backoff        time.Duration
	reclaim        time.Duration
	connectTimeout time.Duration
	now            func() time.Time

	logger   Logger
	observer Observer

	// sink receives transport callbacks; set by the Device to its event loop.
	sink func(event)

	// onStatus is called after every status change, outside the state lock.
	onStatus func(ctx context.Context, change statusChange)

	attemptMu sync.Mutex

	mu                 sync.RWMutex
	conn               Conn
	current            Transport
	fallback           bool
	lastTransport      Transport
	lastAttempt        time.Time
	lastPreferredRetry time.Time
	generation         uint64
	activeGeneration   uint64
	dialingGeneration  uint64
}

// NewManager creates a disconnected Manager.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		profile:        cfg.Profile.withDefaults(),
		dialer:         cfg.Dialer,
		qos:            cfg.QoS,
		backoff:        cfg.ReconnectBackoff,
		reclaim:        cfg.ReclaimInterval,
		connectTimeout: cfg.ConnectTimeout,
		now:            cfg.Now,
		logger:         noopLogger{},
		observer:       noopObserver{},
		current:        TransportNone,
		lastTransport:  TransportNone,
	}
	m.topics = mqtt.Topics{ProductType: m.profile.ProductType, Serial: m.profile.Serial}
	m.preferred = m.profile.Policy.Preferred()

	if m.backoff <= 0 {
		m.backoff = DefaultReconnectBackoff
	}
	if m.reclaim <= 0 {
		m.reclaim = DefaultReclaimInterval
	}
	if m.connectTimeout <= 0 {
		m.connectTimeout = DefaultConnectTimeout
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.sink = func(ev event) {
		if ev.kind == eventConnectionLost {
			m.handleConnectionLost(context.Background(), ev.generation, ev.err)
		}
	}
	return m
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetObserver sets the metrics observer for the manager.
func (m *Manager) SetObserver(observer Observer) {
	m.observer = observer
}

// Topics returns the appliance's topic layout.
func (m *Manager) Topics() mqtt.Topics {
	return m.topics
}

// Preferred returns the transport the policy designates as primary.
func (m *Manager) Preferred() Transport {
	return m.preferred
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Status()
}

// Current returns the transport in use, TransportNone when disconnected.
func (m *Manager) Current() Transport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnFallback reports whether the connection uses the non-preferred transport.
func (m *Manager) OnFallback() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fallback
}

// Info returns a copy of the connection state.
func (m *Manager) Info() ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ConnectionInfo{
		Status:             m.current.Status(),
		Policy:             m.profile.Policy,
		Preferred:          m.preferred,
		Fallback:           m.fallback,
		LastAttempt:        m.lastAttempt,
		LastPreferredRetry: m.lastPreferredRetry,
	}
}

// Connect runs one evaluation of the connection state machine.
//
// In order:
//  1. Within the reconnect backoff of the previous call: return false
//     without touching any transport. Otherwise stamp the attempt time.
//  2. Connected on the preferred transport: return true.
//  3. Connected on the fallback: once the reclaim interval has passed, try
//     the preferred transport on a new connection and switch over if it
//     works. Return true either way.
//  4. Disconnected after having been on the fallback: try the preferred
//     transport once first.
//  5. Walk the policy sequence, skipping transports without an address or
//     credential and any already tried in this call. Stop at the first
//     success.
//
// Transport failures are logged and reported as false; they are never
// returned as errors.
func (m *Manager) Connect(ctx context.Context) bool {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()

	now := m.now()

	m.mu.Lock()
	if !m.lastAttempt.IsZero() && now.Sub(m.lastAttempt) < m.backoff {
		m.mu.Unlock()
		m.logger.Debug("connect skipped within backoff", "since_last", now.Sub(m.lastAttempt))
		return false
	}
	m.lastAttempt = now
	current := m.current
	fallback := m.fallback
	lastTransport := m.lastTransport
	lastRetry := m.lastPreferredRetry
	m.mu.Unlock()

	if current != TransportNone {
		if fallback && now.Sub(lastRetry) >= m.reclaim {
			m.reclaimPreferred(ctx, now)
		}
		return m.Status() != StatusDisconnected
	}

	tried := make(map[Transport]bool, 2)

	if lastTransport != TransportNone && lastTransport != m.preferred && m.profile.Available(m.preferred) {
		m.logger.Info("retrying preferred transport after disconnect", "transport", m.preferred)
		tried[m.preferred] = true
		if m.attempt(ctx, m.preferred) {
			return true
		}
		m.setLastPreferredRetry(now)
	}

	for _, t := range m.profile.Policy.Sequence() {
		if tried[t] {
			continue
		}
		if !m.profile.Available(t) {
			m.logger.Debug("skipping transport without address or credential", "transport", t)
			continue
		}
		tried[t] = true
		if m.attempt(ctx, t) {
			if t != m.preferred && tried[m.preferred] {
				m.setLastPreferredRetry(now)
			}
			return true
		}
	}

	m.mu.Lock()
	m.current = TransportNone
	m.fallback = false
	m.lastTransport = TransportNone
	m.mu.Unlock()

	m.logger.Warn("all transports failed", "policy", m.profile.Policy)
	return false
}

// attempt dials one transport and installs it as the live connection.
func (m *Manager) attempt(ctx context.Context, t Transport) bool {
	conn, generation, err := m.dial(ctx, t)
	if err != nil {
		return false
	}

	m.mu.Lock()
	previous := m.current.Status()
	m.conn = conn
	m.activeGeneration = generation
	m.dialingGeneration = 0
	m.current = t
	m.fallback = t != m.preferred
	m.lastTransport = t
	fallback := m.fallback
	m.mu.Unlock()

	m.logger.Info("connected", "transport", t, "fallback", fallback)
	m.statusChanged(ctx, statusChange{previous: previous, current: t.Status(), fallback: fallback})
	return true
}

// reclaimPreferred tries the preferred transport while the fallback stays
// up. The fallback is only closed once the preferred connection works.
func (m *Manager) reclaimPreferred(ctx context.Context, now time.Time) {
	if !m.profile.Available(m.preferred) {
		m.setLastPreferredRetry(now)
		return
	}

	m.logger.Info("attempting to reclaim preferred transport", "transport", m.preferred)

	conn, generation, err := m.dial(ctx, m.preferred)
	if err != nil {
		m.setLastPreferredRetry(now)
		return
	}

	m.mu.Lock()
	old := m.conn
	previous := m.current.Status()
	m.conn = conn
	m.activeGeneration = generation
	m.dialingGeneration = 0
	m.current = m.preferred
	m.fallback = false
	m.lastTransport = m.preferred
	m.lastPreferredRetry = now
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.Warn("closing fallback connection", "error", err)
		}
	}

	m.logger.Info("reclaimed preferred transport", "transport", m.preferred)
	m.statusChanged(ctx, statusChange{previous: previous, current: m.preferred.Status()})
}

// dial makes one bounded attempt and subscribes the device topics.
func (m *Manager) dial(ctx context.Context, t Transport) (Conn, uint64, error) {
	m.mu.Lock()
	m.generation++
	generation := m.generation
	m.dialingGeneration = generation
	m.mu.Unlock()

	if m.dialer == nil {
		err := &TransportError{Transport: t, Err: fmt.Errorf("%w: no dialer", ErrUnknownTransport)}
		m.observer.ConnectAttempt(string(t), false)
		return nil, 0, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	sink := m.sink
	conn, err := m.dialer.Dial(attemptCtx, t, Handlers{
		OnMessage: func(topic string, payload []byte) {
			sink(event{kind: eventMessage, generation: generation, topic: topic, payload: payload})
		},
		OnConnectionLost: func(err error) {
			sink(event{kind: eventConnectionLost, generation: generation, err: err})
		},
	})
	if err == nil {
		err = m.subscribe(conn)
		if err != nil {
			conn.Close() //nolint:errcheck // attempt already failed
		}
	}

	m.observer.ConnectAttempt(string(t), err == nil)
	if err != nil {
		m.clearDialing(generation)
		m.logger.Warn("transport attempt failed", "transport", t, "error", err)
		return nil, 0, err
	}
	return conn, generation, nil
}

func (m *Manager) clearDialing(generation uint64) {
	m.mu.Lock()
	if m.dialingGeneration == generation {
		m.dialingGeneration = 0
	}
	m.mu.Unlock()
}

// acceptsGeneration reports whether events from the connection with the
// given generation belong to the live connection or the one being dialled.
func (m *Manager) acceptsGeneration(generation uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if generation == 0 {
		return false
	}
	return generation == m.activeGeneration || generation == m.dialingGeneration
}

func (m *Manager) subscribe(conn Conn) error {
	if err := conn.Subscribe(m.topics.DeviceSubscriptions(), m.qos); err != nil {
		return fmt.Errorf("subscribing device topics: %w", err)
	}
	return nil
}

func (m *Manager) setLastPreferredRetry(t time.Time) {
	m.mu.Lock()
	m.lastPreferredRetry = t
	m.mu.Unlock()
}

// Disconnect closes the live connection, if any.
func (m *Manager) Disconnect() {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()
	m.disconnect(context.Background())
}

func (m *Manager) disconnect(ctx context.Context) {
	m.mu.Lock()
	conn := m.conn
	previous := m.current
	if previous != TransportNone {
		m.lastTransport = previous
	}
	m.conn = nil
	m.current = TransportNone
	m.fallback = false
	m.activeGeneration = 0
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Warn("closing connection", "error", err)
		}
	}
	if previous != TransportNone {
		m.logger.Info("disconnected", "transport", previous)
		m.statusChanged(ctx, statusChange{previous: previous.Status(), current: StatusDisconnected})
	}
}

// ForceReconnect drops the connection, clears the backoff and runs Connect.
func (m *Manager) ForceReconnect(ctx context.Context) bool {
	m.attemptMu.Lock()
	m.disconnect(ctx)
	m.mu.Lock()
	m.lastAttempt = time.Time{}
	m.mu.Unlock()
	m.attemptMu.Unlock()

	return m.Connect(ctx)
}

// handleConnectionLost records an unplanned drop of the connection with the
// given generation. Drops of replaced or closed connections are ignored.
// The preferred-retry timer is reset so the next Connect goes straight back
// to the preferred transport.
//
// Returns:
//   - bool: true if the live connection was lost
func (m *Manager) handleConnectionLost(ctx context.Context, generation uint64, cause error) bool {
	m.mu.Lock()
	if generation == 0 || generation != m.activeGeneration || m.current == TransportNone {
		m.mu.Unlock()
		return false
	}
	previous := m.current
	m.lastTransport = previous
	m.current = TransportNone
	m.fallback = false
	m.conn = nil
	m.activeGeneration = 0
	m.lastPreferredRetry = time.Time{}
	m.mu.Unlock()

	m.logger.Warn("connection lost", "transport", previous, "error", cause)
	m.statusChanged(ctx, statusChange{previous: previous.Status(), current: StatusDisconnected})
	return true
}

// HealthCheck asks the live connection whether it is still up.
//
// Returns:
//   - error: ErrNotConnected when there is no connection, otherwise the
//     transport's verdict
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.HealthCheck(ctx)
}

// Publish sends a payload on the live connection.
//
// Returns:
//   - error: ErrNotConnected when disconnected, otherwise the transport's error
func (m *Manager) Publish(topic string, payload []byte) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.Publish(topic, payload, m.qos)
}

func (m *Manager) statusChanged(ctx context.Context, change statusChange) {
	m.observer.StatusChanged(string(change.current))
	if m.onStatus != nil {
		m.onStatus(ctx, change)
	}
}
