package appliance

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// DefaultSuperviseInterval is how often Run re-evaluates the connection.
const DefaultSuperviseInterval = 15 * time.Second

// ErrAlreadyRunning is returned by Run when the device is already running.
var ErrAlreadyRunning = errors.New("appliance: already running")

// Options configures a Device.
type Options struct {
	Profile Profile

	// Dialer opens transport connections. Nil uses an MQTTDialer for Profile.
	Dialer Dialer

	QoS       byte
	KeepAlive time.Duration

	ReconnectBackoff  time.Duration
	ReclaimInterval   time.Duration
	ConnectTimeout    time.Duration
	SuperviseInterval time.Duration

	// HeadlineReadings overrides DefaultHeadlineReadings.
	HeadlineReadings []string

	Logger   Logger
	Observer Observer

	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time
}

// ConnectionEvent describes one change of connection status.
type ConnectionEvent struct {
	Previous Status    `json:"previous"`
	Current  Status    `json:"current"`
	Fallback bool      `json:"fallback"`
	Time     time.Time `json:"time"`
}

// StatusCallback receives connection status changes. It may be called from
// any goroutine and must not call Connect, Disconnect or ForceReconnect.
type StatusCallback func(ConnectionEvent)

// Device is the host-facing facade for one appliance: connection control,
// snapshot reads, callbacks and commands.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Device struct {
	profile    Profile
	store      *Store
	normalizer *Normalizer
	manager    *Manager
	bridge     *bridge

	logger    Logger
	observer  Observer
	now       func() time.Time
	supervise time.Duration

	statusSubs *subscribers[StatusCallback]

	// reconnect asks the supervisor for an immediate evaluation.
	reconnect chan struct{}
	running   atomic.Bool
}

// New creates a disconnected Device. Call Run to start processing messages
// and keeping the connection alive.
//
// Returns:
//   - *Device: The device facade
//   - error: Wrapping ErrInvalidProfile if the profile is unusable
func New(opts Options) (*Device, error) {
	profile := opts.Profile.withDefaults()
	if err := profile.validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &MQTTDialer{
			Profile:        profile,
			KeepAlive:      opts.KeepAlive,
			ConnectTimeout: opts.ConnectTimeout,
			Logger:         logger,
		}
	}

	supervise := opts.SuperviseInterval
	if supervise <= 0 {
		supervise = DefaultSuperviseInterval
	}

	d := &Device{
		profile:    profile,
		store:      NewStore(),
		logger:     logger,
		observer:   observer,
		now:        now,
		supervise:  supervise,
		statusSubs: newSubscribers[StatusCallback](),
		reconnect:  make(chan struct{}, 1),
	}

	d.normalizer = NewNormalizer(d.store, opts.HeadlineReadings)
	d.normalizer.SetLogger(logger)
	d.normalizer.SetObserver(observer)

	d.manager = NewManager(ManagerConfig{
		Profile:          profile,
		Dialer:           dialer,
		QoS:              opts.QoS,
		ReconnectBackoff: opts.ReconnectBackoff,
		ReclaimInterval:  opts.ReclaimInterval,
		ConnectTimeout:   opts.ConnectTimeout,
		Now:              now,
	})
	d.manager.SetLogger(logger)
	d.manager.SetObserver(observer)

	d.bridge = newBridge()
	d.bridge.logger = logger
	d.bridge.observer = observer
	d.bridge.onMessage = func(topic string, payload []byte) {
		// Undecodable payloads are logged and counted by the normalizer.
		_, _ = d.normalizer.Handle(topic, payload)
	}
	d.bridge.accepts = d.manager.acceptsGeneration
	d.bridge.onLost = func(ctx context.Context, generation uint64, err error) {
		if d.manager.handleConnectionLost(ctx, generation, err) {
			d.requestReconnect()
		}
	}

	d.manager.sink = d.bridge.post
	d.manager.onStatus = d.handleStatus

	return d, nil
}

// Run processes transport events and supervises the connection until ctx
// is cancelled, then disconnects.
//
// The supervisor calls Connect immediately, then every supervise interval
// while disconnected or on the fallback transport, and straight away after
// an unplanned disconnect. The backoff gate still applies to every call.
func (d *Device) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.running.Store(false)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		d.bridge.run(ctx)
	}()

	d.logger.Info("appliance supervisor started",
		"serial", d.profile.Serial,
		"policy", d.profile.Policy,
		"preferred", d.manager.Preferred(),
	)

	d.superviseLoop(ctx)

	d.manager.Disconnect()
	<-loopDone

	d.logger.Info("appliance supervisor stopped", "serial", d.profile.Serial)
	return nil
}

func (d *Device) superviseLoop(ctx context.Context) {
	ticker := time.NewTicker(d.supervise)
	defer ticker.Stop()

	d.evaluate(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.evaluate(ctx)
		case <-d.reconnect:
			d.evaluate(ctx)
		}
	}
}

func (d *Device) evaluate(ctx context.Context) {
	if d.manager.Status() == StatusDisconnected || d.manager.OnFallback() {
		d.manager.Connect(ctx)
	}
}

// requestReconnect is called on the event loop; the attempt itself runs on
// the supervisor goroutine.
func (d *Device) requestReconnect() {
	select {
	case d.reconnect <- struct{}{}:
	default:
	}
}

func (d *Device) handleStatus(ctx context.Context, change statusChange) {
	ev := ConnectionEvent{
		Previous: change.previous,
		Current:  change.current,
		Fallback: change.fallback,
		Time:     d.now(),
	}

	for _, cb := range d.statusSubs.snapshot() {
		d.invokeStatus(cb, ev)
	}

	if change.current != StatusDisconnected {
		if err := d.RequestState(ctx); err != nil {
			d.logger.Warn("requesting state after connect", "error", err)
		}
	}
}

func (d *Device) invokeStatus(cb StatusCallback, ev ConnectionEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("callback panic recovered", "callback", "status", "panic", r)
		}
	}()
	cb(ev)
}

// Connect runs one evaluation of the connection state machine. See
// Manager.Connect.
func (d *Device) Connect(ctx context.Context) bool {
	return d.manager.Connect(ctx)
}

// HealthCheck reports whether the live transport connection is up.
func (d *Device) HealthCheck(ctx context.Context) error {
	return d.manager.HealthCheck(ctx)
}

// Disconnect closes the live connection.
func (d *Device) Disconnect() {
	d.manager.Disconnect()
}

// ForceReconnect drops the connection and reconnects, ignoring the backoff.
func (d *Device) ForceReconnect(ctx context.Context) bool {
	return d.manager.ForceReconnect(ctx)
}

// Status returns the connection status.
func (d *Device) Status() Status {
	return d.manager.Status()
}

// Connection returns a read-only view of the connection state.
func (d *Device) Connection() ConnectionInfo {
	return d.manager.Info()
}

// Profile returns the connection profile.
func (d *Device) Profile() Profile {
	return d.profile
}

// State returns a copy of the snapshot.
func (d *Device) State() State {
	return d.store.Snapshot()
}

// Operational returns one operational field or def.
func (d *Device) Operational(key, def string) string {
	return d.store.Operational(key, def)
}

// Environmental returns one environmental reading or def.
func (d *Device) Environmental(key, def string) string {
	return d.store.Environmental(key, def)
}

// Faults returns the active faults with descriptions.
func (d *Device) Faults() []Fault {
	return ActiveFaults(d.store.RawFaults())
}

// AddMessageCallback registers a callback for every decoded message.
// Each call is a separate subscription identified by the returned ID.
func (d *Device) AddMessageCallback(cb MessageCallback) SubscriptionID {
	return d.normalizer.AddMessageCallback(cb)
}

// RemoveMessageCallback unregisters a message callback.
func (d *Device) RemoveMessageCallback(id SubscriptionID) {
	d.normalizer.RemoveMessageCallback(id)
}

// AddEnvironmentalCallback registers a callback for headline reading changes.
// Each call is a separate subscription identified by the returned ID.
func (d *Device) AddEnvironmentalCallback(cb EnvironmentalCallback) SubscriptionID {
	return d.normalizer.AddEnvironmentalCallback(cb)
}

// RemoveEnvironmentalCallback unregisters an environmental callback.
func (d *Device) RemoveEnvironmentalCallback(id SubscriptionID) {
	d.normalizer.RemoveEnvironmentalCallback(id)
}

// AddStatusCallback registers a callback for connection status changes.
func (d *Device) AddStatusCallback(cb StatusCallback) SubscriptionID {
	return d.statusSubs.add(cb)
}

// RemoveStatusCallback unregisters a status callback.
func (d *Device) RemoveStatusCallback(id SubscriptionID) {
	d.statusSubs.remove(id)
}
