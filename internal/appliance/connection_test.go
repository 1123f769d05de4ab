package appliance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManager_PolicyOrder(t *testing.T) {
	tests := []struct {
		name         string
		policy       Policy
		reachable    []Transport
		mutate       func(*Profile)
		wantOK       bool
		wantAttempts []Transport
		wantStatus   Status
		wantFallback bool
	}{
		{
			name:         "local-then-cloud with local reachable",
			policy:       PolicyLocalThenCloud,
			reachable:    []Transport{TransportLocal, TransportCloud},
			wantOK:       true,
			wantAttempts: []Transport{TransportLocal},
			wantStatus:   StatusLocal,
		},
		{
			name:         "local-then-cloud falls back to cloud",
			policy:       PolicyLocalThenCloud,
			reachable:    []Transport{TransportCloud},
			wantOK:       true,
			wantAttempts: []Transport{TransportLocal, TransportCloud},
			wantStatus:   StatusCloud,
			wantFallback: true,
		},
		{
			name:         "cloud-then-local with cloud reachable",
			policy:       PolicyCloudThenLocal,
			reachable:    []Transport{TransportLocal, TransportCloud},
			wantOK:       true,
			wantAttempts: []Transport{TransportCloud},
			wantStatus:   StatusCloud,
		},
		{
			name:         "cloud-then-local falls back to local",
			policy:       PolicyCloudThenLocal,
			reachable:    []Transport{TransportLocal},
			wantOK:       true,
			wantAttempts: []Transport{TransportCloud, TransportLocal},
			wantStatus:   StatusLocal,
			wantFallback: true,
		},
		{
			name:         "local-only never tries cloud",
			policy:       PolicyLocalOnly,
			reachable:    []Transport{TransportCloud},
			wantOK:       false,
			wantAttempts: []Transport{TransportLocal},
			wantStatus:   StatusDisconnected,
		},
		{
			name:         "cloud-only",
			policy:       PolicyCloudOnly,
			reachable:    []Transport{TransportLocal, TransportCloud},
			wantOK:       true,
			wantAttempts: []Transport{TransportCloud},
			wantStatus:   StatusCloud,
		},
		{
			name:         "missing local credential is skipped",
			policy:       PolicyLocalThenCloud,
			reachable:    []Transport{TransportLocal, TransportCloud},
			mutate:       func(p *Profile) { p.LocalCredential = "" },
			wantOK:       true,
			wantAttempts: []Transport{TransportCloud},
			wantStatus:   StatusCloud,
			wantFallback: true,
		},
		{
			name:         "missing cloud address is skipped",
			policy:       PolicyCloudThenLocal,
			reachable:    []Transport{TransportLocal, TransportCloud},
			mutate:       func(p *Profile) { p.CloudHost = "" },
			wantOK:       true,
			wantAttempts: []Transport{TransportLocal},
			wantStatus:   StatusLocal,
			wantFallback: true,
		},
		{
			name:         "local reachable and cloud absent",
			policy:       PolicyLocalThenCloud,
			reachable:    []Transport{TransportLocal},
			mutate:       func(p *Profile) { p.CloudHost, p.CloudCredential = "", "" },
			wantOK:       true,
			wantAttempts: []Transport{TransportLocal},
			wantStatus:   StatusLocal,
		},
		{
			name:         "everything unreachable",
			policy:       PolicyLocalThenCloud,
			wantOK:       false,
			wantAttempts: []Transport{TransportLocal, TransportCloud},
			wantStatus:   StatusDisconnected,
		},
		{
			name:   "nothing configured",
			policy: PolicyLocalThenCloud,
			mutate: func(p *Profile) {
				p.LocalHost, p.CloudHost = "", ""
			},
			wantOK:       false,
			wantAttempts: nil,
			wantStatus:   StatusDisconnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := testProfile(tt.policy)
			if tt.mutate != nil {
				tt.mutate(&profile)
			}
			dialer := newFakeDialer(tt.reachable...)
			m := newTestManager(t, profile, dialer, newFakeClock())

			if got := m.Connect(context.Background()); got != tt.wantOK {
				t.Errorf("Connect() = %v, want %v", got, tt.wantOK)
			}
			if got := dialer.takeAttempts(); !equalTransports(got, tt.wantAttempts) {
				t.Errorf("attempts = %v, want %v", got, tt.wantAttempts)
			}
			if got := m.Status(); got != tt.wantStatus {
				t.Errorf("Status() = %q, want %q", got, tt.wantStatus)
			}
			if got := m.OnFallback(); got != tt.wantFallback {
				t.Errorf("OnFallback() = %v, want %v", got, tt.wantFallback)
			}
		})
	}
}

func TestManager_HealthCheck(t *testing.T) {
	dialer := newFakeDialer(TransportLocal)
	m := newTestManager(t, testProfile(PolicyLocalThenCloud), dialer, newFakeClock())
	ctx := context.Background()

	if err := m.HealthCheck(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() before Connect error = %v, want ErrNotConnected", err)
	}
	if !m.Connect(ctx) {
		t.Fatal("Connect() = false")
	}
	if err := m.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	// Closed underneath the manager, before the loss is reported.
	dialer.lastConn().Close() //nolint:errcheck // fake never fails
	if err := m.HealthCheck(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() on closed conn error = %v, want ErrNotConnected", err)
	}
}

func TestManager_SubscribesDeviceTopics(t *testing.T) {
	dialer := newFakeDialer(TransportLocal)
	m := newTestManager(t, testProfile(PolicyLocalThenCloud), dialer, newFakeClock())

	if !m.Connect(context.Background()) {
		t.Fatal("Connect() = false")
	}

	conn := dialer.lastConn()
	want := m.Topics().DeviceSubscriptions()
	if len(conn.subscriptions) != len(want) {
		t.Fatalf("subscriptions = %v, want %v", conn.subscriptions, want)
	}
	for i := range want {
		if conn.subscriptions[i] != want[i] {
			t.Errorf("subscription[%d] = %q, want %q", i, conn.subscriptions[i], want[i])
		}
	}
}

func TestManager_BackoffGate(t *testing.T) {
	clock := newFakeClock()
	dialer := newFakeDialer()
	m := newTestManager(t, testProfile(PolicyLocalThenCloud), dialer, clock)
	ctx := context.Background()

	m.Connect(ctx)
	if got := len(dialer.takeAttempts()); got != 2 {
		t.Fatalf("first Connect attempts = %d, want 2", got)
	}

	clock.Advance(10 * time.Second)
	if m.Connect(ctx) {
		t.Error("Connect() within backoff = true")
	}
	if got := dialer.takeAttempts(); len(got) != 0 {
		t.Errorf("attempts within backoff = %v, want none", got)
	}

	// The gated call does not restart the window.
	clock.Advance(20 * time.Second)
	m.Connect(ctx)
	if got := len(dialer.takeAttempts()); got != 2 {
		t.Errorf("attempts after backoff = %d, want 2", got)
	}
}

func TestManager_BackoffGateWhileConnected(t *testing.T) {
	clock := newFakeClock()
	dialer := newFakeDialer(TransportLocal)
	m := newTestManager(t, testProfile(PolicyLocalThenCloud), dialer, clock)

	if !m.Connect(context.Background()) {
		t.Fatal("Connect() = false")
	}
	clock.Advance(time.Second)
	if m.Connect(context.Background()) {
		t.Error("Connect() within backoff = true, want false even while connected")
	}

	clock.Advance(DefaultReconnectBackoff)
	if !m.Connect(context.Background()) {
		t.Error("Connect() while connected on preferred = false")
	}
	if got := dialer.takeAttempts(); len(got) != 1 {
		t.Errorf("attempts = %v, want only the initial one", got)
	}
}

func TestManager_UnplannedDisconnectReclaimsPreferred(t *testing.T) {
	clock := newFakeClock()
	dialer := newFakeDialer(TransportCloud)
	m := newTestManager(t, testProfile(PolicyLocalThenCloud), dialer, clock)
	ctx := context.Background()

	if !m.Connect(ctx) || m.Status() != StatusCloud {
		t.Fatalf("initial status = %q, want cloud", m.Status())
	}
	dialer.takeAttempts()

	// Stay on the fallback well past the reclaim interval, without Connect
	// calls in between, then lose the connection.
	clock.Advance(2 * DefaultReclaimInterval)
	dialer.setReachable(TransportLocal, true)
	dialer.lastConn().drop()

	if m.Status() != StatusDisconnected {
		t.Fatalf("status after drop = %q, want disconnected", m.Status())
	}
	if !m.Info().LastPreferredRetry.IsZero() {
		t.Error("LastPreferredRetry not reset after unplanned disconnect")
	}

	if !m.Connect(ctx) {
		t.Fatal("Connect() after drop = false")
	}
	if got := dialer.takeAttempts(); !equalTransports(got, []Transport{TransportLocal}) {
		t.Errorf("attempts = %v, want [local]", got)
	}
	if m.Status() != StatusLocal || m.OnFallback() {
		t.Errorf("status = %q fallback = %v, want local without fallback", m.Status(), m.OnFallback())
	}
}

func TestManager_DisconnectFromFallbackTriesPreferredOnce(t *testing.T) {
	clock := newFakeClock()
	dialer := newFakeDialer(TransportCloud)
	m := newTestManager(t, testProfile(PolicyLocalThenCloud), dialer, clock)
	ctx := context.Background()

	m.Connect(ctx)
	dialer.takeAttempts()

	dialer.lastConn().drop()
	clock.Advance(DefaultReconnectBackoff)

	if !m.Connect(ctx) {
		t.Fatal("Connect() = false")
	}
	if got := dialer.takeAttempts(); !equalTransports(got, []Transport{TransportLocal, TransportCloud}) {
		t.Errorf("attempts = %v, want [local cloud]", got)
	}
	if m.Status() != StatusCloud || !m.OnFallback() {
		t.Errorf("status = %q fallback = %v, want cloud on fallback", m.Status(), m.OnFallback())
	}
}

func TestManager_ReclaimInterval(t *testing.T) {
	clock := newFakeClock()
	dialer := newFakeDialer(TransportCloud)
	m := newTestManager(t, testProfile(PolicyLocalThenCloud), dialer, clock)
	ctx := context.Background()

	m.Connect(ctx)
	fallbackConn := dialer.lastConn()
	dialer.takeAttempts()

	// Repeated calls inside the reclaim interval never touch local.
	for elapsed := DefaultReconnectBackoff; elapsed < DefaultReclaimInterval; elapsed += DefaultReconnectBackoff {
		clock.Advance(DefaultReconnectBackoff)
		if !m.Connect(ctx) {
			t.Fatalf("Connect() on fallback = false at %v", elapsed)
		}
	}
	if got := dialer.takeAttempts(); len(got) != 0 {
		t.Fatalf("attempts inside reclaim interval = %v, want none", got)
	}

	// Interval elapsed, local still down: one attempt, fallback kept.
	clock.Advance(DefaultReconnectBackoff)
	if !m.Connect(ctx) {
		t.Fatal("Connect() after failed reclaim = false")
	}
	if got := dialer.takeAttempts(); !equalTransports(got, []Transport{TransportLocal}) {
		t.Fatalf("reclaim attempts = %v, want [local]", got)
	}
	if m.Status() != StatusCloud || !m.OnFallback() || fallbackConn.isClosed() {
		t.Fatal("failed reclaim disturbed the fallback connection")
	}

	// The failure restarts the interval.
	dialer.setReachable(TransportLocal, true)
	clock.Advance(DefaultReconnectBackoff)
	m.Connect(ctx)
	if got := dialer.takeAttempts(); len(got) != 0 {
		t.Fatalf("attempts right after failed reclaim = %v, want none", got)
	}

	clock.Advance(DefaultReclaimInterval)
	if !m.Connect(ctx) {
		t.Fatal("Connect() on reclaim = false")
	}
	if got := dialer.takeAttempts(); !equalTransports(got, []Transport{TransportLocal}) {
		t.Errorf("reclaim attempts = %v, want [local]", got)
	}
	if m.Status() != StatusLocal || m.OnFallback() {
		t.Errorf("status = %q fallback = %v, want local without fallback", m.Status(), m.OnFallback())
	}
	if !fallbackConn.isClosed() {
		t.Error("fallback connection not closed after reclaim")
	}

	// A late loss report from the replaced connection is ignored.
	fallbackConn.handlers.OnConnectionLost(errors.New("late"))
	if m.Status() != StatusLocal {
		t.Errorf("status after stale loss = %q, want local", m.Status())
	}
}

func TestManager_AllFailClearsFallback(t *testing.T) {
	clock := newFakeClock()
	dialer := newFakeDialer(TransportCloud)
	m := newTestManager(t, testProfile(PolicyLocalThenCloud), dialer, clock)
	ctx := context.Background()

	m.Connect(ctx)
	dialer.lastConn().drop()
	dialer.setReachable(TransportCloud, false)

	clock.Advance(DefaultReconnectBackoff)
	if m.Connect(ctx) {
		t.Fatal("Connect() with nothing reachable = true")
	}
	if m.Status() != StatusDisconnected || m.OnFallback() {
		t.Errorf("status = %q fallback = %v, want disconnected without fallback", m.Status(), m.OnFallback())
	}
}

func TestManager_ForceReconnectIgnoresBackoff(t *testing.T) {
	clock := newFakeClock()
	dialer := newFakeDialer(TransportLocal)
	m := newTestManager(t, testProfile(PolicyLocalThenCloud), dialer, clock)
	ctx := context.Background()

	m.Connect(ctx)
	first := dialer.lastConn()
	dialer.takeAttempts()

	if !m.ForceReconnect(ctx) {
		t.Fatal("ForceReconnect() = false")
	}
	if got := dialer.takeAttempts(); !equalTransports(got, []Transport{TransportLocal}) {
		t.Errorf("attempts = %v, want [local]", got)
	}
	if !first.isClosed() {
		t.Error("previous connection not closed")
	}
	if dialer.lastConn() == first {
		t.Error("connection was reused instead of replaced")
	}
}

func TestManager_DisconnectIsClean(t *testing.T) {
	clock := newFakeClock()
	dialer := newFakeDialer(TransportLocal)
	m := newTestManager(t, testProfile(PolicyLocalThenCloud), dialer, clock)

	var changes []statusChange
	m.onStatus = func(_ context.Context, c statusChange) { changes = append(changes, c) }

	m.Connect(context.Background())
	conn := dialer.lastConn()
	m.Disconnect()

	if m.Status() != StatusDisconnected {
		t.Errorf("Status() = %q, want disconnected", m.Status())
	}
	if !conn.isClosed() {
		t.Error("connection not closed")
	}
	if err := m.Publish("t", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}

	// A loss report after a clean disconnect changes nothing.
	conn.handlers.OnConnectionLost(errors.New("late"))

	if len(changes) != 2 {
		t.Fatalf("status changes = %+v, want connect and disconnect", changes)
	}
	if changes[0].current != StatusLocal || changes[1].current != StatusDisconnected {
		t.Errorf("status changes = %+v", changes)
	}
}

func TestManager_EndToEndFallbackAndReclaim(t *testing.T) {
	clock := newFakeClock()
	dialer := newFakeDialer(TransportCloud)
	m := newTestManager(t, testProfile(PolicyLocalThenCloud), dialer, clock)
	ctx := context.Background()

	if !m.Connect(ctx) {
		t.Fatal("Connect() = false")
	}
	if m.Status() != StatusCloud || !m.OnFallback() {
		t.Fatalf("status = %q fallback = %v, want cloud on fallback", m.Status(), m.OnFallback())
	}

	dialer.setReachable(TransportLocal, true)
	clock.Advance(DefaultReclaimInterval)

	if !m.Connect(ctx) {
		t.Fatal("Connect() = false")
	}
	if m.Status() != StatusLocal || m.OnFallback() {
		t.Errorf("status = %q fallback = %v, want local without fallback", m.Status(), m.OnFallback())
	}
}

func TestManager_InfoReportsPolicy(t *testing.T) {
	m := newTestManager(t, testProfile(PolicyCloudThenLocal), newFakeDialer(), newFakeClock())

	info := m.Info()
	if info.Preferred != TransportCloud {
		t.Errorf("Preferred = %q, want cloud", info.Preferred)
	}
	if info.Policy != PolicyCloudThenLocal {
		t.Errorf("Policy = %q", info.Policy)
	}
	if info.Status != StatusDisconnected {
		t.Errorf("Status = %q", info.Status)
	}
}
