package mqtt

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// testBroker is an embedded broker listening on loopback TCP and WebSocket.
type testBroker struct {
	server *mochi.Server
	tcp    string
	ws     string

	closeOnce sync.Once
}

// freeAddr reserves a loopback port and releases it for the broker to use.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	addr := l.Addr().String()
	if err := l.Close(); err != nil {
		t.Fatalf("releasing port: %v", err)
	}
	return addr
}

// startTestBroker starts an allow-all broker and stops it when the test ends.
func startTestBroker(t *testing.T) *testBroker {
	t.Helper()

	server := mochi.New(&mochi.Options{InlineClient: true})
	server.Log = slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("adding auth hook: %v", err)
	}

	b := &testBroker{server: server, tcp: freeAddr(t), ws: freeAddr(t)}

	if err := server.AddListener(listeners.NewTCP(listeners.Config{ID: "tcp", Address: b.tcp})); err != nil {
		t.Fatalf("adding tcp listener: %v", err)
	}
	if err := server.AddListener(listeners.NewWebsocket(listeners.Config{ID: "ws", Address: b.ws})); err != nil {
		t.Fatalf("adding ws listener: %v", err)
	}
	if err := server.Serve(); err != nil {
		t.Fatalf("starting broker: %v", err)
	}

	t.Cleanup(b.Close)
	return b
}

func (b *testBroker) tcpURL() string {
	return "tcp://" + b.tcp
}

func (b *testBroker) wsURL() string {
	return "ws://" + b.ws + "/mqtt"
}

// Close stops the broker. Safe to call more than once.
func (b *testBroker) Close() {
	b.closeOnce.Do(func() {
		b.server.Close() //nolint:errcheck // test teardown
	})
}
