package mqtt

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
)

type received struct {
	topic   string
	payload string
}

func connectTest(t *testing.T, opts Options) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, opts)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // test teardown
	return client
}

func TestConnect_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "missing broker", opts: Options{ClientID: "c1"}},
		{name: "missing client id", opts: Options{BrokerURL: "tcp://127.0.0.1:1883"}},
		{name: "unparseable broker", opts: Options{BrokerURL: "://bad", ClientID: "c1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Connect(context.Background(), tt.opts)
			if !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("Connect() error = %v, want ErrInvalidOptions", err)
			}
		})
	}
}

func TestConnect_RefusedPort(t *testing.T) {
	addr := freeAddr(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Connect(ctx, Options{
		Name:           "local",
		BrokerURL:      "tcp://" + addr,
		ClientID:       "refused",
		ConnectTimeout: 2 * time.Second,
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if !strings.Contains(err.Error(), "local") {
		t.Errorf("error %q does not name the transport", err)
	}
}

func TestConnect_DialFailure(t *testing.T) {
	dialErr := errors.New("no route")

	_, err := Connect(context.Background(), Options{
		Name:           "cloud",
		BrokerURL:      "wss://example.invalid:443/mqtt",
		ClientID:       "c1",
		ConnectTimeout: 2 * time.Second,
		Dial: func(context.Context) (net.Conn, error) {
			return nil, dialErr
		},
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_PublishSubscribeRoundTrip(t *testing.T) {
	broker := startTestBroker(t)
	topics := Topics{ProductType: "438", Serial: "AB1-EU-HKA0001A"}

	messages := make(chan received, 8)
	client := connectTest(t, Options{
		Name:      "local",
		BrokerURL: broker.tcpURL(),
		ClientID:  "roundtrip",
		Username:  topics.Serial,
		Password:  "secret",
		OnMessage: func(topic string, payload []byte) error {
			messages <- received{topic: topic, payload: string(payload)}
			return nil
		},
	})

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if client.Name() != "local" {
		t.Errorf("Name() = %q, want local", client.Name())
	}

	if err := client.Subscribe(topics.StatusCurrent(), 1, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := broker.server.Publish(topics.StatusCurrent(), []byte(`{"msg":"CURRENT-STATE"}`), false, 1); err != nil {
		t.Fatalf("broker Publish() error = %v", err)
	}

	select {
	case msg := <-messages:
		if msg.topic != topics.StatusCurrent() {
			t.Errorf("topic = %q, want %q", msg.topic, topics.StatusCurrent())
		}
		if msg.payload != `{"msg":"CURRENT-STATE"}` {
			t.Errorf("payload = %q", msg.payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestClient_PublishReachesBroker(t *testing.T) {
	broker := startTestBroker(t)
	topics := Topics{ProductType: "438", Serial: "AB1-EU-HKA0001A"}

	got := make(chan string, 1)
	err := broker.server.Subscribe(topics.Command(), 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		got <- string(pk.Payload)
	})
	if err != nil {
		t.Fatalf("broker Subscribe() error = %v", err)
	}

	client := connectTest(t, Options{BrokerURL: broker.tcpURL(), ClientID: "publisher"})

	if err := client.Publish(topics.Command(), []byte(`{"msg":"REQUEST-CURRENT-STATE"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-got:
		if payload != `{"msg":"REQUEST-CURRENT-STATE"}` {
			t.Errorf("payload = %q", payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for broker to receive publish")
	}
}

func TestClient_OverlappingFiltersDeliverOnce(t *testing.T) {
	broker := startTestBroker(t)
	topics := Topics{ProductType: "438", Serial: "AB1-EU-HKA0001A"}

	var count atomic.Int32
	client := connectTest(t, Options{
		BrokerURL: broker.tcpURL(),
		ClientID:  "overlap",
		OnMessage: func(string, []byte) error {
			count.Add(1)
			return nil
		},
	})

	if err := client.SubscribeMultiple(topics.DeviceSubscriptions(), 1, nil); err != nil {
		t.Fatalf("SubscribeMultiple() error = %v", err)
	}

	if err := broker.server.Publish(topics.StatusFaults(), []byte(`{}`), false, 1); err != nil {
		t.Fatalf("broker Publish() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for count.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("deliveries = %d, want 1", got)
	}
}

func TestClient_HandlerPanicRecovered(t *testing.T) {
	broker := startTestBroker(t)

	delivered := make(chan struct{}, 2)
	client := connectTest(t, Options{
		BrokerURL: broker.tcpURL(),
		ClientID:  "panicky",
		OnMessage: func(topic string, _ []byte) error {
			delivered <- struct{}{}
			if topic == "a/panic" {
				panic("boom")
			}
			return nil
		},
	})

	if err := client.Subscribe("a/#", 1, nil); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for _, topic := range []string{"a/panic", "a/ok"} {
		if err := broker.server.Publish(topic, []byte("x"), false, 1); err != nil {
			t.Fatalf("broker Publish() error = %v", err)
		}
		select {
		case <-delivered:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %s", topic)
		}
	}

	if !client.IsConnected() {
		t.Error("client disconnected after handler panic")
	}
}

func TestClient_ValidationErrors(t *testing.T) {
	broker := startTestBroker(t)
	client := connectTest(t, Options{BrokerURL: broker.tcpURL(), ClientID: "validation"})

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"publish empty topic", func() error { return client.Publish("", nil, 0, false) }, ErrInvalidTopic},
		{"publish bad qos", func() error { return client.Publish("t", nil, 3, false) }, ErrInvalidQoS},
		{"publish oversized", func() error { return client.Publish("t", make([]byte, maxPayloadSize+1), 0, false) }, ErrPublishFailed},
		{"subscribe empty topic", func() error { return client.Subscribe("", 0, nil) }, ErrInvalidTopic},
		{"subscribe bad qos", func() error { return client.Subscribe("t", 3, nil) }, ErrInvalidQoS},
		{"subscribe nil handler without default", func() error { return client.Subscribe("t", 0, nil) }, ErrSubscribeFailed},
		{"subscribe multiple with no filters", func() error { return client.SubscribeMultiple(nil, 0, nil) }, ErrInvalidTopic},
		{"subscribe multiple with empty filter", func() error {
			return client.SubscribeMultiple([]string{"a/b", ""}, 0, func(string, []byte) error { return nil })
		}, ErrInvalidTopic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_CloseIsIdempotentAndSilent(t *testing.T) {
	broker := startTestBroker(t)

	var lost atomic.Int32
	client := connectTest(t, Options{
		BrokerURL:        broker.tcpURL(),
		ClientID:         "closer",
		OnConnectionLost: func(error) { lost.Add(1) },
	})

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.Publish("t", []byte("x"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	time.Sleep(200 * time.Millisecond)
	if got := lost.Load(); got != 0 {
		t.Errorf("OnConnectionLost called %d times after Close, want 0", got)
	}
}

func TestClient_ConnectionLostReported(t *testing.T) {
	broker := startTestBroker(t)

	lost := make(chan error, 1)
	client := connectTest(t, Options{
		BrokerURL:        broker.tcpURL(),
		ClientID:         "dropped",
		OnConnectionLost: func(err error) { lost <- err },
	})

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	broker.Close()

	select {
	case <-lost:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection lost callback")
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
}

func TestClient_NilClientIsDisconnected(t *testing.T) {
	var client *Client
	if client.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := client.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}
