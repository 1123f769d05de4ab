package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/airlink/internal/appliance"
	"github.com/nerrad567/airlink/internal/infrastructure/config"
	"github.com/nerrad567/airlink/internal/infrastructure/logging"
)

func newTestClient(hub *Hub, channels ...string) *WSClient {
	c := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	return c
}

func TestNewHub_Defaults(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Discard())
	if hub.cfg.MaxMessageSize != defaultWSMaxMessageSize || hub.cfg.PingInterval != defaultWSPingInterval || hub.cfg.PongTimeout != defaultWSPongTimeout {
		t.Errorf("cfg = %+v, want defaults", hub.cfg)
	}
}

func TestHub_BroadcastOnlyToSubscribers(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Discard())

	subscribed := newTestClient(hub, ChannelEnvironment)
	other := newTestClient(hub, ChannelConnection)
	hub.Register(subscribed)
	hub.Register(other)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("ClientCount() = %d, want 2", got)
	}

	hub.Broadcast(ChannelEnvironment, map[string]string{"pm25": "0004"})

	select {
	case data := <-subscribed.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != WSTypeEvent || msg.EventType != ChannelEnvironment {
			t.Errorf("msg = %+v", msg)
		}
	default:
		t.Fatal("subscribed client received nothing")
	}

	select {
	case data := <-other.send:
		t.Errorf("unsubscribed client received %s", data)
	default:
	}

	hub.Unregister(subscribed)
	hub.Unregister(subscribed)
	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() after unregister = %d, want 1", got)
	}
	if _, ok := <-subscribed.send; ok {
		t.Error("send channel still open after Unregister")
	}

	// Broadcasting to a client that has gone must not panic.
	subscribed.trySend([]byte("late"))
}

func TestHub_RunClosesClientsOnCancel(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Discard())
	client := newTestClient(hub)
	hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after shutdown", hub.ClientCount())
	}
}

func TestWSClient_HandleMessage(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Discard())
	client := newTestClient(hub)

	read := func() WSMessage {
		t.Helper()
		select {
		case data := <-client.send:
			var msg WSMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			return msg
		default:
			t.Fatal("no reply queued")
			return WSMessage{}
		}
	}

	client.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["device.message","device.connection"]}}`))
	if msg := read(); msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Errorf("subscribe reply = %+v", msg)
	}
	if !client.isSubscribed(ChannelMessage) || !client.isSubscribed(ChannelConnection) {
		t.Error("subscriptions not recorded")
	}

	client.handleMessage([]byte(`{"type":"unsubscribe","id":"2","payload":{"channels":["device.message"]}}`))
	read()
	if client.isSubscribed(ChannelMessage) {
		t.Error("still subscribed after unsubscribe")
	}

	client.handleMessage([]byte(`{"type":"ping","id":"3"}`))
	if msg := read(); msg.Type != WSTypePong || msg.ID != "3" {
		t.Errorf("ping reply = %+v", msg)
	}

	client.handleMessage([]byte(`not json`))
	if msg := read(); msg.Type != WSTypeError {
		t.Errorf("invalid JSON reply = %+v", msg)
	}

	client.handleMessage([]byte(`{"type":"teleport","id":"4"}`))
	if msg := read(); msg.Type != WSTypeError || msg.ID != "4" {
		t.Errorf("unknown type reply = %+v", msg)
	}
}

func TestWebSocket_RelaysDeviceEvents(t *testing.T) {
	env := setupTestServer(t, nil)
	if err := env.server.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { env.server.Close() }) //nolint:errcheck // Test cleanup

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+env.server.Addr()+defaultWSPath, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close() //nolint:errcheck // Test cleanup
	defer conn.Close()

	readMsg := func() WSMessage {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck // Test deadline
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return msg
	}

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelMessage, ChannelConnection}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readMsg(); msg.Type != WSTypeResponse || msg.ID != "sub-1" {
		t.Fatalf("subscribe reply = %+v", msg)
	}

	env.dialer.Conn().Deliver(testTopic, `{"msg":"CURRENT-STATE","product-state":{"fpwr":"ON"}}`)

	msg := readMsg()
	if msg.Type != WSTypeEvent || msg.EventType != ChannelMessage {
		t.Fatalf("event = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["topic"] != testTopic || payload["type"] != string(appliance.MsgCurrentState) {
		t.Errorf("payload = %v", payload)
	}

	env.device.ForceReconnect(context.Background())
	msg = readMsg()
	if msg.EventType != ChannelConnection {
		t.Fatalf("event = %+v, want connection event", msg)
	}
	ev, _ := msg.Payload.(map[string]any)
	if ev["previous"] != string(appliance.StatusLocal) || ev["current"] != string(appliance.StatusDisconnected) {
		t.Errorf("connection event = %v", ev)
	}
}
