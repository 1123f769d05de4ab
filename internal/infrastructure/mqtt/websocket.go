package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket tunnel constants.
const (
	// mqttSubprotocol is the WebSocket subprotocol brokers expect for MQTT.
	mqttSubprotocol = "mqtt"

	// defaultHandshakeTimeout bounds the HTTP upgrade.
	defaultHandshakeTimeout = 10 * time.Second

	// tlsMinVersion is the minimum TLS version for secure tunnels.
	tlsMinVersion = tls.VersionTLS12
)

// WebsocketOptions describes a WebSocket tunnel to a broker.
type WebsocketOptions struct {
	// URL is the full ws:// or wss:// address including path.
	URL string

	// Header is sent with the upgrade request. A "Host" entry overrides the
	// request host.
	Header http.Header

	// TLSConfig is used for wss:// URLs. Nil uses a TLS 1.2+ default.
	TLSConfig *tls.Config

	// HandshakeTimeout bounds the upgrade. Zero uses 10s.
	HandshakeTimeout time.Duration
}

// DialWebsocket performs the WebSocket upgrade and returns the tunnel as a
// net.Conn carrying binary MQTT frames.
//
// Parameters:
//   - ctx: Cancels the dial and handshake
//   - opts: Tunnel address, headers and TLS settings
//
// Returns:
//   - net.Conn: The established tunnel
//   - error: Wrapping ErrHandshakeFailed on any failure
func DialWebsocket(ctx context.Context, opts WebsocketOptions) (net.Conn, error) {
	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tlsMinVersion}
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		TLSClientConfig:  tlsConfig,
		Subprotocols:     []string{mqttSubprotocol},
	}

	conn, resp, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // Body is empty or already consumed by the dialer
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: HTTP %d: %w", ErrHandshakeFailed, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	return &wsConn{conn: conn}, nil
}

// wsConn adapts a gorilla WebSocket connection to net.Conn so paho can
// treat the tunnel as an ordinary stream. Every Write is one binary frame;
// Read drains frames in order and skips non-binary ones.
type wsConn struct {
	conn *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex
}

var _ net.Conn = (*wsConn)(nil)

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			messageType, r, err := c.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
