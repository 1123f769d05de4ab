package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps a single paho connection to one broker.
//
// A Client is used for exactly one connection lifetime: once it is closed
// or the connection is lost it is never reconnected. Create a new Client to
// try again.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	opts   Options

	// connected tracks current connection state; closed is set by Close so
	// that a late connection-lost callback is not reported.
	connected bool
	closed    bool
	connMu    sync.RWMutex

	connectedCh chan struct{}
	connectOnce sync.Once
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's goroutines. They should hand the message
// off and return quickly.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Connect opens a connection to the broker described by opts and waits for
// it to be established.
//
// It performs the following setup:
//  1. Builds paho options (no auto-reconnect, optional custom dialer)
//  2. Starts the connection
//  3. Waits for the connect notification, the connect token, the timeout
//     or ctx, whichever comes first
//
// Parameters:
//   - ctx: Cancels the wait (and a custom dial) early
//   - opts: Broker address, identity and callbacks
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: Wrapping ErrConnectionFailed or ErrTimeout on failure
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		opts:        opts,
		connectedCh: make(chan struct{}),
	}

	pahoOpts := buildClientOptions(ctx, opts)
	pahoOpts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	if opts.OnMessage != nil {
		pahoOpts.SetDefaultPublishHandler(c.wrapHandler(opts.OnMessage))
	}

	c.client = pahomqtt.NewClient(pahoOpts)

	timeout := opts.connectTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	token := c.client.Connect()

	select {
	case <-c.connectedCh:
	case <-token.Done():
		if err := token.Error(); err != nil {
			c.abort()
			return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, opts.Name, err)
		}
	case <-timer.C:
		c.abort()
		return nil, fmt.Errorf("%w: %s: %w after %v", ErrConnectionFailed, opts.Name, ErrTimeout, timeout)
	case <-ctx.Done():
		c.abort()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, opts.Name, ctx.Err())
	}

	// The connect token can complete before paho runs the OnConnect
	// handler, so mark the state here as well.
	c.markConnected()

	return c, nil
}

// abort tears down a connection attempt that did not complete.
func (c *Client) abort() {
	c.connMu.Lock()
	c.closed = true
	c.connected = false
	c.connMu.Unlock()
	c.client.Disconnect(0)
}

// handleConnect is called by paho when the connection is established.
func (c *Client) handleConnect() {
	c.markConnected()
}

func (c *Client) markConnected() {
	c.connMu.Lock()
	if !c.closed {
		c.connected = true
	}
	c.connMu.Unlock()
	c.connectOnce.Do(func() { close(c.connectedCh) })
}

// handleConnectionLost is called by paho when an established connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	wasClosed := c.closed
	c.connected = false
	c.closed = true
	c.connMu.Unlock()

	if wasClosed {
		return
	}
	if c.opts.OnConnectionLost != nil {
		c.opts.OnConnectionLost(err)
	}
}

// Close gracefully disconnects from the broker.
//
// Close never triggers OnConnectionLost. It is safe to call more than once.
//
// Returns:
//   - error: Always nil; disconnecting an already closed client is not an error
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.connMu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.connected = false
	c.connMu.Unlock()

	if !alreadyClosed {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}

	return nil
}

// HealthCheck verifies the connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	if c == nil || c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnectionOpen()
}

// Name returns the transport label the client was opened with.
func (c *Client) Name() string {
	return c.opts.Name
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.opts.Logger; logger != nil {
					logger.Error("MQTT handler panic recovered",
						"transport", c.opts.Name,
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.opts.Logger; logger != nil {
				logger.Warn("MQTT handler returned error",
					"transport", c.opts.Name,
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
