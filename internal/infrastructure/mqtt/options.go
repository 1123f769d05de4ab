package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds the wait for a PUBACK or SUBACK.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// DialFunc opens the raw network connection for a Client. It replaces
// paho's own dialer, which is how WebSocket tunnels with custom headers
// are attached.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Options configures a single broker connection.
type Options struct {
	// Name labels the transport in logs and errors ("local", "cloud").
	Name string

	// BrokerURL is the broker address, e.g. tcp://192.168.1.40:1883 or
	// wss://example.iot.amazonaws.com:443/mqtt.
	BrokerURL string

	// ClientID identifies this session to the broker.
	ClientID string

	// Username and Password are sent in the CONNECT packet when Username is set.
	Username string
	Password string

	// KeepAlive is the PINGREQ interval. Zero uses 60s.
	KeepAlive time.Duration

	// ConnectTimeout bounds Connect. Zero uses 10s.
	ConnectTimeout time.Duration

	// Dial, if set, opens the network connection instead of paho.
	Dial DialFunc

	// OnMessage receives every message on filters subscribed with a nil
	// handler. Optional.
	OnMessage MessageHandler

	// OnConnectionLost is invoked from a paho goroutine when an established
	// connection drops without Close being called.
	OnConnectionLost func(err error)

	// Logger receives handler errors and recovered panics. Optional.
	Logger Logger
}

// validate checks the options that cannot be defaulted.
func (o Options) validate() error {
	if o.BrokerURL == "" {
		return fmt.Errorf("%w: broker URL is required", ErrInvalidOptions)
	}
	if _, err := url.Parse(o.BrokerURL); err != nil {
		return fmt.Errorf("%w: broker URL: %w", ErrInvalidOptions, err)
	}
	if o.ClientID == "" {
		return fmt.Errorf("%w: client ID is required", ErrInvalidOptions)
	}
	return nil
}

// connectTimeout returns the effective connect timeout.
func (o Options) connectTimeout() time.Duration {
	if o.ConnectTimeout > 0 {
		return o.ConnectTimeout
	}
	return defaultConnectTimeout
}

// buildClientOptions creates paho MQTT options for one attempt.
//
// This configures:
//   - Broker URL and client identification
//   - Authentication credentials (if provided)
//   - No automatic reconnection; retries belong to the caller
//   - Clean session mode
//   - A custom dialer when the caller supplied one
func buildClientOptions(ctx context.Context, o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.BrokerURL)
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	// A dropped connection must surface to the caller instead of being
	// retried behind its back.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(o.connectTimeout())

	keepAlive := o.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if o.Dial != nil {
		dial := o.Dial
		opts.SetCustomOpenConnectionFn(func(_ *url.URL, _ pahomqtt.ClientOptions) (net.Conn, error) {
			return dial(ctx)
		})
	}

	return opts
}
