package appliance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/airlink/internal/infrastructure/mqtt"
)

// Conn is one established transport connection.
type Conn interface {
	// Subscribe subscribes every topic filter in one request.
	Subscribe(topics []string, qos byte) error
	Publish(topic string, payload []byte, qos byte) error
	// HealthCheck returns ErrNotConnected, or a wrapped form of it, once
	// the connection is gone.
	HealthCheck(ctx context.Context) error
	Close() error
}

// Handlers receive a connection's callbacks. They are invoked on the
// transport's own goroutines.
type Handlers struct {
	OnMessage        func(topic string, payload []byte)
	OnConnectionLost func(err error)
}

// Dialer opens a connection over one transport. A Dialer makes exactly one
// attempt and never retries.
type Dialer interface {
	Dial(ctx context.Context, transport Transport, handlers Handlers) (Conn, error)
}

// Cloud authorizer headers.
const (
	headerAuthorizerName      = "X-Amz-CustomAuthorizer-Name"
	headerAuthorizerSignature = "X-Amz-CustomAuthorizer-Signature"
)

// MQTTDialer dials the appliance's brokers with the MQTT transport adapter.
type MQTTDialer struct {
	Profile        Profile
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	Logger         Logger
}

// Dial implements Dialer.
//
// Local: plain TCP to LocalHost:LocalPort, username = serial, password =
// local credential, random client ID.
// Cloud: TLS WebSocket to CloudHost:CloudPort/CloudPath with the authorizer
// bundle carried in headers. A bundle that fails to decode fails the attempt
// before any network activity.
func (d *MQTTDialer) Dial(ctx context.Context, transport Transport, handlers Handlers) (Conn, error) {
	opts, err := d.options(transport)
	if err != nil {
		return nil, &TransportError{Transport: transport, Err: err}
	}

	opts.KeepAlive = d.KeepAlive
	opts.ConnectTimeout = d.ConnectTimeout
	if d.Logger != nil {
		opts.Logger = d.Logger
	}
	if handlers.OnMessage != nil {
		onMessage := handlers.OnMessage
		opts.OnMessage = func(topic string, payload []byte) error {
			onMessage(topic, payload)
			return nil
		}
	}
	opts.OnConnectionLost = handlers.OnConnectionLost

	client, err := mqtt.Connect(ctx, opts)
	if err != nil {
		return nil, &TransportError{Transport: transport, Err: err}
	}
	return &mqttConn{client: client}, nil
}

func (d *MQTTDialer) options(transport Transport) (mqtt.Options, error) {
	p := d.Profile.withDefaults()

	switch transport {
	case TransportLocal:
		return mqtt.Options{
			Name:      string(TransportLocal),
			BrokerURL: LocalBrokerURL(p),
			ClientID:  uuid.NewString(),
			Username:  p.Serial,
			Password:  p.LocalCredential,
		}, nil

	case TransportCloud:
		cred, err := DecodeCloudCredential(p.CloudCredential)
		if err != nil {
			return mqtt.Options{}, err
		}
		brokerURL := CloudBrokerURL(p)
		header := CloudHeaders(p.CloudHost, cred)
		timeout := d.ConnectTimeout
		return mqtt.Options{
			Name:      string(TransportCloud),
			BrokerURL: brokerURL,
			ClientID:  cred.ClientID,
			Dial: func(ctx context.Context) (net.Conn, error) {
				return mqtt.DialWebsocket(ctx, mqtt.WebsocketOptions{
					URL:              brokerURL,
					Header:           header,
					HandshakeTimeout: timeout,
				})
			},
		}, nil

	default:
		return mqtt.Options{}, fmt.Errorf("%w: %q", ErrUnknownTransport, transport)
	}
}

// LocalBrokerURL returns the tcp:// address of the local broker.
func LocalBrokerURL(p Profile) string {
	p = p.withDefaults()
	return "tcp://" + net.JoinHostPort(p.LocalHost, strconv.Itoa(p.LocalPort))
}

// CloudBrokerURL returns the wss:// address of the cloud tunnel.
func CloudBrokerURL(p Profile) string {
	p = p.withDefaults()
	u := url.URL{
		Scheme: "wss",
		Host:   net.JoinHostPort(p.CloudHost, strconv.Itoa(p.CloudPort)),
		Path:   p.CloudPath,
	}
	return u.String()
}

// CloudHeaders builds the WebSocket upgrade headers for the authorizer.
func CloudHeaders(host string, cred CloudCredential) http.Header {
	header := http.Header{}
	header.Set("Host", host)
	header.Set(cred.TokenKey, cred.TokenValue)
	header.Set(headerAuthorizerName, cred.AuthorizerName)
	header.Set(headerAuthorizerSignature, cred.TokenSignature)
	return header
}

// mqttConn adapts *mqtt.Client to Conn. Subscriptions use the client's
// default handler so overlapping filters deliver a message once.
type mqttConn struct {
	client *mqtt.Client
}

func (c *mqttConn) Subscribe(topics []string, qos byte) error {
	return c.client.SubscribeMultiple(topics, qos, nil)
}

func (c *mqttConn) Publish(topic string, payload []byte, qos byte) error {
	return c.client.Publish(topic, payload, qos, false)
}

func (c *mqttConn) HealthCheck(ctx context.Context) error {
	if err := c.client.HealthCheck(ctx); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			return fmt.Errorf("%w: %s transport: %w", ErrNotConnected, c.client.Name(), err)
		}
		return err
	}
	return nil
}

func (c *mqttConn) Close() error {
	return c.client.Close()
}
