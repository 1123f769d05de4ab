package appliance

import (
	"errors"
	"fmt"
)

// Domain-specific errors for appliance operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when a command is issued while no
	// transport is connected. Nothing is published.
	ErrNotConnected = errors.New("appliance: not connected")

	// ErrInvalidProfile is returned when a connection profile cannot be used.
	ErrInvalidProfile = errors.New("appliance: invalid connection profile")

	// ErrInvalidPolicy is returned for an unrecognised transport policy.
	ErrInvalidPolicy = errors.New("appliance: invalid transport policy")

	// ErrUnknownTransport is returned when asked to dial a transport that
	// does not exist.
	ErrUnknownTransport = errors.New("appliance: unknown transport")

	// ErrInvalidCredential is returned when the cloud credential bundle
	// cannot be decoded or lacks a required field.
	ErrInvalidCredential = errors.New("appliance: invalid cloud credential")

	// ErrInvalidEncoding is returned when a payload is not valid text in a
	// supported character set.
	ErrInvalidEncoding = errors.New("appliance: invalid payload encoding")

	// ErrMalformedPayload is returned when a payload is not a JSON object.
	ErrMalformedPayload = errors.New("appliance: malformed payload")

	// ErrMissingMessageType is returned when a payload has no "msg" field.
	ErrMissingMessageType = errors.New("appliance: missing message type")

	// ErrInvalidCommand is returned for an empty command name or an
	// out-of-range command argument.
	ErrInvalidCommand = errors.New("appliance: invalid command")
)

// TransportError reports a failed attempt on one transport.
//
// Transport failures are never returned by Connect; they are logged and
// counted. TransportError lets tests and observers tell them apart from
// protocol failures.
type TransportError struct {
	Transport Transport
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("appliance: %s transport: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a payload that could not be decoded. The message is
// dropped and the snapshot left untouched.
type ProtocolError struct {
	Topic string
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("appliance: decoding message on %s: %v", e.Topic, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
