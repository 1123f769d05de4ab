package appliance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// MessageType is the value of a payload's "msg" discriminator.
type MessageType string

// Known message types.
const (
	MsgCurrentState      MessageType = "CURRENT-STATE"
	MsgStateChange       MessageType = "STATE-CHANGE"
	MsgEnvironmentalData MessageType = "ENVIRONMENTAL-CURRENT-SENSOR-DATA"
	MsgCurrentFaults     MessageType = "CURRENT-FAULTS"
)

// Envelope keys that are never treated as state fields.
const (
	keyMsg          = "msg"
	keyTime         = "time"
	keyData         = "data"
	keyModeReason   = "mode-reason"
	keyStateReason  = "state-reason"
	keyProductState = "product-state"
)

// Message is a decoded payload. The concrete type is one of CurrentState,
// StateChange, EnvironmentalData, CurrentFaults or Passthrough.
type Message interface {
	// Type returns the discriminator.
	Type() MessageType

	// Document returns the full parsed payload.
	Document() map[string]any
}

type document map[string]any

func (d document) Document() map[string]any { return d }

// CurrentState is a full report of the operational fields.
type CurrentState struct {
	document
	Fields map[string]any
}

// Type implements Message.
func (CurrentState) Type() MessageType { return MsgCurrentState }

// StateChange reports operational fields that changed. Fields already holds
// the present value of each [previous, current] pair.
type StateChange struct {
	document
	Fields map[string]any
}

// Type implements Message.
func (StateChange) Type() MessageType { return MsgStateChange }

// EnvironmentalData carries sensor readings from the nested "data" object.
type EnvironmentalData struct {
	document
	Readings map[string]any
}

// Type implements Message.
func (EnvironmentalData) Type() MessageType { return MsgEnvironmentalData }

// CurrentFaults carries raw per-code health fields, flattened and unfiltered.
type CurrentFaults struct {
	document
	Fields map[string]any
}

// Type implements Message.
func (CurrentFaults) Type() MessageType { return MsgCurrentFaults }

// Passthrough is any message type without a dedicated decoder. It does not
// touch the snapshot but is still delivered to message callbacks.
type Passthrough struct {
	document
	Kind MessageType
}

// Type implements Message.
func (p Passthrough) Type() MessageType { return p.Kind }

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText converts a payload to UTF-8. UTF-16 with a byte order mark is
// transcoded, a UTF-8 BOM is stripped, and anything else must already be
// valid UTF-8.
func decodeText(raw []byte) ([]byte, error) {
	utf16 := bytes.HasPrefix(raw, bomUTF16LE) || bytes.HasPrefix(raw, bomUTF16BE)
	if !utf16 && !utf8.Valid(raw) {
		return nil, ErrInvalidEncoding
	}

	text, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	return text, nil
}

// DecodeMessage turns a raw payload into a typed Message.
//
// Returns:
//   - Message: The decoded variant
//   - error: ErrInvalidEncoding, ErrMalformedPayload or ErrMissingMessageType
func DecodeMessage(raw []byte) (Message, error) {
	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}
	// The payload must be exactly one document.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedPayload)
	}

	kind, ok := doc[keyMsg].(string)
	if !ok || kind == "" {
		return nil, ErrMissingMessageType
	}

	switch MessageType(kind) {
	case MsgCurrentState:
		return CurrentState{document: doc, Fields: stateFields(doc)}, nil

	case MsgStateChange:
		fields := stateFields(doc)
		for k, v := range fields {
			fields[k] = presentValue(v)
		}
		return StateChange{document: doc, Fields: fields}, nil

	case MsgEnvironmentalData:
		readings, _ := doc[keyData].(map[string]any)
		if readings == nil {
			readings = map[string]any{}
		}
		return EnvironmentalData{document: doc, Readings: readings}, nil

	case MsgCurrentFaults:
		return CurrentFaults{document: doc, Fields: faultFields(doc)}, nil

	default:
		return Passthrough{document: doc, Kind: MessageType(kind)}, nil
	}
}

// stateFields returns the operational fields of a state message: the nested
// "product-state" object when present, otherwise every top-level field
// except the envelope keys.
func stateFields(doc map[string]any) map[string]any {
	if nested, ok := doc[keyProductState].(map[string]any); ok {
		out := make(map[string]any, len(nested))
		for k, v := range nested {
			out[k] = v
		}
		return out
	}

	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if isEnvelopeKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// faultFields flattens the nested error and warning groups of a fault report
// into a single code→value map.
func faultFields(doc map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range doc {
		if isEnvelopeKey(k) {
			continue
		}
		if group, ok := v.(map[string]any); ok {
			for code, value := range group {
				out[code] = value
			}
			continue
		}
		out[k] = v
	}
	return out
}

// presentValue unwraps a [previous, current] pair or a single-element list.
func presentValue(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	switch len(list) {
	case 2:
		return list[1]
	case 1:
		return list[0]
	default:
		return v
	}
}

func isEnvelopeKey(k string) bool {
	switch k {
	case keyMsg, keyTime, keyModeReason, keyStateReason:
		return true
	default:
		return false
	}
}
