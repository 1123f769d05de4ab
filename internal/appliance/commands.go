package appliance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Envelope constants.
const (
	// envelopeTimeLayout is UTC with millisecond precision and a Z suffix.
	envelopeTimeLayout = "2006-01-02T15:04:05.000Z"

	// modeReason marks commands as issued by an app rather than the remote.
	modeReason = "LAPP"
)

// Command names.
const (
	CommandRequestCurrentState  = "REQUEST-CURRENT-STATE"
	CommandRequestCurrentFaults = "REQUEST-CURRENT-FAULTS"
	CommandRequestEnvironment   = "REQUEST-PRODUCT-ENVIRONMENT-CURRENT-SENSOR-DATA"
	CommandStateSet             = "STATE-SET"
)

// Operational field codes used by the STATE-SET helpers.
const (
	fieldPower       = "fpwr"
	fieldFanSpeed    = "fnsp"
	fieldOscillation = "oson"
	fieldNightMode   = "nmod"
	fieldSleepTimer  = "sltm"
	fieldAutoMode    = "auto"
)

// Fan speed and sleep timer limits.
const (
	MinFanSpeed     = 1
	MaxFanSpeed     = 10
	MaxSleepMinutes = 540
)

// Field values. Numbers are sent zero-padded to four digits.
const (
	valueOn          = "ON"
	valueOff         = "OFF"
	valueAuto        = "AUTO"
	fourDigitPadding = "%04d"
)

// StateRequests are published after every successful connect.
var StateRequests = []string{
	CommandRequestCurrentState,
	CommandRequestCurrentFaults,
	CommandRequestEnvironment,
}

// Envelope is the JSON body published on the command topic.
type Envelope struct {
	Msg        string            `json:"msg"`
	Time       string            `json:"time"`
	Data       map[string]string `json:"data,omitempty"`
	ModeReason string            `json:"mode-reason,omitempty"`
}

// NewEnvelope builds a command envelope. Commands without data carry only
// msg and time.
func NewEnvelope(name string, data map[string]string, now time.Time) Envelope {
	env := Envelope{
		Msg:  name,
		Time: now.UTC().Format(envelopeTimeLayout),
	}
	if len(data) > 0 {
		env.Data = data
		env.ModeReason = modeReason
	}
	return env
}

// SendCommand publishes a command on the appliance's command topic through
// the live transport.
//
// Returns:
//   - error: ErrNotConnected when disconnected (nothing is published),
//     ErrInvalidCommand for an empty name, or the transport's publish error
func (d *Device) SendCommand(ctx context.Context, name string, data map[string]string) error {
	if name == "" {
		return fmt.Errorf("%w: empty command name", ErrInvalidCommand)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := d.sendCommand(name, data)
	d.observer.CommandSent(name, err)
	if err != nil {
		return err
	}

	d.logger.Debug("command sent", "command", name, "fields", len(data))
	return nil
}

func (d *Device) sendCommand(name string, data map[string]string) error {
	if d.manager.Status() == StatusDisconnected {
		return ErrNotConnected
	}

	payload, err := json.Marshal(NewEnvelope(name, data, d.now()))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	if err := d.manager.Publish(d.manager.Topics().Command(), payload); err != nil {
		return fmt.Errorf("publishing %s: %w", name, err)
	}
	return nil
}

// RequestState asks the appliance to report its state, faults and
// environmental readings.
func (d *Device) RequestState(ctx context.Context) error {
	for _, name := range StateRequests {
		if err := d.SendCommand(ctx, name, nil); err != nil {
			return err
		}
	}
	return nil
}

// SetPower switches the fan on or off.
func (d *Device) SetPower(ctx context.Context, on bool) error {
	return d.setState(ctx, fieldPower, onOff(on))
}

// SetFanSpeed sets a fixed speed between MinFanSpeed and MaxFanSpeed.
func (d *Device) SetFanSpeed(ctx context.Context, speed int) error {
	if speed < MinFanSpeed || speed > MaxFanSpeed {
		return fmt.Errorf("%w: fan speed %d outside %d-%d", ErrInvalidCommand, speed, MinFanSpeed, MaxFanSpeed)
	}
	return d.SendCommand(ctx, CommandStateSet, map[string]string{
		fieldFanSpeed: fmt.Sprintf(fourDigitPadding, speed),
		fieldAutoMode: valueOff,
	})
}

// SetFanSpeedAuto lets the appliance choose its speed.
func (d *Device) SetFanSpeedAuto(ctx context.Context) error {
	return d.SendCommand(ctx, CommandStateSet, map[string]string{
		fieldFanSpeed: valueAuto,
		fieldAutoMode: valueOn,
	})
}

// SetOscillation turns oscillation on or off.
func (d *Device) SetOscillation(ctx context.Context, on bool) error {
	return d.setState(ctx, fieldOscillation, onOff(on))
}

// SetNightMode turns night mode on or off.
func (d *Device) SetNightMode(ctx context.Context, on bool) error {
	return d.setState(ctx, fieldNightMode, onOff(on))
}

// SetAutoMode turns automatic mode on or off.
func (d *Device) SetAutoMode(ctx context.Context, on bool) error {
	return d.setState(ctx, fieldAutoMode, onOff(on))
}

// SetSleepTimer schedules power-off after the given minutes; 0 cancels.
func (d *Device) SetSleepTimer(ctx context.Context, minutes int) error {
	if minutes < 0 || minutes > MaxSleepMinutes {
		return fmt.Errorf("%w: sleep timer %d outside 0-%d minutes", ErrInvalidCommand, minutes, MaxSleepMinutes)
	}
	value := valueOff
	if minutes > 0 {
		value = fmt.Sprintf(fourDigitPadding, minutes)
	}
	return d.setState(ctx, fieldSleepTimer, value)
}

func (d *Device) setState(ctx context.Context, field, value string) error {
	return d.SendCommand(ctx, CommandStateSet, map[string]string{field: value})
}

func onOff(on bool) string {
	if on {
		return valueOn
	}
	return valueOff
}
