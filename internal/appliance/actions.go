package appliance

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Action names accepted by Perform. They map onto the STATE-SET helpers so
// the HTTP API and the CLI share one vocabulary.
const (
	ActionPower        = "power"
	ActionFanSpeed     = "fan-speed"
	ActionOscillation  = "oscillation"
	ActionNightMode    = "night-mode"
	ActionAutoMode     = "auto-mode"
	ActionSleepTimer   = "sleep-timer"
	ActionRequestState = "request-state"
)

// Actions lists every action name in a stable order.
var Actions = []string{
	ActionPower,
	ActionFanSpeed,
	ActionOscillation,
	ActionNightMode,
	ActionAutoMode,
	ActionSleepTimer,
	ActionRequestState,
}

// Perform runs a named action with a textual value.
//
// Switch actions take on/off (also true/false, 1/0). fan-speed takes a
// number or "auto". sleep-timer takes minutes, with 0 or "off" cancelling.
// request-state ignores the value. Action names are case-insensitive and
// accept "_" in place of "-".
func (d *Device) Perform(ctx context.Context, action, value string) error {
	action = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(action)), "_", "-")
	value = strings.TrimSpace(value)

	switch action {
	case ActionRequestState:
		return d.RequestState(ctx)

	case ActionFanSpeed:
		if strings.EqualFold(value, valueAuto) {
			return d.SetFanSpeedAuto(ctx)
		}
		speed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: fan speed %q is not a number or auto", ErrInvalidCommand, value)
		}
		return d.SetFanSpeed(ctx, speed)

	case ActionSleepTimer:
		if strings.EqualFold(value, valueOff) {
			return d.SetSleepTimer(ctx, 0)
		}
		minutes, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: sleep timer %q is not a number of minutes", ErrInvalidCommand, value)
		}
		return d.SetSleepTimer(ctx, minutes)
	}

	if !slices.Contains(Actions, action) {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, action)
	}

	on, err := parseSwitch(value)
	if err != nil {
		return err
	}

	switch action {
	case ActionPower:
		return d.SetPower(ctx, on)
	case ActionOscillation:
		return d.SetOscillation(ctx, on)
	case ActionNightMode:
		return d.SetNightMode(ctx, on)
	default:
		return d.SetAutoMode(ctx, on)
	}
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not on or off", ErrInvalidCommand, value)
}
