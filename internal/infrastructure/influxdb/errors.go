package influxdb

import "errors"

// Telemetry sink errors. Writes never return errors; these come from
// Connect and HealthCheck.
var (
	// ErrTelemetryDisabled is returned by Connect when influxdb.enabled is false.
	ErrTelemetryDisabled = errors.New("telemetry: influxdb disabled")

	// ErrUnreachable means the /ping request failed, at Connect or in a
	// later HealthCheck.
	ErrUnreachable = errors.New("telemetry: influxdb unreachable")

	// ErrUnhealthy means InfluxDB answered /ping but reported itself unready.
	ErrUnhealthy = errors.New("telemetry: influxdb not ready")

	// ErrClosed is returned by HealthCheck after Close.
	ErrClosed = errors.New("telemetry: sink closed")
)
