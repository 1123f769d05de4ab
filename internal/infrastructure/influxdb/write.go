package influxdb

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementEnvironment = "environment"
	MeasurementConnection  = "connection"
	MeasurementFaults      = "faults"
)

// Status codes written alongside the status string so dashboards can graph
// the connection as a step line.
var statusCodes = map[string]int{
	"disconnected": 0,
	"local":        1,
	"cloud":        2,
}

func (c *Client) tags() map[string]string {
	return map[string]string{"serial": c.serial}
}

// RecordEnvironmental writes one environment point for a set of sensor
// readings.
//
// Readings arrive as the appliance reports them: zero-padded decimal strings
// such as "0012". Values that do not parse as numbers ("INIT", "OFF") are
// skipped; if nothing parses, no point is written.
//
// Returns:
//   - int: number of fields queued, 0 after Close
func (c *Client) RecordEnvironmental(readings map[string]string, ts time.Time) int {
	fields := NumericFields(readings)
	if len(fields) == 0 {
		return 0
	}
	if !c.enqueue(write.NewPoint(MeasurementEnvironment, c.tags(), fields, ts)) {
		return 0
	}
	return len(fields)
}

// RecordStatus writes one connection point for a status transition.
// Unknown statuses get status_code -1.
func (c *Client) RecordStatus(status string, fallback bool, ts time.Time) {
	code, ok := statusCodes[status]
	if !ok {
		code = -1
	}

	c.enqueue(write.NewPoint(MeasurementConnection, c.tags(), map[string]any{
		"status":      status,
		"status_code": code,
		"fallback":    fallback,
	}, ts))
}

// RecordActiveFaults writes how many faults are currently active.
func (c *Client) RecordActiveFaults(active int, ts time.Time) {
	c.enqueue(write.NewPoint(MeasurementFaults, c.tags(), map[string]any{"active": active}, ts))
}

// NumericFields converts reported readings to float fields, dropping values
// that are not numeric.
func NumericFields(readings map[string]string) map[string]any {
	fields := make(map[string]any, len(readings))
	for key, raw := range readings {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		fields[key] = v
	}
	return fields
}
