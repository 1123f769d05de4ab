package mqtt

import "fmt"

// Topics builds the appliance's MQTT topic layout.
//
// Every topic lives under {product_type}/{serial}. The appliance publishes
// status under .../status/* and listens for commands on .../command.
//
//	topics := mqtt.Topics{ProductType: "438", Serial: "AB1-EU-HKA0001A"}
//	topics.Command() // "438/AB1-EU-HKA0001A/command"
type Topics struct {
	ProductType string
	Serial      string
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%s", t.ProductType, t.Serial)
}

// StatusCurrent carries CURRENT-STATE and STATE-CHANGE messages.
//
// Example: 438/AB1-EU-HKA0001A/status/current
func (t Topics) StatusCurrent() string {
	return t.base() + "/status/current"
}

// StatusFaults carries CURRENT-FAULTS messages.
//
// Example: 438/AB1-EU-HKA0001A/status/faults
func (t Topics) StatusFaults() string {
	return t.base() + "/status/faults"
}

// StatusConnection carries the appliance's own cloud connection reports.
func (t Topics) StatusConnection() string {
	return t.base() + "/status/connection"
}

// StatusSoftware carries firmware/software reports.
func (t Topics) StatusSoftware() string {
	return t.base() + "/status/software"
}

// StatusSummary carries periodic summary reports.
func (t Topics) StatusSummary() string {
	return t.base() + "/status/summary"
}

// All matches every topic of this appliance.
//
// Pattern: 438/AB1-EU-HKA0001A/#
func (t Topics) All() string {
	return t.base() + "/#"
}

// Command is where command envelopes are published.
//
// Example: 438/AB1-EU-HKA0001A/command
func (t Topics) Command() string {
	return t.base() + "/command"
}

// DeviceSubscriptions returns the filters subscribed on every connect, in order.
func (t Topics) DeviceSubscriptions() []string {
	return []string{
		t.StatusCurrent(),
		t.StatusFaults(),
		t.StatusConnection(),
		t.StatusSoftware(),
		t.StatusSummary(),
		t.All(),
	}
}
