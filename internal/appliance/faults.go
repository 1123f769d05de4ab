package appliance

import (
	"fmt"
	"sort"
	"strings"
)

// Fault is an active entry of the fault registry.
type Fault struct {
	Code        string `json:"code"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// benignValues mark a fault code as healthy.
var benignValues = map[string]struct{}{
	"OK":   {},
	"NONE": {},
	"PASS": {},
	"GOOD": {},
}

// faultDescriptions maps code → value → human-readable text.
var faultDescriptions = map[string]map[string]string{
	"amf1": {"FAIL": "Fan motor fault"},
	"amf2": {"FAIL": "Fan motor controller fault"},
	"amf3": {"FAIL": "Fan motor speed sensor fault"},
	"ibus": {"FAIL": "Internal communication fault"},
	"sen1": {"FAIL": "Particulate sensor fault"},
	"sen2": {"FAIL": "Gas sensor fault"},
	"sen3": {"FAIL": "Temperature and humidity sensor fault"},
	"sen4": {"FAIL": "Formaldehyde sensor fault"},
	"fltr": {
		"CHNG": "Filter needs replacing",
		"MISS": "Filter not fitted",
		"FAIL": "Filter not recognised",
	},
	"hflr": {"FAIL": "HEPA filter fault", "CHNG": "HEPA filter needs replacing"},
	"cflr": {"FAIL": "Carbon filter fault", "CHNG": "Carbon filter needs replacing"},
	"tnke": {"EMPT": "Water tank empty", "FAIL": "Water tank sensor fault"},
	"tnkp": {"MISS": "Water tank not fitted"},
	"cldu": {"FAIL": "Cloud service unreachable"},
	"wifi": {"FAIL": "Wi-Fi connection fault"},
	"stto": {"FAIL": "Oscillation motor fault"},
	"htr1": {"FAIL": "Heater fault"},
	"tilt": {"TILT": "Appliance tilted or knocked over", "FAIL": "Tilt sensor fault"},
}

// IsBenign reports whether a raw fault value means "no fault".
func IsBenign(value string) bool {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return true
	}
	_, ok := benignValues[v]
	return ok
}

// DescribeFault returns the text for a code/value pair, falling back to
// "<CODE> fault: <value>" for pairs not in the table.
func DescribeFault(code, value string) string {
	if byValue, ok := faultDescriptions[strings.ToLower(code)]; ok {
		if text, ok := byValue[strings.ToUpper(strings.TrimSpace(value))]; ok {
			return text
		}
	}
	return fmt.Sprintf("%s fault: %s", strings.ToUpper(code), value)
}

// ActiveFaults filters a raw fault registry down to the entries that are
// actually reporting a problem, sorted by code.
func ActiveFaults(raw map[string]string) []Fault {
	faults := make([]Fault, 0)
	for code, value := range raw {
		if IsBenign(value) {
			continue
		}
		faults = append(faults, Fault{
			Code:        code,
			Value:       value,
			Description: DescribeFault(code, value),
		})
	}

	sort.Slice(faults, func(i, j int) bool { return faults[i].Code < faults[j].Code })
	return faults
}
