package appliance

import "testing"

func TestIsBenign(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"OK", true},
		{"NONE", true},
		{"PASS", true},
		{"GOOD", true},
		{"", true},
		{"ok", true},
		{" PASS ", true},
		{"FAIL", false},
		{"CHNG", false},
		{"WARN", false},
	}

	for _, tt := range tests {
		if got := IsBenign(tt.value); got != tt.want {
			t.Errorf("IsBenign(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestDescribeFault(t *testing.T) {
	tests := []struct {
		code  string
		value string
		want  string
	}{
		{"fltr", "CHNG", "Filter needs replacing"},
		{"amf1", "FAIL", "Fan motor fault"},
		{"FLTR", "chng", "Filter needs replacing"},
		{"fltr", "WEIRD", "FLTR fault: WEIRD"},
		{"zz99", "FAIL", "ZZ99 fault: FAIL"},
	}

	for _, tt := range tests {
		if got := DescribeFault(tt.code, tt.value); got != tt.want {
			t.Errorf("DescribeFault(%q, %q) = %q, want %q", tt.code, tt.value, got, tt.want)
		}
	}
}

func TestActiveFaults(t *testing.T) {
	raw := map[string]string{
		"amf1": "OK",
		"sen1": "NONE",
		"sen2": "PASS",
		"sen3": "GOOD",
		"wifi": "",
		"fltr": "CHNG",
		"zz99": "FAIL",
	}

	faults := ActiveFaults(raw)
	if len(faults) != 2 {
		t.Fatalf("ActiveFaults() = %+v, want 2 entries", faults)
	}

	if faults[0].Code != "fltr" || faults[0].Description != "Filter needs replacing" {
		t.Errorf("faults[0] = %+v", faults[0])
	}
	if faults[1].Code != "zz99" || faults[1].Description != "ZZ99 fault: FAIL" {
		t.Errorf("faults[1] = %+v", faults[1])
	}
	for _, f := range faults {
		if f.Description == "" {
			t.Errorf("fault %s has no description", f.Code)
		}
	}
}

func TestActiveFaults_EmptyRegistry(t *testing.T) {
	faults := ActiveFaults(nil)
	if faults == nil || len(faults) != 0 {
		t.Errorf("ActiveFaults(nil) = %#v, want empty non-nil slice", faults)
	}
}
