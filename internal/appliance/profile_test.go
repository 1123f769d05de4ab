package appliance

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/nerrad567/airlink/internal/infrastructure/config"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{"local-only", PolicyLocalOnly, false},
		{"CLOUD_ONLY", PolicyCloudOnly, false},
		{"local_then_cloud", PolicyLocalThenCloud, false},
		{" cloud-then-local ", PolicyCloudThenLocal, false},
		{"whichever", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePolicy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("error = %v, want ErrInvalidPolicy", err)
			}
			if got != tt.want {
				t.Errorf("ParsePolicy(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPolicy_SequenceAndPreferred(t *testing.T) {
	tests := []struct {
		policy        Policy
		wantSequence  []Transport
		wantPreferred Transport
	}{
		{PolicyLocalOnly, []Transport{TransportLocal}, TransportLocal},
		{PolicyCloudOnly, []Transport{TransportCloud}, TransportCloud},
		{PolicyLocalThenCloud, []Transport{TransportLocal, TransportCloud}, TransportLocal},
		{PolicyCloudThenLocal, []Transport{TransportCloud, TransportLocal}, TransportCloud},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			if got := tt.policy.Sequence(); !equalTransports(got, tt.wantSequence) {
				t.Errorf("Sequence() = %v, want %v", got, tt.wantSequence)
			}
			if got := tt.policy.Preferred(); got != tt.wantPreferred {
				t.Errorf("Preferred() = %q, want %q", got, tt.wantPreferred)
			}
		})
	}
}

func TestTransport_Status(t *testing.T) {
	if TransportNone.Status() != StatusDisconnected {
		t.Error("none should map to disconnected")
	}
	if TransportLocal.Status() != StatusLocal {
		t.Error("local should map to local")
	}
	if TransportCloud.Status() != StatusCloud {
		t.Error("cloud should map to cloud")
	}
}

func TestProfile_Available(t *testing.T) {
	p := testProfile(PolicyLocalThenCloud)
	if !p.Available(TransportLocal) || !p.Available(TransportCloud) {
		t.Fatal("fully configured profile reports a transport unavailable")
	}

	p.LocalCredential = ""
	if p.Available(TransportLocal) {
		t.Error("local available without credential")
	}

	p.CloudHost = ""
	if p.Available(TransportCloud) {
		t.Error("cloud available without host")
	}

	if p.Available(TransportNone) {
		t.Error("none reported available")
	}
}

func TestProfileFromConfig(t *testing.T) {
	cfg := &config.Config{
		Device: config.DeviceConfig{Serial: "AB1-EU-HKA0001A", ProductType: "438"},
		Connection: config.ConnectionConfig{
			Policy: "cloud_then_local",
			Local:  config.LocalTransportConfig{Host: "10.0.0.2", Credential: "pw"},
		},
	}

	p, err := ProfileFromConfig(cfg)
	if err != nil {
		t.Fatalf("ProfileFromConfig() error = %v", err)
	}
	if p.Policy != PolicyCloudThenLocal {
		t.Errorf("Policy = %q", p.Policy)
	}
	if p.LocalPort != DefaultLocalPort || p.CloudPort != DefaultCloudPort || p.CloudPath != DefaultCloudPath {
		t.Errorf("defaults not applied: %+v", p)
	}

	cfg.Device.Serial = ""
	if _, err := ProfileFromConfig(cfg); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("error = %v, want ErrInvalidProfile", err)
	}

	cfg.Device.Serial = "X"
	cfg.Connection.Policy = "sometimes"
	if _, err := ProfileFromConfig(cfg); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("error = %v, want ErrInvalidPolicy", err)
	}
}

func TestDecodeCloudCredential(t *testing.T) {
	full := `{"clientId":"client-1","customAuthorizerName":"auth","tokenKey":"X-Token","tokenValue":"tok","tokenSignature":"sig=="}`

	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, c CloudCredential)
	}{
		{
			name:  "raw json",
			input: full,
			check: func(t *testing.T, c CloudCredential) {
				if c.ClientID != "client-1" || c.AuthorizerName != "auth" || c.TokenKey != "X-Token" ||
					c.TokenValue != "tok" || c.TokenSignature != "sig==" {
					t.Errorf("decoded = %+v", c)
				}
			},
		},
		{
			name:  "base64 json",
			input: base64.StdEncoding.EncodeToString([]byte(full)),
			check: func(t *testing.T, c CloudCredential) {
				if c.ClientID != "client-1" {
					t.Errorf("ClientID = %q", c.ClientID)
				}
			},
		},
		{
			name:  "token key defaults",
			input: `{"clientId":"c","customAuthorizerName":"a","tokenValue":"v","tokenSignature":"s"}`,
			check: func(t *testing.T, c CloudCredential) {
				if c.TokenKey != defaultTokenKey {
					t.Errorf("TokenKey = %q, want %q", c.TokenKey, defaultTokenKey)
				}
			},
		},
		{name: "empty", input: "", wantErr: true},
		{name: "not base64", input: "!!!", wantErr: true},
		{name: "base64 of garbage", input: base64.StdEncoding.EncodeToString([]byte("nope")), wantErr: true},
		{name: "missing signature", input: `{"clientId":"c","customAuthorizerName":"a","tokenValue":"v"}`, wantErr: true},
		{name: "missing client id", input: `{"customAuthorizerName":"a","tokenValue":"v","tokenSignature":"s"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCloudCredential(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeCloudCredential() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredential) {
					t.Errorf("error = %v, want ErrInvalidCredential", err)
				}
				return
			}
			tt.check(t, got)
		})
	}
}
