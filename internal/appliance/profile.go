package appliance

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/airlink/internal/infrastructure/config"
)

// Transport identifies one of the two network paths to the appliance.
type Transport string

// Transport values.
const (
	TransportNone  Transport = "none"
	TransportLocal Transport = "local"
	TransportCloud Transport = "cloud"
)

// Status is the externally visible connection status.
type Status string

// Status values.
const (
	StatusDisconnected Status = "disconnected"
	StatusLocal        Status = "local"
	StatusCloud        Status = "cloud"
)

// Status maps a transport to the status reported while it is in use.
func (t Transport) Status() Status {
	switch t {
	case TransportLocal:
		return StatusLocal
	case TransportCloud:
		return StatusCloud
	default:
		return StatusDisconnected
	}
}

// Policy declares which transports may be used and in what order.
type Policy string

// Policy values.
const (
	PolicyLocalOnly      Policy = config.PolicyLocalOnly
	PolicyCloudOnly      Policy = config.PolicyCloudOnly
	PolicyLocalThenCloud Policy = config.PolicyLocalThenCloud
	PolicyCloudThenLocal Policy = config.PolicyCloudThenLocal
)

// ParsePolicy accepts the hyphenated or underscored spelling in any case.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(config.NormalisePolicy(s))
	switch p {
	case PolicyLocalOnly, PolicyCloudOnly, PolicyLocalThenCloud, PolicyCloudThenLocal:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// Sequence returns the transports to try, in order.
func (p Policy) Sequence() []Transport {
	switch p {
	case PolicyLocalOnly:
		return []Transport{TransportLocal}
	case PolicyCloudOnly:
		return []Transport{TransportCloud}
	case PolicyCloudThenLocal:
		return []Transport{TransportCloud, TransportLocal}
	default:
		return []Transport{TransportLocal, TransportCloud}
	}
}

// Preferred returns the first transport of the sequence.
func (p Policy) Preferred() Transport {
	return p.Sequence()[0]
}

// Default transport endpoints.
const (
	DefaultLocalPort = 1883
	DefaultCloudPort = 443
	DefaultCloudPath = "/mqtt"
)

// Profile describes how to reach one appliance. It is built once when the
// Device is created and never changes afterwards.
type Profile struct {
	// Serial is the appliance's unique identifier and local broker username.
	Serial string

	// ProductType is the first level of every MQTT topic.
	ProductType string

	LocalHost       string
	LocalPort       int
	LocalCredential string

	CloudHost string
	CloudPort int
	CloudPath string

	// CloudCredential is the serialized authorizer bundle, decoded on each
	// cloud attempt by DecodeCloudCredential.
	CloudCredential string

	Policy Policy
}

// ProfileFromConfig builds a Profile from the loaded configuration.
func ProfileFromConfig(cfg *config.Config) (Profile, error) {
	policy, err := ParsePolicy(cfg.Connection.Policy)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{
		Serial:          cfg.Device.Serial,
		ProductType:     cfg.Device.ProductType,
		LocalHost:       cfg.Connection.Local.Host,
		LocalPort:       cfg.Connection.Local.Port,
		LocalCredential: cfg.Connection.Local.Credential,
		CloudHost:       cfg.Connection.Cloud.Host,
		CloudPort:       cfg.Connection.Cloud.Port,
		CloudPath:       cfg.Connection.Cloud.Path,
		CloudCredential: cfg.Connection.Cloud.Credential,
		Policy:          policy,
	}.withDefaults()

	if err := p.validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (p Profile) withDefaults() Profile {
	if p.LocalPort == 0 {
		p.LocalPort = DefaultLocalPort
	}
	if p.CloudPort == 0 {
		p.CloudPort = DefaultCloudPort
	}
	if p.CloudPath == "" {
		p.CloudPath = DefaultCloudPath
	}
	if p.Policy == "" {
		p.Policy = PolicyLocalThenCloud
	}
	return p
}

func (p Profile) validate() error {
	if p.Serial == "" {
		return fmt.Errorf("%w: serial is required", ErrInvalidProfile)
	}
	if p.ProductType == "" {
		return fmt.Errorf("%w: product type is required", ErrInvalidProfile)
	}
	if _, err := ParsePolicy(string(p.Policy)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	return nil
}

// Available reports whether a transport has both an address and a
// credential. Unavailable transports are skipped, not failed.
func (p Profile) Available(t Transport) bool {
	switch t {
	case TransportLocal:
		return p.LocalHost != "" && p.LocalCredential != ""
	case TransportCloud:
		return p.CloudHost != "" && p.CloudCredential != ""
	default:
		return false
	}
}

// defaultTokenKey is the header name used when the bundle does not name one.
const defaultTokenKey = "X-Auth-Token"

// CloudCredential is the authorizer bundle for the cloud tunnel.
type CloudCredential struct {
	ClientID       string `json:"clientId"`
	AuthorizerName string `json:"customAuthorizerName"`
	TokenKey       string `json:"tokenKey"`
	TokenValue     string `json:"tokenValue"`
	TokenSignature string `json:"tokenSignature"`
}

// DecodeCloudCredential parses a bundle serialized as base64-encoded JSON or
// as raw JSON.
//
// All of clientId, customAuthorizerName, tokenValue and tokenSignature must
// be present; tokenKey falls back to a default header name.
//
// Returns:
//   - CloudCredential: The decoded bundle
//   - error: Wrapping ErrInvalidCredential if the bundle is unusable
func DecodeCloudCredential(raw string) (CloudCredential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return CloudCredential{}, fmt.Errorf("%w: empty", ErrInvalidCredential)
	}

	doc := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return CloudCredential{}, fmt.Errorf("%w: not base64 or JSON: %w", ErrInvalidCredential, err)
		}
		doc = decoded
	}

	var cred CloudCredential
	if err := json.Unmarshal(doc, &cred); err != nil {
		return CloudCredential{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	var missing []string
	if cred.ClientID == "" {
		missing = append(missing, "clientId")
	}
	if cred.AuthorizerName == "" {
		missing = append(missing, "customAuthorizerName")
	}
	if cred.TokenValue == "" {
		missing = append(missing, "tokenValue")
	}
	if cred.TokenSignature == "" {
		missing = append(missing, "tokenSignature")
	}
	if len(missing) > 0 {
		return CloudCredential{}, fmt.Errorf("%w: missing %s", ErrInvalidCredential, strings.Join(missing, ", "))
	}

	if cred.TokenKey == "" {
		cred.TokenKey = defaultTokenKey
	}
	return cred, nil
}
