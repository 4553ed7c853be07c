// Package capability decides whether the current environment can capture audio.
package capability

import (
	"net"
	"net/url"
	"strings"

	"github.com/rbright/askvoice/internal/failure"
)

// Environment is the platform query surface consulted by Probe.
type Environment interface {
	HasCaptureAPI() bool
	HasLegacyAPI() bool
	IsSecureContext() bool
}

// Descriptor is an immutable snapshot of capture capability.
type Descriptor struct {
	HasCaptureAPI    bool
	IsSecureContext  bool
	HasLegacyAPIOnly bool
}

// Probe snapshots env: capture API presence, the legacy-only variant (only
// meaningful without the capture API), and secure context. It never requests
// device permission.
func Probe(env Environment) Descriptor {
	if env == nil {
		return Descriptor{}
	}

	d := Descriptor{
		HasCaptureAPI:   env.HasCaptureAPI(),
		IsSecureContext: env.IsSecureContext(),
	}
	if !d.HasCaptureAPI {
		d.HasLegacyAPIOnly = env.HasLegacyAPI()
	}
	return d
}

// Failure reports the failure kind that makes capture impossible, if any.
func (d Descriptor) Failure() (failure.Kind, bool) {
	switch {
	case !d.HasCaptureAPI && d.HasLegacyAPIOnly:
		return failure.LegacyAPIOnly, true
	case !d.HasCaptureAPI:
		return failure.DeviceUnsupported, true
	case !d.IsSecureContext:
		return failure.InsecureContext, true
	default:
		return "", false
	}
}

// CanCapture reports whether a capture control should be enabled.
func (d Descriptor) CanCapture() bool {
	_, blocked := d.Failure()
	return !blocked
}

// Err returns the tagged failure for a blocked descriptor, or nil.
func (d Descriptor) Err() error {
	kind, blocked := d.Failure()
	if !blocked {
		return nil
	}
	return failure.New(kind, nil)
}

// Static is a fixed Environment, useful for tests and simulated mode.
type Static struct {
	CaptureAPI bool
	LegacyAPI  bool
	Secure     bool
}

func (s Static) HasCaptureAPI() bool   { return s.CaptureAPI }
func (s Static) HasLegacyAPI() bool    { return s.LegacyAPI }
func (s Static) IsSecureContext() bool { return s.Secure }

// IsSecureOrigin applies the browser secure-context rule to an endpoint:
// https anywhere, or any scheme on a loopback host.
func IsSecureOrigin(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return false
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Scheme, "https") {
		return true
	}

	host := u.Hostname()
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
